package server

import (
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/KaramelBytes/dropsight/internal/logging"
	"github.com/KaramelBytes/dropsight/internal/pipeline"
	"github.com/KaramelBytes/dropsight/internal/upload"
	"github.com/KaramelBytes/dropsight/internal/utils"
)

//go:embed static/index.html
var indexHTML []byte

const mimeMsgpack = "application/msgpack"

// Handlers serves the presentation boundary of one controller.
type Handlers struct {
	ctrl     *pipeline.Controller
	version  string
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandlers creates the handler set.
func NewHandlers(ctrl *pipeline.Controller, version string, log *slog.Logger) *Handlers {
	return &Handlers{
		ctrl:    ctrl,
		version: version,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin:     sameHost,
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// StateView is a snapshot plus display strings for the file detail panel.
type StateView struct {
	pipeline.Snapshot `msgpack:",inline"`
	FileSize          string `json:"fileSize,omitempty" msgpack:"fileSize,omitempty"`
	Elapsed           string `json:"elapsed,omitempty" msgpack:"elapsed,omitempty"`
}

func newStateView(s pipeline.Snapshot) StateView {
	v := StateView{Snapshot: s}
	if s.File != nil {
		v.FileSize = utils.FormatBytes(s.File.SizeBytes)
	}
	if s.ProcessingTimeMs != nil {
		v.Elapsed = utils.FormatSeconds(*s.ProcessingTimeMs)
	}
	return v
}

// HandleIndex serves the bundled drop page.
func (h *Handlers) HandleIndex(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, indexHTML)
}

// HandleHealth returns server health status
func (h *Handlers) HandleHealth(c echo.Context) error {
	limit := h.ctrl.MaxSizeBytes()
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   h.version,
		"maxUpload": "Max. " + utils.FormatBytes(limit),
		"maxBytes":  limit,
		"accept":    upload.AcceptHint,
	})
}

// HandleState returns the current snapshot as JSON, or msgpack on request.
func (h *Handlers) HandleState(c echo.Context) error {
	return h.respond(c, http.StatusOK, h.ctrl.Snapshot())
}

// HandleUpload accepts a multipart "file" and starts the pipeline.
func (h *Handlers) HandleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
		return NewBadRequestError(`missing multipart field "file"`, err)
	}
	ctx := c.Request().Context()

	submit := h.ctrl.Select
	switch src := c.FormValue("source"); src {
	case "", "picker":
	case "drop":
		submit = h.ctrl.Drop
	default:
		return NewValidationError("source", `must be "picker" or "drop", got "`+src+`"`)
	}

	// Multipart temp files vanish with the request; keep files that pass the
	// size check in memory for the run.
	var cand upload.Candidate = upload.FormFile{Header: fh}
	if fh.Size <= h.ctrl.MaxSizeBytes() {
		mem, err := upload.Buffer(cand)
		if err != nil {
			return NewBadRequestError("could not read uploaded file", err)
		}
		cand = mem
	}

	logging.FromContext(ctx).Info("upload received", "file", fh.Filename, "size", fh.Size)
	if _, err := submit(ctx, cand); err != nil {
		return fromPipeline(err)
	}
	return h.respond(c, http.StatusAccepted, h.ctrl.Snapshot())
}

// HandleDismiss is the single event the view sends back.
func (h *Handlers) HandleDismiss(c echo.Context) error {
	if err := h.ctrl.Dismiss(); err != nil {
		return fromPipeline(err)
	}
	return h.respond(c, http.StatusOK, h.ctrl.Snapshot())
}

type dragRequest struct {
	Event string `json:"event" form:"event"`
}

// HandleDrag toggles the dragging indicator.
func (h *Handlers) HandleDrag(c echo.Context) error {
	var req dragRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid drag request", err)
	}
	if req.Event == "" {
		req.Event = c.QueryParam("event")
	}
	if !h.drag(req.Event) {
		return NewValidationError("event", `must be "enter", "over" or "leave"`)
	}
	return h.respond(c, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handlers) drag(event string) bool {
	switch event {
	case "enter":
		h.ctrl.DragEnter()
	case "over":
		h.ctrl.DragOver()
	case "leave":
		h.ctrl.DragLeave()
	default:
		return false
	}
	return true
}

func (h *Handlers) respond(c echo.Context, status int, s pipeline.Snapshot) error {
	view := newStateView(s)
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), mimeMsgpack) {
		data, err := msgpack.Marshal(view)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(status, mimeMsgpack, data)
	}
	return c.JSON(status, view)
}
