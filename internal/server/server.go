// Package server exposes the pipeline state machine to a local browser over
// HTTP and a websocket push channel.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/KaramelBytes/dropsight/internal/logging"
	"github.com/KaramelBytes/dropsight/internal/pipeline"
)

// Options configures a Server. Controller is required.
type Options struct {
	Controller *pipeline.Controller
	Version    string
	Logger     *slog.Logger
}

// Server wires the controller into an echo instance.
type Server struct {
	e    *echo.Echo
	ctrl *pipeline.Controller
	log  *slog.Logger
}

// New builds the echo instance with middleware and routes registered.
func New(opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, errors.New("server: controller is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.RequestID())
	e.Use(requestContext(log))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelDebug
			if v.Error != nil || v.Status >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logging.FromContext(c.Request().Context()).Error("handler panic", "error", err, "stack", string(stack))
			return err
		},
	}))

	h := NewHandlers(opts.Controller, opts.Version, log)
	RegisterRoutes(e, h, bodyLimit(opts.Controller.MaxSizeBytes()))

	return &Server{e: e, ctrl: opts.Controller, log: log}, nil
}

// Handler returns the root http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.e.Listener = ln
	s.log.Info("listening", "addr", "http://"+ln.Addr().String())
	err := s.e.Start("")
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight handlers and
// cancels any running pipeline.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.e.Shutdown(ctx)
	if cerr := s.ctrl.Close(); err == nil {
		err = cerr
	}
	return err
}

// requestContext stores a request-scoped logger carrying the request id.
func requestContext(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithLogger(c.Request().Context(), log.With("request_id", id))
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// bodyLimit allows the upload cap plus room for multipart framing.
func bodyLimit(maxUpload int64) string {
	const slack = 1 << 20
	return strconv.FormatInt((maxUpload+slack)/1024+1, 10) + "K"
}

const shutdownGrace = 5 * time.Second

// ListenAndServe runs the server on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(url string)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()
	if ready != nil {
		ready("http://" + ln.Addr().String() + "/")
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.Shutdown(sctx); err != nil {
		return err
	}
	return <-errc
}
