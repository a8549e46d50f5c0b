package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/dropsight/internal/analysis"
	"github.com/KaramelBytes/dropsight/internal/logging"
	"github.com/KaramelBytes/dropsight/internal/table"
	"github.com/KaramelBytes/dropsight/internal/upload"
)

// Options wires the controller's collaborators. Decoder and Extractor are required.
type Options struct {
	Decoder      table.Decoder
	Extractor    analysis.Extractor
	MaxSizeBytes int64
	Overlap      OverlapPolicy
	Clock        func() time.Time
	Logger       *slog.Logger
}

// Controller orchestrates accept, decode and extract, and owns the only
// mutable view state. All methods are safe for concurrent use.
type Controller struct {
	opts Options
	log  *slog.Logger
	zone upload.DropZone

	mu      sync.Mutex
	state   Snapshot
	start   time.Time
	gen     uint64
	cancel  context.CancelFunc
	closed  bool
	subs    map[int]func(Snapshot)
	nextSub int

	// notify serialises subscriber callbacks so they observe transitions in order.
	notify sync.Mutex
	wg     sync.WaitGroup
}

// New returns a Controller in the Idle state.
func New(opts Options) (*Controller, error) {
	if opts.Decoder == nil {
		return nil, errors.New("pipeline: decoder is required")
	}
	if opts.Extractor == nil {
		return nil, errors.New("pipeline: extractor is required")
	}
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = upload.DefaultMaxSizeBytes
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{opts: opts, log: log, subs: map[int]func(Snapshot){}}, nil
}

// MaxSizeBytes is the effective upload cap.
func (c *Controller) MaxSizeBytes() int64 { return c.opts.MaxSizeBytes }

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.state
	s.Dragging = c.zone.Dragging()
	return s
}

// Subscribe registers fn for every state change, starting with the current
// state. fn runs synchronously and must not call back into the Controller.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	s := c.snapshotLocked()
	c.notify.Lock()
	c.mu.Unlock()
	fn(s)
	c.notify.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// publishLocked must be called with c.mu held; it releases c.mu.
func (c *Controller) publishLocked() {
	s := c.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.notify.Lock()
	c.mu.Unlock()
	defer c.notify.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Select is the file-picker entry point.
func (c *Controller) Select(ctx context.Context, cand upload.Candidate) (<-chan Snapshot, error) {
	return c.submit(ctx, cand, "picker")
}

// Drop is the drag-and-drop entry point. It clears the dragging indicator.
func (c *Controller) Drop(ctx context.Context, cand upload.Candidate) (<-chan Snapshot, error) {
	if c.zone.Drop() {
		c.mu.Lock()
		c.publishLocked()
	}
	return c.submit(ctx, cand, "drop")
}

// Submit validates cand and starts a run. Validation errors leave the state
// untouched apart from UploadError. The returned channel receives the terminal
// snapshot and is closed; it is closed without a value if the run was superseded.
//
// The run is detached from ctx cancellation; only CancelAndRestart or Close stop it.
func (c *Controller) Submit(ctx context.Context, cand upload.Candidate) (<-chan Snapshot, error) {
	return c.submit(ctx, cand, "api")
}

func (c *Controller) submit(ctx context.Context, cand upload.Candidate, source string) (<-chan Snapshot, error) {
	meta, err := upload.Accept(cand, c.opts.MaxSizeBytes)
	if err != nil {
		var ve *upload.ValidationError
		if errors.As(err, &ve) {
			c.rejected(cand.Name(), ve, source)
		}
		return nil, err
	}
	if !upload.Accepts(meta.Name, meta.MIMEType) {
		c.log.Debug("file outside the picker filter", "file", meta.Name, "type", meta.MIMEType, "source", source)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	switch k := c.state.Kind; {
	case k == Loading && c.opts.Overlap == IgnoreWhileLoading:
		c.mu.Unlock()
		c.log.Info("upload ignored while loading", "file", meta.Name, "source", source)
		return nil, ErrBusy
	case k == Loading:
		c.log.Info("restarting pipeline", "previous_run", c.state.RunID, "file", meta.Name)
		c.cancel()
	case k.Terminal():
		c.mu.Unlock()
		return nil, ErrResultPending
	}

	c.gen++
	gen := c.gen
	id := uuid.NewString()
	base := logging.WithLogger(context.WithoutCancel(ctx), c.log)
	runLog := logging.WithFields(base, "run_id", id, "file", meta.Name)
	runCtx, cancel := context.WithCancel(logging.WithLogger(base, runLog))
	c.cancel = cancel
	c.start = c.opts.Clock()
	file := meta
	c.state = Snapshot{Kind: Loading, RunID: id, File: &file}
	done := make(chan Snapshot, 1)
	c.wg.Add(1)
	runLog.Info("pipeline started", "size", meta.SizeBytes, "type", meta.MIMEType, "source", source)
	c.publishLocked()

	go c.run(runCtx, gen, cand, done)
	return done, nil
}

// Reject records an upload that was refused before its bytes could be read,
// such as a request body over the transport limit. It sets UploadError like
// an oversized Submit and returns the same *upload.ValidationError.
func (c *Controller) Reject(name string, size int64, source string) error {
	ve := upload.NewTooLarge(size, c.opts.MaxSizeBytes)
	c.rejected(name, ve, source)
	return ve
}

func (c *Controller) rejected(name string, ve *upload.ValidationError, source string) {
	c.log.Warn("upload rejected", "file", name, "size", ve.Size, "limit", ve.Limit, "source", source)
	c.mu.Lock()
	c.state.UploadError = ve.Message
	c.publishLocked()
}

func (c *Controller) run(ctx context.Context, gen uint64, cand upload.Candidate, done chan<- Snapshot) {
	defer c.wg.Done()
	defer close(done)
	log := logging.FromContext(ctx)

	top, msg := c.process(ctx, cand)
	end := c.opts.Clock()

	c.mu.Lock()
	if gen != c.gen || c.state.Kind != Loading {
		c.mu.Unlock()
		log.Debug("discarding superseded run")
		return
	}
	c.cancel()
	elapsed := float64(end.Sub(c.start).Microseconds()) / 1000
	if elapsed < 0 {
		elapsed = 0
	}
	c.state.ProcessingTimeMs = &elapsed
	if top != nil {
		c.state.Kind = ShowingInsight
		c.state.Insight = top
		log.Info("insight found", "type", top.Type, "columns", top.Columns, "elapsed_ms", elapsed)
	} else {
		c.state.Kind = ShowingError
		c.state.Message = msg
		log.Warn("pipeline failed", "error", msg, "elapsed_ms", elapsed)
	}
	done <- c.snapshotLocked()
	c.publishLocked()
}

// process never panics; every failure becomes an Error message.
func (c *Controller) process(ctx context.Context, cand upload.Candidate) (top *analysis.Insight, msg string) {
	defer func() {
		if r := recover(); r != nil {
			top, msg = nil, msgFaultPrefix+fmt.Sprint(r)
		}
	}()

	raw, err := upload.ReadAll(cand)
	if err != nil {
		return nil, msgReadPrefix + err.Error()
	}
	ds, err := c.opts.Decoder.Decode(ctx, cand.Name(), raw)
	if err != nil {
		return nil, msgReadPrefix + err.Error()
	}
	if n := ds.Len(); n <= 1 {
		return nil, fmt.Sprintf(msgTooFewFormat, n)
	}
	logging.FromContext(ctx).Debug("decoded", "sheet", ds.Sheet, "rows", ds.Len(), "columns", len(ds.Columns))

	results, err := c.extract(ctx, ds)
	if err != nil {
		return nil, msgFaultPrefix + err.Error()
	}
	if len(results) == 0 {
		return nil, msgEmpty
	}
	best := results[0]
	return &best, ""
}

func (c *Controller) extract(ctx context.Context, ds *table.Dataset) (out []analysis.Insight, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%v", r)
		}
	}()
	return c.opts.Extractor.Extract(ctx, ds)
}

// Dismiss returns from Insight or Error to Idle and clears the file details.
func (c *Controller) Dismiss() error {
	c.mu.Lock()
	if !c.state.Kind.Terminal() {
		c.mu.Unlock()
		return ErrNothingToDismiss
	}
	c.log.Info("result dismissed", "run_id", c.state.RunID, "state", c.state.Kind.String())
	c.state = Snapshot{Kind: Idle}
	c.start = time.Time{}
	c.publishLocked()
	return nil
}

// DragEnter, DragOver and DragLeave toggle the dragging indicator. Entering is
// only shown while Idle.
func (c *Controller) DragEnter() { c.drag(c.zone.DragEnter) }
func (c *Controller) DragOver()  { c.drag(c.zone.DragOver) }
func (c *Controller) DragLeave() { c.drag(c.zone.DragLeave) }

func (c *Controller) drag(toggle func() bool) {
	c.mu.Lock()
	if c.state.Kind != Idle && !c.zone.Dragging() {
		c.mu.Unlock()
		return
	}
	if !toggle() {
		c.mu.Unlock()
		return
	}
	c.publishLocked()
}

// Close cancels any in-flight run and waits for it to finish. Later
// submissions fail with ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}
