package form

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"eyecheck-web/internal/predict"
)

var errEmptyResult = errors.New("empty prediction response")

// Classifier sends an upload to the prediction service.
type Classifier interface {
	Classify(ctx context.Context, upload predict.Upload) (*predict.Result, error)
}

// State is the complete form state. Render derives the page from it.
type State struct {
	File           *File
	FileName       string
	PreviewURL     string
	PreviewPending bool
	Result         *predict.Result
	Error          string
	Loading        bool
}

// Snapshot is the persistable part of State. Loading is kept for display
// only; a restored controller never resumes a request.
type Snapshot struct {
	File       *File           `json:"file,omitempty"`
	FileName   string          `json:"file_name"`
	PreviewURL string          `json:"preview_url,omitempty"`
	Result     *predict.Result `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Loading    bool            `json:"loading"`
}

type Options struct {
	// ClearResultOnFailure drops a stale result when a later submission
	// fails. Off by default: the previous result stays on screen next to the
	// new error.
	ClearResultOnFailure bool
	// Observer receives a snapshot after every applied transition, in order.
	Observer func(Snapshot)
	Logger   *slog.Logger
}

// Controller owns one form's state. Transitions are applied atomically under
// mu; async completions are applied only while their generation is current.
type Controller struct {
	mu       sync.Mutex
	notifyMu sync.Mutex

	classifier Classifier
	opts       Options
	logger     *slog.Logger

	state     State
	selectGen uint64
	submitGen uint64
	closed    bool

	baseCtx       context.Context
	cancelBase    context.CancelFunc
	cancelPreview context.CancelFunc
	cancelSubmit  context.CancelFunc

	wg sync.WaitGroup
}

func NewController(classifier Classifier, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		classifier: classifier,
		opts:       opts,
		logger:     logger,
		state:      State{FileName: NoFileSelected},
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// Restore builds a controller from a snapshot. A missing preview for a
// restored file is read again.
func Restore(classifier Classifier, snap Snapshot, opts Options) *Controller {
	c := NewController(classifier, opts)
	c.state = State{
		File:       snap.File,
		FileName:   snap.FileName,
		PreviewURL: snap.PreviewURL,
		Result:     snap.Result,
		Error:      snap.Error,
	}
	if c.state.FileName == "" {
		c.state.FileName = NoFileSelected
	}
	if c.state.File != nil && c.state.PreviewURL == "" {
		c.mu.Lock()
		c.selectGen++
		c.state.PreviewPending = true
		c.startPreviewLocked(c.selectGen, *c.state.File, nil)
		c.mu.Unlock()
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) View() View {
	return Render(c.State())
}

// Select makes file the current selection, clears any result and error, and
// starts reading the preview in the background. The returned channel closes
// once that read has finished, whether or not it was still current.
func (c *Controller) Select(file File) <-chan struct{} {
	done := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(done)
		return done
	}
	c.selectGen++
	selected := file
	c.state.File = &selected
	c.state.FileName = selected.Name
	c.state.Result = nil
	c.state.Error = ""
	c.state.PreviewPending = true
	c.startPreviewLocked(c.selectGen, selected, done)
	c.unlockAndNotify()

	return done
}

func (c *Controller) startPreviewLocked(gen uint64, file File, done chan struct{}) {
	if c.cancelPreview != nil {
		c.cancelPreview()
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancelPreview = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if done != nil {
			defer close(done)
		}
		defer cancel()
		url, err := readPreview(ctx, file)
		c.applyPreview(gen, url, err)
	}()
}

func (c *Controller) applyPreview(gen uint64, url string, err error) {
	c.mu.Lock()
	if c.closed || gen != c.selectGen {
		c.mu.Unlock()
		c.logger.Debug("discard superseded preview", "generation", gen)
		return
	}
	c.cancelPreview = nil
	c.state.PreviewPending = false
	if err != nil {
		c.logger.Warn("read preview failed", "file", c.state.FileName, "error", err)
	} else {
		c.state.PreviewURL = url
	}
	c.unlockAndNotify()
}

// Submit sends the selected file to the classifier in the background. With
// no file selected it sets the validation message, makes no request and
// returns a *ValidationError with an already closed channel. Otherwise the
// channel closes when the request has finished and its outcome, if still
// current, has been applied.
func (c *Controller) Submit() (<-chan struct{}, error) {
	done := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(done)
		return done, context.Canceled
	}
	if c.state.File == nil {
		c.state.Error = MsgNoFile
		c.unlockAndNotify()
		close(done)
		return done, &ValidationError{Message: MsgNoFile}
	}

	c.submitGen++
	gen := c.submitGen
	selectGen := c.selectGen
	upload := c.state.File.upload()

	if c.cancelSubmit != nil {
		c.cancelSubmit()
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancelSubmit = cancel

	c.state.Loading = true
	c.state.Error = ""
	c.unlockAndNotify()

	c.logger.Info("submit image", "file", upload.Name, "bytes", len(upload.Data), "generation", gen)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer cancel()
		result, err := c.classifier.Classify(ctx, upload)
		c.applyOutcome(gen, selectGen, result, err)
	}()

	return done, nil
}

func (c *Controller) applyOutcome(gen, selectGen uint64, result *predict.Result, err error) {
	c.mu.Lock()
	if c.closed || gen != c.submitGen {
		c.mu.Unlock()
		c.logger.Debug("discard superseded submission", "generation", gen)
		return
	}
	c.cancelSubmit = nil
	c.state.Loading = false

	// a newer selection owns result and error now
	if selectGen != c.selectGen {
		c.unlockAndNotify()
		c.logger.Debug("discard outcome for replaced file", "generation", gen)
		return
	}

	if err == nil && result == nil {
		err = errEmptyResult
	}
	if err != nil {
		err = classifyError(err)
		c.state.Error = DisplayMessage(err)
		if c.opts.ClearResultOnFailure {
			c.state.Result = nil
		}
		c.unlockAndNotify()
		c.logger.Warn("classification failed", "generation", gen, "error", err)
		return
	}

	c.state.Result = result
	c.unlockAndNotify()
	c.logger.Info("classification done", "generation", gen, "status", result.Status, "class", result.Class)
}

// Close cancels any in-flight preview read or request. Their outcomes are
// dropped. Close does not wait; use Wait for that.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state.Loading = false
	c.state.PreviewPending = false
	c.mu.Unlock()
	c.cancelBase()
}

// Wait blocks until all background reads and requests have returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// unlockAndNotify must be called with mu held. It releases mu and hands the
// new snapshot to the observer. notifyMu is taken before mu is released so
// observers see transitions in the order they were applied.
func (c *Controller) unlockAndNotify() {
	if c.opts.Observer == nil {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	c.opts.Observer(snap)
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		File:       c.state.File,
		FileName:   c.state.FileName,
		PreviewURL: c.state.PreviewURL,
		Result:     c.state.Result,
		Error:      c.state.Error,
		Loading:    c.state.Loading,
	}
}
