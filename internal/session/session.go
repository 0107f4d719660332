// Package session holds the edit-request state machine that sits between a
// presentation adapter and the image editor.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"photostudio/internal/domain"
	"photostudio/internal/imagecodec"
	"photostudio/internal/infra"
	"photostudio/internal/templates"
)

// Editor submits one edit request to an image model.
type Editor interface {
	Submit(ctx context.Context, req domain.EditRequest) (domain.EditResult, error)
}

// Option customises sessions and registries.
type Option func(*options)

type options struct {
	logger  *infra.Logger
	now     func() time.Time
	timeout time.Duration
}

// WithLogger sets the logger used for transition and failure logs.
func WithLogger(l *infra.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTimeout bounds each editor call. Zero leaves the editor's own timeout in charge.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func buildOptions(opts []Option) options {
	o := options{logger: infra.DiscardLogger(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Session is one user's edit workflow. All methods are safe for concurrent use.
type Session struct {
	id      string
	editor  Editor
	catalog *templates.Catalog
	opts    options

	mu          sync.Mutex
	status      Status
	original    *domain.Image
	instruction string
	result      *domain.EditResult
	errMsg      string
	notice      string
	generation  uint64
	updatedAt   time.Time
	cancel      context.CancelFunc
}

// New creates an idle session with no image and no instruction.
func New(id string, editor Editor, catalog *templates.Catalog, opts ...Option) *Session {
	if catalog == nil {
		catalog = templates.Default()
	}
	o := buildOptions(opts)
	return &Session{
		id:        id,
		editor:    editor,
		catalog:   catalog,
		opts:      o,
		updatedAt: o.now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Catalog returns the preset catalog the session selects templates from.
func (s *Session) Catalog() *templates.Catalog {
	return s.catalog
}

// SetImage replaces the original image. Any in-flight request is abandoned
// and the session returns to Idle. On error the state is left untouched.
func (s *Session) SetImage(data []byte, declaredMIME string) error {
	img, err := imagecodec.DecodeUserFile(data, declaredMIME)
	if err != nil {
		return err
	}
	s.storeImage(img, imagecodec.MIMEDefaulted(declaredMIME, img))
	return nil
}

// LoadImage reads at most limit bytes from r and stores them like SetImage.
func (s *Session) LoadImage(r io.Reader, declaredMIME string, limit int64) error {
	img, err := imagecodec.ReadUserFile(r, declaredMIME, limit)
	if err != nil {
		return err
	}
	s.storeImage(img, imagecodec.MIMEDefaulted(declaredMIME, img))
	return nil
}

func (s *Session) storeImage(img domain.Image, defaulted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abortLocked()
	s.original = &img
	s.notice = ""
	if defaulted {
		s.notice = fmt.Sprintf("The file type could not be determined; it was sent as %s.", img.MIMEType)
		s.opts.logger.Warn().
			Str("session_id", s.id).
			Str("mime", img.MIMEType).
			Msg("session: media type defaulted")
	}
	s.commitLocked(Idle, nil, "")
}

// SetInstruction overwrites the instruction without changing status.
func (s *Session) SetInstruction(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruction = text
	s.updatedAt = s.opts.now()
}

// ApplyTemplate replaces the instruction with a preset's prompt.
func (s *Session) ApplyTemplate(id string) error {
	prompt, err := s.catalog.Select(id)
	if err != nil {
		return err
	}
	s.SetInstruction(prompt)
	return nil
}

// Start moves the session through Validating to InFlight and submits the
// request on its own goroutine. The call outlives ctx's cancellation but
// keeps its values; use Call.Cancel or Session.Cancel to abort it.
func (s *Session) Start(ctx context.Context) (*Call, error) {
	s.mu.Lock()
	if s.status.Busy() {
		s.mu.Unlock()
		return nil, domain.ErrAlreadyInFlight
	}
	if s.original == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: no image uploaded", domain.ErrPrecondition)
	}
	if !hasText(s.instruction) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: instruction is empty", domain.ErrPrecondition)
	}

	s.generation++
	gen := s.generation
	img := *s.original
	instruction := s.instruction
	s.commitLocked(Validating, nil, "")
	s.mu.Unlock()

	encoded := imagecodec.ToEncoded(img)
	req := domain.EditRequest{
		Payload:     imagecodec.Payload(encoded),
		MIMEType:    imagecodec.MIMEType(encoded),
		Instruction: instruction,
	}

	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if s.opts.timeout > 0 {
		var cancelTimeout context.CancelFunc
		callCtx, cancelTimeout = context.WithTimeout(callCtx, s.opts.timeout)
		parent := cancel
		cancel = func() {
			cancelTimeout()
			parent()
		}
	}

	s.mu.Lock()
	if s.generation != gen || s.status != Validating {
		s.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: session changed while preparing the request", domain.ErrPrecondition)
	}
	s.cancel = cancel
	s.commitLocked(InFlight, nil, "")
	s.mu.Unlock()

	call := &Call{session: s, generation: gen, done: make(chan struct{})}
	go s.run(callCtx, cancel, call, req)
	return call, nil
}

// Generate is the blocking form of Start. If ctx ends first the request is
// cancelled and ctx's error is returned.
func (s *Session) Generate(ctx context.Context) (State, error) {
	call, err := s.Start(ctx)
	if err != nil {
		return s.Snapshot(), err
	}
	select {
	case <-call.Done():
		return s.Snapshot(), nil
	case <-ctx.Done():
		call.Cancel()
		return s.Snapshot(), ctx.Err()
	}
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, call *Call, req domain.EditRequest) {
	defer close(call.done)
	defer cancel()

	start := s.opts.now()
	res, err := s.editor.Submit(ctx, req)
	if err == nil && strings.TrimSpace(res.EncodedImage) == "" {
		err = &domain.EmptyResponseError{Text: res.Narrative}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != call.generation || s.status != InFlight {
		s.opts.logger.Debug().
			Str("session_id", s.id).
			Uint64("generation", call.generation).
			Msg("session: dropping stale response")
		return
	}
	s.cancel = nil

	switch {
	case err == nil:
		s.commitLocked(Succeeded, &res, "")
	case errors.Is(err, context.Canceled):
		s.commitLocked(Idle, nil, "")
	default:
		s.opts.logger.Warn().
			Err(err).
			Str("session_id", s.id).
			Uint64("generation", call.generation).
			Dur("elapsed", s.opts.now().Sub(start)).
			Msg("session: edit failed")
		s.commitLocked(Failed, nil, domain.DisplayMessage(err))
	}
}

// Cancel abandons an in-flight request and returns the session to Idle. It
// reports whether anything was cancelled.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked()
}

func (s *Session) cancelGeneration(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	return s.cancelLocked()
}

func (s *Session) cancelLocked() bool {
	if !s.status.Busy() {
		return false
	}
	s.abortLocked()
	s.commitLocked(Idle, nil, "")
	return true
}

// Reset abandons any in-flight request and clears the session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked()
	s.original = nil
	s.instruction = ""
	s.notice = ""
	s.commitLocked(Idle, nil, "")
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:          s.id,
		Status:      s.status,
		Instruction: s.instruction,
		Error:       s.errMsg,
		Notice:      s.notice,
		Generation:  s.generation,
		UpdatedAt:   s.updatedAt,
	}
	if s.original != nil {
		img := s.original.Clone()
		st.Original = &img
	}
	if s.result != nil {
		res := *s.result
		st.Result = &res
	}
	return st
}

func (s *Session) lastActive() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt, s.status.Busy()
}

// abortLocked cancels the running call, if any, and invalidates its token.
func (s *Session) abortLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.status.Busy() {
		s.generation++
	}
}

// commitLocked is the only place status changes; it keeps result and error
// consistent with the status.
func (s *Session) commitLocked(status Status, result *domain.EditResult, errMsg string) {
	s.status = status
	s.result = nil
	s.errMsg = ""
	switch status {
	case Succeeded:
		s.result = result
	case Failed:
		s.errMsg = errMsg
	}
	s.updatedAt = s.opts.now()
	s.opts.logger.Debug().
		Str("session_id", s.id).
		Uint64("generation", s.generation).
		Str("status", status.String()).
		Msg("session: transition")
}

func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}
