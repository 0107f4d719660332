package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"photostudio/internal/domain"
	"photostudio/internal/imagecodec"
	"photostudio/internal/templates"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type editorFunc func(ctx context.Context, req domain.EditRequest) (domain.EditResult, error)

func (f editorFunc) Submit(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
	return f(ctx, req)
}

func okEditor(narrative string) editorFunc {
	return func(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
		return domain.EditResult{
			EncodedImage: imagecodec.ToEncoded(domain.Image{Data: []byte("edited"), MIMEType: "image/png"}),
			Narrative:    narrative,
		}, nil
	}
}

func readySession(t *testing.T, editor Editor) *Session {
	t.Helper()
	s := New("s1", editor, templates.Default())
	if err := s.SetImage(pngBytes, "image/png"); err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	s.SetInstruction("Make the sky look like a galaxy.")
	return s
}

func waitDone(t *testing.T, call *Call) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := call.Wait(ctx)
	if err != nil {
		t.Fatalf("call did not finish: %v", err)
	}
	return st
}

func TestGenerateSuccess(t *testing.T) {
	var got domain.EditRequest
	editor := editorFunc(func(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
		got = req
		return okEditor("Done")(ctx, req)
	})
	s := readySession(t, editor)

	st, err := s.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if st.Status != Succeeded {
		t.Fatalf("status = %s, want succeeded", st.Status)
	}
	if st.Result == nil || st.Result.Narrative != "Done" {
		t.Fatalf("unexpected result: %+v", st.Result)
	}
	if st.Error != "" {
		t.Fatalf("error should be empty on success, got %q", st.Error)
	}
	if got.MIMEType != "image/png" || got.Instruction != "Make the sky look like a galaxy." {
		t.Fatalf("unexpected request: %+v", got)
	}
	if strings.Contains(got.Payload, ",") || got.Payload != imagecodec.Payload(imagecodec.ToEncoded(domain.Image{Data: pngBytes, MIMEType: "image/png"})) {
		t.Fatalf("payload should be the bare base64 content, got %q", got.Payload)
	}
}

func TestGeneratePreconditions(t *testing.T) {
	var calls int32
	editor := editorFunc(func(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
		atomic.AddInt32(&calls, 1)
		return domain.EditResult{}, nil
	})

	tests := []struct {
		name  string
		setup func(*Session)
	}{
		{name: "no image", setup: func(s *Session) { s.SetInstruction("brighten") }},
		{name: "no instruction", setup: func(s *Session) { _ = s.SetImage(pngBytes, "image/png") }},
		{name: "blank instruction", setup: func(s *Session) {
			_ = s.SetImage(pngBytes, "image/png")
			s.SetInstruction("  \n\t")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New("s", editor, nil)
			tc.setup(s)
			before := s.Snapshot()
			_, err := s.Generate(context.Background())
			if !errors.Is(err, domain.ErrPrecondition) {
				t.Fatalf("expected ErrPrecondition, got %v", err)
			}
			after := s.Snapshot()
			if after.Status != Idle || after.Generation != before.Generation {
				t.Fatalf("state changed: %+v -> %+v", before, after)
			}
		})
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("editor called %d times", n)
	}
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "remote error", err: &domain.RemoteError{StatusCode: 400, Message: "API key not valid."}, want: "API key not valid."},
		{name: "empty response", err: &domain.EmptyResponseError{}, want: "The model did not return an edited image. Please try a different instruction."},
		{name: "text only", err: &domain.EmptyResponseError{Text: "I cannot do that."}, want: "The model did not return an image: I cannot do that."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := readySession(t, editorFunc(func(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
				return domain.EditResult{}, tc.err
			}))
			st, err := s.Generate(context.Background())
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if st.Status != Failed {
				t.Fatalf("status = %s, want failed", st.Status)
			}
			if st.Error != tc.want {
				t.Fatalf("error = %q, want %q", st.Error, tc.want)
			}
			if st.Result != nil {
				t.Fatalf("result must be absent on failure")
			}
		})
	}
}

func TestResultWithoutImageFails(t *testing.T) {
	s := readySession(t, editorFunc(func(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
		return domain.EditResult{Narrative: "only words"}, nil
	}))
	st, err := s.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if st.Status != Failed || !strings.Contains(st.Error, "only words") {
		t.Fatalf("unexpected state: %s %q", st.Status, st.Error)
	}
}

func TestStartWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	s := readySession(t, editorFunc(func(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
		<-release
		return okEditor("")(ctx, req)
	}))

	call, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st := s.Snapshot(); st.Status != InFlight {
		t.Fatalf("status = %s, want in_flight", st.Status)
	}
	if _, err := s.Start(context.Background()); !errors.Is(err, domain.ErrAlreadyInFlight) {
		t.Fatalf("expected ErrAlreadyInFlight, got %v", err)
	}
	close(release)
	if st := waitDone(t, call); st.Status != Succeeded {
		t.Fatalf("status = %s, want succeeded", st.Status)
	}
}

func TestStaleResponseIsDropped(t *testing.T) {
	release := make(chan struct{})
	s := readySession(t, editorFunc(func(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
		if req.MIMEType == "image/png" {
			// Ignores cancellation so the first reply arrives late.
			<-release
			return domain.EditResult{}, &domain.RemoteError{Message: "stale failure"}
		}
		return okEditor("fresh")(ctx, req)
	}))

	first, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.SetImage([]byte("GIF89a-second"), "image/gif"); err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	if st := s.Snapshot(); st.Status != Idle {
		t.Fatalf("status after new image = %s, want idle", st.Status)
	}

	second, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	st := waitDone(t, second)
	if st.Status != Succeeded || st.Result.Narrative != "fresh" {
		t.Fatalf("unexpected state after second call: %s %+v", st.Status, st.Result)
	}

	close(release)
	waitDone(t, first)
	st = s.Snapshot()
	if st.Status != Succeeded || st.Error != "" || st.Result.Narrative != "fresh" {
		t.Fatalf("stale reply overwrote state: %s %q", st.Status, st.Error)
	}
	if first.Generation() == second.Generation() {
		t.Fatalf("calls share a generation token")
	}
}

func TestCancelReturnsToIdle(t *testing.T) {
	cancelled := make(chan struct{})
	s := readySession(t, editorFunc(func(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
		<-ctx.Done()
		close(cancelled)
		return domain.EditResult{}, ctx.Err()
	}))

	call, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Cancel() {
		t.Fatalf("Cancel reported nothing to cancel")
	}
	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatalf("editor context was not cancelled")
	}
	waitDone(t, call)
	st := s.Snapshot()
	if st.Status != Idle || st.Result != nil || st.Error != "" {
		t.Fatalf("unexpected state after cancel: %+v", st)
	}
	if s.Cancel() {
		t.Fatalf("second Cancel should be a no-op")
	}
}

func TestGenerateContextDeadline(t *testing.T) {
	s := readySession(t, editorFunc(func(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
		<-ctx.Done()
		return domain.EditResult{}, ctx.Err()
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	st, err := s.Generate(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if st.Status != Idle {
		t.Fatalf("status = %s, want idle", st.Status)
	}
}

func TestCallTimeoutFails(t *testing.T) {
	editor := editorFunc(func(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
		<-ctx.Done()
		return domain.EditResult{}, &domain.RemoteError{Message: "The image service did not respond in time. Please try again.", Err: ctx.Err()}
	})
	s := New("s", editor, nil, WithTimeout(10*time.Millisecond))
	_ = s.SetImage(pngBytes, "image/png")
	s.SetInstruction("brighten")

	st, err := s.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if st.Status != Failed || !strings.Contains(st.Error, "did not respond in time") {
		t.Fatalf("unexpected state: %s %q", st.Status, st.Error)
	}
}

func TestSetImageRejectsEmptyFile(t *testing.T) {
	s := readySession(t, okEditor(""))
	before := s.Snapshot()
	if err := s.SetImage(nil, "image/png"); !errors.Is(err, domain.ErrUnsupportedInput) {
		t.Fatalf("expected ErrUnsupportedInput, got %v", err)
	}
	after := s.Snapshot()
	if !after.Original.Equal(*before.Original) || after.Generation != before.Generation {
		t.Fatalf("state changed after rejected upload")
	}
}

func TestSetImageClearsResultAndSetsNotice(t *testing.T) {
	s := readySession(t, okEditor("Done"))
	if _, err := s.Generate(context.Background()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := s.SetImage([]byte("not really an image"), ""); err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	st := s.Snapshot()
	if st.Status != Idle || st.Result != nil {
		t.Fatalf("new image must clear the result: %+v", st)
	}
	if st.Original.MIMEType != imagecodec.DefaultMIMEType {
		t.Fatalf("mime = %q, want default", st.Original.MIMEType)
	}
	if st.Notice == "" {
		t.Fatalf("expected a notice for a defaulted media type")
	}
	if st.Instruction != "Make the sky look like a galaxy." {
		t.Fatalf("instruction should survive a new image, got %q", st.Instruction)
	}
}

func TestLoadImage(t *testing.T) {
	s := New("s", okEditor(""), nil)
	if err := s.LoadImage(strings.NewReader(string(pngBytes)), "", 0); err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	st := s.Snapshot()
	if st.Original == nil || st.Original.MIMEType != "image/png" || st.Notice != "" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if err := s.LoadImage(strings.NewReader("0123456789"), "image/png", 4); !errors.Is(err, domain.ErrUnsupportedInput) {
		t.Fatalf("expected ErrUnsupportedInput for oversize, got %v", err)
	}
}

func TestApplyTemplate(t *testing.T) {
	s := New("s", okEditor(""), templates.Default())
	if err := s.ApplyTemplate("luxury-look"); err != nil {
		t.Fatalf("ApplyTemplate: %v", err)
	}
	want := "Enhance this image to give it a luxurious, high-end feel. Use deep, rich colors and elegant lighting effects."
	if got := s.Snapshot().Instruction; got != want {
		t.Fatalf("instruction = %q, want %q", got, want)
	}
	if err := s.ApplyTemplate("nope"); !errors.Is(err, domain.ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
	if got := s.Snapshot().Instruction; got != want {
		t.Fatalf("unknown template changed instruction to %q", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := readySession(t, okEditor(""))
	st := s.Snapshot()
	st.Original.Data[0] = 0
	if s.Snapshot().Original.Data[0] != pngBytes[0] {
		t.Fatalf("snapshot shares image bytes with the session")
	}
}

func TestCanGenerate(t *testing.T) {
	s := New("s", okEditor(""), nil)
	if s.Snapshot().CanGenerate() {
		t.Fatalf("empty session should not be generatable")
	}
	_ = s.SetImage(pngBytes, "image/png")
	s.SetInstruction("go")
	if !s.Snapshot().CanGenerate() {
		t.Fatalf("ready session should be generatable")
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		Idle:       "idle",
		Validating: "validating",
		InFlight:   "in_flight",
		Succeeded:  "succeeded",
		Failed:     "failed",
		Status(42): "unknown",
	}
	for status, want := range tests {
		if got := status.String(); got != want {
			t.Fatalf("Status(%d).String() = %q, want %q", int(status), got, want)
		}
	}
}
