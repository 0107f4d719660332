package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"photostudio/internal/domain"
	"photostudio/internal/imagecodec"
)

func solidPNG(t *testing.T, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestSyntheticTintsImage(t *testing.T) {
	s := NewSynthetic(0, nil)
	req := domain.EditRequest{Payload: solidPNG(t, color.RGBA{A: 255}), MIMEType: "image/png", Instruction: "Add a warm glow"}

	first, err := s.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	second, err := s.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if first.EncodedImage != second.EncodedImage {
		t.Fatalf("expected deterministic output")
	}
	if !strings.Contains(first.Narrative, "Add a warm glow") {
		t.Fatalf("narrative should mention the instruction: %q", first.Narrative)
	}

	out, err := imagecodec.FromEncoded(first.EncodedImage)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("result is not a png: %v", err)
	}
	if decoded.Bounds().Dx() != 4 || decoded.Bounds().Dy() != 4 {
		t.Fatalf("unexpected bounds: %v", decoded.Bounds())
	}
}

func TestSyntheticPlaceholderForUndecodableInput(t *testing.T) {
	s := NewSynthetic(0, nil)
	res, err := s.Submit(context.Background(), domain.EditRequest{Payload: "aGVsbG8=", MIMEType: "image/png", Instruction: "x"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	out, err := imagecodec.FromEncoded(res.EncodedImage)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("placeholder is not a png: %v", err)
	}
	if cfg.Width != 512 || cfg.Height != 512 {
		t.Fatalf("unexpected placeholder size %dx%d", cfg.Width, cfg.Height)
	}
}

func TestSyntheticHonoursCancellation(t *testing.T) {
	s := NewSynthetic(time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Submit(ctx, domain.EditRequest{Payload: "aGVsbG8=", Instruction: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSyntheticRejectsInvalidRequest(t *testing.T) {
	s := NewSynthetic(0, nil)
	if _, err := s.Submit(context.Background(), domain.EditRequest{Payload: "aGVsbG8="}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := s.Submit(context.Background(), domain.EditRequest{Payload: "***", Instruction: "x"}); !errors.Is(err, domain.ErrMalformedEncoding) {
		t.Fatalf("expected ErrMalformedEncoding, got %v", err)
	}
}
