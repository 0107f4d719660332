package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strconv"
	"strings"
	"time"

	"photostudio/internal/domain"
	"photostudio/internal/imagecodec"
	"photostudio/internal/infra"
)

// Synthetic is an offline editor for local development and demos. It tints
// the uploaded picture with a colour derived from the instruction so repeated
// requests are deterministic and no API key is needed.
type Synthetic struct {
	latency time.Duration
	logger  *infra.Logger
}

// NewSynthetic returns an offline editor that waits latency before replying.
func NewSynthetic(latency time.Duration, logger *infra.Logger) *Synthetic {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Synthetic{latency: latency, logger: logger}
}

func (s *Synthetic) Submit(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
	if err := req.Validate(); err != nil {
		return domain.EditResult{}, err
	}
	src, err := imagecodec.FromEncodedAs(req.Payload, req.MIMEType)
	if err != nil {
		return domain.EditResult{}, fmt.Errorf("synthetic: %w", err)
	}

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.EditResult{}, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return domain.EditResult{}, err
	}

	seed := deterministicSeed(req.Instruction, src.MIMEType, len(src.Data))
	data, err := tintImage(src.Data, colorFromSeed(seed, 0))
	if err != nil {
		s.logger.Debug().Err(err).Str("mime", src.MIMEType).Msg("synthetic: input not decodable, rendering placeholder")
		data = renderSyntheticImage(512, 512, seed)
	}
	if len(data) == 0 {
		return domain.EditResult{}, &domain.EmptyResponseError{}
	}

	s.logger.Debug().Str("seed", seed).Int("bytes", len(data)).Msg("synthetic: generated edit")
	return domain.EditResult{
		EncodedImage: imagecodec.ToEncoded(domain.Image{Data: data, MIMEType: "image/png"}),
		Narrative:    fmt.Sprintf("Offline preview for %q (seed %s). Configure an image model for real edits.", strings.TrimSpace(req.Instruction), seed),
	}, nil
}

// tintImage blends every pixel 35% towards tint and re-encodes as PNG.
func tintImage(data []byte, tint color.RGBA) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := dst.RGBAAt(x, y)
			dst.SetRGBA(x, y, color.RGBA{
				R: blend(px.R, tint.R),
				G: blend(px.G, tint.G),
				B: blend(px.B, tint.B),
				A: px.A,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func blend(base, tint uint8) uint8 {
	return uint8((int(base)*65 + int(tint)*35) / 100)
}

func renderSyntheticImage(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height; y++ {
			xx := x + y
			if xx >= width {
				break
			}
			img.Set(xx, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: parseHexByte(segment[0:2]), G: parseHexByte(segment[2:4]), B: parseHexByte(segment[4:6]), A: 255}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
