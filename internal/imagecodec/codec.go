// Package imagecodec converts uploaded files into domain images and between
// the raw and data URL representations the model and the UI exchange.
package imagecodec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"photostudio/internal/domain"
)

const (
	// DefaultMIMEType is assumed when neither the upload nor its content
	// identify a media type.
	DefaultMIMEType = "image/png"
	// DefaultMaxBytes caps uploads read through ReadUserFile.
	DefaultMaxBytes int64 = 10 << 20

	octetStream = "application/octet-stream"
)

// ErrTooLarge marks uploads rejected by ReadUserFile's size limit. It is
// always accompanied by domain.ErrUnsupportedInput.
var ErrTooLarge = errors.New("file too large")

// DecodeUserFile wraps uploaded bytes and their declared media type into an
// image. An empty or generic declared type is resolved by sniffing the
// content, falling back to DefaultMIMEType.
func DecodeUserFile(data []byte, declaredMIME string) (domain.Image, error) {
	if len(data) == 0 {
		return domain.Image{}, fmt.Errorf("%w: file is empty", domain.ErrUnsupportedInput)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return domain.Image{Data: buf, MIMEType: resolveMIME(declaredMIME, buf)}, nil
}

// ReadUserFile reads at most limit bytes from r and decodes them like
// DecodeUserFile. A non-positive limit uses DefaultMaxBytes.
func ReadUserFile(r io.Reader, declaredMIME string, limit int64) (domain.Image, error) {
	if r == nil {
		return domain.Image{}, fmt.Errorf("%w: no file provided", domain.ErrUnsupportedInput)
	}
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: read file: %v", domain.ErrUnsupportedInput, err)
	}
	if int64(len(data)) > limit {
		return domain.Image{}, fmt.Errorf("%w: %w: limit is %d bytes", domain.ErrUnsupportedInput, ErrTooLarge, limit)
	}
	return DecodeUserFile(data, declaredMIME)
}

// MIMEDefaulted reports whether img's media type was coerced to the default
// rather than declared by the uploader or detected from the content.
func MIMEDefaulted(declaredMIME string, img domain.Image) bool {
	if normalizeMIME(declaredMIME) != "" {
		return false
	}
	return img.MIMEType == DefaultMIMEType && sniffImage(img.Data) == ""
}

// ToEncoded renders img as a data URL: "data:<mime>;base64,<payload>".
func ToEncoded(img domain.Image) string {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// FromEncoded is the inverse of ToEncoded. Strings without a header are
// treated as a bare payload of type DefaultMIMEType.
func FromEncoded(encoded string) (domain.Image, error) {
	return FromEncodedAs(encoded, DefaultMIMEType)
}

// FromEncodedAs decodes an encoded image. Only the text after the last comma
// is treated as payload; the media type comes from a data URL header when
// present and from fallbackMIME otherwise.
func FromEncodedAs(encoded, fallbackMIME string) (domain.Image, error) {
	header, payload := split(strings.TrimSpace(encoded))
	mimeType := headerMIME(header)
	if mimeType == "" {
		mimeType = normalizeMIME(fallbackMIME)
	}
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	if payload == "" {
		return domain.Image{}, fmt.Errorf("%w: empty payload", domain.ErrMalformedEncoding)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: %v", domain.ErrMalformedEncoding, err)
	}
	return domain.Image{Data: data, MIMEType: mimeType}, nil
}

// Payload strips the header of an encoded image, leaving the base64 text the
// model expects.
func Payload(encoded string) string {
	_, payload := split(strings.TrimSpace(encoded))
	return payload
}

// MIMEType returns the media type declared in a data URL header, if any.
func MIMEType(encoded string) string {
	header, _ := split(strings.TrimSpace(encoded))
	return headerMIME(header)
}

// Extension maps a media type to a file extension without the dot.
func Extension(mimeType string) string {
	switch normalizeMIME(mimeType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/heic":
		return "heic"
	default:
		return "png"
	}
}

func split(encoded string) (string, string) {
	idx := strings.LastIndex(encoded, ",")
	if idx < 0 {
		return "", encoded
	}
	return encoded[:idx], encoded[idx+1:]
}

func headerMIME(header string) string {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(strings.ToLower(header), "data:") {
		return ""
	}
	header = header[len("data:"):]
	if idx := strings.Index(header, ";"); idx >= 0 {
		header = header[:idx]
	}
	return strings.TrimSpace(header)
}

func resolveMIME(declared string, data []byte) string {
	if m := normalizeMIME(declared); m != "" {
		return m
	}
	if sniffed := sniffImage(data); sniffed != "" {
		return sniffed
	}
	return DefaultMIMEType
}

func sniffImage(data []byte) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return ""
}

// normalizeMIME lower-cases a media type and drops its parameters. Generic
// binary types count as undeclared.
func normalizeMIME(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(value)
	if err != nil {
		if errors.Is(err, mime.ErrInvalidMediaParameter) && parsed != "" {
			value = parsed
		} else {
			value = strings.ToLower(strings.TrimSpace(strings.SplitN(value, ";", 2)[0]))
		}
	} else {
		value = parsed
	}
	if value == octetStream {
		return ""
	}
	return value
}
