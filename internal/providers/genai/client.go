package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"photostudio/internal/domain"
	"photostudio/internal/imagecodec"
	"photostudio/internal/infra"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash-image-preview"
	defaultTimeout = 60 * time.Second

	maxReplyBytes = 64 << 20
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("genai: api key is required")

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client submits image edits to Gemini's generateContent endpoint. Each
// Submit performs exactly one HTTP call; retries are left to the caller.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	Thought    bool              `json:"thought,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount     int      `json:"candidateCount,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; one with the configured timeout will be created.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Submit sends the image and instruction to the model and returns the edited
// image with any narrative text. Invalid requests fail before any network I/O.
func (c *Client) Submit(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
	if err := req.Validate(); err != nil {
		return domain.EditResult{}, err
	}
	mimeType := strings.TrimSpace(req.MIMEType)
	if mimeType == "" {
		mimeType = imagecodec.DefaultMIMEType
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{MimeType: mimeType, Data: strings.TrimSpace(req.Payload)}},
				{Text: req.Instruction},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}

	start := time.Now()
	c.logger.Debug().
		Str("model", c.model).
		Str("mime", mimeType).
		Int("payload_bytes", len(req.Payload)).
		Msg("genai: submitting edit")

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		c.logger.Warn().Err(err).Str("model", c.model).Dur("elapsed", time.Since(start)).Msg("genai: edit failed")
		return domain.EditResult{}, err
	}

	result, err := c.parseResponse(ctx, response)
	if err != nil {
		c.logger.Warn().Err(err).Str("model", c.model).Msg("genai: unusable reply")
		return domain.EditResult{}, err
	}

	c.logger.Debug().
		Str("model", c.model).
		Dur("elapsed", time.Since(start)).
		Bool("narrative", result.Narrative != "").
		Msg("genai: edit completed")
	return result, nil
}

func (c *Client) parseResponse(ctx context.Context, response geminiGenerateContentResponse) (domain.EditResult, error) {
	if fb := response.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return domain.EditResult{}, &domain.RemoteError{
			Message: fmt.Sprintf("The request was blocked by the model (%s). Try a different photo or instruction.", fb.BlockReason),
		}
	}

	var (
		encoded   string
		narrative []string
		stopped   string
	)
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			if encoded == "" {
				img, ok, err := c.partImage(ctx, part)
				if err != nil {
					return domain.EditResult{}, err
				}
				if ok {
					encoded = imagecodec.ToEncoded(img)
					continue
				}
			}
			if text := strings.TrimSpace(part.Text); text != "" {
				narrative = append(narrative, text)
			}
		}
		if reason := candidate.FinishReason; reason != "" && reason != "STOP" {
			stopped = reason
		}
		if encoded != "" || len(narrative) > 0 {
			break
		}
	}

	text := strings.Join(narrative, "\n\n")
	if encoded == "" {
		if text == "" && stopped != "" {
			text = fmt.Sprintf("generation stopped (%s)", stopped)
		}
		return domain.EditResult{}, &domain.EmptyResponseError{Text: text}
	}
	return domain.EditResult{EncodedImage: encoded, Narrative: text}, nil
}

func (c *Client) partImage(ctx context.Context, part geminiPart) (domain.Image, bool, error) {
	if part.InlineData != nil && part.InlineData.Data != "" {
		img, err := imagecodec.FromEncodedAs(part.InlineData.Data, part.InlineData.MimeType)
		if err != nil {
			return domain.Image{}, false, &domain.RemoteError{Message: "The image service returned an unreadable image.", Err: err}
		}
		return img, true, nil
	}

	if part.FileData != nil && part.FileData.FileURI != "" {
		data, mime, err := c.downloadFile(ctx, part.FileData.FileURI)
		if err != nil {
			return domain.Image{}, false, err
		}
		mimeType := firstNonEmpty(part.FileData.MimeType, mime, imagecodec.DefaultMIMEType)
		return domain.Image{Data: data, MIMEType: mimeType}, true, nil
	}

	return domain.Image{}, false, nil
}

func (c *Client) invokeGemini(ctx context.Context, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("genai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("genai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &domain.RemoteError{
			StatusCode: resp.StatusCode,
			Message:    "The image service sent a malformed reply.",
			Err:        err,
		}
	}
	return nil
}

func (c *Client) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("genai: create download request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	blob, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, "", transportError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", statusError(resp.StatusCode, blob)
	}
	if len(blob) == 0 {
		return nil, "", &domain.RemoteError{StatusCode: resp.StatusCode, Message: "The image service returned an empty file."}
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

// transportError classifies a failed round trip. Caller cancellation is
// returned unchanged so sessions can tell it apart from remote failures.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return fmt.Errorf("genai: %w", ctxErr)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.RemoteError{
			Message: "The image service did not respond in time. Please try again.",
			Err:     err,
		}
	}
	return &domain.RemoteError{
		Message: "Could not reach the image service. Please try again.",
		Err:     err,
	}
}

func statusError(status int, body []byte) error {
	var apiErr geminiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && strings.TrimSpace(apiErr.Error.Message) != "" {
		return &domain.RemoteError{StatusCode: status, Message: strings.TrimSpace(apiErr.Error.Message)}
	}
	msg := fmt.Sprintf("The image service returned %d %s.", status, http.StatusText(status))
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 && !strings.HasPrefix(text, "<") {
		msg = fmt.Sprintf("The image service returned %d: %s", status, text)
	}
	return &domain.RemoteError{StatusCode: status, Message: msg}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
