package qwen

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
	defaultBaseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultModel   = "qwen-image-edit"
	generationPath = "/services/aigc/multimodal-generation/generation"

	maxImageBytes = 32 << 20
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("qwen: api key is required")

// Options configures the DashScope Qwen client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	NegativePrompt string
	Watermark      bool
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client submits image edits to the DashScope Qwen image-edit API.
type Client struct {
	apiKey         string
	baseURL        string
	model          string
	negativePrompt string
	watermark      bool
	httpClient     *http.Client
	logger         *infra.Logger
}

type generationRequest struct {
	Model      string           `json:"model"`
	Input      generationInput  `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type generationParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Watermark      *bool  `json:"watermark,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Content []generationContent `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
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
		apiKey:         apiKey,
		baseURL:        baseURL,
		model:          model,
		negativePrompt: strings.TrimSpace(opts.NegativePrompt),
		watermark:      opts.Watermark,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Submit invokes the DashScope API once, downloads the returned image and
// hands it back as a data URL.
func (c *Client) Submit(ctx context.Context, req domain.EditRequest) (domain.EditResult, error) {
	if err := req.Validate(); err != nil {
		return domain.EditResult{}, err
	}
	mimeType := strings.TrimSpace(req.MIMEType)
	if mimeType == "" {
		mimeType = imagecodec.DefaultMIMEType
	}

	watermark := c.watermark
	payload := generationRequest{
		Model: c.model,
		Input: generationInput{
			Messages: []generationMessage{{
				Role: "user",
				Content: []generationContent{
					{Image: "data:" + mimeType + ";base64," + strings.TrimSpace(req.Payload)},
					{Text: req.Instruction},
				},
			}},
		},
		Parameters: generationParams{NegativePrompt: c.negativePrompt, Watermark: &watermark},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.EditResult{}, fmt.Errorf("qwen: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generationPath, bytes.NewReader(body))
	if err != nil {
		return domain.EditResult{}, fmt.Errorf("qwen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.EditResult{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return domain.EditResult{}, transportError(ctx, err)
	}

	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return domain.EditResult{}, &domain.RemoteError{StatusCode: resp.StatusCode, Message: detail.Message, Err: fmt.Errorf("qwen: %s", detail.Code)}
		}
		return domain.EditResult{}, &domain.RemoteError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("The image service returned %d %s.", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.EditResult{}, &domain.RemoteError{StatusCode: resp.StatusCode, Message: "The image service sent a malformed reply.", Err: err}
	}
	if decoded.Code != "" {
		return domain.EditResult{}, &domain.RemoteError{StatusCode: resp.StatusCode, Message: decoded.Message, Err: fmt.Errorf("qwen: %s", decoded.Code)}
	}

	imageURL, narrative := firstImage(decoded)
	if imageURL == "" {
		return domain.EditResult{}, &domain.EmptyResponseError{Text: narrative}
	}
	data, format, err := c.download(ctx, imageURL)
	if err != nil {
		return domain.EditResult{}, err
	}

	c.logger.Debug().
		Str("model", c.model).
		Str("request_id", decoded.RequestID).
		Dur("elapsed", time.Since(start)).
		Msg("qwen: edit completed")
	return domain.EditResult{
		EncodedImage: imagecodec.ToEncoded(domain.Image{Data: data, MIMEType: format}),
		Narrative:    narrative,
	}, nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", &domain.RemoteError{Message: "The image service returned an invalid image link.", Err: fmt.Errorf("qwen: invalid image url: %s", imageURL)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", transportError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", &domain.RemoteError{StatusCode: resp.StatusCode, Message: "The edited image could not be downloaded."}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", transportError(ctx, err)
	}
	if len(data) == 0 {
		return nil, "", &domain.EmptyResponseError{}
	}
	img, err := imagecodec.DecodeUserFile(data, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, "", &domain.EmptyResponseError{}
	}
	return img.Data, img.MIMEType, nil
}

func firstImage(resp generationResponse) (string, string) {
	var (
		imageURL string
		texts    []string
	)
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content.Image); u != "" && imageURL == "" {
				imageURL = u
			}
			if text := strings.TrimSpace(content.Text); text != "" {
				texts = append(texts, text)
			}
		}
	}
	return imageURL, strings.Join(texts, "\n\n")
}

// transportError keeps caller cancellation distinguishable from remote failures.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return fmt.Errorf("qwen: %w", ctxErr)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.RemoteError{Message: "The image service did not respond in time. Please try again.", Err: err}
	}
	return &domain.RemoteError{Message: "Could not reach the image service. Please try again.", Err: err}
}
