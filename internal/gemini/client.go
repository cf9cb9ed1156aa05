package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"foto-produk-maker/internal/prompt"
)

const (
	defaultPromptModel = "gemini-3-flash-preview"
	defaultImageModel  = "gemini-2.5-flash-image"
	defaultMimeType    = "image/png"
)

var (
	ErrNoImagePayload = errors.New("model returned no image")
	ErrInvalidImage   = errors.New("image payload is not valid base64")
)

type Options struct {
	APIKey            string
	BaseURL           string
	APIVersion        string
	PromptModel       string
	ImageModel        string
	RequestsPerMinute int
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// contentGenerator is the slice of *genai.Models the client needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	models      contentGenerator
	promptModel string
	imageModel  string
	limiter     *rate.Limiter
	logger      *slog.Logger
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is empty")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL + "/",
			APIVersion: apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newClient(gc.Models, opts), nil
}

func newClient(models contentGenerator, opts Options) *Client {
	promptModel := strings.TrimSpace(opts.PromptModel)
	if promptModel == "" {
		promptModel = defaultPromptModel
	}

	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = defaultImageModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		burst := opts.RequestsPerMinute
		if burst > 3 {
			burst = 3
		}
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), burst)
	}

	return &Client{
		models:      models,
		promptModel: promptModel,
		imageModel:  imageModel,
		limiter:     limiter,
		logger:      logger,
	}
}

// DescribeAndPrompt asks the text model for a staging prompt for the
// pictured product.
func (c *Client) DescribeAndPrompt(ctx context.Context, imageBase64, mimeType string) (string, error) {
	imgPart, err := inlineImage(imageBase64, mimeType)
	if err != nil {
		return "", err
	}

	resp, err := c.generate(ctx, c.promptModel, []*genai.Part{imgPart, {Text: prompt.AutoPromptInstruction}})
	if err != nil {
		return "", fmt.Errorf("auto prompt: %w", err)
	}

	text := prompt.Clean(extractText(resp))
	if text == "" {
		return prompt.AutoPromptFallback, nil
	}
	return text, nil
}

// Transform re-renders the product and returns the new image as a data URI.
func (c *Client) Transform(ctx context.Context, imageBase64, mimeType, stylePrompt string) (string, error) {
	imgPart, err := inlineImage(imageBase64, mimeType)
	if err != nil {
		return "", err
	}

	resp, err := c.generate(ctx, c.imageModel, []*genai.Part{imgPart, {Text: prompt.Transform(stylePrompt)}})
	if err != nil {
		return "", fmt.Errorf("transform: %w", err)
	}

	dataURI, ok := extractImage(resp)
	if !ok {
		return "", ErrNoImagePayload
	}
	return dataURI, nil
}

func (c *Client) generate(ctx context.Context, model string, parts []*genai.Part) (*genai.GenerateContentResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	start := time.Now()
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := c.models.GenerateContent(ctx, model, contents, nil)
	c.logger.Debug("gemini generate", "model", model, "dur_ms", time.Since(start).Milliseconds(), "ok", err == nil)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func inlineImage(imageBase64, mimeType string) (*genai.Part, error) {
	data, err := base64.StdEncoding.DecodeString(stripDataURLPrefix(strings.TrimSpace(imageBase64)))
	if err != nil || len(data) == 0 {
		return nil, ErrInvalidImage
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}, nil
}

func firstCandidateParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return nil
	}
	return cand.Content.Parts
}

func extractText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, p := range firstCandidateParts(resp) {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func extractImage(resp *genai.GenerateContentResponse) (string, bool) {
	for _, p := range firstCandidateParts(resp) {
		if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
			continue
		}
		mimeType := p.InlineData.MIMEType
		if mimeType == "" {
			mimeType = defaultMimeType
		}
		return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(p.InlineData.Data)), true
	}
	return "", false
}

func stripDataURLPrefix(value string) string {
	if !strings.HasPrefix(value, "data:") {
		return value
	}
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		return value[idx+1:]
	}
	return value
}
