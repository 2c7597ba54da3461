package variantgen

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "dall-e-2"
	defaultOpenAISize    = "1024x1024"
)

// OpenAIConfig configures the OpenAI images provider
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
	Timeout time.Duration
}

// OpenAI generates variants through the images API. Requests with a prompt
// go to /v1/images/edits, requests without one to /v1/images/variations.
type OpenAI struct {
	client *resty.Client
	model  string
	size   string
}

var _ simplemedia.VariantGenerator = (*OpenAI)(nil)

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Size == "" {
		cfg.Size = defaultOpenAISize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", userAgent)

	return &OpenAI{client: client, model: cfg.Model, size: cfg.Size}, nil
}

type openAIImageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (o *OpenAI) Generate(ctx context.Context, req simplemedia.GenerateRequest) ([]string, error) {
	form := map[string]string{
		"model":           o.model,
		"n":               strconv.Itoa(max(req.Count, 1)),
		"size":            o.size,
		"response_format": "url",
	}
	endpoint := "/v1/images/variations"
	if req.Prompt != "" {
		endpoint = "/v1/images/edits"
		form["prompt"] = req.Prompt
	}

	var result openAIImageResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetFileReader("image", "source"+extensionFor(req.MimeType), bytes.NewReader(req.Image)).
		SetFormData(form).
		SetResult(&result).
		SetError(&result).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if resp.IsError() {
		msg := resp.String()
		if result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return nil, fmt.Errorf("openai images API error (status %d): %s", resp.StatusCode(), msg)
	}

	urls := make([]string, 0, len(result.Data))
	for _, d := range result.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	return urls, nil
}
