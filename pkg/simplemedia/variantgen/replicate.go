package variantgen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const (
	defaultReplicateBaseURL = "https://api.replicate.com"
	defaultPollInterval     = time.Second
)

// ReplicateConfig configures the Replicate predictions provider
type ReplicateConfig struct {
	APIToken     string
	BaseURL      string
	Model        string // owner/name
	PollInterval time.Duration
	Timeout      time.Duration
}

// Replicate runs an image model through the predictions API and polls until
// the prediction reaches a terminal status.
type Replicate struct {
	client       *resty.Client
	model        string
	pollInterval time.Duration
}

var _ simplemedia.VariantGenerator = (*Replicate)(nil)

func NewReplicate(cfg ReplicateConfig) (*Replicate, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("replicate api token is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("replicate model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultReplicateBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIToken).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "application/json")

	return &Replicate{client: client, model: cfg.Model, pollInterval: cfg.PollInterval}, nil
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p *prediction) terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// outputs accepts both a single URL and a list of URLs
func (p *prediction) outputs() ([]string, error) {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return nil, nil
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil {
		return many, nil
	}
	var one string
	if err := json.Unmarshal(p.Output, &one); err != nil {
		return nil, fmt.Errorf("unexpected prediction output: %s", string(p.Output))
	}
	return []string{one}, nil
}

func (r *Replicate) Generate(ctx context.Context, req simplemedia.GenerateRequest) ([]string, error) {
	input := map[string]any{
		"image":       "data:" + req.MimeType + ";base64," + base64.StdEncoding.EncodeToString(req.Image),
		"num_outputs": max(req.Count, 1),
	}
	if req.Prompt != "" {
		input["prompt"] = req.Prompt
	}

	var pred prediction
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "wait").
		SetBody(map[string]any{"input": input}).
		SetResult(&pred).
		Post("/v1/models/" + r.model + "/predictions")
	if err != nil {
		return nil, fmt.Errorf("replicate request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("replicate API error (status %d): %s", resp.StatusCode(), resp.String())
	}

	for !pred.terminal() {
		if pred.URLs.Get == "" {
			return nil, fmt.Errorf("replicate prediction %s has status %q and no poll url", pred.ID, pred.Status)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}
		next := prediction{}
		resp, err := r.client.R().SetContext(ctx).SetResult(&next).Get(pred.URLs.Get)
		if err != nil {
			return nil, fmt.Errorf("replicate poll: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("replicate poll error (status %d): %s", resp.StatusCode(), resp.String())
		}
		pred = next
	}

	if pred.Status != "succeeded" {
		return nil, fmt.Errorf("replicate prediction %s %s: %v", pred.ID, pred.Status, pred.Error)
	}
	return pred.outputs()
}
