package generation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/go-resty/resty/v2"
)

const anthropicVersion = "2023-06-01"

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AnthropicGenerator implements Generator on the Anthropic Messages API.
type AnthropicGenerator struct {
	client  *resty.Client
	cfg     AnthropicConfig
	limiter *RateLimiter
	log     *logger.Logger
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicGenerator builds the client. A nil limiter uses the defaults.
func NewAnthropicGenerator(cfg AnthropicConfig, limiter *RateLimiter, log *logger.Logger) *AnthropicGenerator {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Minute
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimiterConfig())
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 529 is the API overloaded status.
			return err == nil && (r.StatusCode() == 529 || r.StatusCode() >= 500)
		})

	return &AnthropicGenerator{client: client, cfg: cfg, limiter: limiter, log: log}
}

// GenerateMetadata asks for the course outline.
func (g *AnthropicGenerator) GenerateMetadata(ctx context.Context, course *model.Course, source string) (*CourseMetadata, error) {
	reply, err := g.complete(ctx, systemPrompt, metadataPrompt(course, source))
	if err != nil {
		return nil, err
	}
	var meta CourseMetadata
	if err := ExtractJSONTo(reply, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrGeneration, err)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// GenerateModule asks for the content of one module.
func (g *AnthropicGenerator) GenerateModule(ctx context.Context, course *model.Course, moduleNumber int) (*ModuleContent, error) {
	if moduleNumber < 1 || moduleNumber > len(course.Modules) {
		return nil, fmt.Errorf("%w: module %d not in outline", ErrGeneration, moduleNumber)
	}
	reply, err := g.complete(ctx, systemPrompt, modulePrompt(course, moduleNumber))
	if err != nil {
		return nil, err
	}
	var content ModuleContent
	if err := ExtractJSONTo(reply, &content); err != nil {
		return nil, fmt.Errorf("%w: module %d: %v", ErrGeneration, moduleNumber, err)
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}
	return &content, nil
}

func (g *AnthropicGenerator) complete(ctx context.Context, system, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	started := time.Now()
	var out messagesResponse
	var apiErr apiError
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(messagesRequest{
			Model:     g.cfg.Model,
			MaxTokens: g.cfg.MaxTokens,
			System:    system,
			Messages:  []message{{Role: "user", Content: prompt}},
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("%w: request: %v", ErrGeneration, err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		g.limiter.SlowDown(2)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode(), apiErr.Error.Message)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	g.log.Debug("model call finished",
		"model", g.cfg.Model,
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
		"stop_reason", out.StopReason,
		"duration", time.Since(started).String(),
	)

	if text.Len() == 0 {
		return "", fmt.Errorf("%w: empty reply", ErrGeneration)
	}
	return text.String(), nil
}
