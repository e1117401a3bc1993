package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/invoice-router/internal/infrastructure/resilience"
)

const defaultMaxContent = 1200

type Options struct {
	BaseURL  string
	GenModel string
	// MaxContent caps the number of runes of document text sent in a prompt.
	MaxContent int
	// RatePerSecond <= 0 disables rate limiting.
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
}

type Client struct {
	baseURL    string
	genModel   string
	maxContent int
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

func New(opts Options, executor *resilience.Executor) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxContent := opts.MaxContent
	if maxContent <= 0 {
		maxContent = defaultMaxContent
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		genModel:   opts.GenModel,
		maxContent: maxContent,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return c
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	payload := generateRequest{
		Model:  c.genModel,
		Prompt: prompt,
		Format: "json",
	}

	var out string
	call := func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: %w", errRateLimited, err)
			}
		}
		text, err := c.generate(ctx, payload)
		if err != nil {
			return err
		}
		out = text
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.generate", call, classifyExtractionError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama generate", err)
	}
	return out, nil
}

func (c *Client) clip(content string) string {
	runes := []rune(content)
	if len(runes) <= c.maxContent {
		return content
	}
	return string(runes[:c.maxContent])
}
