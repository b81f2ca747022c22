package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"CoopLedgerSaas/internal/config"
	"CoopLedgerSaas/internal/errs"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var tracer = otel.Tracer("CoopLedgerSaas/internal/ai")

// backend performs one generation call against the text or vision model.
type backend interface {
	Generate(ctx context.Context, vision bool, parts ...genai.Part) (string, error)
	Close() error
}

// Client is the text and vision understanding service used by extraction.
// Calls share a circuit breaker and are bounded by a per-call timeout.
type Client struct {
	backend backend
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	log     *zap.Logger
}

// New connects to the Gemini API with the configured key and models.
func New(ctx context.Context, cfg config.AIConfig, log *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai api key is not configured")
	}
	gc, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	text := gc.GenerativeModel(cfg.TextModel)
	text.SetTemperature(0.1)
	vision := gc.GenerativeModel(cfg.VisionModel)
	vision.SetTemperature(0.1)
	return newClient(&gemini{client: gc, text: text, vision: vision}, cfg.Timeout, log), nil
}

func newClient(b backend, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = config.DefaultAITimeout
	}
	c := &Client{backend: b, timeout: timeout, log: log}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ai-extraction",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c
}

func (c *Client) Close() error {
	return c.backend.Close()
}

// GenerateText sends prompt to the text model and returns the concatenated
// text of the response.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.call(ctx, "ai.generate_text", false, genai.Text(prompt))
}

// GenerateFromImage sends prompt with one image to the vision model. format is
// the image subtype, e.g. "png" or "jpeg".
func (c *Client) GenerateFromImage(ctx context.Context, prompt, format string, image []byte) (string, error) {
	return c.call(ctx, "ai.generate_vision", true, genai.Text(prompt), genai.ImageData(format, image))
}

func (c *Client) call(ctx context.Context, span string, vision bool, parts ...genai.Part) (string, error) {
	ctx, sp := tracer.Start(ctx, span)
	defer sp.End()
	sp.SetAttributes(attribute.Bool("ai.vision", vision))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.backend.Generate(ctx, vision, parts...)
	})
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, err.Error())
		c.log.Warn("ai call failed", zap.Bool("vision", vision), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return "", errs.External("AI extraction service is temporarily unavailable", err)
		case errors.Is(err, context.DeadlineExceeded):
			return "", errs.External(fmt.Sprintf("AI extraction timed out after %s", c.timeout), err)
		}
		return "", errs.External("AI extraction failed", err)
	}
	c.log.Debug("ai call completed", zap.Bool("vision", vision), zap.Duration("elapsed", time.Since(started)))
	return out.(string), nil
}

type gemini struct {
	client *genai.Client
	text   *genai.GenerativeModel
	vision *genai.GenerativeModel
}

func (g *gemini) Generate(ctx context.Context, vision bool, parts ...genai.Part) (string, error) {
	m := g.text
	if vision {
		m = g.vision
	}
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

func (g *gemini) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}
