package judge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/telemetry"
)

const (
	maxRetries     = 2
	initialBackoff = 500 * time.Millisecond
	maxTokens      = 100
)

// errAPIKeyRequired is returned when no Anthropic credentials are available.
var errAPIKeyRequired = errors.New("API key required")

// Anthropic implements Judge on the Anthropic Messages API. A circuit
// breaker sits in front of the API so a dead endpoint degrades to fast
// "no link" verdicts instead of a timeout per candidate.
type Anthropic struct {
	client      anthropic.Client
	model       anthropic.Model
	temperature float64
	timeout     time.Duration
	breaker     *gobreaker.CircuitBreaker
	log         *zap.Logger
}

// Options configures the Anthropic judge.
type Options struct {
	APIKey      string // overridden by ANTHROPIC_API_KEY when set
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// NewAnthropic creates the judge client. Env var ANTHROPIC_API_KEY takes
// precedence over the explicit key.
func NewAnthropic(opts Options, log *zap.Logger) (*Anthropic, error) {
	apiKey := opts.APIKey
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or provide via config", errAPIKeyRequired)
	}

	aiMetricsOnce.Do(initAIMetrics)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "causality-judge",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Anthropic{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       anthropic.Model(opts.Model),
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
		breaker:     cb,
		log:         log,
	}, nil
}

// Judge asks the model whether causeText directly led to effectText.
func (a *Anthropic) Judge(ctx context.Context, causeText, effectText string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	p := prompt(causeText, effectText)
	raw, err := a.breaker.Execute(func() (any, error) {
		return a.callWithRetry(ctx, p)
	})
	if err != nil {
		a.log.Debug("judge call failed", zap.Error(err))
		return Verdict{}, err
	}
	return parseVerdict(raw.(string)), nil
}

// aiMetrics holds lazily-initialized OTel instruments for Anthropic API calls.
var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter("github.com/causalmem/causalmem/judge")
	aiMetrics.inputTokens, _ = m.Int64Counter("causalmem.judge.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("causalmem.judge.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("causalmem.judge.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

func (a *Anthropic) callWithRetry(ctx context.Context, prompt string) (string, error) {
	tracer := telemetry.Tracer("github.com/causalmem/causalmem/judge")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("causalmem.judge.model", string(a.model)),
	)

	var lastErr error
	params := anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(a.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := a.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			modelAttr := attribute.String("causalmem.judge.model", string(a.model))
			if aiMetrics.inputTokens != nil {
				aiMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
				aiMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
				aiMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
			}

			if len(message.Content) > 0 {
				content := message.Content[0]
				if content.Type == "text" {
					return content.Text, nil
				}
				return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return "", fmt.Errorf("unexpected response format: no content blocks")
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
	}
	return "", fmt.Errorf("failed after %d retries: %w", maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	// Unrecognized transport errors get one more chance.
	return true
}
