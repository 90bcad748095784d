package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxPromptChars = 12000

var (
	classifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "achievements",
		Subsystem: "classifier",
		Name:      "request_duration_seconds",
		Help:      "Duration of AI-content classification requests",
	}, []string{"model"})

	classifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "achievements",
		Subsystem: "classifier",
		Name:      "failures_total",
		Help:      "Number of AI-content classification failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI classifier.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Logger    *zap.Logger
}

// OpenAIClassifier implements ContentClassifier against the OpenAI chat completion API.
type OpenAIClassifier struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger *zap.Logger
}

// NewOpenAIClassifier builds a classifier using the provided configuration.
func NewOpenAIClassifier(cfg OpenAIConfig) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 128
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/achievement-api/pkg/classifier/openai"),
		logger: cfg.Logger,
	}, nil
}

// Classify asks the model for a machine-generation likelihood. The caller bounds the call with
// a context deadline.
func (c *OpenAIClassifier) Classify(parent context.Context, input Input) (Result, error) {
	if len(strings.Fields(input.Text)) < minWords {
		return Result{}, ErrInsufficientText
	}

	ctx, span := c.tracer.Start(parent, "openai.classify", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := c.client.CreateChatCompletion(ctx, request)
	classifyDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return Result{}, c.fail(span, fmt.Errorf("openai classify: %w", err))
	}
	if len(resp.Choices) == 0 {
		return Result{}, c.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	result, err := parseResponse(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return Result{}, c.fail(span, err)
	}
	result.Model = c.cfg.Model
	span.SetAttributes(attribute.Int("risk", result.Risk))
	return result, nil
}

func (c *OpenAIClassifier) fail(span trace.Span, err error) error {
	classifyFailures.WithLabelValues(c.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Warn("classifier request failed", zap.String("model", c.cfg.Model), zap.Error(err))
	return err
}

func systemPrompt() string {
	return "You review student achievement write-ups. Estimate how likely the text was produced by a language model. " +
		"Respond with a JSON object containing probability (0-1) and a short reason."
}

func buildUserPrompt(input Input) string {
	text := input.Text
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
		for !utf8.ValidString(text) {
			text = text[:len(text)-1]
		}
	}
	builder := strings.Builder{}
	builder.WriteString("# Activity\n")
	builder.WriteString(input.Title)
	builder.WriteString("\n\n## Text\n")
	builder.WriteString(text)
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseResponse(content string) (Result, error) {
	var data struct {
		Probability float64 `json:"probability"`
		Reason      string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return Result{}, fmt.Errorf("parse classifier json: %w", err)
	}
	if data.Probability < 0 {
		data.Probability = 0
	}
	if data.Probability > 1 {
		data.Probability = 1
	}
	return Result{Risk: clamp(int(data.Probability*100 + 0.5)), Reason: data.Reason}, nil
}
