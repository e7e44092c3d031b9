package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/logger"
	"google.golang.org/genai"
)

// DefaultModelName is the default Gemini model used for classification.
const DefaultModelName = "gemini-2.5-flash"

const (
	defaultMaxRetries = 2
	defaultBackoff    = 2 * time.Second
)

// Generation is the raw text answer of the model plus token usage.
type Generation struct {
	Text         string
	TokensInput  int64
	TokensOutput int64
}

// Generator sends a prompt to an LLM and returns its JSON answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Generation, error)
}

// GeminiGenerator is the Generator backed by google.golang.org/genai.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini API client. An empty model selects
// DefaultModelName.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewGeminiGenerator: missing API key")
	}
	if model == "" {
		model = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (*Generation, error) {
	temperature := float32(0.1)
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("Generate: generate content: %w", err)
	}

	gen := &Generation{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		gen.TokensInput = int64(resp.UsageMetadata.PromptTokenCount)
		gen.TokensOutput = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return gen, nil
}

// responseSchema declares the canonical response shape to the model.
func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"totalMonthly":      {Type: genai.TypeNumber, Description: "Custo mensal estimado de todas as assinaturas."},
			"totalYearly":       {Type: genai.TypeNumber, Description: "Custo anual estimado."},
			"subscriptionCount": {Type: genai.TypeInteger, Description: "Quantidade de assinaturas encontradas."},
			"items": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":           {Type: genai.TypeString, Description: "Nome do serviço (ex: Netflix)."},
						"amount":         {Type: genai.TypeNumber, Description: "Valor por ciclo de cobrança."},
						"frequency":      {Type: genai.TypeString, Enum: []string{"monthly", "yearly"}},
						"category":       {Type: genai.TypeString, Description: "Categoria (Streaming, Fitness, Software...)."},
						"confidence":     {Type: genai.TypeNumber, Description: "Confiança entre 0 e 1."},
						"recommendation": {Type: genai.TypeString, Description: "Dica curta de economia para o item."},
					},
					Required: []string{"name", "amount", "frequency", "category", "confidence"},
				},
			},
			"insights": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"items", "insights"},
	}
}

// LLMClassifier implements Classifier on top of a Generator.
type LLMClassifier struct {
	gen        Generator
	profile    Profile
	maxRetries int
	backoff    time.Duration
}

// Option configures an LLMClassifier.
type Option func(*LLMClassifier)

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) Option {
	return func(c *LLMClassifier) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay; attempt n waits n*base.
func WithBackoff(d time.Duration) Option {
	return func(c *LLMClassifier) { c.backoff = d }
}

// New creates an LLMClassifier.
func New(gen Generator, profile Profile, opts ...Option) *LLMClassifier {
	c := &LLMClassifier{
		gen:        gen,
		profile:    profile,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify implements Classifier. Transient API failures are retried with
// linear backoff; malformed responses are returned as ErrResponseParse
// without retrying.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (*Classification, error) {
	log := logger.FromContext(ctx)
	prompt := BuildPrompt(c.profile, text)

	var (
		gen *Generation
		err error
	)
	for attempt := 0; ; attempt++ {
		gen, err = c.gen.Generate(ctx, prompt)
		if err == nil {
			break
		}
		if isDeadline(ctx, err) {
			return nil, fmt.Errorf("Classify: %w", domain.ErrClassificationTimeout)
		}
		if !isTransient(err) || attempt >= c.maxRetries {
			return nil, fmt.Errorf("Classify: %w: %w", domain.ErrClassification, err)
		}

		wait := c.backoff * time.Duration(attempt+1)
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Transient classifier failure, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			if isDeadline(ctx, ctx.Err()) {
				return nil, fmt.Errorf("Classify: %w", domain.ErrClassificationTimeout)
			}
			return nil, fmt.Errorf("Classify: %w: %w", domain.ErrClassification, ctx.Err())
		}
	}

	cls, err := ParseResponse(gen.Text)
	if err != nil {
		log.Error().Err(err).Str("raw_response", gen.Text).Msg("Classifier response rejected")
		return nil, err
	}
	cls.TokensInput = gen.TokensInput
	cls.TokensOutput = gen.TokensOutput

	log.Debug().
		Int("items", len(cls.Items)).
		Str("schema", cls.Schema).
		Int64("tokens_input", cls.TokensInput).
		Int64("tokens_output", cls.TokensOutput).
		Msg("Statement classified")

	return cls, nil
}

func isDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// isTransient reports whether a Gemini API error is worth retrying.
func isTransient(err error) bool {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return false
	}

	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
