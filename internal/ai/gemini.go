package ai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/Custos/imthedev-sub000/internal/errors"
)

const (
	// defaultGeminiModel is used when no model is configured.
	defaultGeminiModel = "gemini-2.5-flash"

	// defaultTemperature keeps replies close to the requested JSON shape.
	defaultTemperature = 0.2
)

// contentGenerator is the subset of *genai.Models used by GeminiBackend.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiBackend implements Backend with the Gemini API.
type GeminiBackend struct {
	models      contentGenerator
	model       string
	temperature float32
	jsonMode    bool
}

// GeminiOption configures a GeminiBackend.
type GeminiOption func(*GeminiBackend)

// WithModel sets the model name. An empty name keeps the default.
func WithModel(model string) GeminiOption {
	return func(g *GeminiBackend) {
		if model != "" {
			g.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) GeminiOption {
	return func(g *GeminiBackend) {
		g.temperature = t
	}
}

// WithJSONMode asks the API for an application/json response.
func WithJSONMode(on bool) GeminiOption {
	return func(g *GeminiBackend) {
		g.jsonMode = on
	}
}

// withGenerator replaces the API client.
func withGenerator(gen contentGenerator) GeminiOption {
	return func(g *GeminiBackend) {
		g.models = gen
	}
}

// NewGeminiBackend creates a Gemini backend using the API key stored in the
// environment variable apiKeyEnv. Returns an error if the key is not set.
func NewGeminiBackend(ctx context.Context, apiKeyEnv string, opts ...GeminiOption) (*GeminiBackend, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set", apiKeyEnv)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return newGeminiBackend(append([]GeminiOption{withGenerator(client.Models)}, opts...)...), nil
}

func newGeminiBackend(opts ...GeminiOption) *GeminiBackend {
	g := &GeminiBackend{
		model:       defaultGeminiModel,
		temperature: defaultTemperature,
		jsonMode:    true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Backend.
func (g *GeminiBackend) Name() BackendName { return BackendGemini }

// Model returns the model name requests are sent to.
func (g *GeminiBackend) Model() string { return g.model }

// Generate sends prompt as a single user turn and returns the reply text.
func (g *GeminiBackend) Generate(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if g.jsonMode {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %w", errors.ErrGenerationFailed, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
