// Package llm implements the text-generation backends used by the pipeline:
// scene scripts and Manim code from OpenAI, Gemini or Groq.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ASHISH26940/manim-studio/pkg/apperr"
	"github.com/ASHISH26940/manim-studio/pkg/config"
	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/ASHISH26940/manim-studio/pkg/manim"
	log "github.com/sirupsen/logrus"
)

// Credentials are the provider keys used for one pipeline run.
type Credentials struct {
	OpenAIKey string
	GoogleKey string
	GroqKey   string
}

// Request is the per-call configuration passed to every generation.
type Request struct {
	Model       db.AIModel
	Credentials Credentials
}

type ProviderConfig struct {
	BaseURL string
	Model   string
}

type generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Service dispatches generation requests to the provider selected by the
// request's model. It holds no per-user state.
type Service struct {
	openai      ProviderConfig
	groq        ProviderConfig
	geminiModel string
	defaults    Credentials
	httpClient  *http.Client

	// gemini is swapped in tests.
	gemini func(apiKey, model string) generator
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		openai:      ProviderConfig{BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel},
		groq:        ProviderConfig{BaseURL: cfg.GroqBaseURL, Model: cfg.GroqModel},
		geminiModel: cfg.GeminiModel,
		defaults: Credentials{
			OpenAIKey: cfg.OpenAIAPIKey,
			GoogleKey: cfg.GeminiAPIKey,
			GroqKey:   cfg.GroqAPIKey,
		},
		gemini: func(apiKey, model string) generator { return newGeminiClient(apiKey, model) },
	}
}

// DefaultCredentials returns the server-wide provider keys.
func (s *Service) DefaultCredentials() Credentials {
	return s.defaults
}

// ResolveCredentials overlays the keys a user saved in their settings on top
// of the server defaults.
func (s *Service) ResolveCredentials(settings *db.UserSettings) Credentials {
	creds := s.defaults
	if settings == nil {
		return creds
	}
	if settings.OpenAIAPIKey.Valid && settings.OpenAIAPIKey.String != "" {
		creds.OpenAIKey = settings.OpenAIAPIKey.String
	}
	if settings.GoogleAPIKey.Valid && settings.GoogleAPIKey.String != "" {
		creds.GoogleKey = settings.GoogleAPIKey.String
	}
	if settings.GroqAPIKey.Valid && settings.GroqAPIKey.String != "" {
		creds.GroqKey = settings.GroqAPIKey.String
	}
	return creds
}

// GenerateScript turns a user prompt into a scene description.
func (s *Service) GenerateScript(ctx context.Context, req Request, prompt string) (string, error) {
	const stage = string(db.TaskScriptGeneration)
	out, err := s.generate(ctx, req, scriptPrompt(prompt))
	if err != nil {
		return "", apperr.Backend(stage, "GenerateScript", err)
	}
	if out == "" {
		return "", apperr.Backendf(stage, "GenerateScript", "%s returned an empty script", req.Model)
	}
	return out, nil
}

// GenerateCode produces Manim source for the prompt and script. The returned
// code always contains a renderable scene class.
func (s *Service) GenerateCode(ctx context.Context, req Request, prompt, script string, duration int) (string, error) {
	const stage = string(db.TaskCodeGeneration)
	raw, err := s.generate(ctx, req, codePrompt(prompt, script, duration))
	if err != nil {
		return "", apperr.Backend(stage, "GenerateCode", err)
	}
	code := manim.StripFences(raw)
	if manim.SceneClassName(code) == "" {
		return "", apperr.Backendf(stage, "GenerateCode", "generated code does not define a Scene class")
	}
	return code, nil
}

func (s *Service) generate(ctx context.Context, req Request, instructions string) (string, error) {
	switch req.Model {
	case db.ModelOpenAI:
		return s.chat("OpenAI", s.openai, req.Credentials.OpenAIKey).Generate(ctx, systemPrompt, instructions)
	case db.ModelGroq:
		return s.chat("Groq", s.groq, req.Credentials.GroqKey).Generate(ctx, systemPrompt, instructions)
	case db.ModelGemini:
		out, err := s.gemini(req.Credentials.GoogleKey, s.geminiModel).Generate(ctx, systemPrompt, instructions)
		if err == nil {
			return out, nil
		}
		if req.Credentials.OpenAIKey == "" || errors.Is(err, context.Canceled) {
			return "", err
		}
		log.Warnf("Gemini generation failed, falling back to OpenAI: %v", err)
		return s.chat("OpenAI", s.openai, req.Credentials.OpenAIKey).Generate(ctx, systemPrompt, instructions)
	default:
		return "", fmt.Errorf("unknown AI model: %s", req.Model)
	}
}

func (s *Service) chat(provider string, cfg ProviderConfig, apiKey string) generator {
	return newChatClient(provider, cfg, apiKey, s.httpClient)
}
