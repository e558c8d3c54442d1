package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MaskedKey replaces stored API keys in every settings response. Posting it
// back leaves the stored key untouched.
const MaskedKey = "********"

type SettingsStore interface {
	GetUserSettings(ctx context.Context, userID uuid.UUID) (*db.UserSettings, error)
	UpsertUserSettings(ctx context.Context, settings *db.UserSettings) (*db.UserSettings, error)
}

// SettingsView is the client-facing form of db.UserSettings.
type SettingsView struct {
	UserID         uuid.UUID  `json:"userId"`
	DefaultAIModel db.AIModel `json:"defaultAiModel"`
	OpenAIAPIKey   *string    `json:"openaiApiKey"`
	GoogleAPIKey   *string    `json:"googleApiKey"`
	GroqAPIKey     *string    `json:"groqApiKey"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// UpdateSettingsInput carries optional changes. A nil key keeps the stored
// value, MaskedKey keeps it too, and an empty string clears it.
type UpdateSettingsInput struct {
	DefaultAIModel *string `json:"defaultAiModel" validate:"omitempty,oneof=openai gemini groq"`
	OpenAIAPIKey   *string `json:"openaiApiKey"`
	GoogleAPIKey   *string `json:"googleApiKey"`
	GroqAPIKey     *string `json:"groqApiKey"`
}

type SettingsService struct {
	store    SettingsStore
	validate *validator.Validate
}

func NewSettingsService(store SettingsStore) *SettingsService {
	return &SettingsService{store: store, validate: NewValidator()}
}

// Get returns the user's settings, or defaults when none were saved.
func (s *SettingsService) Get(ctx context.Context, userID uuid.UUID) (*SettingsView, error) {
	settings, err := s.store.GetUserSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if settings == nil {
		return &SettingsView{UserID: userID, DefaultAIModel: db.ModelOpenAI}, nil
	}
	return maskSettings(settings), nil
}

func (s *SettingsService) Update(ctx context.Context, userID uuid.UUID, in UpdateSettingsInput) (*SettingsView, error) {
	in.DefaultAIModel = trimOptional(in.DefaultAIModel)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	current, err := s.store.GetUserSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	next := db.UserSettings{UserID: userID, DefaultAIModel: db.ModelOpenAI}
	if current != nil {
		next = *current
	}
	if in.DefaultAIModel != nil {
		next.DefaultAIModel = db.AIModel(*in.DefaultAIModel)
	}
	next.OpenAIAPIKey = applyKey(next.OpenAIAPIKey, in.OpenAIAPIKey)
	next.GoogleAPIKey = applyKey(next.GoogleAPIKey, in.GoogleAPIKey)
	next.GroqAPIKey = applyKey(next.GroqAPIKey, in.GroqAPIKey)

	saved, err := s.store.UpsertUserSettings(ctx, &next)
	if err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return maskSettings(saved), nil
}

func applyKey(current sql.NullString, update *string) sql.NullString {
	if update == nil {
		return current
	}
	v := strings.TrimSpace(*update)
	switch v {
	case MaskedKey:
		return current
	case "":
		return sql.NullString{}
	default:
		return sql.NullString{String: v, Valid: true}
	}
}

func maskSettings(settings *db.UserSettings) *SettingsView {
	updated := settings.UpdatedAt
	view := &SettingsView{
		UserID:         settings.UserID,
		DefaultAIModel: settings.DefaultAIModel,
		OpenAIAPIKey:   mask(settings.OpenAIAPIKey),
		GoogleAPIKey:   mask(settings.GoogleAPIKey),
		GroqAPIKey:     mask(settings.GroqAPIKey),
	}
	if !updated.IsZero() {
		view.UpdatedAt = &updated
	}
	return view
}

func mask(key sql.NullString) *string {
	if !key.Valid || key.String == "" {
		return nil
	}
	m := MaskedKey
	return &m
}
