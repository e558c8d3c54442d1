package queries

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// GetUserSettings returns nil, nil when the user never saved settings.
func (s *Store) GetUserSettings(ctx context.Context, userID uuid.UUID) (*db.UserSettings, error) {
	settings := &db.UserSettings{}
	query := `SELECT user_id, default_ai_model, openai_api_key, google_api_key, groq_api_key, updated_at
		FROM user_settings WHERE user_id = $1`
	if err := s.db.GetContext(ctx, settings, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Errorf("Error loading settings for user '%s': %v", userID.String(), err)
		return nil, err
	}
	return settings, nil
}

// UpsertUserSettings creates or replaces the settings row of a user.
func (s *Store) UpsertUserSettings(ctx context.Context, settings *db.UserSettings) (*db.UserSettings, error) {
	if settings.DefaultAIModel == "" {
		settings.DefaultAIModel = db.ModelOpenAI
	}
	query := `
		INSERT INTO user_settings (user_id, default_ai_model, openai_api_key, google_api_key, groq_api_key, updated_at)
		VALUES (:user_id, :default_ai_model, :openai_api_key, :google_api_key, :groq_api_key, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			default_ai_model = EXCLUDED.default_ai_model,
			openai_api_key = EXCLUDED.openai_api_key,
			google_api_key = EXCLUDED.google_api_key,
			groq_api_key = EXCLUDED.groq_api_key,
			updated_at = NOW()
		RETURNING updated_at`

	rows, err := s.db.NamedQueryContext(ctx, query, settings)
	if err != nil {
		log.Errorf("Error saving settings for user '%s': %v", settings.UserID.String(), err)
		return nil, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.StructScan(settings); err != nil {
			return nil, err
		}
	}
	log.Infof("Settings saved for user '%s'.", settings.UserID.String())
	return settings, rows.Err()
}
