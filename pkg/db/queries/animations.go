package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

const animationColumns = `id, user_id, prompt, title, ai_model, duration, status, script, manim_code, video_url, created_at, updated_at`

// CreateAnimationWithTasks inserts an animation in pending state together with
// one pending task per pipeline stage, all in a single transaction.
func (s *Store) CreateAnimationWithTasks(ctx context.Context, animation *db.Animation) (*db.Animation, []db.GenerationTask, error) {
	animation.Status = db.StatusPending
	var tasks []db.GenerationTask

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO animations (user_id, prompt, title, ai_model, duration, status)
			VALUES (:user_id, :prompt, :title, :ai_model, :duration, :status)
			RETURNING id, created_at, updated_at`
		rows, err := sqlx.NamedQueryContext(ctx, tx, query, animation)
		if err != nil {
			return fmt.Errorf("insert animation: %w", err)
		}
		if !rows.Next() {
			rows.Close()
			return errors.New("no rows returned after animation creation")
		}
		if err := rows.StructScan(animation); err != nil {
			rows.Close()
			return fmt.Errorf("scan animation: %w", err)
		}
		rows.Close()

		for _, taskType := range db.TaskTypes {
			task := db.GenerationTask{AnimationID: animation.ID, TaskType: taskType, Status: db.StatusPending}
			err := tx.QueryRowxContext(ctx, `
				INSERT INTO generation_tasks (animation_id, task_type, status)
				VALUES ($1, $2, $3)
				RETURNING id, created_at`, task.AnimationID, task.TaskType, task.Status).Scan(&task.ID, &task.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert %s task: %w", taskType, err)
			}
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		log.Errorf("Error creating animation for user '%s': %v", animation.UserID.String(), err)
		return nil, nil, err
	}

	log.Infof("Animation '%s' created for user ID: %s (ID: %s)", animation.Title, animation.UserID.String(), animation.ID.String())
	return animation, tasks, nil
}

// FindAnimationByID returns nil, nil when the animation does not exist.
func (s *Store) FindAnimationByID(ctx context.Context, id uuid.UUID) (*db.Animation, error) {
	animation := &db.Animation{}
	query := `SELECT ` + animationColumns + ` FROM animations WHERE id = $1`
	if err := s.db.GetContext(ctx, animation, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("Animation with ID '%s' not found.", id.String())
			return nil, nil
		}
		log.Errorf("Error finding animation by ID '%s': %v", id.String(), err)
		return nil, fmt.Errorf("error finding animation by ID: %w", err)
	}
	return animation, nil
}

// FindAnimationsByUserID lists a user's animations, newest first.
func (s *Store) FindAnimationsByUserID(ctx context.Context, userID uuid.UUID) ([]db.Animation, error) {
	var animations []db.Animation
	query := `SELECT ` + animationColumns + ` FROM animations WHERE user_id = $1 ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &animations, query, userID); err != nil {
		log.Errorf("Error finding animations for user ID '%s': %v", userID.String(), err)
		return nil, fmt.Errorf("error finding animations by user ID: %w", err)
	}
	return animations, nil
}

func (s *Store) UpdateAnimationStatus(ctx context.Context, id uuid.UUID, status db.Status) error {
	return s.updateAnimation(ctx, id, "status", status)
}

func (s *Store) UpdateAnimationScript(ctx context.Context, id uuid.UUID, script string) error {
	return s.updateAnimation(ctx, id, "script", script)
}

func (s *Store) UpdateAnimationCode(ctx context.Context, id uuid.UUID, code string) error {
	return s.updateAnimation(ctx, id, "manim_code", code)
}

func (s *Store) UpdateAnimationVideo(ctx context.Context, id uuid.UUID, videoURL string) error {
	return s.updateAnimation(ctx, id, "video_url", videoURL)
}

// updateAnimation sets a single column. column is always a literal from this file.
func (s *Store) updateAnimation(ctx context.Context, id uuid.UUID, column string, value any) error {
	query := fmt.Sprintf(`UPDATE animations SET %s = $2, updated_at = NOW() WHERE id = $1`, column)
	result, err := s.db.ExecContext(ctx, query, id, value)
	if err != nil {
		log.Errorf("Error updating %s of animation '%s': %v", column, id.String(), err)
		return fmt.Errorf("failed to update animation %s: %w", column, err)
	}
	if err := expectRow(result); err != nil {
		log.Warnf("No animation found with ID '%s' to update %s.", id.String(), column)
		return err
	}
	return nil
}

// ResetAnimation prepares an animation for a new run: the animation and all
// of its tasks go back to pending. script, manim_code and video_url are kept
// until the next run overwrites them. A non-nil prompt replaces the stored one.
func (s *Store) ResetAnimation(ctx context.Context, id uuid.UUID, prompt *string) (*db.Animation, error) {
	animation := &db.Animation{}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE animations
			SET status = $2, prompt = COALESCE($3, prompt), updated_at = NOW()
			WHERE id = $1
			RETURNING ` + animationColumns
		if err := tx.GetContext(ctx, animation, query, id, db.StatusPending, prompt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE generation_tasks
			SET status = $2, error = NULL, progress = NULL, started_at = NULL, completed_at = NULL
			WHERE animation_id = $1`, id, db.StatusPending)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		log.Errorf("Error resetting animation '%s': %v", id.String(), err)
		return nil, fmt.Errorf("failed to reset animation: %w", err)
	}
	log.Infof("Animation '%s' reset to pending.", id.String())
	return animation, nil
}
