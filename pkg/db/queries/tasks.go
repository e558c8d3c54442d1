package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

const taskColumns = `id, animation_id, task_type, status, error, progress, created_at, started_at, completed_at`

const stageOrder = `CASE task_type
	WHEN 'script_generation' THEN 0
	WHEN 'code_generation' THEN 1
	WHEN 'rendering' THEN 2
	ELSE 3 END`

// FindTasksByAnimationID returns the tasks of an animation in stage order.
func (s *Store) FindTasksByAnimationID(ctx context.Context, animationID uuid.UUID) ([]db.GenerationTask, error) {
	var tasks []db.GenerationTask
	query := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE animation_id = $1 ORDER BY ` + stageOrder
	if err := s.db.SelectContext(ctx, &tasks, query, animationID); err != nil {
		log.Errorf("Error finding tasks for animation '%s': %v", animationID.String(), err)
		return nil, fmt.Errorf("error finding tasks by animation ID: %w", err)
	}
	return tasks, nil
}

// UpdateTaskStatus moves a task to status. started_at is stamped on entering
// processing and completed_at on entering completed or failed; errMsg is only
// stored for failed.
func (s *Store) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status db.Status, errMsg string) error {
	var errValue sql.NullString
	if status == db.StatusFailed {
		errValue = sql.NullString{String: errMsg, Valid: true}
	}
	query := `
		UPDATE generation_tasks
		SET status = $2,
			error = $3,
			started_at = CASE WHEN $2 = 'processing' THEN NOW() ELSE started_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE completed_at END
		WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, string(status), errValue)
	if err != nil {
		log.Errorf("Error updating task '%s' to %s: %v", id.String(), status, err)
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return expectRow(result)
}

// UpdateTaskProgress records the last reported progress of a task.
func (s *Store) UpdateTaskProgress(ctx context.Context, id uuid.UUID, progress int) error {
	result, err := s.db.ExecContext(ctx, `UPDATE generation_tasks SET progress = $2 WHERE id = $1`, id, progress)
	if err != nil {
		return fmt.Errorf("failed to update task progress: %w", err)
	}
	return expectRow(result)
}

// FailStaleProcessingTasks fails every task that entered processing before
// cutoff and marks the owning animations failed. It returns the tasks touched.
func (s *Store) FailStaleProcessingTasks(ctx context.Context, cutoff time.Time, reason string) ([]db.StaleTask, error) {
	var stale []db.StaleTask
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE generation_tasks
			SET status = 'failed', error = $2, completed_at = NOW()
			WHERE status = 'processing' AND (started_at IS NULL OR started_at < $1)
			RETURNING id AS task_id, animation_id, task_type, COALESCE(started_at, created_at) AS started_at`
		if err := tx.SelectContext(ctx, &stale, query, cutoff, reason); err != nil {
			return fmt.Errorf("fail stale tasks: %w", err)
		}
		if len(stale) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(stale))
		for _, t := range stale {
			ids = append(ids, t.AnimationID)
		}
		update, args, err := sqlx.In(`UPDATE animations SET status = 'failed', updated_at = NOW()
			WHERE id IN (?) AND status = 'processing'`, ids)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(update), args...)
		return err
	})
	if err != nil {
		log.Errorf("Error reconciling stale tasks: %v", err)
		return nil, err
	}
	if len(stale) > 0 {
		log.Warnf("Marked %d stale processing task(s) as failed.", len(stale))
	}
	return stale, nil
}

// SettleOrphanedRuns closes animations left in processing since before cutoff
// that have no task in processing. The first pending task is failed with
// reason; a run with a failed task is failed as is, and a run whose stages all
// completed is marked completed.
func (s *Store) SettleOrphanedRuns(ctx context.Context, cutoff time.Time, reason string) ([]db.StaleRun, error) {
	var runs []db.StaleRun
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var ids []uuid.UUID
		query := `
			SELECT a.id FROM animations a
			WHERE a.status = 'processing' AND a.updated_at < $1
				AND NOT EXISTS (
					SELECT 1 FROM generation_tasks t
					WHERE t.animation_id = a.id AND t.status = 'processing')
			FOR UPDATE OF a`
		if err := tx.SelectContext(ctx, &ids, query, cutoff); err != nil {
			return fmt.Errorf("find orphaned runs: %w", err)
		}
		for _, id := range ids {
			run, err := settleRun(ctx, tx, id, reason)
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		log.Errorf("Error settling orphaned runs: %v", err)
		return nil, err
	}
	if len(runs) > 0 {
		log.Warnf("Settled %d orphaned run(s).", len(runs))
	}
	return runs, nil
}

func settleRun(ctx context.Context, tx *sqlx.Tx, animationID uuid.UUID, reason string) (db.StaleRun, error) {
	run := db.StaleRun{AnimationID: animationID, Status: db.StatusFailed}

	var failed int
	err := tx.GetContext(ctx, &failed,
		`SELECT COUNT(*) FROM generation_tasks WHERE animation_id = $1 AND status = 'failed'`, animationID)
	if err != nil {
		return run, fmt.Errorf("count failed tasks: %w", err)
	}
	if failed == 0 {
		var task db.StaleTask
		query := `
			UPDATE generation_tasks
			SET status = 'failed', error = $2, completed_at = NOW()
			WHERE id = (
				SELECT id FROM generation_tasks
				WHERE animation_id = $1 AND status = 'pending'
				ORDER BY ` + stageOrder + `
				LIMIT 1)
			RETURNING id AS task_id, animation_id, task_type, COALESCE(started_at, created_at) AS started_at`
		err := tx.GetContext(ctx, &task, query, animationID, reason)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			run.Status = db.StatusCompleted
		case err != nil:
			return run, fmt.Errorf("fail pending task: %w", err)
		default:
			run.Task = &task
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE animations SET status = $2, updated_at = NOW() WHERE id = $1`, animationID, string(run.Status))
	if err != nil {
		return run, fmt.Errorf("settle animation: %w", err)
	}
	return run, nil
}
