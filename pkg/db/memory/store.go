// Package memory is an in-process record store with the same contract as the
// PostgreSQL queries. It backs DATABASE_URL=memory and the test suites.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/google/uuid"
)

var ErrDuplicate = errors.New("duplicate key")

type Store struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]db.User
	settings   map[uuid.UUID]db.UserSettings
	animations map[uuid.UUID]db.Animation
	tasks      map[uuid.UUID]db.GenerationTask

	// Now is the clock used for timestamps; tests may replace it.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		users:      make(map[uuid.UUID]db.User),
		settings:   make(map[uuid.UUID]db.UserSettings),
		animations: make(map[uuid.UUID]db.Animation),
		tasks:      make(map[uuid.UUID]db.GenerationTask),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, user *db.User) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) || u.Username == user.Username {
			return nil, ErrDuplicate
		}
	}
	if user.GenerationsRemaining <= 0 {
		user.GenerationsRemaining = db.DefaultGenerations
	}
	now := s.Now()
	user.ID = uuid.New()
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = *user
	out := *user
	return &out, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*db.User, error) {
	return s.findUser(func(u db.User) bool { return u.Email == email }), nil
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*db.User, error) {
	return s.findUser(func(u db.User) bool { return u.Username == username }), nil
}

func (s *Store) FindUserByID(_ context.Context, id uuid.UUID) (*db.User, error) {
	return s.findUser(func(u db.User) bool { return u.ID == id }), nil
}

func (s *Store) findUser(match func(db.User) bool) *db.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			out := u
			return &out
		}
	}
	return nil
}

func (s *Store) DecrementUserGenerations(_ context.Context, id uuid.UUID) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	if u.GenerationsRemaining > 0 {
		u.GenerationsRemaining--
		u.UpdatedAt = s.Now()
		s.users[id] = u
	}
	return &u, nil
}

func (s *Store) SetUserGenerations(_ context.Context, id uuid.UUID, remaining int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.GenerationsRemaining = remaining
	u.UpdatedAt = s.Now()
	s.users[id] = u
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.users, id)
	delete(s.settings, id)
	for aid, a := range s.animations {
		if a.UserID != id {
			continue
		}
		delete(s.animations, aid)
		for tid, t := range s.tasks {
			if t.AnimationID == aid {
				delete(s.tasks, tid)
			}
		}
	}
	return nil
}

// --- settings ---

func (s *Store) GetUserSettings(_ context.Context, userID uuid.UUID) (*db.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settings[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *Store) UpsertUserSettings(_ context.Context, settings *db.UserSettings) (*db.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if settings.DefaultAIModel == "" {
		settings.DefaultAIModel = db.ModelOpenAI
	}
	settings.UpdatedAt = s.Now()
	s.settings[settings.UserID] = *settings
	out := *settings
	return &out, nil
}

// --- animations ---

func (s *Store) CreateAnimationWithTasks(_ context.Context, animation *db.Animation) (*db.Animation, []db.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	animation.ID = uuid.New()
	animation.Status = db.StatusPending
	animation.CreatedAt, animation.UpdatedAt = now, now
	s.animations[animation.ID] = *animation

	tasks := make([]db.GenerationTask, 0, len(db.TaskTypes))
	for _, tt := range db.TaskTypes {
		task := db.GenerationTask{
			ID:          uuid.New(),
			AnimationID: animation.ID,
			TaskType:    tt,
			Status:      db.StatusPending,
			CreatedAt:   now,
		}
		s.tasks[task.ID] = task
		tasks = append(tasks, task)
	}
	out := *animation
	return &out, tasks, nil
}

func (s *Store) FindAnimationByID(_ context.Context, id uuid.UUID) (*db.Animation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.animations[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *Store) FindAnimationsByUserID(_ context.Context, userID uuid.UUID) ([]db.Animation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []db.Animation
	for _, a := range s.animations {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateAnimationStatus(_ context.Context, id uuid.UUID, status db.Status) error {
	return s.updateAnimation(id, func(a *db.Animation) { a.Status = status })
}

func (s *Store) UpdateAnimationScript(_ context.Context, id uuid.UUID, script string) error {
	return s.updateAnimation(id, func(a *db.Animation) { a.Script = sql.NullString{String: script, Valid: true} })
}

func (s *Store) UpdateAnimationCode(_ context.Context, id uuid.UUID, code string) error {
	return s.updateAnimation(id, func(a *db.Animation) { a.Code = sql.NullString{String: code, Valid: true} })
}

func (s *Store) UpdateAnimationVideo(_ context.Context, id uuid.UUID, videoURL string) error {
	return s.updateAnimation(id, func(a *db.Animation) { a.VideoURL = sql.NullString{String: videoURL, Valid: true} })
}

func (s *Store) updateAnimation(id uuid.UUID, mutate func(*db.Animation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.animations[id]
	if !ok {
		return sql.ErrNoRows
	}
	mutate(&a)
	a.UpdatedAt = s.Now()
	s.animations[id] = a
	return nil
}

func (s *Store) ResetAnimation(_ context.Context, id uuid.UUID, prompt *string) (*db.Animation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.animations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	a.Status = db.StatusPending
	if prompt != nil {
		a.Prompt = *prompt
	}
	a.UpdatedAt = s.Now()
	s.animations[id] = a
	for tid, t := range s.tasks {
		if t.AnimationID != id {
			continue
		}
		t.Status = db.StatusPending
		t.Error = sql.NullString{}
		t.Progress = sql.NullInt32{}
		t.StartedAt = sql.NullTime{}
		t.CompletedAt = sql.NullTime{}
		s.tasks[tid] = t
	}
	return &a, nil
}

// --- tasks ---

func (s *Store) FindTasksByAnimationID(_ context.Context, animationID uuid.UUID) ([]db.GenerationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []db.GenerationTask
	for _, t := range s.tasks {
		if t.AnimationID == animationID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskType.StageIndex() < out[j].TaskType.StageIndex() })
	return out, nil
}

func (s *Store) UpdateTaskStatus(_ context.Context, id uuid.UUID, status db.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := s.Now()
	t.Status = status
	t.Error = sql.NullString{}
	switch status {
	case db.StatusProcessing:
		t.StartedAt = sql.NullTime{Time: now, Valid: true}
	case db.StatusFailed:
		t.Error = sql.NullString{String: errMsg, Valid: true}
		t.CompletedAt = sql.NullTime{Time: now, Valid: true}
	case db.StatusCompleted:
		t.CompletedAt = sql.NullTime{Time: now, Valid: true}
	}
	s.tasks[id] = t
	return nil
}

func (s *Store) UpdateTaskProgress(_ context.Context, id uuid.UUID, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.Progress = sql.NullInt32{Int32: int32(progress), Valid: true}
	s.tasks[id] = t
	return nil
}

func (s *Store) FailStaleProcessingTasks(_ context.Context, cutoff time.Time, reason string) ([]db.StaleTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	var stale []db.StaleTask
	for id, t := range s.tasks {
		if t.Status != db.StatusProcessing {
			continue
		}
		if t.StartedAt.Valid && !t.StartedAt.Time.Before(cutoff) {
			continue
		}
		started := t.CreatedAt
		if t.StartedAt.Valid {
			started = t.StartedAt.Time
		}
		t.Status = db.StatusFailed
		t.Error = sql.NullString{String: reason, Valid: true}
		t.CompletedAt = sql.NullTime{Time: now, Valid: true}
		s.tasks[id] = t
		stale = append(stale, db.StaleTask{TaskID: id, AnimationID: t.AnimationID, TaskType: t.TaskType, StartedAt: started})

		if a, ok := s.animations[t.AnimationID]; ok && a.Status == db.StatusProcessing {
			a.Status = db.StatusFailed
			a.UpdatedAt = now
			s.animations[a.ID] = a
		}
	}
	return stale, nil
}

func (s *Store) SettleOrphanedRuns(_ context.Context, cutoff time.Time, reason string) ([]db.StaleRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	var runs []db.StaleRun
	for id, a := range s.animations {
		if a.Status != db.StatusProcessing || !a.UpdatedAt.Before(cutoff) {
			continue
		}
		var tasks []db.GenerationTask
		for _, t := range s.tasks {
			if t.AnimationID == id {
				tasks = append(tasks, t)
			}
		}
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].TaskType.StageIndex() < tasks[j].TaskType.StageIndex() })

		var live, failed bool
		var next *db.GenerationTask
		for i := range tasks {
			switch tasks[i].Status {
			case db.StatusProcessing:
				live = true
			case db.StatusFailed:
				failed = true
			case db.StatusPending:
				if next == nil {
					next = &tasks[i]
				}
			}
		}
		if live {
			continue
		}

		run := db.StaleRun{AnimationID: id, Status: db.StatusFailed}
		switch {
		case failed:
		case next != nil:
			t := *next
			t.Status = db.StatusFailed
			t.Error = sql.NullString{String: reason, Valid: true}
			t.CompletedAt = sql.NullTime{Time: now, Valid: true}
			s.tasks[t.ID] = t
			run.Task = &db.StaleTask{TaskID: t.ID, AnimationID: id, TaskType: t.TaskType, StartedAt: t.CreatedAt}
		default:
			run.Status = db.StatusCompleted
		}
		a.Status = run.Status
		a.UpdatedAt = now
		s.animations[id] = a
		runs = append(runs, run)
	}
	return runs, nil
}
