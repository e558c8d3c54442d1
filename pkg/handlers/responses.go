package handlers

import (
	"database/sql"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/google/uuid"
)

type UserResponse struct {
	ID                   uuid.UUID `json:"id"`
	Username             string    `json:"username"`
	Email                string    `json:"email"`
	GenerationsRemaining int       `json:"generationsRemaining"`
	CreatedAt            time.Time `json:"createdAt"`
}

type TaskResponse struct {
	ID          uuid.UUID   `json:"id"`
	AnimationID uuid.UUID   `json:"animationId"`
	TaskType    db.TaskType `json:"taskType"`
	Status      db.Status   `json:"status"`
	Error       *string     `json:"error"`
	Progress    *int        `json:"progress"`
	CreatedAt   time.Time   `json:"createdAt"`
	StartedAt   *time.Time  `json:"startedAt"`
	CompletedAt *time.Time  `json:"completedAt"`
}

type AnimationResponse struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"userId"`
	Prompt    string         `json:"prompt"`
	Title     string         `json:"title"`
	Status    db.Status      `json:"status"`
	Script    *string        `json:"script"`
	ManimCode *string        `json:"manimCode"`
	VideoURL  *string        `json:"videoUrl"`
	AIModel   db.AIModel     `json:"aiModel"`
	Duration  int            `json:"duration"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Tasks     []TaskResponse `json:"tasks,omitempty"`
}

func newUserResponse(u *db.User) UserResponse {
	return UserResponse{
		ID:                   u.ID,
		Username:             u.Username,
		Email:                u.Email,
		GenerationsRemaining: u.GenerationsRemaining,
		CreatedAt:            u.CreatedAt,
	}
}

func newAnimationResponse(a *db.Animation, tasks []db.GenerationTask) AnimationResponse {
	resp := AnimationResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		Prompt:    a.Prompt,
		Title:     a.Title,
		Status:    a.Status,
		Script:    nullString(a.Script),
		ManimCode: nullString(a.Code),
		VideoURL:  nullString(a.VideoURL),
		AIModel:   a.AIModel,
		Duration:  a.Duration,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if tasks != nil {
		resp.Tasks = make([]TaskResponse, 0, len(tasks))
		for i := range tasks {
			resp.Tasks = append(resp.Tasks, newTaskResponse(&tasks[i]))
		}
	}
	return resp
}

func newTaskResponse(t *db.GenerationTask) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		AnimationID: t.AnimationID,
		TaskType:    t.TaskType,
		Status:      t.Status,
		Error:       nullString(t.Error),
		CreatedAt:   t.CreatedAt,
		StartedAt:   nullTime(t.StartedAt),
		CompletedAt: nullTime(t.CompletedAt),
	}
	if t.Progress.Valid {
		p := int(t.Progress.Int32)
		resp.Progress = &p
	}
	return resp
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
