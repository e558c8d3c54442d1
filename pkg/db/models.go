package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DefaultGenerations is the quota every new account starts with.
const DefaultGenerations = 10

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition happens without a reset.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type TaskType string

const (
	TaskScriptGeneration TaskType = "script_generation"
	TaskCodeGeneration   TaskType = "code_generation"
	TaskRendering        TaskType = "rendering"
)

// TaskTypes lists the pipeline stages in execution order.
var TaskTypes = []TaskType{TaskScriptGeneration, TaskCodeGeneration, TaskRendering}

// StageIndex returns the position of t in TaskTypes, or -1.
func (t TaskType) StageIndex() int {
	for i, tt := range TaskTypes {
		if tt == t {
			return i
		}
	}
	return -1
}

type AIModel string

const (
	ModelOpenAI AIModel = "openai"
	ModelGemini AIModel = "gemini"
	ModelGroq   AIModel = "groq"
)

var AIModels = []AIModel{ModelOpenAI, ModelGemini, ModelGroq}

func (m AIModel) Valid() bool {
	for _, known := range AIModels {
		if m == known {
			return true
		}
	}
	return false
}

type User struct {
	ID                   uuid.UUID `db:"id"`
	Username             string    `db:"username"`
	Email                string    `db:"email"`
	PasswordHash         string    `db:"password_hash"`
	GenerationsRemaining int       `db:"generations_remaining"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

type UserSettings struct {
	UserID         uuid.UUID      `db:"user_id"`
	DefaultAIModel AIModel        `db:"default_ai_model"`
	OpenAIAPIKey   sql.NullString `db:"openai_api_key"`
	GoogleAPIKey   sql.NullString `db:"google_api_key"`
	GroqAPIKey     sql.NullString `db:"groq_api_key"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

type Animation struct {
	ID        uuid.UUID      `db:"id"`
	UserID    uuid.UUID      `db:"user_id"`
	Prompt    string         `db:"prompt"`
	Title     string         `db:"title"`
	AIModel   AIModel        `db:"ai_model"`
	Duration  int            `db:"duration"`
	Status    Status         `db:"status"`
	Script    sql.NullString `db:"script"`
	Code      sql.NullString `db:"manim_code"`
	VideoURL  sql.NullString `db:"video_url"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

type GenerationTask struct {
	ID          uuid.UUID      `db:"id"`
	AnimationID uuid.UUID      `db:"animation_id"`
	TaskType    TaskType       `db:"task_type"`
	Status      Status         `db:"status"`
	Error       sql.NullString `db:"error"`
	Progress    sql.NullInt32  `db:"progress"`
	CreatedAt   time.Time      `db:"created_at"`
	StartedAt   sql.NullTime   `db:"started_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

// StaleTask is a task found stuck in processing by a reconciliation sweep.
type StaleTask struct {
	TaskID      uuid.UUID `db:"task_id"`
	AnimationID uuid.UUID `db:"animation_id"`
	TaskType    TaskType  `db:"task_type"`
	StartedAt   time.Time `db:"started_at"`
}

// StaleRun is an animation left in processing with no task running, settled
// by a reconciliation sweep. Task is the pending task failed on its behalf; it
// is nil when the run already had a failed task or finished every stage.
type StaleRun struct {
	AnimationID uuid.UUID
	Status      Status
	Task        *StaleTask
}
