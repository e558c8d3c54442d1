package notify

import (
	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/google/uuid"
)

type EventType string

const (
	TypeTaskUpdate      EventType = "task_update"
	TypeTaskProgress    EventType = "task_progress"
	TypeAnimationUpdate EventType = "animation_update"

	typePing EventType = "ping"
	typePong EventType = "pong"
)

// TaskUpdate reports a stage status transition.
type TaskUpdate struct {
	Type        EventType   `json:"type"`
	AnimationID uuid.UUID   `json:"animationId"`
	TaskID      uuid.UUID   `json:"taskId"`
	TaskType    db.TaskType `json:"taskType"`
	Status      db.Status   `json:"status"`
	Error       string      `json:"error,omitempty"`
	VideoURL    string      `json:"videoUrl,omitempty"`
}

// TaskProgress reports rendering progress. Consumers keep the last value.
type TaskProgress struct {
	Type        EventType   `json:"type"`
	AnimationID uuid.UUID   `json:"animationId"`
	TaskID      uuid.UUID   `json:"taskId"`
	TaskType    db.TaskType `json:"taskType"`
	Progress    int         `json:"progress"`
}

// AnimationUpdate reports an animation-level status transition.
type AnimationUpdate struct {
	Type        EventType `json:"type"`
	AnimationID uuid.UUID `json:"animationId"`
	Status      db.Status `json:"status"`
	Error       string    `json:"error,omitempty"`
}

func NewTaskUpdate(animationID uuid.UUID, task db.GenerationTask, status db.Status) TaskUpdate {
	return TaskUpdate{
		Type:        TypeTaskUpdate,
		AnimationID: animationID,
		TaskID:      task.ID,
		TaskType:    task.TaskType,
		Status:      status,
	}
}

func NewTaskProgress(animationID, taskID uuid.UUID, progress int) TaskProgress {
	return TaskProgress{
		Type:        TypeTaskProgress,
		AnimationID: animationID,
		TaskID:      taskID,
		TaskType:    db.TaskRendering,
		Progress:    progress,
	}
}

func NewAnimationUpdate(animationID uuid.UUID, status db.Status, errMsg string) AnimationUpdate {
	return AnimationUpdate{
		Type:        TypeAnimationUpdate,
		AnimationID: animationID,
		Status:      status,
		Error:       errMsg,
	}
}

type controlMessage struct {
	Type EventType `json:"type"`
}
