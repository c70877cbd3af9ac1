package task

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventName int

const (
	TaskCreated EventName = iota
	TaskCompleted
	TaskFailed
)

func ParseEventName(name string) (EventName, error) {
	name = strings.ToLower(name)
	switch name {
	case "task_created":
		return TaskCreated, nil
	case "task_completed":
		return TaskCompleted, nil
	case "task_failed":
		return TaskFailed, nil
	default:
		return -1, errors.New("invalid event name")
	}
}

func (n EventName) String() string {
	switch n {
	case TaskCreated:
		return "task_created"
	case TaskCompleted:
		return "task_completed"
	case TaskFailed:
		return "task_failed"
	default:
		return "unknown"
	}
}

type TaskCreatedEvent struct {
	TaskID    uuid.UUID `json:"task_id"`
	Question  string    `json:"question,omitempty"`
	OccuredAt time.Time `json:"occured_at"`
}

func NewTaskCreatedEvent(t *Task) *TaskCreatedEvent {
	return &TaskCreatedEvent{
		TaskID:    t.ID,
		Question:  t.Question,
		OccuredAt: time.Now(),
	}
}

func (e *TaskCreatedEvent) EventName() string {
	return TaskCreated.String()
}

type TaskCompletedEvent struct {
	TaskID    uuid.UUID `json:"task_id"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	OccuredAt time.Time `json:"occured_at"`
}

func NewTaskCompletedEvent(t *Task) *TaskCompletedEvent {
	return &TaskCompletedEvent{
		TaskID:    t.ID,
		Status:    t.Status,
		Attempts:  t.Attempts,
		OccuredAt: time.Now(),
	}
}

func (e *TaskCompletedEvent) EventName() string {
	return TaskCompleted.String()
}

type TaskFailedEvent struct {
	TaskID    uuid.UUID `json:"task_id"`
	Status    Status    `json:"status"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
	OccuredAt time.Time `json:"occured_at"`
}

func NewTaskFailedEvent(t *Task) *TaskFailedEvent {
	return &TaskFailedEvent{
		TaskID:    t.ID,
		Status:    t.Status,
		Error:     t.Error,
		Attempts:  t.Attempts,
		OccuredAt: time.Now(),
	}
}

func (e *TaskFailedEvent) EventName() string {
	return TaskFailed.String()
}
