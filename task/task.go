package task

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/querylab/analyst/events"
)

var (
	ErrTaskNotFound = errors.New("task not found")
)

type Status int

const (
	Pending Status = iota
	Running
	Succeeded
	Failed
)

func ParseStatus(status string) (Status, error) {
	status = strings.ToLower(status)
	switch status {
	case "pending":
		return Pending, nil
	case "running":
		return Running, nil
	case "succeeded":
		return Succeeded, nil
	case "failed":
		return Failed, nil
	default:
		return -1, errors.New("invalid status")
	}
}

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s *Status) MarshalJSON() ([]byte, error) {
	jsonStr := `"` + s.String() + `"`
	return []byte(jsonStr), nil
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	status, err := ParseStatus(raw)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// Task is one analysis run. Its workspace directory holds the uploaded
// files, the generated scripts and everything they produce.
type Task struct {
	ID          uuid.UUID    `json:"id"`
	Question    string       `json:"question"`
	Files       []string     `json:"files"`
	Status      Status       `json:"status"`
	Dir         string       `json:"dir"`
	Attempts    int          `json:"attempts"`
	Error       string       `json:"error,omitempty"`
	Executions  []*Execution `json:"executions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt time.Time    `json:"completed_at"`

	events.EventStore `json:"-"`
}

func NewTask() *Task {
	t := &Task{
		ID:         uuid.New(),
		Status:     Pending,
		Files:      make([]string, 0),
		Executions: make([]*Execution, 0),
		CreatedAt:  time.Now(),

		EventStore: events.NewEventStore(),
	}

	e := NewTaskCreatedEvent(t)
	t.AddEvent(e)

	return t
}

func (t *Task) Start() {
	t.Status = Running
	t.UpdatedAt = time.Now()
}

func (t *Task) Complete() {
	now := time.Now()
	t.Status = Succeeded
	t.UpdatedAt = now
	t.CompletedAt = now

	e := NewTaskCompletedEvent(t)
	t.AddEvent(e)
}

func (t *Task) Fail(reason string) {
	now := time.Now()
	t.Status = Failed
	t.Error = reason
	t.UpdatedAt = now
	t.CompletedAt = now

	e := NewTaskFailedEvent(t)
	t.AddEvent(e)
}

func (t *Task) RecordExecution(e *Execution) {
	t.Executions = append(t.Executions, e)
	if e.Kind == ExecAnswer {
		t.Attempts = e.Attempt
	}
	t.UpdatedAt = time.Now()
}

type ExecKind int

const (
	ExecScrape ExecKind = iota
	ExecAnswer
)

func ParseExecKind(kind string) (ExecKind, error) {
	kind = strings.ToLower(kind)
	switch kind {
	case "scrape":
		return ExecScrape, nil
	case "answer":
		return ExecAnswer, nil
	default:
		return -1, errors.New("invalid execution kind")
	}
}

func (k ExecKind) String() string {
	switch k {
	case ExecScrape:
		return "scrape"
	case ExecAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

func (k *ExecKind) MarshalJSON() ([]byte, error) {
	jsonStr := `"` + k.String() + `"`
	return []byte(jsonStr), nil
}

func (k *ExecKind) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	kind, err := ParseExecKind(raw)
	if err != nil {
		return err
	}

	*k = kind
	return nil
}

// Execution records a single run of a generated script.
type Execution struct {
	ID        ulid.ULID     `json:"id"`
	Kind      ExecKind      `json:"kind"`
	Attempt   int           `json:"attempt"`
	Success   bool          `json:"success"`
	Output    string        `json:"output,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func NewExecution(kind ExecKind, attempt int) *Execution {
	id := ulid.Make()

	return &Execution{
		ID:        id,
		Kind:      kind,
		Attempt:   attempt,
		StartedAt: ulid.Time(id.Time()),
	}
}
