package db

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/querylab/analyst/conf"
	"github.com/querylab/analyst/events"
	"github.com/querylab/analyst/task"
)

func NewTaskRepository(cfg conf.Persistence) (task.Repository, error) {
	filename := cfg.Host + "/" + cfg.Name + ".db"
	if cfg.InMem {
		filename = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(filename), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.AutoMigrate(
		&Task{},
	)

	repo := new(taskRepository)
	repo.db = db
	return repo, nil
}

// Task is the data model. Files and Executions are stored as JSON
// columns, they are never queried on their own.
type Task struct {
	ID          string `gorm:"primaryKey"`
	Question    string
	Files       string
	Status      string `gorm:"index"`
	Dir         string
	Attempts    int
	Error       string
	Executions  string
	CompletedAt time.Time
	DataModel
}

func NewTask(t *task.Task) *Task {
	files, _ := json.Marshal(t.Files)
	executions, _ := json.Marshal(t.Executions)

	return &Task{
		ID:          t.ID.String(),
		Question:    t.Question,
		Files:       string(files),
		Status:      t.Status.String(),
		Dir:         t.Dir,
		Attempts:    t.Attempts,
		Error:       t.Error,
		Executions:  string(executions),
		CompletedAt: t.CompletedAt,
		DataModel: DataModel{
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		},
	}
}

func (m *Task) reconstitute() (*task.Task, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}

	status, err := task.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}

	var files []string
	if m.Files != "" {
		if err := json.Unmarshal([]byte(m.Files), &files); err != nil {
			return nil, err
		}
	}

	var executions []*task.Execution
	if m.Executions != "" {
		if err := json.Unmarshal([]byte(m.Executions), &executions); err != nil {
			return nil, err
		}
	}

	return &task.Task{
		ID:          id,
		Question:    m.Question,
		Files:       files,
		Status:      status,
		Dir:         m.Dir,
		Attempts:    m.Attempts,
		Error:       m.Error,
		Executions:  executions,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		CompletedAt: m.CompletedAt,

		EventStore: events.NewEventStore(),
	}, nil
}

type taskRepository struct {
	db *gorm.DB
}

func (repo *taskRepository) Store(t *task.Task) error {
	model := NewTask(t) // convert Domain to Data model

	return repo.db.Save(model).Error
}

func (repo *taskRepository) Delete(id uuid.UUID) error {
	result := repo.db.Delete(&Task{}, "id = ?", id.String())
	return result.Error
}

func (repo *taskRepository) ListAll() ([]*task.Task, error) {
	var models []*Task

	result := repo.db.Order("created_at DESC").Find(&models)
	if err := result.Error; err != nil {
		return nil, err
	}

	tasks := make([]*task.Task, 0)
	for _, m := range models {
		t, err := m.reconstitute()
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, t)
	}

	return tasks, nil
}

func (repo *taskRepository) Find(id uuid.UUID) (*task.Task, error) {
	var m *Task

	result := repo.db.Take(&m, "id = ?", id.String())
	if err := result.Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, task.ErrTaskNotFound
		}

		return nil, err
	}

	return m.reconstitute()
}

func (repo *taskRepository) Close() error {
	return nil
}

func (repo *taskRepository) Truncate() error {
	return repo.db.Exec("DELETE FROM tasks").Error
}
