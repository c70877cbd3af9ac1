package task

import "github.com/google/uuid"

type Repository interface {
	// Command

	Store(t *Task) error
	Delete(id uuid.UUID) error
	Truncate() error

	// Query

	ListAll() ([]*Task, error)
	Find(id uuid.UUID) (*Task, error)

	Close() error
}
