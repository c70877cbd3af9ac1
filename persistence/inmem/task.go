package inmem

import (
	"sync"

	"github.com/google/uuid"

	"github.com/querylab/analyst/task"
)

func NewTaskRepository() (task.Repository, error) {
	repo := &taskRepository{
		tasks: make(map[uuid.UUID]*task.Task),
	}

	return repo, nil
}

type taskRepository struct {
	sync.RWMutex
	tasks map[uuid.UUID]*task.Task
}

func (repo *taskRepository) Store(t *task.Task) error {
	repo.Lock()
	defer repo.Unlock()

	repo.tasks[t.ID] = t
	return nil
}

func (repo *taskRepository) Delete(id uuid.UUID) error {
	repo.Lock()
	defer repo.Unlock()

	delete(repo.tasks, id)
	return nil
}

func (repo *taskRepository) ListAll() ([]*task.Task, error) {
	repo.RLock()
	defer repo.RUnlock()

	tasks := make([]*task.Task, 0, len(repo.tasks))
	for _, t := range repo.tasks {
		tasks = append(tasks, t)
	}

	return tasks, nil
}

func (repo *taskRepository) Find(id uuid.UUID) (*task.Task, error) {
	repo.RLock()
	defer repo.RUnlock()

	t, ok := repo.tasks[id]
	if !ok {
		return nil, task.ErrTaskNotFound
	}

	return t, nil
}

func (repo *taskRepository) Close() error {
	return nil
}

func (repo *taskRepository) Truncate() error {
	repo.Lock()
	defer repo.Unlock()

	repo.tasks = make(map[uuid.UUID]*task.Task)
	return nil
}
