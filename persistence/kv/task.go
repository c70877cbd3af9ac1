package kv

import (
	"encoding/json"
	"errors"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/querylab/analyst/conf"
	"github.com/querylab/analyst/events"
	"github.com/querylab/analyst/task"
)

const taskPrefix = "task:"

func NewTaskRepository(cfg conf.Persistence) (task.Repository, error) {
	opts := badger.DefaultOptions(filepath.Join(cfg.Host, cfg.Name))
	if cfg.InMem {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	repo := new(taskRepository)
	repo.db = db
	return repo, nil
}

type taskRepository struct {
	db *badger.DB
}

func key(id uuid.UUID) []byte {
	return []byte(taskPrefix + id.String())
}

func (repo *taskRepository) Store(t *task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	return repo.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(t.ID), data)
	})
}

func (repo *taskRepository) Delete(id uuid.UUID) error {
	return repo.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
}

func (repo *taskRepository) ListAll() ([]*task.Task, error) {
	tasks := make([]*task.Task, 0)

	err := repo.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(taskPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				t, err := reconstitute(val)
				if err != nil {
					return err
				}

				tasks = append(tasks, t)
				return nil
			})

			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return tasks, nil
}

func (repo *taskRepository) Find(id uuid.UUID) (*task.Task, error) {
	var t *task.Task

	err := repo.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			found, err := reconstitute(val)
			if err != nil {
				return err
			}

			t = found
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, task.ErrTaskNotFound
		}

		return nil, err
	}

	return t, nil
}

func (repo *taskRepository) Close() error {
	return repo.db.Close()
}

func (repo *taskRepository) Truncate() error {
	return repo.db.DropAll()
}

func reconstitute(data []byte) (*task.Task, error) {
	var t *task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}

	t.EventStore = events.NewEventStore()
	return t, nil
}
