package rdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/querylab/analyst/conf"
	"github.com/querylab/analyst/events"
	"github.com/querylab/analyst/task"
)

const taskPrefix = "task:"

func NewTaskRepository(cfg conf.Persistence) (task.Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	repo := new(taskRepository)
	repo.client = client
	return repo, nil
}

type taskRepository struct {
	client *redis.Client
}

func key(id uuid.UUID) string {
	return taskPrefix + id.String()
}

func (repo *taskRepository) Store(t *task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return repo.client.Set(ctx, key(t.ID), data, 0).Err()
}

func (repo *taskRepository) Delete(id uuid.UUID) error {
	ctx := context.Background()
	return repo.client.Del(ctx, key(id)).Err()
}

func (repo *taskRepository) ListAll() ([]*task.Task, error) {
	ctx := context.Background()
	tasks := make([]*task.Task, 0)

	iter := repo.client.Scan(ctx, 0, taskPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := repo.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			return nil, err
		}

		t, err := reconstitute(data)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, t)
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	return tasks, nil
}

func (repo *taskRepository) Find(id uuid.UUID) (*task.Task, error) {
	ctx := context.Background()

	data, err := repo.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, task.ErrTaskNotFound
		}

		return nil, err
	}

	return reconstitute(data)
}

func (repo *taskRepository) Close() error {
	return repo.client.Close()
}

func (repo *taskRepository) Truncate() error {
	ctx := context.Background()

	iter := repo.client.Scan(ctx, 0, taskPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := repo.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}

	return iter.Err()
}

func reconstitute(data []byte) (*task.Task, error) {
	var t *task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}

	t.EventStore = events.NewEventStore()
	return t, nil
}
