package persistence

import (
	"errors"

	"github.com/querylab/analyst/conf"
	"github.com/querylab/analyst/persistence/db"
	"github.com/querylab/analyst/persistence/inmem"
	"github.com/querylab/analyst/persistence/kv"
	"github.com/querylab/analyst/persistence/rdb"
	"github.com/querylab/analyst/task"
)

func NewTaskRepository(cfg conf.Persistence) (task.Repository, error) {
	switch cfg.Driver {
	case conf.SQLite:
		return db.NewTaskRepository(cfg)
	case conf.BadgerDB:
		return kv.NewTaskRepository(cfg)
	case conf.Redis:
		return rdb.NewTaskRepository(cfg)
	case conf.InMem:
		return inmem.NewTaskRepository()
	default:
		return nil, errors.New("driver not supported")
	}
}
