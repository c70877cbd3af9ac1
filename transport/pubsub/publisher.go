package pubsub

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/querylab/analyst/conf"
	"github.com/querylab/analyst/events"
)

// TaskPublisher forwards task lifecycle events to a NATS subject tree.
type TaskPublisher struct {
	nc     *nats.Conn
	prefix string
	log    *zap.Logger
}

var _ events.Publisher = (*TaskPublisher)(nil)

func NewTaskPublisher(cfg conf.EventBus, log *zap.Logger) (*TaskPublisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("analyst"))
	if err != nil {
		return nil, err
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "tasks"
	}

	return &TaskPublisher{
		nc:     nc,
		prefix: prefix,
		log:    log.With(zap.String("transport", "pubsub")),
	}, nil
}

// Publish drops the event family prefix from the subject,
// task_created is published as tasks.created.
func (p *TaskPublisher) Publish(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	subject := taskSubject(p.prefix, e.EventName())
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Error(err.Error(), zap.String("subject", subject))
		return err
	}

	p.log.Info("event published", zap.String("subject", subject))
	return nil
}

func (p *TaskPublisher) Close() error {
	return p.nc.Drain()
}

func taskSubject(prefix, eventName string) string {
	return prefix + "." + strings.TrimPrefix(eventName, "task_")
}
