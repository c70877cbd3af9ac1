package analyst

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/querylab/analyst/task"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	return func(next Service) Service {
		return &loggingMiddleware{
			log.With(
				zap.String("service", "analyst"),
				zap.String("middleware", "logging"),
			),
			next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) Analyze(ctx context.Context, parts []Part) (*AnalyzeResult, error) {
	log := mw.log.With(
		zap.String("action", "analyze"),
		zap.Int("parts", len(parts)),
	)

	result, err := mw.next.Analyze(ctx, parts)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("analysis completed",
		zap.String("task_id", result.TaskID.String()),
		zap.Int("result_bytes", len(result.Result)),
	)
	return result, nil
}

func (mw *loggingMiddleware) Task(id uuid.UUID) (*task.Task, error) {
	log := mw.log.With(
		zap.String("action", "task"),
		zap.String("task_id", id.String()),
	)

	t, err := mw.next.Task(id)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("task found")
	return t, nil
}

func (mw *loggingMiddleware) Tasks() ([]*task.Task, error) {
	log := mw.log.With(
		zap.String("action", "tasks"),
	)

	ts, err := mw.next.Tasks()
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("tasks listed", zap.Int("count", len(ts)))
	return ts, nil
}

func (mw *loggingMiddleware) TaskLog(id uuid.UUID) (string, error) {
	log := mw.log.With(
		zap.String("action", "task_log"),
		zap.String("task_id", id.String()),
	)

	content, err := mw.next.TaskLog(id)
	if err != nil {
		log.Error(err.Error())
		return "", err
	}

	log.Info("task log read")
	return content, nil
}

func (mw *loggingMiddleware) DeleteTask(id uuid.UUID) error {
	log := mw.log.With(
		zap.String("action", "delete_task"),
		zap.String("task_id", id.String()),
	)

	if err := mw.next.DeleteTask(id); err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("task deleted")
	return nil
}
