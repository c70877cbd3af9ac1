package analyst

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/google/uuid"

	"github.com/querylab/analyst/task"
)

func InstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) ServiceMiddleware {
	return func(next Service) Service {
		return &instrumentingMiddleware{counter, latency, next}
	}
}

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func (mw *instrumentingMiddleware) observe(method string, begin time.Time, err error) {
	lvs := []string{"method", method, "error", strconv.FormatBool(err != nil)}
	mw.requestCount.With(lvs...).Add(1)
	mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
}

func (mw *instrumentingMiddleware) Analyze(ctx context.Context, parts []Part) (result *AnalyzeResult, err error) {
	defer func(begin time.Time) {
		mw.observe("analyze", begin, err)
	}(time.Now())

	return mw.next.Analyze(ctx, parts)
}

func (mw *instrumentingMiddleware) Task(id uuid.UUID) (t *task.Task, err error) {
	defer func(begin time.Time) {
		mw.observe("task", begin, err)
	}(time.Now())

	return mw.next.Task(id)
}

func (mw *instrumentingMiddleware) Tasks() (ts []*task.Task, err error) {
	defer func(begin time.Time) {
		mw.observe("tasks", begin, err)
	}(time.Now())

	return mw.next.Tasks()
}

func (mw *instrumentingMiddleware) TaskLog(id uuid.UUID) (content string, err error) {
	defer func(begin time.Time) {
		mw.observe("task_log", begin, err)
	}(time.Now())

	return mw.next.TaskLog(id)
}

func (mw *instrumentingMiddleware) DeleteTask(id uuid.UUID) (err error) {
	defer func(begin time.Time) {
		mw.observe("delete_task", begin, err)
	}(time.Now())

	return mw.next.DeleteTask(id)
}
