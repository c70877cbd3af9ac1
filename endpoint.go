package analyst

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"
	"github.com/google/uuid"
)

type EndpointSet struct {
	Analyze    endpoint.Endpoint
	Task       endpoint.Endpoint
	Tasks      endpoint.Endpoint
	TaskLog    endpoint.Endpoint
	DeleteTask endpoint.Endpoint
}

type AnalyzeRequest struct {
	Parts []Part
}

func AnalyzeEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		req, ok := request.(AnalyzeRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		result, err := svc.Analyze(ctx, req.Parts)
		if err != nil {
			return nil, err
		}

		return result, nil
	}
}

func TaskEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		id, ok := request.(uuid.UUID)
		if !ok {
			return nil, errors.New("invalid request")
		}

		t, err := svc.Task(id)
		if err != nil {
			return nil, err
		}

		return t, nil
	}
}

func TasksEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		ts, err := svc.Tasks()
		if err != nil {
			return nil, err
		}

		return ts, nil
	}
}

func TaskLogEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		id, ok := request.(uuid.UUID)
		if !ok {
			return nil, errors.New("invalid request")
		}

		content, err := svc.TaskLog(id)
		if err != nil {
			return nil, err
		}

		return content, nil
	}
}

func DeleteTaskEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		id, ok := request.(uuid.UUID)
		if !ok {
			return nil, errors.New("invalid request")
		}

		return nil, svc.DeleteTask(id)
	}
}
