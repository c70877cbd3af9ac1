package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/querylab/analyst/conf"
	"github.com/querylab/analyst/engine"
	"github.com/querylab/analyst/gemini"
	"github.com/querylab/analyst/task"
)

const (
	questionsFile = "questions.txt"
	metadataFile  = "metadata.txt"
	resultFile    = "result.json"
	taskLogFile   = "app.log"
)

type Service interface {
	Analyze(ctx context.Context, parts []Part) (*AnalyzeResult, error)
	Task(id uuid.UUID) (*task.Task, error)
	Tasks() ([]*task.Task, error)
	TaskLog(id uuid.UUID) (string, error)
	DeleteTask(id uuid.UUID) error
}

type ServiceMiddleware func(Service) Service

// Part is one field of the multipart upload. The field name doubles as
// the file name inside the task workspace.
type Part struct {
	Field string
	Data  []byte
}

type AnalyzeResult struct {
	TaskID uuid.UUID
	Result json.RawMessage
}

func NewService(tasks task.Repository, llm gemini.Service, runner engine.Runner) Service {
	return &service{tasks, llm, runner}
}

type service struct {
	tasks  task.Repository
	llm    gemini.Service
	runner engine.Runner
}

func (svc *service) Analyze(ctx context.Context, parts []Part) (*AnalyzeResult, error) {
	cfg := conf.G()

	t := task.NewTask()

	dir := filepath.Join(cfg.Workspace.Root, t.ID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	t.Dir = dir

	log, closeLog, err := newTaskLogger(dir, t.ID.String())
	if err != nil {
		return nil, err
	}
	defer closeLog()

	log.Info("Step-1: Folder created: " + dir)

	fail := func(e *PipelineError) (*AnalyzeResult, error) {
		t.Fail(e.Message)
		svc.finish(t)
		return nil, e
	}

	var question string
	for _, p := range parts {
		name := filepath.Base(p.Field)
		if name == "." || name == ".." || name == string(filepath.Separator) {
			continue
		}

		if err := os.WriteFile(filepath.Join(dir, name), p.Data, 0o644); err != nil {
			t.Fail(err.Error())
			svc.finish(t)
			return nil, fmt.Errorf("save %s: %w", name, err)
		}

		t.Files = append(t.Files, name)

		if question == "" && strings.Contains(p.Field, questionsFile) {
			question = string(p.Data)
		}
	}

	if question == "" {
		return fail(&PipelineError{
			Stage:   StageUpload,
			Message: "questions.txt is a required field.",
		})
	}

	t.Question = question
	t.Start()
	log.Info("Step-2: Files received and saved.")

	scrape, err := svc.llm.GenerateScrapeCode(ctx, gemini.ScrapeRequest{
		SessionID:     t.ID.String(),
		QuestionText:  question,
		UploadedFiles: t.Files,
		Folder:        dir,
	})
	if err != nil {
		log.Error("Error getting initial code from LLM: " + err.Error())
		return fail(&PipelineError{
			Stage:   StageScrapeCodegen,
			Message: "LLM Error: " + err.Error(),
			Err:     err,
		})
	}
	log.Info("Step-3: Received scraping code from LLM.")

	exec := task.NewExecution(task.ExecScrape, 1)
	res, runErr := svc.runner.Run(ctx, engine.Spec{
		Name:      "scrape",
		Code:      scrape.Code,
		Libraries: scrape.Libraries,
		Dir:       dir,
	})
	record(t, exec, res, runErr)

	if runErr != nil {
		log.Error("Error executing scraping code: " + exec.Output)
		return fail(&PipelineError{
			Stage:   StageScrapeRun,
			Message: "Failed to execute data scraping code.",
			Details: exec.Output,
			Err:     runErr,
		})
	}
	log.Info("Step-4: Scraping code executed successfully.")

	metadataPath := filepath.Join(dir, metadataFile)
	if _, err := os.Stat(metadataPath); err != nil {
		msg := fmt.Sprintf("Scraping code executed successfully, but failed to create metadata.txt at %s.", metadataPath)
		log.Error(msg)
		return fail(&PipelineError{
			Stage:   StageMetadata,
			Message: msg,
			Err:     err,
		})
	}

	answer, err := svc.llm.GenerateAnswerCode(ctx, gemini.AnswerRequest{
		SessionID:    t.ID.String(),
		QuestionText: scrape.Questions,
		Folder:       dir,
	})
	if err != nil {
		log.Error("Error getting answer code from LLM: " + err.Error())
		return fail(&PipelineError{
			Stage:   StageAnswerCodegen,
			Message: "LLM Error during answer generation: " + err.Error(),
			Err:     err,
		})
	}
	log.Info("Step-5: Received answer code from LLM.")

	attempts := cfg.Gemini.FixAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		log.Info(fmt.Sprintf("Step-6: Executing final code (Attempt %d/%d).", attempt, attempts))

		exec := task.NewExecution(task.ExecAnswer, attempt)
		res, runErr := svc.runner.Run(ctx, engine.Spec{
			Name:      "answer",
			Code:      answer.Code,
			Libraries: answer.Libraries,
			Dir:       dir,
		})
		record(t, exec, res, runErr)

		if runErr == nil {
			log.Info("Step-6: Final code executed successfully!")
			break
		}

		log.Error(fmt.Sprintf("Execution failed on attempt %d. Error: %s", attempt, exec.Output))

		if attempt == attempts {
			log.Error("Max retry attempts reached. Could not execute final code.")
			return fail(&PipelineError{
				Stage:   StageAnswerRun,
				Message: "Failed to execute final answer code after retries.",
				Details: exec.Output,
				Err:     runErr,
			})
		}

		log.Info("Asking LLM to fix the code.")

		fixed, err := svc.llm.GenerateAnswerCode(ctx, gemini.AnswerRequest{
			SessionID:    t.ID.String(),
			QuestionText: scrape.Questions,
			Folder:       dir,
			RetryMessage: task.LastNWords(exec.Output, 100),
		})
		if err != nil {
			log.Error("LLM failed to provide a fix: " + err.Error())
			return fail(&PipelineError{
				Stage:   StageFix,
				Message: "LLM could not fix the code.",
				Details: err.Error(),
				Err:     err,
			})
		}

		answer = fixed
		log.Info("Received corrected code from LLM.")
	}

	data, err := os.ReadFile(filepath.Join(dir, resultFile))
	if err == nil && !gjson.ValidBytes(data) {
		err = errors.New("result.json is not valid JSON")
	}

	if err != nil {
		log.Error("Step-7: Error reading result.json: " + err.Error())
		return fail(&PipelineError{
			Stage:   StageResult,
			Message: "Could not read result file.",
			Details: err.Error(),
			Err:     err,
		})
	}

	log.Info("Step-7: Successfully sending result back.")

	t.Complete()
	svc.finish(t)

	return &AnalyzeResult{TaskID: t.ID, Result: data}, nil
}

func (svc *service) Task(id uuid.UUID) (*task.Task, error) {
	return svc.tasks.Find(id)
}

func (svc *service) Tasks() ([]*task.Task, error) {
	return svc.tasks.ListAll()
}

func (svc *service) TaskLog(id uuid.UUID) (string, error) {
	t, err := svc.tasks.Find(id)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(t.Dir, taskLogFile))
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func (svc *service) DeleteTask(id uuid.UUID) error {
	t, err := svc.tasks.Find(id)
	if err != nil {
		return err
	}

	if t.Dir != "" {
		if err := os.RemoveAll(t.Dir); err != nil {
			return err
		}
	}

	return svc.tasks.Delete(id)
}

// finish closes the model session, persists the terminal state and
// publishes the task events.
func (svc *service) finish(t *task.Task) {
	svc.llm.CloseSession(t.ID.String())

	if err := svc.tasks.Store(t); err != nil {
		zap.L().Error("failed to store task",
			zap.String("task", t.ID.String()),
			zap.Error(err),
		)
	}

	t.Notify()
}

func record(t *task.Task, e *task.Execution, res *engine.Result, err error) {
	if res != nil {
		e.Output = res.Output
		e.Duration = res.Duration
	}

	e.Success = err == nil
	t.RecordExecution(e)
}

// newTaskLogger tees the global logger with an app.log inside the task
// workspace, so each run carries its own readable trace.
func newTaskLogger(dir string, taskID string) (*zap.Logger, func(), error) {
	f, err := os.OpenFile(filepath.Join(dir, taskLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}

	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	fileCore := zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.InfoLevel)

	log := zap.New(zapcore.NewTee(zap.L().Core(), fileCore)).
		With(zap.String("task", taskID))

	closer := func() {
		log.Sync()
		f.Close()
	}

	return log, closer, nil
}
