package analyst

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/querylab/analyst/conf"
	"github.com/querylab/analyst/engine"
	"github.com/querylab/analyst/events"
	"github.com/querylab/analyst/gemini"
	"github.com/querylab/analyst/persistence/inmem"
	"github.com/querylab/analyst/task"
)

type llmStub struct {
	scrape func(req gemini.ScrapeRequest) (*gemini.CodeResponse, error)
	answer func(req gemini.AnswerRequest) (*gemini.CodeResponse, error)
	closed []string
}

func (s *llmStub) GenerateScrapeCode(ctx context.Context, req gemini.ScrapeRequest) (*gemini.CodeResponse, error) {
	return s.scrape(req)
}

func (s *llmStub) GenerateAnswerCode(ctx context.Context, req gemini.AnswerRequest) (*gemini.CodeResponse, error) {
	return s.answer(req)
}

func (s *llmStub) CloseSession(sessionID string) {
	s.closed = append(s.closed, sessionID)
}

type runnerStub struct {
	run func(spec engine.Spec) (*engine.Result, error)
}

func (r *runnerStub) Run(ctx context.Context, spec engine.Spec) (*engine.Result, error) {
	return r.run(spec)
}

type analystTestSuite struct {
	suite.Suite
	tasks  task.Repository
	llm    *llmStub
	runner *runnerStub
	pub    *events.SimplePublisher
	svc    Service
}

func (suite *analystTestSuite) SetupTest() {
	cfg := &conf.Config{}
	cfg.Workspace.Root = suite.T().TempDir()
	cfg.Gemini.FixAttempts = 3
	conf.ReplaceGlobals(cfg)

	suite.pub = events.NewSimplePublisher()
	events.ReplaceGlobals(suite.pub)

	suite.llm = &llmStub{
		scrape: func(req gemini.ScrapeRequest) (*gemini.CodeResponse, error) {
			return &gemini.CodeResponse{
				Code:      "print('scrape')",
				Libraries: []string{"pandas"},
				Questions: "restated questions",
			}, nil
		},
		answer: func(req gemini.AnswerRequest) (*gemini.CodeResponse, error) {
			return &gemini.CodeResponse{Code: "print('answer')"}, nil
		},
	}

	suite.runner = &runnerStub{
		run: func(spec engine.Spec) (*engine.Result, error) {
			switch spec.Name {
			case "scrape":
				os.WriteFile(filepath.Join(spec.Dir, "metadata.txt"), []byte("files"), 0o644)
			case "answer":
				os.WriteFile(filepath.Join(spec.Dir, "result.json"), []byte(`[1, "ok"]`), 0o644)
			}

			return &engine.Result{Output: "done"}, nil
		},
	}

	tasks, err := inmem.NewTaskRepository()
	suite.Require().NoError(err)

	suite.tasks = tasks
	suite.svc = NewService(suite.tasks, suite.llm, suite.runner)
}

func (suite *analystTestSuite) parts() []Part {
	return []Part{
		{Field: "questions.txt", Data: []byte("How many rows?")},
		{Field: "data.csv", Data: []byte("a,b\n1,2\n")},
	}
}

func (suite *analystTestSuite) TestAnalyze() {
	result, err := suite.svc.Analyze(context.Background(), suite.parts())
	suite.Require().NoError(err)

	suite.JSONEq(`[1, "ok"]`, string(result.Result))

	t, err := suite.tasks.Find(result.TaskID)
	suite.Require().NoError(err)

	suite.Equal(task.Succeeded, t.Status)
	suite.Equal([]string{"questions.txt", "data.csv"}, t.Files)
	suite.Equal("How many rows?", t.Question)
	suite.Len(t.Executions, 2)
	suite.Equal([]string{t.ID.String()}, suite.llm.closed)

	saved, err := os.ReadFile(filepath.Join(t.Dir, "data.csv"))
	suite.Require().NoError(err)
	suite.Equal("a,b\n1,2\n", string(saved))

	log, err := os.ReadFile(filepath.Join(t.Dir, "app.log"))
	suite.Require().NoError(err)
	suite.Contains(string(log), "Step-1: Folder created:")
	suite.Contains(string(log), "Step-7: Successfully sending result back.")

	es := suite.pub.Events()
	suite.Require().Len(es, 2)
	suite.Equal(task.TaskCreated.String(), es[0].EventName())
	suite.Equal(task.TaskCompleted.String(), es[1].EventName())
}

func (suite *analystTestSuite) TestAnalyzeWithoutQuestions() {
	_, err := suite.svc.Analyze(context.Background(), []Part{
		{Field: "data.csv", Data: []byte("a,b\n")},
	})
	suite.Require().Error(err)

	var perr *PipelineError
	suite.Require().ErrorAs(err, &perr)
	suite.Equal(StageUpload, perr.Stage)
	suite.Equal("questions.txt is a required field.", perr.Message)

	ts, err := suite.tasks.ListAll()
	suite.Require().NoError(err)
	suite.Require().Len(ts, 1)
	suite.Equal(task.Failed, ts[0].Status)
}

func (suite *analystTestSuite) TestScrapeRunFails() {
	suite.runner.run = func(spec engine.Spec) (*engine.Result, error) {
		return &engine.Result{Output: "Traceback: boom", ExitCode: 1}, engine.ErrRunFailed
	}

	_, err := suite.svc.Analyze(context.Background(), suite.parts())
	suite.Require().Error(err)

	var perr *PipelineError
	suite.Require().ErrorAs(err, &perr)
	suite.Equal(StageScrapeRun, perr.Stage)
	suite.Equal("Failed to execute data scraping code.", perr.Message)
	suite.Equal("Traceback: boom", perr.Details)

	ts, _ := suite.tasks.ListAll()
	suite.Require().Len(ts, 1)
	suite.Len(ts[0].Executions, 1)
	suite.False(ts[0].Executions[0].Success)
}

func (suite *analystTestSuite) TestMetadataMissing() {
	suite.runner.run = func(spec engine.Spec) (*engine.Result, error) {
		return &engine.Result{}, nil
	}

	_, err := suite.svc.Analyze(context.Background(), suite.parts())
	suite.Require().Error(err)

	var perr *PipelineError
	suite.Require().ErrorAs(err, &perr)
	suite.Equal(StageMetadata, perr.Stage)
	suite.Contains(perr.Message, "failed to create metadata.txt at")
}

func (suite *analystTestSuite) TestAnswerFixedAfterRetry() {
	var retries []string
	suite.llm.answer = func(req gemini.AnswerRequest) (*gemini.CodeResponse, error) {
		if req.RetryMessage != "" {
			retries = append(retries, req.RetryMessage)
		}

		return &gemini.CodeResponse{Code: "print('answer')"}, nil
	}

	answerRuns := 0
	suite.runner.run = func(spec engine.Spec) (*engine.Result, error) {
		switch spec.Name {
		case "scrape":
			os.WriteFile(filepath.Join(spec.Dir, "metadata.txt"), []byte("files"), 0o644)
			return &engine.Result{}, nil
		default:
			answerRuns++
			if answerRuns == 1 {
				return &engine.Result{Output: "NameError: df is not defined"}, engine.ErrRunFailed
			}

			os.WriteFile(filepath.Join(spec.Dir, "result.json"), []byte(`{"answer": 42}`), 0o644)
			return &engine.Result{}, nil
		}
	}

	result, err := suite.svc.Analyze(context.Background(), suite.parts())
	suite.Require().NoError(err)
	suite.JSONEq(`{"answer": 42}`, string(result.Result))

	suite.Equal([]string{"NameError: df is not defined"}, retries)

	t, _ := suite.tasks.Find(result.TaskID)
	suite.Equal(2, t.Attempts)
	suite.Len(t.Executions, 3)
}

func (suite *analystTestSuite) TestAnswerRetriesExhausted() {
	fixes := 0
	suite.llm.answer = func(req gemini.AnswerRequest) (*gemini.CodeResponse, error) {
		if req.RetryMessage != "" {
			fixes++
		}

		return &gemini.CodeResponse{Code: "print('answer')"}, nil
	}

	suite.runner.run = func(spec engine.Spec) (*engine.Result, error) {
		if spec.Name == "scrape" {
			os.WriteFile(filepath.Join(spec.Dir, "metadata.txt"), []byte("files"), 0o644)
			return &engine.Result{}, nil
		}

		return &engine.Result{Output: "still broken"}, engine.ErrRunFailed
	}

	_, err := suite.svc.Analyze(context.Background(), suite.parts())
	suite.Require().Error(err)

	var perr *PipelineError
	suite.Require().ErrorAs(err, &perr)
	suite.Equal(StageAnswerRun, perr.Stage)
	suite.Equal("Failed to execute final answer code after retries.", perr.Message)
	suite.Equal("still broken", perr.Details)
	suite.Equal(2, fixes)

	ts, _ := suite.tasks.ListAll()
	suite.Require().Len(ts, 1)
	suite.Equal(3, ts[0].Attempts)
	suite.Len(ts[0].Executions, 4)

	es := suite.pub.Events()
	suite.Require().Len(es, 2)
	suite.Equal(task.TaskFailed.String(), es[1].EventName())
}

func (suite *analystTestSuite) TestResultInvalid() {
	suite.runner.run = func(spec engine.Spec) (*engine.Result, error) {
		switch spec.Name {
		case "scrape":
			os.WriteFile(filepath.Join(spec.Dir, "metadata.txt"), []byte("files"), 0o644)
		case "answer":
			os.WriteFile(filepath.Join(spec.Dir, "result.json"), []byte("not json"), 0o644)
		}

		return &engine.Result{}, nil
	}

	_, err := suite.svc.Analyze(context.Background(), suite.parts())
	suite.Require().Error(err)

	var perr *PipelineError
	suite.Require().ErrorAs(err, &perr)
	suite.Equal(StageResult, perr.Stage)
	suite.Equal("Could not read result file.", perr.Message)
}

func (suite *analystTestSuite) TestLLMError() {
	suite.llm.scrape = func(req gemini.ScrapeRequest) (*gemini.CodeResponse, error) {
		return nil, errors.New("quota exceeded")
	}

	_, err := suite.svc.Analyze(context.Background(), suite.parts())
	suite.Require().Error(err)

	var perr *PipelineError
	suite.Require().ErrorAs(err, &perr)
	suite.Equal(StageScrapeCodegen, perr.Stage)
	suite.Equal("LLM Error: quota exceeded", perr.Message)
}

func (suite *analystTestSuite) TestTaskQueries() {
	result, err := suite.svc.Analyze(context.Background(), suite.parts())
	suite.Require().NoError(err)

	t, err := suite.svc.Task(result.TaskID)
	suite.Require().NoError(err)
	suite.Equal(result.TaskID, t.ID)

	ts, err := suite.svc.Tasks()
	suite.Require().NoError(err)
	suite.Len(ts, 1)

	log, err := suite.svc.TaskLog(result.TaskID)
	suite.Require().NoError(err)
	suite.Contains(log, "Step-2: Files received and saved.")

	err = suite.svc.DeleteTask(result.TaskID)
	suite.Require().NoError(err)

	_, err = os.Stat(t.Dir)
	suite.True(os.IsNotExist(err))

	_, err = suite.svc.Task(result.TaskID)
	suite.ErrorIs(err, task.ErrTaskNotFound)
}

func TestAnalystTestSuite(t *testing.T) {
	suite.Run(t, new(analystTestSuite))
}
