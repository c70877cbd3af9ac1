package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/querylab/analyst/conf"
	"github.com/querylab/analyst/task"
)

type taskRepositoryTestSuite struct {
	suite.Suite
	tasks task.Repository
	task  *task.Task
}

func (suite *taskRepositoryTestSuite) SetupSuite() {
	cfg := conf.Persistence{
		Driver: conf.SQLite,
		Name:   "analyst",
		InMem:  true,
	}

	tasks, err := NewTaskRepository(cfg)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.tasks = tasks
}

func (suite *taskRepositoryTestSuite) SetupTest() {
	suite.tasks.Truncate()

	t := task.NewTask()
	t.Question = "Plot the trend."
	t.Files = []string{"questions.txt", "sales.csv"}
	t.Dir = "/tmp/uploads/" + t.ID.String()
	t.Start()
	suite.tasks.Store(t)

	suite.task = t
}

func (suite *taskRepositoryTestSuite) TestFind() {
	t, err := suite.tasks.Find(suite.task.ID)
	suite.NoError(err)
	suite.Equal(suite.task.ID, t.ID)
	suite.Equal(task.Running, t.Status)
	suite.Equal("Plot the trend.", t.Question)
	suite.Equal([]string{"questions.txt", "sales.csv"}, t.Files)
}

func (suite *taskRepositoryTestSuite) TestFindNotFound() {
	_, err := suite.tasks.Find(uuid.New())
	suite.ErrorIs(err, task.ErrTaskNotFound)
}

func (suite *taskRepositoryTestSuite) TestUpdate() {
	t, err := suite.tasks.Find(suite.task.ID)
	suite.NoError(err)

	t.RecordExecution(task.NewExecution(task.ExecScrape, 1))
	t.RecordExecution(task.NewExecution(task.ExecAnswer, 2))
	t.Fail("Max retry attempts reached.")

	err = suite.tasks.Store(t)
	suite.NoError(err)

	found, err := suite.tasks.Find(suite.task.ID)
	suite.NoError(err)
	suite.Equal(task.Failed, found.Status)
	suite.Equal("Max retry attempts reached.", found.Error)
	suite.Equal(2, found.Attempts)
	suite.Len(found.Executions, 2)
	suite.Equal(task.ExecAnswer, found.Executions[1].Kind)
}

func (suite *taskRepositoryTestSuite) TestListAll() {
	t2 := task.NewTask()
	suite.tasks.Store(t2)

	all, err := suite.tasks.ListAll()
	suite.NoError(err)
	suite.Len(all, 2)
}

func (suite *taskRepositoryTestSuite) TestDelete() {
	err := suite.tasks.Delete(suite.task.ID)
	suite.NoError(err)

	_, err = suite.tasks.Find(suite.task.ID)
	suite.ErrorIs(err, task.ErrTaskNotFound)
}

func (suite *taskRepositoryTestSuite) TearDownSuite() {
	suite.tasks.Truncate()
	suite.tasks.Close()
}

func TestTaskRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(taskRepositoryTestSuite))
}
