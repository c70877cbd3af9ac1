package http

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/endpoint"
	"github.com/google/uuid"

	"github.com/querylab/analyst"
	"github.com/querylab/analyst/conf"
	"github.com/querylab/analyst/task"
)

// FrontendHandler serves the single-page upload form.
func FrontendHandler(c *gin.Context) {
	data, err := os.ReadFile(conf.G().Workspace.Frontend)
	if err != nil {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte("<p>Frontend file not found.</p>"))
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

// AnalyzeHandler reads the multipart form in submission order. Every part,
// file or value, becomes an uploaded file named after its field.
func AnalyzeHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		reader, err := c.Request.MultipartReader()
		if err != nil {
			c.Abort()
			c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		var parts []analyst.Part
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}

			if err != nil {
				c.Abort()
				c.Error(err)
				c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
				return
			}

			name := part.FormName()
			if name == "" {
				continue
			}

			data, err := io.ReadAll(part)
			if err != nil {
				c.Abort()
				c.Error(err)
				c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
				return
			}

			parts = append(parts, analyst.Part{Field: name, Data: data})
		}

		resp, err := endpoint(c, analyst.AnalyzeRequest{Parts: parts})
		if err != nil {
			writeError(c, err)
			return
		}

		result, ok := resp.(*analyst.AnalyzeResult)
		if !ok {
			err := errors.New("invalid analyze response")
			c.Abort()
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}

		c.Header("X-Task-ID", result.TaskID.String())
		c.Data(http.StatusOK, "application/json", result.Result)
	}
}

func TaskHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("task"))
		if err != nil {
			c.Abort()
			c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		resp, err := endpoint(c, id)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func TasksHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := endpoint(c, nil)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func TaskLogHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("task"))
		if err != nil {
			c.Abort()
			c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		resp, err := endpoint(c, id)
		if err != nil {
			writeError(c, err)
			return
		}

		log, ok := resp.(string)
		if !ok {
			err := errors.New("invalid log response")
			c.Abort()
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}

		c.String(http.StatusOK, "%s", log)
	}
}

func DeleteTaskHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("task"))
		if err != nil {
			c.Abort()
			c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		if _, err := endpoint(c, id); err != nil {
			writeError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func HealthHandler(started time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"name":   conf.G().Name,
			"uptime": time.Since(started).Round(time.Second).String(),
		})
	}
}

// writeError maps service errors to the wire. Upload validation is the
// caller's fault, everything else in the pipeline is a server failure.
func writeError(c *gin.Context, err error) {
	c.Abort()
	c.Error(err)

	var pipeErr *analyst.PipelineError
	if errors.As(err, &pipeErr) {
		status := http.StatusInternalServerError
		if pipeErr.Stage == analyst.StageUpload {
			status = http.StatusBadRequest
		}

		body := gin.H{"message": pipeErr.Message}
		if pipeErr.Details != "" {
			body["details"] = pipeErr.Details
		}

		c.JSON(status, body)
		return
	}

	if errors.Is(err, task.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "task not found"})
		return
	}

	if errors.Is(err, fs.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"message": "task log not found"})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
}
