package gemini

import "context"

// Service generates the Python programs the pipeline runs. A session
// groups the calls belonging to one task so the model keeps context
// between the scrape step, the answer step and any fix rounds.
type Service interface {
	GenerateScrapeCode(ctx context.Context, req ScrapeRequest) (*CodeResponse, error)
	GenerateAnswerCode(ctx context.Context, req AnswerRequest) (*CodeResponse, error)
	CloseSession(sessionID string)
}

type ScrapeRequest struct {
	SessionID     string
	QuestionText  string
	UploadedFiles []string
	Folder        string
}

type AnswerRequest struct {
	SessionID    string
	QuestionText string
	Folder       string

	// RetryMessage carries the tail of a failed run back to the model.
	RetryMessage string
}

// CodeResponse is the JSON document the model is instructed to reply with.
type CodeResponse struct {
	Code      string   `json:"code"`
	Libraries []string `json:"libraries"`
	Questions string   `json:"questions,omitempty"`
}
