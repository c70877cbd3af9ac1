package analyst

type Stage int

const (
	StageUpload Stage = iota
	StageScrapeCodegen
	StageScrapeRun
	StageMetadata
	StageAnswerCodegen
	StageFix
	StageAnswerRun
	StageResult
)

func (s Stage) String() string {
	switch s {
	case StageUpload:
		return "upload"
	case StageScrapeCodegen:
		return "scrape_codegen"
	case StageScrapeRun:
		return "scrape_run"
	case StageMetadata:
		return "metadata"
	case StageAnswerCodegen:
		return "answer_codegen"
	case StageFix:
		return "fix"
	case StageAnswerRun:
		return "answer_run"
	case StageResult:
		return "result"
	default:
		return "unknown"
	}
}

// PipelineError reports which stage of an analysis failed. Message and
// Details are what the client sees, Err keeps the underlying cause.
type PipelineError struct {
	Stage   Stage
	Message string
	Details string
	Err     error
}

func (e *PipelineError) Error() string {
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
