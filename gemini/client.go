package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/querylab/analyst/conf"
)

func NewService(cfg conf.Gemini) Service {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &restService{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		sessions: make(map[string][]content),
	}
}

type restService struct {
	cfg    conf.Gemini
	client *http.Client

	mu       sync.Mutex
	sessions map[string][]content
}

func (svc *restService) GenerateScrapeCode(ctx context.Context, req ScrapeRequest) (*CodeResponse, error) {
	var b strings.Builder
	b.WriteString("Questions:\n")
	b.WriteString(req.QuestionText)
	b.WriteString("\n\n")

	if len(req.UploadedFiles) > 0 {
		b.WriteString("Files already saved in the working directory:\n")
		for _, f := range req.UploadedFiles {
			b.WriteString("- " + f + "\n")
		}
	} else {
		b.WriteString("No files were uploaded.\n")
	}

	resp, err := svc.generate(ctx, req.SessionID, scrapeSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	if resp.Questions == "" {
		resp.Questions = req.QuestionText
	}

	return resp, nil
}

func (svc *restService) GenerateAnswerCode(ctx context.Context, req AnswerRequest) (*CodeResponse, error) {
	var b strings.Builder
	if req.RetryMessage != "" {
		b.WriteString("The previous script failed. Tail of its error output:\n")
		b.WriteString(req.RetryMessage)
		b.WriteString("\n\nReturn a corrected script in the same JSON format.")
	} else {
		b.WriteString("metadata.txt in the working directory describes the data files ")
		b.WriteString("gathered so far. Write the script that answers these questions ")
		b.WriteString("and saves the answers to result.json:\n\n")
		b.WriteString(req.QuestionText)
	}

	return svc.generate(ctx, req.SessionID, answerSystemPrompt, b.String())
}

func (svc *restService) CloseSession(sessionID string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	delete(svc.sessions, sessionID)
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

func (svc *restService) generate(ctx context.Context, sessionID string, system string, message string) (*CodeResponse, error) {
	user := content{Role: "user", Parts: []part{{Text: message}}}

	svc.mu.Lock()
	history := make([]content, len(svc.sessions[sessionID]))
	copy(history, svc.sessions[sessionID])
	svc.mu.Unlock()

	body := &generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: system}}},
		Contents:          append(history, user),
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			Temperature:      0.2,
		},
	}

	text, err := svc.post(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := parseCodeResponse(text)
	if err != nil {
		return nil, err
	}

	// failed rounds are not remembered, a retry resends the same turn
	svc.mu.Lock()
	svc.sessions[sessionID] = append(svc.sessions[sessionID],
		user,
		content{Role: "model", Parts: []part{{Text: text}}},
	)
	svc.mu.Unlock()

	return resp, nil
}

func (svc *restService) post(ctx context.Context, body *generateRequest) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimSuffix(svc.cfg.BaseURL, "/"), svc.cfg.Model)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return "", err
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", svc.cfg.APIKey)

		resp, err := svc.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		text, err := decodeResponse(resp)
		if err == nil {
			return text, nil
		}

		if !retryable(resp.StatusCode) {
			return "", err
		}

		lastErr = err
	}

	return "", lastErr
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func decodeResponse(resp *http.Response) (string, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gemini: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&out); err != nil {
		return "", err
	}

	if len(out.Candidates) == 0 {
		return "", errors.New("gemini: response has no candidates")
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}

	if b.Len() == 0 {
		return "", errors.New("gemini: response has no text")
	}

	return b.String(), nil
}

func parseCodeResponse(text string) (*CodeResponse, error) {
	var resp *CodeResponse
	if err := json.Unmarshal([]byte(stripFences(text)), &resp); err != nil {
		return nil, fmt.Errorf("gemini: malformed code response: %w", err)
	}

	if strings.TrimSpace(resp.Code) == "" {
		return nil, errors.New("gemini: response contains no code")
	}

	return resp, nil
}

// stripFences removes a surrounding markdown code fence, which the
// model sometimes adds despite the JSON response mime type.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}

	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
