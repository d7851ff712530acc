package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultVersion selects "any available" runtime on the execution
// service.
const DefaultVersion = "*"

var (
	ErrUnsupportedLanguage = errors.New("unsupported_language")
	ErrExecutionFailed     = errors.New("execution_failed")
)

// supported is the closed language set the proxy knows how to run.
var supported = map[string]struct{}{
	"javascript": {},
	"python":     {},
	"java":       {},
	"cpp":        {},
}

// Supported reports whether the proxy can run code in language.
func Supported(language string) bool {
	_, ok := supported[language]
	return ok
}

// Result is the outcome of one remote execution. Output is the combined
// stdout/stderr text and is never empty after a failed run: callers can
// broadcast it as-is.
type Result struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Output string `json:"output"`
}

type IExecutionService interface {
	Execute(ctx context.Context, language, version, code string) (*Result, error)
}

// FallbackResult turns an execution failure into a broadcastable result
// so the room is never left waiting with no codeResponse.
func FallbackResult(err error) *Result {
	msg := "execution failed: " + err.Error()
	return &Result{Stderr: msg, Output: msg}
}

// ─────────────────────────── Piston client ───────────────────────────────────

// pistonService talks to a Piston-compatible execute endpoint
// (https://emkc.org/api/v2/piston/execute or a self-hosted runner).
type pistonService struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func NewPistonService(url string, timeout time.Duration) IExecutionService {
	return &pistonService{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

type pistonFile struct {
	Content string `json:"content"`
}

type pistonRequest struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Files    []pistonFile `json:"files"`
}

type pistonResponse struct {
	Run     Result `json:"run"`
	Message string `json:"message"` // set on API-level errors
}

// Execute posts the source to the runner and returns its run result.
// The wait is bounded by the service timeout regardless of ctx.
func (svc *pistonService) Execute(ctx context.Context, language, version, code string) (*Result, error) {
	if !Supported(language) {
		return nil, ErrUnsupportedLanguage
	}
	if version == "" {
		version = DefaultVersion
	}

	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	body, err := json.Marshal(pistonRequest{
		Language: language,
		Version:  version,
		Files:    []pistonFile{{Content: code}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := svc.client.Do(req)
	if err != nil {
		zap.L().Warn("executor.request", zap.String("language", language), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var out pistonResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed response", ErrExecutionFailed)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrExecutionFailed, out.Message)
		}
		return nil, fmt.Errorf("%w: status %d", ErrExecutionFailed, resp.StatusCode)
	}

	zap.L().Debug("executor.run",
		zap.String("language", language),
		zap.String("version", version),
		zap.Duration("took", time.Since(start)))
	return &out.Run, nil
}
