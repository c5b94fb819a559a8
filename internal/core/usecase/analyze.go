package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

type ClientState string

const (
	StateUninitialized ClientState = "uninitialized"
	StateConfigured    ClientState = "configured"
	StateReady         ClientState = "ready"
	StateFailed        ClientState = "failed"
)

const (
	probePrompt  = "Hello, respond with 'API working'"
	footerFormat = "\n\n---\n*Analysis completed at %s*"
	footerLayout = "2006-01-02 15:04:05"
)

var errEmptyResponse = errors.New("no response generated: the API returned an empty response")

type AnalysisOptions struct {
	MinTextChars int
	Observer     ports.AnalysisObserver
	Logger       *slog.Logger
	Now          func() time.Time
}

// AnalysisClient owns one provider connection and one rate limiter. Calls on
// the same client are serialized.
type AnalysisClient struct {
	generator    ports.TextGenerator
	limiter      ports.RateLimiter
	executor     ports.CallExecutor
	observer     ports.AnalysisObserver
	logger       *slog.Logger
	minTextChars int
	now          func() time.Time

	mu          sync.Mutex
	state       ClientState
	failureKind domain.ErrorKind
	failureText string
}

var _ ports.DocumentAnalyzer = (*AnalysisClient)(nil)

// NewAnalysisClient connects with credential and sends a probe completion.
// It never fails: a client that could not be configured stays in
// StateFailed and reports the recorded reason from every Analyze call.
func NewAnalysisClient(
	ctx context.Context,
	credential string,
	connect ports.ProviderConnector,
	limiter ports.RateLimiter,
	executor ports.CallExecutor,
	opts AnalysisOptions,
) *AnalysisClient {
	if opts.MinTextChars <= 0 {
		opts.MinTextChars = 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &AnalysisClient{
		limiter:      limiter,
		executor:     executor,
		observer:     opts.Observer,
		logger:       opts.Logger,
		minTextChars: opts.MinTextChars,
		now:          opts.Now,
		state:        StateUninitialized,
	}

	if strings.TrimSpace(credential) == "" {
		c.fail(domain.KindCredential, "API key is missing.")
		return c
	}

	generator, err := connect(ctx, credential)
	if err != nil {
		c.failWith(err)
		return c
	}
	c.generator = generator
	c.state = StateConfigured

	if err := c.probe(ctx); err != nil {
		c.failWith(err)
		_ = c.closeGenerator()
		return c
	}
	c.state = StateReady
	c.logger.Info("analysis_client_ready")
	return c
}

// Close releases the provider connection. Analyze calls after Close fail
// without reaching the provider.
func (c *AnalysisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateReady {
		c.fail(domain.KindUnknownProvider, "Analyzer is closed.")
	}
	return c.closeGenerator()
}

func (c *AnalysisClient) closeGenerator() error {
	generator := c.generator
	c.generator = nil
	if closer, ok := generator.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Status reports the lifecycle state and, for StateFailed, the reason.
func (c *AnalysisClient) Status() (ClientState, domain.ErrorKind, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.failureKind, c.failureText
}

func (c *AnalysisClient) LastRequestAt() time.Time {
	if c.limiter == nil {
		return time.Time{}
	}
	return c.limiter.LastRequestAt()
}

func (c *AnalysisClient) Analyze(ctx context.Context, req domain.AnalysisRequest) domain.AnalysisResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	mode := domain.ParseMode(string(req.Mode))
	if c.state != StateReady {
		return c.finish(mode, domain.FailedResult(mode, c.failureKind, c.failureText), 0)
	}

	if utf8.RuneCountInString(strings.TrimSpace(req.DocumentText)) < c.minTextChars {
		return c.finish(mode, domain.FailedResult(mode, domain.KindValidation,
			UserMessage(domain.KindValidation, "Insufficient text content for analysis.")), 0)
	}
	if mode == domain.ModeCustom && strings.TrimSpace(req.UserQuestion) == "" {
		return c.finish(mode, domain.FailedResult(mode, domain.KindValidation,
			UserMessage(domain.KindValidation, "Please enter a question for custom analysis.")), 0)
	}

	prompt := BuildPrompt(mode, req.DocumentText, req.UserQuestion)
	started := c.now()
	text, attempts, err := c.generate(ctx, "generate", prompt)
	if err != nil {
		kind := ClassifyProviderError(err)
		detail := err.Error()
		if errors.Is(err, errEmptyResponse) {
			detail = "No response generated. The API returned an empty response."
		}
		c.logger.Warn("analysis_failed", "mode", string(mode), "kind", string(kind), "attempts", attempts, "error", err)
		result := domain.FailedResult(mode, kind, UserMessage(kind, detail))
		result.Attempts = attempts
		return c.finish(mode, result, c.now().Sub(started))
	}

	if req.IncludeMetadata {
		text += fmt.Sprintf(footerFormat, c.now().Format(footerLayout))
	}
	return c.finish(mode, domain.AnalysisResult{
		Text:      text,
		Succeeded: true,
		Mode:      mode,
		Attempts:  attempts,
	}, c.now().Sub(started))
}

// generate runs one provider call under the executor. Every attempt waits
// on the rate limiter first.
func (c *AnalysisClient) generate(ctx context.Context, operation, prompt string) (string, int, error) {
	var (
		text     string
		attempts int
	)
	call := func(callCtx context.Context) error {
		if err := c.wait(callCtx); err != nil {
			return err
		}
		attempts++
		out, err := c.generator.Generate(callCtx, prompt)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return domain.WrapError(domain.ErrUnknownProvider, operation, errEmptyResponse)
		}
		text = out
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call)
	} else {
		err = call(ctx)
	}
	return text, attempts, err
}

func (c *AnalysisClient) probe(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	out, err := c.generator.Generate(ctx, probePrompt)
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "" {
		return domain.WrapError(domain.ErrUnknownProvider, "probe", fmt.Errorf("API test failed: empty response"))
	}
	return nil
}

func (c *AnalysisClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	started := time.Now()
	err := c.limiter.Wait(ctx)
	if c.observer != nil {
		c.observer.ObserveRateLimitWait(time.Since(started))
	}
	return err
}

func (c *AnalysisClient) failWith(err error) {
	kind := ClassifyProviderError(err)
	c.logger.Warn("analysis_client_failed", "kind", string(kind), "error", err)
	c.fail(kind, UserMessage(kind, err.Error()))
}

func (c *AnalysisClient) fail(kind domain.ErrorKind, message string) {
	c.state = StateFailed
	c.failureKind = kind
	if kind == domain.KindCredential {
		message = "API not configured: " + message
	}
	c.failureText = message
}

func (c *AnalysisClient) finish(mode domain.AnalysisMode, result domain.AnalysisResult, took time.Duration) domain.AnalysisResult {
	if c.observer != nil {
		c.observer.ObserveAnalysis(mode, result.ErrorKind, result.Attempts, took)
	}
	return result
}
