// internal/plugins/backend/runner.go

// Package backend runs the external tool invocations the plugins build.
// Every plugin goes through the same Runner so throttling and logging of
// outbound calls stay in one place.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/opspilot/opspilot-cli/internal/config"
)

// Runner executes one backend tool invocation and returns its stdout.
// Implementations must honor the context's deadline.
type Runner interface {
	Run(ctx context.Context, backendName string, argv []string) (string, error)
}

// ExecRunner shells out to the named tool, throttled per backend so the
// agent stays a good citizen toward shared control planes.
type ExecRunner struct {
	limiters map[string]*rate.Limiter
	fallback *rate.Limiter
	logger   *zap.Logger
}

// NewExecRunner builds a runner with one token bucket per configured
// backend. Backends without an explicit limit share a permissive default.
func NewExecRunner(cfg config.BackendsConfig, logger *zap.Logger) *ExecRunner {
	limiters := make(map[string]*rate.Limiter, len(cfg.Limits))
	for name, limit := range cfg.Limits {
		if limit.RateLimit <= 0 {
			continue
		}
		burst := limit.Burst
		if burst < 1 {
			burst = 1
		}
		limiters[name] = rate.NewLimiter(rate.Limit(limit.RateLimit), burst)
	}
	return &ExecRunner{
		limiters: limiters,
		fallback: rate.NewLimiter(rate.Limit(10), 10),
		logger:   logger.Named("backend"),
	}
}

func (r *ExecRunner) limiter(backendName string) *rate.Limiter {
	if l, ok := r.limiters[backendName]; ok {
		return l
	}
	return r.fallback
}

// Run waits for a rate token, then executes argv[0] with the remaining
// arguments. Stdout comes back on success; on failure the error carries
// whatever stderr the tool produced.
func (r *ExecRunner) Run(ctx context.Context, backendName string, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("empty command for backend %q", backendName)
	}
	if err := r.limiter(backendName).Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait for %s: %w", backendName, err)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	r.logger.Debug("Backend command finished",
		zap.String("backend", backendName),
		zap.String("command", argv[0]),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))

	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return stdout.String(), fmt.Errorf("%s: %s", strings.Join(argv, " "), msg)
	}
	return stdout.String(), nil
}

// Render joins an argv into the one-line form shown in dry-run previews and
// audit output.
func Render(argv []string) string {
	return strings.Join(argv, " ")
}
