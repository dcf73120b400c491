// Package bench drives one external benchmark run and scrapes its text
// output into a ratchet record for CI regression tracking. The subprocess
// boundary is an untyped text stream: all pattern matching lives in
// ExtractMetrics so a structured-output benchmark can replace it without
// touching callers.
package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/clocksmith/doppler/internal/logger"
	"github.com/clocksmith/doppler/internal/metrics"
)

// Metrics holds the two numbers scraped from benchmark output. Nil means
// the pattern did not appear; it serializes as JSON null so the ratchet
// records the absence rather than a fake zero.
type Metrics struct {
	FirstTokenMs *float64 `json:"firstTokenMs"`
	TokensPerS   *float64 `json:"tokensPerS"`
}

var (
	firstTokenRe = regexp.MustCompile(`(?i)First token\s*:\s*([0-9.]+)ms`)
	tokensPerSRe = regexp.MustCompile(`(?i)Generated\s*:\s*[0-9]+\s*tokens\s*\(([0-9.]+) tok/s\)`)
)

// ExtractMetrics scrapes free-form benchmark output for the two tracked
// numbers. Best-effort: a missing or unparseable match leaves the field
// nil, and the call never fails.
func ExtractMetrics(output string) Metrics {
	var m Metrics
	if match := firstTokenRe.FindStringSubmatch(output); match != nil {
		if v, err := strconv.ParseFloat(match[1], 64); err == nil {
			m.FirstTokenMs = &v
		}
	}
	if match := tokensPerSRe.FindStringSubmatch(output); match != nil {
		if v, err := strconv.ParseFloat(match[1], 64); err == nil {
			m.TokensPerS = &v
		}
	}
	return m
}

// DefaultCommand is the argv prefix the benchmark arguments are appended
// to when Config.Command is empty.
var DefaultCommand = []string{"npm", "run", "bench", "--"}

// Config describes one benchmark invocation.
type Config struct {
	Model     string
	Preset    string
	Prompt    string
	MaxTokens int
	Runs      int
	Warmup    int

	// Command overrides the argv prefix (DefaultCommand when empty).
	Command []string
	// Timeout kills the subprocess when positive; the run records
	// return code -1 instead of failing.
	Timeout time.Duration
}

func (c *Config) args() []string {
	return []string{
		"--config", c.Preset,
		"-m", c.Model,
		"--prompt", c.Prompt,
		"--max-tokens", strconv.Itoa(c.MaxTokens),
		"--runs", strconv.Itoa(c.Runs),
		"--warmup", strconv.Itoa(c.Warmup),
	}
}

// Result is everything one benchmark run produced.
type Result struct {
	Output     string
	ReturnCode int
	Duration   time.Duration
	Metrics    Metrics
}

// Run spawns the benchmark once and blocks until it exits. A non-zero
// exit is not a run failure: the code is recorded verbatim and whatever
// metrics the output held still come back. The error return covers only
// the cases where the process could not be started at all.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	command := cfg.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	argv := append(append([]string{}, command...), cfg.args()...)

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	logger.Log.Info("benchmark starting", "command", strings.Join(argv, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	res := &Result{
		Output:   stdout.String() + "\n" + stderr.String(),
		Duration: duration,
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			res.ReturnCode = exitErr.ExitCode()
			logger.Log.Warn("benchmark exited non-zero", "code", res.ReturnCode, "duration", duration)
		case ctx.Err() != nil:
			res.ReturnCode = -1
			logger.Log.Warn("benchmark timed out", "after", duration)
		default:
			return nil, fmt.Errorf("failed to run benchmark: %w", runErr)
		}
	}

	res.Metrics = ExtractMetrics(res.Output)
	metrics.RecordBenchRun(duration, res.ReturnCode, res.Metrics.FirstTokenMs, res.Metrics.TokensPerS)

	logger.Log.Info("benchmark finished",
		"code", res.ReturnCode,
		"duration", duration,
		"first_token_ms", res.Metrics.FirstTokenMs,
		"tokens_per_s", res.Metrics.TokensPerS)
	return res, nil
}

// Ratchet is the JSON record CI tracks across benchmark runs.
type Ratchet struct {
	Model         string  `json:"model"`
	RuntimePreset string  `json:"runtimePreset"`
	Prompt        string  `json:"prompt"`
	MaxTokens     int     `json:"maxTokens"`
	ReturnCode    int     `json:"returnCode"`
	Metrics       Metrics `json:"metrics"`
}

// WriteRatchet replaces the ratchet file wholesale: two-space indent,
// trailing newline, parent directories created as needed. The file is
// advisory CI output, so there is no partial-write recovery.
func WriteRatchet(path string, r *Ratchet) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ratchet: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create ratchet directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write ratchet: %w", err)
	}
	return nil
}
