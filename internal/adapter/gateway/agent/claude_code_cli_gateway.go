package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/application/port/output"
)

// ClaudeCodeCLIGateway implements the Agent Invocation Port by executing
// the claude CLI (`claude -p --output-format json ...`).
type ClaudeCodeCLIGateway struct {
	bin            string
	defaultModel   string
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// ClaudeCLIConfig tunes the CLI gateway
type ClaudeCLIConfig struct {
	Bin     string
	Model   string
	Timeout time.Duration
}

// NewClaudeCodeCLIGateway creates a gateway over the claude CLI binary
func NewClaudeCodeCLIGateway(cfg ClaudeCLIConfig, logger *zap.Logger) *ClaudeCodeCLIGateway {
	if cfg.Bin == "" {
		cfg.Bin = "claude"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaudeCodeCLIGateway{
		bin:            cfg.Bin,
		defaultModel:   cfg.Model,
		defaultTimeout: cfg.Timeout,
		logger:         logger,
	}
}

// claudeResult is the JSON envelope the CLI prints in json output mode
type claudeResult struct {
	Type       string `json:"type"`
	Subtype    string `json:"subtype"`
	IsError    bool   `json:"is_error"`
	DurationMs int    `json:"duration_ms"`
	Result     string `json:"result"`
	NumTurns   int    `json:"num_turns"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Invoke runs one claude CLI call. Context cancellation kills the child
// process, which is the cooperative-abort path used by Stop.
func (g *ClaudeCodeCLIGateway) Invoke(ctx context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	args := []string{"-p", "--output-format", "json"}

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(req.AllowedTools, ","))
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", fmt.Sprintf("%d", req.MaxTurns))
	}
	args = append(args, req.Prompt)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.defaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(cctx, g.bin, args...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	g.logger.Debug("claude CLI call finished",
		zap.String("role", string(req.Role)),
		zap.String("phase", req.Phase.String()),
		zap.Duration("duration", elapsed),
		zap.Error(err),
	)

	if err != nil {
		return g.classifyFailure(cctx, err, out, elapsed)
	}

	var result claudeResult
	if jerr := json.Unmarshal(out, &result); jerr != nil {
		// Older CLI versions print plain text; pass it through
		return &output.AgentResponse{
			Status:   output.AgentCompleted,
			Output:   string(out),
			Duration: elapsed,
		}, nil
	}

	resp := &output.AgentResponse{
		Output:       result.Result,
		TokensInput:  result.Usage.InputTokens,
		TokensOutput: result.Usage.OutputTokens,
		Duration:     elapsed,
	}
	if result.IsError {
		resp.Status = output.AgentFailed
		resp.FailureKind = classifySubtype(result.Subtype)
		resp.FailureDetail = result.Result
		return resp, nil
	}
	resp.Status = output.AgentCompleted
	return resp, nil
}

// classifyFailure maps process-level errors to transport/execution failures
func (g *ClaudeCodeCLIGateway) classifyFailure(ctx context.Context, err error, out []byte, elapsed time.Duration) (*output.AgentResponse, error) {
	kind := output.FailureKindExecution
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
		kind = output.FailureKindTransport
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		// Binary not found or not runnable: the dependency itself is down
		kind = output.FailureKindTransport
	}
	return &output.AgentResponse{
		Status:        output.AgentFailed,
		Output:        string(out),
		Duration:      elapsed,
		FailureKind:   kind,
		FailureDetail: fmt.Sprintf("claude CLI: %v", err),
	}, nil
}

func classifySubtype(subtype string) output.FailureKind {
	switch subtype {
	case "error_max_turns":
		return output.FailureKindMaxTurns
	case "error_max_budget", "error_budget_exceeded":
		return output.FailureKindBudget
	default:
		return output.FailureKindExecution
	}
}

// HealthCheck verifies the claude binary is on PATH
func (g *ClaudeCodeCLIGateway) HealthCheck(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, g.bin, "--version")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("claude CLI unavailable: %w (output: %s)", err, string(out))
	}
	return nil
}

var _ output.AgentGateway = (*ClaudeCodeCLIGateway)(nil)
