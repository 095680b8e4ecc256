package agent

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/application/port/output"
)

// Gateway type identifiers
const (
	TypeClaudeCodeCLI = "claude-code-cli"
	TypeMock          = "mock"
)

// NewGateway creates an agent gateway by type name
func NewGateway(agentType string, cfg ClaudeCLIConfig, logger *zap.Logger) (output.AgentGateway, error) {
	switch agentType {
	case TypeClaudeCodeCLI, "":
		return NewClaudeCodeCLIGateway(cfg, logger), nil
	case TypeMock:
		return NewMockGateway(), nil
	default:
		return nil, fmt.Errorf("unknown agent type: %s", agentType)
	}
}
