// Package di wires the application together with manual dependency
// injection: infrastructure first, then services, then the loop engine.
package di

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/StatsAiGuy/exeflow/internal/adapter/gateway/agent"
	"github.com/StatsAiGuy/exeflow/internal/adapter/notification"
	"github.com/StatsAiGuy/exeflow/internal/app/config"
	"github.com/StatsAiGuy/exeflow/internal/application/port/output"
	"github.com/StatsAiGuy/exeflow/internal/application/service"
	"github.com/StatsAiGuy/exeflow/internal/application/usecase/orchestrate"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/event"
	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/eventbus"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/fingerprint"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/metrics"
	sqliterepo "github.com/StatsAiGuy/exeflow/internal/infrastructure/persistence/sqlite"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/resilience"
)

// Container holds all constructed dependencies
type Container struct {
	cfg    *config.Config
	logger *zap.Logger

	db *sql.DB

	projectRepo    repository.ProjectRepository
	stateRepo      repository.ExecutionStateRepository
	historyRepo    repository.PhaseHistoryRepository
	checkpointRepo repository.CheckpointRepository
	eventRepo      repository.EventRepository

	bus     *eventbus.Bus
	metrics *metrics.Metrics
	breaker *resilience.CircuitBreaker

	agentGateway output.AgentGateway

	checkpointService *service.CheckpointService
	projectService    *service.ProjectService

	orchestrator *orchestrate.Orchestrator
	supervisor   *orchestrate.Supervisor
}

// NewContainer builds the full dependency graph
func NewContainer(cfg *config.Config) (*Container, error) {
	c := &Container{cfg: cfg}

	if err := c.initLogger(); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	if err := c.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("initialize infrastructure: %w", err)
	}
	if err := c.initApplication(); err != nil {
		return nil, fmt.Errorf("initialize application: %w", err)
	}
	return c, nil
}

func (c *Container) initLogger() error {
	level, err := zapcore.ParseLevel(c.cfg.Log.Level)
	if err != nil {
		return err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zcfg.Build()
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

func (c *Container) initInfrastructure() error {
	dbPath := c.cfg.Database.Path
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	db, err := sqliterepo.Open(dbPath)
	if err != nil {
		return err
	}
	c.db = db

	c.projectRepo = sqliterepo.NewProjectRepository(db)
	c.stateRepo = sqliterepo.NewExecutionStateRepository(db)
	c.historyRepo = sqliterepo.NewPhaseHistoryRepository(db)
	c.checkpointRepo = sqliterepo.NewCheckpointRepository(db)
	c.eventRepo = sqliterepo.NewEventRepository(db)

	c.bus = eventbus.New(c.eventRepo, c.logger)
	c.metrics = metrics.New()

	c.breaker = resilience.NewCircuitBreaker("agent", resilience.BreakerConfig{
		FailureThreshold:         c.cfg.Breaker.FailureThreshold,
		FailureWindow:            c.cfg.Breaker.FailureWindow,
		ResetTimeout:             c.cfg.Breaker.ResetTimeout,
		HalfOpenSuccessThreshold: c.cfg.Breaker.HalfOpenSuccessThreshold,
	})
	c.breaker.OnStateChange(func(name string, from, to resilience.BreakerState) {
		c.metrics.ObserveBreaker(name, string(to))
		if to == resilience.BreakerOpen {
			c.metrics.BreakerTrips.WithLabelValues(name).Inc()
			c.bus.Emit(context.Background(), "", event.TypeBreakerTripped, map[string]any{
				"dependency": name,
				"from":       string(from),
			})
		}
		c.logger.Warn("circuit breaker state change",
			zap.String("dependency", name),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
	})

	agentType := c.cfg.Agent.Type
	if agentType == "claude-code" {
		agentType = agent.TypeClaudeCodeCLI
	}
	gateway, err := agent.NewGateway(agentType, agent.ClaudeCLIConfig{
		Bin:     c.cfg.Agent.Binary,
		Model:   c.cfg.Agent.Model,
		Timeout: c.cfg.Agent.TaskTimeout,
	}, c.logger)
	if err != nil {
		return err
	}
	c.agentGateway = gateway
	return nil
}

func (c *Container) initApplication() error {
	c.checkpointService = service.NewCheckpointService(c.checkpointRepo, c.bus, c.logger)
	c.projectService = service.NewProjectService(c.projectRepo, c.stateRepo, c.checkpointService, c.bus, c.logger)

	parser, err := agent.NewDecisionParser()
	if err != nil {
		return err
	}

	c.orchestrator = orchestrate.New(orchestrate.Config{
		Model:           c.cfg.Agent.Model,
		DecisionTimeout: c.cfg.Agent.DecisionTimeout,
		TaskTimeout:     c.cfg.Agent.TaskTimeout,
		MaxTurns:        c.cfg.Agent.MaxTurns,
		AllowedTools:    c.cfg.Agent.AllowedTools,
		DetectorWindow:  c.cfg.Detector.Window,
		ChurnThreshold:  c.cfg.Detector.ChurnThreshold,
		OutputSchema:    agent.DecisionSchema(),
		AgentBackoff: resilience.BackoffConfig{
			BaseDelay:    c.cfg.Backoff.BaseDelay,
			MaxDelay:     c.cfg.Backoff.MaxDelay,
			JitterFactor: c.cfg.Backoff.JitterFactor,
			MaxRetries:   c.cfg.Backoff.MaxRetries,
		},
	}, orchestrate.Deps{
		Projects:    c.projectRepo,
		States:      c.stateRepo,
		Histories:   c.historyRepo,
		Checkpoints: c.checkpointService,
		Prompts:     service.NewPromptBuilderService(),
		Gateway:     c.agentGateway,
		Parser:      parser,
		Breaker:     c.breaker,
		Hasher:      fingerprint.New(afero.NewOsFs()),
		Bus:         c.bus,
		Metrics:     c.metrics,
		Logger:      c.logger,
	})

	c.supervisor = orchestrate.NewSupervisor(c.orchestrator, c.cfg.Runner.MaxConcurrentLoops, c.logger)

	notification.Bridge(c.bus, notification.NewLogSink(c.logger))

	// Keep the pending-checkpoint gauge in step with checkpoint traffic
	c.bus.Subscribe(event.TypeCheckpointCreated, "", func(_ *event.Event) {
		c.metrics.CheckpointsOpen.Inc()
	})
	c.bus.Subscribe(event.TypeCheckpointAnswered, "", func(_ *event.Event) {
		c.metrics.CheckpointsOpen.Dec()
	})
	return nil
}

// Config returns the loaded configuration
func (c *Container) Config() *config.Config { return c.cfg }

// Logger returns the shared structured logger
func (c *Container) Logger() *zap.Logger { return c.logger }

// ProjectService returns the project lifecycle service
func (c *Container) ProjectService() *service.ProjectService { return c.projectService }

// CheckpointService returns the checkpoint service
func (c *Container) CheckpointService() *service.CheckpointService { return c.checkpointService }

// Supervisor returns the loop registry
func (c *Container) Supervisor() *orchestrate.Supervisor { return c.supervisor }

// Bus returns the event bus
func (c *Container) Bus() *eventbus.Bus { return c.bus }

// Metrics returns the Prometheus collectors
func (c *Container) Metrics() *metrics.Metrics { return c.metrics }

// AgentGateway returns the configured agent gateway
func (c *Container) AgentGateway() output.AgentGateway { return c.agentGateway }

// Close releases held resources
func (c *Container) Close() error {
	var firstErr error
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			firstErr = err
		}
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return firstErr
}
