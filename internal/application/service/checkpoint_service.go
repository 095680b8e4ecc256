package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/checkpoint"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/event"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/eventbus"
)

// CheckpointService creates, lists and answers durable human-input
// requests. It is a pure data operation plus event emission: pausing the
// owning project is the orchestrator's job, and answering never resumes
// the loop by itself.
type CheckpointService struct {
	repo   repository.CheckpointRepository
	bus    *eventbus.Bus
	logger *zap.Logger
}

// NewCheckpointService creates a checkpoint service
func NewCheckpointService(repo repository.CheckpointRepository, bus *eventbus.Bus, logger *zap.Logger) *CheckpointService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckpointService{repo: repo, bus: bus, logger: logger}
}

// Create stores a pending checkpoint and emits checkpoint.created
func (s *CheckpointService) Create(ctx context.Context, projectID project.ID, ctype checkpoint.Type, question, cpContext string) (*checkpoint.Checkpoint, error) {
	cp, err := checkpoint.New(projectID, ctype, question, cpContext)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}

	s.bus.Emit(ctx, projectID, event.TypeCheckpointCreated, map[string]any{
		"checkpoint_id": cp.ID().String(),
		"type":          string(ctype),
		"question":      cp.Question(),
	})
	s.logger.Info("checkpoint created",
		zap.String("project_id", projectID.String()),
		zap.String("checkpoint_id", cp.ID().String()),
		zap.String("type", string(ctype)),
	)
	return cp, nil
}

// Answer records the human response. An unknown id returns (nil, nil)
// with no state mutation; re-answering an answered checkpoint returns
// the stored row without side effects.
func (s *CheckpointService) Answer(ctx context.Context, id checkpoint.ID, response string) (*checkpoint.Checkpoint, error) {
	cp, err := s.repo.Find(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !cp.Answer(response) {
		return cp, nil
	}
	if err := s.repo.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("answer checkpoint: %w", err)
	}

	s.bus.Emit(ctx, cp.ProjectID(), event.TypeCheckpointAnswered, map[string]any{
		"checkpoint_id": cp.ID().String(),
		"question":      cp.Question(),
	})
	return cp, nil
}

// ListPending returns pending checkpoints for a project, oldest first
func (s *CheckpointService) ListPending(ctx context.Context, projectID project.ID) ([]*checkpoint.Checkpoint, error) {
	return s.repo.ListPending(ctx, projectID)
}
