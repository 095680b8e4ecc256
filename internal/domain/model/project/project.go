package project

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle status of a project
type Status string

const (
	StatusSetup    Status = "setup"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusStopped  Status = "stopped"
	StatusComplete Status = "complete"
)

// IsValid checks if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusSetup, StatusRunning, StatusPaused, StatusStopped, StatusComplete:
		return true
	}
	return false
}

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// ID is a value object for project identifier
type ID string

// NewID generates a new project ID
func NewID() ID {
	return ID(uuid.New().String())
}

// ParseID validates a raw string as a project ID
func ParseID(raw string) (ID, error) {
	raw = strings.TrimSpace(raw)
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("invalid project id %q: %w", raw, err)
	}
	return ID(raw), nil
}

func (id ID) String() string {
	return string(id)
}

// Project is a unit of autonomous work driven by the orchestrator
type Project struct {
	id          ID
	name        string
	workDir     string
	status      Status
	createdAt   time.Time
	updatedAt   time.Time
	completedAt *time.Time
}

// New creates a project in setup status
func New(name, workDir string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	now := time.Now().UTC()
	return &Project{
		id:        NewID(),
		name:      name,
		workDir:   workDir,
		status:    StatusSetup,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstruct rebuilds a project from persisted fields
func Reconstruct(id ID, name, workDir string, status Status, createdAt, updatedAt time.Time, completedAt *time.Time) *Project {
	return &Project{
		id:          id,
		name:        name,
		workDir:     workDir,
		status:      status,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		completedAt: completedAt,
	}
}

func (p *Project) ID() ID                  { return p.id }
func (p *Project) Name() string            { return p.name }
func (p *Project) WorkDir() string         { return p.workDir }
func (p *Project) Status() Status          { return p.status }
func (p *Project) CreatedAt() time.Time    { return p.createdAt }
func (p *Project) UpdatedAt() time.Time    { return p.updatedAt }
func (p *Project) CompletedAt() *time.Time { return p.completedAt }

// ChangeStatus updates the project status after validating the value
func (p *Project) ChangeStatus(status Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid project status: %s", status)
	}
	if p.status == StatusStopped || p.status == StatusComplete {
		return fmt.Errorf("project %s is %s and cannot change status", p.id, p.status)
	}
	p.status = status
	p.updatedAt = time.Now().UTC()
	if status == StatusComplete {
		now := p.updatedAt
		p.completedAt = &now
	}
	return nil
}
