package checkpoint

import (
	"fmt"
	"strings"
	"time"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/unicode/norm"
)

// Type classifies what kind of human input is requested
type Type string

const (
	TypeClarification Type = "clarification"
	TypeApproval      Type = "approval"
	TypeReview        Type = "review"
	TypeDecision      Type = "decision"
)

// IsValid checks if the type is a known value
func (t Type) IsValid() bool {
	switch t {
	case TypeClarification, TypeApproval, TypeReview, TypeDecision:
		return true
	}
	return false
}

// Status is the checkpoint lifecycle status
type Status string

const (
	StatusPending  Status = "pending"
	StatusAnswered Status = "answered"
)

// ID is a value object for checkpoint identifier
type ID string

// NewID generates a new sortable checkpoint ID
func NewID() ID {
	return ID(ulid.Make().String())
}

// ParseID validates a raw string as a checkpoint ID
func ParseID(raw string) (ID, error) {
	raw = strings.TrimSpace(raw)
	if _, err := ulid.Parse(raw); err != nil {
		return "", fmt.Errorf("invalid checkpoint id %q: %w", raw, err)
	}
	return ID(raw), nil
}

func (id ID) String() string {
	return string(id)
}

// Checkpoint is a durable, answerable request for human input.
// It is created pending and mutated exactly once when answered.
type Checkpoint struct {
	id         ID
	projectID  project.ID
	ctype      Type
	question   string
	context    string
	response   string
	status     Status
	createdAt  time.Time
	answeredAt *time.Time
}

// New creates a pending checkpoint. Question and context are NFC-normalized
// so string comparisons on stored rows are stable regardless of input form.
func New(projectID project.ID, ctype Type, question, context string) (*Checkpoint, error) {
	question = strings.TrimSpace(norm.NFC.String(question))
	if question == "" {
		return nil, fmt.Errorf("checkpoint question is required")
	}
	if !ctype.IsValid() {
		return nil, fmt.Errorf("invalid checkpoint type: %s", ctype)
	}
	return &Checkpoint{
		id:        NewID(),
		projectID: projectID,
		ctype:     ctype,
		question:  question,
		context:   norm.NFC.String(context),
		status:    StatusPending,
		createdAt: time.Now().UTC(),
	}, nil
}

// Reconstruct rebuilds a checkpoint from persisted fields
func Reconstruct(id ID, projectID project.ID, ctype Type, question, context, response string, status Status, createdAt time.Time, answeredAt *time.Time) *Checkpoint {
	return &Checkpoint{
		id:         id,
		projectID:  projectID,
		ctype:      ctype,
		question:   question,
		context:    context,
		response:   response,
		status:     status,
		createdAt:  createdAt,
		answeredAt: answeredAt,
	}
}

func (c *Checkpoint) ID() ID                 { return c.id }
func (c *Checkpoint) ProjectID() project.ID  { return c.projectID }
func (c *Checkpoint) Type() Type             { return c.ctype }
func (c *Checkpoint) Question() string       { return c.question }
func (c *Checkpoint) Context() string        { return c.context }
func (c *Checkpoint) Response() string       { return c.response }
func (c *Checkpoint) Status() Status         { return c.status }
func (c *Checkpoint) CreatedAt() time.Time   { return c.createdAt }
func (c *Checkpoint) AnsweredAt() *time.Time { return c.answeredAt }

// IsPending reports whether the checkpoint still awaits an answer
func (c *Checkpoint) IsPending() bool {
	return c.status == StatusPending
}

// Answer records the human response. Answering an already-answered
// checkpoint is a no-op so re-delivery cannot double-apply.
func (c *Checkpoint) Answer(response string) bool {
	if c.status == StatusAnswered {
		return false
	}
	now := time.Now().UTC()
	c.response = strings.TrimSpace(norm.NFC.String(response))
	c.status = StatusAnswered
	c.answeredAt = &now
	return true
}
