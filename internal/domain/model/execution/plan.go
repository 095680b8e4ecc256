package execution

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// TaskStatus tracks one plan task's progress
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusSkipped    TaskStatus = "skipped"
)

// PlanTask is one unit of work inside a milestone
type PlanTask struct {
	ID          string     `yaml:"id"`
	Description string     `yaml:"description"`
	Phase       Phase      `yaml:"phase"`
	Status      TaskStatus `yaml:"status"`
	Note        string     `yaml:"note,omitempty"`
}

// Milestone groups ordered tasks toward one deliverable
type Milestone struct {
	Name  string     `yaml:"name"`
	Done  bool       `yaml:"done"`
	Tasks []PlanTask `yaml:"tasks"`
}

// Plan is the snapshot of intended work the agent decides against.
// It is stored YAML-serialized in the execution state row.
type Plan struct {
	Goal       string      `yaml:"goal"`
	Milestones []Milestone `yaml:"milestones"`
}

// ParsePlan deserializes a plan snapshot
func ParsePlan(data []byte) (*Plan, error) {
	if len(data) == 0 {
		return &Plan{}, nil
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan snapshot: %w", err)
	}
	return &p, nil
}

// Marshal serializes the plan for durable storage
func (p *Plan) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal plan snapshot: %w", err)
	}
	return data, nil
}

// IsEmpty reports whether the plan has no milestones
func (p *Plan) IsEmpty() bool {
	return p == nil || len(p.Milestones) == 0
}

// FindTask locates a task by id
func (p *Plan) FindTask(taskID string) *PlanTask {
	for mi := range p.Milestones {
		for ti := range p.Milestones[mi].Tasks {
			if p.Milestones[mi].Tasks[ti].ID == taskID {
				return &p.Milestones[mi].Tasks[ti]
			}
		}
	}
	return nil
}

// MarkTaskDone sets a task's status to done
func (p *Plan) MarkTaskDone(taskID string) error {
	return p.setStatus(taskID, TaskStatusDone, "")
}

// MarkTaskSkipped sets a task's status to skipped with a reason
func (p *Plan) MarkTaskSkipped(taskID, reason string) error {
	return p.setStatus(taskID, TaskStatusSkipped, reason)
}

func (p *Plan) setStatus(taskID string, status TaskStatus, note string) error {
	t := p.FindTask(taskID)
	if t == nil {
		return fmt.Errorf("task %s not found in plan", taskID)
	}
	t.Status = status
	if note != "" {
		t.Note = note
	}
	return nil
}

// MarkMilestoneDone flags a milestone as complete
func (p *Plan) MarkMilestoneDone(name string) error {
	for mi := range p.Milestones {
		if p.Milestones[mi].Name == name {
			p.Milestones[mi].Done = true
			return nil
		}
	}
	return fmt.Errorf("milestone %s not found in plan", name)
}

// RemainingTasks counts tasks still pending or in progress
func (p *Plan) RemainingTasks() int {
	n := 0
	for _, m := range p.Milestones {
		for _, t := range m.Tasks {
			if t.Status == TaskStatusPending || t.Status == TaskStatusInProgress {
				n++
			}
		}
	}
	return n
}

// Summary renders a short human-readable digest for prompts
func (p *Plan) Summary() string {
	if p.IsEmpty() {
		return "no plan yet"
	}
	out := p.Goal
	for _, m := range p.Milestones {
		done := 0
		for _, t := range m.Tasks {
			if t.Status == TaskStatusDone || t.Status == TaskStatusSkipped {
				done++
			}
		}
		out += fmt.Sprintf("\n- %s: %d/%d tasks done", m.Name, done, len(m.Tasks))
		if m.Done {
			out += " (milestone complete)"
		}
	}
	return out
}
