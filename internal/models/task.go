package models

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskFailure records why a task failed.
type TaskFailure struct {
	Movement    string `yaml:"movement,omitempty" json:"movement,omitempty"`
	Error       string `yaml:"error" json:"error"`
	LastMessage string `yaml:"last_message,omitempty" json:"last_message,omitempty"`
}

// TaskRecord is one entry in `.takt/tasks.yaml`.
type TaskRecord struct {
	Name        string       `yaml:"name"`
	Status      TaskStatus   `yaml:"status"`
	Content     string       `yaml:"content,omitempty"`
	ContentFile string       `yaml:"content_file,omitempty"`
	TaskDir     string       `yaml:"task_dir,omitempty"`
	CreatedAt   time.Time    `yaml:"created_at"`
	StartedAt   *time.Time   `yaml:"started_at,omitempty"`
	CompletedAt *time.Time   `yaml:"completed_at,omitempty"`
	OwnerPID    *int         `yaml:"owner_pid,omitempty"`
	Failure     *TaskFailure `yaml:"failure,omitempty"`

	Piece        string `yaml:"piece,omitempty"`
	Worktree     string `yaml:"worktree,omitempty"`
	Branch       string `yaml:"branch,omitempty"`
	Issue        string `yaml:"issue,omitempty"`
	StartMovement string `yaml:"start_movement,omitempty"`
	RetryNote    string `yaml:"retry_note,omitempty"`
	AutoPR       bool   `yaml:"auto_pr,omitempty"`

	CommitHash string `yaml:"commit_hash,omitempty"`
	PRURL      string `yaml:"pr_url,omitempty"`
}

// Validate enforces the status/timestamp/owner/failure invariants a
// task record must always satisfy.
func (t *TaskRecord) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("task: name is required")
	}

	switch t.Status {
	case TaskPending:
		if t.StartedAt != nil || t.CompletedAt != nil || t.OwnerPID != nil || t.Failure != nil {
			return fmt.Errorf("task %s: pending tasks must not have started_at/owner_pid/failure", t.Name)
		}
	case TaskRunning:
		if t.StartedAt == nil {
			return fmt.Errorf("task %s: running tasks must have started_at", t.Name)
		}
		if t.OwnerPID == nil {
			return fmt.Errorf("task %s: running tasks must have owner_pid", t.Name)
		}
		if t.CompletedAt != nil {
			return fmt.Errorf("task %s: running tasks must not have completed_at", t.Name)
		}
	case TaskCompleted:
		if t.StartedAt == nil || t.CompletedAt == nil {
			return fmt.Errorf("task %s: completed tasks must have started_at and completed_at", t.Name)
		}
		if t.Failure != nil || t.OwnerPID != nil {
			return fmt.Errorf("task %s: completed tasks must not have failure/owner_pid", t.Name)
		}
	case TaskFailed:
		if t.StartedAt == nil || t.CompletedAt == nil {
			return fmt.Errorf("task %s: failed tasks must have started_at and completed_at", t.Name)
		}
		if t.Failure == nil {
			return fmt.Errorf("task %s: failed tasks must have a failure record", t.Name)
		}
		if t.OwnerPID != nil {
			return fmt.Errorf("task %s: failed tasks must not have owner_pid", t.Name)
		}
	default:
		return fmt.Errorf("task %s: invalid status %q", t.Name, t.Status)
	}

	return nil
}

// TaskFile is the top-level document stored at `.takt/tasks.yaml`.
type TaskFile struct {
	Tasks []TaskRecord `yaml:"tasks"`
}

// Validate checks every task record and rejects duplicate names.
func (f *TaskFile) Validate() error {
	seen := make(map[string]bool, len(f.Tasks))
	for i := range f.Tasks {
		if err := f.Tasks[i].Validate(); err != nil {
			return err
		}
		if seen[f.Tasks[i].Name] {
			return fmt.Errorf("task file: duplicate task name %q", f.Tasks[i].Name)
		}
		seen[f.Tasks[i].Name] = true
	}
	return nil
}
