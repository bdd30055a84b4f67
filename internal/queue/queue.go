// Package queue implements the task queue Store: a file-backed
// .takt/tasks.yaml document mutated by whole-file read-modify-write
// under an in-process mutex, the way budget.StateManager treats its
// per-session state files as the unit of persistence.
package queue

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yoshihiko555/takt/internal/filelock"
	"github.com/yoshihiko555/takt/internal/models"
)

// Store guards one tasks.yaml file with an in-process mutex. It does
// not coordinate across processes; concurrent processes must either
// serialize externally or operate on disjoint project directories.
type Store struct {
	mu   sync.Mutex
	path string
}

// New builds a Store for the tasks.yaml file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// AddOptions configures a new task beyond its content.
type AddOptions struct {
	Piece    string
	Worktree string
	Branch   string
	Issue    string
	AutoPR   bool
}

var slugSanitize = regexp.MustCompile(`[^a-z0-9]+`)

// AddTask allocates a unique, sanitized slug from content's first line
// and appends a new pending task.
func (s *Store) AddTask(content string, opts AddOptions) (*models.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}

	existing := make(map[string]bool, len(file.Tasks))
	for _, t := range file.Tasks {
		existing[t.Name] = true
	}

	name := uniqueSlug(firstLine(content), existing)

	task := models.TaskRecord{
		Name:      name,
		Status:    models.TaskPending,
		Content:   content,
		CreatedAt: time.Now(),
		Piece:     opts.Piece,
		Worktree:  opts.Worktree,
		Branch:    opts.Branch,
		Issue:     opts.Issue,
		AutoPR:    opts.AutoPR,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	file.Tasks = append(file.Tasks, task)
	if err := s.write(file); err != nil {
		return nil, err
	}
	return &task, nil
}

// ClaimNextTasks transitions up to count pending tasks (in stored
// order) to running, stamping started_at and owner_pid.
func (s *Store) ClaimNextTasks(count int) ([]models.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}

	var claimed []models.TaskRecord
	pid := os.Getpid()
	now := time.Now()

	for i := range file.Tasks {
		if len(claimed) >= count {
			break
		}
		if file.Tasks[i].Status != models.TaskPending {
			continue
		}
		file.Tasks[i].Status = models.TaskRunning
		file.Tasks[i].StartedAt = &now
		file.Tasks[i].OwnerPID = &pid
		claimed = append(claimed, file.Tasks[i])
	}

	if len(claimed) == 0 {
		return nil, nil
	}
	if err := s.write(file); err != nil {
		return nil, err
	}
	return claimed, nil
}

// Result carries the outcome fields completeTask/failTask record.
type Result struct {
	CommitHash string
	PRURL      string
	Failure    *models.TaskFailure
}

// CompleteTask finds name in running|pending and transitions it to
// completed.
func (s *Store) CompleteTask(name string, result Result) error {
	return s.finish(name, models.TaskCompleted, result)
}

// FailTask finds name in running|pending and transitions it to failed.
// result.Failure must be set.
func (s *Store) FailTask(name string, result Result) error {
	if result.Failure == nil {
		return fmt.Errorf("queue: failTask %q: Failure is required", name)
	}
	return s.finish(name, models.TaskFailed, result)
}

func (s *Store) finish(name string, status models.TaskStatus, result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}

	idx := -1
	for i := range file.Tasks {
		t := &file.Tasks[i]
		if t.Name != name {
			continue
		}
		if t.Status != models.TaskRunning && t.Status != models.TaskPending {
			return fmt.Errorf("queue: task %q is not running or pending (status=%s)", name, t.Status)
		}
		idx = i
		break
	}
	if idx < 0 {
		return fmt.Errorf("queue: task %q not found", name)
	}

	now := time.Now()
	t := &file.Tasks[idx]
	t.Status = status
	t.CompletedAt = &now
	t.OwnerPID = nil
	t.CommitHash = result.CommitHash
	t.PRURL = result.PRURL
	t.Failure = result.Failure

	if err := t.Validate(); err != nil {
		return err
	}
	return s.write(file)
}

// RequeueFailedTask finds name in failed and resets it to pending,
// clearing timestamps and the failure record.
func (s *Store) RequeueFailedTask(name, startMovement, retryNote string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}

	idx := -1
	for i := range file.Tasks {
		if file.Tasks[i].Name == name && file.Tasks[i].Status == models.TaskFailed {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("queue: failed task %q not found", name)
	}

	t := &file.Tasks[idx]
	t.Status = models.TaskPending
	t.StartedAt = nil
	t.CompletedAt = nil
	t.Failure = nil
	t.OwnerPID = nil
	if startMovement != "" {
		t.StartMovement = startMovement
	}
	if retryNote != "" {
		t.RetryNote = retryNote
	}

	if err := t.Validate(); err != nil {
		return err
	}
	return s.write(file)
}

// RecoverInterruptedRunningTasks reverts every running task whose
// owner process is gone (or was never recorded) back to pending.
func (s *Store) RecoverInterruptedRunningTasks() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for i := range file.Tasks {
		t := &file.Tasks[i]
		if t.Status != models.TaskRunning {
			continue
		}
		if t.OwnerPID != nil && processAlive(*t.OwnerPID) {
			continue
		}
		t.Status = models.TaskPending
		t.StartedAt = nil
		t.OwnerPID = nil
		recovered++
	}

	if recovered == 0 {
		return 0, nil
	}
	if err := s.write(file); err != nil {
		return 0, err
	}
	return recovered, nil
}

// List returns a snapshot of every task record.
func (s *Store) List() ([]models.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}
	return file.Tasks, nil
}

func (s *Store) read() (*models.TaskFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &models.TaskFile{}, nil
		}
		return nil, fmt.Errorf("queue: reading %s: %w", s.path, err)
	}

	var file models.TaskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("queue: parsing %s: %w", s.path, err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("queue: %s failed validation: %w", s.path, err)
	}
	return &file, nil
}

func (s *Store) write(file *models.TaskFile) error {
	if err := file.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("queue: marshaling %s: %w", s.path, err)
	}
	return filelock.AtomicWrite(s.path, data)
}

// processAlive reports whether pid names a live process, using POSIX
// kill(pid, 0) semantics (signal 0 only checks existence/permission).
func processAlive(pid int) bool {
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}

func firstLine(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return content[:i]
	}
	return content
}

func uniqueSlug(text string, existing map[string]bool) string {
	base := slugify(text)
	if base == "" {
		base = "task"
	}
	if !existing[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !existing[candidate] {
			return candidate
		}
	}
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugSanitize.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.Trim(s[:50], "-")
	}
	return s
}
