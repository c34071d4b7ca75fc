// Package task implements the task store (TS): independent CRUD for
// tasks with a Blocker lifecycle, consumed only by the API surface
// (spec.md §2).
package task

// Status is the task lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Priority ranks a task for surfacing purposes.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// BlockerKind names the four blocker shapes spec.md §3 enumerates.
type BlockerKind string

const (
	BlockerHumanInput    BlockerKind = "human_input"
	BlockerHumanApproval BlockerKind = "human_approval"
	BlockerHumanAction   BlockerKind = "human_action"
	BlockerDependency    BlockerKind = "dependency"
)

// Blocker is one obstacle preventing a task from proceeding.
type Blocker struct {
	ID          string
	Kind        BlockerKind
	Description string
	CreatedAt   int64
	ResolvedAt  *int64
	ResolvedBy  string
	Resolution  string
}

// Task is one Task row.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      Status
	Priority    Priority
	Assignee    string
	Blockers    []Blocker
	DependsOn   []string
	Tags        []string
	Notes       string
	Source      string
	CreatedAt   int64
	UpdatedAt   int64
	CompletedAt *int64
}

// unresolved reports whether b has not yet been resolved.
func (b Blocker) unresolved() bool {
	return b.ResolvedAt == nil
}

// hasUnresolvedBlocker reports whether any of t's blockers are still
// open, per the "adding any unresolved blocker moves status to blocked"
// invariant.
func (t Task) hasUnresolvedBlocker() bool {
	for _, b := range t.Blockers {
		if b.unresolved() {
			return true
		}
	}
	return false
}
