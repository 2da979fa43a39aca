package domain

// WorkItemState is the lifecycle state of a queued unit of work.
type WorkItemState int32

const (
	// WorkPending means the item is queued and not yet started.
	WorkPending WorkItemState = iota

	// WorkRunning means a worker is executing the item.
	WorkRunning

	// WorkCompleted means the item returned on its own, with or without an error.
	WorkCompleted

	// WorkCancelled means the item was forcibly cancelled.
	WorkCancelled
)

// String returns the state name.
func (s WorkItemState) String() string {
	switch s {
	case WorkPending:
		return "pending"
	case WorkRunning:
		return "running"
	case WorkCompleted:
		return "completed"
	case WorkCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s WorkItemState) Terminal() bool {
	return s == WorkCompleted || s == WorkCancelled
}
