package crack

// Status is a state of the job state machine
//
//	Created -> Running -> Found | NotFound | Failed | Cancelled
//
// The four final states are terminal.
type Status int32

const (
	StatusCreated Status = iota
	StatusRunning
	StatusFound
	StatusNotFound
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusRunning:
		return "running"
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s Status) Terminal() bool {
	return s >= StatusFound && s <= StatusCancelled
}

// allows reports whether the state machine permits the s -> to transition.
// A job may be cancelled or fail before its driver starts running.
func (s Status) allows(to Status) bool {
	switch s {
	case StatusCreated:
		return to == StatusRunning || to == StatusCancelled || to == StatusFailed
	case StatusRunning:
		return to.Terminal()
	default:
		return false
	}
}
