package session

import "github.com/hpa-platform/hpactl/internal/models"

// Status is the lifecycle stage derived from a State
type Status int

const (
	StatusInitializing Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "initializing"
	}
}

// State is a snapshot of the session. The store hands out copies; the user
// pointer is never mutated after it is published.
type State struct {
	IsAuthenticated bool
	User            *models.AuthUser
	IsLoading       bool
	Error           string

	// Resolved is false until the first session check or auth action has
	// finished; it tells initializing apart from a loading overlay.
	Resolved bool
}

// Status derives the lifecycle stage; loading overlays do not change it
func (s State) Status() Status {
	switch {
	case s.IsAuthenticated && s.User != nil:
		return StatusAuthenticated
	case !s.Resolved:
		return StatusInitializing
	default:
		return StatusUnauthenticated
	}
}
