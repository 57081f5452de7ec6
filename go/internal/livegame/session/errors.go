package session

import "errors"

var (
	// ErrNotFound is returned when a game or player id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for any mutation on a completed or cancelled game.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrRosterMismatch is returned when an attributed event names a player who is not on the scoring team.
	ErrRosterMismatch = errors.New("player not on team roster")
	// ErrStaleOrDuplicate marks an event id that was already applied. It is never shown to users.
	ErrStaleOrDuplicate = errors.New("stale or duplicate")
	// ErrTransientStorage wraps failures of the external stat store that are worth retrying.
	ErrTransientStorage = errors.New("transient storage failure")

	ErrInvalidPoints   = errors.New("invalid points")
	ErrNegativeScore   = errors.New("score would become negative")
	ErrUnknownTeam     = errors.New("unknown team")
	ErrUnsupportedKind = errors.New("unsupported mutation kind")
	ErrForbidden       = errors.New("mutation not permitted for viewer")
	ErrSessionClosed   = errors.New("session closed")
)

// ErrorCode maps an error to the short code used on the wire and in metrics
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrRosterMismatch):
		return "roster_mismatch"
	case errors.Is(err, ErrStaleOrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidPoints),
		errors.Is(err, ErrNegativeScore),
		errors.Is(err, ErrUnknownTeam),
		errors.Is(err, ErrUnsupportedKind):
		return "invalid_mutation"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrTransientStorage):
		return "storage"
	default:
		return "internal"
	}
}
