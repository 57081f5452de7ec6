package session

import (
	"fmt"

	"github.com/mcdev12/courtside/go/internal/models"
)

/*
	rawDelta        -> score(team) += points        (signed, never below zero)
	attributedEvent -> score(team) += points (1..3) -> PlayerStatDelta
	endGame         -> status = completed
	cancelGame      -> status = cancelled

	Every accepted mutation bumps Revision by exactly one. A scheduled game
	moves to in_progress on its first accepted score change.
*/

// Apply computes the next state for m, or returns the unchanged state and
// an error when m is rejected. The delta is non-nil only for attributed events.
func Apply(s State, roster models.Roster, m Mutation) (State, *PlayerStatDelta, error) {
	if s.Status.IsTerminal() {
		return s, nil, fmt.Errorf("%w: game %s is %s", ErrInvalidTransition, s.GameID, s.Status)
	}

	next := s

	switch m.Kind {
	case MutationRawDelta:
		if !m.Team.Valid() {
			return s, nil, fmt.Errorf("%w: %q", ErrUnknownTeam, m.Team)
		}
		if m.Points == 0 {
			return s, nil, fmt.Errorf("%w: raw delta must be non-zero", ErrInvalidPoints)
		}
		if s.Score(m.Team)+m.Points < 0 {
			return s, nil, fmt.Errorf("%w: %s %d%+d", ErrNegativeScore, m.Team, s.Score(m.Team), m.Points)
		}
		addPoints(&next, m.Team, m.Points)

	case MutationAttributed:
		if !m.Team.Valid() {
			return s, nil, fmt.Errorf("%w: %q", ErrUnknownTeam, m.Team)
		}
		if m.Points < 1 || m.Points > 3 {
			return s, nil, fmt.Errorf("%w: attributed events score 1, 2 or 3, got %d", ErrInvalidPoints, m.Points)
		}
		if m.PlayerID == "" || !roster.Has(m.Team, m.PlayerID) {
			return s, nil, fmt.Errorf("%w: player %q, team %s", ErrRosterMismatch, m.PlayerID, m.Team)
		}
		addPoints(&next, m.Team, m.Points)
		next.Revision++
		return next, &PlayerStatDelta{
			EventID:     m.EventID,
			GameID:      s.GameID,
			PlayerID:    m.PlayerID,
			PointsAdded: m.Points,
		}, nil

	case MutationEndGame:
		next.Status = models.GameStatusCompleted

	case MutationCancelGame:
		next.Status = models.GameStatusCancelled

	default:
		return s, nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, m.Kind)
	}

	next.Revision++
	return next, nil, nil
}

func addPoints(s *State, side models.Side, points int) {
	if side == models.SideAway {
		s.AwayScore += points
	} else {
		s.HomeScore += points
	}
	if s.Status == models.GameStatusScheduled {
		s.Status = models.GameStatusInProgress
	}
}
