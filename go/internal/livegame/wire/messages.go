package wire

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/models"
)

// MessageType discriminates websocket frames
type MessageType string

const (
	// Client -> server
	TypeJoinSession    MessageType = "joinSession"
	TypeLeaveSession   MessageType = "leaveSession"
	TypeSubmitMutation MessageType = "submitMutation"

	// Server -> client
	TypeSessionState     MessageType = "sessionState"
	TypePresence         MessageType = "presence"
	TypeMutationRejected MessageType = "mutationRejected"
	TypeForcedLeave      MessageType = "forcedLeave"
	TypeError            MessageType = "error"
)

// Error codes sent in error and mutationRejected frames
const (
	CodeBadRequest = "bad_request"
	CodeInternal   = "internal"
)

// ClientMessage is any frame a client sends. Mutation is only set for
// submitMutation.
type ClientMessage struct {
	Type     MessageType `json:"type"`
	GameID   string      `json:"game_id"`
	Mutation *Mutation   `json:"mutation,omitempty"`
}

// Mutation is the wire form of a score event or end-game request
type Mutation struct {
	Kind      session.MutationKind `json:"kind"`
	Team      models.Side          `json:"team,omitempty"`
	Points    int                  `json:"points,omitempty"`
	PlayerID  string               `json:"player_id,omitempty"`
	EventID   string               `json:"event_id,omitempty"`
	ClientSeq int64                `json:"client_seq,omitempty"`
}

// ToSession converts the wire mutation for the session processor
func (m Mutation) ToSession(submittedBy string) session.Mutation {
	return session.Mutation{
		Kind:        m.Kind,
		Team:        m.Team,
		Points:      m.Points,
		PlayerID:    m.PlayerID,
		EventID:     m.EventID,
		ClientSeq:   m.ClientSeq,
		SubmittedBy: submittedBy,
	}
}

type SessionState struct {
	Type      MessageType       `json:"type"`
	GameID    string            `json:"game_id"`
	HomeScore int               `json:"home_score"`
	AwayScore int               `json:"away_score"`
	Status    models.GameStatus `json:"status"`
	Revision  int64             `json:"revision"`
}

func NewSessionState(s session.State) SessionState {
	return SessionState{
		Type:      TypeSessionState,
		GameID:    s.GameID,
		HomeScore: s.HomeScore,
		AwayScore: s.AwayScore,
		Status:    s.Status,
		Revision:  s.Revision,
	}
}

// State converts the frame back into a session state
func (m SessionState) State() session.State {
	return session.State{
		GameID:    m.GameID,
		HomeScore: m.HomeScore,
		AwayScore: m.AwayScore,
		Status:    m.Status,
		Revision:  m.Revision,
	}
}

type Presence struct {
	Type        MessageType `json:"type"`
	GameID      string      `json:"game_id"`
	ViewerCount int         `json:"viewer_count"`
}

func NewPresence(gameID string, count int) Presence {
	return Presence{Type: TypePresence, GameID: gameID, ViewerCount: count}
}

type MutationRejected struct {
	Type      MessageType `json:"type"`
	GameID    string      `json:"game_id"`
	EventID   string      `json:"event_id,omitempty"`
	ClientSeq int64       `json:"client_seq,omitempty"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
}

// NewMutationRejected builds the rejection sent back to the submitter of m
func NewMutationRejected(gameID string, m Mutation, err error) MutationRejected {
	return MutationRejected{
		Type:      TypeMutationRejected,
		GameID:    gameID,
		EventID:   m.EventID,
		ClientSeq: m.ClientSeq,
		Code:      session.ErrorCode(err),
		Message:   err.Error(),
	}
}

type ForcedLeave struct {
	Type   MessageType `json:"type"`
	GameID string      `json:"game_id"`
	Reason string      `json:"reason"`
}

func NewForcedLeave(gameID, reason string) ForcedLeave {
	return ForcedLeave{Type: TypeForcedLeave, GameID: gameID, Reason: reason}
}

type Error struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

func NewError(code, message string) Error {
	return Error{Type: TypeError, Code: code, Message: message}
}

// Encode marshals a frame
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeClient parses a client frame and checks the fields its type requires
func DecodeClient(data []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode frame: %w", err)
	}

	switch m.Type {
	case TypeJoinSession, TypeLeaveSession:
	case TypeSubmitMutation:
		if m.Mutation == nil {
			return m, fmt.Errorf("submitMutation without mutation")
		}
		if !ClientKind(m.Mutation.Kind) {
			return m, fmt.Errorf("mutation kind %q is not accepted from clients", m.Mutation.Kind)
		}
	default:
		return m, fmt.Errorf("unknown message type %q", m.Type)
	}
	if m.GameID == "" {
		return m, fmt.Errorf("%s: game_id is required", m.Type)
	}
	return m, nil
}

// ClientKind reports whether clients may submit mutations of kind k.
// Cancellation only comes from persisted status changes.
func ClientKind(k session.MutationKind) bool {
	switch k {
	case session.MutationRawDelta, session.MutationAttributed, session.MutationEndGame:
		return true
	}
	return false
}

// PeekType reads only the type discriminator of a frame
func PeekType(data []byte) (MessageType, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("decode frame type: %w", err)
	}
	return head.Type, nil
}
