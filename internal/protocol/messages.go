package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hersh/gotris-engine/internal/game"
)

// MessageType identifies the kind of message sent over the wire.
type MessageType string

const (
	// Server -> Client messages
	MsgSnapshot MessageType = "snapshot"
	MsgError    MessageType = "error"

	// Client -> Server messages
	MsgCommand MessageType = "command"
)

// Envelope is the top-level wire format for all websocket messages.
type Envelope struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// Marshal wraps payload in an envelope of type t.
func Marshal(t MessageType, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: t, Payload: payload})
}

// Peek returns the envelope type of a raw message without decoding the
// payload.
func Peek(raw []byte) (MessageType, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	return head.Type, nil
}

// ExtractPayload re-unmarshals the raw JSON to extract a typed payload.
func ExtractPayload(raw []byte, target interface{}) error {
	var wrapper struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if len(wrapper.Payload) == 0 {
		return fmt.Errorf("decode envelope: missing payload")
	}
	if err := json.Unmarshal(wrapper.Payload, target); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// --- Client -> Server payloads ---

// CommandPayload names one engine command. Value carries the size for
// set_width and set_height and is ignored otherwise.
type CommandPayload struct {
	Command string `json:"command"`
	Value   int    `json:"value,omitempty"`
}

// --- Server -> Client payloads ---

// Point is a field coordinate. Row 0 is the bottom.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// FieldCell is one frozen cell.
type FieldCell struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Color int `json:"color"`
}

// FigurePayload is the active piece.
type FigurePayload struct {
	Type        string  `json:"type"`
	Coordinates []Point `json:"coordinates"`
	ColorCode   int     `json:"color_code"`
}

// SnapshotPayload is the full display state of a session.
type SnapshotPayload struct {
	SessionID      string         `json:"session_id,omitempty"`
	Height         int            `json:"height"`
	Width          int            `json:"width"`
	Field          []FieldCell    `json:"field"`
	State          string         `json:"state"`
	AllowedActions []string       `json:"allowed_actions"`
	Figure         *FigurePayload `json:"figure"`
	Score          int            `json:"score"`
	Lines          int            `json:"lines"`
	Level          int            `json:"level"`
	Pieces         int            `json:"pieces"`
}

// FromSnapshot converts an engine snapshot. Field cells are ordered bottom
// row first, left to right.
func FromSnapshot(sessionID string, s game.Snapshot) SnapshotPayload {
	field := make([]FieldCell, 0, len(s.Field))
	for c, color := range s.Field {
		field = append(field, FieldCell{X: c.X, Y: c.Y, Color: color})
	}
	sort.Slice(field, func(i, j int) bool {
		if field[i].Y != field[j].Y {
			return field[i].Y < field[j].Y
		}
		return field[i].X < field[j].X
	})

	actions := make([]string, 0, 4)
	for _, a := range s.AllowedActions.Actions() {
		actions = append(actions, a.String())
	}

	var figure *FigurePayload
	if s.Figure != nil {
		coords := make([]Point, len(s.Figure.Coordinates))
		for i, c := range s.Figure.Coordinates {
			coords[i] = Point{X: c.X, Y: c.Y}
		}
		figure = &FigurePayload{
			Type:        s.Figure.Type.String(),
			Coordinates: coords,
			ColorCode:   s.Figure.ColorCode,
		}
	}

	return SnapshotPayload{
		SessionID:      sessionID,
		Height:         s.Height,
		Width:          s.Width,
		Field:          field,
		State:          s.State.String(),
		AllowedActions: actions,
		Figure:         figure,
		Score:          s.Score,
		Lines:          s.Lines,
		Level:          s.Level,
		Pieces:         s.Pieces,
	}
}

// ErrorPayload reports a command the server could not accept.
type ErrorPayload struct {
	Message string `json:"message"`
	Command string `json:"command,omitempty"`
}

// --- HTTP Request/Response types ---

// CreateSessionResponse is returned by POST /sessions.
type CreateSessionResponse struct {
	SessionID string          `json:"session_id"`
	Snapshot  SnapshotPayload `json:"snapshot"`
}

// SessionInfo describes a session in the list response.
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	State       string    `json:"state"`
	Score       int       `json:"score"`
	Level       int       `json:"level"`
	Subscribers int       `json:"subscribers"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListSessionsResponse is returned by GET /sessions.
type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// ErrorResponse is a generic JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
