package models

import (
	"encoding/json"
	"fmt"
)

// Inbound event types sent by clients.
const (
	EventJoinTeam    = "joinTeam"
	EventSendMessage = "sendMessage"
	EventPinMessage  = "pinMessage"
)

// Outbound event types pushed to clients.
const (
	EventNewMessage    = "newMessage"
	EventMessagePinned = "messagePinned"
	EventNotification  = "notification"
)

// Envelope is the structure of every WebSocket frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is an outbound event before encoding.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Encode marshals the event into a frame.
func (e Event) Encode() ([]byte, error) {
	frame, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return frame, nil
}

// JoinTeamPayload accepts either a bare team id or {"teamId": ...}.
type JoinTeamPayload struct {
	TeamID FlexID `json:"teamId"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *JoinTeamPayload) UnmarshalJSON(data []byte) error {
	var bare FlexID
	if err := json.Unmarshal(data, &bare); err == nil {
		p.TeamID = bare
		return nil
	}
	var obj struct {
		TeamID FlexID `json:"teamId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.TeamID = obj.TeamID
	return nil
}

// SendMessagePayload is the payload of a sendMessage event.
type SendMessagePayload struct {
	TeamID  FlexID `json:"teamId"`
	Content string `json:"content"`
}

// PinMessagePayload is the payload of a pinMessage event.
type PinMessagePayload struct {
	TeamID    FlexID `json:"teamId"`
	MessageID FlexID `json:"messageId"`
	Pin       bool   `json:"pin"`
}
