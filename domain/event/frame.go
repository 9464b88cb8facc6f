package event

import (
	"encoding/json"
	"fmt"

	"chat-relay/domain"
)

// Frame is the wire envelope: one JSON object per frame.
type Frame struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps a domain event into its wire frame for a channel.
func Encode(ch domain.Channel, e DomainEvent) ([]byte, error) {
	var payload any
	switch evt := e.(type) {
	case MessagePosted:
		payload = evt.Message
	default:
		payload = e
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Channel: ch.Key(), Type: e.FrameType(), Payload: raw})
}

// Decode parses a wire frame back into its envelope.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	return f, nil
}

// DecodeEvent rebuilds the typed event held by a frame.
func (f Frame) DecodeEvent() (DomainEvent, error) {
	switch f.Type {
	case TypeMessage:
		var msg domain.Message
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			return nil, err
		}
		return MessagePosted{Message: msg}, nil
	case TypeMembershipDelta:
		var delta MembershipDelta
		if err := json.Unmarshal(f.Payload, &delta); err != nil {
			return nil, err
		}
		return delta, nil
	case TypeNotification:
		var notif Notification
		if err := json.Unmarshal(f.Payload, &notif); err != nil {
			return nil, err
		}
		return notif, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}
