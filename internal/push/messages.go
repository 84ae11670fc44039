// Package push delivers slot-status change events from the parking backend to lot subscribers.
package push

import (
	"encoding/json"
	"fmt"
	"time"

	"parkwise/internal/entities"
)

// MessageType identifies the type of a push-channel message.
type MessageType string

const (
	// Server -> client
	TypeSlotUpdate MessageType = "slotUpdate"

	// Client -> server
	TypeJoinLotRoom  MessageType = "joinLotRoom"
	TypeLeaveLotRoom MessageType = "leaveLotRoom"
)

// Message is the push-channel envelope.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// SlotChanged is the payload of a slotUpdate event.
type SlotChanged struct {
	SlotID string `json:"_id"`
	LotID  string `json:"parkingLotId"`
	Status string `json:"status"`
}

// DecodeSlotUpdate parses either an envelope carrying a slotUpdate or a bare SlotChanged payload.
// ok is false for well-formed messages of another type.
func DecodeSlotUpdate(data []byte) (ev SlotChanged, ok bool, err error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return SlotChanged{}, false, fmt.Errorf("decoding push message: %w", err)
	}

	payload := data
	if msg.Type != "" {
		if msg.Type != TypeSlotUpdate {
			return SlotChanged{}, false, nil
		}
		payload = msg.Payload
	}

	if err := json.Unmarshal(payload, &ev); err != nil {
		return SlotChanged{}, false, fmt.Errorf("decoding slotUpdate payload: %w", err)
	}
	if ev.SlotID == "" || ev.LotID == "" || ev.Status == "" {
		return SlotChanged{}, false, fmt.Errorf("slotUpdate is missing _id, parkingLotId or status")
	}
	switch ev.Status {
	case entities.SlotAvailable, entities.SlotOccupied, entities.SlotReserved, entities.SlotMaintenance:
	default:
		return SlotChanged{}, false, fmt.Errorf("slotUpdate has unknown status %q", ev.Status)
	}
	return ev, true, nil
}

// EventKind distinguishes subscription events.
type EventKind int

const (
	EventSlotChanged EventKind = iota
	EventConnection
)

// Event is what a Subscription delivers.
type Event struct {
	Kind      EventKind
	Slot      SlotChanged
	Connected bool
	Err       error
}
