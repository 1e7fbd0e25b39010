package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType 매칭 수명주기 이벤트 종류
type EventType string

const (
	EventJoining   EventType = "Joining"
	EventMatched   EventType = "Matched"
	EventConfirmed EventType = "Confirmed"
	EventInMatch   EventType = "InMatch"
	EventFinished  EventType = "Finished"
	EventTimeout   EventType = "Timeout"
	EventUnknown   EventType = "Unknown"
)

// Event 토픽으로 오가는 이벤트. Type에 따라 채워지는 필드가 다르다.
type Event struct {
	Type      EventType `json:"type"`
	MatchID   string    `json:"matchId,omitempty"`
	PlayerID  string    `json:"playerId,omitempty"`
	Players   []string  `json:"players,omitempty"`
	Topic     string    `json:"topic,omitempty"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Raw holds the original tag of an Unknown event.
	Raw string `json:"-"`
}

// legacy plain-text payloads still sent by older clients
var legacyEvents = map[string]EventType{
	"match_confirmed": EventConfirmed,
	"timeout":         EventTimeout,
	"processing":      EventJoining,
	"joining":         EventJoining,
	"matched":         EventMatched,
	"inmatch":         EventInMatch,
	"finished":        EventFinished,
}

var knownEvents = map[EventType]bool{
	EventJoining:   true,
	EventMatched:   true,
	EventConfirmed: true,
	EventInMatch:   true,
	EventFinished:  true,
	EventTimeout:   true,
}

// ParseEvent decodes a transport payload into an Event.
// Unrecognised tags come back as EventUnknown; only undecodable payloads return an error.
func ParseEvent(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Event{}, fmt.Errorf("%w: empty payload", ErrMalformedEvent)
	}

	if trimmed[0] != '{' {
		text := strings.Trim(string(trimmed), `"`)
		if t, ok := legacyEvents[strings.ToLower(text)]; ok {
			return Event{Type: t}, nil
		}
		return Event{Type: EventUnknown, Raw: text}, nil
	}

	var event Event
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !knownEvents[event.Type] {
		event.Raw = string(event.Type)
		event.Type = EventUnknown
	}
	return event, nil
}

// Marshal 이벤트 직렬화
func (e Event) Marshal() ([]byte, error) {
	if e.Type == EventUnknown {
		return nil, fmt.Errorf("%w: refusing to publish unknown event", ErrMalformedEvent)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}
