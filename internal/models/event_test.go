package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType EventType
		wantRaw  string
		wantErr  bool
	}{
		{name: "json confirmed", payload: `{"type":"Confirmed","playerId":"p1","matchId":"m1"}`, wantType: EventConfirmed},
		{name: "json timeout", payload: `{"type":"Timeout"}`, wantType: EventTimeout},
		{name: "legacy confirm text", payload: `match_confirmed`, wantType: EventConfirmed},
		{name: "legacy quoted timeout", payload: `"TIMEOUT"`, wantType: EventTimeout},
		{name: "unknown tag", payload: `{"type":"Dance"}`, wantType: EventUnknown, wantRaw: "Dance"},
		{name: "unknown text", payload: `hello`, wantType: EventUnknown, wantRaw: "hello"},
		{name: "broken json", payload: `{"type":`, wantErr: true},
		{name: "empty", payload: `  `, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseEvent([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, event.Type)
			assert.Equal(t, tt.wantRaw, event.Raw)
		})
	}
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	event := Event{Type: EventMatched, MatchID: "m1", Players: []string{"a", "b"}, Topic: "pre-lobby-a-b"}
	data, err := event.Marshal()
	require.NoError(t, err)

	parsed, err := ParseEvent(data)
	require.NoError(t, err)
	assert.Equal(t, EventMatched, parsed.Type)
	assert.Equal(t, []string{"a", "b"}, parsed.Players)
	assert.Equal(t, "pre-lobby-a-b", parsed.Topic)

	_, err = Event{Type: EventUnknown}.Marshal()
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestPlayer_Apply(t *testing.T) {
	p := Player{ID: "p1", SkillRating: 1200, Region: "us-east-1", Searching: true}.WithDefaults()

	err := p.Apply(PlayerFields{FieldPunished: true, FieldSearching: false, FieldSkillRating: 1234.0})
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.True(t, p.Punished)
	assert.False(t, p.Searching)
	assert.Equal(t, 1234.0, p.SkillRating)
	assert.Equal(t, "us-east-1", p.Region)
	assert.Equal(t, ToxicityLow, p.ToxicityLevel)

	err = p.Apply(PlayerFields{"nickname": "x"})
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestConstraints_With(t *testing.T) {
	c := DefaultConstraints()

	updated, err := c.With("MAX_ELO_GAP", 300)
	require.NoError(t, err)
	assert.Equal(t, 300.0, updated.MaxSkillGap)
	assert.Equal(t, 200.0, c.MaxSkillGap, "original snapshot untouched")

	_, err = c.With(ConstraintSkillWeight, -1)
	assert.ErrorIs(t, err, ErrInvalidConstraint)

	_, err = c.With("WAIT_TIME_WEIGHT", 1)
	assert.ErrorIs(t, err, ErrInvalidConstraint)
}

func TestToxicityLevel_Steps(t *testing.T) {
	assert.Equal(t, ToxicityMedium, ToxicityLow.Escalate())
	assert.Equal(t, ToxicityHigh, ToxicityHigh.Escalate())
	assert.Equal(t, ToxicityMedium, ToxicityHigh.Deescalate())
	assert.Equal(t, ToxicityLow, ToxicityLow.Deescalate())
}
