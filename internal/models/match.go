package models

import "time"

// WaitingEntry 대기열 항목
type WaitingEntry struct {
	PlayerID   string    `json:"playerId"`
	Region     string    `json:"region"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Pair 매처가 만든 한 쌍
type Pair struct {
	MatchID string  `json:"matchId"`
	PlayerA string  `json:"playerA"`
	PlayerB string  `json:"playerB"`
	Region  string  `json:"region"`
	Cost    float64 `json:"cost"`
}

// Players returns both ids in pair order.
func (p Pair) Players() []string {
	return []string{p.PlayerA, p.PlayerB}
}

// Has reports whether id belongs to the pair.
func (p Pair) Has(id string) bool {
	return p.PlayerA == id || p.PlayerB == id
}

// Session 양쪽 확인 후 열리는 게임 세션
type Session struct {
	MatchID   string    `json:"matchId"`
	PlayerA   string    `json:"playerA"`
	PlayerB   string    `json:"playerB"`
	Region    string    `json:"region"`
	Topic     string    `json:"topic"`
	StartedAt time.Time `json:"startedAt"`
}

// Outcome 시뮬레이션 매치 결과
type Outcome struct {
	WinnerID      string             `json:"winnerId,omitempty"`
	Draw          bool               `json:"draw"`
	RatingChanges map[string]float64 `json:"ratingChanges,omitempty"`
}

// Score returns the match score for playerID: 1 win, 0.5 draw, 0 loss.
func (o Outcome) Score(playerID string) float64 {
	if o.Draw {
		return 0.5
	}
	if o.WinnerID == playerID {
		return 1
	}
	return 0
}

// ConfirmationState 확인 핸드셰이크 상태
type ConfirmationState int

const (
	StateCreated ConfirmationState = iota
	StateAwaitingConfirmation
	StateConfirmed
	StateTimedOut
)

func (s ConfirmationState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateConfirmed:
		return "confirmed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s ConfirmationState) Terminal() bool {
	return s == StateConfirmed || s == StateTimedOut
}
