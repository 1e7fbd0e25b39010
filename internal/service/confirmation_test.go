package service

import (
	"context"
	"testing"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/repository"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/retry"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() retry.Policy {
	return retry.Policy{
		Attempts: 2,
		Delay:    time.Millisecond,
		MaxDelay: 2 * time.Millisecond,
		Timeout:  time.Second,
	}
}

type coordinatorFixture struct {
	broker  *transport.MemoryBroker
	players *repository.MemoryPlayerRepository
	clock   *clock.Mock
	coord   *Coordinator
	pair    models.Pair
	monitor *transport.Subscription
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	ctx := context.Background()

	f := &coordinatorFixture{
		broker:  transport.NewMemoryBroker(nil),
		players: repository.NewMemoryPlayerRepository(),
		clock:   clock.NewMock(),
		pair:    models.Pair{MatchID: "m-1", PlayerA: "alice", PlayerB: "bob", Region: "us-east-1"},
	}
	for _, id := range f.pair.Players() {
		require.NoError(t, f.players.Create(ctx, models.Player{ID: id, SkillRating: 1500, Region: "us-east-1", Searching: true}))
	}
	f.coord = NewCoordinator(CoordinatorConfig{
		Transport: f.broker,
		Players:   f.players,
		Clock:     f.clock,
		Window:    DefaultConfirmWindow,
		Retry:     fastRetry(),
	})

	var err error
	f.monitor, err = f.broker.Subscribe(ctx, transport.MonitorTopic)
	require.NoError(t, err)
	t.Cleanup(f.monitor.Close)
	return f
}

func (f *coordinatorFixture) start(ctx context.Context) <-chan ConfirmationResult {
	out := make(chan ConfirmationResult, 1)
	go func() { out <- f.coord.Run(ctx, f.pair) }()
	return out
}

// waitMonitor reads the monitor feed until an event of type t (and player, if set) shows up.
func (f *coordinatorFixture) waitMonitor(t *testing.T, eventType models.EventType, playerID string) models.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-f.monitor.Messages():
			event, err := models.ParseEvent(msg.Payload)
			require.NoError(t, err)
			if event.Type == eventType && (playerID == "" || event.PlayerID == playerID) {
				return event
			}
		case <-deadline:
			t.Fatalf("no %s event on monitor feed", eventType)
		}
	}
}

func (f *coordinatorFixture) confirm(t *testing.T, playerID string) {
	t.Helper()
	payload, err := models.Event{Type: models.EventConfirmed, MatchID: f.pair.MatchID, PlayerID: playerID}.Marshal()
	require.NoError(t, err)
	require.NoError(t, f.broker.Publish(context.Background(), transport.PairTopic(f.pair.PlayerA, f.pair.PlayerB), payload))
}

func (f *coordinatorFixture) player(t *testing.T, id string) *models.Player {
	t.Helper()
	p, err := f.players.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

func awaitResult(t *testing.T, out <-chan ConfirmationResult) ConfirmationResult {
	t.Helper()
	select {
	case r := <-out:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not resolve")
		return ConfirmationResult{}
	}
}

func TestCoordinator_BothConfirm(t *testing.T) {
	f := newCoordinatorFixture(t)
	out := f.start(context.Background())

	matched := f.waitMonitor(t, models.EventMatched, "")
	assert.Equal(t, transport.PairTopic("alice", "bob"), matched.Topic)
	assert.Equal(t, []string{"alice", "bob"}, matched.Players)

	f.confirm(t, "bob")
	f.confirm(t, "alice")

	result := awaitResult(t, out)
	require.NoError(t, result.Err)
	assert.Equal(t, models.StateConfirmed, result.State)
	require.NotNil(t, result.Session)
	assert.Equal(t, transport.SessionTopic("alice", "bob"), result.Session.Topic)
	assert.Equal(t, f.clock.Now(), result.Session.StartedAt)
	assert.Empty(t, result.Punished)

	for _, id := range []string{"alice", "bob"} {
		p := f.player(t, id)
		assert.True(t, p.Confirmed, id)
		assert.False(t, p.Searching, id)
		assert.False(t, p.Punished, id)
	}
	f.waitMonitor(t, models.EventInMatch, "")
}

func TestCoordinator_OneSideConfirms(t *testing.T) {
	f := newCoordinatorFixture(t)
	out := f.start(context.Background())

	f.waitMonitor(t, models.EventMatched, "")
	f.confirm(t, "alice")
	f.waitMonitor(t, models.EventConfirmed, "alice")

	f.clock.Add(DefaultConfirmWindow + time.Second)

	result := awaitResult(t, out)
	require.NoError(t, result.Err)
	assert.Equal(t, models.StateTimedOut, result.State)
	assert.Nil(t, result.Session)
	assert.True(t, result.ConfirmedBy("alice"))
	assert.Equal(t, []string{"bob"}, result.Punished)

	alice := f.player(t, "alice")
	assert.False(t, alice.Searching)
	assert.False(t, alice.Punished)
	assert.False(t, alice.Confirmed)

	bob := f.player(t, "bob")
	assert.True(t, bob.Punished)
	assert.False(t, bob.Searching)
}

func TestCoordinator_NobodyConfirms(t *testing.T) {
	f := newCoordinatorFixture(t)
	out := f.start(context.Background())

	f.waitMonitor(t, models.EventMatched, "")
	f.clock.Add(DefaultConfirmWindow + time.Second)

	result := awaitResult(t, out)
	assert.Equal(t, models.StateTimedOut, result.State)
	assert.Nil(t, result.Session)
	assert.ElementsMatch(t, []string{"alice", "bob"}, result.Punished)
	assert.True(t, f.player(t, "alice").Punished)
	assert.True(t, f.player(t, "bob").Punished)

	timeout := f.waitMonitor(t, models.EventTimeout, "")
	assert.Equal(t, "m-1", timeout.MatchID)
}

func TestCoordinator_IgnoresNoise(t *testing.T) {
	f := newCoordinatorFixture(t)
	out := f.start(context.Background())
	pairTopic := transport.PairTopic("alice", "bob")

	f.waitMonitor(t, models.EventMatched, "")

	ctx := context.Background()
	require.NoError(t, f.broker.Publish(ctx, pairTopic, []byte(`{not json`)))
	require.NoError(t, f.broker.Publish(ctx, pairTopic, []byte(`{"type":"Dance"}`)))
	f.confirm(t, "mallory")
	stale, err := models.Event{Type: models.EventConfirmed, MatchID: "other", PlayerID: "bob"}.Marshal()
	require.NoError(t, err)
	require.NoError(t, f.broker.Publish(ctx, pairTopic, stale))
	f.confirm(t, "alice")
	f.confirm(t, "alice")
	f.waitMonitor(t, models.EventConfirmed, "alice")

	f.clock.Add(DefaultConfirmWindow + time.Second)

	result := awaitResult(t, out)
	assert.Equal(t, models.StateTimedOut, result.State)
	assert.Equal(t, []string{"bob"}, result.Punished)
	assert.False(t, result.ConfirmedBy("mallory"))
}

func TestCoordinator_ContextCancelled(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	out := f.start(ctx)

	f.waitMonitor(t, models.EventMatched, "")
	cancel()

	result := awaitResult(t, out)
	assert.Error(t, result.Err)
	assert.Equal(t, models.StateTimedOut, result.State)
	assert.Empty(t, result.Punished)
	assert.False(t, f.player(t, "alice").Punished)
	assert.False(t, f.player(t, "bob").Punished)
}
