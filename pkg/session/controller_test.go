//nolint:thelper,funlen // ok for tests
package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racesim-client/pkg/channel"
	"github.com/mpapenbr/racesim-client/pkg/model"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	connects     int
	disconnects  int
	sent         []model.Outbound
	onFrame      channel.FrameHandler
	onState      channel.StateHandler
	onError      channel.ErrorHandler
	disconnected bool
}

func (f *fakeTransport) Connect(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

func (f *fakeTransport) Send(frame model.Outbound) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return false
	}
	f.sent = append(f.sent, frame)
	return true
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.disconnected = true
}

func (f *fakeTransport) OnFrame(h channel.FrameHandler)       { f.onFrame = h }
func (f *fakeTransport) OnStateChange(h channel.StateHandler) { f.onState = h }
func (f *fakeTransport) OnError(h channel.ErrorHandler)       { f.onError = h }

// emulates the channel manager: nothing is delivered after disconnect
func (f *fakeTransport) deliver(frame model.Inbound) {
	f.mu.Lock()
	h := f.onFrame
	gone := f.disconnected
	f.mu.Unlock()
	if !gone && h != nil {
		h(frame)
	}
}

func (f *fakeTransport) setState(s channel.ConnectionState) {
	f.mu.Lock()
	f.connected = s == channel.Connected
	h := f.onState
	f.mu.Unlock()
	if h != nil {
		h(s)
	}
}

func (f *fakeTransport) sentFrames() []model.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Outbound(nil), f.sent...)
}

func newStartedController(t *testing.T, opts ...ControllerOption) (*Controller, *fakeTransport) {
	ft := &fakeTransport{}
	c := NewController(ft, opts...)
	t.Cleanup(c.Close)
	c.Start(context.Background())
	ft.setState(channel.Connected)
	return c, ft
}

func TestControllerStart(t *testing.T) {
	c, ft := newStartedController(t, WithSessionID("s1"))
	c.Start(context.Background())
	assert.Equal(t, 1, ft.connects)
	assert.Equal(t, channel.Connected, c.Snapshot().ConnectionState)
	assert.Equal(t, "s1", c.Snapshot().SessionID)
}

func TestControllerStartRace(t *testing.T) {
	c, ft := newStartedController(t)
	rain := 5
	assert.True(t, c.StartRace(StartOptions{PlayerName: "Max", TotalLaps: 10, RainLap: &rain}))
	assert.False(t, c.StartRace(StartOptions{PlayerName: "", TotalLaps: 10}))
	assert.False(t, c.StartRace(StartOptions{PlayerName: "Max", TotalLaps: 0}))

	assert.Equal(t, []model.Outbound{
		model.StartGame{PlayerName: "Max", TotalLaps: 10, RainLap: &rain},
	}, ft.sentFrames())
	assert.False(t, c.Snapshot().RaceStarted, "waits for RACE_STARTED")
}

func TestControllerStartRaceBeforeStart(t *testing.T) {
	ft := &fakeTransport{connected: true}
	c := NewController(ft)
	defer c.Close()
	assert.False(t, c.StartRace(StartOptions{PlayerName: "Max", TotalLaps: 10}))
	assert.Empty(t, ft.sentFrames())
}

func TestControllerDecisionFlow(t *testing.T) {
	c, ft := newStartedController(t)
	ft.deliver(&model.RaceStarted{TotalLaps: 10, Player: samplePlayer(1)})
	ft.deliver(sampleDecision(3, model.EventRainStart, "inters"))
	require.True(t, c.Snapshot().HasActiveDecision())

	assert.True(t, c.ChooseStrategy("inters"))
	assert.False(t, c.Snapshot().HasActiveDecision())
	assert.Equal(t, []model.Outbound{model.SelectStrategy{StrategyID: "inters"}}, ft.sentFrames())

	assert.False(t, c.ChooseStrategy("inters"), "no active decision")
	assert.Len(t, ft.sentFrames(), 1)
}

func TestControllerChooseStrategyFor(t *testing.T) {
	c, ft := newStartedController(t)
	ft.deliver(&model.RaceStarted{TotalLaps: 10, Player: samplePlayer(1)})
	ft.deliver(sampleDecision(3, model.EventRainStart, "inters"))
	old := c.Snapshot().ActiveDecision
	require.NotNil(t, old)
	ft.deliver(sampleDecision(4, model.EventSafetyCar, "pit"))

	assert.False(t, c.ChooseStrategyFor(old, "inters"), "decision was replaced")
	assert.Empty(t, ft.sentFrames())
	require.True(t, c.Snapshot().HasActiveDecision())

	assert.False(t, c.ChooseStrategyFor(nil, "pit"))
	assert.True(t, c.ChooseStrategyFor(c.Snapshot().ActiveDecision, "pit"))
	assert.Equal(t, []model.Outbound{model.SelectStrategy{StrategyID: "pit"}}, ft.sentFrames())
}

func TestControllerChooseWhileDisconnected(t *testing.T) {
	c, ft := newStartedController(t)
	ft.deliver(&model.RaceStarted{TotalLaps: 10, Player: samplePlayer(1)})
	ft.deliver(sampleDecision(3, model.EventRainStart, "inters"))
	ft.setState(channel.Disconnected)

	assert.True(t, c.ChooseStrategy("inters"))
	assert.Empty(t, ft.sentFrames())
	s := c.Snapshot()
	assert.Len(t, s.DecisionHistory, 1, "choice is recorded although lost")
	assert.Equal(t, channel.Disconnected, s.ConnectionState)
}

func TestControllerRestart(t *testing.T) {
	c, ft := newStartedController(t)
	ft.deliver(&model.RaceStarted{SessionID: "x", TotalLaps: 10, Player: samplePlayer(1)})
	c.Restart()
	s := c.Snapshot()
	assert.Equal(t, Idle, s.RaceState())
	assert.Equal(t, channel.Connected, s.ConnectionState)
	assert.Equal(t, 0, ft.disconnects, "restart keeps the connection")
}

func TestControllerPublishesSnapshots(t *testing.T) {
	ft := &fakeTransport{}
	c := NewController(ft)
	defer c.Close()
	sub := c.Subscribe()
	c.Start(context.Background())

	ft.setState(channel.Connected)
	ft.deliver(&model.RaceStarted{TotalLaps: 3, Player: samplePlayer(1)})
	ft.deliver(&model.LapUpdate{Lap: 1, Player: samplePlayer(1)})

	var got []Session
	for len(got) < 3 {
		select {
		case s := <-sub:
			got = append(got, s)
		case <-time.After(waitFor):
			t.Fatalf("timeout, got %d snapshots", len(got))
		}
	}
	assert.Equal(t, channel.Connected, got[0].ConnectionState)
	assert.True(t, got[1].RaceStarted)
	assert.Equal(t, 1, got[2].CurrentLap)
}

func TestControllerClose(t *testing.T) {
	ft := &fakeTransport{}
	c := NewController(ft)
	sub := c.Subscribe()
	c.Start(context.Background())
	ft.setState(channel.Connected)
	<-sub

	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})
	assert.Equal(t, 1, ft.disconnects)

	// handlers registered before close must not touch the session anymore
	ft.onFrame(&model.RaceStarted{TotalLaps: 3, Player: samplePlayer(1)})
	ft.onState(channel.Disconnected)
	assert.False(t, c.Snapshot().RaceStarted)
	assert.False(t, c.ChooseStrategy("x"))

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub:
			return !ok
		default:
			return false
		}
	}, waitFor, tick)
}

func TestControllerErrorHandler(t *testing.T) {
	var got []error
	c, ft := newStartedController(t, WithErrorHandler(func(err error) { got = append(got, err) }))
	ft.onError(errors.New("boom"))
	c.Close()
	ft.onError(errors.New("late"))
	require.Len(t, got, 1)
	assert.EqualError(t, got[0], "boom")
}
