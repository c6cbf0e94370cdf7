//nolint:thelper // ok for tests
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racesim-client/pkg/session"
)

type msg struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []msg
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg{subject, data})
	return nil
}

func (f *fakePublisher) get() []msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]msg(nil), f.msgs...)
}

type fakeKV map[string][]byte

func (f fakeKV) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	f[key] = value
	return uint64(len(f)), nil
}

func sampleSession(id string, lap int) session.Session {
	s := session.Initial()
	s.SessionID = id
	s.RaceStarted = true
	s.CurrentLap = lap
	return s
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "rsc.session.abc", Subject("abc"))
}

func TestPublish(t *testing.T) {
	pub := &fakePublisher{}
	kv := fakeKV{}
	m := New(pub, withKV(kv))

	require.NoError(t, m.Publish(context.Background(), sampleSession("abc", 4)))
	require.NoError(t, m.Publish(context.Background(), session.Initial()))

	msgs := pub.get()
	require.Len(t, msgs, 1, "sessions without id are skipped")
	assert.Equal(t, "rsc.session.abc", msgs[0].subject)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].data, &got))
	assert.Equal(t, "abc", got["sessionId"])
	assert.InDelta(t, 4, got["currentLap"], 0)
	assert.Equal(t, "disconnected", got["connectionState"])
	assert.Equal(t, msgs[0].data, kv["session.abc"])
}

func TestPublishError(t *testing.T) {
	m := New(&fakePublisher{err: errors.New("no connection")})
	assert.Error(t, m.Publish(context.Background(), sampleSession("abc", 1)))
}

func TestRun(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub)
	ch := make(chan session.Session, 3)
	ch <- sampleSession("abc", 1)
	ch <- sampleSession("abc", 2)
	ch <- sampleSession("abc", 3)
	close(ch)

	m.Run(context.Background(), ch)
	assert.Len(t, pub.get(), 3)
	m.Close()
}

func TestRunStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := New(&fakePublisher{})
	done := make(chan struct{})
	go func() {
		m.Run(ctx, make(chan session.Session))
		close(done)
	}()
	<-done
}
