// Package mirror publishes session snapshots to NATS so other processes can
// follow a race.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/racesim-client/log"
	"github.com/mpapenbr/racesim-client/pkg/session"
)

const (
	subjectPrefix = "rsc.session"
	bucketName    = "rsc"
	bucketTTL     = 24 * time.Hour
)

type (
	publisher interface {
		Publish(subject string, data []byte) error
	}
	// stores the latest snapshot per session
	kvStore interface {
		Put(ctx context.Context, key string, value []byte) (uint64, error)
	}
	Option func(m *Mirror)
	Mirror struct {
		pub     publisher
		kv      kvStore
		l       *log.Logger
		closeFn func() error
	}
)

func WithLogger(l *log.Logger) Option {
	return func(m *Mirror) {
		m.l = l
	}
}

func withKV(kv kvStore) Option {
	return func(m *Mirror) {
		m.kv = kv
	}
}

func New(pub publisher, opts ...Option) *Mirror {
	ret := &Mirror{
		pub: pub,
		l:   log.Default().Named("mirror"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Connect connects to the NATS server at url. If useKV is set the latest
// snapshot of each session is also kept in a JetStream key value bucket.
func Connect(ctx context.Context, url string, useKV bool, opts ...Option) (*Mirror, error) {
	conn, err := nats.Connect(url, nats.Name("rsc"))
	if err != nil {
		return nil, fmt.Errorf("could not connect to nats: %w", err)
	}
	if useKV {
		kv, kvErr := setupKV(ctx, conn)
		if kvErr != nil {
			conn.Close()
			return nil, fmt.Errorf("could not setup key value bucket: %w", kvErr)
		}
		opts = append(opts, withKV(kv))
	}
	ret := New(conn, opts...)
	ret.closeFn = conn.Drain
	return ret, nil
}

func setupKV(ctx context.Context, conn *nats.Conn) (jetstream.KeyValue, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, err
	}
	return js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucketName,
		TTL:    bucketTTL,
	})
}

// Subject returns the subject snapshots of a session are published on
func Subject(sessionID string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, sessionID)
}

func kvKey(sessionID string) string {
	return fmt.Sprintf("session.%s", sessionID)
}

func Encode(s session.Session) ([]byte, error) {
	return json.Marshal(s)
}

// Publish sends the snapshot. Snapshots without session id are skipped.
func (m *Mirror) Publish(ctx context.Context, s session.Session) error {
	if s.SessionID == "" {
		return nil
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := m.pub.Publish(Subject(s.SessionID), data); err != nil {
		return err
	}
	if m.kv != nil {
		if _, err := m.kv.Put(ctx, kvKey(s.SessionID), data); err != nil {
			return err
		}
	}
	return nil
}

// Run publishes every snapshot received on ch until ch is closed or ctx is done.
func (m *Mirror) Run(ctx context.Context, ch <-chan session.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-ch:
			if !ok {
				m.l.Debug("snapshot channel closed")
				return
			}
			if err := m.Publish(ctx, s); err != nil {
				m.l.Warn("could not publish snapshot",
					log.String("session", s.SessionID),
					log.ErrorField(err))
			}
		}
	}
}

// Close flushes pending messages and closes the connection
func (m *Mirror) Close() {
	if m.closeFn == nil {
		return
	}
	if err := m.closeFn(); err != nil {
		m.l.Warn("error closing nats connection", log.ErrorField(err))
	}
}
