package utils

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/racesim-client/log"
)

const tcpRetryInterval = 200 * time.Millisecond

// WaitForTCP blocks until addr accepts tcp connections, the timeout is reached
// or ctx is done.
func WaitForTCP(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	log.Debug("wait for tcp connection",
		log.String("addr", addr),
		log.Duration("timeout", timeout))
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			log.Debug("tcp connection successful",
				log.String("addr", addr),
				log.Duration("duration", time.Since(start)))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s could not be reached after %v", addr, timeout)
		case <-time.After(tcpRetryInterval):
		}
	}
}

// WaitForServices waits until all addresses accept tcp connections.
// The first failure cancels the remaining checks.
func WaitForServices(ctx context.Context, addrs []string, timeout time.Duration) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, addr := range addrs {
		g.Go(func() error {
			return WaitForTCP(gCtx, addr, timeout)
		})
	}
	return g.Wait()
}
