package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

const gamePath = "/ws/game/"

// GameURL returns the websocket url of a game session.
// base may use http(s) or ws(s), http is mapped to ws and https to wss.
func GameURL(base, sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in url %q", u.Scheme, base)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in url %q", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + gamePath + sessionID
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// HostPort returns host:port of a ws(s), http(s) or nats url.
// The default port of the scheme is used if the url has none.
func HostPort(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in url %q", rawURL)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := ""
	switch u.Scheme {
	case "ws", "http":
		port = "80"
	case "wss", "https":
		port = "443"
	case "nats":
		port = "4222"
	default:
		return "", fmt.Errorf("unsupported scheme %q in url %q", u.Scheme, rawURL)
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
