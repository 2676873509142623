package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var ErrNoBindAddr = errors.New("no available bind addresses")

// Listen binds the preferred address, falling back to the candidates in
// order when autoFallback is set. The returned listener is already bound, so
// the address cannot be taken between the check and the server start.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
	}

	return nil, ErrNoBindAddr
}

// ParseCandidates expands a comma separated list of addresses. A port may be
// a range, so "127.0.0.1:8191-8193" yields three addresses.
func ParseCandidates(raw string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		host, port, err := net.SplitHostPort(part)
		if err != nil {
			return nil, fmt.Errorf("bind candidate %q: %w", part, err)
		}
		lo, hi, isRange := strings.Cut(port, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("bind candidate %q: invalid port", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil || last < first {
				return nil, fmt.Errorf("bind candidate %q: invalid port range", part)
			}
		}
		if first < 1 || last > 65535 {
			return nil, fmt.Errorf("bind candidate %q: port out of range", part)
		}
		for p := first; p <= last; p++ {
			out = append(out, net.JoinHostPort(host, strconv.Itoa(p)))
		}
	}
	return out, nil
}

// WaitForTCP dials addr until it accepts a connection or ctx ends.
func WaitForTCP(ctx context.Context, addr string, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", addr, ctx.Err())
		case <-time.After(interval):
		}
	}
}
