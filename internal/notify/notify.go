// Package notify posts ntfy-style notifications when previews finish
// rendering.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

const (
	defaultTimeout  = 5 * time.Second
	tripAfter       = 3
	breakerCooldown = time.Minute
)

// Message is one notification. Title and Tags map onto ntfy headers.
type Message struct {
	Title string
	Tags  []string
	Body  string
}

// Send sends a plain text message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return post(ctx, client, endpoint, Message{Body: message})
}

func post(ctx context.Context, client *http.Client, endpoint string, msg Message) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Notifier reports finished capture passes. After repeated delivery failures
// it stops calling the endpoint for a cooldown period.
type Notifier struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
}

func NewNotifier(endpoint string, client *http.Client) *Notifier {
	n := &Notifier{client: client, endpoint: endpoint, timeout: defaultTimeout}
	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("notify circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return n
}

// Notify delivers msg unless the breaker is open.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	_, err := n.breaker.Execute(func() (interface{}, error) {
		sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		return nil, post(sendCtx, n.client, n.endpoint, msg)
	})
	return err
}

// PassFinished implements peek.PassObserver. Failures are logged only.
func (n *Notifier) PassFinished(ctx context.Context, res peek.PassResult) {
	err := n.Notify(context.WithoutCancel(ctx), passMessage(res))
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		slog.Debug("notify skipped, breaker open", "tab", res.Tab.String())
	default:
		slog.Warn("notify failed", "tab", res.Tab.String(), "error", err)
	}
}

func passMessage(res peek.PassResult) Message {
	msg := Message{Tags: []string{"quickpeek", string(res.Reason)}}
	switch res.Reason {
	case peek.StopFailed:
		msg.Title = "Preview failed"
		msg.Body = fmt.Sprintf("%s\n%d frame(s) before error: %v", res.URL, res.Frames, res.Err)
	case peek.StopDetached:
		msg.Title = "Preview closed"
		msg.Body = fmt.Sprintf("%s\n%d frame(s) before it was closed", res.URL, res.Frames)
	case peek.StopCapped:
		msg.Title = "Preview ready (truncated)"
		msg.Body = fmt.Sprintf("%s\n%d frame(s), page continues below", res.URL, res.Frames)
	default:
		msg.Title = "Preview ready"
		msg.Body = fmt.Sprintf("%s\n%d frame(s)", res.URL, res.Frames)
	}
	return msg
}
