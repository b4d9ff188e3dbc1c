package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"facewatch/internal/config"
)

const userAgent = "facewatch/0.1"

// Event names a pipeline milestone.
type Event string

const (
	EventEntryCompleted   Event = "entry_completed"
	EventEntryFailed      Event = "entry_failed"
	EventRetriesExhausted Event = "retries_exhausted"
	EventTest             Event = "test"
)

// Payload carries event fields. Known keys: entry, output, exitCode, error,
// attempts, log.
type Payload map[string]string

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return noopService{}
	}
	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:    &http.Client{Timeout: timeout},
		onSuccess: cfg.Notifications.OnSuccess,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	entry := strings.TrimSpace(payload["entry"])
	switch event {
	case EventEntryCompleted:
		if !n.onSuccess {
			return message{}, false
		}
		body := "Transformed: " + entry
		if output := strings.TrimSpace(payload["output"]); output != "" {
			body += "\nOutput: " + output
		}
		return message{
			title: "facewatch - Done",
			body:  body,
			tags:  []string{"facewatch", "completed"},
		}, true
	case EventEntryFailed:
		body := fmt.Sprintf("Transform failed: %s (exit %s)", entry, fallback(payload["exitCode"], "?"))
		if errText := strings.TrimSpace(payload["error"]); errText != "" {
			body += "\n" + errText
		}
		if log := strings.TrimSpace(payload["log"]); log != "" {
			body += "\nLog: " + log
		}
		return message{
			title: "facewatch - Failed",
			body:  body,
			tags:  []string{"facewatch", "failed"},
		}, true
	case EventRetriesExhausted:
		return message{
			title:    "facewatch - Gave Up",
			body:     fmt.Sprintf("Giving up on %s after %s attempts\nLast error: %s", entry, fallback(payload["attempts"], "?"), fallback(payload["error"], "unknown")),
			tags:     []string{"facewatch", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "facewatch - Test",
			body:     "Notification system test",
			tags:     []string{"facewatch", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func fallback(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
