package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"gamevault/internal/config"
	"gamevault/internal/events"
	"gamevault/internal/logging"
)

const userAgent = "gamevault/0.1.0"

// Notifier publishes messages. TestNotification verifies the endpoint.
type Notifier interface {
	events.Sink
	TestNotification(ctx context.Context) error
	// Wait blocks until in-flight deliveries finish.
	Wait()
}

// NewSink builds an ntfy-backed notifier when a topic is configured.
func NewSink(cfg *config.Config, logger *slog.Logger) Notifier {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopNotifier{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyNotifier{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "notifications"),
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyNotifier struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func (n *ntfyNotifier) Emit(ctx context.Context, env events.Envelope) {
	data, ok := format(env.Payload)
	if !ok {
		return
	}
	sendCtx := context.WithoutCancel(ctx)
	n.wg.Go(func() {
		if err := n.send(sendCtx, data); err != nil {
			logging.WarnWithContext(n.logger, "ntfy delivery failed", "notification_failed",
				logging.String("title", data.title),
				logging.Error(err),
			)
		}
	})
}

func (n *ntfyNotifier) Wait() {
	n.wg.Wait()
}

func (n *ntfyNotifier) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Gamevault - Test",
		message:  "Notification system test",
		tags:     []string{"gamevault", "test"},
		priority: "low",
	})
}

// format turns the events worth a push into a message.
func format(evt events.Event) (payload, bool) {
	switch e := evt.(type) {
	case events.ReconcileEvent:
		return formatReconcile(e)
	case events.RejectEvent:
		if e.Stage != events.StageException {
			return payload{}, false
		}
		message := fmt.Sprintf("Catalog %s for game %d could not be applied: %s", e.Method, e.GameID, e.Reason)
		if e.Message != "" {
			message += "\n" + e.Message
		}
		return payload{
			title:    "Gamevault - Webhook Failure",
			message:  message,
			tags:     []string{"gamevault", "webhook", "error"},
			priority: "high",
		}, true
	}
	return payload{}, false
}

func formatReconcile(e events.ReconcileEvent) (payload, bool) {
	duration := e.Duration.Round(time.Second)
	if e.Error != "" {
		return payload{
			title:    "Gamevault - Reconcile Failed",
			message:  fmt.Sprintf("Reconcile for %s failed: %s", e.UserID, e.Error),
			tags:     []string{"gamevault", "reconcile", "error"},
			priority: "high",
		}, true
	}
	if e.NewlyResolved == 0 && e.Errors == 0 {
		return payload{}, false
	}
	title := "Gamevault - Reconcile Complete"
	message := fmt.Sprintf("%s: %d newly resolved, %d still unresolved in %s", e.UserID, e.NewlyResolved, e.StillUnresolved, duration)
	if e.Errors > 0 {
		title = "Gamevault - Reconcile Complete (with errors)"
		message = fmt.Sprintf("%s, %d errors", message, e.Errors)
	}
	return payload{
		title:   title,
		message: message,
		tags:    []string{"gamevault", "reconcile", "completed"},
	}, true
}

func (n *ntfyNotifier) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

type noopNotifier struct{}

func (noopNotifier) Emit(context.Context, events.Envelope)  {}
func (noopNotifier) TestNotification(context.Context) error { return nil }
func (noopNotifier) Wait()                                  {}
