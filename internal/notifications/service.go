package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"streamkeep/internal/config"
)

const userAgent = "streamkeep/0.1.0"

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyRecordingEnded(ctx context.Context, source, outcome, output string, elapsed time.Duration, cause error) error
	NotifyQueueProcessed(ctx context.Context, merged, failed, empty int, duration time.Duration) error
	NotifyReplicationFailed(ctx context.Context, target, path string, cause error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether cfg names an ntfy topic.
func Enabled(cfg *config.Config) bool {
	return cfg != nil && strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRecordingEnded(ctx context.Context, source, outcome, output string, elapsed time.Duration, cause error) error {
	source = strings.TrimSpace(source)
	elapsedText := roundDuration(elapsed)
	switch outcome {
	case "failed":
		message := fmt.Sprintf("Recording of %s failed after %s", source, elapsedText)
		if cause != nil {
			message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(cause.Error()))
		}
		return n.send(ctx, payload{
			title:    "streamkeep - Recording Failed",
			message:  message,
			tags:     []string{"streamkeep", "record", "failed"},
			priority: "high",
		})
	default:
		message := fmt.Sprintf("Recorded %s for %s", source, elapsedText)
		if output = strings.TrimSpace(output); output != "" {
			message = fmt.Sprintf("%s\nFile: %s", message, output)
		}
		return n.send(ctx, payload{
			title:   "streamkeep - Recording Finished",
			message: message,
			tags:    []string{"streamkeep", "record", outcome},
		})
	}
}

func (n *ntfyService) NotifyQueueProcessed(ctx context.Context, merged, failed, empty int, duration time.Duration) error {
	durationText := roundDuration(duration)
	data := payload{
		title:   "streamkeep - Queue Processed",
		message: fmt.Sprintf("Merged %d batches in %s", merged, durationText),
		tags:    []string{"streamkeep", "queue", "completed"},
	}
	if failed > 0 {
		data.title = "streamkeep - Queue Processed (with errors)"
		data.message = fmt.Sprintf("Merged %d batches, %d failed in %s", merged, failed, durationText)
		data.priority = "high"
	}
	if empty > 0 {
		data.message = fmt.Sprintf("%s (%d empty skipped)", data.message, empty)
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReplicationFailed(ctx context.Context, target, path string, cause error) error {
	var builder strings.Builder
	builder.WriteString("Upload to ")
	builder.WriteString(strings.TrimSpace(target))
	builder.WriteString(" failed for ")
	builder.WriteString(strings.TrimSpace(path))
	if cause != nil {
		builder.WriteString(": ")
		builder.WriteString(strings.TrimSpace(cause.Error()))
	}
	return n.send(ctx, payload{
		title:    "streamkeep - Replication Failed",
		message:  builder.String(),
		tags:     []string{"streamkeep", "replication", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "streamkeep - Test",
		message:  "Notification system test",
		tags:     []string{"streamkeep", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
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

func roundDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) NotifyRecordingEnded(context.Context, string, string, string, time.Duration, error) error {
	return nil
}
func (noopService) NotifyQueueProcessed(context.Context, int, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyReplicationFailed(context.Context, string, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
