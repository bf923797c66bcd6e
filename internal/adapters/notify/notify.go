// Package notify delivers operator alerts to log, Telegram and Discord sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

const defaultTimeout = 10 * time.Second

// LogNotifier writes alerts to the application logger. CRITICAL alerts are
// logged at error level so they stand out.
type LogNotifier struct {
	logger ports.Logger
}

func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, title, message string, level domain.AlertLevel, metadata map[string]string) error {
	fields := map[string]interface{}{"level": string(level), "detail": message}
	for k, v := range metadata {
		fields[k] = v
	}
	switch level {
	case domain.AlertCritical:
		n.logger.Error(ctx, errors.New(message), "ALERT: "+title, fields)
	case domain.AlertWarning:
		n.logger.Warn(ctx, "ALERT: "+title, fields)
	default:
		n.logger.Info(ctx, "ALERT: "+title, fields)
	}
	return nil
}

// Multi fans an alert out to every sink. One failing sink does not stop
// delivery to the others.
type Multi struct {
	sinks []ports.Notifier
}

func NewMulti(sinks ...ports.Notifier) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Notify(ctx context.Context, title, message string, level domain.AlertLevel, metadata map[string]string) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, title, message, level, metadata); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatMetadata renders metadata as sorted "key: value" lines.
func formatMetadata(metadata map[string]string) string {
	var sb strings.Builder
	for _, k := range sortedKeys(metadata) {
		fmt.Fprintf(&sb, "\n%s: %s", k, metadata[k])
	}
	return sb.String()
}

func checkStatus(sink string, resp *http.Response) error {
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s returned status %d", sink, resp.StatusCode)
	}
	return nil
}
