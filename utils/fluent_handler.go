package utils

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
)

// FluentConfig holds the connection settings for a Fluent Bit / Fluentd forwarder.
type FluentConfig struct {
	Host      string
	Port      int
	TagPrefix string
	Level     string
}

// fluentPoster is the subset of *fluent.Fluent the handler needs.
type fluentPoster interface {
	Post(tag string, message interface{}) error
}

// NewFluentHandler connects to the forwarder and returns a slog handler that
// posts one map per record, tagged by level. Close the returned client on shutdown.
func NewFluentHandler(cfg FluentConfig) (slog.Handler, *fluent.Fluent, error) {
	if cfg.TagPrefix == "" {
		return nil, nil, fmt.Errorf("fluent: tag prefix is required")
	}
	client, err := fluent.New(fluent.Config{
		FluentHost: cfg.Host,
		FluentPort: cfg.Port,
		TagPrefix:  cfg.TagPrefix,
		Async:      true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fluent: create client: %w", err)
	}
	return newFluentHandler(client, ParseLevel(cfg.Level)), client, nil
}

type fluentHandler struct {
	client   fluentPoster
	minLevel slog.Level
	attrs    []slog.Attr
	group    string
}

func newFluentHandler(client fluentPoster, minLevel slog.Level) *fluentHandler {
	return &fluentHandler{client: client, minLevel: minLevel}
}

func (h *fluentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *fluentHandler) Handle(_ context.Context, r slog.Record) error {
	data := make(map[string]interface{}, len(h.attrs)+r.NumAttrs()+3)
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[h.key(a.Key)] = a.Value.Resolve().Any()
		return true
	})
	data["level"] = strings.ToLower(r.Level.String())
	data["message"] = r.Message
	data["timestamp"] = r.Time.UTC().Format(time.RFC3339Nano)

	return h.client.Post(strings.ToLower(r.Level.String()), data)
}

func (h *fluentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return &next
}

func (h *fluentHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.group = h.key(name)
	return &next
}

func (h *fluentHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
