// Package logging provides the component-scoped slog loggers shared by the
// jtagstream packages. Library code logs at debug level except for protocol
// anomalies, which are warnings. The CLI raises the level with --verbose.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Subsystem identifiers.
const (
	ComponentTAP      Component = "tap"
	ComponentXfer     Component = "xfer"
	ComponentCDC      Component = "cdc"
	ComponentPHY      Component = "phy"
	ComponentVendor   Component = "vendor"
	ComponentProbe    Component = "probe"
	ComponentHostLink Component = "hostlink"
	ComponentSVF      Component = "svf"
	ComponentCLI      Component = "cli"
)

// Format selects the handler used by the default logger.
type Format int

// Output formats.
const (
	FormatText Format = iota
	FormatJSON
)

var (
	level = new(slog.LevelVar)

	mu     sync.RWMutex
	output io.Writer = os.Stderr
	root   *slog.Logger
)

func init() {
	level.Set(slog.LevelWarn)
	root = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))
}

// SetLevel sets the minimum level for every component logger.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level reports the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// Configure replaces the root handler. A nil writer keeps the current one.
func Configure(w io.Writer, format Format) {
	mu.Lock()
	defer mu.Unlock()
	if w != nil {
		output = w
	}
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatJSON:
		root = slog.New(slog.NewJSONHandler(output, opts))
	default:
		root = slog.New(slog.NewTextHandler(output, opts))
	}
}

// ParseFormat maps a flag value to a Format. Unknown values select text.
func ParseFormat(s string) Format {
	if s == "json" {
		return FormatJSON
	}
	return FormatText
}

// For returns a logger tagged with the given component. The logger follows
// later Configure calls because the handler is resolved on every record.
func For(c Component) *slog.Logger {
	return slog.New(componentHandler{component: c})
}

type componentHandler struct {
	component Component
	attrs     []slog.Attr
	groups    []string
}

func (h componentHandler) current() slog.Handler {
	mu.RLock()
	l := root
	mu.RUnlock()
	hd := l.Handler().WithAttrs([]slog.Attr{slog.String("component", string(h.component))})
	if len(h.attrs) > 0 {
		hd = hd.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		hd = hd.WithGroup(g)
	}
	return hd
}

func (h componentHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= level.Level()
}

func (h componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.current().Handle(ctx, r)
}

func (h componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return next
}

func (h componentHandler) WithGroup(name string) slog.Handler {
	next := h
	next.groups = append(append([]string(nil), h.groups...), name)
	return next
}
