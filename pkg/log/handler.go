// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// Handler implements a logfmt-like slog handler. Every record carries the
// component which emitted it.
type Handler struct {
	component string
	opts      HandlerOptions
	w         io.Writer
	mu        *sync.Mutex
	goas      []groupOrAttrs
}

// HandlerOptions implements the log handler options.
type HandlerOptions struct {
	Level        slog.Leveler
	AppendSource bool
}

// groupOrAttrs holds either a group name or a list of attributes.
type groupOrAttrs struct {
	group string
	attrs []slog.Attr
}

const (
	// ComponentKey is the key used by the handler for the component name. The
	// associated value is a string.
	ComponentKey = "component"
)

// NewHandler creates a new handler writing to w.
func NewHandler(w io.Writer, component string, opts *HandlerOptions) *Handler {
	h := &Handler{
		component: component,
		w:         w,
		mu:        &sync.Mutex{},
	}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = ProgramLevel
	}
	return h
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// WithGroup returns a new Handler with the given group appended to
// the receiver's existing groups.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(groupOrAttrs{group: name})
}

// WithAttrs returns a new Handler whose attributes consist of both the
// receiver's attributes and the arguments.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(groupOrAttrs{attrs: attrs})
}

// Handle formats the record as a single line.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 1024)
	if !r.Time.IsZero() {
		buf = h.appendAttr(buf, "", slog.Time(slog.TimeKey, r.Time))
	}
	buf = h.appendAttr(buf, "", slog.Any(slog.LevelKey, r.Level))
	if h.component != "" {
		buf = h.appendAttr(buf, "", slog.String(ComponentKey, h.component))
	}
	if h.opts.AppendSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := frames.Next()
		buf = h.appendAttr(buf, "", slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", f.File, f.Line)))
	}
	buf = h.appendAttr(buf, "", slog.String(slog.MessageKey, r.Message))

	goas := h.goas
	if r.NumAttrs() == 0 {
		// trailing groups without attributes are not printed
		for len(goas) > 0 && goas[len(goas)-1].group != "" {
			goas = goas[:len(goas)-1]
		}
	}
	prefix := ""
	for _, goa := range goas {
		if goa.group != "" {
			prefix += goa.group + "."
			continue
		}
		for _, a := range goa.attrs {
			buf = h.appendAttr(buf, prefix, a)
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, prefix, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.w.Write(buf); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	return nil
}

func (h *Handler) with(goa groupOrAttrs) *Handler {
	h2 := *h
	h2.goas = make([]groupOrAttrs, len(h.goas)+1)
	copy(h2.goas, h.goas)
	h2.goas[len(h2.goas)-1] = goa
	return &h2
}

// appendAttr appends a single attribute as ` key=value`, flattening groups.
func (h *Handler) appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return buf
		}
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range attrs {
			buf = h.appendAttr(buf, prefix, ga)
		}
		return buf
	}

	var value string
	switch a.Value.Kind() {
	case slog.KindTime:
		value = a.Value.Time().Format(time.RFC3339Nano)
	default:
		value = a.Value.String()
	}

	if len(buf) > 0 {
		buf = append(buf, ' ')
	}
	buf = appendQuoted(buf, prefix+a.Key)
	buf = append(buf, '=')
	buf = appendQuoted(buf, value)

	return buf
}

func appendQuoted(buf []byte, s string) []byte {
	if needsQuoting(s) {
		return fmt.Appendf(buf, "%q", s)
	}
	return append(buf, s...)
}

// needsQuoting reports whether s is empty or holds spaces or unprintable runes.
func needsQuoting(s string) bool {
	if len(s) == 0 {
		return true
	}
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError || unicode.IsSpace(r) || !unicode.IsPrint(r) || r == '"' || r == '=' {
			return true
		}
		i += size
	}
	return false
}

var _ slog.Handler = (*Handler)(nil)
