// Package diag is the diagnostics sink of the conversion pipeline. Every
// recovery, every exhausted retry and every dropped item is reported here
// exactly once, optionally keyed by the identifier of the owning element.
package diag

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Severity orders diagnostic entries.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityNotice
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityNotice:
		return "notice"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Sink receives diagnostics. Element may be empty when an entry is not
// attributable to a single element.
type Sink interface {
	Log(sev Severity, element, msg string)
}

// Logger is a thin helper binding a Sink to an element identifier.
type Logger struct {
	sink    Sink
	element string
}

// For returns a Logger reporting to sink on behalf of element. A nil
// sink discards everything.
func For(sink Sink, element string) Logger {
	return Logger{sink: sink, element: element}
}

// Element returns the identifier entries are keyed by.
func (l Logger) Element() string { return l.element }

// With returns a Logger keyed by a different element on the same sink.
func (l Logger) With(element string) Logger {
	return Logger{sink: l.sink, element: element}
}

func (l Logger) logf(sev Severity, format string, args ...any) {
	if l.sink == nil {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.sink.Log(sev, l.element, msg)
}

func (l Logger) Debugf(format string, args ...any)   { l.logf(SeverityDebug, format, args...) }
func (l Logger) Noticef(format string, args ...any)  { l.logf(SeverityNotice, format, args...) }
func (l Logger) Warningf(format string, args ...any) { l.logf(SeverityWarning, format, args...) }
func (l Logger) Errorf(format string, args ...any)   { l.logf(SeverityError, format, args...) }

// LogSink writes entries to a zerolog logger.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a sink writing to l.
func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{log: l}
}

// Log implements Sink.
func (s *LogSink) Log(sev Severity, element, msg string) {
	var ev *zerolog.Event
	switch sev {
	case SeverityDebug:
		ev = s.log.Debug()
	case SeverityNotice:
		ev = s.log.Info()
	case SeverityWarning:
		ev = s.log.Warn()
	default:
		ev = s.log.Error()
	}
	ev = ev.Str("severity", sev.String())
	if element != "" {
		ev = ev.Str("element", element)
	}
	ev.Msg(msg)
}

// Entry is a recorded diagnostic.
type Entry struct {
	Severity Severity
	Element  string
	Message  string
}

// Recorder keeps entries in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Log implements Sink.
func (r *Recorder) Log(sev Severity, element, msg string) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Severity: sev, Element: element, Message: msg})
	r.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns how many entries of severity sev were recorded for
// element, or for any element when element is empty.
func (r *Recorder) Count(sev Severity, element string) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Severity == sev && (element == "" || e.Element == element) {
			n++
		}
	}
	return n
}

// Has reports whether an entry with exactly this message was recorded.
func (r *Recorder) Has(msg string) bool {
	for _, e := range r.Entries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

// Tee forwards entries to several sinks.
type Tee []Sink

// Log implements Sink.
func (t Tee) Log(sev Severity, element, msg string) {
	for _, s := range t {
		if s != nil {
			s.Log(sev, element, msg)
		}
	}
}
