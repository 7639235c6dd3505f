// Package log wraps zerolog with component-named loggers whose output and
// level can be reconfigured after the loggers are created.
package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var base atomic.Pointer[zerolog.Logger]

func init() {
	l := newLogger(os.Stderr, false)
	base.Store(&l)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func newLogger(w io.Writer, json bool) zerolog.Logger {
	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Configure sets the global level ("debug", "info", "warn", "error",
// "disabled") and the output format.
func Configure(level string, json bool) error {
	return ConfigureOutput(os.Stderr, level, json)
}

func ConfigureOutput(w io.Writer, level string, json bool) error {
	lvl := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		var err error
		lvl, err = zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return err
		}
	}
	l := newLogger(w, json)
	base.Store(&l)
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Logger is a handle tagged with a component name.
type Logger struct {
	component string
}

// Named returns a logger whose events carry component=name.
func Named(name string) Logger {
	return Logger{component: name}
}

func (l Logger) z() *zerolog.Logger {
	return base.Load()
}

func (l Logger) tag(e *zerolog.Event) *zerolog.Event {
	if l.component == "" {
		return e
	}
	return e.Str("component", l.component)
}

func (l Logger) Debug() *zerolog.Event { return l.tag(l.z().Debug()) }
func (l Logger) Info() *zerolog.Event  { return l.tag(l.z().Info()) }
func (l Logger) Warn() *zerolog.Event  { return l.tag(l.z().Warn()) }
func (l Logger) Error() *zerolog.Event { return l.tag(l.z().Error()) }

func (l Logger) Debugf(format string, args ...any) { l.Debug().Msgf(format, args...) }
func (l Logger) Infof(format string, args ...any)  { l.Info().Msgf(format, args...) }
func (l Logger) Warnf(format string, args ...any)  { l.Warn().Msgf(format, args...) }
func (l Logger) Errorf(format string, args ...any) { l.Error().Msgf(format, args...) }

// FormatDuration renders durations the way request logs show them.
func FormatDuration(dur time.Duration) string {
	switch {
	case dur < time.Millisecond:
		return dur.Round(time.Microsecond).String()
	case dur < time.Minute:
		return dur.Round(time.Millisecond).String()
	default:
		return dur.Round(time.Second).String()
	}
}
