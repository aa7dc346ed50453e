// Package slog adapts a *slog.Logger to the rescache.Logger interface.
package slog

import (
	"log/slog"

	"github.com/bookvault/rescache"
)

type Logger struct{ L *slog.Logger }

var _ rescache.Logger = Logger{}

func (s Logger) Debug(msg string, f rescache.Fields) { s.L.Debug(msg, args(f)...) }
func (s Logger) Info(msg string, f rescache.Fields)  { s.L.Info(msg, args(f)...) }
func (s Logger) Warn(msg string, f rescache.Fields)  { s.L.Warn(msg, args(f)...) }
func (s Logger) Error(msg string, f rescache.Fields) { s.L.Error(msg, args(f)...) }

func args(f rescache.Fields) []any {
	if len(f) == 0 {
		return nil
	}
	out := make([]any, 0, len(f)*2)
	for k, v := range f {
		out = append(out, k, v)
	}
	return out
}
