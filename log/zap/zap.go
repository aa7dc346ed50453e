// Package zap adapts a *zap.Logger to the rescache.Logger interface.
package zap

import (
	"go.uber.org/zap"

	"github.com/bookvault/rescache"
)

type Logger struct{ L *zap.Logger }

var _ rescache.Logger = Logger{}

func (z Logger) Debug(msg string, f rescache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f rescache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f rescache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f rescache.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f rescache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
