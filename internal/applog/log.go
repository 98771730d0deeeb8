// Package applog carries a structured logrus.Entry through a
// context.Context, the way the teacher's events package carries a Poster
// through context (see events.GetPoster in the containerd lineage): callers
// attach connection/stream identity once, and every log call downstream
// picks it back up without threading extra parameters through every
// function signature.
package applog

import (
	"context"

	"github.com/sirupsen/logrus"
)

type entryKey struct{}

// Base is the root logger; tests may swap its output/level.
var Base = logrus.StandardLogger()

// With returns a context carrying entry merged with any entry already
// attached to ctx, so nested scopes accumulate fields (connection id, then
// stream id, then request method) instead of replacing them.
func With(ctx context.Context, fields logrus.Fields) context.Context {
	entry := L(ctx).WithFields(fields)
	return context.WithValue(ctx, entryKey{}, entry)
}

// L returns the logger entry attached to ctx, or a bare entry on Base if
// none was attached yet.
func L(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if e, ok := ctx.Value(entryKey{}).(*logrus.Entry); ok {
			return e
		}
	}
	return logrus.NewEntry(Base)
}
