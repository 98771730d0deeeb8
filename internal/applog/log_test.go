package applog_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gotest.tools/v3/assert"

	"github.com/nine114/h3d/internal/applog"
)

func TestLReturnsBareEntryForUnattachedContext(t *testing.T) {
	entry := applog.L(context.Background())
	assert.Assert(t, entry != nil)
	assert.Equal(t, 0, len(entry.Data))
}

func TestLReturnsBareEntryForNilContext(t *testing.T) {
	entry := applog.L(nil)
	assert.Assert(t, entry != nil)
}

func TestWithAccumulatesFieldsAcrossNestedScopes(t *testing.T) {
	ctx := applog.With(context.Background(), logrus.Fields{"conn": "c1"})
	ctx = applog.With(ctx, logrus.Fields{"stream": uint64(4)})

	entry := applog.L(ctx)
	assert.Equal(t, "c1", entry.Data["conn"])
	assert.Equal(t, uint64(4), entry.Data["stream"])
}

func TestWithDoesNotMutateParentContextEntry(t *testing.T) {
	base := applog.With(context.Background(), logrus.Fields{"conn": "c1"})
	_ = applog.With(base, logrus.Fields{"stream": uint64(9)})

	entry := applog.L(base)
	_, hasStream := entry.Data["stream"]
	assert.Assert(t, !hasStream)
}

func TestBaseLoggerEmitsAttachedFields(t *testing.T) {
	hook := test.NewLocal(applog.Base)
	defer hook.Reset()

	ctx := applog.With(context.Background(), logrus.Fields{"conn": "c7"})
	applog.L(ctx).Info("connection established")

	assert.Equal(t, 1, len(hook.Entries))
	assert.Equal(t, "connection established", hook.LastEntry().Message)
	assert.Equal(t, "c7", hook.LastEntry().Data["conn"])
}
