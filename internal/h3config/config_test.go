package h3config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nine114/h3d/internal/h3config"
)

func TestDefaultQueueSize(t *testing.T) {
	c := h3config.Default()
	assert.Equal(t, 5, c.WorkerCount)
	assert.Equal(t, 20, c.EffectiveQueueSize())
}

func TestExplicitQueueSizeOverridesDefault(t *testing.T) {
	c := h3config.Default()
	c.QueueSize = 7
	assert.Equal(t, 7, c.EffectiveQueueSize())
}

func TestCongestionControlString(t *testing.T) {
	assert.Equal(t, "CUBIC", h3config.CongestionControlCUBIC.String())
	assert.Equal(t, "BBR", h3config.CongestionControlBBR.String())
}

func TestLogFieldsIncludesHumanSizes(t *testing.T) {
	c := h3config.Default()
	fields := c.LogFields()
	assert.Equal(t, "h3", fields["alpn"])
	assert.Contains(t, fields["stream_receive_window"], "MiB")
}
