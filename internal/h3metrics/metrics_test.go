package h3metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/nine114/h3d/internal/h3metrics"
)

func TestNewRegistersAllInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := h3metrics.New(reg)
	m.Connections.Set(3)
	m.RequestsTotal.WithLabelValues("2xx").Inc()

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", h3metrics.StatusClass(200))
	assert.Equal(t, "4xx", h3metrics.StatusClass(404))
	assert.Equal(t, "5xx", h3metrics.StatusClass(503))
}
