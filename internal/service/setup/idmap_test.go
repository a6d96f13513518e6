package setup

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIdentityMap(t *testing.T) {
	m := newIdentityMap()

	opID := uuid.New()
	metricID := uuid.New()
	m.put(refOperation, "op-1", opID)
	m.put(refMetric, "Sleep", metricID)

	got, ok := m.resolve(refOperation, "op-1")
	assert.True(t, ok)
	assert.Equal(t, opID, got)

	got, ok = m.resolve(refMetric, "Sleep")
	assert.True(t, ok)
	assert.Equal(t, metricID, got)

	// Kinds do not bleed into each other.
	_, ok = m.resolve(refMetric, "op-1")
	assert.False(t, ok)

	_, ok = m.resolve(refOperation, "missing")
	assert.False(t, ok)
}

func TestIdentityMap_EmptyKeyIgnored(t *testing.T) {
	m := newIdentityMap()
	m.put(refOperation, "", uuid.New())

	_, ok := m.resolve(refOperation, "")
	assert.False(t, ok)
}
