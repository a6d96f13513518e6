package setup

import "github.com/google/uuid"

// refKind partitions the identity map's key space.
type refKind int

const (
	refOperation refKind = iota // ephemeral operation id → real id
	refMetric                   // numeric metric name → real id
)

// identityMap translates ephemeral draft references to durable ids. It is
// owned by exactly one finalization run and discarded with it; nothing in it
// is ever persisted or shared.
type identityMap struct {
	refs map[refKind]map[string]uuid.UUID
}

func newIdentityMap() *identityMap {
	return &identityMap{refs: map[refKind]map[string]uuid.UUID{
		refOperation: {},
		refMetric:    {},
	}}
}

func (m *identityMap) put(kind refKind, key string, id uuid.UUID) {
	if key == "" {
		return
	}
	m.refs[kind][key] = id
}

// resolve returns the durable id for an ephemeral key. Absent keys report
// ok=false; the caller decides whether that is fatal or just an omitted link.
func (m *identityMap) resolve(kind refKind, key string) (uuid.UUID, bool) {
	id, ok := m.refs[kind][key]
	return id, ok
}
