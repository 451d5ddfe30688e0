package records

import (
	"context"
	"sync"
)

// Cell identifies one written value in a MemorySink.
type Cell struct {
	Row  int
	Role string
}

// MemorySink keeps written outcomes in memory. It backs dry runs and tests.
type MemorySink struct {
	mu     sync.Mutex
	cells  map[Cell]string
	writes int
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{cells: make(map[Cell]string)}
}

func (m *MemorySink) put(row int, role, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[Cell{Row: row, Role: role}] = value
	m.writes++
	return nil
}

func (m *MemorySink) UpdateStatus(_ context.Context, row int, status Status) error {
	return m.put(row, "status", string(status))
}

func (m *MemorySink) RecordEmail(_ context.Context, row int, email string) error {
	return m.put(row, "email", email)
}

func (m *MemorySink) RecordError(_ context.Context, row int, message string) error {
	return m.put(row, "error", message)
}

// Value returns the stored value for a row and role.
func (m *MemorySink) Value(row int, role string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cells[Cell{Row: row, Role: role}]
	return v, ok
}

// Snapshot copies the current cell state.
func (m *MemorySink) Snapshot() map[Cell]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Cell]string, len(m.cells))
	for k, v := range m.cells {
		out[k] = v
	}
	return out
}

// Writes counts every write call, including overwrites.
func (m *MemorySink) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
