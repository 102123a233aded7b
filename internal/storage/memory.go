package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps partitions in memory. Used for dry runs and tests.
type MemoryStore struct {
	mu         sync.Mutex
	partitions map[string][][]string

	// ReadErr and AppendErr, when set, are returned by the matching operation
	ReadErr   error
	AppendErr error

	Reads   int
	Appends int
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string][][]string)}
}

// Seed replaces a partition with a copy of table (header first)
func (m *MemoryStore) Seed(partition string, table [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitions[partition] = copyTable(table)
}

func (m *MemoryStore) ReadAll(_ context.Context, partition string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++

	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	table, ok := m.partitions[partition]
	if !ok {
		return nil, ErrPartitionNotFound
	}
	return copyTable(table), nil
}

func (m *MemoryStore) AppendRows(_ context.Context, partition string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil {
		return m.AppendErr
	}
	if _, ok := m.partitions[partition]; !ok {
		return ErrPartitionNotFound
	}
	if len(rows) == 0 {
		return nil
	}
	m.Appends++
	m.partitions[partition] = append(m.partitions[partition], copyTable(rows)...)
	return nil
}

func (m *MemoryStore) EnsurePartition(_ context.Context, partition string, header []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.partitions[partition]; !ok {
		m.partitions[partition] = [][]string{append([]string(nil), header...)}
	}
	return nil
}

func copyTable(table [][]string) [][]string {
	out := make([][]string, len(table))
	for i, row := range table {
		out[i] = append([]string(nil), row...)
	}
	return out
}
