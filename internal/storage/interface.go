package storage

import (
	"context"
	"errors"
)

// ErrPartitionNotFound is returned by ReadAll when the named partition does not exist
var ErrPartitionNotFound = errors.New("partition not found")

// Store defines the contract for the spreadsheet-backed remote store.
// A partition is a named worksheet whose first row is the header.
type Store interface {
	// ReadAll returns the full snapshot of a partition, header row included
	ReadAll(ctx context.Context, partition string) ([][]string, error)
	// AppendRows bulk-appends rows after the last row, preserving cell order
	AppendRows(ctx context.Context, partition string, rows [][]string) error
	// EnsurePartition creates the partition with the given header row if absent
	EnsurePartition(ctx context.Context, partition string, header []string) error
}
