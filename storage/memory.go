package storage

import (
	"fmt"

	"multikey/deepsize"
	"multikey/storage/index"
)

// MemoryUsage is an estimate of the memory a Map holds.
type MemoryUsage struct {
	Entries    int
	StoreBytes int64 // keys, values and the key table
	IndexBytes int64 // buckets, masks and their tables
	Index      index.Stats
}

// Total returns StoreBytes + IndexBytes.
func (u MemoryUsage) Total() int64 {
	return u.StoreBytes + u.IndexBytes
}

// MemoryUsage walks the store and the index separately. Sub-key values
// that share memory with stored keys (string data) are counted in both.
func (m *Map[T, V]) MemoryUsage() MemoryUsage {
	return MemoryUsage{
		Entries:    m.store.len(),
		StoreBytes: deepsize.Of(m.store),
		IndexBytes: deepsize.Of(m.index),
		Index:      m.index.Stats(),
	}
}

// HumanBytes formats a byte count with a binary unit suffix.
func HumanBytes(b int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
