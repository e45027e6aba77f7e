package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	src := New[string, int](DefaultConfig())
	require.NoError(t, src.Put([]string{"a", "b", "c"}, 1))
	require.NoError(t, src.Put([]string{"b", "c"}, 2))
	require.NoError(t, src.Put([]string{}, 3))

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, src))

	cfg := DefaultConfig()
	cfg.Variant = NonPositional
	dst := New[string, int](cfg)
	require.NoError(t, dst.Put([]string{"stale"}, 9))
	require.NoError(t, ReadSnapshot(&buf, dst))

	assert.Equal(t, 3, dst.Len())
	assert.False(t, dst.ContainsKey([]string{"stale"}))
	for k, v := range src.All() {
		got, ok := dst.Get(k)
		assert.True(t, ok, "missing %v", k)
		assert.Equal(t, v, got)
	}
	keys, ok, err := dst.FullKeysByPartialKey([]string{"c"}, []int{1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]string{{"b", "c"}}, keys)
	require.NoError(t, dst.CheckInvariants())
}

func TestSnapshot_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, New[int, string](DefaultConfig())))

	dst := New[int, string](DefaultConfig())
	require.NoError(t, ReadSnapshot(&buf, dst))
	assert.Equal(t, 0, dst.Len())
}

func snapshotBytes(t *testing.T) []byte {
	t.Helper()
	m := New[int, string](DefaultConfig())
	require.NoError(t, m.Put([]int{1, 2}, "x"))
	require.NoError(t, m.Put([]int{3}, "y"))
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, m))
	return buf.Bytes()
}

func TestSnapshot_Corruption(t *testing.T) {
	good := snapshotBytes(t)

	t.Run("bad magic", func(t *testing.T) {
		data := bytes.Clone(good)
		copy(data, "NOPE")
		err := ReadSnapshot(bytes.NewReader(data), New[int, string](DefaultConfig()))
		assert.ErrorContains(t, err, "bad magic")
	})

	t.Run("future version", func(t *testing.T) {
		data := bytes.Clone(good)
		binary.BigEndian.PutUint16(data[4:], snapshotVersion+1)
		err := ReadSnapshot(bytes.NewReader(data), New[int, string](DefaultConfig()))
		var verr *SnapshotVersionError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, uint16(snapshotVersion+1), verr.Version)
	})

	t.Run("flipped payload byte", func(t *testing.T) {
		data := bytes.Clone(good)
		data[snapshotHeaderSize+6] ^= 0xff
		err := ReadSnapshot(bytes.NewReader(data), New[int, string](DefaultConfig()))
		assert.ErrorContains(t, err, "CRC mismatch")
	})

	t.Run("truncated", func(t *testing.T) {
		m := New[int, string](DefaultConfig())
		require.NoError(t, m.Put([]int{7}, "keep"))
		err := ReadSnapshot(bytes.NewReader(good[:len(good)-10]), m)
		require.Error(t, err)
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
		// Nothing was restored, so the map is untouched.
		assert.True(t, m.ContainsKey([]int{7}))
	})
}

func TestSnapshot_DuplicateKeysLeaveMapEmpty(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(snapshotMagic)
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint16(snapshotVersion)))
	for range 2 {
		rec := snapshotRecord[int, string]{Key: []int{1}, Value: "dup"}
		payload, err := cbor.Marshal(rec)
		require.NoError(t, err)
		require.NoError(t, writeRecord(&buf, opEntry, payload))
	}
	require.NoError(t, writeRecord(&buf, opEnd, binary.BigEndian.AppendUint64(nil, 2)))

	m := New[int, string](DefaultConfig())
	require.NoError(t, m.Put([]int{5}, "old"))
	err := ReadSnapshot(&buf, m)
	var dup *DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 0, m.Len())
}

func TestSnapshot_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.snap")

	src := New[string, string](DefaultConfig())
	require.NoError(t, src.Put([]string{"k", "1"}, "v1"))
	require.NoError(t, SaveSnapshotFile(path, src))

	// Overwrite in place.
	require.NoError(t, src.Put([]string{"k", "2"}, "v2"))
	require.NoError(t, SaveSnapshotFile(path, src))

	dst := New[string, string](DefaultConfig())
	require.NoError(t, LoadSnapshotFile(path, dst))
	assert.Equal(t, 2, dst.Len())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files left behind")

	err = LoadSnapshotFile(filepath.Join(t.TempDir(), "missing"), dst)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
