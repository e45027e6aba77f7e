package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot header: [4-byte magic "MKSN"][uint16 version]
const (
	snapshotMagic      = "MKSN"
	snapshotHeaderSize = 6
	snapshotVersion    = 1
)

// Snapshot record types.
const (
	opEntry byte = 1 // CBOR [key, value]
	opEnd   byte = 2 // uint64 entry count
)

// SnapshotVersionError is returned when a snapshot was written by an
// incompatible format version.
type SnapshotVersionError struct {
	Version uint16
}

func (e *SnapshotVersionError) Error() string {
	return fmt.Sprintf("snapshot is format version %d; only version %d is supported", e.Version, snapshotVersion)
}

// snapshotRecord is the CBOR payload of an opEntry record.
type snapshotRecord[T, V any] struct {
	_     struct{} `cbor:",toarray"`
	Key   []T
	Value V
}

// WriteSnapshot serializes every entry of m to w. Only the primary store is
// written; indexes are rebuilt on read.
//
// Record format: [uint32 totalLen][byte op][payload…][uint32 crc32]. The CRC
// covers the op byte and payload. The last record is opEnd with the entry
// count, so a truncated snapshot is detected.
func WriteSnapshot[T, V any](w io.Writer, m *Map[T, V]) error {
	bw := bufio.NewWriter(w)

	var hdr [snapshotHeaderSize]byte
	copy(hdr[:4], snapshotMagic)
	binary.BigEndian.PutUint16(hdr[4:], snapshotVersion)
	if _, err := bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}

	var count uint64
	for key, value := range m.All() {
		payload, err := cbor.Marshal(snapshotRecord[T, V]{Key: key, Value: value})
		if err != nil {
			return fmt.Errorf("encode entry %d: %w", count, err)
		}
		if err := writeRecord(bw, opEntry, payload); err != nil {
			return err
		}
		count++
	}
	if err := writeRecord(bw, opEnd, binary.BigEndian.AppendUint64(nil, count)); err != nil {
		return err
	}
	return bw.Flush()
}

func writeRecord(w io.Writer, op byte, payload []byte) error {
	totalLen := uint32(4 + 1 + len(payload) + 4) // len + op + payload + crc

	rec := make([]byte, 0, totalLen)
	rec = binary.BigEndian.AppendUint32(rec, totalLen)
	rec = append(rec, op)
	rec = append(rec, payload...)
	rec = binary.BigEndian.AppendUint32(rec, crc32.ChecksumIEEE(rec[4:]))

	if _, err := w.Write(rec); err != nil {
		return fmt.Errorf("write snapshot record: %w", err)
	}
	return nil
}

// ReadSnapshot replaces the contents of m with the entries of a snapshot
// written by WriteSnapshot. m is only touched once the whole snapshot has
// decoded; a duplicate or nil key in it leaves m empty.
func ReadSnapshot[T, V any](r io.Reader, m *Map[T, V]) error {
	br := bufio.NewReader(r)

	var hdr [snapshotHeaderSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}
	if string(hdr[:4]) != snapshotMagic {
		return fmt.Errorf("not a snapshot: bad magic %q", hdr[:4])
	}
	if v := binary.BigEndian.Uint16(hdr[4:]); v != snapshotVersion {
		return &SnapshotVersionError{Version: v}
	}

	var entries []Entry[T, V]
	for {
		op, payload, err := readRecord(br)
		if err != nil {
			return err
		}
		switch op {
		case opEntry:
			var rec snapshotRecord[T, V]
			if err := cbor.Unmarshal(payload, &rec); err != nil {
				return fmt.Errorf("decode entry %d: %w", len(entries), err)
			}
			if rec.Key == nil {
				// Stored keys are never nil; an empty key may decode as one.
				rec.Key = []T{}
			}
			entries = append(entries, Entry[T, V]{Key: rec.Key, Value: rec.Value})
		case opEnd:
			if len(payload) != 8 {
				return fmt.Errorf("snapshot trailer is %d bytes, want 8", len(payload))
			}
			if n := binary.BigEndian.Uint64(payload); n != uint64(len(entries)) {
				return fmt.Errorf("snapshot declares %d entries but holds %d", n, len(entries))
			}
			return m.Restore(func(yield func([]T, V) bool) {
				for _, e := range entries {
					if !yield(e.Key, e.Value) {
						return
					}
				}
			})
		default:
			return fmt.Errorf("unknown snapshot op %d", op)
		}
	}
}

func readRecord(r io.Reader) (byte, []byte, error) {
	var totalLen uint32
	if err := binary.Read(r, binary.BigEndian, &totalLen); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, fmt.Errorf("snapshot truncated before trailer: %w", io.ErrUnexpectedEOF)
		}
		return 0, nil, fmt.Errorf("read record length: %w", err)
	}
	if totalLen < 9 { // 4 (len) + 1 (op) + 4 (crc)
		return 0, nil, fmt.Errorf("snapshot record too short: %d bytes", totalLen)
	}

	rest := make([]byte, totalLen-4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, nil, fmt.Errorf("read record body: %w", err)
	}

	data := rest[:len(rest)-4]
	if crc32.ChecksumIEEE(data) != binary.BigEndian.Uint32(rest[len(rest)-4:]) {
		return 0, nil, fmt.Errorf("snapshot CRC mismatch")
	}
	return data[0], data[1:], nil
}

// SaveSnapshotFile writes a snapshot of m to path. The snapshot is written
// to a temporary file in the same directory, synced and renamed over path,
// so an existing snapshot is never left half-written.
func SaveSnapshotFile[T, V any](path string, m *Map[T, V]) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := WriteSnapshot(f, m); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadSnapshotFile replaces the contents of m with the snapshot at path.
func LoadSnapshotFile[T, V any](path string, m *Map[T, V]) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := ReadSnapshot(f, m); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
