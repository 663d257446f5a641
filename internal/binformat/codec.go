package binformat

import (
	"time"

	"github.com/packforge/depgraph/internal/types"
)

// WriteFileEntry serializes the subset of a FileEntry the cache
// persists: its path, file type, container origin, on-disk location
// and fast hash. Cached bytes and Decoded values are never persisted —
// they're cheap to regenerate from the archive and would bloat the
// shard.
func WriteFileEntry(w *Writer, path string, e *types.FileEntry) {
	w.WriteString(path)
	w.WriteU8(uint8(e.FileType))
	w.WriteString(e.ContainerOrigin)
	w.WriteBool(e.Timestamp != nil)
	if e.Timestamp != nil {
		w.WriteI64(e.Timestamp.Unix())
	}
	w.WriteU64(e.FastHash)

	hasLoc := e.OnDisk != nil
	w.WriteBool(hasLoc)
	if hasLoc {
		w.WriteString(e.OnDisk.SourcePath)
		w.WriteI64(e.OnDisk.SourceMTime.Unix())
		w.WriteI64(e.OnDisk.Offset)
		w.WriteI64(e.OnDisk.Size)
		w.WriteBool(e.OnDisk.Compressed)
		w.WriteString(e.OnDisk.Encryption)
	}
}

// ReadFileEntry is the inverse of WriteFileEntry. The returned entry is
// in StateOnDisk (or StateUnknown-equivalent if no on-disk location was
// persisted, which happens only for synthetic entries).
func ReadFileEntry(r *Reader) (path string, e *types.FileEntry) {
	path = r.ReadString()
	ft := types.FileType(r.ReadU8())
	origin := r.ReadString()
	hasTS := r.ReadBool()
	var ts *time.Time
	if hasTS {
		t := time.Unix(r.ReadI64(), 0).UTC()
		ts = &t
	}
	fastHash := r.ReadU64()

	entry := &types.FileEntry{
		Path:            path,
		Timestamp:       ts,
		FileType:        ft,
		ContainerOrigin: origin,
		FastHash:        fastHash,
	}

	hasLoc := r.ReadBool()
	if hasLoc {
		entry.OnDisk = &types.OnDiskLocation{
			SourcePath:  r.ReadString(),
			SourceMTime: time.Unix(r.ReadI64(), 0).UTC(),
			Offset:      r.ReadI64(),
			Size:        r.ReadI64(),
			Compressed:  r.ReadBool(),
			Encryption:  r.ReadString(),
		}
		entry.State = types.StateOnDisk
	}
	return path, entry
}

// WriteStringSet serializes a set of strings (folder sets, loc-path
// sets) as a sorted-free vector; callers that need determinism sort
// before calling.
func WriteStringSet(w *Writer, items []string) {
	w.WriteU32(uint32(len(items)))
	for _, s := range items {
		w.WriteString(s)
	}
}

func ReadStringSet(r *Reader) []string {
	n := r.ReadU32()
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, r.ReadString())
	}
	return out
}

// WriteStringSlicePair serializes a map[string][]string (the
// case-folded-path index and the DB-table-name index share this
// shape).
func WriteStringSlicePair(w *Writer, m map[string][]string) {
	w.WriteU32(uint32(len(m)))
	for k, v := range m {
		w.WriteString(k)
		WriteStringSet(w, v)
	}
}

func ReadStringSlicePair(r *Reader) map[string][]string {
	n := r.ReadU32()
	m := make(map[string][]string, n)
	for i := uint32(0); i < n; i++ {
		k := r.ReadString()
		m[k] = ReadStringSet(r)
	}
	return m
}
