package types

import "time"

// FileType classifies a container entry by how the engine is willing to
// decode it.
type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeDB
	FileTypeLoc
	FileTypePack
	FileTypeAnimPack
	FileTypeImage
	FileTypeText
)

func (t FileType) String() string {
	switch t {
	case FileTypeDB:
		return "db"
	case FileTypeLoc:
		return "loc"
	case FileTypePack:
		return "pack"
	case FileTypeAnimPack:
		return "animpack"
	case FileTypeImage:
		return "image"
	case FileTypeText:
		return "text"
	default:
		return "unknown"
	}
}

// FileState is the lifecycle stage of a FileEntry: still
// only known by its on-disk location, pulled into the in-memory byte
// cache, or fully decoded into a typed value.
type FileState uint8

const (
	StateOnDisk FileState = iota
	StateCached
	StateDecoded
)

// OnDiskLocation pins a file to a byte range of a source archive (or to
// a loose file on disk when Offset/Size are zero and SourcePath is the
// file itself), plus enough metadata to detect that the source changed
// out from under a cached entry.
type OnDiskLocation struct {
	SourcePath  string
	SourceMTime time.Time
	Offset      int64
	Size        int64
	Compressed  bool
	// Encryption names the archive's encryption scheme, empty if none.
	Encryption string
}

// FileEntry is one logical file inside a Container: a path, a guessed
// or declared FileType, and whichever representation of its content the
// engine has materialized so far.
type FileEntry struct {
	Path string
	// Timestamp is the file's declared modification time, when the
	// source format carries one independent of OnDisk.SourceMTime.
	Timestamp *time.Time
	FileType  FileType
	// ContainerOrigin names the pack (or "loose") this entry was last
	// loaded from, used to break ties between layers.
	ContainerOrigin string

	State  FileState
	OnDisk *OnDiskLocation
	Cached []byte

	// Decoded holds the typed value once State == StateDecoded: *Table
	// for FileTypeDB/FileTypeLoc, or nil for types the engine doesn't
	// decode further than bytes (images, text, nested packs/animpacks
	// are read back out of Cached).
	Decoded any

	// FastHash is a content-addressed hash of Cached, used for diff
	// detection between build layers without re-decoding.
	FastHash uint64
}

// AsTable returns the entry's Decoded value as *Table, or nil if the
// entry isn't decoded or isn't a DB/Loc table.
func (e *FileEntry) AsTable() *Table {
	t, _ := e.Decoded.(*Table)
	return t
}

// IsStale reports whether srcMTime is newer than the mtime OnDisk was
// captured at, meaning the cached/decoded content no longer reflects
// the file on disk.
func (e *FileEntry) IsStale(srcMTime time.Time) bool {
	if e.OnDisk == nil {
		return false
	}
	return srcMTime.After(e.OnDisk.SourceMTime)
}
