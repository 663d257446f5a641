// Package vfile implements the file abstraction: one logical
// file inside a pack, lazily promotable from an on-disk byte range to
// cached bytes to a fully decoded typed value.
package vfile

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	engineerrors "github.com/packforge/depgraph/internal/errors"
	"github.com/packforge/depgraph/internal/types"
)

// Source reads file content out of whatever is backing an on-disk
// location: a pack archive, or the loose filesystem. It's the seam
// vfile leaves for the pack-file binary codec to plug into.
type Source interface {
	ReadRange(sourcePath string, offset, size int64) ([]byte, error)
	MTime(sourcePath string) (time.Time, error)
}

// TableDecoder turns raw bytes into a decoded DB/Loc *types.Table. Real
// decoders (the TSV/binary DB codec, the loc-file codec) are supplied
// by the implementor; vfile only defines the seam.
type TableDecoder func(path string, raw []byte) (*types.Table, error)

// TableEncoder is the inverse of TableDecoder.
type TableEncoder func(t *types.Table) ([]byte, error)

// Decoders bundles the decode functions for the two file types vfile
// itself understands how to dispatch (DB, Loc); every other FileType
// is read back as raw bytes by the caller.
type Decoders struct {
	DB  TableDecoder
	Loc TableDecoder
}

// Encoders mirrors Decoders for the encode direction.
type Encoders struct {
	DB  TableEncoder
	Loc TableEncoder
}

// File wraps one types.FileEntry with the load/decode/encode state
// machine.
type File struct {
	Entry *types.FileEntry
}

// FromStandaloneBytes builds a File already holding content loaded
// from a standalone on-disk file (construction form i merged with the
// content already read — the metadata-only variant is
// FromContainerLocation).
func FromStandaloneBytes(path string, ft types.FileType, raw []byte) *File {
	return &File{Entry: &types.FileEntry{
		Path:     path,
		FileType: ft,
		State:    types.StateCached,
		Cached:   raw,
		FastHash: xxhash.Sum64(raw),
	}}
}

// FromContainerLocation builds a File that only records where its
// bytes live (construction form ii): no content is read until Load.
func FromContainerLocation(path string, ft types.FileType, origin, sourcePath string, mtime time.Time, offset, size int64, compressed bool, encryption string) *File {
	return &File{Entry: &types.FileEntry{
		Path:            path,
		FileType:        ft,
		ContainerOrigin: origin,
		State:           types.StateOnDisk,
		OnDisk: &types.OnDiskLocation{
			SourcePath:  sourcePath,
			SourceMTime: mtime,
			Offset:      offset,
			Size:        size,
			Compressed:  compressed,
			Encryption:  encryption,
		},
	}}
}

// FromRawBytes builds a File from raw bytes with an explicit type
// (construction form iii).
func FromRawBytes(path string, ft types.FileType, raw []byte) *File {
	return &File{Entry: &types.FileEntry{
		Path:     path,
		FileType: ft,
		State:    types.StateCached,
		Cached:   raw,
		FastHash: xxhash.Sum64(raw),
	}}
}

// FromDecoded builds a File already holding a decoded value
// (construction form iv). decoded must describe the same FileType.
func FromDecoded(path string, ft types.FileType, decoded any) (*File, error) {
	if err := checkTypeMatch(ft, decoded); err != nil {
		return nil, err
	}
	return &File{Entry: &types.FileEntry{
		Path:     path,
		FileType: ft,
		State:    types.StateDecoded,
		Decoded:  decoded,
	}}, nil
}

// Load promotes an OnDisk entry to Cached, verifying the backing
// source hasn't changed since the location was recorded.
func (f *File) Load(src Source) error {
	e := f.Entry
	if e.State != types.StateOnDisk {
		return nil
	}
	loc := e.OnDisk
	mtime, err := src.MTime(loc.SourcePath)
	if err != nil {
		return engineerrors.Wrap(engineerrors.ReasonPathNotFound, "vfile.Load", err)
	}
	if !mtime.Equal(loc.SourceMTime) {
		return engineerrors.New(engineerrors.ReasonSourceChanged, "vfile.Load", e.Path)
	}
	raw, err := src.ReadRange(loc.SourcePath, loc.Offset, loc.Size)
	if err != nil {
		return engineerrors.Wrap(engineerrors.ReasonPathNotFound, "vfile.Load", err)
	}
	e.Cached = raw
	e.FastHash = xxhash.Sum64(raw)
	e.State = types.StateCached
	return nil
}

// Decode promotes any state to Decoded, dispatching on FileType. DB
// and Loc go through the supplied Decoders; every other FileType has
// no decoder in this engine and fails with type-unsupported.
func (f *File) Decode(d Decoders) error {
	e := f.Entry
	if e.State == types.StateDecoded {
		return nil
	}
	if e.State == types.StateOnDisk {
		return engineerrors.New(engineerrors.ReasonDecodeFailed, "vfile.Decode", "entry not loaded")
	}

	var decoder TableDecoder
	switch e.FileType {
	case types.FileTypeDB:
		decoder = d.DB
	case types.FileTypeLoc:
		decoder = d.Loc
	default:
		return engineerrors.New(engineerrors.ReasonTypeUnsupported, "vfile.Decode", e.FileType.String())
	}
	if decoder == nil {
		return engineerrors.New(engineerrors.ReasonTypeUnsupported, "vfile.Decode", e.FileType.String())
	}

	table, err := decoder(e.Path, e.Cached)
	if err != nil {
		return engineerrors.Wrap(engineerrors.ReasonDecodeFailed, "vfile.Decode", err)
	}
	e.Decoded = table
	e.State = types.StateDecoded
	return nil
}

// Encode serializes a Decoded value back to bytes, the inverse of
// Decode.
func (f *File) Encode(e Encoders) ([]byte, error) {
	entry := f.Entry
	if entry.State != types.StateDecoded {
		return nil, engineerrors.New(engineerrors.ReasonDecodeFailed, "vfile.Encode", "entry not decoded")
	}
	table, ok := entry.Decoded.(*types.Table)
	if !ok {
		return nil, engineerrors.New(engineerrors.ReasonTypeMismatch, "vfile.Encode", entry.FileType.String())
	}

	var encoder TableEncoder
	switch entry.FileType {
	case types.FileTypeDB:
		encoder = e.DB
	case types.FileTypeLoc:
		encoder = e.Loc
	default:
		return nil, engineerrors.New(engineerrors.ReasonTypeUnsupported, "vfile.Encode", entry.FileType.String())
	}
	if encoder == nil {
		return nil, engineerrors.New(engineerrors.ReasonTypeUnsupported, "vfile.Encode", entry.FileType.String())
	}
	return encoder(table)
}

// SetDecoded assigns an already-decoded value, enforcing that its type
// matches the entry's FileType.
func (f *File) SetDecoded(decoded any) error {
	if err := checkTypeMatch(f.Entry.FileType, decoded); err != nil {
		return err
	}
	f.Entry.Decoded = decoded
	f.Entry.State = types.StateDecoded
	return nil
}

func checkTypeMatch(ft types.FileType, decoded any) error {
	switch ft {
	case types.FileTypeDB, types.FileTypeLoc:
		if _, ok := decoded.(*types.Table); !ok {
			return engineerrors.New(engineerrors.ReasonTypeMismatch, "vfile.SetDecoded", ft.String())
		}
	default:
		if decoded != nil {
			return engineerrors.New(engineerrors.ReasonTypeMismatch, "vfile.SetDecoded", ft.String())
		}
	}
	return nil
}

var (
	dbPathPattern   = regexp.MustCompile(`^db/[^/]+_tables/`)
	textPathPattern = regexp.MustCompile(`^text/.*\.txt$`)
)

// GuessFileType assigns a FileType from path extension, path prefix,
// and a small set of regex patterns: db/<name>_tables/ paths are DB,
// a .loc suffix is Loc, text/**/*.txt is Text, falling through to
// Unknown.
func GuessFileType(path string) types.FileType {
	lower := strings.ToLower(path)

	if dbPathPattern.MatchString(lower) {
		return types.FileTypeDB
	}
	if strings.HasSuffix(lower, ".loc") {
		return types.FileTypeLoc
	}
	if textPathPattern.MatchString(lower) {
		return types.FileTypeText
	}
	if ok, _ := doublestar.Match("**/*.pack", lower); ok {
		return types.FileTypePack
	}
	if ok, _ := doublestar.Match("**/*.animpack", lower); ok {
		return types.FileTypeAnimPack
	}
	switch filepath.Ext(lower) {
	case ".png", ".tga", ".dds":
		return types.FileTypeImage
	case ".txt":
		return types.FileTypeText
	}
	return types.FileTypeUnknown
}
