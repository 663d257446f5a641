// Package store implements the layered store: four layers of
// files keyed by logical path — vanilla-packed, vanilla-loose,
// parent-mod, and assembly-kit-only tables — with merged query views
// under a fixed precedence order.
package store

import (
	"sort"
	"strings"

	"github.com/packforge/depgraph/internal/types"
	"github.com/packforge/depgraph/internal/vfile"
	"github.com/packforge/depgraph/pkg/pathutil"
)

// Layer holds one file layer plus the derived indices rebuilt after
// every load.
type Layer struct {
	Files        map[string]*vfile.File
	TablesByName map[string][]string // DB table name -> paths within this layer
	LocPaths     map[string]bool
	Folders      map[string]bool
	CaseFolded   map[string][]string
}

func newLayer() *Layer {
	return &Layer{
		Files:        make(map[string]*vfile.File),
		TablesByName: make(map[string][]string),
		LocPaths:     make(map[string]bool),
		Folders:      make(map[string]bool),
		CaseFolded:   make(map[string][]string),
	}
}

// rebuildIndices recomputes TablesByName, LocPaths, Folders and
// CaseFolded from Files.
func (l *Layer) rebuildIndices() {
	l.TablesByName = make(map[string][]string)
	l.LocPaths = make(map[string]bool)
	l.Folders = make(map[string]bool)
	l.CaseFolded = make(map[string][]string)

	for path, f := range l.Files {
		if tableName, ok := dbTableName(path); ok {
			l.TablesByName[tableName] = append(l.TablesByName[tableName], path)
		}
		if isLocPath(f) {
			l.LocPaths[path] = true
		}
		for _, ancestor := range pathutil.Ancestors(path) {
			l.Folders[ancestor] = true
		}
		folded := pathutil.Fold(path)
		l.CaseFolded[folded] = append(l.CaseFolded[folded], path)
	}
	for name := range l.TablesByName {
		sort.Strings(l.TablesByName[name])
	}
}

// dbTableName extracts the table name from a db/<name>_tables/... path.
func dbTableName(path string) (string, bool) {
	segs := pathutil.Segments(path)
	if len(segs) < 2 || segs[0] != "db" {
		return "", false
	}
	if !strings.HasSuffix(segs[1], "_tables") {
		return "", false
	}
	return segs[1], true
}

func isLocPath(f *vfile.File) bool {
	return f.Entry.FileType == types.FileTypeLoc
}

// sortedPaths returns l's file paths in ascending order.
func (l *Layer) sortedPaths() []string {
	paths := make([]string, 0, len(l.Files))
	for p := range l.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
