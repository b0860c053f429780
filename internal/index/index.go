// Package index persists the treestat manifest: the tracked-file baseline
// a status scan compares the working tree against. The manifest lives at
// <root>/.treestat/index.json and is rewritten atomically on every save,
// so its stat identity (models.IndexIdentity) changes whenever its content
// might have.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// DirName is the per-tree state directory.
	DirName = ".treestat"
	// FileName is the manifest file inside DirName.
	FileName = "index.json"
	// FormatVersion is the manifest schema version this build writes.
	FormatVersion = 1
)

// DefaultPath returns the manifest path for a tree root.
func DefaultPath(root string) string {
	return filepath.Join(root, DirName, FileName)
}

// StageEntry records one conflict stage for an unmerged path. Merge
// tooling that integrates with the manifest writes these; treestat
// reports them.
type StageEntry struct {
	Stage int    `json:"stage"` // 1 = base, 2 = ours, 3 = theirs
	OID   string `json:"oid"`
	Mode  uint32 `json:"mode"`
}

// File is one tracked path in the manifest.
type File struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	MTimeNS int64  `json:"mtime_ns"`
	Mode    uint32 `json:"mode"`
	OID     string `json:"oid"` // hex sha256 of the content at baseline
	// Stages is non-empty for unmerged paths. Such entries are excluded
	// from the modified/deleted comparison and surface as conflicts.
	Stages []StageEntry `json:"stages,omitempty"`
}

// Unmerged reports whether the entry carries conflict stages.
func (f *File) Unmerged() bool { return len(f.Stages) > 0 }

// Meta carries manifest-level metadata.
type Meta struct {
	FormatVersion int       `json:"format_version"`
	Label         string    `json:"label,omitempty"`
	Upstream      string    `json:"upstream,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	// Generation counts saves; diagnostic only, identity comes from stat.
	Generation uint64 `json:"generation"`
}

// Index is the in-memory manifest. Files stay sorted by path.
type Index struct {
	Meta  Meta   `json:"meta"`
	Files []File `json:"files"`

	byPath map[string]*File
}

// New returns an empty manifest with the given branch-like label.
func New(label string) *Index {
	return &Index{
		Meta: Meta{
			FormatVersion: FormatVersion,
			Label:         label,
			CreatedAt:     time.Now(),
		},
		byPath: map[string]*File{},
	}
}

// Load reads a manifest from path. A missing file returns (nil, nil) so
// callers can distinguish "no baseline yet" from a read failure.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- manifest path comes from the tree root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	if ix.Meta.FormatVersion > FormatVersion {
		return nil, fmt.Errorf("index format version %d is newer than supported %d", ix.Meta.FormatVersion, FormatVersion)
	}
	ix.reindex()
	return &ix, nil
}

// Save writes the manifest atomically: temp file in the target directory,
// sync, then rename over path. The rename guarantees a fresh inode, which
// is what keeps IndexIdentity honest for same-timestamp rebuilds.
func (ix *Index) Save(path string) error {
	ix.sortFiles()
	ix.Meta.Generation++
	if ix.Meta.FormatVersion == 0 {
		ix.Meta.FormatVersion = FormatVersion
	}

	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// SetFiles replaces the tracked set. The input is copied, sorted and
// deduplicated by path (last entry wins).
func (ix *Index) SetFiles(files []File) {
	out := make([]File, 0, len(files))
	seen := make(map[string]int, len(files))
	for _, f := range files {
		f.Path = filepath.ToSlash(f.Path)
		if i, dup := seen[f.Path]; dup {
			out[i] = f
			continue
		}
		seen[f.Path] = len(out)
		out = append(out, f)
	}
	ix.Files = out
	ix.sortFiles()
}

// Lookup returns the manifest entry for a tree-relative path.
func (ix *Index) Lookup(path string) (*File, bool) {
	if ix.byPath == nil {
		ix.reindex()
	}
	f, ok := ix.byPath[path]
	return f, ok
}

// HasUnder reports whether any manifest entry lives strictly below the
// directory prefix. Used to decide whether a directory is untracked.
func (ix *Index) HasUnder(prefix string) bool {
	if prefix == "" {
		return len(ix.Files) > 0
	}
	want := prefix + "/"
	i := sort.Search(len(ix.Files), func(i int) bool { return ix.Files[i].Path >= want })
	return i < len(ix.Files) && strings.HasPrefix(ix.Files[i].Path, want)
}

// Conflicts returns the unmerged entries in path order.
func (ix *Index) Conflicts() []*File {
	var out []*File
	for i := range ix.Files {
		if ix.Files[i].Unmerged() {
			out = append(out, &ix.Files[i])
		}
	}
	return out
}

// SetConflict marks path as unmerged with the given stages, creating the
// entry if the path is not tracked yet. Passing no stages clears the
// conflict.
func (ix *Index) SetConflict(path string, stages []StageEntry) {
	path = filepath.ToSlash(path)
	if f, ok := ix.Lookup(path); ok {
		f.Stages = append([]StageEntry(nil), stages...)
		return
	}
	ix.Files = append(ix.Files, File{Path: path, Stages: append([]StageEntry(nil), stages...)})
	ix.sortFiles()
}

func (ix *Index) sortFiles() {
	sort.Slice(ix.Files, func(i, j int) bool { return ix.Files[i].Path < ix.Files[j].Path })
	ix.reindex()
}

func (ix *Index) reindex() {
	ix.byPath = make(map[string]*File, len(ix.Files))
	for i := range ix.Files {
		ix.byPath[ix.Files[i].Path] = &ix.Files[i]
	}
}
