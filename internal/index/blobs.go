package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const blobsDirName = "blobs"

// MaxBlobBytes caps the size of baseline content kept for diffing.
// Larger files still get hashed into the manifest, they just cannot
// produce verbose diffs later.
const MaxBlobBytes = 8 << 20

// BlobDir returns the baseline content directory for a tree root.
func BlobDir(root string) string {
	return filepath.Join(root, DirName, blobsDirName)
}

// BlobStore keeps baseline file content addressed by hash, sharded as
// <dir>/aa/bb/<hash>. Verbose scans read the old side of a diff from it.
type BlobStore struct {
	dir string
}

// NewBlobStore returns a store rooted at dir. The directory is created
// lazily on first write.
func NewBlobStore(dir string) *BlobStore {
	return &BlobStore{dir: dir}
}

// Put stores data under its content hash. Existing blobs are left alone;
// the write is atomic so readers never see partial content.
func (bs *BlobStore) Put(oid string, data []byte) error {
	path, err := bs.path(oid)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store blob: %w", err)
	}
	return nil
}

// Read returns the content stored for oid.
func (bs *BlobStore) Read(oid string) ([]byte, error) {
	path, err := bs.path(oid)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path) // #nosec G304 -- path derived from a validated hash
}

// Has reports whether content for oid is present.
func (bs *BlobStore) Has(oid string) bool {
	path, err := bs.path(oid)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}

// Prune removes blobs the live predicate does not claim. Used after a
// re-baseline so abandoned content does not accumulate.
func (bs *BlobStore) Prune(live func(oid string) bool) error {
	return filepath.WalkDir(bs.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if live(d.Name()) {
			return nil
		}
		return os.Remove(path)
	})
}

func (bs *BlobStore) path(oid string) (string, error) {
	oid = strings.ToLower(oid)
	if len(oid) < 6 || !isHex(oid) {
		return "", fmt.Errorf("invalid blob id %q", oid)
	}
	return filepath.Join(bs.dir, oid[:2], oid[2:4], oid), nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return s != ""
}
