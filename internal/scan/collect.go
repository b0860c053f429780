package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/treestat/treestat/internal/ignore"
	"github.com/treestat/treestat/internal/index"
)

// CollectOptions tunes a manifest collection pass.
type CollectOptions struct {
	IgnoreFile      string
	Workers         int
	Blobs           *index.BlobStore
	SkipNestedRoots bool
}

// CollectTree walks the tree at root and returns manifest entries for
// every regular file that is not ignored, sorted by path. When a blob
// store is supplied, baseline content is kept for files small enough to
// diff against later. Files vanishing mid-collect are dropped silently.
func CollectTree(ctx context.Context, root string, opts CollectOptions) ([]index.File, error) {
	if opts.IgnoreFile == "" {
		opts.IgnoreFile = ignore.DefaultFilename
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	matcher := ignore.NewMatcher(opts.IgnoreFile)
	var files []collected
	walk := func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, rerr := filepath.Rel(absRoot, p)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == "." {
				return matcher.LoadDir(p, "")
			}
			if path.Base(rel) == index.DirName {
				return filepath.SkipDir
			}
			if opts.SkipNestedRoots && hasOwnRoot(p) {
				return filepath.SkipDir
			}
			if matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return matcher.LoadDir(p, rel)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher.Match(rel, false) {
			return nil
		}
		files = append(files, collected{rel: rel, abs: p})
		return nil
	}
	if err := filepath.WalkDir(absRoot, walk); err != nil {
		return nil, fmt.Errorf("walk %s: %w", absRoot, err)
	}

	out := make([]index.File, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, c := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			f, err := collectOne(c, opts.Blobs)
			if err != nil {
				return err
			}
			out[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]index.File, 0, len(out))
	for _, f := range out {
		if f.Path != "" {
			kept = append(kept, f)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Path < kept[j].Path })
	return kept, nil
}

type collected struct {
	rel string
	abs string
}

func collectOne(c collected, blobs *index.BlobStore) (index.File, error) {
	fi, err := os.Lstat(c.abs)
	if err != nil || !fi.Mode().IsRegular() {
		return index.File{}, nil
	}
	f := index.File{
		Path:    c.rel,
		Size:    fi.Size(),
		MTimeNS: fi.ModTime().UnixNano(),
		Mode:    uint32(fi.Mode().Perm()),
	}

	if blobs != nil && fi.Size() <= index.MaxBlobBytes {
		data, err := os.ReadFile(c.abs) // #nosec G304 -- path is rooted in the collected tree
		if err != nil {
			if os.IsNotExist(err) {
				return index.File{}, nil
			}
			return index.File{}, fmt.Errorf("read %s: %w", c.rel, err)
		}
		f.OID = hashBytes(data)
		if err := blobs.Put(f.OID, data); err != nil {
			return index.File{}, fmt.Errorf("store baseline for %s: %w", c.rel, err)
		}
		return f, nil
	}

	sum, err := hashFile(c.abs)
	if err != nil {
		if os.IsNotExist(err) {
			return index.File{}, nil
		}
		return index.File{}, err
	}
	f.OID = sum
	return f, nil
}
