//go:build !unix

package index

import (
	"os"

	"github.com/treestat/treestat/internal/models"
)

// ReadIdentity returns the staleness token for the manifest at path. On
// platforms without inode semantics the token falls back to size and
// mtime, which still changes on every atomic rewrite.
func ReadIdentity(path string) (models.IndexIdentity, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.IndexIdentity{}, nil
		}
		return models.IndexIdentity{}, err
	}
	return models.IndexIdentity{
		Size:    fi.Size(),
		MTimeNS: fi.ModTime().UnixNano(),
	}, nil
}
