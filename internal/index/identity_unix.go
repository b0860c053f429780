//go:build unix

package index

import (
	"os"
	"syscall"

	"github.com/treestat/treestat/internal/models"
)

// ReadIdentity returns the staleness token for the manifest at path: its
// stat identity, no parsing. A missing manifest yields the zero token.
func ReadIdentity(path string) (models.IndexIdentity, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.IndexIdentity{}, nil
		}
		return models.IndexIdentity{}, err
	}

	id := models.IndexIdentity{
		Size:    fi.Size(),
		MTimeNS: fi.ModTime().UnixNano(),
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		id.Ino = st.Ino
		id.Dev = uint64(st.Dev) // #nosec G115 -- device ids fit
	}
	return id, nil
}
