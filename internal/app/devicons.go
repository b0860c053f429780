package app

import (
	"io/fs"
	"strings"
	"time"

	devicons "github.com/epilande/go-devicons"
)

// iconFileInfo satisfies fs.FileInfo with just enough state for icon
// lookup, which only reads the name and the directory bit.
type iconFileInfo struct {
	name  string
	isDir bool
}

func (i iconFileInfo) Name() string { return i.name }
func (i iconFileInfo) Size() int64  { return 0 }
func (i iconFileInfo) Mode() fs.FileMode {
	if i.isDir {
		return fs.ModeDir | 0o755
	}
	return 0
}
func (i iconFileInfo) ModTime() time.Time { return time.Time{} }
func (i iconFileInfo) IsDir() bool        { return i.isDir }
func (i iconFileInfo) Sys() any           { return nil }

// deviconForPath picks a Nerd Font icon for a report path. Untracked
// directory markers keep their trailing slash, which maps to the folder
// icon.
func deviconForPath(path string) string {
	if path == "" {
		return ""
	}
	isDir := strings.HasSuffix(path, "/")
	name := strings.TrimSuffix(path, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return devicons.IconForInfo(iconFileInfo{name: name, isDir: isDir}).Icon
}

func iconWithSpace(icon string) string {
	if icon == "" {
		return ""
	}
	return icon + " "
}
