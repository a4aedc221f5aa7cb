package engine

import (
	"github.com/spf13/afero"
)

// AssetLoader serves module sources from an afero filesystem. Paths are
// interpreted relative to the filesystem root.
type AssetLoader struct {
	fs afero.Fs
}

// NewAssetLoader returns a loader reading from fs.
func NewAssetLoader(fs afero.Fs) *AssetLoader {
	return &AssetLoader{fs: fs}
}

// NewDirLoader returns a loader rooted at dir on the OS filesystem. Paths
// escaping dir are reported as missing.
func NewDirLoader(dir string) *AssetLoader {
	return NewAssetLoader(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// LoadFile returns the bytes of path, or false when path does not exist or
// is a directory.
func (l *AssetLoader) LoadFile(path string) ([]byte, bool) {
	if path == "" {
		return nil, false
	}
	info, err := l.fs.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, false
	}
	return data, true
}
