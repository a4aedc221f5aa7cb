// Package modpath canonicalizes module identifiers without touching the
// filesystem.
package modpath

import "strings"

const (
	separator = "/"
	current   = "."
	parent    = ".."
)

// Normalize lexically cleans a slash separated module path.
//
// Empty and "." segments are dropped and ".." consumes the segment before
// it. A ".." in the first position is kept as is; any other ".." with
// nothing left to consume is discarded. Normalize(Normalize(p)) equals
// Normalize(p) for every p.
func Normalize(p string) string {
	segments := strings.Split(p, separator)
	out := make([]string, 0, len(segments))
	keepParent := len(segments) > 0 && segments[0] == parent
	for i, seg := range segments {
		switch seg {
		case "", current:
			continue
		case parent:
			if i == 0 {
				continue
			}
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	if keepParent {
		out = append([]string{parent}, out...)
	}
	return strings.Join(out, separator)
}

// IsRelative reports whether id is resolved against the requiring module.
func IsRelative(id string) bool {
	return strings.HasPrefix(id, current+separator)
}

// JoinWithDirectory rebases a "./" relative id onto dir, keeping the "./"
// marker so the loader still treats the result as relative. Other ids are
// returned unchanged.
func JoinWithDirectory(dir, id string) string {
	if !IsRelative(id) || dir == "" {
		return id
	}
	return current + separator + dir + separator + id[2:]
}

// Rewrite turns a "./" relative id into its canonical form. Ids without the
// prefix are left alone.
func Rewrite(id string) string {
	if !IsRelative(id) {
		return id
	}
	id = id[2:]
	for strings.Contains(id, "/./") {
		id = strings.ReplaceAll(id, "/./", separator)
	}
	return Normalize(id)
}

// Dir returns the directory part of a module file name, or "" for files at
// the asset root.
func Dir(file string) string {
	i := strings.LastIndex(file, separator)
	if i < 0 {
		return ""
	}
	return file[:i]
}
