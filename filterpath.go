package persist

import (
	"path/filepath"
)

type pathFilter struct{}

// PathFilter stores absolute paths relative to the directory of the archive
// file, with forward slashes, and makes them absolute again on read. It does
// nothing for in-memory archives or empty paths.
func PathFilter() Filter {
	return pathFilter{}
}

func (pathFilter) ToArchive(ar *Archive, value any) (string, error) {
	s, err := stringOf(value)
	if err != nil {
		return "", err
	}
	if s == "" || ar.Path() == "" || !filepath.IsAbs(s) {
		return filepath.ToSlash(s), nil
	}
	dir, err := archiveDir(ar)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(dir, s)
	if err != nil {
		// different volume
		return filepath.ToSlash(s), nil
	}
	return filepath.ToSlash(rel), nil
}

func (pathFilter) FromArchive(ar *Archive, text string, ptr any) error {
	s := filepath.FromSlash(text)
	if s == "" || ar.Path() == "" || filepath.IsAbs(s) {
		return setString(ptr, s)
	}
	dir, err := archiveDir(ar)
	if err != nil {
		return err
	}
	return setString(ptr, filepath.Join(dir, s))
}

func archiveDir(ar *Archive) (string, error) {
	return filepath.Abs(filepath.Dir(ar.Path()))
}
