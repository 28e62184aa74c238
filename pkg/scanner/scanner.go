// Package scanner walks a local directory tree and produces the ordered
// set of FileEntry values the Reconciler diffs against the remote state.
//
// The recursive walk takes an fs.FS rather than the raw filesystem so
// tests can substitute an in-memory tree. Include/exclude matching uses
// github.com/bmatcuk/doublestar/v4 for multi-segment glob patterns
// (".nsyteignore"-style).
package scanner

import (
	"io/fs"
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/hasher"
)

// Matcher decides whether a scanned relative path should be included.
type Matcher struct {
	Include []string // glob patterns; empty means "match everything"
	Exclude []string // glob patterns; checked after Include
}

// Match reports whether relPath (forward-slash, no leading slash) passes
// the include/exclude rules.
func (m Matcher) Match(relPath string) bool {
	included := len(m.Include) == 0
	for _, pat := range m.Include {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pat := range m.Exclude {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return false
		}
	}
	return true
}

// Entry is a scanned local file before hashing.
type Entry struct {
	Path string // site path, leading slash, forward slashes
	Size int64
}

// Scan walks fsys from its root, applying matcher, and returns entries in
// lexicographic path order (ties never arise: paths are unique within fsys).
// An empty directory yields an empty, non-nil slice (boundary).
func Scan(fsys fs.FS, matcher Matcher) ([]Entry, error) {
	entries := []Entry{}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := p
		if rel == "." {
			return nil
		}
		if !matcher.Match(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Path: "/" + path.Clean(rel),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// HashEntries opens and hashes every entry's file content from fsys,
// returning the full FileEntry set consumed by the Reconciler. fsys must
// accept relative (non-leading-slash) paths for Open, so the leading
// slash added by Scan is stripped here.
func HashEntries(fsys fs.FS, entries []Entry) ([]api.FileEntry, error) {
	out := make([]api.FileEntry, 0, len(entries))
	for _, e := range entries {
		f, err := fsys.Open(e.Path[1:])
		if err != nil {
			return nil, err
		}
		hash, size, err := hasher.HashReader(f)
		closeErr := f.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
		out = append(out, api.FileEntry{Path: e.Path, Size: size, Hash: hash})
	}
	return out, nil
}
