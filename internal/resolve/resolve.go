// Package resolve maps catalog image references to filesystem paths.
//
// Horos is inconsistent about whether an image's path string already
// embeds its numeric storage subfolder, so a reference can legitimately
// live at more than one location. Resolution therefore walks an ordered
// list of candidate strategies and takes the first existing regular
// file. The order is a contract: managed-subfolder, managed-direct,
// raw-absolute for in-database references; for the rest the recorded
// path stands alone, absolute as-is or rebased on the data dir.
package resolve

import (
	"os"
	"path/filepath"
	"strings"
)

// ImageRef is one image row from the catalog.
type ImageRef struct {
	// PathString is the recorded path, relative or absolute.
	PathString string
	// PathNumber is the numeric storage subfolder, empty when absent.
	PathNumber string
	// InManagedFolder reports whether the path is rooted inside the
	// managed DATABASE.noindex tree.
	InManagedFolder bool
}

// CandidateStrategy produces one candidate location for a reference,
// or "" when it does not apply.
type CandidateStrategy interface {
	Candidate(ref ImageRef) string
}

// Resolver resolves image references against a fixed directory layout.
type Resolver struct {
	managed    []CandidateStrategy
	unmanaged  []CandidateStrategy
	fileExists func(string) bool
}

// New builds a Resolver for the given managed storage root and
// database data directory.
func New(managedRoot, dataDir string) *Resolver {
	return &Resolver{
		managed: []CandidateStrategy{
			managedSubfolder{root: managedRoot},
			managedDirect{root: managedRoot},
			rawAbsolute{},
		},
		unmanaged: []CandidateStrategy{
			rawAbsolute{},
			dataDirRelative{dataDir: dataDir},
		},
		fileExists: isRegularFile,
	}
}

// Resolve returns the first candidate that exists as a regular file.
// When none exists it returns the first candidate anyway so callers can
// log what was tried. It never returns an error; filesystem failures
// during existence checks count as absent.
func (r *Resolver) Resolve(ref ImageRef) string {
	cands := r.Candidates(ref)
	for _, c := range cands {
		if r.fileExists(c) {
			return c
		}
	}
	if len(cands) == 0 {
		return ""
	}
	return cands[0]
}

// Exists reports whether the resolved path for ref is a regular file.
func (r *Resolver) Exists(ref ImageRef) (string, bool) {
	p := r.Resolve(ref)
	return p, p != "" && r.fileExists(p)
}

// Candidates lists every location the resolver would try, in priority
// order, with duplicates and inapplicable strategies removed.
func (r *Resolver) Candidates(ref ImageRef) []string {
	strategies := r.unmanaged
	if ref.InManagedFolder {
		strategies = r.managed
	}

	var out []string
	seen := make(map[string]struct{}, len(strategies))
	for _, s := range strategies {
		c := s.Candidate(ref)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// managedSubfolder joins managed_root/<subfolder>/<path>, covering
// catalogs that omit the subfolder from the path string.
type managedSubfolder struct{ root string }

func (s managedSubfolder) Candidate(ref ImageRef) string {
	sub := strings.TrimSpace(ref.PathNumber)
	if sub == "" {
		return ""
	}
	return filepath.Join(s.root, sub, stripLeadingSlash(ref.PathString))
}

// managedDirect joins managed_root/<path>, covering catalogs whose path
// string already embeds the subfolder segment.
type managedDirect struct{ root string }

func (s managedDirect) Candidate(ref ImageRef) string {
	return filepath.Join(s.root, stripLeadingSlash(ref.PathString))
}

// rawAbsolute uses the recorded path as-is when it is absolute.
type rawAbsolute struct{}

func (rawAbsolute) Candidate(ref ImageRef) string {
	if filepath.IsAbs(ref.PathString) {
		return filepath.Clean(ref.PathString)
	}
	return ""
}

// dataDirRelative resolves relative paths against the database's data
// directory. Absolute paths are out of its scope: an absolute reference
// has exactly one candidate, and rebasing it under the data dir could
// pick up an unrelated file.
type dataDirRelative struct{ dataDir string }

func (s dataDirRelative) Candidate(ref ImageRef) string {
	if filepath.IsAbs(ref.PathString) {
		return ""
	}
	return filepath.Join(s.dataDir, ref.PathString)
}

func stripLeadingSlash(p string) string {
	return strings.TrimLeft(p, "/")
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
