// Package naming derives archive filenames for exported studies.
//
// The contract is bit-exact: <patient>_<dob>_<studydate>_<uid>[_N].zip,
// where the study UID always survives untruncated and only the prefix
// shrinks to honor the configured length cap.
package naming

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmsantos/pacsexport/internal/dates"
)

const (
	// Unknown substitutes for empty sanitized fields and unparseable dates.
	Unknown = "UNKNOWN"

	// DefaultMaxNameLen caps the extension-less filename length.
	DefaultMaxNameLen = 128

	sanitizeCap = 128
)

var unsafeRunRe = regexp.MustCompile(`[^0-9A-Za-z._-]+`)

// Sanitize normalizes a free-text field for use in a filename: trim,
// spaces to underscores, runs of unsafe characters collapsed into a
// single underscore, capped at 128 characters, UNKNOWN when empty.
func Sanitize(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
	s = unsafeRunRe.ReplaceAllString(s, "_")
	if len(s) > sanitizeCap {
		s = s[:sanitizeCap]
	}
	if s == "" {
		return Unknown
	}
	return s
}

// BuildZipPath composes the unique archive path for a study inside its
// month folder.
//
// The base name is <patient>_<dob>_<studydate>_<uid>; if it exceeds
// maxLen (extension excluded) the prefix before the UID is cut to the
// minimal fitting length with trailing underscores trimmed. When the
// resulting path already exists, _2, _3, ... are probed until free.
func BuildZipPath(monthDir, patientName, dobRaw, studyRaw, studyUID string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxNameLen
	}

	patient := Sanitize(patientName)
	dob := dates.Format(dobRaw, Unknown)
	studyDate := dates.Format(studyRaw, Unknown)
	uid := Sanitize(studyUID)

	prefix := patient + "_" + dob + "_" + studyDate
	base := prefix + "_" + uid
	if len(base) > maxLen {
		allow := maxLen - (len(uid) + 1)
		if allow < 1 {
			allow = 1
		}
		prefix = strings.TrimRight(prefix[:min(allow, len(prefix))], "_")
		base = prefix + "_" + uid
	}

	candidate := filepath.Join(monthDir, base+".zip")
	if !pathExists(candidate) {
		return candidate
	}
	for n := 2; ; n++ {
		c := filepath.Join(monthDir, base+"_"+strconv.Itoa(n)+".zip")
		if !pathExists(c) {
			return c
		}
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
