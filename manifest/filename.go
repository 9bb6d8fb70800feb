package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Reasons a file is ignored or rejected.
const (
	ReasonSystemFile    = "small system file"
	ReasonLink          = "is link"
	ReasonUserIgnored   = "is user ignored"
	ReasonRestricted    = "restricted characters"
	ReasonXML           = "invalid character for xml"
	ReasonXMLSurrogate  = "invalid character for xml (surrogate pair)"
	ReasonTemporary     = "name looks like temporary file"
	ReasonTrailingDot   = "trailing dot characters"
	ReasonTrailingSpace = "trailing whitespace"
	ReasonNotExist      = "File doesn't exist"
)

// ignoredNames are OS and sync client metadata files, compared case
// insensitively.
var ignoredNames = map[string]struct{}{
	"desktop.ini":   {},
	"thumbs.db":     {},
	".ds_store":     {},
	"icon\r":        {},
	".dropbox":      {},
	".dropbox.attr": {},
}

var (
	restrictedChars = regexp.MustCompile(`[\\/<>|?"*:]`)
	temporaryName   = regexp.MustCompile(`^(?:~\$|\.~|~.*\.tmp)`)
	trailingDots    = regexp.MustCompile(`\.+$`)
	trailingSpace   = regexp.MustCompile(`\s+$`)
)

type componentCheck struct {
	reason string
	fails  func(name string) bool
}

var invalidChecks = []componentCheck{
	{ReasonRestricted, restrictedChars.MatchString},
	{ReasonXMLSurrogate, hasSurrogate},
	{ReasonXML, hasXMLInvalid},
	{ReasonTemporary, temporaryName.MatchString},
	{ReasonTrailingDot, trailingDots.MatchString},
	{ReasonTrailingSpace, trailingSpace.MatchString},
}

// Validator classifies local paths as ignored, invalid or valid.
type Validator struct {
	patterns []string
}

// NewValidator creates a Validator with user ignore glob patterns. Patterns
// use shell syntax and are matched against every path component.
func NewValidator(patterns []string) *Validator {
	converted := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		converted = append(converted, strings.ReplaceAll(p, "[!", "[^"))
	}
	return &Validator{patterns: converted}
}

// LoadIgnoreFile reads glob patterns, one per line. Lines starting with
// "#" and blank lines are skipped.
func LoadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path is given by the user
	if err != nil {
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file: %w", err)
	}

	return patterns, nil
}

// Ignored reports whether path should be skipped silently, and why.
func (v *Validator) Ignored(path string) (string, bool) {
	for _, name := range components(path) {
		if _, ok := ignoredNames[strings.ToLower(name)]; ok {
			return ReasonSystemFile, true
		}
		for _, pattern := range v.patterns {
			if matched, err := filepath.Match(pattern, name); err == nil && matched {
				return ReasonUserIgnored, true
			}
		}
	}

	if info, err := os.Lstat(path); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		return ReasonLink, true
	}

	return "", false
}

// Invalid reports whether path cannot be uploaded, and why.
func (v *Validator) Invalid(path string) (string, bool) {
	for _, name := range components(path) {
		for _, check := range invalidChecks {
			if check.fails(name) {
				return check.reason, true
			}
		}
	}
	return "", false
}

// Classify checks path for existence, then ignore rules, then validity.
// It returns ignored=true or a non-empty reason for invalid paths.
func (v *Validator) Classify(path string) (reason string, ignored bool) {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return ReasonNotExist, false
	}

	if reason, ok := v.Ignored(path); ok {
		slog.Debug("ignoring file", "path", path, "reason", reason)
		return reason, true
	}

	if reason, ok := v.Invalid(path); ok {
		slog.Debug("invalid file", "path", path, "reason", reason)
		return reason, false
	}

	return "", false
}

// components splits path into its names, without the volume or root.
func components(path string) []string {
	path = strings.TrimPrefix(path, filepath.VolumeName(path))
	parts := strings.Split(path, string(filepath.Separator))

	names := parts[:0]
	for _, p := range parts {
		if p != "" {
			names = append(names, p)
		}
	}
	return names
}

// hasXMLInvalid reports code points XML 1.0 does not allow, including
// noncharacters. Undecodable bytes count as invalid.
func hasXMLInvalid(name string) bool {
	for i := 0; i < len(name); {
		r, size := utf8.DecodeRuneInString(name[i:])
		if r == utf8.RuneError && size == 1 {
			return true
		}
		if xmlInvalidRune(r) {
			return true
		}
		i += size
	}
	return false
}

func xmlInvalidRune(r rune) bool {
	switch {
	case r <= 0x08,
		r == 0x0B || r == 0x0C,
		r >= 0x0E && r <= 0x1F,
		r >= 0x7F && r <= 0x84,
		r >= 0x86 && r <= 0x9F,
		r >= 0xFDD0 && r <= 0xFDDF:
		return true
	}
	// xFFFE and xFFFF of every plane.
	return r&0xFFFE == 0xFFFE
}

// hasSurrogate reports a UTF-16 surrogate encoded as UTF-8, as produced
// for unpaired surrogates in Windows file names.
func hasSurrogate(name string) bool {
	for i := 0; i+1 < len(name); i++ {
		if name[i] == 0xED && name[i+1] >= 0xA0 && name[i+1] <= 0xBF {
			return true
		}
	}
	return false
}
