package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sagarc03/bigstash/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Invalid(t *testing.T) {
	v := manifest.NewValidator(nil)

	tests := []struct {
		name   string
		path   string
		reason string
	}{
		{name: "plain file", path: "/home/u/report.pdf", reason: ""},
		{name: "unicode file", path: "/home/u/привет/世界.txt", reason: ""},
		{name: "colon", path: "/home/u/a:b.txt", reason: manifest.ReasonRestricted},
		{name: "backslash", path: `/home/u/a\b.txt`, reason: manifest.ReasonRestricted},
		{name: "pipe in directory", path: "/home/u|x/a.txt", reason: manifest.ReasonRestricted},
		{name: "question mark", path: "/home/u/why?.txt", reason: manifest.ReasonRestricted},
		{name: "control character", path: "/home/u/a\x01b", reason: manifest.ReasonXML},
		{name: "del character", path: "/home/u/a\x7fb", reason: manifest.ReasonXML},
		{name: "noncharacter", path: "/home/u/a\uFDD0b", reason: manifest.ReasonXML},
		{name: "plane noncharacter", path: "/home/u/a\U0001FFFEb", reason: manifest.ReasonXML},
		{name: "invalid utf8", path: "/home/u/a\xffb", reason: manifest.ReasonXML},
		{name: "encoded surrogate", path: "/home/u/a\xed\xa0\x80b", reason: manifest.ReasonXMLSurrogate},
		{name: "office lock file", path: "/home/u/~$report.docx", reason: manifest.ReasonTemporary},
		{name: "office temp file", path: "/home/u/~$report.tmp", reason: manifest.ReasonTemporary},
		{name: "libreoffice lock", path: "/home/u/.~lock.odt#", reason: manifest.ReasonTemporary},
		{name: "tilde tmp", path: "/home/u/~WRL0001.tmp", reason: manifest.ReasonTemporary},
		{name: "trailing dot", path: "/home/u/name.", reason: manifest.ReasonTrailingDot},
		{name: "trailing dot in directory", path: "/home/u/dir../a.txt", reason: manifest.ReasonTrailingDot},
		{name: "trailing space", path: "/home/u/name ", reason: manifest.ReasonTrailingSpace},
		{name: "inner space is fine", path: "/home/u/my file.txt", reason: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, invalid := v.Invalid(tt.path)
			assert.Equal(t, tt.reason != "", invalid)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestValidator_Ignored(t *testing.T) {
	v := manifest.NewValidator([]string{"*.bak", "build", "[!a-z]*.log"})

	tests := []struct {
		name   string
		path   string
		reason string
	}{
		{name: "regular", path: "/nonexistent/u/a.txt", reason: ""},
		{name: "thumbs.db", path: "/nonexistent/u/thumbs.db", reason: manifest.ReasonSystemFile},
		{name: "Thumbs.db any case", path: "/nonexistent/u/Thumbs.db", reason: manifest.ReasonSystemFile},
		{name: "ds store", path: "/nonexistent/u/.DS_Store", reason: manifest.ReasonSystemFile},
		{name: "mac icon", path: "/nonexistent/u/Icon\r", reason: manifest.ReasonSystemFile},
		{name: "user glob", path: "/nonexistent/u/a.bak", reason: manifest.ReasonUserIgnored},
		{name: "user directory", path: "/nonexistent/build/a.txt", reason: manifest.ReasonUserIgnored},
		{name: "negated class", path: "/nonexistent/u/1.log", reason: manifest.ReasonUserIgnored},
		{name: "negated class no match", path: "/nonexistent/u/a.log", reason: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ignored := v.Ignored(tt.path)
			assert.Equal(t, tt.reason != "", ignored)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestValidator_Classify(t *testing.T) {
	dir := t.TempDir()
	v := manifest.NewValidator(nil)

	target := filepath.Join(dir, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o600))
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(target, link))
	thumbs := filepath.Join(dir, "thumbs.db")
	require.NoError(t, os.WriteFile(thumbs, []byte("x"), 0o600))

	reason, ignored := v.Classify(target)
	assert.False(t, ignored)
	assert.Empty(t, reason)

	reason, ignored = v.Classify(link)
	assert.True(t, ignored)
	assert.Equal(t, manifest.ReasonLink, reason)

	reason, ignored = v.Classify(thumbs)
	assert.True(t, ignored)
	assert.Equal(t, manifest.ReasonSystemFile, reason)

	reason, ignored = v.Classify(filepath.Join(dir, "missing.txt"))
	assert.False(t, ignored)
	assert.Equal(t, manifest.ReasonNotExist, reason)
}

func TestLoadIgnoreFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignore")
	content := "# comment\n*.bak\n\n  node_modules  \n#*.log\n.cache\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	patterns, err := manifest.LoadIgnoreFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.bak", "node_modules", ".cache"}, patterns)

	_, err = manifest.LoadIgnoreFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
