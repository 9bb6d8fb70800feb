// Package manifest builds the description of local files sent to the
// service when an upload is created.
//
// A Manifest maps 1-based keys to files. Keys are write-once, the total
// size is kept as a running sum and the base directory is recomputed as
// the common directory of every file added.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"time"

	"github.com/sagarc03/bigstash"
)

var (
	// ErrDuplicateKey is returned when a key already holds a file.
	ErrDuplicateKey = errors.New("manifest values can only be written once")
	// ErrInvalidKey is returned for keys below 1.
	ErrInvalidKey = errors.New("manifest keys start at 1")
)

// File is a local file selected for upload.
type File struct {
	// OriginalPath is the absolute local path.
	OriginalPath string
	Size         int64
	LastModified time.Time
	// MD5 is the hex encoded digest of the content.
	MD5 string
}

// Entry is a File as it appears in the manifest, with its key and its
// path relative to the manifest base.
type Entry struct {
	File
	ID   int
	Path string
}

// Manifest is an append-only, write-once-per-key set of files.
type Manifest struct {
	files map[int]File
	size  int64
	base  string

	title    string
	resolved bool
	now      func() time.Time
}

// New creates an empty manifest. An empty title is derived on first use.
func New(title string) *Manifest {
	return &Manifest{
		files: make(map[int]File),
		title: title,
		now:   time.Now,
	}
}

// FromFiles creates a manifest holding files at keys 1..n in order.
func FromFiles(title string, files []File) (*Manifest, error) {
	m := New(title)
	for i, f := range files {
		if err := m.Set(i+1, f); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Set stores f at key. A key can only be written once; the manifest is
// unchanged when Set fails.
func (m *Manifest) Set(key int, f File) error {
	if key < 1 {
		return fmt.Errorf("key %d: %w", key, ErrInvalidKey)
	}
	if _, exists := m.files[key]; exists {
		return fmt.Errorf("key %d: %w", key, ErrDuplicateKey)
	}

	dir := bigstash.ToPosix(filepath.Dir(f.OriginalPath))
	if len(m.files) == 0 {
		m.base = bigstash.CommonDir(dir)
	} else {
		m.base = bigstash.CommonDir(m.base, dir)
	}

	m.files[key] = f
	m.size += f.Size

	return nil
}

// Add stores f at the next free key and returns it.
func (m *Manifest) Add(f File) (int, error) {
	key := len(m.files) + 1
	for {
		if _, exists := m.files[key]; !exists {
			break
		}
		key++
	}
	return key, m.Set(key, f)
}

// Get returns the entry at key.
func (m *Manifest) Get(key int) (Entry, bool) {
	f, ok := m.files[key]
	if !ok {
		return Entry{}, false
	}
	return m.entry(key, f), true
}

func (m *Manifest) entry(key int, f File) Entry {
	return Entry{
		File: f,
		ID:   key,
		Path: bigstash.RelPosix(m.base, f.OriginalPath),
	}
}

// Len returns the number of files.
func (m *Manifest) Len() int {
	return len(m.files)
}

// Size returns the total size of all files in bytes.
func (m *Manifest) Size() int64 {
	return m.size
}

// Base returns the common directory of all files in forward slash form.
func (m *Manifest) Base() string {
	return m.base
}

// Title returns the explicit title, or the base directory name, or a
// dated default. The result is fixed on first call.
func (m *Manifest) Title() string {
	if m.resolved {
		return m.title
	}

	if m.title == "" {
		if m.base != "" && m.base != "/" {
			m.title = path.Base(m.base)
		} else {
			m.title = "upload-" + m.now().Format(time.DateOnly)
		}
	}
	m.resolved = true

	return m.title
}

// Entries returns all entries ordered by key.
func (m *Manifest) Entries() []Entry {
	keys := make([]int, 0, len(m.files))
	for k := range m.files {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, m.entry(k, m.files[k]))
	}
	return entries
}

type wireFile struct {
	ID           int                `json:"id"`
	Path         string             `json:"path"`
	Size         int64              `json:"size"`
	MD5          string             `json:"md5"`
	LastModified bigstash.Timestamp `json:"last_modified"`
	OriginalPath string             `json:"original_path"`
}

type wireSource struct {
	Prefix string `json:"prefix"`
}

type wireManifest struct {
	Title  string     `json:"title"`
	Size   int64      `json:"size"`
	Source wireSource `json:"source"`
	Files  []wireFile `json:"files"`
}

// MarshalJSON encodes the manifest in the form the upload endpoint
// expects.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	entries := m.Entries()
	files := make([]wireFile, 0, len(entries))
	for _, e := range entries {
		files = append(files, wireFile{
			ID:           e.ID,
			Path:         e.Path,
			Size:         e.Size,
			MD5:          e.MD5,
			LastModified: bigstash.Timestamp{Time: e.LastModified.UTC()},
			OriginalPath: e.OriginalPath,
		})
	}

	return json.Marshal(wireManifest{
		Title:  m.Title(),
		Size:   m.size,
		Source: wireSource{Prefix: m.base},
		Files:  files,
	})
}
