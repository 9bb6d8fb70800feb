package manifest_test

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/sagarc03/bigstash/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(path string, size int64) manifest.File {
	return manifest.File{
		OriginalPath: path,
		Size:         size,
		LastModified: time.Unix(1402174295, 0).UTC(),
		MD5:          "d41d8cd98f00b204e9800998ecf8427e",
	}
}

func TestManifest_BaseAndPaths(t *testing.T) {
	m, err := manifest.FromFiles("", []manifest.File{
		file("/a/b/c.txt", 10),
		file("/a/b/d/e.txt", 20),
	})
	require.NoError(t, err)

	assert.Equal(t, "/a/b", m.Base())

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].ID)
	assert.Equal(t, "c.txt", entries[0].Path)
	assert.Equal(t, 2, entries[1].ID)
	assert.Equal(t, "d/e.txt", entries[1].Path)
}

func TestManifest_BaseDoesNotSplitComponents(t *testing.T) {
	m, err := manifest.FromFiles("", []manifest.File{
		file("/data/project/a.txt", 1),
		file("/data/projects/b.txt", 1),
	})
	require.NoError(t, err)

	assert.Equal(t, "/data", m.Base())
	assert.Equal(t, "project/a.txt", m.Entries()[0].Path)
}

func TestManifest_SizeIsRunningSum(t *testing.T) {
	m := manifest.New("t")

	var want int64
	for i, size := range []int64{100, 0, 250, 1150} {
		_, err := m.Add(file("/tmp/x/f"+string(rune('a'+i)), size))
		require.NoError(t, err)
		want += size
		assert.Equal(t, want, m.Size())
	}
	assert.Equal(t, 4, m.Len())
}

func TestManifest_DuplicateKey(t *testing.T) {
	m := manifest.New("")
	require.NoError(t, m.Set(1, file("/tmp/x/a", 10)))

	err := m.Set(1, file("/other/b", 99))
	assert.ErrorIs(t, err, manifest.ErrDuplicateKey)

	got, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, "/tmp/x/a", got.OriginalPath)
	assert.Equal(t, int64(10), m.Size())
	assert.Equal(t, "/tmp/x", m.Base())

	assert.ErrorIs(t, m.Set(0, file("/tmp/x/c", 1)), manifest.ErrInvalidKey)
}

func TestManifest_Title(t *testing.T) {
	tests := []struct {
		name  string
		title string
		files []manifest.File
		want  string
	}{
		{name: "explicit", title: "backup", files: []manifest.File{file("/tmp/x/a", 1)}, want: "backup"},
		{name: "from base", files: []manifest.File{file("/tmp/x/a", 1), file("/tmp/x/y/b", 1)}, want: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := manifest.FromFiles(tt.title, tt.files)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Title())
		})
	}

	t.Run("dated default for root base", func(t *testing.T) {
		m, err := manifest.FromFiles("", []manifest.File{file("/a", 1), file("/b/c", 1)})
		require.NoError(t, err)
		assert.Equal(t, "/", m.Base())
		assert.Regexp(t, regexp.MustCompile(`^upload-\d{4}-\d{2}-\d{2}$`), m.Title())
	})

	t.Run("title is cached", func(t *testing.T) {
		m := manifest.New("")
		_, err := m.Add(file("/tmp/x/a", 1))
		require.NoError(t, err)
		assert.Equal(t, "x", m.Title())

		_, err = m.Add(file("/tmp/z/b", 1))
		require.NoError(t, err)
		assert.Equal(t, "/tmp", m.Base())
		assert.Equal(t, "x", m.Title())
	})
}

func TestManifest_MarshalJSON(t *testing.T) {
	m, err := manifest.FromFiles("", []manifest.File{
		file("/tmp/x/a.txt", 500),
		file("/tmp/x/sub/b.txt", 1000),
	})
	require.NoError(t, err)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"title": "x",
		"size": 1500,
		"source": {"prefix": "/tmp/x"},
		"files": [
			{"id": 1, "path": "a.txt", "size": 500, "md5": "d41d8cd98f00b204e9800998ecf8427e",
			 "last_modified": 1402174295, "original_path": "/tmp/x/a.txt"},
			{"id": 2, "path": "sub/b.txt", "size": 1000, "md5": "d41d8cd98f00b204e9800998ecf8427e",
			 "last_modified": 1402174295, "original_path": "/tmp/x/sub/b.txt"}
		]
	}`, string(data))
}
