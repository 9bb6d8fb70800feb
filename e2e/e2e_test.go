package e2e_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type archivesOutput struct {
	Archives []struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Title  string `json:"title"`
		Status string `json:"status"`
		Size   int64  `json:"size"`
	} `json:"archives"`
}

type filesOutput struct {
	Files []struct {
		Path string `json:"path"`
		Size int64  `json:"size"`
	} `json:"files"`
}

type historyOutput struct {
	Uploads []struct {
		ID         string `json:"id"`
		UploadURL  string `json:"upload_url"`
		ArchiveKey string `json:"archive_key"`
		Title      string `json:"title"`
		Size       int64  `json:"size_bytes"`
		FileCount  int    `json:"file_count"`
		Status     string `json:"status"`
	} `json:"uploads"`
}

type uploadOutput struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

func decode(t *testing.T, res Result, v any) {
	t.Helper()
	require.Equal(t, 0, res.Code, "stdout: %s\nstderr: %s", res.Stdout, res.Stderr)
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), v), "stdout: %s", res.Stdout)
}

// TestE2E_PutCompletes uploads a directory and follows it through the
// listing, files and history commands.
func TestE2E_PutCompletes(t *testing.T) {
	env := startMock(t, MockConfig{})
	dir := writeFiles(t, t.TempDir(), map[string]int{
		"a.txt":     500,
		"b.txt":     700,
		"sub/c.txt": 300,
	})

	res := env.Run(t, "put", "--title", "x", dir)
	require.Equal(t, 0, res.Code, "stdout: %s\nstderr: %s", res.Stdout, res.Stderr)
	assert.Contains(t, res.Stdout, "Uploading 3 files as archive ")
	assert.Contains(t, res.Stdout, "..OK")
	assert.Contains(t, res.Stdout, "Waiting for ")
	assert.Contains(t, res.Stdout, "upload status: completed")

	var archives archivesOutput
	decode(t, env.Run(t, "--json", "list"), &archives)
	require.Len(t, archives.Archives, 1)
	archive := archives.Archives[0]
	assert.Equal(t, "x", archive.Title)
	assert.Equal(t, "completed", archive.Status)
	assert.Equal(t, int64(1500), archive.Size)

	var files filesOutput
	decode(t, env.Run(t, "--json", "files", archive.ID), &files)
	paths := make([]string, 0, len(files.Files))
	for _, f := range files.Files {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt", "sub/c.txt"}, paths)

	var hist historyOutput
	decode(t, env.Run(t, "--json", "history"), &hist)
	require.Len(t, hist.Uploads, 1)
	assert.Equal(t, "x", hist.Uploads[0].Title)
	assert.Equal(t, archive.Key, hist.Uploads[0].ArchiveKey)
	assert.Equal(t, int64(1500), hist.Uploads[0].Size)
	assert.Equal(t, 3, hist.Uploads[0].FileCount)
	assert.Equal(t, "completed", hist.Uploads[0].Status)

	res = env.Run(t, "notifications")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Contains(t, res.Stdout, "archive x completed")
}

// TestE2E_DontWaitThenWait leaves processing to a later wait command.
func TestE2E_DontWaitThenWait(t *testing.T) {
	env := startMock(t, MockConfig{ProcessingPolls: 3})
	dir := writeFiles(t, t.TempDir(), map[string]int{"report.pdf": 1024})

	var up uploadOutput
	decode(t, env.Run(t, "--json", "put", "--dont-wait", dir), &up)
	assert.Equal(t, "uploaded", up.Status)
	require.NotEmpty(t, up.ID)

	res := env.Run(t, "wait", up.ID)
	require.Equal(t, 0, res.Code, "stdout: %s\nstderr: %s", res.Stdout, res.Stderr)
	assert.Contains(t, res.Stdout, "upload status: completed")

	var hist historyOutput
	decode(t, env.Run(t, "--json", "history"), &hist)
	require.Len(t, hist.Uploads, 1)
	assert.Equal(t, "completed", hist.Uploads[0].Status)
}

func TestE2E_PutFailures(t *testing.T) {
	env := startMock(t, MockConfig{})

	t.Run("no files", func(t *testing.T) {
		res := env.Run(t, "put", t.TempDir())
		assert.Equal(t, 5, res.Code)
		assert.Contains(t, res.Stdout, "No files found")
	})

	t.Run("only ignored files", func(t *testing.T) {
		dir := writeFiles(t, t.TempDir(), map[string]int{".DS_Store": 10})
		res := env.Run(t, "put", dir)
		assert.Equal(t, 5, res.Code)
		assert.Contains(t, res.Stdout, "No files found (1 file ignored)")
	})

	t.Run("invalid names", func(t *testing.T) {
		dir := writeFiles(t, t.TempDir(), map[string]int{"ok.txt": 10, "bad:name.txt": 10})
		res := env.Run(t, "put", dir)
		assert.Equal(t, 4, res.Code)
		assert.Contains(t, res.Stdout, "There were errors:")
		assert.Contains(t, res.Stdout, "bad:name.txt: restricted characters")
	})

	t.Run("dry run uploads nothing", func(t *testing.T) {
		dir := writeFiles(t, t.TempDir(), map[string]int{"a.txt": 10})
		res := env.Run(t, "put", "--dry-run", dir)
		require.Equal(t, 0, res.Code, res.Stderr)
		assert.Contains(t, res.Stdout, "a.txt")

		var archives archivesOutput
		decode(t, env.Run(t, "--json", "list"), &archives)
		assert.Empty(t, archives.Archives)
	})

	t.Run("wrong secret", func(t *testing.T) {
		bad := *env
		bad.Secret = "nope"
		dir := writeFiles(t, t.TempDir(), map[string]int{"a.txt": 10})
		res := bad.Run(t, "put", dir)
		assert.Equal(t, 2, res.Code)
	})
}

// TestE2E_ProcessingError checks that a failed archive exits with the
// service status.
func TestE2E_ProcessingError(t *testing.T) {
	env := startMock(t, MockConfig{FailProcessing: true})
	dir := writeFiles(t, t.TempDir(), map[string]int{"a.txt": 10})

	res := env.Run(t, "put", dir)
	assert.Equal(t, 2, res.Code)
	assert.Contains(t, res.Stdout, "upload status: error")
}

// TestE2E_MissingObject removes a transferred object before processing so
// the service rejects the upload.
func TestE2E_MissingObject(t *testing.T) {
	env := startMock(t, MockConfig{ProcessingPolls: 5})
	dir := writeFiles(t, t.TempDir(), map[string]int{"a.txt": 10})

	var up uploadOutput
	decode(t, env.Run(t, "--json", "put", "--dont-wait", dir), &up)

	require.NoError(t, os.RemoveAll(env.Objects))
	require.NoError(t, os.MkdirAll(env.Objects, 0o750))

	res := env.Run(t, "wait", up.ID)
	assert.Equal(t, 2, res.Code)
	assert.Contains(t, res.Stdout, "upload status: error")
}

func TestE2E_NoCredentials(t *testing.T) {
	env := startMock(t, MockConfig{})
	none := *env
	none.Key, none.Secret = "", ""

	dir := writeFiles(t, t.TempDir(), map[string]int{"a.txt": 10})
	res := none.Run(t, "put", dir)
	assert.Equal(t, 1, res.Code)
	assert.Contains(t, res.Stderr, "bgst settings")
	assert.NoFileExists(t, filepath.Join(env.ConfigRoot, "config.yaml"))
}
