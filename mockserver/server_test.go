package mockserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/blobstore"
	"github.com/sagarc03/bigstash/manifest"
	"github.com/sagarc03/bigstash/mockserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "AHBFEXAMPLE"
	testSecret = "12039898FADEXAMPLE"
)

func startServer(t *testing.T, cfg mockserver.Config) (*mockserver.Server, *httptest.Server) {
	t.Helper()

	if cfg.Keys == nil {
		cfg.Keys = map[string]string{testKey: testSecret}
	}
	srv := mockserver.New(cfg)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func newClient(t *testing.T, ts *httptest.Server, key, secret string) *bigstash.Client {
	t.Helper()

	c, err := bigstash.New(&bigstash.Config{BaseURL: ts.URL + "/api/v1/", Key: key, Secret: secret})
	require.NoError(t, err)
	return c
}

func buildManifest(t *testing.T, files map[string]string) *manifest.Manifest {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "x")
	paths := make([]string, 0, len(files))
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
		paths = append(paths, p)
	}

	res, err := manifest.FromPaths(context.Background(), paths, manifest.Options{})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	return res.Manifest
}

func TestServer_Auth(t *testing.T) {
	_, ts := startServer(t, mockserver.Config{})

	t.Run("unsigned", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong secret", func(t *testing.T) {
		c := newClient(t, ts, testKey, "not-the-secret")
		_, err := c.Root(context.Background())

		var denied *bigstash.AccessDeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, http.StatusForbidden, denied.StatusCode())
	})

	t.Run("signed", func(t *testing.T) {
		c := newClient(t, ts, testKey, testSecret)
		root, err := c.Root(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ts.URL+"/api/v1/archives/", root.Resources["archives"])
	})
}

func TestServer_Tokens(t *testing.T) {
	ctx := context.Background()
	srv, ts := startServer(t, mockserver.Config{
		Users: map[string]string{"user@example.com": "hunter2"},
	})

	auth, err := bigstash.NewAuthClient(ts.URL + "/api/v1/")
	require.NoError(t, err)

	_, err = auth.GetAPIKey(ctx, "user@example.com", "wrong", "")
	var denied *bigstash.AccessDeniedError
	require.ErrorAs(t, err, &denied)

	token, err := auth.GetAPIKey(ctx, "user@example.com", "hunter2", "laptop")
	require.NoError(t, err)
	assert.NotEmpty(t, token.Key)
	assert.NotEmpty(t, token.Secret)
	assert.Equal(t, 2, srv.Accounts().Keys())
	owner, ok := srv.Accounts().Owner(token.Key)
	assert.True(t, ok)
	assert.Equal(t, "user@example.com", owner)

	c := newClient(t, ts, token.Key, token.Secret)
	_, err = c.GetUser(ctx)
	require.NoError(t, err)

	require.NoError(t, c.DestroyAPIKey(ctx, token.ID()))
	assert.Equal(t, 1, srv.Accounts().Keys())

	_, err = newClient(t, ts, token.Key, token.Secret).GetUser(ctx)
	require.ErrorAs(t, err, &denied)
}

func TestServer_ArchivesPagination(t *testing.T) {
	ctx := context.Background()
	_, ts := startServer(t, mockserver.Config{PageSize: 10})
	c := newClient(t, ts, testKey, testSecret)

	for i := range 25 {
		_, err := c.CreateArchive(ctx, "archive-"+string(rune('a'+i)), int64(i))
		require.NoError(t, err)
	}

	list, err := c.GetArchives(ctx)
	require.NoError(t, err)

	all, err := list.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 25)
	assert.Equal(t, 25, list.Count())
	assert.Equal(t, "archive-a", all[0].Title)
	assert.Equal(t, "archive-y", all[24].Title)

	notifications, err := c.GetNotifications(ctx)
	require.NoError(t, err)
	first, err := notifications.Take(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "created archive archive-y", first[0].Verb)
}

func TestServer_InvalidPage(t *testing.T) {
	_, ts := startServer(t, mockserver.Config{})
	c := newClient(t, ts, testKey, testSecret)

	resp, err := c.Session().Get(context.Background(), "archives/?page=3", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_UploadLifecycle(t *testing.T) {
	ctx := context.Background()
	_, ts := startServer(t, mockserver.Config{ProcessingPolls: 2})
	c := newClient(t, ts, testKey, testSecret)

	m := buildManifest(t, map[string]string{"a.txt": "hello"})

	archive, err := c.CreateArchive(ctx, m.Title(), m.Size())
	require.NoError(t, err)
	assert.Equal(t, bigstash.StatusUploading, archive.Status)

	up, err := c.CreateUpload(ctx, archive, m)
	require.NoError(t, err)
	require.NotNil(t, up.S3)
	assert.Equal(t, mockserver.DefaultBucket, up.S3.Bucket)
	assert.Equal(t, "uploads/"+up.ID(), up.S3.Prefix)
	assert.Equal(t, bigstash.StatusPending, up.Status)

	require.NoError(t, c.UpdateUploadStatus(ctx, up, bigstash.StatusUploaded))
	assert.Equal(t, bigstash.StatusUploaded, up.Status)
	assert.NotEmpty(t, up.Meta.LastModified)

	checking, err := c.RefreshUploadStatus(ctx, up)
	require.NoError(t, err)
	assert.Equal(t, bigstash.StatusChecking, checking.Status)

	done, err := c.RefreshUploadStatus(ctx, checking)
	require.NoError(t, err)
	assert.Equal(t, bigstash.StatusCompleted, done.Status)
	assert.Equal(t, bigstash.StatusCompleted, done.Archive.Status)
	assert.NotEmpty(t, done.Archive.Checksum)

	again, err := c.RefreshUploadStatus(ctx, done)
	require.NoError(t, err)
	assert.Same(t, done, again, "not modified keeps the upload")

	files, err := done.Archive.Files.All(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].Path)
	assert.Equal(t, int64(5), files[0].Size)

	err = c.CancelUpload(ctx, up.ID())
	assert.ErrorIs(t, err, bigstash.ErrConflict)
}

func TestServer_UploadWithoutArchive(t *testing.T) {
	ctx := context.Background()
	_, ts := startServer(t, mockserver.Config{})
	c := newClient(t, ts, testKey, testSecret)

	m := buildManifest(t, map[string]string{"a.txt": "a", "b.txt": "bb"})

	up, err := c.CreateUpload(ctx, nil, m)
	require.NoError(t, err)
	require.NotNil(t, up.Archive)
	assert.Equal(t, "x", up.Archive.Title)
	assert.Equal(t, int64(3), up.Archive.Size)
}

func TestServer_UploadCredentials(t *testing.T) {
	ctx := context.Background()
	_, ts := startServer(t, mockserver.Config{})
	c := newClient(t, ts, testKey, testSecret)

	m := buildManifest(t, map[string]string{"a.txt": "a"})

	seen := make(map[string]bool)
	for range 3 {
		up, err := c.CreateUpload(ctx, nil, m)
		require.NoError(t, err)
		require.NotNil(t, up.S3)

		assert.Len(t, up.S3.TokenAccessKey, 20)
		assert.Len(t, up.S3.TokenSecretKey, 40)
		assert.Len(t, up.S3.TokenSession, 64)
		assert.Regexp(t, `^[0-9A-F]+$`, up.S3.TokenSession)
		assert.False(t, seen[up.S3.TokenSecretKey])
		seen[up.S3.TokenSecretKey] = true
	}
}

func TestServer_RejectedUploadKeepsServing(t *testing.T) {
	ctx := context.Background()
	_, ts := startServer(t, mockserver.Config{ProcessingPolls: 1})
	c := newClient(t, ts, testKey, testSecret)

	m := buildManifest(t, map[string]string{"a.txt": "a"})

	archive, err := c.CreateArchive(ctx, m.Title(), m.Size())
	require.NoError(t, err)
	up, err := c.CreateUpload(ctx, archive, m)
	require.NoError(t, err)
	require.NoError(t, c.UpdateUploadStatus(ctx, up, bigstash.StatusUploaded))
	done, err := c.RefreshUploadStatus(ctx, up)
	require.NoError(t, err)
	require.Equal(t, bigstash.StatusCompleted, done.Status)

	_, err = c.CreateUpload(ctx, done.Archive, m)
	require.Error(t, err)

	listCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	list, err := c.GetUploads(listCtx)
	require.NoError(t, err)
	uploads, err := list.All(listCtx)
	require.NoError(t, err)
	assert.Len(t, uploads, 1)
}

func TestServer_ProcessingChecksObjects(t *testing.T) {
	ctx := context.Background()

	store, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, ts := startServer(t, mockserver.Config{ProcessingPolls: 1, Objects: store})
	c := newClient(t, ts, testKey, testSecret)

	run := func(t *testing.T, send bool) *bigstash.Upload {
		t.Helper()

		m := buildManifest(t, map[string]string{"a.txt": "hello"})
		up, err := c.CreateUpload(ctx, nil, m)
		require.NoError(t, err)

		if send {
			for _, e := range m.Entries() {
				err := store.Upload(ctx, blobstore.Request{
					LocalPath: e.OriginalPath,
					Bucket:    up.S3.Bucket,
					Key:       path.Join(up.S3.Prefix, e.Path),
				})
				require.NoError(t, err)
			}
		}

		require.NoError(t, c.UpdateUploadStatus(ctx, up, bigstash.StatusUploaded))
		final, err := c.RefreshUploadStatus(ctx, up)
		require.NoError(t, err)
		return final
	}

	t.Run("objects present", func(t *testing.T) {
		final := run(t, true)
		assert.Equal(t, bigstash.StatusCompleted, final.Status)
	})

	t.Run("objects missing", func(t *testing.T) {
		final := run(t, false)
		assert.Equal(t, bigstash.StatusError, final.Status)
		assert.Contains(t, final.Comment, "missing object")
	})
}

func TestServer_FailProcessing(t *testing.T) {
	ctx := context.Background()
	_, ts := startServer(t, mockserver.Config{ProcessingPolls: 1, FailProcessing: true})
	c := newClient(t, ts, testKey, testSecret)

	up, err := c.CreateUpload(ctx, nil, buildManifest(t, map[string]string{"a.txt": "a"}))
	require.NoError(t, err)
	require.NoError(t, c.UpdateUploadStatus(ctx, up, bigstash.StatusUploaded))

	final, err := c.RefreshUploadStatus(ctx, up)
	require.NoError(t, err)
	assert.Equal(t, bigstash.StatusError, final.Status)
}

func TestServer_PatchRejectsInvalidStatus(t *testing.T) {
	ctx := context.Background()
	_, ts := startServer(t, mockserver.Config{})
	c := newClient(t, ts, testKey, testSecret)

	up, err := c.CreateUpload(ctx, nil, buildManifest(t, map[string]string{"a.txt": "a"}))
	require.NoError(t, err)

	err = c.UpdateUploadStatus(ctx, up, bigstash.StatusCompleted)

	var se *bigstash.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Message, "Cannot change status")
}

func TestServer_CancelUpload(t *testing.T) {
	ctx := context.Background()
	_, ts := startServer(t, mockserver.Config{})
	c := newClient(t, ts, testKey, testSecret)

	up, err := c.CreateUpload(ctx, nil, buildManifest(t, map[string]string{"a.txt": "a"}))
	require.NoError(t, err)

	require.NoError(t, c.CancelUpload(ctx, up.ID()))

	_, err = c.GetUpload(ctx, up.ID())
	assert.ErrorIs(t, err, bigstash.ErrNotFound)
}

func TestServer_User(t *testing.T) {
	ctx := context.Background()
	_, ts := startServer(t, mockserver.Config{PageSize: 2})
	c := newClient(t, ts, testKey, testSecret)

	for _, title := range []string{"one", "two", "three"} {
		_, err := c.CreateArchive(ctx, title, 1)
		require.NoError(t, err)
	}

	user, err := c.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, int64(1<<40), user.Quota.Size)

	require.NotNil(t, user.Archives)
	assert.Len(t, user.Archives.Known(), 2)
	assert.False(t, user.Archives.Complete())

	all, err := user.Archives.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestServer_CORS(t *testing.T) {
	_, ts := startServer(t, mockserver.Config{
		CORS: mockserver.CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
		},
	})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := mockserver.Config{Prefix: "api/v2/"}.WithDefaults()

	assert.Equal(t, "/api/v2", cfg.Prefix)
	assert.Equal(t, mockserver.DefaultPageSize, cfg.PageSize)
	assert.Equal(t, mockserver.DefaultProcessingPolls, cfg.ProcessingPolls)
	assert.Equal(t, mockserver.DefaultBucket, cfg.Bucket)
	assert.WithinDuration(t, time.Now(), cfg.Now(), time.Minute)
}
