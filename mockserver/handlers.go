package mockserver

import (
	"context"
	"crypto/md5" //nolint:gosec // the service identifies content by MD5
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/keybackend"
)

type ctxKey struct{}

func withUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

func userFrom(ctx context.Context) string {
	user, _ := ctx.Value(ctxKey{}).(string)
	return user
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)
	WriteJSON(w, http.StatusOK, map[string]string{
		"archives":      base + "/archives/",
		"uploads":       base + "/uploads/",
		"notifications": base + "/notifications/",
		"user":          base + "/user/",
		"tokens":        base + "/tokens/",
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)

	s.mu.Lock()
	var used int64
	for _, a := range s.archives {
		if a.status == bigstash.StatusCompleted {
			used += a.size
		}
	}
	archives := s.archiveBodies(base)
	s.mu.Unlock()

	page, _ := paginate(listRequest(r, base+"/archives/"), archives, s.config.PageSize)

	WriteJSON(w, http.StatusOK, map[string]any{
		"url":         base + "/user/",
		"id":          1,
		"email":       "user@example.com",
		"displayname": "Mock User",
		"date_joined": s.joined,
		"quota": map[string]int64{
			"size": 1 << 40,
			"used": used,
		},
		"archives": page,
	})
}

// listRequest rewrites r to look like a request for the list at target,
// so that embedded pages link to the real collection.
func listRequest(r *http.Request, target string) *http.Request {
	clone := r.Clone(r.Context())
	if u, err := clone.URL.Parse(target); err == nil {
		clone.URL = u
		clone.Host = u.Host
	}
	return clone
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := make([]any, 0, len(s.notifications))
	for i := len(s.notifications) - 1; i >= 0; i-- {
		items = append(items, s.notifications[i])
	}
	s.mu.Unlock()

	s.writePage(w, r, items)
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	pair := s.accounts.Issue(userFrom(r.Context()))

	s.mu.Lock()
	s.nextID++
	t := &tokenRecord{
		id:     s.nextID,
		name:   body.Name,
		key:    pair.Key,
		secret: pair.Secret,
	}
	s.tokens[t.id] = t
	s.mu.Unlock()

	WriteJSON(w, http.StatusCreated, t.body(s.baseURL(r)))
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	t, found := s.tokens[id]
	delete(s.tokens, id)
	s.mu.Unlock()

	if !found {
		WriteError(w, http.StatusNotFound, "Not found.")
		return
	}

	s.accounts.Revoke(t.key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := s.archiveBodies(s.baseURL(r))
	s.mu.Unlock()

	s.writePage(w, r, items)
}

func (s *Server) archiveBodies(base string) []any {
	items := make([]any, 0, len(s.archives))
	for _, a := range s.archives {
		items = append(items, a.body(base))
	}
	return items
}

func (s *Server) handleCreateArchive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
		Size  int64  `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	if body.Size < 0 {
		WriteError(w, http.StatusBadRequest, "Size must be positive.")
		return
	}

	s.mu.Lock()
	a := s.createArchive(body.Title, body.Size)
	out := a.body(s.baseURL(r))
	s.mu.Unlock()

	WriteJSON(w, http.StatusCreated, out)
}

// createArchive must be called with s.mu held.
func (s *Server) createArchive(title string, size int64) *archiveRecord {
	s.nextID++
	a := &archiveRecord{
		id:      s.nextID,
		key:     archiveKey(s.nextID),
		title:   title,
		size:    size,
		status:  bigstash.StatusUploading,
		created: s.config.Now().UTC().Truncate(time.Second),
	}
	s.archives = append(s.archives, a)
	s.notify("created archive "+title, "info")
	return a
}

// notify must be called with s.mu held.
func (s *Server) notify(verb, status string) {
	s.notifications = append(s.notifications, notificationRecord{
		ID:      len(s.notifications) + 1,
		Created: s.config.Now().UTC().Truncate(time.Second),
		Status:  status,
		Verb:    verb,
	})
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	a, ok := s.findArchive(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	out := a.body(s.baseURL(r))
	s.mu.Unlock()

	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleArchiveFiles(w http.ResponseWriter, r *http.Request) {
	a, ok := s.findArchive(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	items := make([]any, 0, len(a.files))
	for _, f := range a.files {
		items = append(items, f)
	}
	s.mu.Unlock()

	s.writePage(w, r, items)
}

func (s *Server) findArchive(w http.ResponseWriter, r *http.Request) (*archiveRecord, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.archives {
		if a.id == id {
			return a, true
		}
	}

	WriteError(w, http.StatusNotFound, "Not found.")
	return nil, false
}

// handleCreateUpload serves both the archive upload URL and the uploads
// collection. The latter creates the archive from the manifest.
func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	var m manifestBody
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		WriteError(w, http.StatusBadRequest, "Malformed manifest.")
		return
	}
	if len(m.Files) == 0 {
		WriteError(w, http.StatusBadRequest, "Manifest has no files.")
		return
	}

	var archive *archiveRecord
	if chi.URLParam(r, "id") != "" {
		a, ok := s.findArchive(w, r)
		if !ok {
			return
		}
		archive = a
	}

	out, modified, ok := s.startUpload(archive, m, s.baseURL(r))
	if !ok {
		WriteError(w, http.StatusBadRequest, "Archive is not accepting uploads.")
		return
	}

	w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
	WriteJSON(w, http.StatusCreated, out)
}

// startUpload records a pending upload for archive, creating the archive
// when it is nil. It reports false when the archive is past uploading.
func (s *Server) startUpload(archive *archiveRecord, m manifestBody, base string) (uploadBody, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if archive == nil {
		archive = s.createArchive(m.Title, m.Size)
	}
	if archive.status != bigstash.StatusUploading {
		return uploadBody{}, time.Time{}, false
	}
	archive.files = m.records()

	s.nextID++
	now := s.config.Now()
	u := &uploadRecord{
		id:      s.nextID,
		archive: archive,
		status:  bigstash.StatusPending,
		created: now.UTC().Truncate(time.Second),
		token: bigstash.BucketToken{
			Region:          DefaultRegion,
			Bucket:          s.config.Bucket,
			Prefix:          fmt.Sprintf("uploads/%d", s.nextID),
			TokenAccessKey:  keybackend.NewCredential(20),
			TokenSecretKey:  keybackend.NewCredential(40),
			TokenSession:    keybackend.NewCredential(64),
			TokenExpiration: now.Add(12 * time.Hour).UTC().Format(time.RFC3339),
			TokenUID:        strconv.Itoa(s.nextID),
		},
	}
	u.touch(now)
	s.uploads = append(s.uploads, u)

	return u.body(base), u.modified, true
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)

	s.mu.Lock()
	items := make([]any, 0, len(s.uploads))
	for _, u := range s.uploads {
		items = append(items, u.body(base))
	}
	s.mu.Unlock()

	s.writePage(w, r, items)
}

func (s *Server) findUpload(w http.ResponseWriter, r *http.Request) (*uploadRecord, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.uploads {
		if u.id == id {
			return u, true
		}
	}

	WriteError(w, http.StatusNotFound, "Not found.")
	return nil, false
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	u, ok := s.findUpload(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	s.advance(u)
	out := u.body(s.baseURL(r))
	modified := u.modified
	s.mu.Unlock()

	if ims, err := http.ParseTime(r.Header.Get("If-Modified-Since")); err == nil && !modified.After(ims) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
	WriteJSON(w, http.StatusOK, out)
}

// advance moves an uploaded upload one poll closer to a terminal status.
// It must be called with s.mu held.
func (s *Server) advance(u *uploadRecord) {
	if u.status != bigstash.StatusUploaded && u.status != bigstash.StatusChecking {
		return
	}

	u.polls++
	now := s.config.Now()

	if u.polls < s.config.ProcessingPolls {
		if u.status != bigstash.StatusChecking {
			u.status = bigstash.StatusChecking
			u.archive.status = bigstash.StatusChecking
			u.touch(now)
		}
		return
	}

	if reason := s.check(u); reason != "" {
		u.status = bigstash.StatusError
		u.comment = reason
		u.archive.status = bigstash.StatusError
		s.notify("archive "+u.archive.title+" failed", "error")
	} else {
		u.status = bigstash.StatusCompleted
		u.archive.status = bigstash.StatusCompleted
		u.archive.checksum = archiveChecksum(u.archive.files)
		s.notify("archive "+u.archive.title+" completed", "success")
	}
	u.touch(now)
}

// check returns why processing fails, or "" when it succeeds.
func (s *Server) check(u *uploadRecord) string {
	if s.config.FailProcessing {
		return "processing failed"
	}
	if s.config.Objects == nil {
		return ""
	}

	for _, f := range u.archive.files {
		key := path.Join(u.token.Prefix, f.Path)
		sum, err := s.objectMD5(u.token.Bucket, key)
		if err != nil {
			return fmt.Sprintf("missing object %s", key)
		}
		if f.MD5 != "" && !strings.EqualFold(sum, f.MD5) {
			return fmt.Sprintf("checksum mismatch for %s", key)
		}
	}
	return ""
}

func (s *Server) objectMD5(bucket, key string) (string, error) {
	rc, err := s.config.Objects.Open(bucket, key)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	h := md5.New() //nolint:gosec // content digest, not a security boundary
	if _, err := io.Copy(h, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func archiveChecksum(files []fileRecord) string {
	h := md5.New() //nolint:gosec // content digest, not a security boundary
	for _, f := range files {
		_, _ = io.WriteString(h, f.Path+":"+f.MD5+"\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Server) handlePatchUpload(w http.ResponseWriter, r *http.Request) {
	u, ok := s.findUpload(w, r)
	if !ok {
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	s.mu.Lock()
	if body.Status != bigstash.StatusUploaded || u.status != bigstash.StatusPending {
		current := u.status
		s.mu.Unlock()
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Cannot change status from %s to %s.", current, body.Status))
		return
	}

	u.status = bigstash.StatusUploaded
	u.polls = 0
	u.touch(s.config.Now())
	out := u.body(s.baseURL(r))
	modified := u.modified
	s.mu.Unlock()

	w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	u, ok := s.findUpload(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if bigstash.IsTerminalStatus(u.status) {
		WriteError(w, http.StatusConflict, "Upload already processed.")
		return
	}

	for i, candidate := range s.uploads {
		if candidate == u {
			s.uploads = append(s.uploads[:i], s.uploads[i+1:]...)
			break
		}
	}
	u.archive.status = bigstash.StatusUploadingError

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, items []any) {
	page, ok := paginate(r, items, s.config.PageSize)
	if !ok {
		WriteError(w, http.StatusNotFound, "Invalid page.")
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		WriteError(w, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}
