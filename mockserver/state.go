package mockserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/bigstash"
)

type fileRecord struct {
	Path         string             `json:"path"`
	Size         int64              `json:"size"`
	MD5          string             `json:"md5"`
	LastModified bigstash.Timestamp `json:"last_modified"`
}

type archiveRecord struct {
	id       int
	key      string
	title    string
	size     int64
	status   string
	checksum string
	created  time.Time
	files    []fileRecord
}

type archiveBody struct {
	URL      string    `json:"url"`
	Key      string    `json:"key"`
	Status   string    `json:"status"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum"`
	Created  time.Time `json:"created"`
	Title    string    `json:"title"`
	Upload   string    `json:"upload"`
	Files    string    `json:"files"`
}

func (a *archiveRecord) url(base string) string {
	return fmt.Sprintf("%s/archives/%d/", base, a.id)
}

func (a *archiveRecord) body(base string) archiveBody {
	return archiveBody{
		URL:      a.url(base),
		Key:      a.key,
		Status:   a.status,
		Size:     a.size,
		Checksum: a.checksum,
		Created:  a.created,
		Title:    a.title,
		Upload:   a.url(base) + "upload/",
		Files:    a.url(base) + "files/",
	}
}

type uploadRecord struct {
	id       int
	archive  *archiveRecord
	status   string
	comment  string
	created  time.Time
	modified time.Time
	polls    int
	token    bigstash.BucketToken
}

type uploadBody struct {
	URL     string                `json:"url"`
	Status  string                `json:"status"`
	Comment string                `json:"comment"`
	Created time.Time             `json:"created"`
	Archive string                `json:"archive"`
	S3      *bigstash.BucketToken `json:"s3,omitempty"`
}

func (u *uploadRecord) url(base string) string {
	return fmt.Sprintf("%s/uploads/%d/", base, u.id)
}

func (u *uploadRecord) body(base string) uploadBody {
	b := uploadBody{
		URL:     u.url(base),
		Status:  u.status,
		Comment: u.comment,
		Created: u.created,
		Archive: u.archive.url(base),
	}
	// Credentials are only useful while files are being sent.
	if u.status == bigstash.StatusPending {
		token := u.token
		b.S3 = &token
	}
	return b
}

// touch moves the modification time forward by at least one second so
// that If-Modified-Since, which has second precision, sees every change.
func (u *uploadRecord) touch(now time.Time) {
	now = now.UTC().Truncate(time.Second)
	if !now.After(u.modified) {
		now = u.modified.Add(time.Second)
	}
	u.modified = now
}

type notificationRecord struct {
	ID      int       `json:"id"`
	URL     string    `json:"url,omitempty"`
	Created time.Time `json:"created"`
	Status  string    `json:"status"`
	Verb    string    `json:"verb"`
}

type tokenRecord struct {
	id     int
	name   string
	key    string
	secret string
}

type tokenBody struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

func (t *tokenRecord) body(base string) tokenBody {
	return tokenBody{
		URL:    fmt.Sprintf("%s/tokens/%d/", base, t.id),
		Name:   t.name,
		Key:    t.key,
		Secret: t.secret,
	}
}

// manifestBody is what clients post to create an upload.
type manifestBody struct {
	Title  string `json:"title"`
	Size   int64  `json:"size"`
	Source struct {
		Prefix string `json:"prefix"`
	} `json:"source"`
	Files []struct {
		ID           int                `json:"id"`
		Path         string             `json:"path"`
		Size         int64              `json:"size"`
		MD5          string             `json:"md5"`
		LastModified bigstash.Timestamp `json:"last_modified"`
		OriginalPath string             `json:"original_path"`
	} `json:"files"`
}

func (m manifestBody) records() []fileRecord {
	files := make([]fileRecord, 0, len(m.Files))
	for _, f := range m.Files {
		files = append(files, fileRecord{
			Path:         f.Path,
			Size:         f.Size,
			MD5:          f.MD5,
			LastModified: f.LastModified,
		})
	}
	return files
}

// archiveKey builds keys of the form "<id>-<5 upper case characters>".
func archiveKey(id int) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:5]
	return fmt.Sprintf("%d-%s", id, suffix)
}
