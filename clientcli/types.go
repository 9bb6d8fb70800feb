package clientcli

import (
	"time"

	"github.com/sagarc03/bigstash"
)

// ArchiveInfo is an archive as shown by the CLI.
type ArchiveInfo struct {
	ID       string    `json:"id"`
	Key      string    `json:"key"`
	Title    string    `json:"title"`
	Status   string    `json:"status"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum,omitempty"`
	Created  time.Time `json:"created"`
	URL      string    `json:"url"`
}

// FileInfo is a file stored in an archive.
type FileInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	MD5          string    `json:"md5"`
	LastModified time.Time `json:"last_modified"`
}

// NotificationInfo is an account notification.
type NotificationInfo struct {
	ID      int64     `json:"id"`
	Verb    string    `json:"verb"`
	Status  string    `json:"status,omitempty"`
	Created time.Time `json:"created"`
}

// UserInfo is the account the API key belongs to.
type UserInfo struct {
	Email       string        `json:"email"`
	DisplayName string        `json:"displayname"`
	DateJoined  time.Time     `json:"date_joined"`
	QuotaSize   int64         `json:"quota_size"`
	QuotaUsed   int64         `json:"quota_used"`
	Archives    []ArchiveInfo `json:"archives"`
}

// UploadInfo is an upload as shown by the CLI.
type UploadInfo struct {
	ID      string       `json:"id"`
	URL     string       `json:"url"`
	Status  string       `json:"status"`
	Comment string       `json:"comment,omitempty"`
	Created time.Time    `json:"created"`
	Archive *ArchiveInfo `json:"archive,omitempty"`
}

// NewArchiveInfo converts a service archive.
func NewArchiveInfo(a *bigstash.Archive) ArchiveInfo {
	return ArchiveInfo{
		ID:       a.ID(),
		Key:      a.Key,
		Title:    a.Title,
		Status:   a.Status,
		Size:     a.Size,
		Checksum: a.Checksum,
		Created:  a.Created,
		URL:      a.URL,
	}
}

// NewUploadInfo converts a service upload, including its archive when
// it is known.
func NewUploadInfo(up *bigstash.Upload) UploadInfo {
	info := UploadInfo{
		ID:      up.ID(),
		URL:     up.URL,
		Status:  up.Status,
		Comment: up.Comment,
		Created: up.Created,
	}
	if up.Archive != nil {
		a := NewArchiveInfo(up.Archive)
		info.Archive = &a
	}
	return info
}
