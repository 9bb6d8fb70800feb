package bigstash

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Known archive statuses. The service may report others.
const (
	StatusUploading      = "uploading"
	StatusUploadingError = "uploading_error"
	StatusChecking       = "checking"
	StatusChecked        = "checked"
	StatusUploaded       = "uploaded"
	StatusError          = "error"
	StatusCompleted      = "completed"
	StatusPending        = "pending"
)

// IsTerminalStatus reports whether an upload status ends polling.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusError
}

// Archive is a stored set of files.
type Archive struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	Status    string    `json:"status"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	Created   time.Time `json:"created"`
	Title     string    `json:"title"`
	UploadURL string    `json:"upload"`
	FilesURL  string    `json:"files"`

	// Files lists the archived files. It is nil when the service did not
	// report a files URL.
	Files *List[File] `json:"-"`

	Meta  Metadata                   `json:"-"`
	Extra map[string]json.RawMessage `json:"-"`
}

var archiveFields = jsonFieldNames(Archive{})

// UnmarshalJSON decodes onto the existing value so that a partial body
// merges into it.
func (a *Archive) UnmarshalJSON(data []byte) error {
	type plain Archive
	if err := json.Unmarshal(data, (*plain)(a)); err != nil {
		return err
	}
	return mergeExtra(&a.Extra, data, archiveFields)
}

// ID returns the numeric part of the archive key.
func (a *Archive) ID() string {
	id, _, _ := strings.Cut(a.Key, "-")
	return id
}

// BucketToken holds the temporary object storage credentials issued for a
// single upload. It is never persisted.
type BucketToken struct {
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	TokenAccessKey  string `json:"token_access_key"`
	TokenSecretKey  string `json:"token_secret_key"`
	TokenSession    string `json:"token_session"`
	TokenExpiration string `json:"token_expiration"`
	TokenUID        string `json:"token_uid"`
}

// String hides the credentials.
func (t BucketToken) String() string {
	return fmt.Sprintf("BucketToken{region=%s bucket=%s prefix=%s access_key=%s}",
		t.Region, t.Bucket, t.Prefix, maskToken(t.TokenAccessKey))
}

func maskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Upload is one transfer of files into an archive.
type Upload struct {
	URL     string       `json:"url"`
	Status  string       `json:"status"`
	Comment string       `json:"comment"`
	Created time.Time    `json:"created"`
	S3      *BucketToken `json:"s3,omitempty"`

	// ArchiveURL is the archive reference reported by the service.
	ArchiveURL string `json:"-"`
	// Archive is resolved explicitly from ArchiveURL by the client.
	Archive *Archive `json:"-"`

	Meta  Metadata                   `json:"-"`
	Extra map[string]json.RawMessage `json:"-"`
}

var uploadFields = append(jsonFieldNames(Upload{}), "archive")

// UnmarshalJSON decodes onto the existing value. The archive field may be
// a URL or an embedded object; only its URL is kept.
func (u *Upload) UnmarshalJSON(data []byte) error {
	type plain Upload
	aux := struct {
		*plain
		Archive json.RawMessage `json:"archive"`
	}{plain: (*plain)(u)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.Archive) > 0 && string(aux.Archive) != "null" {
		ref, err := resourceURL(aux.Archive)
		if err != nil {
			return fmt.Errorf("upload archive: %w", err)
		}
		u.ArchiveURL = ref
	}

	return mergeExtra(&u.Extra, data, uploadFields)
}

// ID returns the trailing path segment of the upload URL.
func (u *Upload) ID() string {
	return lastSegment(u.URL)
}

// resourceURL accepts either a JSON string or an object with a url field.
func resourceURL(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	return obj.URL, nil
}

// Quota is the account storage allowance in bytes.
type Quota struct {
	Size int64 `json:"size"`
	Used int64 `json:"used"`
}

// User is the account the API key belongs to.
type User struct {
	URL         string            `json:"url"`
	ID          int64             `json:"id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"displayname"`
	DateJoined  time.Time         `json:"date_joined"`
	Quota       Quota             `json:"quota"`
	Avatar      map[string]string `json:"avatar,omitempty"`

	// Archives starts with the page embedded in the user resource.
	Archives *List[Archive] `json:"-"`

	archivesPage *page

	Meta  Metadata                   `json:"-"`
	Extra map[string]json.RawMessage `json:"-"`
}

var userFields = append(jsonFieldNames(User{}), "archives")

// UnmarshalJSON decodes the user and keeps the embedded archives page for
// the client to bind.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	aux := struct {
		*plain
		Archives *page `json:"archives"`
	}{plain: (*plain)(u)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Archives != nil {
		u.archivesPage = aux.Archives
	}

	return mergeExtra(&u.Extra, data, userFields)
}

// Notification is an account event.
type Notification struct {
	URL     string    `json:"url,omitempty"`
	ID      int64     `json:"id"`
	Created time.Time `json:"created"`
	Status  string    `json:"status"`
	Verb    string    `json:"verb"`

	Meta  Metadata                   `json:"-"`
	Extra map[string]json.RawMessage `json:"-"`
}

var notificationFields = jsonFieldNames(Notification{})

// UnmarshalJSON decodes onto the existing value.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type plain Notification
	if err := json.Unmarshal(data, (*plain)(n)); err != nil {
		return err
	}
	return mergeExtra(&n.Extra, data, notificationFields)
}

// File is a file stored in an archive.
type File struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	MD5          string    `json:"md5"`
	LastModified Timestamp `json:"last_modified"`

	Meta  Metadata                   `json:"-"`
	Extra map[string]json.RawMessage `json:"-"`
}

var fileFields = jsonFieldNames(File{})

// UnmarshalJSON decodes onto the existing value.
func (f *File) UnmarshalJSON(data []byte) error {
	type plain File
	if err := json.Unmarshal(data, (*plain)(f)); err != nil {
		return err
	}
	return mergeExtra(&f.Extra, data, fileFields)
}

// Timestamp is a point in time sent as seconds since the epoch. RFC 3339
// strings are accepted as well.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON decodes an epoch number or an RFC 3339 string into UTC.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err == nil {
		whole := int64(secs)
		t.Time = time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = parsed.UTC()
	return nil
}

// MarshalJSON encodes the time as epoch seconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(t.UnixNano()) / 1e9)
}

// APIRoot maps top level resource names to their URLs.
type APIRoot struct {
	Resources map[string]string
	Meta      Metadata
}

// UnmarshalJSON keeps string valued entries of the root document.
func (r *APIRoot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Resources = make(map[string]string, len(raw))
	for name, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			r.Resources[name] = s
		}
	}
	return nil
}

// Token is an issued API key.
type Token struct {
	URL    string `json:"url" yaml:"url"`
	Key    string `json:"key" yaml:"key"`
	Secret string `json:"secret" yaml:"secret"`
}

// ID returns the token id, the last path segment of its URL.
func (t Token) ID() string {
	return lastSegment(t.URL)
}

func lastSegment(u string) string {
	parts := strings.Split(strings.TrimRight(u, "/"), "/")
	return parts[len(parts)-1]
}

// mergeExtra adds the fields of data not in known to *extra.
func mergeExtra(extra *map[string]json.RawMessage, data []byte, known []string) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for _, name := range known {
		delete(raw, name)
	}
	if len(raw) == 0 {
		return nil
	}

	if *extra == nil {
		*extra = make(map[string]json.RawMessage, len(raw))
	}
	for k, v := range raw {
		(*extra)[k] = v
	}
	return nil
}

// jsonFieldNames lists the json tag names of a struct value's fields.
func jsonFieldNames(v any) []string {
	t := reflect.TypeOf(v)
	names := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		names = append(names, name)
	}
	return names
}
