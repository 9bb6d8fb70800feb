package clientcli

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/disiqueira/gotree/v3"
	"github.com/dustin/go-humanize"

	"github.com/sagarc03/bigstash/history"
	"github.com/sagarc03/bigstash/manifest"
	"github.com/sagarc03/bigstash/upload"
)

const timeLayout = "2006-01-02 15:04:05"

// Formatter formats results for output.
type Formatter interface {
	FormatArchives(w io.Writer, archives []ArchiveInfo) error
	FormatArchive(w io.Writer, archive ArchiveInfo) error
	FormatFiles(w io.Writer, files []FileInfo, tree bool) error
	FormatNotifications(w io.Writer, notifications []NotificationInfo) error
	FormatUser(w io.Writer, user *UserInfo) error
	FormatUpload(w io.Writer, up UploadInfo) error
	FormatHistory(w io.Writer, entries []history.Entry) error
	FormatManifest(w io.Writer, m *manifest.Manifest) error
	FormatValidation(w io.Writer, errs []manifest.ValidationError) error
	FormatProfile(w io.Writer, profile Profile, showSecrets bool) error
	FormatError(w io.Writer, err error) error
}

// NewFormatter returns the appropriate formatter based on flags.
func NewFormatter(jsonOutput, quiet bool) Formatter {
	if jsonOutput {
		return &JSONFormatter{}
	}
	return &HumanFormatter{Quiet: quiet}
}

// HumanFormatter outputs human-readable text.
type HumanFormatter struct {
	Quiet bool
}

// FormatArchives formats archives as a table.
func (f *HumanFormatter) FormatArchives(w io.Writer, archives []ArchiveInfo) error {
	if len(archives) == 0 {
		_, _ = fmt.Fprintln(w, "No archives found")
		return nil
	}

	maxTitleLen := 5 // "TITLE"
	for i := range archives {
		maxTitleLen = max(maxTitleLen, len(archives[i].Title))
	}
	maxTitleLen = min(maxTitleLen, 40)

	_, _ = fmt.Fprintf(w, "%-8s  %-*s  %-16s  %10s  %s\n", "ID", maxTitleLen, "TITLE", "STATUS", "SIZE", "CREATED")
	_, _ = fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
		strings.Repeat("-", 8), strings.Repeat("-", maxTitleLen), strings.Repeat("-", 16), strings.Repeat("-", 10), strings.Repeat("-", 19))

	var total int64
	for i := range archives {
		a := &archives[i]
		_, _ = fmt.Fprintf(w, "%-8s  %-*s  %-16s  %10s  %s\n",
			a.ID,
			maxTitleLen, truncate(a.Title, maxTitleLen),
			a.Status,
			formatSize(a.Size),
			a.Created.Local().Format(timeLayout),
		)
		total += a.Size
	}

	if !f.Quiet {
		_, _ = fmt.Fprintf(w, "\n%d archive(s) (%s total)\n", len(archives), formatSize(total))
	}
	return nil
}

// FormatArchive formats a single archive as key value lines.
func (f *HumanFormatter) FormatArchive(w io.Writer, a ArchiveInfo) error {
	_, _ = fmt.Fprintf(w, "Key:      %s\n", a.Key)
	_, _ = fmt.Fprintf(w, "Title:    %s\n", a.Title)
	_, _ = fmt.Fprintf(w, "Status:   %s\n", a.Status)
	_, _ = fmt.Fprintf(w, "Size:     %s\n", formatSize(a.Size))
	_, _ = fmt.Fprintf(w, "Created:  %s\n", a.Created.Local().Format(timeLayout))
	if a.Checksum != "" {
		_, _ = fmt.Fprintf(w, "Checksum: %s\n", a.Checksum)
	}
	return nil
}

// FormatFiles formats archive files as a table or, with tree, as a
// directory tree.
func (f *HumanFormatter) FormatFiles(w io.Writer, files []FileInfo, tree bool) error {
	if len(files) == 0 {
		_, _ = fmt.Fprintln(w, "No files found")
		return nil
	}

	var total int64
	for i := range files {
		total += files[i].Size
	}

	if tree {
		t := newFileTree(".")
		for i := range files {
			t.insert(files[i].Path, formatSize(files[i].Size))
		}
		_, _ = fmt.Fprint(w, t.render())
	} else {
		for i := range files {
			_, _ = fmt.Fprintf(w, "%10s  %s\n", formatSize(files[i].Size), files[i].Path)
		}
	}

	if !f.Quiet {
		_, _ = fmt.Fprintf(w, "\n%d file(s) (%s total)\n", len(files), formatSize(total))
	}
	return nil
}

// FormatNotifications formats notifications, one per line.
func (f *HumanFormatter) FormatNotifications(w io.Writer, notifications []NotificationInfo) error {
	if len(notifications) == 0 {
		_, _ = fmt.Fprintln(w, "No notifications")
		return nil
	}
	for i := range notifications {
		n := &notifications[i]
		_, _ = fmt.Fprintf(w, "%s  %s (%s)\n", n.Created.Local().Format(timeLayout), n.Verb, humanize.Time(n.Created))
	}
	return nil
}

// FormatUser formats the account and its quota.
func (f *HumanFormatter) FormatUser(w io.Writer, u *UserInfo) error {
	_, _ = fmt.Fprintf(w, "Email:   %s\n", u.Email)
	if u.DisplayName != "" {
		_, _ = fmt.Fprintf(w, "Name:    %s\n", u.DisplayName)
	}
	_, _ = fmt.Fprintf(w, "Joined:  %s\n", u.DateJoined.Local().Format(time.DateOnly))
	_, _ = fmt.Fprintf(w, "Quota:   %s of %s used\n", formatSize(u.QuotaUsed), formatSize(u.QuotaSize))

	if !f.Quiet && len(u.Archives) > 0 {
		_, _ = fmt.Fprintln(w)
		return f.FormatArchives(w, u.Archives)
	}
	return nil
}

// FormatUpload formats the final state of an upload.
func (f *HumanFormatter) FormatUpload(w io.Writer, up UploadInfo) error {
	_, _ = fmt.Fprintf(w, "upload status: %s\n", up.Status)
	if f.Quiet {
		return nil
	}
	if up.Comment != "" {
		_, _ = fmt.Fprintf(w, "comment: %s\n", up.Comment)
	}
	if up.Archive != nil {
		_, _ = fmt.Fprintf(w, "archive: %s (%s)\n", up.Archive.Key, up.Archive.Status)
	}
	return nil
}

// FormatHistory formats locally recorded uploads.
func (f *HumanFormatter) FormatHistory(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No uploads recorded")
		return nil
	}

	_, _ = fmt.Fprintf(w, "%-8s  %-16s  %-12s  %6s  %10s  %s\n", "UPLOAD", "ARCHIVE", "STATUS", "FILES", "SIZE", "UPDATED")
	for i := range entries {
		e := &entries[i]
		_, _ = fmt.Fprintf(w, "%-8s  %-16s  %-12s  %6d  %10s  %s\n",
			e.ID,
			truncate(e.ArchiveKey, 16),
			e.Status,
			e.FileCount,
			formatSize(e.SizeBytes),
			e.UpdatedAt.Local().Format(timeLayout),
		)
	}
	return nil
}

// FormatManifest formats the files selected for upload as a tree.
func (f *HumanFormatter) FormatManifest(w io.Writer, m *manifest.Manifest) error {
	root := m.Base()
	if root == "" {
		root = "/"
	}

	t := newFileTree(root)
	for _, e := range m.Entries() {
		t.insert(e.Path, formatSize(e.Size))
	}

	_, _ = fmt.Fprint(w, t.render())
	_, _ = fmt.Fprintf(w, "\n%q: %d file(s) (%s total)\n", m.Title(), m.Len(), formatSize(m.Size()))
	return nil
}

// FormatValidation lists paths rejected while building a manifest.
func (f *HumanFormatter) FormatValidation(w io.Writer, errs []manifest.ValidationError) error {
	_, _ = fmt.Fprintln(w, "There were errors:")
	for _, e := range errs {
		_, _ = fmt.Fprintf(w, "%s: %s\n", e.Path, e.Reason)
	}
	return nil
}

// FormatProfile formats a saved profile.
func (f *HumanFormatter) FormatProfile(w io.Writer, profile Profile, showSecrets bool) error {
	_, _ = fmt.Fprintf(w, "Name:      %s", profile.Name)
	if profile.Default {
		_, _ = fmt.Fprintf(w, " (default)")
	}
	_, _ = fmt.Fprintln(w)
	if profile.BaseURL != "" {
		_, _ = fmt.Fprintf(w, "Base URL:  %s\n", profile.BaseURL)
	}
	_, _ = fmt.Fprintf(w, "Key:       %s\n", maskSecret(profile.Key, showSecrets))
	_, _ = fmt.Fprintf(w, "Secret:    %s\n", maskSecret(profile.Secret, showSecrets))
	return nil
}

// FormatError formats an error as human-readable text.
func (f *HumanFormatter) FormatError(w io.Writer, err error) error {
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return nil
}

// JSONFormatter outputs JSON.
type JSONFormatter struct{}

// FormatArchives formats archives as JSON.
func (f *JSONFormatter) FormatArchives(w io.Writer, archives []ArchiveInfo) error {
	return writeJSON(w, struct {
		Archives []ArchiveInfo `json:"archives"`
	}{Archives: archives})
}

// FormatArchive formats a single archive as JSON.
func (f *JSONFormatter) FormatArchive(w io.Writer, a ArchiveInfo) error {
	return writeJSON(w, a)
}

// FormatFiles formats archive files as JSON. The tree flag is ignored.
func (f *JSONFormatter) FormatFiles(w io.Writer, files []FileInfo, _ bool) error {
	return writeJSON(w, struct {
		Files []FileInfo `json:"files"`
	}{Files: files})
}

// FormatNotifications formats notifications as JSON.
func (f *JSONFormatter) FormatNotifications(w io.Writer, notifications []NotificationInfo) error {
	return writeJSON(w, struct {
		Notifications []NotificationInfo `json:"notifications"`
	}{Notifications: notifications})
}

// FormatUser formats the account as JSON.
func (f *JSONFormatter) FormatUser(w io.Writer, u *UserInfo) error {
	return writeJSON(w, u)
}

// FormatUpload formats an upload as JSON.
func (f *JSONFormatter) FormatUpload(w io.Writer, up UploadInfo) error {
	return writeJSON(w, up)
}

// FormatHistory formats locally recorded uploads as JSON.
func (f *JSONFormatter) FormatHistory(w io.Writer, entries []history.Entry) error {
	type jsonEntry struct {
		ID         string `json:"id"`
		UploadURL  string `json:"upload_url"`
		ArchiveURL string `json:"archive_url,omitempty"`
		ArchiveKey string `json:"archive_key,omitempty"`
		Title      string `json:"title"`
		Size       int64  `json:"size_bytes"`
		FileCount  int    `json:"file_count"`
		Status     string `json:"status"`
		CreatedAt  string `json:"created_at"`
		UpdatedAt  string `json:"updated_at"`
	}

	output := struct {
		Uploads []jsonEntry `json:"uploads"`
	}{Uploads: make([]jsonEntry, len(entries))}

	for i := range entries {
		e := &entries[i]
		output.Uploads[i] = jsonEntry{
			ID:         e.ID,
			UploadURL:  e.UploadURL,
			ArchiveURL: e.ArchiveURL,
			ArchiveKey: e.ArchiveKey,
			Title:      e.Title,
			Size:       e.SizeBytes,
			FileCount:  e.FileCount,
			Status:     e.Status,
			CreatedAt:  e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt:  e.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	return writeJSON(w, output)
}

// FormatManifest writes the manifest body as the service receives it.
func (f *JSONFormatter) FormatManifest(w io.Writer, m *manifest.Manifest) error {
	return writeJSON(w, m)
}

// FormatValidation formats rejected paths as JSON.
func (f *JSONFormatter) FormatValidation(w io.Writer, errs []manifest.ValidationError) error {
	type jsonError struct {
		Path   string `json:"path"`
		Reason string `json:"reason"`
	}

	output := struct {
		Errors []jsonError `json:"errors"`
	}{Errors: make([]jsonError, len(errs))}

	for i, e := range errs {
		output.Errors[i] = jsonError{Path: e.Path, Reason: e.Reason}
	}
	return writeJSON(w, output)
}

// FormatProfile formats a saved profile as JSON.
func (f *JSONFormatter) FormatProfile(w io.Writer, profile Profile, showSecrets bool) error {
	return writeJSON(w, struct {
		Name    string `json:"name"`
		BaseURL string `json:"base_url,omitempty"`
		Key     string `json:"key"`
		Secret  string `json:"secret"`
		Default bool   `json:"default"`
	}{
		Name:    profile.Name,
		BaseURL: profile.BaseURL,
		Key:     maskSecret(profile.Key, showSecrets),
		Secret:  maskSecret(profile.Secret, showSecrets),
		Default: profile.Default,
	})
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := struct {
		Error string `json:"error"`
	}{
		Error: err.Error(),
	}
	return writeJSON(w, output)
}

// ProgressLine renders the transfer progress of one file. It starts with
// a carriage return so successive lines overwrite each other.
func ProgressLine(path string, wrote, total int64) string {
	return fmt.Sprintf("\r%s %d / %d (%.2f%%)", path, wrote, total, upload.Percent(wrote, total))
}

// writeJSON writes a value as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.Bytes(uint64(bytes))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// maskSecret masks a secret string, showing only first 4 and last 4 characters.
// If showSecrets is true, returns the original value.
// If the secret is too short, returns all asterisks.
func maskSecret(secret string, showSecrets bool) string {
	if showSecrets {
		return secret
	}
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// fileTree renders forward slash paths as a directory tree.
type fileTree struct {
	root gotree.Tree
	dirs map[string]gotree.Tree
}

func newFileTree(label string) *fileTree {
	return &fileTree{root: gotree.New(label), dirs: make(map[string]gotree.Tree)}
}

func (t *fileTree) dir(p string) gotree.Tree {
	if p == "." || p == "/" || p == "" {
		return t.root
	}
	d, ok := t.dirs[p]
	if !ok {
		d = t.dir(path.Dir(p)).Add(path.Base(p))
		t.dirs[p] = d
	}
	return d
}

func (t *fileTree) insert(p, note string) {
	t.dir(path.Dir(p)).Add(fmt.Sprintf("%s (%s)", path.Base(p), note))
}

func (t *fileTree) render() string {
	return t.root.Print()
}
