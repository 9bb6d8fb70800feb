package bigstash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	userDetail        = "user"
	uploadDetail      = "uploads/%s"
	archiveDetail     = "archives/%s"
	tokenDetail       = "tokens/%s"
	archivesName      = "archives"
	uploadsName       = "uploads"
	notificationsName = "notifications"
)

// GetArchives returns the archives of the account.
func (c *Client) GetArchives(ctx context.Context) (*List[Archive], error) {
	u, err := c.resourceURL(ctx, archivesName)
	if err != nil {
		return nil, err
	}
	return newList(c, c.decodeArchive, u), nil
}

// GetUploads returns the uploads of the account.
func (c *Client) GetUploads(ctx context.Context) (*List[Upload], error) {
	u, err := c.resourceURL(ctx, uploadsName)
	if err != nil {
		return nil, err
	}
	return newList(c, c.decodeUpload, u), nil
}

// GetNotifications returns the notifications of the account.
func (c *Client) GetNotifications(ctx context.Context) (*List[Notification], error) {
	u, err := c.resourceURL(ctx, notificationsName)
	if err != nil {
		return nil, err
	}
	return newList(c, decodeNotification, u), nil
}

// GetUser returns the user the API key belongs to.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var u User
	meta, err := c.getJSON(ctx, userDetail, nil, &u)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Meta = meta
	if err := c.bindUser(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetArchive returns the archive with the given id.
func (c *Client) GetArchive(ctx context.Context, id string) (*Archive, error) {
	return c.GetArchiveByURL(ctx, fmt.Sprintf(archiveDetail, id))
}

// GetArchiveByURL returns the archive at url, which may be relative to the
// base URL.
func (c *Client) GetArchiveByURL(ctx context.Context, url string) (*Archive, error) {
	var a Archive
	meta, err := c.getJSON(ctx, url, nil, &a)
	if err != nil {
		return nil, fmt.Errorf("get archive: %w", err)
	}
	a.Meta = meta
	c.bindArchive(&a)
	return &a, nil
}

// GetUpload returns the upload with the given id.
func (c *Client) GetUpload(ctx context.Context, id string) (*Upload, error) {
	return c.getUpload(ctx, fmt.Sprintf(uploadDetail, id))
}

// GetUploadByURL returns the upload at url.
func (c *Client) GetUploadByURL(ctx context.Context, url string) (*Upload, error) {
	return c.getUpload(ctx, url)
}

func (c *Client) getUpload(ctx context.Context, url string) (*Upload, error) {
	var u Upload
	meta, err := c.getJSON(ctx, url, nil, &u)
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	u.Meta = meta
	return &u, nil
}

// CreateArchive creates an empty archive with the given title and size.
func (c *Client) CreateArchive(ctx context.Context, title string, size int64) (*Archive, error) {
	u, err := c.resourceURL(ctx, archivesName)
	if err != nil {
		return nil, err
	}

	body := struct {
		Title string `json:"title"`
		Size  int64  `json:"size"`
	}{Title: title, Size: size}

	var a Archive
	meta, err := c.sendJSON(ctx, http.MethodPost, u, &RequestOptions{JSON: body}, &a)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	a.Meta = meta
	c.bindArchive(&a)
	return &a, nil
}

// CreateUpload posts manifest to the upload URL of archive. With a nil
// archive the upload is created through the uploads collection and the
// archive it reports is fetched.
func (c *Client) CreateUpload(ctx context.Context, archive *Archive, manifest json.Marshaler) (*Upload, error) {
	target := ""
	if archive != nil {
		target = archive.UploadURL
		if target == "" {
			return nil, &ServiceError{Message: fmt.Sprintf("archive %s has no upload url", archive.URL)}
		}
	} else {
		u, err := c.resourceURL(ctx, uploadsName)
		if err != nil {
			return nil, err
		}
		target = u
	}

	body, err := manifest.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	var up Upload
	meta, err := c.sendJSON(ctx, http.MethodPost, target, &RequestOptions{Body: body}, &up)
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	up.Meta = meta

	if archive == nil {
		if up.ArchiveURL == "" {
			return nil, &ServiceError{Message: "upload response has no archive"}
		}
		archive, err = c.GetArchiveByURL(ctx, up.ArchiveURL)
		if err != nil {
			return nil, err
		}
	}
	up.Archive = archive

	return &up, nil
}

// UpdateUploadStatus patches the status of upload and merges the response
// into it.
func (c *Client) UpdateUploadStatus(ctx context.Context, upload *Upload, status string) error {
	body := struct {
		Status string `json:"status"`
	}{Status: status}

	meta, err := c.sendJSON(ctx, http.MethodPatch, upload.URL, &RequestOptions{JSON: body}, upload)
	if err != nil {
		return fmt.Errorf("update upload status: %w", err)
	}
	upload.Meta.Update(meta)
	return nil
}

// RefreshUploadStatus fetches upload again, conditional on its
// Last-Modified metadata. When the status is unchanged, upload is updated
// in place from the response and keeps its archive. Otherwise a new Upload
// is returned with its archive resolved.
func (c *Client) RefreshUploadStatus(ctx context.Context, upload *Upload) (*Upload, error) {
	header := make(http.Header)
	if upload.Meta.LastModified != "" {
		header.Set("If-Modified-Since", upload.Meta.LastModified)
	}

	var fresh Upload
	meta, err := c.getJSON(ctx, upload.URL, header, &fresh)
	if errors.Is(err, ErrNotModified) {
		return upload, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh upload: %w", err)
	}

	if fresh.Status == upload.Status {
		fresh.Meta = upload.Meta
		fresh.Meta.Update(meta)
		fresh.Archive = upload.Archive
		if fresh.ArchiveURL == "" {
			fresh.ArchiveURL = upload.ArchiveURL
		}
		*upload = fresh
		return upload, nil
	}

	fresh.Meta = meta
	switch {
	case fresh.ArchiveURL != "":
		archive, err := c.GetArchiveByURL(ctx, fresh.ArchiveURL)
		if err != nil {
			return nil, err
		}
		fresh.Archive = archive
	default:
		fresh.Archive = upload.Archive
	}

	return &fresh, nil
}

// CancelUpload deletes the upload with the given id.
func (c *Client) CancelUpload(ctx context.Context, id string) error {
	resp, err := c.session.Delete(ctx, fmt.Sprintf(uploadDetail, id), nil)
	if err != nil {
		return fmt.Errorf("cancel upload: %w", err)
	}
	if err := expectNoContent(resp); err != nil {
		return fmt.Errorf("cancel upload: %w", err)
	}
	return nil
}

// DestroyAPIKey revokes the API key with the given token id.
func (c *Client) DestroyAPIKey(ctx context.Context, tokenID string) error {
	resp, err := c.session.Delete(ctx, fmt.Sprintf(tokenDetail, tokenID), nil)
	if err != nil {
		return fmt.Errorf("destroy api key: %w", err)
	}
	if err := expectNoContent(resp); err != nil {
		return fmt.Errorf("destroy api key: %w", err)
	}
	return nil
}
