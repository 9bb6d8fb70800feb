package clientcli

import (
	"context"
	"fmt"

	"github.com/sagarc03/bigstash"
)

// Client performs the read and housekeeping operations of the CLI against
// the BigStash API. Uploads go through the upload package.
type Client struct {
	config *Config
	api    *bigstash.Client
}

// New creates a new Client with the given config and options.
func New(cfg *Config, opts ...bigstash.Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	cfg = cfg.WithDefaults()

	if err := cfg.ValidateWithAuth(); err != nil {
		return nil, err
	}

	api, err := bigstash.New(&bigstash.Config{
		BaseURL: cfg.BaseURL,
		Key:     cfg.Key,
		Secret:  cfg.Secret,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}

	return &Client{config: cfg, api: api}, nil
}

// API returns the underlying API client.
func (c *Client) API() *bigstash.Client {
	return c.api
}

// ListArchives returns up to limit archives, newest first as served. A
// limit of 0 or less returns every archive.
func (c *Client) ListArchives(ctx context.Context, limit int) ([]ArchiveInfo, error) {
	list, err := c.api.GetArchives(ctx)
	if err != nil {
		return nil, err
	}

	archives, err := collect(ctx, list, limit)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}

	out := make([]ArchiveInfo, 0, len(archives))
	for i := range archives {
		out = append(out, NewArchiveInfo(&archives[i]))
	}
	return out, nil
}

// GetArchive returns the archive with the given id.
func (c *Client) GetArchive(ctx context.Context, id string) (*ArchiveInfo, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	a, err := c.api.GetArchive(ctx, id)
	if err != nil {
		return nil, err
	}

	info := NewArchiveInfo(a)
	return &info, nil
}

// ListFiles returns every file of the archive with the given id.
func (c *Client) ListFiles(ctx context.Context, id string) ([]FileInfo, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	a, err := c.api.GetArchive(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Files == nil {
		return []FileInfo{}, nil
	}

	files, err := a.Files.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	out := make([]FileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, FileInfo{
			Path:         f.Path,
			Size:         f.Size,
			MD5:          f.MD5,
			LastModified: f.LastModified.Time,
		})
	}
	return out, nil
}

// ListNotifications returns up to limit notifications. A limit of 0 or
// less returns every notification.
func (c *Client) ListNotifications(ctx context.Context, limit int) ([]NotificationInfo, error) {
	list, err := c.api.GetNotifications(ctx)
	if err != nil {
		return nil, err
	}

	notifications, err := collect(ctx, list, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	out := make([]NotificationInfo, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, NotificationInfo{
			ID:      n.ID,
			Verb:    n.Verb,
			Status:  n.Status,
			Created: n.Created,
		})
	}
	return out, nil
}

// User returns the account with the archives embedded in the response.
func (c *Client) User(ctx context.Context) (*UserInfo, error) {
	u, err := c.api.GetUser(ctx)
	if err != nil {
		return nil, err
	}

	info := &UserInfo{
		Email:       u.Email,
		DisplayName: u.DisplayName,
		DateJoined:  u.DateJoined,
		QuotaSize:   u.Quota.Size,
		QuotaUsed:   u.Quota.Used,
		Archives:    []ArchiveInfo{},
	}
	if u.Archives != nil {
		for _, a := range u.Archives.Known() {
			info.Archives = append(info.Archives, NewArchiveInfo(&a))
		}
	}
	return info, nil
}

// GetUpload returns the upload with the given id or URL, with its
// archive resolved.
func (c *Client) GetUpload(ctx context.Context, idOrURL string) (*bigstash.Upload, error) {
	if idOrURL == "" {
		return nil, ErrEmptyID
	}

	up, err := c.api.GetUploadByURL(ctx, uploadPath(idOrURL))
	if err != nil {
		return nil, err
	}

	if up.ArchiveURL != "" {
		a, err := c.api.GetArchiveByURL(ctx, up.ArchiveURL)
		if err != nil {
			return nil, err
		}
		up.Archive = a
	}
	return up, nil
}

// CancelUpload cancels a pending upload.
func (c *Client) CancelUpload(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	return c.api.CancelUpload(ctx, id)
}

// RevokeToken destroys the API key the client signs with.
func (c *Client) RevokeToken(ctx context.Context) error {
	token := bigstash.Token{URL: c.config.TokenURL}
	if token.ID() == "" {
		return fmt.Errorf("revoke token: %w", ErrEmptyID)
	}
	return c.api.DestroyAPIKey(ctx, token.ID())
}

// Login exchanges account credentials for a new API key.
func Login(ctx context.Context, baseURL, username, password string, opts ...bigstash.Option) (*bigstash.Token, error) {
	auth, err := bigstash.NewAuthClient(baseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create auth client: %w", err)
	}
	return auth.GetAPIKey(ctx, username, password, "")
}

// collect returns up to limit elements of list, or all of them.
func collect[T any](ctx context.Context, list *bigstash.List[T], limit int) ([]T, error) {
	if limit <= 0 {
		return list.All(ctx)
	}
	return list.Take(ctx, limit)
}

// uploadPath turns a bare upload id into its detail path.
func uploadPath(idOrURL string) string {
	for _, r := range idOrURL {
		if r < '0' || r > '9' {
			return idOrURL
		}
	}
	return "uploads/" + idOrURL
}
