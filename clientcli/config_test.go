package clientcli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/clientcli"
)

func TestConfig_WithDefaults(t *testing.T) {
	t.Run("empty base url gets default", func(t *testing.T) {
		cfg := (&clientcli.Config{}).WithDefaults()
		assert.Equal(t, bigstash.DefaultBaseURL, cfg.BaseURL)
	})

	t.Run("base url kept", func(t *testing.T) {
		orig := &clientcli.Config{BaseURL: "http://localhost:8000/api/v1/"}
		cfg := orig.WithDefaults()
		assert.Equal(t, "http://localhost:8000/api/v1/", cfg.BaseURL)
		assert.NotSame(t, orig, cfg)
	})
}

func TestConfig_ValidateWithAuth(t *testing.T) {
	tests := []struct {
		name    string
		cfg     clientcli.Config
		wantErr error
	}{
		{name: "valid", cfg: clientcli.Config{Key: "key", Secret: "secret"}},
		{name: "missing key", cfg: clientcli.Config{Secret: "secret"}, wantErr: clientcli.ErrKeyRequired},
		{name: "missing secret", cfg: clientcli.Config{Key: "key"}, wantErr: clientcli.ErrSecretRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateWithAuth()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigFile_Profiles(t *testing.T) {
	cfg := &clientcli.ConfigFile{}

	_, err := cfg.GetProfile("")
	require.ErrorIs(t, err, clientcli.ErrNoProfiles)

	require.NoError(t, cfg.AddProfile(clientcli.Profile{Name: "default", Key: "k1", Secret: "s1"}))
	require.NoError(t, cfg.AddProfile(clientcli.Profile{Name: "work", Key: "k2", Secret: "s2"}))
	assert.ErrorIs(t, cfg.AddProfile(clientcli.Profile{Name: "work"}), clientcli.ErrProfileExists)

	p, err := cfg.GetProfile("")
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name, "first profile when none is marked")

	require.NoError(t, cfg.SetDefault("work"))
	p, err = cfg.GetProfile("")
	require.NoError(t, err)
	assert.Equal(t, "work", p.Name)

	_, err = cfg.GetProfile("missing")
	assert.ErrorIs(t, err, clientcli.ErrProfileNotFound)

	cfg.PutProfile(clientcli.Profile{Name: "work", Key: "k3", Secret: "s3"})
	p, err = cfg.GetProfile("work")
	require.NoError(t, err)
	assert.Equal(t, "k3", p.Key)
	assert.True(t, p.Default, "replacing a profile keeps it default")

	assert.Equal(t, []string{"default", "work"}, cfg.ProfileNames())

	require.NoError(t, cfg.RemoveProfile("default"))
	assert.ErrorIs(t, cfg.RemoveProfile("default"), clientcli.ErrProfileNotFound)
	assert.ErrorIs(t, cfg.SetDefault("default"), clientcli.ErrProfileNotFound)
}

func TestConfigFile_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	token := &bigstash.Token{
		URL:    "https://www.bigstash.co/api/v1/tokens/42/",
		Key:    "AHBFEXAMPLE",
		Secret: "12039898FADEXAMPLE",
	}
	cfg := &clientcli.ConfigFile{}
	cfg.PutProfile(clientcli.ProfileFromToken("default", "", token))
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := clientcli.LoadConfigFile(path)
	require.NoError(t, err)
	p, err := loaded.GetProfile("default")
	require.NoError(t, err)
	assert.Equal(t, *token, p.Token())
	assert.Equal(t, "42", p.Token().ID())
}

func TestLoadOrEmpty(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cfg, err := clientcli.LoadOrEmpty(filepath.Join(t.TempDir(), "config.yaml"))
		require.NoError(t, err)
		assert.Empty(t, cfg.Profiles)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("profiles: [unclosed"), 0o600))

		_, err := clientcli.LoadOrEmpty(path)
		assert.Error(t, err)
	})
}

func TestDefaultConfigPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/home/u/.config/bigstash", "config.yaml"), clientcli.DefaultConfigPath("/home/u/.config/bigstash"))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("BS_API_KEY", "env-key")
	t.Setenv("BS_API_SECRET", "env-secret")

	cfg := clientcli.ConfigFromEnv()
	assert.Equal(t, "env-key", cfg.Key)
	assert.Equal(t, "env-secret", cfg.Secret)
	assert.Empty(t, cfg.BaseURL)
}

func TestMergeConfig(t *testing.T) {
	profile := clientcli.ConfigFromProfile(&clientcli.Profile{
		BaseURL:  "http://profile/api/",
		Key:      "profile-key",
		Secret:   "profile-secret",
		TokenURL: "http://profile/api/tokens/1/",
	})
	env := &clientcli.Config{Key: "env-key", Secret: "env-secret"}
	flags := &clientcli.Config{BaseURL: "http://flag/api/"}

	got := clientcli.MergeConfig(profile, nil, env, flags)

	assert.Equal(t, &clientcli.Config{
		BaseURL:  "http://flag/api/",
		Key:      "env-key",
		Secret:   "env-secret",
		TokenURL: "http://profile/api/tokens/1/",
	}, got)

	assert.Equal(t, &clientcli.Config{}, clientcli.ConfigFromProfile(nil))
}
