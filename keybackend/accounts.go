// Package keybackend holds the accounts a mock server accepts: users that
// may request API keys with basic auth, and the API keys requests are
// signed with.
//
// Keys come from configuration, from a bgst profiles file, from the
// BS_API_KEY and BS_API_SECRET environment variables, or are issued at
// runtime by Accounts.Issue and revoked by Accounts.Revoke.
package keybackend

import (
	"crypto/subtle"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrBadCredentials is returned by Authenticate for an unknown user or a
// wrong password.
var ErrBadCredentials = errors.New("invalid username or password")

// KeyPair is an API key with its secret.
type KeyPair struct {
	Key    string `mapstructure:"key" yaml:"key"`
	Secret string `mapstructure:"secret" yaml:"secret"`
}

// User is an account that can obtain API keys. Usernames are usually
// email addresses.
type User struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// Accounts is the set of users and API keys a server accepts. It is safe
// for concurrent use.
type Accounts struct {
	secrets *MapSecretStore
	users   map[string]string

	mu     sync.Mutex
	owners map[string]string
}

// NewAccounts creates Accounts accepting keys (API key to secret) and
// users (username to password). The maps are copied.
func NewAccounts(keys, users map[string]string) *Accounts {
	a := &Accounts{
		secrets: NewMapSecretStore(keys),
		users:   make(map[string]string, len(users)),
		owners:  make(map[string]string),
	}
	for name, password := range users {
		if name != "" {
			a.users[name] = password
		}
	}
	return a
}

// Secrets returns the store request signatures are verified against.
func (a *Accounts) Secrets() *MapSecretStore {
	return a.secrets
}

// Authenticate checks a username and password.
func (a *Accounts) Authenticate(username, password string) error {
	expected, found := a.users[username]
	match := subtle.ConstantTimeCompare([]byte(expected), []byte(password)) == 1
	if !found || !match {
		return ErrBadCredentials
	}
	return nil
}

// Issue creates a new API key for owner and accepts it immediately.
func (a *Accounts) Issue(owner string) KeyPair {
	pair := KeyPair{Key: NewCredential(20), Secret: NewCredential(32)}
	a.secrets.Add(pair.Key, pair.Secret)

	a.mu.Lock()
	a.owners[pair.Key] = owner
	a.mu.Unlock()

	return pair
}

// Revoke stops accepting key. It reports whether the key was accepted.
func (a *Accounts) Revoke(key string) bool {
	a.mu.Lock()
	delete(a.owners, key)
	a.mu.Unlock()

	return a.secrets.Remove(key)
}

// Owner returns the user an issued key belongs to. Configured keys have
// no owner.
func (a *Accounts) Owner(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	owner, ok := a.owners[key]
	return owner, ok
}

// Users returns the number of users.
func (a *Accounts) Users() int {
	return len(a.users)
}

// Keys returns the number of accepted API keys.
func (a *Accounts) Keys() int {
	return a.secrets.Len()
}

// NewCredential returns n random upper case hex characters.
func NewCredential(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return strings.ToUpper(b.String()[:n])
}
