package credstore

import (
	"encoding/json"
	"errors"
)

// ErrCorrupt is returned when the stored credential record cannot be decoded.
var ErrCorrupt = errors.New("credential record is corrupt")

// Credentials is the durable credential record. Field names are part of the
// on-disk format and must stay stable across releases.
type Credentials struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`

	// AdminBypass marks an operator session established without server
	// validation. When set, AdminProfile holds the synthesized profile and
	// the token pair is unused.
	AdminBypass  bool            `json:"is_admin_login,omitempty"`
	AdminProfile json.RawMessage `json:"admin_user,omitempty"`
}

// Empty reports whether the record holds no session of either kind.
func (c *Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == "" && !c.AdminBypass
}

// Store persists the credential record across process restarts.
// Save replaces the whole record; partial states are never written.
type Store interface {
	// Load returns the stored record, or an empty record when none exists.
	Load() (*Credentials, error)

	// Save replaces the stored record with creds.
	Save(creds *Credentials) error

	// Clear removes every stored credential field.
	Clear() error
}
