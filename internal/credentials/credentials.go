package credentials

import (
	"context"
	"errors"
	"net/url"
)

// Credentials is the per-user record needed to authenticate with the user's
// payment-hosting service.
type Credentials struct {
	Endpoint   string `json:"endpoint"`
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// ErrNotFound indicates no credential record exists for the requested user.
var ErrNotFound = errors.New("credentials not found")

// Store persists credential records keyed by chat user id. Upsert overwrites
// the whole record; implementations must keep the single-key write atomic so
// a concurrent Get never observes a partial record.
type Store interface {
	Get(ctx context.Context, userID string) (Credentials, error)
	Upsert(ctx context.Context, userID string, creds Credentials) error
}

// Address derives the displayable payment address, identifier@host.
// Registration stores endpoint/identifier so that this reproduces the address
// format the user registered with.
func (c Credentials) Address() string {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" {
		return c.Identifier
	}
	return c.Identifier + "@" + u.Host
}
