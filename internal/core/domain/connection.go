package domain

import (
	"time"
)

// Connection holds credentials and identifiers for one social account on one
// platform. Tokens are stored encrypted (enc:v1: prefix) with plaintext
// passthrough for rows created before encryption was introduced.
type Connection struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenant_id"`
	Platform     Platform  `db:"platform" json:"platform"`
	AccountName  string    `db:"account_name" json:"account_name"`
	AccessToken  string    `db:"access_token" json:"-"`
	RefreshToken *string   `db:"refresh_token" json:"-"`
	TokenExpiry  *time.Time `db:"token_expiry" json:"token_expiry,omitempty"`

	// PageID is the Facebook Page id; also the entry point for resolving
	// the Instagram business account.
	PageID string `db:"page_id" json:"page_id"`

	// IGAccountID caches the resolved Instagram business account id.
	IGAccountID *string `db:"ig_account_id" json:"ig_account_id,omitempty"`

	// GoogleAccountID / GoogleLocationID may be stored with or without the
	// "accounts/" and "locations/" path prefixes.
	GoogleAccountID  *string `db:"google_account_id" json:"google_account_id,omitempty"`
	GoogleLocationID *string `db:"google_location_id" json:"google_location_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TokenExpired reports whether the cached access token is past its expiry.
// A connection with no recorded expiry is assumed still valid.
func (c *Connection) TokenExpired(now time.Time) bool {
	return c.TokenExpiry != nil && !now.Before(*c.TokenExpiry)
}
