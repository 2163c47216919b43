package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type Provider string

const (
	ProviderFacebook  Provider = "FACEBOOK"
	ProviderInstagram Provider = "INSTAGRAM"
	ProviderTwitter   Provider = "TWITTER"
	ProviderLinkedin  Provider = "LINKEDIN"
	ProviderBluesky   Provider = "BLUESKY"
	ProviderMastodon  Provider = "MASTODON"
)

type SocialAccount struct {
	ID              int64       `db:"id" json:"id"`
	UserID          int64       `db:"user_id" json:"user_id"`
	Provider        Provider    `db:"provider" json:"provider"`
	ProviderUserID  string      `db:"provider_user_id" json:"provider_user_id"`
	AccessToken     string      `db:"access_token" json:"-"`
	RefreshToken    string      `db:"refresh_token" json:"-"`
	TokenExpiresAt  *time.Time  `db:"token_expires_at" json:"token_expires_at"`
	Scope           string      `db:"scope" json:"scope"`
	Meta            AccountMeta `db:"meta" json:"meta"`
	IsActive        bool        `db:"is_active" json:"is_active"`
	LastConnectedAt time.Time   `db:"last_connected_at" json:"last_connected_at"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// AccountMeta is the provider-specific extra state carried alongside an
// account. Known shapes get their own sub-struct; anything else survives
// round trips through Raw.
type AccountMeta struct {
	Profile  *ProfileMeta    `json:"profile,omitempty"`
	Facebook *FacebookMeta   `json:"facebook,omitempty"`
	Bluesky  *BlueskyMeta    `json:"bluesky,omitempty"`
	Mastodon *MastodonMeta   `json:"mastodon,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

type ProfileMeta struct {
	Name           string `json:"name,omitempty"`
	Username       string `json:"username,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

type FacebookMeta struct {
	PageID             string `json:"page_id,omitempty"`
	PageName           string `json:"page_name,omitempty"`
	PageAccessToken    string `json:"page_access_token,omitempty"`
	BusinessAccountID  string `json:"business_account_id,omitempty"`
	InstagramAccountID string `json:"instagram_account_id,omitempty"`
	PreferredPageID    string `json:"preferred_page_id,omitempty"`
}

type BlueskyMeta struct {
	ServiceURL string `json:"service_url,omitempty"`
	DID        string `json:"did,omitempty"`
	Handle     string `json:"handle,omitempty"`
	AuthScheme string `json:"auth_scheme,omitempty"`
}

type MastodonMeta struct {
	InstanceURL string `json:"instance_url,omitempty"`
}

func (m AccountMeta) Value() (driver.Value, error) {
	// A payload Scan kept verbatim goes back out unchanged.
	if len(m.Raw) > 0 {
		return string(m.Raw), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *AccountMeta) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = AccountMeta{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for AccountMeta")
	}
	if len(data) == 0 {
		*m = AccountMeta{}
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		// Legacy or free-form payload; keep it verbatim rather than fail.
		*m = AccountMeta{Raw: append(json.RawMessage(nil), data...)}
	}
	return nil
}
