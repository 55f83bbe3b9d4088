package domain

import (
	"slices"
	"time"
)

// ClientType defines the type of client application. Confidential or Public
type ClientType string

const (
	// ClientTypeConfidential clients can securely store secrets
	ClientTypeConfidential ClientType = "confidential"
	// ClientTypePublic clients cannot securely store secrets (mobile apps, SPAs)
	ClientTypePublic ClientType = "public"
)

// Client is the resolved identity of a registered OAuth2 client. Once a
// client is authenticated, this record, not the raw request, drives every
// grant-type and scope decision.
//
//nolint:tagliatelle
type Client struct {
	ID                string            `bson:"client_id"                 json:"client_id"`
	SecretHash        string            `bson:"client_secret_hash"        json:"-"`
	Type              ClientType        `bson:"client_type"               json:"type"`
	Name              string            `bson:"client_name,omitempty"     json:"name,omitempty"`
	Active            bool              `bson:"is_active"                 json:"is_active"`
	RedirectURIs      []string          `bson:"redirect_uris"             json:"redirect_uris,omitempty"`
	AllowedGrantTypes []GrantType       `bson:"allowed_grant_types"       json:"allowed_grant_types,omitempty"`
	AllowedScopes     []string          `bson:"allowed_scopes"            json:"allowed_scopes,omitempty"`
	AccessTokenTTL    time.Duration     `bson:"access_token_ttl"          json:"access_token_ttl,omitempty"`
	RefreshTokenTTL   time.Duration     `bson:"refresh_token_ttl"         json:"refresh_token_ttl,omitempty"`
	Claims            map[string]string `bson:"claims,omitempty"          json:"claims,omitempty"`
	CreatedAt         time.Time         `bson:"created_at"                json:"created_at"`
	UpdatedAt         time.Time         `bson:"updated_at"                json:"updated_at"`
}

// IsPublic reports whether the client cannot hold a secret.
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// AllowsGrant reports whether gt is in the client's allowed grant types.
func (c *Client) AllowsGrant(gt GrantType) bool {
	return slices.Contains(c.AllowedGrantTypes, gt)
}

// HasRedirectURI reports whether uri is registered for the client.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}
