package storage

import "github.com/ory/fosite"

// Client is a registered OAuth client. Secret holds the bcrypt hash for
// confidential clients and is nil for public ones.
type Client struct {
	ID            string   `json:"id"`
	Secret        []byte   `json:"secret,omitempty"`
	RedirectURIs  []string `json:"redirect_uris"`
	Scopes        []string `json:"scopes"`
	GrantTypes    []string `json:"grant_types"`
	ResponseTypes []string `json:"response_types"`
	Audience      []string `json:"audience"`
	Public        bool     `json:"public"`

	CreatedAt int64 `json:"created_at"`
}

func (c *Client) ToFositeClient() *fosite.DefaultClient {
	return &fosite.DefaultClient{
		ID:            c.ID,
		Secret:        c.Secret,
		RedirectURIs:  c.RedirectURIs,
		Scopes:        c.Scopes,
		GrantTypes:    c.GrantTypes,
		ResponseTypes: c.ResponseTypes,
		Audience:      c.Audience,
		Public:        c.Public,
	}
}
