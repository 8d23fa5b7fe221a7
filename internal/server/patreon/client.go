package patreon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

const (
	authURL     = "https://www.patreon.com/oauth2/authorize"
	tokenURL    = "https://www.patreon.com/api/oauth2/token"
	identityURL = "https://www.patreon.com/api/oauth2/v2/identity"
)

// Identity is the linked Patreon user and its membership, if any.
type Identity struct {
	ID       string
	Member   MemberAttributes
	IsMember bool
}

// Client exchanges authorization codes and reads the identity of a token's
// owner, refreshing expired tokens on the way.
type Client struct {
	config      *oauth2.Config
	identityURL string
}

func NewClient(clientID, clientSecret, redirectURL string) *Client {
	return &Client{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"identity", "identity.memberships"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		identityURL: identityURL,
	}
}

// AuthURL is where users are sent to grant access.
func (c *Client) AuthURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return tok, nil
}

// Identity fetches the token owner's id and membership. The returned token
// differs from tok when it had to be refreshed and must be stored.
func (c *Client) Identity(ctx context.Context, tok *oauth2.Token) (*Identity, *oauth2.Token, error) {
	current, err := c.config.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	q := url.Values{}
	q.Set("include", "memberships")
	q.Set("fields[member]", "patron_status,currently_entitled_amount_cents,last_charge_date,last_charge_status")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.identityURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := oauth2.NewClient(ctx, oauth2.StaticTokenSource(current)).Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("patreon API error: status %d", resp.StatusCode)
	}

	var payload struct {
		Data     resource   `json:"data"`
		Included []resource `json:"included"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}

	id := &Identity{ID: payload.Data.ID}
	for _, inc := range payload.Included {
		if inc.Type != "member" {
			continue
		}
		id.Member = inc.Attributes
		id.IsMember = inc.Attributes.Active()
		if id.IsMember {
			break
		}
	}

	return id, current, nil
}
