package patreon

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	SignatureHeader = "X-Patreon-Signature"
	EventHeader     = "X-Patreon-Event"
)

var ErrNoUser = errors.New("patreon: webhook has no user")

// VerifySignature checks the hex HMAC-MD5 of body that Patreon sends in
// SignatureHeader.
func VerifySignature(secret, body []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(md5.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// WebhookEvent is the part of a members:* webhook the server acts on.
type WebhookEvent struct {
	PatreonID string
	Member    MemberAttributes
}

// ParseWebhook extracts the member attributes and the id of the Patreon user
// they belong to.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var payload struct {
		Data     resource   `json:"data"`
		Included []resource `json:"included"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("patreon: decode webhook: %w", err)
	}

	ev := &WebhookEvent{Member: payload.Data.Attributes}
	for _, inc := range payload.Included {
		if inc.Type == "user" {
			ev.PatreonID = inc.ID
		}
	}
	if ev.PatreonID == "" {
		return nil, ErrNoUser
	}
	return ev, nil
}
