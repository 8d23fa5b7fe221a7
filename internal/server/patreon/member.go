// Package patreon talks to Patreon: the OAuth identity API used to link and
// re-check accounts, and the webhook sent when a membership changes.
package patreon

import "time"

const (
	statusActive = "active_patron"
	chargePaid   = "Paid"
)

// MemberAttributes are the membership fields shared by webhook payloads and
// the identity endpoint.
type MemberAttributes struct {
	PatronStatus                 string     `json:"patron_status"`
	CurrentlyEntitledAmountCents int        `json:"currently_entitled_amount_cents"`
	LastChargeDate               *time.Time `json:"last_charge_date"`
	LastChargeStatus             string     `json:"last_charge_status"`
}

// Active reports whether the member pays for a tier right now.
func (a MemberAttributes) Active() bool {
	return a.PatronStatus == statusActive && a.CurrentlyEntitledAmountCents > 0
}

// LastPayment is the last successful charge date, if any.
func (a MemberAttributes) LastPayment() *time.Time {
	if a.LastChargeDate == nil || a.LastChargeStatus != chargePaid {
		return nil
	}
	t := a.LastChargeDate.UTC()
	return &t
}

// resource is a JSON:API resource object.
type resource struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Attributes MemberAttributes `json:"attributes"`
}
