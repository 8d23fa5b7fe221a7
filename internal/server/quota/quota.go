// Package quota computes per-user storage allowances.
package quota

import (
	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/server/models"
)

// Policy holds the base allotment and the one granted to subscribers.
type Policy struct {
	Base     int64
	Elevated int64
}

// DefaultPolicy is 2 GiB, or 10 GiB for subscribers.
func DefaultPolicy() Policy {
	return Policy{Base: 2 * common.GiB, Elevated: 10 * common.GiB}
}

// TotalStorage is the user's allowance in bytes.
func (p Policy) TotalStorage(u *models.User) int64 {
	if u.PatreonMember {
		return p.Elevated
	}
	return p.Base
}

// UsedStorage sums track sizes; no tracks means zero.
func UsedStorage(sizes []int64) int64 {
	var used int64
	for _, s := range sizes {
		used += s
	}
	return used
}

// AvailableStorage may be negative after a downgrade.
func (p Policy) AvailableStorage(u *models.User, sizes []int64) int64 {
	return p.TotalStorage(u) - UsedStorage(sizes)
}

// Check returns common.ErrQuotaExceeded when size does not fit.
func (p Policy) Check(u *models.User, sizes []int64, size int64) error {
	if size > p.AvailableStorage(u, sizes) {
		return common.ErrQuotaExceeded
	}
	return nil
}
