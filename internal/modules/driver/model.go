// Package driver is the driver directory: availability, live location, and
// the ranking helper that orders the ready pool for a given driver.
package driver

import (
	"time"

	"wasil/internal/types"
)

type Driver struct {
	ID          types.ID    `json:"id"`
	Name        string      `json:"name"`
	City        string      `json:"city"`
	IsAvailable bool        `json:"is_available"`
	IsBanned    bool        `json:"is_banned"`
	Location    types.Point `json:"location"`
	LocatedAt   *time.Time  `json:"located_at,omitempty"`
}

// Active reports whether the driver may take work.
func (d *Driver) Active() bool {
	return d.IsAvailable && !d.IsBanned
}
