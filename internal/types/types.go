// Package types holds small value types shared across modules.
package types

import (
	"crypto/rand"
	"encoding/hex"
)

// ID is a 32-char hex identifier.
type ID string

// NewID returns a fresh random ID.
func NewID() ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return ID(hex.EncodeToString(b[:]))
}

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Zero reports whether the point carries no coordinate.
func (p Point) Zero() bool {
	return p.Lat == 0 && p.Lng == 0
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Identity is the result of verifying a bearer token.
type Identity struct {
	ID   ID
	Role Role
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }
