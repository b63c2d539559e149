package models

import "time"

// Profile is the per-user display document. At most one exists per owner.
type Profile struct {
	OwnerID   string    `json:"userId"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
