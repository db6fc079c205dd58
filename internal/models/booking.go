package models

import "time"

// Booking is a single table reservation as stored in the owner's partition.
// CreatedAt is immutable after creation; UpdatedAt moves on every status
// change and is never earlier than CreatedAt.
type Booking struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	Name          string    `json:"name,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	People        int       `json:"people,omitempty"`
	DateTime      string    `json:"datetime,omitempty"`
	Message       string    `json:"message,omitempty"`
	Service       string    `json:"service,omitempty"`
	AutoConfirmed bool      `json:"autoConfirmed,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// BookingDraft carries the actor-supplied fields of a new booking.
type BookingDraft struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	People   int    `json:"people"`
	DateTime string `json:"datetime"`
	Message  string `json:"message"`
	Service  string `json:"service"`
}
