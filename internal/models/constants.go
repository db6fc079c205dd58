package models

import "time"

// Identity keys in the profile store. Owned by the session manager.
const (
	KeyUserName  = "userName"
	KeyUserEmail = "userEmail"
	KeyAuthToken = "authToken"
	KeyLoginTime = "loginTime"
)

// BookingsKeyPrefix namespaces per-owner booking partitions.
const BookingsKeyPrefix = "bookings_"

// BookingsKey returns the partition key for an owner email.
func BookingsKey(email string) string {
	return BookingsKeyPrefix + email
}

const (
	// AutoConfirmThreshold is how long a booking stays pending before the
	// engine confirms it.
	AutoConfirmThreshold = 60 * time.Second

	// EngineTickInterval is the sweep cadence of the lifecycle engine.
	EngineTickInterval = 10 * time.Second

	// ReconcileDebounce lets in-flight storage writes settle before a
	// reconciliation pass triggered by an external change.
	ReconcileDebounce = 100 * time.Millisecond

	// SessionTTL bounds how long a login stays valid.
	SessionTTL = 24 * time.Hour
)

const (
	// ServiceOther buckets unrecognized or missing service categories.
	ServiceOther = "other"

	// WorkerQueueSize is the in-memory notification queue capacity.
	WorkerQueueSize = 128
)

// BookingIDPrefix is carried over from the site's legacy booking numbers.
const BookingIDPrefix = "FD"
