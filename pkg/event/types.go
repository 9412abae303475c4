package event

import "time"

// Type names a store transition.
type Type string

const (
	SessionLoggedIn       Type = "session.logged_in"
	SessionLoginFailed    Type = "session.login_failed"
	SessionRegistered     Type = "session.registered"
	SessionRegisterFailed Type = "session.register_failed"
	SessionLoggedOut      Type = "session.logged_out"
	SessionLoading        Type = "session.loading"

	PatientAdded   Type = "patient.added"
	PatientRemoved Type = "patient.removed"
	ScanAdded      Type = "scan.added"

	// OperationFailed is published when a store mutation is rejected or
	// cannot be persisted.
	OperationFailed Type = "store.operation_failed"
)

// Event is delivered to listeners after a store commits a change, or
// after an operation fails. Payload carries the affected entity.
type Event struct {
	Type       Type
	Store      string
	Operation  string
	Payload    interface{}
	Err        error
	OccurredAt time.Time
}

// Listener receives events synchronously on the publishing goroutine.
type Listener func(Event)
