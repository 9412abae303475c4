package notification

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/pkg/errors"
	"github.com/jwalitptl/retina-api/pkg/event"
	"github.com/jwalitptl/retina-api/pkg/logger"
	"github.com/jwalitptl/retina-api/pkg/messaging"
)

type recordingRelay struct {
	accept bool
	got    []messaging.Message
}

func (r *recordingRelay) Enqueue(msg messaging.Message) bool {
	r.got = append(r.got, msg)
	return r.accept
}

func TestDescribe(t *testing.T) {
	doc := model.DemoDoctor()
	tests := []struct {
		name        string
		event       event.Event
		title       string
		description string
		variant     model.NotificationVariant
	}{
		{
			"login", event.Event{Type: event.SessionLoggedIn, Payload: doc},
			"Login successful", "Welcome back, Dr. Smith!", model.NotificationDefault,
		},
		{
			"login failed", event.Event{Type: event.SessionLoginFailed, Err: errors.Authentication("Invalid credentials")},
			"Login failed", "Invalid credentials", model.NotificationDestructive,
		},
		{
			"registered", event.Event{Type: event.SessionRegistered, Payload: model.Identity{Name: "Ada"}},
			"Registration successful", "Welcome, Dr. Ada!", model.NotificationDefault,
		},
		{
			"register failed", event.Event{Type: event.SessionRegisterFailed, Err: errors.Conflict("Email already in use")},
			"Registration failed", "Email already in use", model.NotificationDestructive,
		},
		{
			"logged out", event.Event{Type: event.SessionLoggedOut},
			"Logged out", "You have been successfully logged out.", model.NotificationDefault,
		},
		{
			"patient added", event.Event{Type: event.PatientAdded, Payload: model.Patient{ID: "P003", Name: "Alice"}},
			"Patient Added", "Patient Alice has been added with ID: P003", model.NotificationDefault,
		},
		{
			"patient removed", event.Event{Type: event.PatientRemoved, Payload: model.Patient{ID: "P001", Name: "John Doe"}},
			"Patient Removed", "Patient John Doe has been removed from your records", model.NotificationDefault,
		},
		{
			"scan added", event.Event{Type: event.ScanAdded, Payload: model.ScanResult{PatientID: "P002"}},
			"Scan Result Added", "New scan result has been added for patient P002", model.NotificationDefault,
		},
		{
			"internal failure", event.Event{Type: event.OperationFailed, Err: errors.Internal(stderrors.New("disk full"))},
			"Error", "Something went wrong", model.NotificationDestructive,
		},
		{
			"bad request", event.Event{Type: event.OperationFailed, Err: errors.BadRequest("Please select a patient and upload an image", nil)},
			"Error", "Please select a patient and upload an image", model.NotificationDestructive,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, description, variant, ok := Describe(tt.event)
			require.True(t, ok)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.description, description)
			assert.Equal(t, tt.variant, variant)
		})
	}

	_, _, _, ok := Describe(event.Event{Type: event.SessionLoading, Payload: true})
	assert.False(t, ok)
}

func TestServiceListsNewestFirst(t *testing.T) {
	bus := event.NewBus()
	svc := NewService(bus, Config{TTL: time.Minute, CleanupInterval: time.Minute, Limit: 3}, nil, logger.Nop())
	defer svc.Close()

	for i := 1; i <= 5; i++ {
		bus.Publish(event.Event{Type: event.PatientAdded, Payload: model.Patient{ID: fmt.Sprintf("P%03d", i)}})
	}
	bus.Publish(event.Event{Type: event.SessionLoading, Payload: true})

	got := svc.List(0)
	require.Len(t, got, 3)
	assert.Contains(t, got[0].Description, "P005")
	assert.Contains(t, got[2].Description, "P003")
	assert.Equal(t, string(event.PatientAdded), got[0].EventType)

	assert.Len(t, svc.List(1), 1)

	svc.Dismiss(got[0].ID)
	assert.Contains(t, svc.List(0)[0].Description, "P004")
}

func TestServiceExpiresNotifications(t *testing.T) {
	bus := event.NewBus()
	svc := NewService(bus, Config{TTL: 20 * time.Millisecond, CleanupInterval: time.Hour}, nil, logger.Nop())
	defer svc.Close()

	bus.Publish(event.Event{Type: event.SessionLoggedOut})
	require.Len(t, svc.List(0), 1)

	assert.Eventually(t, func() bool { return len(svc.List(0)) == 0 }, time.Second, 5*time.Millisecond)
}

func TestServiceForwardsToRelay(t *testing.T) {
	bus := event.NewBus()
	relay := &recordingRelay{accept: false}
	svc := NewService(bus, Config{TTL: time.Minute}, relay, logger.Nop())

	bus.Publish(event.Event{Type: event.ScanAdded, Payload: model.ScanResult{PatientID: "P001"}})
	require.Len(t, relay.got, 1)
	assert.Equal(t, string(event.ScanAdded), relay.got[0].Type)
	n, ok := relay.got[0].Payload.(model.Notification)
	require.True(t, ok)
	assert.Equal(t, "Scan Result Added", n.Title)

	svc.Close()
	svc.Close()
	bus.Publish(event.Event{Type: event.SessionLoggedOut})
	assert.Len(t, relay.got, 1)
	assert.Zero(t, bus.Len())
}
