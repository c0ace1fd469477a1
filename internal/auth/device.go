package auth

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Duye0120/AirVoice/internal/storage"
)

// DeviceStore is the subset of the storage layer the registrar needs.
type DeviceStore interface {
	SaveDevice(device *storage.Device) error
	GetDevice(id string) (*storage.Device, error)
	UpdateLastSeen(id string, t time.Time) error
}

// Registrar records devices that have successfully authenticated.
// The registry is bookkeeping for the devices list, not an access
// control list; the token alone decides whether a connection is allowed.
type Registrar struct {
	store   DeviceStore
	timeNow func() time.Time
}

// NewRegistrar creates a registrar backed by the given store.
func NewRegistrar(store DeviceStore) *Registrar {
	return &Registrar{
		store:   store,
		timeNow: time.Now,
	}
}

// RecordConnect upserts a device on a successful connection.
// deviceID may be empty (older clients do not send one); a fresh ID is
// minted in that case. deviceName may also be empty.
// Registry failures are logged but never reject the connection.
func (r *Registrar) RecordConnect(deviceID, deviceName, remoteAddr string) string {
	if r.store == nil {
		return deviceID
	}

	now := r.timeNow()

	if deviceID == "" {
		deviceID = uuid.New().String()
	}
	if deviceName == "" {
		deviceName = "Unknown Device"
	}

	existing, err := r.store.GetDevice(deviceID)
	if err != nil {
		log.Printf("auth: device lookup failed for %s: %v", deviceID, err)
		return deviceID
	}

	createdAt := now
	if existing != nil {
		createdAt = existing.CreatedAt
		if deviceName == "Unknown Device" {
			deviceName = existing.Name
		}
	}

	device := &storage.Device{
		ID:         deviceID,
		Name:       deviceName,
		RemoteAddr: remoteAddr,
		CreatedAt:  createdAt,
		LastSeen:   now,
	}

	if err := r.store.SaveDevice(device); err != nil {
		log.Printf("auth: failed to record device %s: %v", deviceID, err)
		return deviceID
	}

	log.Printf("auth: recorded device %s (%s) from %s", deviceID, deviceName, remoteAddr)
	return deviceID
}

// Touch updates a device's last-seen timestamp.
// Used when an already-connected device sends traffic.
func (r *Registrar) Touch(deviceID string) {
	if r.store == nil || deviceID == "" {
		return
	}

	if err := r.store.UpdateLastSeen(deviceID, r.timeNow()); err != nil {
		log.Printf("auth: failed to update last_seen for %s: %v", deviceID, err)
	}
}
