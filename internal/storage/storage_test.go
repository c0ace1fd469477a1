package storage

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testDevice(id string) *Device {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Device{
		ID:         id,
		Name:       "Test Phone",
		RemoteAddr: "192.168.1.42:51234",
		CreatedAt:  now,
		LastSeen:   now,
	}
}

func TestSaveAndGetDevice(t *testing.T) {
	store := newTestStore(t)

	device := testDevice("device-1")
	if err := store.SaveDevice(device); err != nil {
		t.Fatalf("SaveDevice failed: %v", err)
	}

	got, err := store.GetDevice("device-1")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected device, got nil")
	}
	if got.ID != device.ID {
		t.Errorf("ID = %q, want %q", got.ID, device.ID)
	}
	if got.Name != device.Name {
		t.Errorf("Name = %q, want %q", got.Name, device.Name)
	}
	if got.RemoteAddr != device.RemoteAddr {
		t.Errorf("RemoteAddr = %q, want %q", got.RemoteAddr, device.RemoteAddr)
	}
	if !got.CreatedAt.Equal(device.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, device.CreatedAt)
	}
}

func TestGetDeviceMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetDevice("nope")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing device, got %+v", got)
	}
}

func TestSaveDeviceNil(t *testing.T) {
	store := newTestStore(t)

	if err := store.SaveDevice(nil); err == nil {
		t.Error("expected error for nil device")
	}
}

func TestSaveDeviceUpsert(t *testing.T) {
	store := newTestStore(t)

	device := testDevice("device-1")
	if err := store.SaveDevice(device); err != nil {
		t.Fatalf("SaveDevice failed: %v", err)
	}

	device.Name = "Renamed Phone"
	if err := store.SaveDevice(device); err != nil {
		t.Fatalf("second SaveDevice failed: %v", err)
	}

	got, err := store.GetDevice("device-1")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got.Name != "Renamed Phone" {
		t.Errorf("Name = %q, want %q", got.Name, "Renamed Phone")
	}

	devices, err := store.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 1 {
		t.Errorf("len(devices) = %d, want 1 after upsert", len(devices))
	}
}

func TestListDevicesOrder(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().UTC()
	for i, id := range []string{"c", "a", "b"} {
		device := testDevice(id)
		device.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.SaveDevice(device); err != nil {
			t.Fatalf("SaveDevice(%s) failed: %v", id, err)
		}
	}

	devices, err := store.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("len(devices) = %d, want 3", len(devices))
	}

	want := []string{"c", "a", "b"}
	for i, device := range devices {
		if device.ID != want[i] {
			t.Errorf("devices[%d].ID = %q, want %q", i, device.ID, want[i])
		}
	}
}

func TestDeleteDevice(t *testing.T) {
	store := newTestStore(t)

	if err := store.SaveDevice(testDevice("device-1")); err != nil {
		t.Fatalf("SaveDevice failed: %v", err)
	}

	if err := store.DeleteDevice("device-1"); err != nil {
		t.Fatalf("DeleteDevice failed: %v", err)
	}

	got, err := store.GetDevice("device-1")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got != nil {
		t.Error("expected device to be deleted")
	}

	// Deleting a missing device is not an error.
	if err := store.DeleteDevice("device-1"); err != nil {
		t.Errorf("second DeleteDevice failed: %v", err)
	}
}

func TestUpdateLastSeen(t *testing.T) {
	store := newTestStore(t)

	device := testDevice("device-1")
	if err := store.SaveDevice(device); err != nil {
		t.Fatalf("SaveDevice failed: %v", err)
	}

	later := device.LastSeen.Add(time.Hour)
	if err := store.UpdateLastSeen("device-1", later); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}

	got, err := store.GetDevice("device-1")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if !got.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, later)
	}
}

func TestUpdateLastSeenMissing(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateLastSeen("nope", time.Now())
	if err != ErrDeviceNotFound {
		t.Errorf("err = %v, want ErrDeviceNotFound", err)
	}
}
