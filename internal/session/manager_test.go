package session

import (
	"errors"
	"testing"
	"time"

	"aromabridge/internal/models"
)

func TestManagerStartIsIdempotent(t *testing.T) {
	// Activate fails immediately, so the supervisor just backs off
	// without dialing anything.
	api := &fakeCloudAPI{activateErr: errors.New("offline")}
	m := testManager(api)
	defer m.StopAll()

	device := models.Device{ID: "1", Name: "Living room"}
	m.Start(device)
	m.Start(device)

	if got := m.count(); got != 1 {
		t.Fatalf("session count = %d after double Start, want 1", got)
	}
}

func TestManagerStopUnknownDevice(t *testing.T) {
	m := testManager(&fakeCloudAPI{})
	m.Stop("nope") // must not panic or block
}

func TestManagerStopDuringBackoff(t *testing.T) {
	api := &fakeCloudAPI{activateErr: errors.New("offline")}
	m := testManager(api)
	m.Start(models.Device{ID: "9"})

	// Give the supervisor time to fail its first connect and enter the
	// backoff sleep, then make sure Stop interrupts it promptly.
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Stop("9")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; supervisor stuck in backoff")
	}

	if m.count() != 0 {
		t.Fatalf("session count = %d after Stop, want 0", m.count())
	}
	if m.IsAvailable("9") {
		t.Fatal("stopped device must not be available")
	}
}

func TestManagerStopAll(t *testing.T) {
	api := &fakeCloudAPI{activateErr: errors.New("offline")}
	m := testManager(api)
	m.Start(models.Device{ID: "1"})
	m.Start(models.Device{ID: "2"})
	m.Start(models.Device{ID: "3"})

	m.StopAll()
	if m.count() != 0 {
		t.Fatalf("session count = %d after StopAll, want 0", m.count())
	}
}

func TestManagerStateUnknownDevice(t *testing.T) {
	m := testManager(&fakeCloudAPI{})
	if _, ok := m.State("ghost"); ok {
		t.Fatal("State must report missing sessions")
	}
}
