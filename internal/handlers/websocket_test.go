package handlers

import (
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"aromabridge/internal/models"
	"aromabridge/internal/service"
	"aromabridge/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// wsTestServer starts a router exposing only /ws on a real listener and
// returns it with the bus the handler is subscribed to.
func wsTestServer(t *testing.T) (*httptest.Server, *session.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bus := session.NewBus()
	h := NewHandler(&service.Service{}, bus, nil)
	r := gin.New()
	r.GET("/ws", h.wsConnect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, bus
}

func dialWS(t *testing.T, srv *httptest.Server, rawQuery string) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = rawQuery

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// publishUntil repeatedly publishes msg until stop is closed; the client
// subscribes asynchronously, so a single publish could race the upgrade.
func publishUntil(bus *session.Bus, msg models.Message, stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			bus.Publish(msg)
		}
	}
}

func TestWebSocket_StreamsBusMessages(t *testing.T) {
	srv, bus := wsTestServer(t)
	conn := dialWS(t, srv, "")

	stop := make(chan struct{})
	defer close(stop)
	go publishUntil(bus, models.Message{
		Type:     models.MsgCountdown,
		DeviceID: "42",
		Data:     map[string]any{"workRemainTime": 29},
	}, stop)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg models.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != models.MsgCountdown || msg.DeviceID != "42" {
		t.Fatalf("message: %+v", msg)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok || data["workRemainTime"] != float64(29) {
		t.Fatalf("data: %+v", msg.Data)
	}
}

func TestWebSocket_DeviceFilter(t *testing.T) {
	srv, bus := wsTestServer(t)
	conn := dialWS(t, srv, "device_id=42")

	stop := make(chan struct{})
	defer close(stop)
	go publishUntil(bus, models.Message{Type: models.MsgSupercommand, DeviceID: "77"}, stop)
	go publishUntil(bus, models.Message{Type: models.MsgSupercommand, DeviceID: "42"}, stop)

	// Every delivered frame must belong to the filtered device.
	for i := 0; i < 3; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if msg.DeviceID != "42" {
			t.Fatalf("received message for device %q through a device_id=42 filter", msg.DeviceID)
		}
	}
}

func TestWebSocket_ClientCloseUnsubscribes(t *testing.T) {
	srv, bus := wsTestServer(t)
	conn := dialWS(t, srv, "")

	_ = conn.Close()

	// The handler's reader notices the close and unsubscribes; publishing
	// afterwards must not block or panic.
	deadline := time.After(300 * time.Millisecond)
	for {
		bus.Publish(models.Message{Type: models.MsgHeartbeat, DeviceID: "42"})
		select {
		case <-deadline:
			return
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}
}
