package session

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"aromabridge/internal/logger"
	"aromabridge/internal/models"
)

func testSession(deviceID string, bus *Bus) *Session {
	return newSession(models.Device{ID: deviceID, Name: "test"}, "", &fakeCloudAPI{}, bus, logger.Get(logger.ErrorLevel))
}

// collector gathers broadcast messages.
type collector struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (c *collector) handler(msg models.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *collector) all() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func TestHandleFrame_BannerIgnored(t *testing.T) {
	bus := NewBus()
	col := &collector{}
	bus.Subscribe(col.handler)
	s := testSession("7", bus)

	s.handleFrame([]byte("连接成功"), time.Now())
	if len(col.all()) != 0 {
		t.Fatal("banner must not be broadcast")
	}
}

func TestHandleFrame_MalformedDropped(t *testing.T) {
	bus := NewBus()
	col := &collector{}
	bus.Subscribe(col.handler)
	s := testSession("7", bus)

	s.handleFrame([]byte("{not json"), time.Now())
	s.handleFrame([]byte(`{"type":"SUPERCOMMAND","data":"{broken"}`), time.Now())
	if len(col.all()) != 0 {
		t.Fatalf("malformed frames must be dropped, got %d broadcasts", len(col.all()))
	}
}

func TestHandleFrame_StateConfirmation(t *testing.T) {
	bus := NewBus()
	col := &collector{}
	bus.Subscribe(col.handler)
	s := testSession("7", bus)

	now := time.Now()
	nowMS := now.UnixMilli()
	raw := fmt.Sprintf(`{
		"type": "SUPERCOMMAND",
		"sendTime": %d,
		"data": {"deviceId": 7, "workStatus": 1, "workTime": 30, "pauseTime": 120,
		         "workRemainTime": 30, "pauseRemainTime": 120, "updateTime": %d}
	}`, nowMS-200, nowMS-700)

	s.handleFrame([]byte(raw), now)

	snap := s.state.snapshot(now)
	if snap.Phase != models.PhaseWork {
		t.Fatalf("phase = %s, want work", snap.Phase)
	}
	if math.Abs(snap.WorkRemain-29.3) > 1e-6 {
		t.Fatalf("work remain = %v, want 29.3", snap.WorkRemain)
	}

	msgs := col.all()
	if len(msgs) != 1 || msgs[0].Type != models.MsgSupercommand {
		t.Fatalf("broadcasts = %+v, want one SUPERCOMMAND", msgs)
	}
	data, ok := msgs[0].Data.(map[string]any)
	if !ok || data["workStatus"] != float64(1) {
		t.Fatalf("broadcast data = %+v", msgs[0].Data)
	}
}

func TestHandleFrame_StateConfirmationOtherDeviceIgnored(t *testing.T) {
	bus := NewBus()
	s := testSession("7", bus)

	raw := `{"type":"SUPERCOMMAND","data":{"deviceId":99,"workStatus":1,"workRemainTime":10,"pauseRemainTime":10,"workTime":10,"pauseTime":10}}`
	s.handleFrame([]byte(raw), time.Now())

	if snap := s.state.snapshot(time.Now()); snap.Phase != models.PhaseUnknown {
		t.Fatalf("state mutated by another device's reply: %+v", snap)
	}
}

func TestHandleFrame_DoubleEncodedScheduleData(t *testing.T) {
	bus := NewBus()
	col := &collector{}
	bus.Subscribe(col.handler)
	s := testSession("7", bus)

	inner := `[{"startHour":"07:30","endHour":"21:30","workSec":10,"pauseSec":300,"enabled":1,"consistenceLevel":1,"weekDay":1}]`
	frame, err := json.Marshal(map[string]any{
		"type": models.MsgWorkTimeFrequency,
		"data": inner, // JSON-encoded string: needs a second decode pass
	})
	if err != nil {
		t.Fatal(err)
	}

	s.handleFrame(frame, time.Now())

	blocks, fetched := s.state.fetchedSchedule()
	if !fetched {
		t.Fatal("schedule reply not marked fetched")
	}
	if len(blocks) != 1 || !blocks[0].Enabled || blocks[0].PauseDuration != 300 {
		t.Fatalf("blocks = %+v", blocks)
	}
	if len(blocks[0].Days) != 1 || blocks[0].Days[0] != models.Monday {
		t.Fatalf("reply weekday must carry into Days, got %v", blocks[0].Days)
	}

	msgs := col.all()
	if len(msgs) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(msgs))
	}
	if _, ok := msgs[0].Data.([]any); !ok {
		t.Fatalf("broadcast data should be the decoded list, got %T", msgs[0].Data)
	}
}

func TestHandleFrame_ScheduleDefaultsForMissingFields(t *testing.T) {
	s := testSession("7", NewBus())
	raw := `{"type":"WORK_TIME_FREQUENCY","data":[{"enabled":0}]}`
	s.handleFrame([]byte(raw), time.Now())

	blocks, fetched := s.state.fetchedSchedule()
	if !fetched || len(blocks) != 1 {
		t.Fatalf("fetched=%v blocks=%v", fetched, blocks)
	}
	b := blocks[0]
	if b.StartTime != models.FillerTime || b.WorkDuration != models.FillerWorkDuration || b.PauseDuration != models.FillerPauseDuration {
		t.Fatalf("missing fields must default to filler values, got %+v", b)
	}
	// An absent weekday must not be read as Sunday; the day is tagged
	// later from the requested weekday.
	if b.Days != nil {
		t.Fatalf("absent weekday must leave Days nil, got %v", b.Days)
	}
}

// scriptedServer upgrades one connection and replies to the first
// SUPERCOMMAND trigger with a canned state confirmation.
func scriptedServer(t *testing.T, deviceID string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte("连接成功"))

		for {
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame["type"] != models.MsgSupercommand {
				continue
			}
			nowMS := time.Now().UnixMilli()
			reply := map[string]any{
				"type":     models.MsgSupercommand,
				"sendTime": nowMS - 200,
				"data": map[string]any{
					"deviceId":        deviceID,
					"workStatus":      1,
					"workTime":        30,
					"pauseTime":       120,
					"workRemainTime":  30,
					"pauseRemainTime": 120,
					"updateTime":      nowMS - 700,
				},
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}))
}

func TestSession_EndToEndStateConfirmation(t *testing.T) {
	srv := scriptedServer(t, "42")
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	api := &fakeCloudAPI{}
	m := NewManager(api, wsURL, NewBus(), logger.Get(logger.ErrorLevel))
	defer m.StopAll()

	m.Start(models.Device{ID: "42", Name: "Office", HasFan: false})

	deadline := time.Now().Add(5 * time.Second)
	for {
		if snap, ok := m.State("42"); ok && snap.Phase == models.PhaseWork {
			// Raw 30s minus ~0.7s correction, minus a little local latency.
			if snap.WorkRemain < 29.0 || snap.WorkRemain > 29.4 {
				t.Fatalf("work remain = %v, want about 29.3", snap.WorkRemain)
			}
			if snap.WaitingForResponse {
				t.Fatal("confirmation must clear waiting_for_response")
			}
			if !m.IsAvailable("42") {
				t.Fatal("connected session must report available")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no state confirmation processed within deadline")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Initial sequence: one activate for connect, one for the initial
	// re-poll trigger.
	api.mu.Lock()
	activations := len(api.activateCalls)
	requests := len(api.scheduleRequests)
	api.mu.Unlock()
	if activations < 2 {
		t.Fatalf("activate calls = %d, want at least 2", activations)
	}
	if requests != 1 {
		t.Fatalf("initial schedule requests = %d, want 1", requests)
	}
}

// slammingServer upgrades every connection and closes it immediately,
// counting the dials.
func slammingServer(t *testing.T, dials *atomic.Int32) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		dials.Add(1)
		_ = conn.Close()
	}))
}

func TestSession_ReconnectsAfterTransportFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the reconnect backoff")
	}

	var dials atomic.Int32
	srv := slammingServer(t, &dials)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	m := NewManager(&fakeCloudAPI{}, wsURL, NewBus(), logger.Get(logger.ErrorLevel))
	defer m.StopAll()
	m.Start(models.Device{ID: "42"})

	// The server kills the socket right after the upgrade; the supervisor
	// must come back after one backoff interval, not hang.
	deadline := time.Now().Add(backoffFloor + 3*time.Second)
	for dials.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("session never reconnected: dials=%d", dials.Load())
		}
		time.Sleep(50 * time.Millisecond)
	}
}
