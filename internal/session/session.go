package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"aromabridge/internal/logger"
	"aromabridge/internal/models"
)

const (
	backoffFloor = 5 * time.Second
	backoffCap   = 300 * time.Second

	heartbeatInterval = 10 * time.Second
	monitorTick       = 1 * time.Second
	writeWait         = 10 * time.Second

	// transitionGrace is how long to wait after the local countdown hits
	// zero before re-polling, giving the remote device time to complete
	// its own phase flip.
	transitionGrace = 2 * time.Second

	// successBanner is the literal non-JSON frame the server sends right
	// after the socket opens.
	successBanner = "连接成功"
)

// Session owns the persistent connection and duty-cycle state of one
// device. Created by the Manager; not safe to construct directly.
type Session struct {
	device models.Device
	wsURL  string
	api    CloudAPI
	bus    *Bus
	log    *logger.Logger
	state  *dutyCycleState

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	writeMu sync.Mutex
}

func newSession(device models.Device, wsURL string, api CloudAPI, bus *Bus, log *logger.Logger) *Session {
	return &Session{
		device: device,
		wsURL:  wsURL,
		api:    api,
		bus:    bus,
		log:    log.ForDevice(device.ID),
		state:  newDutyCycleState(),
	}
}

// Device returns the device this session serves.
func (s *Session) Device() models.Device { return s.device }

// Connected reports whether the socket is currently up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// State returns a snapshot of the duty-cycle state including display
// countdowns computed at call time.
func (s *Session) State() models.DutyCycleSnapshot {
	snap := s.state.snapshot(time.Now())
	snap.Connected = s.Connected()
	return snap
}

// run is the supervisor loop: connect, serve until the transport fails,
// back off, repeat. Transport errors are never fatal; the loop only exits
// on context cancellation.
func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()

	backoff := backoffFloor
	for {
		dialed, err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if dialed {
			backoff = backoffFloor
		}
		if err != nil {
			s.log.Errorw("session_disconnected", "err", err, "retry_in", backoff.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}
}

// connectOnce performs one full connection cycle: activate the device over
// HTTP, dial the socket, run the monitors and the receive loop until the
// transport fails. dialed reports whether the dial itself succeeded, which
// resets the backoff.
func (s *Session) connectOnce(ctx context.Context) (dialed bool, err error) {
	if err := s.api.Activate(ctx, s.device.ID); err != nil {
		return false, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return false, err
	}
	s.setConn(conn)
	defer s.dropConn()
	s.log.Infow("session_connected")

	monCtx, cancelMon := context.WithCancel(ctx)
	defer cancelMon()

	// Unblock ReadMessage when the session is stopped or the monitors die.
	go func() {
		<-monCtx.Done()
		_ = conn.Close()
	}()

	var monitors sync.WaitGroup
	monitors.Add(3)
	go s.heartbeat(monCtx, &monitors)
	go s.repollMonitor(monCtx, &monitors)
	go s.countdownMonitor(monCtx, &monitors)
	// The monitors only exit on cancellation, so cancel before waiting or
	// a transport failure would block here instead of reaching the backoff.
	defer func() {
		cancelMon()
		monitors.Wait()
	}()

	s.sendRepoll(monCtx)
	s.requestInitialSchedule(monCtx)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		s.handleFrame(raw, time.Now())
	}
}

func (s *Session) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
}

func (s *Session) dropConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// outboundFrame is the wire shape of every frame this client sends. Data
// is raw so each message type keeps its historical encoding: SUPERCOMMAND
// sends an object, HEARTBEAT and WORK_TIME_FREQUENCY send the string "{}".
type outboundFrame struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	DeviceID string          `json:"deviceId"`
}

func (s *Session) writeFrame(frame outboundFrame) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

// sendRepoll issues the trigger half of the poll protocol: ping the
// activate endpoint, then send a SUPERCOMMAND frame. The confirming state
// arrives as an asynchronous push. waiting_for_response is set only when
// the trigger actually went out.
func (s *Session) sendRepoll(ctx context.Context) {
	if err := s.api.Activate(ctx, s.device.ID); err != nil {
		s.log.Errorw("repoll_activate_failed", "err", err)
		return
	}
	frame := outboundFrame{
		Type:     models.MsgSupercommand,
		Data:     json.RawMessage(`{}`),
		DeviceID: s.device.ID,
	}
	if err := s.writeFrame(frame); err != nil {
		s.log.Errorw("repoll_send_failed", "err", err)
		return
	}
	s.state.markRepollSent()
	s.log.Debugw("repoll_sent")
}

// requestInitialSchedule fetches today's schedule right after connecting:
// the HTTP trigger for the current weekday followed by the
// WORK_TIME_FREQUENCY frame.
func (s *Session) requestInitialSchedule(ctx context.Context) {
	today := models.Weekday(time.Now().Weekday())
	if err := s.api.RequestSchedule(ctx, s.device.ID, today); err != nil {
		s.log.Errorw("schedule_trigger_failed", "err", err)
	}
	frame := outboundFrame{
		Type:     models.MsgWorkTimeFrequency,
		Data:     json.RawMessage(`"{}"`),
		DeviceID: s.device.ID,
	}
	if err := s.writeFrame(frame); err != nil {
		s.log.Errorw("schedule_frame_send_failed", "err", err)
	}
}
