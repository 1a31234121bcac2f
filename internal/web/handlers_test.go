package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/godrive/internal/logic/motion"
	"github.com/cjeanneret/godrive/internal/logic/odom"
	"github.com/cjeanneret/godrive/internal/telemetry"
	"github.com/gorilla/websocket"
)

// ---------- Fakes ----------

type fakeRobot struct {
	mu        sync.Mutex
	tuning    motion.Tuning
	cancelled int
}

func newFakeRobot() *fakeRobot {
	return &fakeRobot{tuning: motion.DefaultTuning()}
}

func (r *fakeRobot) Pose() odom.Pose                 { return odom.Pose{X: 1, Y: 2, Heading: 90} }
func (r *fakeRobot) ForwardTrackerPosition() float64 { return 4 }
func (r *fakeRobot) Target() motion.Target {
	return motion.Target{Kind: motion.KindTurnToAngle, Angle: 90}
}
func (r *fakeRobot) DistanceTraveled() float64 { return 0 }
func (r *fakeRobot) IsInMotion() bool          { return false }

func (r *fakeRobot) Tuning() motion.Tuning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tuning
}

func (r *fakeRobot) SetTuning(t motion.Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.tuning = t
	r.mu.Unlock()
	return nil
}

func (r *fakeRobot) CancelMotion() {
	r.mu.Lock()
	r.cancelled++
	r.mu.Unlock()
}

func (r *fakeRobot) cancels() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

type fakeRoutines struct {
	run func(ctx context.Context, name string) error
}

func (f *fakeRoutines) Names() []string { return []string{"drive", "turn"} }

func (f *fakeRoutines) Run(ctx context.Context, name string) error {
	if f.run == nil {
		return nil
	}
	return f.run(ctx, name)
}

// ---------- Handler helpers ----------

func newTestHandlers(routines Routines, cooldown time.Duration) (*Handlers, *fakeRobot) {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	robot := newFakeRobot()
	h := NewHandlers(Deps{
		Robot:    robot,
		Routines: routines,
		Cooldown: cooldown,
	}, staticFS)
	return h, robot
}

func runBody(name string) *bytes.Reader {
	data, _ := json.Marshal(RunRequest{Routine: name})
	return bytes.NewReader(data)
}

func waitIdle(t *testing.T, h *Handlers) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Running() != "" {
		if time.Now().After(deadline) {
			t.Fatal("routine still running")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ---------- HandleRun ----------

func TestHandleRun_ValidPost(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{}, 0)
	req := httptest.NewRequest(http.MethodPost, "/run", runBody("drive"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "started" {
		t.Errorf("response status = %q, want \"started\"", resp["status"])
	}
	if resp["routine"] != "drive" {
		t.Errorf("response routine = %q, want \"drive\"", resp["routine"])
	}
	waitIdle(t, h)
}

func TestHandleRun_GetMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{}, 0)
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleRun_InvalidJSON(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{}, 0)
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRun_UnknownRoutine(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{}, 0)
	req := httptest.NewRequest(http.MethodPost, "/run", runBody("dance"))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRun_OversizedBody(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{}, 0)
	big := strings.Repeat("x", 2<<20) // 2 MB
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(big))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d (oversized body)", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRun_NilRoutines(t *testing.T) {
	h, _ := newTestHandlers(nil, 0)
	req := httptest.NewRequest(http.MethodPost, "/run", runBody("drive"))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleRun_ConcurrentRoutine(t *testing.T) {
	started := make(chan struct{})
	blocking := make(chan struct{})
	slow := &fakeRoutines{run: func(context.Context, string) error {
		close(started)
		<-blocking
		return nil
	}}

	h, _ := newTestHandlers(slow, 0)

	w1 := httptest.NewRecorder()
	h.HandleRun(w1, httptest.NewRequest(http.MethodPost, "/run", runBody("drive")))
	if w1.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w1.Code, http.StatusAccepted)
	}

	<-started
	if got := h.Running(); got != "drive" {
		t.Errorf("Running() = %q, want \"drive\"", got)
	}

	w2 := httptest.NewRecorder()
	h.HandleRun(w2, httptest.NewRequest(http.MethodPost, "/run", runBody("turn")))
	if w2.Code != http.StatusConflict {
		t.Errorf("concurrent request: status = %d, want %d", w2.Code, http.StatusConflict)
	}

	close(blocking)
	waitIdle(t, h)
}

func TestHandleRun_Cooldown(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{}, 5*time.Second)

	w1 := httptest.NewRecorder()
	h.HandleRun(w1, httptest.NewRequest(http.MethodPost, "/run", runBody("drive")))
	if w1.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w1.Code, http.StatusAccepted)
	}
	waitIdle(t, h)

	w2 := httptest.NewRecorder()
	h.HandleRun(w2, httptest.NewRequest(http.MethodPost, "/run", runBody("drive")))
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", w2.Code, http.StatusTooManyRequests)
	}
}

func TestHandleRun_BroadcastsOutcome(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{run: func(context.Context, string) error {
		return errors.New("tracker unplugged")
	}}, 0)
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	h.HandleRun(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/run", runBody("turn")))

	var msgs []string
	for len(msgs) < 2 {
		select {
		case raw := <-ch:
			var evt StatusEvent
			if err := json.Unmarshal([]byte(raw), &evt); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if evt.Routine != "turn" {
				t.Errorf("routine = %q, want \"turn\"", evt.Routine)
			}
			msgs = append(msgs, evt.Level+": "+evt.Msg)
		case <-time.After(time.Second):
			t.Fatalf("timeout, got %q", msgs)
		}
	}
	if msgs[0] != "info: Routine started" {
		t.Errorf("first event = %q", msgs[0])
	}
	if msgs[1] != "error: Routine failed: tracker unplugged" {
		t.Errorf("second event = %q", msgs[1])
	}
	waitIdle(t, h)
}

func TestHandleRun_StoppedMotionReportsCancelled(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{run: func(context.Context, string) error {
		return fmt.Errorf("step 2 (drive_distance): %w", motion.ErrCancelled)
	}}, 0)
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	h.HandleRun(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/run", runBody("drive")))

	if evt := recv(t, ch); evt.Msg != "Routine started" {
		t.Errorf("first event = %+v", evt)
	}
	if evt := recv(t, ch); evt.Level != "warn" || evt.Msg != "Routine cancelled" {
		t.Errorf("second event = %+v, want warn Routine cancelled", evt)
	}
	waitIdle(t, h)
}

// ---------- HandleCancel ----------

func TestHandleCancel(t *testing.T) {
	started := make(chan struct{})
	h, robot := newTestHandlers(&fakeRoutines{run: func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}, 0)

	h.HandleRun(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/run", runBody("drive")))
	<-started

	w := httptest.NewRecorder()
	h.HandleCancel(w, httptest.NewRequest(http.MethodPost, "/cancel", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	waitIdle(t, h)
	if robot.cancels() != 1 {
		t.Errorf("CancelMotion calls = %d, want 1", robot.cancels())
	}
}

// ---------- State and tuning ----------

func TestHandleState(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{}, 0)
	w := httptest.NewRecorder()

	h.HandleState(w, httptest.NewRequest(http.MethodGet, "/state", nil))

	var s telemetry.Sample
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Pose.Heading != 90 || s.Forward != 4 {
		t.Errorf("state = %+v", s)
	}
	if s.Target.Kind != motion.KindTurnToAngle {
		t.Errorf("target kind = %q, want %q", s.Target.Kind, motion.KindTurnToAngle)
	}
}

func TestHandleTuning(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{}, 0)
	w := httptest.NewRecorder()

	h.HandleTuning(w, httptest.NewRequest(http.MethodGet, "/tuning", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got motion.Tuning
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != motion.DefaultTuning() {
		t.Errorf("tuning = %+v, want defaults", got)
	}
}

func TestHandleSetTuning_Partial(t *testing.T) {
	h, robot := newTestHandlers(&fakeRoutines{}, 0)
	body := strings.NewReader(`{"turn":{"kp":0.5},"lookahead_distance":8}`)
	w := httptest.NewRecorder()

	h.HandleSetTuning(w, httptest.NewRequest(http.MethodPut, "/tuning", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	got := robot.Tuning()
	if got.Turn.Kp != 0.5 {
		t.Errorf("Turn.Kp = %v, want 0.5", got.Turn.Kp)
	}
	if got.LookaheadDistance != 8 {
		t.Errorf("LookaheadDistance = %v, want 8", got.LookaheadDistance)
	}
	if got.Turn.MaxVoltage != motion.DefaultTuning().Turn.MaxVoltage {
		t.Errorf("Turn.MaxVoltage = %v, want default kept", got.Turn.MaxVoltage)
	}
}

func TestHandleSetTuning_Invalid(t *testing.T) {
	h, robot := newTestHandlers(&fakeRoutines{}, 0)
	w := httptest.NewRecorder()

	h.HandleSetTuning(w, httptest.NewRequest(http.MethodPut, "/tuning",
		strings.NewReader(`{"drive":{"max_voltage":40}}`)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if robot.Tuning() != motion.DefaultTuning() {
		t.Error("invalid tuning must not be applied")
	}
}

// ---------- Telemetry websocket ----------

func TestHandleTelemetryWS(t *testing.T) {
	h, robot := newTestHandlers(&fakeRoutines{}, 0)
	h.Recorder = telemetry.NewRecorder(robot, 0)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleTelemetryWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The handler subscribes after the upgrade; record until a sample arrives.
	got := make(chan telemetry.Sample, 1)
	go func() {
		var s telemetry.Sample
		if err := conn.ReadJSON(&s); err == nil {
			got <- s
		}
	}()
	deadline := time.After(2 * time.Second)
	for {
		h.Recorder.Record()
		select {
		case s := <-got:
			if s.Pose.X != 1 || s.Pose.Y != 2 {
				t.Errorf("pose = %+v", s.Pose)
			}
			return
		case <-deadline:
			t.Fatal("no sample received")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHandleTelemetryWS_NoRecorder(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{}, 0)
	w := httptest.NewRecorder()

	h.HandleTelemetryWS(w, httptest.NewRequest(http.MethodGet, "/telemetry/ws", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h, _ := newTestHandlers(&fakeRoutines{}, 0)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	h.ServeIndex(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

// ---------- Server routes ----------

func TestServer_Routes(t *testing.T) {
	s := NewServer(":0", Deps{Robot: newFakeRobot(), Routines: &fakeRoutines{}})
	mux := s.Mux()

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/routines", http.StatusOK},
		{http.MethodGet, "/state", http.StatusOK},
		{http.MethodGet, "/tuning", http.StatusOK},
		{http.MethodGet, "/run", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodGet, "/telemetry/ws", http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestServer_ShutdownStopsRoutine(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan error, 1)
	s := NewServer("127.0.0.1:0", Deps{
		Robot: newFakeRobot(),
		Routines: &fakeRoutines{run: func(ctx context.Context, _ string) error {
			close(started)
			<-ctx.Done()
			stopped <- ctx.Err()
			return ctx.Err()
		}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	w := httptest.NewRecorder()
	s.handlers.HandleRun(w, httptest.NewRequest(http.MethodPost, "/run", runBody("drive")))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	<-started

	cancel()
	select {
	case err := <-stopped:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("routine ctx err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("routine kept running after shutdown")
	}
	if err := <-done; err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
	waitIdle(t, s.handlers)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", Deps{Robot: newFakeRobot()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}
