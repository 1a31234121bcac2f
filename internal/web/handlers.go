package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/logic/motion"
	"github.com/cjeanneret/godrive/internal/telemetry"
	"github.com/gorilla/websocket"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Robot is the chassis surface exposed over HTTP.
type Robot interface {
	telemetry.Source
	Tuning() motion.Tuning
	SetTuning(motion.Tuning) error
	CancelMotion()
}

// Routines lists and runs named programs.
type Routines interface {
	Names() []string
	Run(ctx context.Context, name string) error
}

// RunRequest is the body of POST /run.
type RunRequest struct {
	Routine string `json:"routine"`
}

// Deps holds the handler dependencies. Routines and Recorder may be nil;
// the endpoints needing them then answer 503.
type Deps struct {
	Broadcaster *StatusBroadcaster
	Robot       Robot
	Routines    Routines
	Recorder    *telemetry.Recorder
	// Cooldown is the minimum time between two routine starts.
	Cooldown time.Duration
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Deps
	staticFS fs.FS
	upgrader websocket.Upgrader

	runningMu sync.Mutex
	// base is the parent of routine runs. Server.Run swaps in its own
	// context so shutdown stops a routine in flight.
	base      context.Context
	running   string
	cancelRun context.CancelFunc
	lastStart time.Time
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(deps Deps, staticFS fs.FS) *Handlers {
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewStatusBroadcaster()
	}
	return &Handlers{
		Deps:     deps,
		staticFS: staticFS,
		base:     context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (h *Handlers) setBase(ctx context.Context) {
	h.runningMu.Lock()
	h.base = ctx
	h.runningMu.Unlock()
}

// Running returns the name of the running routine, or "".
func (h *Handlers) Running() string {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	return h.running
}

// HandleRoutines lists the routines and the one running.
func (h *Handlers) HandleRoutines(w http.ResponseWriter, r *http.Request) {
	if h.Routines == nil {
		http.Error(w, "routines not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"routines": h.Routines.Names(),
		"running":  h.Running(),
	})
}

// HandleRun handles POST /run to start a routine.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RunRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if h.Routines == nil {
		http.Error(w, "routines not configured", http.StatusServiceUnavailable)
		return
	}
	if !contains(h.Routines.Names(), req.Routine) {
		http.Error(w, "unknown routine", http.StatusBadRequest)
		return
	}

	h.runningMu.Lock()
	if h.running != "" {
		h.runningMu.Unlock()
		http.Error(w, "routine already in progress", http.StatusConflict)
		return
	}
	if !h.lastStart.IsZero() && time.Since(h.lastStart) < h.Cooldown {
		h.runningMu.Unlock()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	ctx, cancel := context.WithCancel(h.base)
	h.running = req.Routine
	h.cancelRun = cancel
	h.lastStart = time.Now()
	h.runningMu.Unlock()

	go func() {
		defer func() {
			cancel()
			h.runningMu.Lock()
			h.running = ""
			h.cancelRun = nil
			h.runningMu.Unlock()
		}()

		h.Broadcaster.RoutineEvent("info", req.Routine, "Routine started")
		err := h.Routines.Run(ctx, req.Routine)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, motion.ErrCancelled):
			h.Broadcaster.RoutineEvent("warn", req.Routine, "Routine cancelled")
		case err != nil:
			h.Broadcaster.RoutineEvent("error", req.Routine, "Routine failed: "+err.Error())
			debug.Error(fmt.Errorf("routine %s: %w", req.Routine, err))
		default:
			h.Broadcaster.RoutineEvent("info", req.Routine, "Routine complete")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "routine": req.Routine})
}

// HandleCancel stops the running routine and any motion in flight.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	cancel := h.cancelRun
	h.runningMu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.Robot.CancelMotion()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// HandleState returns one snapshot of the chassis.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, telemetry.Take(h.Robot, 0))
}

// HandleTuning returns the tuned constants.
func (h *Handlers) HandleTuning(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Robot.Tuning())
}

// HandleSetTuning replaces the tuned constants. Fields left out of the
// body keep their current value.
func (h *Handlers) HandleSetTuning(w http.ResponseWriter, r *http.Request) {
	t := h.Robot.Tuning()
	if err := decodeBody(w, r, &t); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := h.Robot.SetTuning(t); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Broadcaster.Broadcast("info", "Tuning updated")
	writeJSON(w, http.StatusOK, t)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleTelemetryWS streams samples as JSON messages over a websocket.
func (h *Handlers) HandleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	if h.Recorder == nil {
		http.Error(w, "telemetry not configured", http.StatusServiceUnavailable)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Error(fmt.Errorf("websocket upgrade: %w", err))
		return
	}
	defer ws.Close()

	samples, unsub := h.Recorder.Subscribe()
	defer unsub()

	// Reads only to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case s := <-samples:
			ws.SetWriteDeadline(time.Now().Add(time.Second))
			if err := ws.WriteJSON(s); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
