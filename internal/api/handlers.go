package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// StatusProvider is satisfied by the strategy loop; kept narrow and
// package-local rather than re-introducing the teacher's
// engine-wide interfaces package (see DESIGN.md).
type StatusProvider interface {
	CurrentBlock() uint64
	PendingCount() int
	PromisingCount() int
}

// Controller is satisfied by the strategy loop's operator overrides.
type Controller interface {
	Pause()
	Resume()
	Paused() bool
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Status          string    `json:"status"`
	CurrentBlock    uint64    `json:"current_block"`
	PendingTxCount  int       `json:"pending_tx_count"`
	PromisingCount  int       `json:"promising_count"`
	ConnectedClients int      `json:"websocket_clients"`
	Timestamp       time.Time `json:"timestamp"`
}

// Handlers wires the strategy loop's live state into the status/control API.
type Handlers struct {
	status     StatusProvider
	control    Controller
	websockets *WebSocketServer
	startTime  time.Time
}

// NewHandlers builds a Handlers bound to the running strategy loop.
func NewHandlers(status StatusProvider, control Controller, websockets *WebSocketServer) *Handlers {
	return &Handlers{status: status, control: control, websockets: websockets, startTime: time.Now()}
}

// GetSystemStatus returns the current engine status.
func (h *Handlers) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	state := "running"
	if h.control.Paused() {
		state = "paused"
	}

	resp := StatusResponse{
		Status:           state,
		CurrentBlock:     h.status.CurrentBlock(),
		PendingTxCount:   h.status.PendingCount(),
		PromisingCount:   h.status.PromisingCount(),
		ConnectedClients: h.websockets.GetConnectedClients(),
		Timestamp:        time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleOverride handles operator control commands, mirroring the
// teacher's emergency_stop/resume_operation override surface.
func (h *Handlers) HandleOverride(w http.ResponseWriter, r *http.Request) {
	command := mux.Vars(r)["command"]

	switch command {
	case "pause":
		h.control.Pause()
	case "resume":
		h.control.Resume()
	default:
		http.Error(w, fmt.Sprintf("unknown command %q", command), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "command": command})
}
