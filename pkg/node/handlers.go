package node

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

// healthz returns 200 OK to indicate the process is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// readyz returns 200 once every peer has been confirmed, 503 before.
func (n *Node) Readyz(w http.ResponseWriter, _ *http.Request) {
	if !n.src.Snapshot().Ready {
		http.Error(w, "waiting", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

type peerInfo struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Confirmed   bool       `json:"confirmed"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

type infoResp struct {
	PID    int        `json:"pid"`
	Now    time.Time  `json:"now"`
	Self   string     `json:"self"`
	Ready  bool       `json:"ready"`
	Rounds uint64     `json:"rounds"`
	Peers  []peerInfo `json:"peers"`
}

// info writes a JSON payload with the process ID, current time and the
// liveness table.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	snap := n.src.Snapshot()
	resp := infoResp{
		PID:    os.Getpid(),
		Now:    time.Now(),
		Self:   string(snap.Self),
		Ready:  snap.Ready,
		Rounds: snap.Rounds,
		Peers:  make([]peerInfo, 0, len(snap.Members)),
	}
	for _, m := range snap.Members {
		pi := peerInfo{ID: m.ID, Name: string(m.Name), Confirmed: m.Confirmed}
		if m.Confirmed {
			at := m.ConfirmedAt
			pi.ConfirmedAt = &at
		}
		resp.Peers = append(resp.Peers, pi)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		n.log.Error("encode info", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
