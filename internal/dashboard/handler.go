package dashboard

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/mschirtzinger/stockroom/internal/connectivity"
	stocksync "github.com/mschirtzinger/stockroom/internal/sync"
	"github.com/mschirtzinger/stockroom/internal/types"
	"github.com/mschirtzinger/stockroom/internal/view"
)

// SnapshotData is the payload of a snapshot message
type SnapshotData struct {
	Items  []types.Item     `json:"items"`
	Online bool             `json:"online"`
	Source stocksync.Source `json:"source"`
}

// StatsData contains item statistics
type StatsData struct {
	Total   int            `json:"total"`
	Pending int            `json:"pending"`
	ByOp    map[string]int `json:"by_op"`
	Online  bool           `json:"online"`
}

// SyncCompleteData contains sync completion information
type SyncCompleteData struct {
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Deleted   int           `json:"deleted"`
	Recreated int           `json:"recreated"`
	Failed    int           `json:"failed"`
	Rejected  int           `json:"rejected"`
	Offline   bool          `json:"offline"`
	Items     int           `json:"items"`
	Duration  time.Duration `json:"duration"`
}

// ConnectivityData contains an online/offline transition
type ConnectivityData struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// Handler turns engine snapshots and events into dashboard messages. It
// implements sync.Subscriber and serves the current list at /items.
type Handler struct {
	server *Server
	logger *log.Logger

	mu     sync.RWMutex
	latest stocksync.Snapshot
}

// NewHandler creates a handler connected to a dashboard server and mounts
// its /items route.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{
		server: server,
		logger: logger,
	}
	server.Mount("GET /items", http.HandlerFunc(h.handleItems))
	return h
}

// OnSnapshot implements sync.Subscriber.
func (h *Handler) OnSnapshot(snap stocksync.Snapshot) {
	h.mu.Lock()
	h.latest = snap
	h.mu.Unlock()

	msg, ok := h.message(MessageTypeSnapshot, SnapshotData{
		Items:  snap.Items,
		Online: snap.Online,
		Source: snap.Source,
	})
	if !ok {
		return
	}
	h.server.SetWelcome(msg)
	h.server.Broadcast(msg)

	h.broadcastStats()
}

// OnSyncComplete handles sync completion events
func (h *Handler) OnSyncComplete(res stocksync.SyncResult, duration time.Duration) {
	r := res.Report
	h.logger.Printf("Sync complete: pushed=%d failed=%d rejected=%d items=%d in %v",
		r.Pushed(), r.Failed, r.Rejected, len(res.Snapshot.Items), duration)

	if msg, ok := h.message(MessageTypeSyncComplete, SyncCompleteData{
		Created:   r.Created,
		Updated:   r.Updated,
		Deleted:   r.Deleted,
		Recreated: r.Recreated,
		Failed:    r.Failed,
		Rejected:  r.Rejected,
		Offline:   r.Offline,
		Items:     len(res.Snapshot.Items),
		Duration:  duration,
	}); ok {
		h.server.Broadcast(msg)
	}
}

// OnConnectivity handles online/offline transitions
func (h *Handler) OnConnectivity(tr connectivity.Transition) {
	h.logger.Printf("Connectivity changed: online=%t", tr.Online)

	if msg, ok := h.message(MessageTypeConnectivity, ConnectivityData{Online: tr.Online, At: tr.At}); ok {
		h.server.Broadcast(msg)
	}
}

// GetStats returns statistics of the latest snapshot
func (h *Handler) GetStats() StatsData {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := StatsData{
		Total:  len(h.latest.Items),
		ByOp:   make(map[string]int),
		Online: h.latest.Online,
	}
	for _, it := range h.latest.Items {
		stats.ByOp[string(it.Pending)]++
		if !it.Synced {
			stats.Pending++
		}
	}
	return stats
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	if msg, ok := h.message(MessageTypeStats, h.GetStats()); ok {
		h.server.Broadcast(msg)
	}
}

// handleItems serves the latest snapshot through the display projection.
func (h *Handler) handleItems(w http.ResponseWriter, r *http.Request) {
	sortKey, err := view.ParseSort(r.URL.Query().Get("sort"))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	h.mu.RLock()
	items := view.Project(h.latest.Items, view.State{
		Filter: r.URL.Query().Get("filter"),
		Sort:   sortKey,
	})
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items)
}

func (h *Handler) message(typ MessageType, data any) (Message, bool) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return Message{}, false
	}
	return Message{Type: typ, Timestamp: time.Now(), Data: dataJSON}, true
}
