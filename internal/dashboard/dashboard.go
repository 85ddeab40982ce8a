// Package dashboard serves a single read-only operator page over the
// push-API listener, backed by a JSON endpoint that exposes registry
// statistics, per-channel connection counts, and (when a coordinator is
// configured) the cluster-wide instance and channel roster.
//
// spec.md §1 places "the dashboard UI and its HTTP handlers" out of scope
// except for "the contract that they observe registry state" — this package
// is exactly that contract, grounded on the teacher's handleAgentRoster
// (internal/server/http_roster.go): a single handler assembling a snapshot
// from the live registry plus store-side enrichment, generalized here from
// "agent roster" to "connection roster".
package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alfredjeanlab/ssegateway/internal/registry"
)

// CoordinatorSnapshot fetches the cluster-wide instance and channel roster
// for inclusion in /api/stats. The coordinator package's own types satisfy
// this signature's return values via the `any` erasure; dashboard doesn't
// need to know their shape beyond "JSON-encodable".
type CoordinatorSnapshot func() (instances, channels any, err error)

// Handler serves the dashboard's HTML page and JSON snapshot endpoint.
type Handler struct {
	registry    *registry.Registry
	instanceID  string
	coordinator CoordinatorSnapshot // nil when no coordinator is configured
	log         *slog.Logger
}

// NewHandler constructs a dashboard handler. coordinatorSnapshot, if
// non-nil, is invoked on every /api/stats request to fetch the cluster-wide
// instance and channel roster; pass nil for a single-instance deployment.
func NewHandler(reg *registry.Registry, instanceID string, coordinatorSnapshot CoordinatorSnapshot, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{registry: reg, instanceID: instanceID, coordinator: coordinatorSnapshot, log: log}
}

// Mux builds the dashboard's http.ServeMux: GET / (HTML) and GET /api/stats
// (JSON), mounted on the push-API listener per ENABLE_DASHBOARD (spec.md §6).
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /api/stats", h.handleStats)
	return mux
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.StatsSnapshot()

	resp := map[string]any{
		"instance_id": h.instanceID,
		"stats": map[string]any{
			"total_connections":   stats.TotalConnections,
			"broadcast_only":      stats.BroadcastOnly,
			"channel_count":       stats.ChannelCount,
			"slow_consumer_drops": stats.SlowConsumerTotal,
		},
		"channels": h.registry.ChannelCounts(),
	}

	if h.coordinator != nil {
		instances, channels, err := h.coordinator()
		if err != nil {
			h.log.Warn("dashboard: coordinator snapshot failed", "error", err)
		} else {
			resp["instances"] = instances
			resp["channel_mappings"] = channels
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>ssegateway</title>
<style>
  body { font-family: ui-monospace, monospace; margin: 2rem; background: #0d1117; color: #c9d1d9; }
  h1 { font-size: 1.1rem; color: #58a6ff; }
  table { border-collapse: collapse; margin-top: 1rem; }
  td, th { padding: 0.25rem 0.75rem; text-align: left; border-bottom: 1px solid #30363d; }
  #err { color: #f85149; }
</style>
</head>
<body>
<h1>ssegateway — connection dashboard</h1>
<div id="summary"></div>
<table id="channels"><thead><tr><th>channel_id</th><th>connections</th></tr></thead><tbody></tbody></table>
<div id="err"></div>
<script>
async function refresh() {
  try {
    const r = await fetch('/api/stats');
    const data = await r.json();
    document.getElementById('summary').innerHTML =
      '<p>instance: ' + data.instance_id + '</p>' +
      '<p>total connections: ' + data.stats.total_connections +
      ' | broadcast-only: ' + data.stats.broadcast_only +
      ' | channels: ' + data.stats.channel_count +
      ' | slow-consumer drops: ' + data.stats.slow_consumer_drops + '</p>';
    const tbody = document.querySelector('#channels tbody');
    tbody.innerHTML = '';
    for (const [ch, count] of Object.entries(data.channels || {})) {
      const row = document.createElement('tr');
      row.innerHTML = '<td>' + ch + '</td><td>' + count + '</td>';
      tbody.appendChild(row);
    }
  } catch (e) {
    document.getElementById('err').textContent = 'failed to load stats: ' + e;
  }
}
refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>
`
