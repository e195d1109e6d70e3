package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// Triggerer schedules an out-of-band background sync round.
type Triggerer interface {
	Trigger()
}

// OpsHandler serves operator endpoints.
type OpsHandler struct {
	audit   domain.AuditStore
	trigger Triggerer
	logger  *slog.Logger
}

// NewOpsHandler creates an OpsHandler. Either dependency may be nil, in which
// case its endpoint answers 503.
func NewOpsHandler(audit domain.AuditStore, trigger Triggerer, logger *slog.Logger) *OpsHandler {
	return &OpsHandler{audit: audit, trigger: trigger, logger: logHandler(logger, "ops")}
}

// ListAudit returns recent audit log entries.
// GET /api/audit?limit=N&offset=M
func (h *OpsHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// TriggerSync requests an immediate background sync round.
// POST /api/pipeline/trigger
func (h *OpsHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "background sync not running")
		return
	}
	h.trigger.Trigger()
	h.logger.Info("background sync triggered", slog.String("remote_addr", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}
