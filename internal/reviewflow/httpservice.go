package reviewflow

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
)

// DefAuditListLimit is the number of audit records returned when the
// request does not specify a limit.
const DefAuditListLimit = 100

// HTTPService serves the state of the merge queues and the audit log as
// JSON.
type HTTPService struct {
	registry *Registry
	logger   *zap.Logger
}

func NewHTTPService(registry *Registry) *HTTPService {
	return &HTTPService{
		registry: registry,
		logger:   registry.logger.Named("http_service"),
	}
}

// RegisterHandlers registers the status handler at endpoint and the audit
// log handlers below endpoint.
func (h *HTTPService) RegisterHandlers(router chi.Router, endpoint string) {
	router.Get(endpoint, h.HandlerStatusFunc)
	router.Get(endpoint+"/audit", h.HandlerAuditFunc)
	router.Get(endpoint+"/audit/{owner}/{repository}", h.HandlerAuditFunc)
}

func (h *HTTPService) writeJSON(respWr http.ResponseWriter, status int, v any) {
	respWr.Header().Set("Content-Type", "application/json")
	respWr.WriteHeader(status)

	enc := json.NewEncoder(respWr)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		h.logger.Info(
			"sending response failed",
			logfields.Event("http_response_failed"),
			zap.Error(err),
		)
	}
}

func (h *HTTPService) HandlerStatusFunc(respWr http.ResponseWriter, _ *http.Request) {
	h.writeJSON(respWr, http.StatusOK, h.registry.httpStatusData())
}

func (h *HTTPService) HandlerAuditFunc(respWr http.ResponseWriter, req *http.Request) {
	if h.registry.audit == nil {
		http.Error(respWr, "audit log is disabled", http.StatusNotFound)
		return
	}

	limit := DefAuditListLimit
	if v := req.URL.Query().Get("limit"); v != "" {
		var err error
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			http.Error(respWr, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
	}

	var repository string
	if owner := chi.URLParam(req, "owner"); owner != "" {
		repository = owner + "/" + chi.URLParam(req, "repository")
	}

	recs, err := h.registry.audit.List(req.Context(), repository, limit)
	if err != nil {
		h.logger.Warn(
			"listing audit records failed",
			logfields.Event("audit_record_list_failed"),
			zap.Error(err),
		)
		http.Error(respWr, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(respWr, http.StatusOK, newHTTPAuditRecords(recs))
}
