package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/service"
)

const maxBodyBytes = 1 << 20

func NewServer(addr string, engine *service.EngineService, gatherer prometheus.Gatherer, logger *slog.Logger) *http.Server {
	handler, gateway := newHandler(engine, gatherer, logger)
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	server.RegisterOnShutdown(gateway.Close)
	return server
}

func NewHandler(engine *service.EngineService, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	handler, _ := newHandler(engine, gatherer, logger)
	return handler
}

func newHandler(engine *service.EngineService, gatherer prometheus.Gatherer, logger *slog.Logger) (http.Handler, *Gateway) {
	if logger == nil {
		logger = slog.Default()
	}
	api := &api{engine: engine, logger: logger}
	gateway := NewGateway(engine, logger.With("component", "ws"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(dashboardPageHTML))
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		api.writeJSON(w, http.StatusOK, engine.Health())
	})
	mux.HandleFunc("GET /api/capabilities", api.capabilities)
	mux.HandleFunc("GET /api/agents", api.listAgents)
	mux.HandleFunc("POST /api/agents", api.createAgent)
	mux.HandleFunc("GET /api/agents/{id}", api.getAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", api.removeAgent)
	mux.HandleFunc("POST /api/agents/{id}/execute", api.executeTask)
	mux.HandleFunc("GET /api/metrics", func(w http.ResponseWriter, _ *http.Request) {
		api.writeJSON(w, http.StatusOK, engine.MetricsSnapshot())
	})
	mux.HandleFunc("POST /api/stress", api.stress)
	mux.HandleFunc("GET /api/runs", api.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", api.getRun)
	mux.HandleFunc("POST /api/demo", api.demo)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("GET /ws", gateway)

	return recordRequests(engine, mux), gateway
}

type api struct {
	engine *service.EngineService
	logger *slog.Logger
}

func (a *api) capabilities(w http.ResponseWriter, r *http.Request) {
	if agentType := strings.TrimSpace(r.URL.Query().Get("type")); agentType != "" {
		a.writeJSON(w, http.StatusOK, map[string]any{
			"type":         agentType,
			"capabilities": a.engine.CapabilitiesFor(agentType),
		})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"agent_types": a.engine.Capabilities()})
}

func (a *api) listAgents(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.engine.ListAgents())
}

func (a *api) createAgent(w http.ResponseWriter, r *http.Request) {
	var request service.CreateAgentRequest
	if !a.decode(w, r, &request) {
		return
	}
	agent, err := a.engine.CreateAgent(request)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, agent)
}

func (a *api) getAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := a.engine.GetAgent(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, agent)
}

func (a *api) removeAgent(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.RemoveAgent(r.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *api) executeTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Task domain.Task `json:"task"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	response, err := a.engine.ExecuteTask(r.Context(), service.ExecuteTaskRequest{
		AgentID: r.PathValue("id"),
		Task:    body.Task,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response)
}

func (a *api) stress(w http.ResponseWriter, r *http.Request) {
	var request domain.StressRequest
	if !a.decode(w, r, &request) {
		return
	}
	report, err := a.engine.RunStressTest(r.Context(), request)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, report)
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	runs, err := a.engine.ListRuns(r.Context(), service.ListRunsRequest{
		AgentID:  strings.TrimSpace(query.Get("agent_id")),
		TaskType: strings.TrimSpace(query.Get("task_type")),
		Status:   strings.TrimSpace(query.Get("status")),
		Limit:    limit,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, runs)
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.engine.GetRun(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, run)
}

func (a *api) demo(w http.ResponseWriter, r *http.Request) {
	var request service.DemoRequest
	if !a.decode(w, r, &request) {
		return
	}
	agent, err := a.engine.StartDemo(request)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusAccepted, agent)
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "request body is not valid JSON"})
		return false
	}
	return true
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if appErr, ok := domain.AsAppError(err); ok {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		a.engine.RecordError(err)
	}
	a.writeJSON(w, status, map[string]any{"error": message})
}

func statusFor(err error) int {
	appErr, ok := domain.AsAppError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConflict, domain.CodeFailedPrecondition:
		return http.StatusConflict
	case domain.CodeResourceExhausted:
		return http.StatusTooManyRequests
	case domain.CodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload, a.logger)
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("http json encode error", "error", err)
	}
}
