// Package httpapi implements the C4 HTTP surface: POST /process, GET
// /status/{jobId}, and a liveness endpoint, following the chi router +
// rs/cors shape used by cmd/coreml_inference_server.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/alexcolls/oriane-sub000/pkg/concurrency"
	"github.com/alexcolls/oriane-sub000/pkg/job"
	"github.com/alexcolls/oriane-sub000/pkg/worker"
)

// Dispatcher is the subset of the worker runner the HTTP surface needs:
// run one job's extraction to completion. Implemented by *worker.Runner.
type Dispatcher interface {
	Run(ctx context.Context, jobID uuid.UUID, items []worker.Item) error
}

// Server wires the job store and concurrency pool behind the HTTP API.
type Server struct {
	store               *job.Store
	pool                *concurrency.Pool
	dispatcher          Dispatcher
	logger              *log.Logger
	maxVideosPerRequest int
}

func New(store *job.Store, pool *concurrency.Pool, dispatcher Dispatcher, logger *log.Logger, maxVideosPerRequest int) *Server {
	return &Server{
		store:               store,
		pool:                pool,
		dispatcher:          dispatcher,
		logger:              logger,
		maxVideosPerRequest: maxVideosPerRequest,
	}
}

// Router builds the chi.Mux serving this control plane's endpoints.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.New(cors.Options{
		AllowCredentials: true,
		AllowedOrigins:   []string{"*"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
	}).Handler)

	r.Get("/health", s.handleHealth)
	r.Post("/process", s.handleProcess)
	r.Get("/status/{jobId}", s.handleStatus)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type processItem struct {
	Platform string `json:"platform"`
	Code     string `json:"code"`
}

type processRequest struct {
	Items []processItem `json:"items"`
}

type processResponse struct {
	JobID string `json:"jobId"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if len(req.Items) < 1 || len(req.Items) > s.maxVideosPerRequest {
		writeError(w, http.StatusBadRequest, "items must contain between 1 and "+strconv.Itoa(s.maxVideosPerRequest)+" entries")
		return
	}

	storeItems := make([]job.WorkItem, len(req.Items))
	workerItems := make([]worker.Item, len(req.Items))
	for i, it := range req.Items {
		storeItems[i] = job.WorkItem{Platform: it.Platform, Code: it.Code}
		workerItems[i] = worker.Item{Platform: it.Platform, Code: it.Code}
	}

	j := s.store.Create(storeItems)

	_, err := concurrency.Submit(s.pool, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.dispatcher.Run(ctx, j.ID, workerItems)
	})
	if err != nil {
		s.logger.Error("submitting job to pool", "job", j.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	writeJSON(w, http.StatusAccepted, processResponse{JobID: j.ID.String()})
}

type statusItem struct {
	Platform   string `json:"platform"`
	Code       string `json:"code"`
	ItemStatus string `json:"itemStatus"`
}

type statusLog struct {
	Ts    time.Time `json:"ts"`
	Level string    `json:"level"`
	Msg   string    `json:"msg"`
}

type statusResponse struct {
	Status    string       `json:"status"`
	Progress  int          `json:"progress"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Items     []statusItem `json:"items"`
	Logs      []statusLog  `json:"logs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}

	j, ok := s.store.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}

	tail := 0
	if raw := r.URL.Query().Get("tail"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			tail = n
		}
	}

	logs := j.TailLogs(tail)
	resp := statusResponse{
		Status:    string(j.Status),
		Progress:  j.Progress,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
		Items:     make([]statusItem, len(j.Items)),
		Logs:      make([]statusLog, len(logs)),
	}
	for i, it := range j.Items {
		resp.Items[i] = statusItem{Platform: it.Platform, Code: it.Code, ItemStatus: string(it.ItemStatus)}
	}
	for i, l := range logs {
		resp.Logs[i] = statusLog{Ts: l.Ts, Level: string(l.Level), Msg: l.Msg}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
