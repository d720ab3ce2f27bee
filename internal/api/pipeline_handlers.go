package api

import (
	"log/slog"
	"net/http"

	"github.com/hearthplan/hearthplan/internal/pipeline"
)

// PipelineHandler exposes manual pipeline control.
type PipelineHandler struct {
	runner *pipeline.Runner
	logger *slog.Logger
}

// NewPipelineHandler creates the pipeline control handler.
func NewPipelineHandler(runner *pipeline.Runner, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{runner: runner, logger: logger}
}

// Run handles POST /api/pipeline/run, triggering a discovery run
// synchronously.
func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.runner.Run(r.Context())
	if err == pipeline.ErrRunInProgress {
		http.Error(w, "A discovery run is already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("manual discovery run failed", "error", err)
		http.Error(w, "Discovery run failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// LastRun handles GET /api/pipeline/last.
func (h *PipelineHandler) LastRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := h.runner.LastRun()
	if result == nil {
		writeJSON(w, http.StatusOK, map[string]any{"last_run": nil})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
