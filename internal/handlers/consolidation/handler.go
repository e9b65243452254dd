package consolidation

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
	"github.com/courierpay/payment-engine/internal/services/consolidation"
	"github.com/courierpay/payment-engine/internal/tasks"
	"github.com/courierpay/payment-engine/internal/worker"
)

// Handler exposes the batch consolidation trigger and task status polling
type Handler struct {
	service *consolidation.Service
	tracker *tasks.Tracker
	runner  *worker.Runner
	logger  ports.Logger
}

// NewHandler creates a new consolidation HTTP handler
func NewHandler(service *consolidation.Service, tracker *tasks.Tracker, runner *worker.Runner, logger ports.Logger) *Handler {
	return &Handler{
		service: service,
		tracker: tracker,
		runner:  runner,
		logger:  logger,
	}
}

// TaskResponse is the JSON shape for a batch task
type TaskResponse struct {
	TaskID             string   `json:"taskId"`
	Status             string   `json:"status"`
	Message            string   `json:"message"`
	ProgressPercentage int      `json:"progressPercentage"`
	Errors             []string `json:"errors,omitempty"`
	CreatedAt          string   `json:"createdAt"`
	UpdatedAt          string   `json:"updatedAt"`
}

// ProcessAll handles POST /consolidated-payments/process-all.
// The heavy work runs on the batch runner; the response only acknowledges
// that a task was queued.
func (h *Handler) ProcessAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	taskID := h.tracker.CreateTask()

	if err := h.runner.Dispatch(taskID, h.service.ProcessAllClientsConsolidatedPayments); err != nil {
		h.logger.Warn("batch dispatch rejected",
			ports.String("task_id", taskID),
			ports.Err(err))
		// The task never ran; settle it so polling its id is meaningful.
		if failErr := h.tracker.MarkFailed(taskID, "another batch run is already in progress", nil); failErr != nil {
			h.logger.Error("failed to settle rejected task",
				ports.String("task_id", taskID),
				ports.Err(failErr))
		}
		h.respondJSON(w, http.StatusConflict, map[string]interface{}{
			"success": false,
			"error":   "another batch run is already in progress",
			"taskId":  taskID,
		})
		return
	}

	h.logger.Info("batch consolidation queued", ports.String("task_id", taskID))

	h.respondJSON(w, http.StatusAccepted, TaskResponse{
		TaskID:             taskID,
		Status:             string(domain.TaskStatusQueued),
		Message:            "Processamento iniciado",
		ProgressPercentage: 0,
		CreatedAt:          time.Now().Format(time.RFC3339),
		UpdatedAt:          time.Now().Format(time.RFC3339),
	})
}

// Status handles GET /consolidated-payments/status/{taskId}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "only GET method is allowed")
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/consolidated-payments/status/")
	if taskID == "" || strings.Contains(taskID, "/") {
		h.respondError(w, http.StatusBadRequest, "taskId is required")
		return
	}

	task, err := h.tracker.GetStatus(taskID)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":  "Tarefa não encontrada",
			"taskId": taskID,
		})
		return
	}

	h.respondJSON(w, http.StatusOK, TaskResponse{
		TaskID:             task.ID,
		Status:             string(task.Status),
		Message:            task.Message,
		ProgressPercentage: task.ProgressPercentage,
		Errors:             task.Errors,
		CreatedAt:          task.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          task.UpdatedAt.Format(time.RFC3339),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", ports.Err(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode error response", ports.Err(err))
	}
}
