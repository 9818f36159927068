package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
)

const defaultDeliveryLimit = 100

// ListDeliveries возвращает журнал доставки с фильтрацией по статусу.
// GET /api/v1/deliveries?status=...&limit=...
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	status := domain.DeliveryStatus(r.URL.Query().Get("status"))
	switch status {
	case domain.DeliveryStatusPending, domain.DeliveryStatusProcessing,
		domain.DeliveryStatusSent, domain.DeliveryStatusFailed,
		domain.DeliveryStatusBounced:
	default:
		BadRequest(w, "invalid or missing status")
		return
	}

	limit := defaultDeliveryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	jobs, err := h.deliveryRepo.ListByStatus(r.Context(), status, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]DeliveryJobResponse, len(jobs))
	for i, j := range jobs {
		result[i] = DeliveryJobFromDomain(j)
	}

	List(w, result, len(result))
}

// GetDelivery возвращает запись журнала доставки по ID.
// GET /api/v1/deliveries/{id}
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid delivery id")
		return
	}

	job, err := h.deliveryRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "delivery job not found") {
		return
	}

	Success(w, DeliveryJobFromDomain(*job))
}
