package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Mailflow/internal/domain"
)

// GetSettings возвращает текущие настройки выполнения.
// GET /api/v1/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsRepo.Load(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, settings)
}

// UpdateSettings сохраняет настройки выполнения.
// PUT /api/v1/settings
//
// Движок читает настройки в начале каждого цикла — изменения вступают
// в силу со следующего цикла, не посередине текущего.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if settings.FetchBatchSizePerProcess <= 0 {
		BadRequest(w, "fetch_batch_size_per_process must be positive")
		return
	}
	if settings.MaxConcurrentProcesses <= 0 {
		BadRequest(w, "max_concurrent_processes must be positive")
		return
	}
	if settings.DefaultRetryDelaySec < 0 {
		BadRequest(w, "default_retry_delay_sec must be non-negative")
		return
	}
	if settings.MaxDailyEmailsPerCustomer < 0 {
		BadRequest(w, "max_daily_emails_per_customer must be non-negative")
		return
	}

	if err := h.settingsRepo.Save(r.Context(), &settings); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, settings)
}
