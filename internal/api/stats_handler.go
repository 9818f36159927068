package api

import "net/http"

// GetGlobalStats возвращает глобальную статистику аккаунта.
// GET /api/v1/stats
func (h *Handler) GetGlobalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsRepo.Load(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, GlobalStatsFromDomain(*stats))
}
