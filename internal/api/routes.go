package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Flows
	mux.Handle("GET /api/v1/flows", chain(http.HandlerFunc(h.ListFlows)))
	mux.Handle("POST /api/v1/flows", chain(http.HandlerFunc(h.CreateFlow)))
	mux.Handle("GET /api/v1/flows/{id}", chain(http.HandlerFunc(h.GetFlow)))
	mux.Handle("PUT /api/v1/flows/{id}", chain(http.HandlerFunc(h.UpdateFlow)))
	mux.Handle("PUT /api/v1/flows/{id}/active", chain(http.HandlerFunc(h.SetFlowActive)))
	mux.Handle("GET /api/v1/flows/{id}/stats", chain(http.HandlerFunc(h.GetFlowStats)))

	// Flow Versions
	mux.Handle("GET /api/v1/flows/{id}/versions", chain(http.HandlerFunc(h.ListFlowVersions)))
	mux.Handle("POST /api/v1/flows/{id}/versions", chain(http.HandlerFunc(h.CreateFlowVersion)))
	mux.Handle("GET /api/v1/flows/{id}/versions/{version}", chain(http.HandlerFunc(h.GetFlowVersion)))

	// Enrollments
	mux.Handle("POST /api/v1/flows/{id}/enrollments", chain(http.HandlerFunc(h.EnrollContact)))
	mux.Handle("GET /api/v1/flows/{id}/enrollments", chain(http.HandlerFunc(h.ListFlowAutomations)))
	mux.Handle("GET /api/v1/flows/{id}/enrollments/{contact_id}", chain(http.HandlerFunc(h.GetAutomation)))
	mux.Handle("POST /api/v1/flows/{id}/enrollments/{contact_id}/pause", chain(http.HandlerFunc(h.PauseAutomation)))
	mux.Handle("POST /api/v1/flows/{id}/enrollments/{contact_id}/resume", chain(http.HandlerFunc(h.ResumeAutomation)))

	// Templates
	mux.Handle("GET /api/v1/templates", chain(http.HandlerFunc(h.ListTemplates)))
	mux.Handle("POST /api/v1/templates", chain(http.HandlerFunc(h.CreateTemplate)))
	mux.Handle("GET /api/v1/templates/{id}", chain(http.HandlerFunc(h.GetTemplate)))
	mux.Handle("PUT /api/v1/templates/{id}", chain(http.HandlerFunc(h.UpdateTemplate)))
	mux.Handle("DELETE /api/v1/templates/{id}", chain(http.HandlerFunc(h.DeleteTemplate)))

	// Lists
	mux.Handle("GET /api/v1/lists", chain(http.HandlerFunc(h.ListLists)))
	mux.Handle("POST /api/v1/lists", chain(http.HandlerFunc(h.CreateList)))
	mux.Handle("GET /api/v1/lists/{id}", chain(http.HandlerFunc(h.GetList)))
	mux.Handle("DELETE /api/v1/lists/{id}", chain(http.HandlerFunc(h.DeleteList)))

	// Contacts
	mux.Handle("GET /api/v1/contacts", chain(http.HandlerFunc(h.ListContacts)))
	mux.Handle("POST /api/v1/contacts", chain(http.HandlerFunc(h.CreateContact)))
	mux.Handle("GET /api/v1/contacts/{id}", chain(http.HandlerFunc(h.GetContact)))
	mux.Handle("DELETE /api/v1/contacts/{id}", chain(http.HandlerFunc(h.DeleteContact)))
	mux.Handle("PUT /api/v1/contacts/{id}/list", chain(http.HandlerFunc(h.MoveContact)))
	mux.Handle("DELETE /api/v1/contacts/{id}/list", chain(http.HandlerFunc(h.RemoveContactFromList)))
	mux.Handle("GET /api/v1/contacts/{id}/automations", chain(http.HandlerFunc(h.ListContactAutomations)))
	mux.Handle("GET /api/v1/contacts/{id}/deliveries", chain(http.HandlerFunc(h.ListContactDeliveries)))

	// Deliveries
	mux.Handle("GET /api/v1/deliveries", chain(http.HandlerFunc(h.ListDeliveries)))
	mux.Handle("GET /api/v1/deliveries/{id}", chain(http.HandlerFunc(h.GetDelivery)))

	// Settings & Stats
	mux.Handle("GET /api/v1/settings", chain(http.HandlerFunc(h.GetSettings)))
	mux.Handle("PUT /api/v1/settings", chain(http.HandlerFunc(h.UpdateSettings)))
	mux.Handle("GET /api/v1/stats", chain(http.HandlerFunc(h.GetGlobalStats)))
}
