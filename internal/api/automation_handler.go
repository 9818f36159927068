package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
)

// EnrollContact подписывает контакт на flow.
// POST /api/v1/flows/{id}/enrollments
//
// Версия шагов закрепляется в момент подписки: дальнейшее редактирование
// flow не меняет путь уже подписанных контактов. Повторная подписка того
// же контакта — 409.
func (h *Handler) EnrollContact(w http.ResponseWriter, r *http.Request) {
	flowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	flow, err := h.flowRepo.GetByID(r.Context(), flowID)
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	contact, err := h.contactRepo.GetByID(r.Context(), req.ContactID)
	if HandleRepoError(w, h.logger, err, "contact not found") {
		return
	}
	if contact.Status == domain.ContactStatusDeleted {
		InvalidState(w, "contact is deleted")
		return
	}

	// Определяем закрепляемую версию
	version := flow.CurrentVersion
	if req.Version != nil {
		version = *req.Version
	}
	if version == 0 {
		InvalidState(w, "flow has no versions")
		return
	}
	_, err = h.flowRepo.GetVersion(r.Context(), flowID, version)
	if HandleRepoError(w, h.logger, err, "flow version not found") {
		return
	}

	now := time.Now().UTC()
	automation := &domain.Automation{
		ContactID:   contact.ID,
		FlowID:      flow.ID,
		FlowVersion: version,
		StepIndex:   0,
		Status:      domain.AutomationStatusActive,
		NextStepAt:  now,
		EnrolledAt:  now,
		UpdatedAt:   now,
	}

	if err := h.automationRepo.Create(r.Context(), automation); err != nil {
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	// Подталкиваем движок — первый шаг без ожидания polling-цикла.
	// Ошибка публикации не откатывает подписку: polling подхватит.
	if h.publisher != nil {
		if err := h.publisher.PublishAutomationEnrolled(r.Context(), contact.ID, flow.ID); err != nil {
			h.logger.Warn("failed to publish automation.enrolled",
				"contact_id", contact.ID,
				"flow_id", flow.ID,
				"error", err,
			)
		}
	}

	Created(w, AutomationFromDomain(*automation))
}

// ListFlowAutomations возвращает автоматизации flow.
// GET /api/v1/flows/{id}/enrollments
func (h *Handler) ListFlowAutomations(w http.ResponseWriter, r *http.Request) {
	flowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	automations, err := h.automationRepo.ListByFlow(r.Context(), flowID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]AutomationResponse, len(automations))
	for i, a := range automations {
		result[i] = AutomationFromDomain(a)
	}

	List(w, result, len(result))
}

// ListContactAutomations возвращает автоматизации контакта.
// GET /api/v1/contacts/{id}/automations
func (h *Handler) ListContactAutomations(w http.ResponseWriter, r *http.Request) {
	contactID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid contact id")
		return
	}

	automations, err := h.automationRepo.ListByContact(r.Context(), contactID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]AutomationResponse, len(automations))
	for i, a := range automations {
		result[i] = AutomationFromDomain(a)
	}

	List(w, result, len(result))
}

// GetAutomation возвращает автоматизацию по ключу (contact, flow).
// GET /api/v1/flows/{id}/enrollments/{contact_id}
func (h *Handler) GetAutomation(w http.ResponseWriter, r *http.Request) {
	flowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	contactID, err := uuid.Parse(r.PathValue("contact_id"))
	if err != nil {
		BadRequest(w, "invalid contact id")
		return
	}

	automation, err := h.automationRepo.Get(r.Context(), contactID, flowID)
	if HandleRepoError(w, h.logger, err, "automation not found") {
		return
	}

	Success(w, AutomationFromDomain(*automation))
}

// PauseAutomation приостанавливает автоматизацию оператором.
// POST /api/v1/flows/{id}/enrollments/{contact_id}/pause
//
// Завершённые и упавшие автоматизации не приостанавливаются — 422.
func (h *Handler) PauseAutomation(w http.ResponseWriter, r *http.Request) {
	flowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	contactID, err := uuid.Parse(r.PathValue("contact_id"))
	if err != nil {
		BadRequest(w, "invalid contact id")
		return
	}

	err = h.automationRepo.SetStatus(r.Context(), contactID, flowID, domain.AutomationStatusPaused)
	if HandleRepoError(w, h.logger, err, "automation not found") {
		return
	}

	NoContent(w)
}

// ResumeAutomation возобновляет приостановленную автоматизацию.
// POST /api/v1/flows/{id}/enrollments/{contact_id}/resume
func (h *Handler) ResumeAutomation(w http.ResponseWriter, r *http.Request) {
	flowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	contactID, err := uuid.Parse(r.PathValue("contact_id"))
	if err != nil {
		BadRequest(w, "invalid contact id")
		return
	}

	err = h.automationRepo.SetStatus(r.Context(), contactID, flowID, domain.AutomationStatusActive)
	if HandleRepoError(w, h.logger, err, "automation not found") {
		return
	}

	NoContent(w)
}
