package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
)

// ListContacts возвращает контакты сайта.
// GET /api/v1/contacts?website_id=...
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	websiteID, err := uuid.Parse(r.URL.Query().Get("website_id"))
	if err != nil {
		BadRequest(w, "website_id is required")
		return
	}

	contacts, err := h.contactRepo.List(r.Context(), websiteID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ContactResponse, len(contacts))
	for i, c := range contacts {
		result[i] = ContactFromDomain(c)
	}

	List(w, result, len(result))
}

// CreateContact создаёт новый контакт.
// POST /api/v1/contacts
func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req CreateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Email == "" {
		BadRequest(w, "email is required")
		return
	}
	if req.WebsiteID == uuid.Nil {
		BadRequest(w, "website_id is required")
		return
	}

	if req.ListID != nil {
		_, err := h.listRepo.GetByID(r.Context(), *req.ListID)
		if HandleRepoError(w, h.logger, err, "list not found") {
			return
		}
	}

	contact := &domain.Contact{
		ID:         uuid.New(),
		WebsiteID:  req.WebsiteID,
		ListID:     req.ListID,
		Email:      req.Email,
		Name:       req.Name,
		Attributes: req.Attributes,
		Status:     domain.ContactStatusSubscribed,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.contactRepo.Create(r.Context(), contact); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Created(w, ContactFromDomain(*contact))
}

// GetContact возвращает контакт по ID.
// GET /api/v1/contacts/{id}
func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid contact id")
		return
	}

	contact, err := h.contactRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "contact not found") {
		return
	}

	Success(w, ContactFromDomain(*contact))
}

// MoveContact переносит контакт в другой список.
// PUT /api/v1/contacts/{id}/list
func (h *Handler) MoveContact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid contact id")
		return
	}

	var req MoveContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.contactRepo.MoveToList(r.Context(), id, req.ListID); err != nil {
		if HandleRepoError(w, h.logger, err, "contact or list not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	NoContent(w)
}

// RemoveContactFromList убирает контакт из его текущего списка.
// DELETE /api/v1/contacts/{id}/list
func (h *Handler) RemoveContactFromList(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid contact id")
		return
	}

	if err := h.contactRepo.RemoveFromList(r.Context(), id); err != nil {
		if HandleRepoError(w, h.logger, err, "contact not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	NoContent(w)
}

// DeleteContact удаляет контакт (soft delete).
// DELETE /api/v1/contacts/{id}
//
// Запись остаётся ради журнала доставки; активные автоматизации контакта
// завершатся при следующем выполнении шага.
func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid contact id")
		return
	}

	if err := h.contactRepo.SoftDelete(r.Context(), id); err != nil {
		if HandleRepoError(w, h.logger, err, "contact not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	NoContent(w)
}

// ListContactDeliveries возвращает журнал доставок контакта.
// GET /api/v1/contacts/{id}/deliveries
func (h *Handler) ListContactDeliveries(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid contact id")
		return
	}

	jobs, err := h.deliveryRepo.ListByContact(r.Context(), id, 100)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]DeliveryJobResponse, len(jobs))
	for i, j := range jobs {
		result[i] = DeliveryJobFromDomain(j)
	}

	List(w, result, len(result))
}

// --- Lists ---

// ListLists возвращает списки сайта.
// GET /api/v1/lists?website_id=...
func (h *Handler) ListLists(w http.ResponseWriter, r *http.Request) {
	websiteID, err := uuid.Parse(r.URL.Query().Get("website_id"))
	if err != nil {
		BadRequest(w, "website_id is required")
		return
	}

	lists, err := h.listRepo.List(r.Context(), websiteID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ListDTOResponse, len(lists))
	for i, l := range lists {
		result[i] = ListFromDomain(l)
	}

	List(w, result, len(result))
}

// CreateList создаёт новый список рассылки.
// POST /api/v1/lists
func (h *Handler) CreateList(w http.ResponseWriter, r *http.Request) {
	var req CreateListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if req.WebsiteID == uuid.Nil {
		BadRequest(w, "website_id is required")
		return
	}

	list := &domain.List{
		ID:        uuid.New(),
		WebsiteID: req.WebsiteID,
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.listRepo.Create(r.Context(), list); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Created(w, ListFromDomain(*list))
}

// GetList возвращает список по ID.
// GET /api/v1/lists/{id}
func (h *Handler) GetList(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid list id")
		return
	}

	list, err := h.listRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "list not found") {
		return
	}

	Success(w, ListFromDomain(*list))
}

// DeleteList удаляет список.
// DELETE /api/v1/lists/{id}
func (h *Handler) DeleteList(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid list id")
		return
	}

	if err := h.listRepo.Delete(r.Context(), id); err != nil {
		if HandleRepoError(w, h.logger, err, "list not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	NoContent(w)
}
