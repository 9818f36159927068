package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
)

// ListTemplates возвращает список всех шаблонов.
// GET /api/v1/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templateRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]TemplateResponse, len(templates))
	for i, t := range templates {
		result[i] = TemplateFromDomain(t)
	}

	List(w, result, len(result))
}

// CreateTemplate создаёт новый шаблон письма.
// POST /api/v1/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if req.Subject == "" {
		BadRequest(w, "subject is required")
		return
	}
	if req.FromEmail == "" {
		BadRequest(w, "from_email is required")
		return
	}

	tpl := &domain.Template{
		ID:        uuid.New(),
		Name:      req.Name,
		Subject:   req.Subject,
		BodyHTML:  req.BodyHTML,
		FromEmail: req.FromEmail,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.templateRepo.Create(r.Context(), tpl); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Created(w, TemplateFromDomain(*tpl))
}

// GetTemplate возвращает шаблон по ID.
// GET /api/v1/templates/{id}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	tpl, err := h.templateRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "template not found") {
		return
	}

	Success(w, TemplateFromDomain(*tpl))
}

// UpdateTemplate обновляет шаблон.
// PUT /api/v1/templates/{id}
//
// Обновление не трогает уже поставленные в очередь письма — они
// отрендерены в момент выполнения шага.
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	var req UpdateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	tpl, err := h.templateRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "template not found") {
		return
	}

	if req.Name != nil {
		tpl.Name = *req.Name
	}
	if req.Subject != nil {
		tpl.Subject = *req.Subject
	}
	if req.BodyHTML != nil {
		tpl.BodyHTML = *req.BodyHTML
	}
	if req.FromEmail != nil {
		tpl.FromEmail = *req.FromEmail
	}

	if err := h.templateRepo.Update(r.Context(), tpl); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, TemplateFromDomain(*tpl))
}

// DeleteTemplate удаляет шаблон.
// DELETE /api/v1/templates/{id}
//
// Шаги sendMail, ссылающиеся на удалённый шаблон, падают fatal при
// выполнении — flow переводит автоматизацию в failed.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	if err := h.templateRepo.Delete(r.Context(), id); err != nil {
		if HandleRepoError(w, h.logger, err, "template not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	NoContent(w)
}
