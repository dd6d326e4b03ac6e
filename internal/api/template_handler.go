package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Pipewright/internal/catalog"
)

// ListTemplates возвращает все доступные шаблоны.
// Сломанные шаблоны попадают в листинг с текстом ошибки.
// GET /api/v1/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	names, err := h.catalog.List(r.Context())
	if err != nil {
		InternalError(w, h.log(r), err)
		return
	}

	result := make([]TemplateSummary, 0, len(names))
	for _, name := range names {
		item := TemplateSummary{Name: name}
		tpl, err := h.catalog.Load(r.Context(), name)
		switch {
		case err == nil:
			item.Description = tpl.Description
		case errors.Is(err, catalog.ErrMalformedTemplate):
			item.Error = err.Error()
		default:
			InternalError(w, h.log(r), err)
			return
		}
		result = append(result, item)
	}

	List(w, result, len(result))
}

// GetTemplate возвращает разобранный шаблон: слоты, параметры, тело.
// GET /api/v1/templates/{name}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.catalog.Load(r.Context(), r.PathValue("name"))
	if HandleError(w, h.log(r), err, "template not found") {
		return
	}
	Success(w, tpl)
}

// GetTemplateSource возвращает исходный HCL пользовательского шаблона.
// GET /api/v1/templates/{name}/source
func (h *Handler) GetTemplateSource(w http.ResponseWriter, r *http.Request) {
	if h.templates == nil {
		Unavailable(w, "template storage is not configured")
		return
	}

	rec, err := h.templates.Get(r.Context(), r.PathValue("name"))
	if HandleError(w, h.log(r), err, "template not found in storage") {
		return
	}
	Success(w, rec)
}

// SaveTemplate сохраняет шаблон в БД и сбрасывает его из кэшей API и воркеров.
// POST /api/v1/templates
func (h *Handler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	if h.templates == nil {
		Unavailable(w, "template storage is not configured")
		return
	}

	var req SaveTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" || req.Source == "" {
		BadRequest(w, "name and source are required")
		return
	}

	tpl, err := h.templates.Save(r.Context(), req.Name, req.Source)
	if HandleError(w, h.log(r), err, "") {
		return
	}
	h.templateChanged(r, req.Name)

	h.log(r).Info("template saved", "template", tpl.Name)
	Created(w, tpl)
}

// DeleteTemplate удаляет пользовательский шаблон. Встроенный шаблон
// с тем же именем снова становится видимым.
// DELETE /api/v1/templates/{name}
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if h.templates == nil {
		Unavailable(w, "template storage is not configured")
		return
	}

	name := r.PathValue("name")
	if HandleError(w, h.log(r), h.templates.Delete(r.Context(), name), "template not found in storage") {
		return
	}
	h.templateChanged(r, name)
	NoContent(w)
}

// SaveFragment сохраняет фрагмент для точки включения.
// PUT /api/v1/fragments/{name}
func (h *Handler) SaveFragment(w http.ResponseWriter, r *http.Request) {
	if h.templates == nil {
		Unavailable(w, "template storage is not configured")
		return
	}

	var req SaveFragmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	name := r.PathValue("name")
	if err := h.templates.SaveFragment(r.Context(), name, req.Body); err != nil {
		InternalError(w, h.log(r), err)
		return
	}
	h.templateChanged(r, name)
	h.log(r).Info("fragment saved", "fragment", name)
	NoContent(w)
}
