package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Pipewright/internal/domain"
	"github.com/shaiso/Pipewright/internal/engine"
	"github.com/shaiso/Pipewright/internal/repo"
)

// decodeBuildRequest разбирает тело запроса и проверяет строку топологии.
// false — ответ с ошибкой уже отправлен.
func (h *Handler) decodeBuildRequest(w http.ResponseWriter, r *http.Request) (BuildRequest, domain.Topology, bool) {
	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return req, domain.Topology{}, false
	}
	if req.Pipeline == "" {
		BadRequest(w, "pipeline is required")
		return req, domain.Topology{}, false
	}

	topology, err := engine.ParseTopology(req.Pipeline)
	if HandleError(w, h.log(r), err, "") {
		return req, domain.Topology{}, false
	}
	return req, topology, true
}

// CreateBuild ставит сборку в очередь.
// POST /api/v1/builds
func (h *Handler) CreateBuild(w http.ResponseWriter, r *http.Request) {
	req, _, ok := h.decodeBuildRequest(w, r)
	if !ok {
		return
	}

	build := domain.NewBuild(req.Name, req.Config())
	if HandleError(w, h.log(r), h.builds.Create(r.Context(), build), "") {
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishBuildRequested(r.Context(), build.ID); err != nil {
			// Сборка уже в БД: воркер подхватит её через polling
			h.log(r).Warn("failed to publish build.requested", "build_id", build.ID, "error", err)
		}
	}

	Created(w, BuildFromDomain(*build))
}

// CheckBuild синхронно собирает и проверяет pipeline без рендеринга.
// Проблемы сборки — часть ответа, а не HTTP ошибка.
// POST /api/v1/builds/check
func (h *Handler) CheckBuild(w http.ResponseWriter, r *http.Request) {
	req, topology, ok := h.decodeBuildRequest(w, r)
	if !ok {
		return
	}

	asmReq := engine.NewRequest(req.Name, req.Config())
	asmReq.Topology = &topology
	asmReq.CheckOnly = true

	result, err := h.assembler.Assemble(r.Context(), asmReq)
	if err != nil && errors.Is(err, r.Context().Err()) {
		return
	}

	resp := CheckResponse{
		Valid:    err == nil,
		Topology: engine.FormatTopology(topology),
		Issues:   engine.IssuesOf(result, err),
	}
	if result != nil {
		resp.Nodes = result.Graph.Size()
		resp.Forks = len(result.Graph.Forks())
	}
	if err != nil {
		resp.Error = err.Error()
	}
	Success(w, resp)
}

// ListBuilds возвращает сборки.
// GET /api/v1/builds?status=FAILED&limit=20&offset=0
func (h *Handler) ListBuilds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.BuildFilter{Status: domain.BuildStatus(q.Get("status"))}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			BadRequest(w, "invalid "+p.name)
			return
		}
		*p.dst = n
	}

	switch filter.Status {
	case "", domain.BuildStatusQueued, domain.BuildStatusRunning, domain.BuildStatusSucceeded, domain.BuildStatusFailed:
	default:
		BadRequest(w, "invalid status")
		return
	}

	builds, err := h.builds.List(r.Context(), filter)
	if HandleError(w, h.log(r), err, "") {
		return
	}

	result := make([]BuildResponse, len(builds))
	for i, b := range builds {
		result[i] = BuildFromDomain(b)
	}
	Page(w, result, len(result), filter.Limit, filter.Offset)
}

// GetBuild возвращает сборку по ID.
// GET /api/v1/builds/{id}
func (h *Handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	build, ok := h.loadBuild(w, r)
	if !ok {
		return
	}
	Success(w, BuildFromDomain(*build))
}

// GetBuildScript отдаёт отрендеренный скрипт как text/plain.
// GET /api/v1/builds/{id}/script
func (h *Handler) GetBuildScript(w http.ResponseWriter, r *http.Request) {
	build, ok := h.loadBuild(w, r)
	if !ok {
		return
	}
	if build.Status != domain.BuildStatusSucceeded {
		InvalidState(w, "build is "+string(build.Status))
		return
	}

	filename := build.Name
	if filename == "" {
		filename = build.ID.String()
	}
	Script(w, filename, build.Script)
}

func (h *Handler) loadBuild(w http.ResponseWriter, r *http.Request) (*domain.Build, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid build id")
		return nil, false
	}

	build, err := h.builds.GetByID(r.Context(), id)
	if HandleError(w, h.log(r), err, "build not found") {
		return nil, false
	}
	return build, true
}
