package handlers

import (
	"context"
	"net/http"

	"github.com/upb/academic-records/authz"
	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/services/specialisations"
	"github.com/upb/academic-records/utils"
	"go.uber.org/zap"
)

// SpecialisationService is the specialisation surface the handler needs
type SpecialisationService interface {
	List(ctx context.Context) ([]*models.Specialisation, error)
	Get(ctx context.Context, id int64) (*models.Specialisation, error)
	ListCourses(ctx context.Context, id int64) ([]*models.Course, error)
	Create(ctx context.Context, data models.SpecialisationData) (*models.Specialisation, error)
	Update(ctx context.Context, id int64, data models.SpecialisationData) (*models.Specialisation, error)
	Delete(ctx context.Context, id int64) error
	AddCourse(ctx context.Context, id, courseID int64) error
	RemoveCourse(ctx context.Context, id, courseID int64) error
}

// SpecialisationRequest is the body of specialisation create and update calls.
// specialisationId is accepted for compatibility and ignored; the path id wins.
type SpecialisationRequest struct {
	SpecialisationID int64  `json:"specialisationId"`
	Code             string `json:"code" validate:"required,notblank,max=32"`
	Name             string `json:"name" validate:"required,notblank,max=255"`
	Description      string `json:"description"`
	Year             int    `json:"year" validate:"required"`
	CreditsRequired  int    `json:"creditsRequired" validate:"gte=0"`
}

func (r SpecialisationRequest) toData() models.SpecialisationData {
	return models.SpecialisationData{
		Code:            r.Code,
		Name:            r.Name,
		Description:     r.Description,
		Year:            r.Year,
		CreditsRequired: r.CreditsRequired,
	}
}

// SpecialisationResponse is a specialisation as returned to clients
type SpecialisationResponse struct {
	SpecialisationID int64  `json:"specialisationId"`
	Code             string `json:"code"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Year             int    `json:"year"`
	CreditsRequired  int    `json:"creditsRequired"`
}

func toSpecialisationResponse(s *models.Specialisation) SpecialisationResponse {
	return SpecialisationResponse{
		SpecialisationID: s.ID,
		Code:             s.Code,
		Name:             s.Name,
		Description:      s.Description,
		Year:             s.Year,
		CreditsRequired:  s.CreditsRequired,
	}
}

// SpecialisationHandler handles specialisation HTTP requests
type SpecialisationHandler struct {
	specs  SpecialisationService
	logger *zap.Logger
}

// NewSpecialisationHandler creates a new SpecialisationHandler
func NewSpecialisationHandler(specs SpecialisationService, logger *zap.Logger) *SpecialisationHandler {
	return &SpecialisationHandler{
		specs:  specs,
		logger: logger,
	}
}

// HandleList handles GET /api/specialisations
func (h *SpecialisationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.specs.List(r.Context())
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	out := make([]SpecialisationResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toSpecialisationResponse(s))
	}
	_ = utils.WriteOK(w, out)
}

// HandleGet handles GET /api/specialisations/{id}
func (h *SpecialisationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	spec, err := h.specs.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toSpecialisationResponse(spec))
}

// HandleListCourses handles GET /api/specialisations/{id}/courses
func (h *SpecialisationHandler) HandleListCourses(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	list, err := h.specs.ListCourses(r.Context(), id)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toCourseResponses(list))
}

// HandleCreate handles POST /api/specialisations
func (h *SpecialisationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireRoleFor(r.Context(), models.RoleAdmin, specialisations.MsgCreateForbidden); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	var req SpecialisationRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	spec, err := h.specs.Create(r.Context(), req.toData())
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toSpecialisationResponse(spec))
}

// HandleUpdate handles PUT /api/specialisations/{id}
func (h *SpecialisationHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireRoleFor(r.Context(), models.RoleAdmin, specialisations.MsgUpdateForbidden); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req SpecialisationRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	spec, err := h.specs.Update(r.Context(), id, req.toData())
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toSpecialisationResponse(spec))
}

// HandleDelete handles DELETE /api/specialisations/{id}
func (h *SpecialisationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireRoleFor(r.Context(), models.RoleAdmin, specialisations.MsgDeleteForbidden); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.specs.Delete(r.Context(), id); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, MessageResponse{Message: "Deleted"})
}

// HandleAddCourse handles PUT /api/specialisations/{id}/courses/{courseId}
func (h *SpecialisationHandler) HandleAddCourse(w http.ResponseWriter, r *http.Request) {
	h.handleLink(w, r, h.specs.AddCourse)
}

// HandleRemoveCourse handles DELETE /api/specialisations/{id}/courses/{courseId}
func (h *SpecialisationHandler) HandleRemoveCourse(w http.ResponseWriter, r *http.Request) {
	h.handleLink(w, r, h.specs.RemoveCourse)
}

func (h *SpecialisationHandler) handleLink(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, courseID int64) error) {
	if err := authz.RequireRoleFor(r.Context(), models.RoleAdmin, specialisations.MsgLinkForbidden); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	courseID, ok := pathID(w, r, "courseId")
	if !ok {
		return
	}

	if err := op(r.Context(), id, courseID); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}
