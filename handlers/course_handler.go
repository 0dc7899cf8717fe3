package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/upb/academic-records/authz"
	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/services/courses"
	"github.com/upb/academic-records/utils"
	"go.uber.org/zap"
)

// CourseService is the course catalogue surface the handler needs
type CourseService interface {
	List(ctx context.Context) ([]*models.Course, error)
	Get(ctx context.Context, id int64) (*models.Course, error)
	Create(ctx context.Context, data models.CourseData) (*models.Course, error)
	Update(ctx context.Context, id int64, data models.CourseData) (*models.Course, error)
	Delete(ctx context.Context, id int64) error
}

// CourseRequest is the body of course create and update calls.
// courseId is the catalogue number chosen by the registrar.
// credits and capacity may be left out; see models.CourseData.
type CourseRequest struct {
	CourseID    int    `json:"courseId" validate:"required,gte=1"`
	CourseCode  string `json:"courseCode" validate:"required,notblank,max=32"`
	Name        string `json:"name" validate:"required,notblank,max=255"`
	Description string `json:"description"`
	Year        int    `json:"year" validate:"required"`
	Term        string `json:"term" validate:"required,notblank"`
	Faculty     string `json:"faculty" validate:"required,notblank"`
	Credits     *int   `json:"credits,omitempty" validate:"omitempty,gte=1,lte=6"`
	Capacity    *int   `json:"capacity,omitempty" validate:"omitempty,gte=1"`
}

func (r CourseRequest) toData() models.CourseData {
	data := models.CourseData{
		CourseNumber: r.CourseID,
		CourseCode:   r.CourseCode,
		Name:         r.Name,
		Description:  r.Description,
		Year:         r.Year,
		Term:         r.Term,
		Faculty:      r.Faculty,
	}
	if r.Credits != nil {
		data.Credits = *r.Credits
	}
	if r.Capacity != nil {
		data.Capacity = *r.Capacity
	}
	return data
}

// CourseResponse is a course as returned to clients. courseId is the entity id.
type CourseResponse struct {
	CourseID    int64  `json:"courseId"`
	CourseCode  string `json:"courseCode"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Year        int    `json:"year"`
	Term        string `json:"term"`
	Faculty     string `json:"faculty"`
	Credits     int    `json:"credits"`
	Capacity    int    `json:"capacity"`
}

func toCourseResponse(c *models.Course) CourseResponse {
	return CourseResponse{
		CourseID:    c.ID,
		CourseCode:  c.CourseCode,
		Name:        c.Name,
		Description: c.Description,
		Year:        c.Year,
		Term:        c.Term,
		Faculty:     c.Faculty,
		Credits:     c.Credits,
		Capacity:    c.Capacity,
	}
}

func toCourseResponses(list []*models.Course) []CourseResponse {
	out := make([]CourseResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCourseResponse(c))
	}
	return out
}

// MessageResponse is a plain acknowledgement body
type MessageResponse struct {
	Message string `json:"message"`
}

// CourseHandler handles course HTTP requests
type CourseHandler struct {
	courses CourseService
	logger  *zap.Logger
}

// NewCourseHandler creates a new CourseHandler
func NewCourseHandler(courses CourseService, logger *zap.Logger) *CourseHandler {
	return &CourseHandler{
		courses: courses,
		logger:  logger,
	}
}

// HandleList handles GET /api/courses
func (h *CourseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.courses.List(r.Context())
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toCourseResponses(list))
}

// HandleGet handles GET /api/courses/{id}
func (h *CourseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	course, err := h.courses.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toCourseResponse(course))
}

// HandleCreate handles POST /api/courses
func (h *CourseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireRoleFor(r.Context(), models.RoleAdmin, courses.MsgCreateForbidden); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	var req CourseRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	course, err := h.courses.Create(r.Context(), req.toData())
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toCourseResponse(course))
}

// HandleUpdate handles PUT /api/courses/{id}
func (h *CourseHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireRoleFor(r.Context(), models.RoleAdmin, courses.MsgUpdateForbidden); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req CourseRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	course, err := h.courses.Update(r.Context(), id, req.toData())
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toCourseResponse(course))
}

// HandleDelete handles DELETE /api/courses/{id}
func (h *CourseHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireRoleFor(r.Context(), models.RoleAdmin, courses.MsgDeleteForbidden); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.courses.Delete(r.Context(), id); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, MessageResponse{Message: "Deleted"})
}

// pathID parses a positive integer URL parameter, answering 400 otherwise.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		_ = utils.WriteBadRequest(w, "invalid "+name, nil)
		return 0, false
	}
	return id, true
}
