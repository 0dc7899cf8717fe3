package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/academic-records/app"
	"github.com/upb/academic-records/internal/observability"
	"github.com/upb/academic-records/middleware"
	"github.com/upb/academic-records/utils"
)

// Route names used as rate limiter keys and metric labels
const (
	routeLogin = "login"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.AuthTokenHeader},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.RequestMeta)
	r.Use(deps.AuthMiddleware.Authenticate)

	// Health check endpoints
	r.Get("/health", deps.HealthHandler.HandleHealth)
	r.Get("/ready", deps.HealthHandler.HandleReadiness)

	if deps.Registry != nil {
		r.Handle("/metrics", observability.Handler(deps.Registry))
	}

	r.Route("/api", func(r chi.Router) {
		login := deps.RateLimitMiddleware.Limit(routeLogin)

		r.With(login).Post("/auth/google", deps.AuthHandler.HandleGoogleLogin)
		r.With(login).Post("/login", deps.AuthHandler.HandleGoogleLogin)
		r.Post("/auth/logout", deps.AuthHandler.HandleLogout)
		r.Post("/logout", deps.AuthHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuthenticated)
			r.Post("/auth/logout-all", deps.AuthHandler.HandleLogoutAll)
			r.Get("/auth/me", deps.AuthHandler.HandleMe)

			r.Get("/audit-logs", deps.AdminHandler.HandleListAuditLogs)
			r.Get("/users", deps.AdminHandler.HandleListUsers)
		})

		// Reads are public; mutations check the admin role themselves.
		r.Route("/courses", func(r chi.Router) {
			r.Get("/", deps.CourseHandler.HandleList)
			r.Post("/", deps.CourseHandler.HandleCreate)
			r.Get("/{id}", deps.CourseHandler.HandleGet)
			r.Put("/{id}", deps.CourseHandler.HandleUpdate)
			r.Delete("/{id}", deps.CourseHandler.HandleDelete)
		})

		r.Route("/specialisations", func(r chi.Router) {
			r.Get("/", deps.SpecialisationHandler.HandleList)
			r.Post("/", deps.SpecialisationHandler.HandleCreate)
			r.Get("/{id}", deps.SpecialisationHandler.HandleGet)
			r.Put("/{id}", deps.SpecialisationHandler.HandleUpdate)
			r.Delete("/{id}", deps.SpecialisationHandler.HandleDelete)
			r.Get("/{id}/courses", deps.SpecialisationHandler.HandleListCourses)
			r.Put("/{id}/courses/{courseId}", deps.SpecialisationHandler.HandleAddCourse)
			r.Delete("/{id}/courses/{courseId}", deps.SpecialisationHandler.HandleRemoveCourse)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
