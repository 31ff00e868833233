package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/logger"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/report"
)

// Deps are the collaborators shared by the handlers.
type Deps struct {
	Exams   *exam.Service
	Reports *report.Aggregator
	TZ      *TimezoneResolver
	Log     *logger.Logger
}

type RouterOptions struct {
	Auth *auth.AuthService
	// LocalLogin mounts POST /auth/login when set.
	LocalLogin  *auth.LocalLogin
	CORSOrigins []string
}

func NewRouter(d Deps, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, accessLog(d.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", timezoneHeader},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if opts.LocalLogin != nil {
		r.Post("/auth/login", auth.LoginHandler(opts.Auth, *opts.LocalLogin))
	}

	// Protected API (JWT -> role in context -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(opts.Auth))

		// Student flow
		pr.With(rbac.Require(rbac.PermExamListOwn)).Get("/me/exams", ListMyExamsHandler(d))
		pr.Route("/student-exams/{studentExamID}", func(sr chi.Router) {
			sr.With(rbac.Require(rbac.PermAttemptStart)).Post("/start", StartExamHandler(d))
			sr.With(rbac.Require(rbac.PermAttemptSave)).Put("/answers/{questionID}", SaveAnswerHandler(d))
			sr.With(rbac.Require(rbac.PermAttemptFlag)).Post("/flags/{questionID}", ToggleFlagHandler(d))
			sr.With(rbac.Require(rbac.PermAttemptReload)).Get("/attempt", ReloadExamHandler(d))
			sr.With(rbac.Require(rbac.PermAttemptSubmit)).Post("/submit", SubmitExamHandler(d))
			sr.With(rbac.Require(rbac.PermAttemptReview)).Get("/review", ReviewHandler(d))
		})

		// Teacher setup and reports
		pr.With(rbac.Require(rbac.PermCollectionWrite)).Post("/collections", PutCollectionHandler(d))
		pr.With(rbac.Require(rbac.PermInstanceWrite)).Post("/instances", CreateInstanceHandler(d))
		pr.With(rbac.Require(rbac.PermInstanceWrite)).Post("/instances/{instanceID}/students", AssignStudentsHandler(d))
		pr.With(rbac.Require(rbac.PermReportView)).Get("/instances/{instanceID}/report", ReportHandler(d))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}
