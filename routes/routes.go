package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbolis/prom-tracker/app"
	"github.com/mbolis/prom-tracker/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	api.Group(func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))
		clinicalRoutes(r, app)
	})

	return api
}

func clinicalRoutes(r chi.Router, app app.App) {
	r.Get("/surveys", ListSurveys(app))
	r.Post("/surveys/import", ImportSurvey(app))
	r.Get(`/surveys/{id:^\d+$}`, GetSurvey(app))
	r.Get(`/surveys/{id:^\d+$}/json`, GetSurveyJSON(app))
	r.Get(`/surveys/{id:^\d+$}/qrlink`, GetSurveyQRLink(app))
	r.Get(`/surveys/{id:^\d+$}/outcomes`, ListSurveyOutcomes(app))
	r.Get(`/surveys/{id:^\d+$}/tags`, GetSurveyTags(app))
	r.Get(`/surveys/{id:^\d+$}/questions`, ListSurveyQuestions(app))
	r.Get(`/questions/{id:^\d+$}/answers`, ListQuestionAnswers(app))

	r.Get("/patients", SearchPatients(app))
	r.Post("/patients", CreatePatient(app))
	r.Get("/patients/{id}", GetPatient(app))
	r.Put("/patients/{id}", UpdatePatient(app))
	r.Post("/patients/{id}/scan", ScanSurvey(app))
	r.Post(`/patients/{id}/surveys/{surveyId:^\d+$}`, AcceptSurvey(app))
	r.Get("/patients/{id}/outcomes", ListPatientOutcomes(app))

	r.Get("/outcomes", ListOutcomes(app))
	r.Get("/outcomes/tags", ListTags(app))
	r.Get("/outcomes/{id}", GetOutcome(app))
	r.Get("/outcomes/{id}/questions/{code}", GetOutcomeQuestion(app))
	r.Put("/outcomes/{id}/tag", SetOutcomeTag(app))

	r.Get("/filters", ListFilters(app))
	r.Post("/filters", CreateFilter(app))
	r.Get("/filters/matches", MatchFilters(app))
	r.Delete("/filters/{id}", DeleteFilter(app))
}
