package routes

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/prom-tracker/app"
	"github.com/mbolis/prom-tracker/chart"
	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/httpx"
	"github.com/mbolis/prom-tracker/log"
	"github.com/mbolis/prom-tracker/model"
	"github.com/mbolis/prom-tracker/store"
)

// listOutcomes answers with the requested page of outcomes matching q. It
// reports false when a response has already been sent.
func listOutcomes(w http.ResponseWriter, r *http.Request, app app.App, q store.OutcomeQuery) (model.Page[model.Outcome], bool) {
	paging := httpx.Paging(r, app.PageSize)
	outcomes, count, err := app.ListOutcomes(r.Context(), q, paging)
	if err != nil {
		httpx.Fail(w, r, "db.list_outcomes", err)
		return model.Page[model.Outcome]{}, false
	}
	return model.NewPage(outcomes, paging.Number, paging.Size, count), true
}

// ListOutcomes pages through every outcome; "item" narrows it down to a
// single outcome id.
func ListOutcomes(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := store.OutcomeQuery{ID: strings.TrimSpace(r.URL.Query().Get("item"))}
		page, ok := listOutcomes(w, r, app, q)
		if !ok {
			return
		}

		render.JSON(w, r, page)
	}
}

func ListTags(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := app.DistinctTags(r.Context())
		if err != nil {
			httpx.Fail(w, r, "db.distinct_tags", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"tags": tags,
		})
	}
}

// GetOutcome sends an outcome with the section trend of its patient on the
// same survey.
func GetOutcome(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := app.GetOutcome(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.Fail(w, r, "db.get_outcome", err)
			return
		}

		shape, err := app.GetShape(r.Context(), outcome.SurveyID)
		if err != nil {
			httpx.Fail(w, r, "db.get_shape", err)
			return
		}

		history, err := app.PatientHistory(r.Context(), outcome.PatientID, outcome.SurveyID)
		if err != nil {
			httpx.Fail(w, r, "db.patient_history", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"outcome": outcome,
			"survey":  shape,
			"charts":  chart.SectionTrend(shape.Sections, history, nil, app.Palette),
		})
	}
}

// GetOutcomeQuestion charts the answers given to one question over the
// patient's history.
func GetOutcomeQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := app.GetOutcome(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.Fail(w, r, "db.get_outcome", err)
			return
		}

		shape, err := app.GetShape(r.Context(), outcome.SurveyID)
		if err != nil {
			httpx.Fail(w, r, "db.get_shape", err)
			return
		}

		code := strings.ToUpper(chi.URLParam(r, "code"))
		question, ok := shape.Question(code)
		if !ok {
			httpx.Fail(w, r, "outcome.question", errs.NotFound("question", code))
			return
		}

		history, err := app.PatientHistory(r.Context(), outcome.PatientID, outcome.SurveyID)
		if err != nil {
			httpx.Fail(w, r, "db.patient_history", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"outcome":  outcome,
			"question": question,
			"chart":    chart.QuestionTrend(question, history, app.Palette),
		})
	}
}

type TagRequest struct {
	Tag string `json:"tag"`
}

func SetOutcomeTag(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := TagRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = app.SetOutcomeTag(r.Context(), chi.URLParam(r, "id"), req.Tag)
		if err != nil {
			httpx.Fail(w, r, "db.set_outcome_tag", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
