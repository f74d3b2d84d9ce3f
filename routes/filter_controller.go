package routes

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/prom-tracker/app"
	"github.com/mbolis/prom-tracker/cohort"
	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/httpx"
	"github.com/mbolis/prom-tracker/log"
	"github.com/mbolis/prom-tracker/model"
)

const duplicateFilterMsg = "A filter on this question already exists: delete it first to change the accepted answers"

func ListFilters(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := app.ListFilters(r.Context())
		if err != nil {
			httpx.Fail(w, r, "db.list_filters", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"filters": filters,
		})
	}
}

type FilterRequest struct {
	QuestionID int64   `json:"question_id"`
	AnswerIDs  []int64 `json:"answer_ids"`
}

func CreateFilter(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := FilterRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		filter, err := app.CreateFilter(r.Context(), req.QuestionID, req.AnswerIDs)
		if errors.Is(err, errs.ErrDuplicate) {
			log.Debugf("db.create_filter.duplicate: %s", err)
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, httpx.Message{Message: duplicateFilterMsg})
			return
		}
		if err != nil {
			httpx.Fail(w, r, "db.create_filter", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, filter)
	}
}

func DeleteFilter(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := app.DeleteFilter(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.Fail(w, r, "db.delete_filter", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// MatchFilters pages through the patients satisfying every saved filter.
func MatchFilters(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := app.ListFilters(r.Context())
		if err != nil {
			httpx.Fail(w, r, "db.list_filters", err)
			return
		}

		paging := httpx.Paging(r, app.PageSize)
		patients, count, err := app.MatchPatients(r.Context(), cohort.Criteria(filters), paging)
		if err != nil {
			httpx.Fail(w, r, "db.match_patients", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"filters":  filters,
			"patients": model.NewPage(patients, paging.Number, paging.Size, count),
		})
	}
}
