package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/now"

	"github.com/mbolis/prom-tracker/app"
	"github.com/mbolis/prom-tracker/chart"
	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/httpx"
	"github.com/mbolis/prom-tracker/log"
	"github.com/mbolis/prom-tracker/model"
	"github.com/mbolis/prom-tracker/scoring"
	"github.com/mbolis/prom-tracker/store"
)

func SearchPatients(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patients, err := app.SearchPatients(r.Context(), r.URL.Query().Get("q"), app.PageSize)
		if err != nil {
			httpx.Fail(w, r, "db.search_patients", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"patients": patients,
		})
	}
}

func CreatePatient(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patient := model.Patient{}
		err := render.DecodeJSON(r.Body, &patient)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		patient, err = app.CreatePatient(r.Context(), patient)
		if errors.Is(err, errs.ErrDuplicate) {
			httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel, "db.create_patient.duplicate",
				"Patient %s already exists", model.NormalizePatientID(patient.ID))
			return
		}
		if err != nil {
			httpx.Fail(w, r, "db.create_patient", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, patient)
	}
}

func GetPatient(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patient, err := app.GetPatient(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.Fail(w, r, "db.get_patient", err)
			return
		}

		render.JSON(w, r, patient)
	}
}

func UpdatePatient(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patient := model.Patient{}
		err := render.DecodeJSON(r.Body, &patient)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		patient.ID = chi.URLParam(r, "id")

		err = app.UpdatePatient(r.Context(), patient)
		if err != nil {
			httpx.Fail(w, r, "db.update_patient", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func ListPatientOutcomes(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patient, err := app.GetPatient(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.Fail(w, r, "db.get_patient", err)
			return
		}

		page, ok := listOutcomes(w, r, app, store.OutcomeQuery{PatientID: patient.ID})
		if !ok {
			return
		}

		render.JSON(w, r, map[string]any{
			"patient":  patient,
			"outcomes": page,
		})
	}
}

type ScanRequest struct {
	Body string `json:"body" form:"body"`
}

// ScanPreview is the scored, not yet saved, reading of a scanned survey.
type ScanPreview struct {
	Patient  model.Patient  `json:"patient"`
	Survey   model.Shape    `json:"survey"`
	Outdated bool           `json:"outdated"`
	Scores   scoring.Result `json:"scores"`
	Tags     []string       `json:"tags"`
	Charts   []chart.Series `json:"charts"`
}

// DownloadHint tells the operator where to get a definition that has not
// been imported yet.
type DownloadHint struct {
	Message     string `json:"message"`
	DownloadURL string `json:"download_url"`
}

// ScanSurvey decodes a compact response read from a QR code, scores it and
// charts it against the patient's history. Nothing is saved.
func ScanSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patient, err := app.GetPatient(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.Fail(w, r, "db.get_patient", err)
			return
		}

		req := ScanRequest{}
		err = render.Decode(r, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		header, resp, err := scoring.Decode(req.Body)
		if err != nil {
			httpx.Fail(w, r, "scan.decode", err)
			return
		}

		survey, err := app.FindSurvey(r.Context(), header.Code, header.Lang)
		if errors.Is(err, errs.ErrNotFound) {
			log.Debugf("scan.find_survey: %s", err)
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, DownloadHint{
				Message:     fmt.Sprintf("Survey %s (%s) has not been imported", header.Code, header.Lang),
				DownloadURL: app.DefinitionURL(header.Lang, header.Code) + "?json=show",
			})
			return
		}
		if err != nil {
			httpx.Fail(w, r, "db.find_survey", err)
			return
		}

		shape, err := app.GetShape(r.Context(), survey.ID)
		if err != nil {
			httpx.Fail(w, r, "db.get_shape", err)
			return
		}

		result, err := scoring.Score(shape, resp)
		if err != nil {
			httpx.Fail(w, r, "scan.score", err)
			return
		}

		history, err := app.PatientHistory(r.Context(), patient.ID, survey.ID)
		if err != nil {
			httpx.Fail(w, r, "db.patient_history", err)
			return
		}

		tags, err := app.DistinctTags(r.Context())
		if err != nil {
			httpx.Fail(w, r, "db.distinct_tags", err)
			return
		}

		today := &chart.Point{Total: result.Total, Sections: result.SectionScores()}
		render.JSON(w, r, ScanPreview{
			Patient:  patient,
			Survey:   shape,
			Outdated: header.Outdated(survey),
			Scores:   result,
			Tags:     tags,
			Charts:   chart.SectionTrend(shape.Sections, history, today, app.Palette),
		})
	}
}

// AcceptSurvey scores a structured submission and records it as the
// patient's outcome for the day. Values are question codes mapped to the
// selected answer codes, plus an optional "tag", sent either as a form or as
// a JSON object.
func AcceptSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := idParam(w, r, "surveyId")
		if !ok {
			return
		}

		values, err := submittedValues(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		shape, err := app.GetShape(r.Context(), surveyId)
		if err != nil {
			httpx.Fail(w, r, "db.get_shape", err)
			return
		}

		result, err := scoring.Score(shape, scoring.FromValues(values))
		if err != nil {
			httpx.Fail(w, r, "accept.score", err)
			return
		}

		at := app.Now()
		outcome, err := app.AcceptOutcome(r.Context(), store.Submission{
			PatientID:      chi.URLParam(r, "id"),
			Survey:         shape.Survey,
			Answers:        result.Answers,
			QuestionScores: result.QuestionScores(),
			SectionScores:  result.SectionScores(),
			Total:          result.Total,
			Tag:            firstValue(values, "tag"),
			At:             at,
			Since:          now.With(at).BeginningOfDay(),
		})
		if err != nil {
			httpx.Fail(w, r, "db.accept_outcome", err)
			return
		}
		log.WithFields(log.Fields{
			"patient": outcome.PatientID,
			"survey":  outcome.SurveyCode,
			"outcome": outcome.ID,
			"total":   outcome.Total,
		}).Debug("outcome accepted")

		render.JSON(w, r, outcome)
	}
}

// submittedValues reads a JSON object whose values are strings or lists of
// strings, or else a form.
func submittedValues(r *http.Request) (map[string][]string, error) {
	if render.GetRequestContentType(r) != render.ContentTypeJSON {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}

	raw := map[string]any{}
	if err := render.DecodeJSON(r.Body, &raw); err != nil {
		return nil, err
	}

	values := map[string][]string{}
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			values[k] = []string{v}
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%s: answer codes must be strings", k)
				}
				values[k] = append(values[k], s)
			}
		case nil:
		default:
			return nil, fmt.Errorf("%s: expected a string or a list of strings", k)
		}
	}
	return values, nil
}

func firstValue(values map[string][]string, key string) string {
	for k, v := range values {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}
