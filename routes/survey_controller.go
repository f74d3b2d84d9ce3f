package routes

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"

	"github.com/go-chi/render"
	"github.com/skip2/go-qrcode"

	"github.com/mbolis/prom-tracker/app"
	"github.com/mbolis/prom-tracker/chart"
	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/httpx"
	"github.com/mbolis/prom-tracker/log"
	"github.com/mbolis/prom-tracker/model"
	"github.com/mbolis/prom-tracker/store"
)

// largest definition document accepted by ImportSurvey
const maxDefinitionSize = 4 << 20

const qrSize = 256

func ImportSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxDefinitionSize))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.read_body")
			return
		}

		def := model.Definition{}
		err = render.DecodeJSON(bytes.NewReader(body), &def)
		if err != nil {
			httpx.Fail(w, r, "import.parse_body", errs.Malformed("definition is not valid JSON: %s", err))
			return
		}

		survey, err := app.ImportDefinition(r.Context(), def, string(body))
		if err != nil {
			httpx.Fail(w, r, "db.import_definition", err)
			return
		}
		log.WithFields(log.Fields{
			"survey":  survey.Code,
			"lang":    survey.Lang,
			"version": survey.Version,
		}).Info("survey definition imported")

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, survey)
	}
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveys, err := app.ListSurveys(r.Context())
		if err != nil {
			httpx.Fail(w, r, "db.list_surveys", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"surveys": surveys,
		})
	}
}

func GetSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		shape, err := app.GetShape(r.Context(), surveyId)
		if err != nil {
			httpx.Fail(w, r, "db.get_shape", err)
			return
		}

		render.JSON(w, r, shape)
	}
}

// GetSurveyJSON sends back the definition exactly as it was imported.
func GetSurveyJSON(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		survey, err := app.GetSurvey(r.Context(), surveyId)
		if err != nil {
			httpx.Fail(w, r, "db.get_survey", err)
			return
		}

		w.Header().Set("content-type", "application/json; charset=utf-8")
		io.WriteString(w, survey.Body)
	}
}

// GetSurveyQRLink gives the address of the published definition together
// with a QR code pointing at it, as a PNG data URL.
func GetSurveyQRLink(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		survey, err := app.GetSurvey(r.Context(), surveyId)
		if err != nil {
			httpx.Fail(w, r, "db.get_survey", err)
			return
		}

		link := app.DefinitionURL(survey.Lang, survey.Code)
		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			httpx.LogInternalError(w, "qrlink.encode", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"survey": survey,
			"link":   link,
			"qr":     "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		})
	}
}

func ListSurveyOutcomes(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		survey, err := app.GetSurvey(r.Context(), surveyId)
		if err != nil {
			httpx.Fail(w, r, "db.get_survey", err)
			return
		}

		page, ok := listOutcomes(w, r, app, store.OutcomeQuery{SurveyID: survey.ID})
		if !ok {
			return
		}

		render.JSON(w, r, map[string]any{
			"survey":   survey,
			"outcomes": page,
		})
	}
}

// GetSurveyTags charts how outcomes are tagged, across every language
// variant of the survey first and then for each variant.
func GetSurveyTags(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		survey, err := app.GetSurvey(r.Context(), surveyId)
		if err != nil {
			httpx.Fail(w, r, "db.get_survey", err)
			return
		}

		all, err := app.CountTagsByCode(r.Context(), survey.Code)
		if err != nil {
			httpx.Fail(w, r, "db.count_tags_by_code", err)
			return
		}

		variants, err := app.ListSurveyVariants(r.Context(), survey.Code)
		if err != nil {
			httpx.Fail(w, r, "db.list_survey_variants", err)
			return
		}
		byLang := make([]chart.Variant, 0, len(variants))
		for _, v := range variants {
			counts, err := app.CountTagsBySurvey(r.Context(), v.ID)
			if err != nil {
				httpx.Fail(w, r, "db.count_tags_by_survey", err)
				return
			}
			byLang = append(byLang, chart.Variant{Lang: v.Lang, Counts: counts})
		}

		render.JSON(w, r, map[string]any{
			"survey": survey,
			"charts": chart.TagDistribution(all, byLang, app.Palette),
		})
	}
}

func ListSurveyQuestions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		shape, err := app.GetShape(r.Context(), surveyId)
		if err != nil {
			httpx.Fail(w, r, "db.get_shape", err)
			return
		}

		questions := make([]model.Question, 0, len(shape.Questions))
		for _, q := range shape.Questions {
			q.Answers = nil
			questions = append(questions, q)
		}

		render.JSON(w, r, map[string]any{
			"survey":    shape.Survey,
			"questions": questions,
		})
	}
}

func ListQuestionAnswers(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionId, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		question, survey, err := app.GetQuestion(r.Context(), questionId)
		if err != nil {
			httpx.Fail(w, r, "db.get_question", err)
			return
		}
		answers := question.Answers
		question.Answers = nil

		render.JSON(w, r, map[string]any{
			"survey":   survey,
			"question": question,
			"answers":  answers,
		})
	}
}
