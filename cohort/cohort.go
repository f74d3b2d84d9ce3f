// Package cohort turns saved filters into patient matching criteria.
package cohort

import (
	"github.com/mbolis/prom-tracker/model"
)

// Criterion requires a patient's accumulated answers to a question to
// contain every one of AnswerCodes.
type Criterion struct {
	SurveyCode   string   `json:"survey_code"`
	QuestionCode string   `json:"question_code"`
	AnswerCodes  []string `json:"answer_codes"`
}

// Key is the patient answer set this criterion looks at.
func (c Criterion) Key() string {
	return model.AnswerKey(c.SurveyCode, c.QuestionCode)
}

// Criteria builds one criterion per filter. All of them must hold for a
// patient to match; no criteria matches everyone.
func Criteria(filters []model.Filter) []Criterion {
	out := make([]Criterion, 0, len(filters))
	for _, f := range filters {
		codes := make([]string, 0, len(f.Answers))
		for _, a := range f.Answers {
			codes = append(codes, a.Code)
		}
		out = append(out, Criterion{
			SurveyCode:   f.Survey.Code,
			QuestionCode: f.Question.Code,
			AnswerCodes:  codes,
		})
	}
	return out
}

// Matches evaluates criteria against a patient's answer sets. A criterion
// with no answer codes never matches.
func Matches(p model.Patient, criteria []Criterion) bool {
	for _, c := range criteria {
		if len(c.AnswerCodes) == 0 {
			return false
		}
		have := map[string]bool{}
		for _, code := range p.Answers[c.Key()] {
			have[code] = true
		}
		for _, code := range c.AnswerCodes {
			if !have[code] {
				return false
			}
		}
	}
	return true
}
