package scoring

import (
	"github.com/pkg/errors"

	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
)

type Subtotal struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type Result struct {
	Questions []Subtotal          `json:"questions"`
	Sections  []Subtotal          `json:"sections"`
	Total     int                 `json:"total"`
	Answers   map[string][]string `json:"answers"`
}

func (r Result) QuestionScores() map[string]int {
	m := make(map[string]int, len(r.Questions))
	for _, q := range r.Questions {
		m[q.Code] = q.Score
	}
	return m
}

func (r Result) SectionScores() map[string]int {
	m := make(map[string]int, len(r.Sections))
	for _, s := range r.Sections {
		m[s.Code] = s.Score
	}
	return m
}

// Score sums the configured score of every selected answer. A question code
// missing from the definition fails the whole response; an unknown answer
// code scores zero. Repeated items for one question are merged.
func Score(shape model.Shape, resp Response) (Result, error) {
	res := Result{
		Questions: []Subtotal{},
		Sections:  []Subtotal{},
		Answers:   map[string][]string{},
	}

	order := []string{}
	for _, it := range resp {
		if _, ok := res.Answers[it.Question]; !ok {
			order = append(order, it.Question)
		}
		res.Answers[it.Question] = SplitCodes(append(res.Answers[it.Question], it.Answers...)...)
	}

	for _, code := range order {
		q, ok := shape.Question(code)
		if !ok {
			return Result{}, errors.Wrapf(errs.ErrMalformed, "unknown question %s in survey %s", code, shape.Survey.Code)
		}

		score := 0
		for _, selected := range res.Answers[code] {
			for _, a := range q.Answers {
				if a.Code == selected {
					score += a.Score
					break
				}
			}
		}
		res.Total += score
		res.Questions = append(res.Questions, Subtotal{Code: q.Code, Name: q.Name, Score: score})
	}

	for _, sec := range shape.Sections {
		t := 0
		for _, q := range res.Questions {
			if len(q.Code) >= 2 && q.Code[:2] == sec.Code {
				t += q.Score
			}
		}
		res.Sections = append(res.Sections, Subtotal{Code: sec.Code, Name: sec.Name, Score: t})
	}

	return res, nil
}
