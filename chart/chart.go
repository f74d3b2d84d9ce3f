// Package chart reshapes outcome histories into Chart.js style series.
package chart

import (
	"github.com/mbolis/prom-tracker/model"
)

const (
	TotalCode     = "total"
	DateLayout    = "06-01-02"
	TodayLabel    = "Today"
	TotalTitle    = "Total"
	UntaggedLabel = "Untagged"
	AllLanguages  = "All languages"
)

type Dataset struct {
	Label           string `json:"label"`
	BackgroundColor any    `json:"backgroundColor"`
	BorderColor     any    `json:"borderColor,omitempty"`
	Data            []*int `json:"data"`
	Fill            bool   `json:"fill"`
}

type Series struct {
	Code     string    `json:"code,omitempty"`
	Title    string    `json:"title"`
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Label is the manual tag of an outcome or, when untagged, its local date.
// Outcomes are bucketed by local calendar day, so the label follows suit.
func Label(o model.Outcome) string {
	if o.Tag != "" {
		return o.Tag
	}
	return o.At.Local().Format(DateLayout)
}

// Point is a not yet saved submission appended to a trend as "Today".
type Point struct {
	Total    int
	Sections map[string]int
}

// SectionTrend builds one series for the total and one per section over the
// history, which must be ordered oldest first. Sections missing from an old
// outcome are left as null points.
func SectionTrend(sections []model.Section, history []model.Outcome, current *Point, p *Palette) []Series {
	labels := make([]string, 0, len(history)+1)
	for _, o := range history {
		labels = append(labels, Label(o))
	}
	if current != nil {
		labels = append(labels, TodayLabel)
	}

	type key struct{ code, title string }
	keys := []key{{TotalCode, TotalTitle}}
	for _, s := range sections {
		keys = append(keys, key{s.Code, s.Name})
	}

	out := make([]Series, 0, len(keys))
	for i, k := range keys {
		data := make([]*int, 0, len(labels))
		for _, o := range history {
			if k.code == TotalCode {
				data = append(data, intp(o.Total))
			} else if v, ok := o.SectionScores[k.code]; ok {
				data = append(data, intp(v))
			} else {
				data = append(data, nil)
			}
		}
		if current != nil {
			if k.code == TotalCode {
				data = append(data, intp(current.Total))
			} else {
				data = append(data, intp(current.Sections[k.code]))
			}
		}

		color := p.Color(i)
		out = append(out, Series{
			Code:   k.code,
			Title:  k.title,
			Labels: append([]string(nil), labels...),
			Datasets: []Dataset{{
				BackgroundColor: color,
				BorderColor:     color,
				Data:            data,
			}},
		})
	}
	return out
}

// QuestionTrend charts the score of the answers recorded for one question.
// Answers are looked up in the current definition; codes that no longer
// exist score zero and take the first palette color.
func QuestionTrend(q model.Question, history []model.Outcome, p *Palette) Series {
	labels := make([]string, 0, len(history))
	data := make([]*int, 0, len(history))
	colors := make([]string, 0, len(history))

	for _, o := range history {
		labels = append(labels, Label(o))

		score, first := 0, -1
		for _, code := range o.Answers[q.Code] {
			for j, a := range q.Answers {
				if a.Code == code {
					score += a.Score
					if first < 0 {
						first = j
					}
					break
				}
			}
		}
		if first < 0 {
			first = 0
		}
		data = append(data, intp(score))
		colors = append(colors, p.Color(first))
	}

	return Series{
		Code:   q.Code,
		Title:  "Score Trend",
		Labels: labels,
		Datasets: []Dataset{{
			BackgroundColor: colors,
			BorderColor:     colors,
			Data:            data,
		}},
	}
}

// Variant is the tag count of one language variant of a survey.
type Variant struct {
	Lang   string
	Counts []model.TagCount
}

// TagDistribution builds an "All languages" series followed by one series per
// variant, all sharing the tag order of all. Variants lacking a tag get 0.
func TagDistribution(all []model.TagCount, variants []Variant, p *Palette) []Series {
	labels := make([]string, 0, len(all))
	colors := make([]string, 0, len(all))
	for i, c := range all {
		if c.Tag == "" {
			labels = append(labels, UntaggedLabel)
		} else {
			labels = append(labels, c.Tag)
		}
		colors = append(colors, p.Color(i))
	}

	rows := append([]Variant{{Lang: AllLanguages, Counts: all}}, variants...)
	out := make([]Series, 0, len(rows))
	for _, r := range rows {
		data := make([]*int, 0, len(all))
		for _, t := range all {
			n := 0
			for _, c := range r.Counts {
				if c.Tag == t.Tag {
					n = c.Total
					break
				}
			}
			data = append(data, intp(n))
		}
		out = append(out, Series{
			Title:  r.Lang,
			Labels: append([]string(nil), labels...),
			Datasets: []Dataset{{
				Label:           r.Lang,
				BackgroundColor: append([]string(nil), colors...),
				Data:            data,
			}},
		})
	}
	return out
}

func intp(v int) *int { return &v }
