package chart

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/mbolis/prom-tracker/model"
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 10, 0, 0, 0, time.Local)
}

func values(data []*int) []any {
	out := make([]any, len(data))
	for i, v := range data {
		if v == nil {
			out[i] = nil
		} else {
			out[i] = *v
		}
	}
	return out
}

func TestPalette(t *testing.T) {
	p := NewPalette(rand.NewSource(1))
	for i, c := range Colors {
		if got := p.Color(i); got != c {
			t.Errorf("Color(%d) = %s, want %s", i, got, c)
		}
	}

	a := NewPalette(rand.NewSource(42)).Color(9)
	b := NewPalette(rand.NewSource(42)).Color(9)
	if a != b {
		t.Errorf("seeded palettes differ: %s != %s", a, b)
	}
	if len(a) != 7 || a[0] != '#' {
		t.Errorf("random color %q is not #rrggbb", a)
	}
}

func TestLabelMixedHistory(t *testing.T) {
	history := []model.Outcome{
		{Tag: "pre-op", At: day(1)},
		{At: day(2)},
	}
	if got := Label(history[0]); got != "pre-op" {
		t.Errorf("tagged label = %q", got)
	}
	if got := Label(history[1]); got != "24-03-02" {
		t.Errorf("untagged label = %q, want 24-03-02", got)
	}
}

func TestLabelUsesLocalDay(t *testing.T) {
	defer func(loc *time.Location) { time.Local = loc }(time.Local)
	time.Local = time.FixedZone("JST", 9*60*60)

	// 20:00 JST on the 10th and 01:00 JST on the 11th, as stored in UTC
	evening := model.Outcome{At: time.Date(2023, time.March, 10, 11, 0, 0, 0, time.UTC)}
	night := model.Outcome{At: time.Date(2023, time.March, 10, 16, 0, 0, 0, time.UTC)}

	if got := Label(evening); got != "23-03-10" {
		t.Errorf("evening label = %q, want 23-03-10", got)
	}
	if got := Label(night); got != "23-03-11" {
		t.Errorf("night label = %q, want 23-03-11", got)
	}
}

func TestSectionTrend(t *testing.T) {
	sections := []model.Section{{Code: "S1", Name: "Pain"}, {Code: "S2", Name: "Function"}}
	history := []model.Outcome{
		{Tag: "pre-op", At: day(1), Total: 8, SectionScores: map[string]int{"S1": 8, "S2": 0}},
		{At: day(2), Total: 3, SectionScores: map[string]int{"S1": 3}},
	}
	current := &Point{Total: 5, Sections: map[string]int{"S1": 1, "S2": 4}}

	series := SectionTrend(sections, history, current, NewPalette(rand.NewSource(1)))
	if len(series) != 3 {
		t.Fatalf("got %d series, want 3", len(series))
	}

	wantLabels := []string{"pre-op", "24-03-02", TodayLabel}
	wantTitles := []string{TotalTitle, "Pain", "Function"}
	wantData := [][]any{
		{8, 3, 5},
		{8, 3, 1},
		{0, nil, 4},
	}
	for i, s := range series {
		if s.Title != wantTitles[i] {
			t.Errorf("series %d title = %q, want %q", i, s.Title, wantTitles[i])
		}
		if !reflect.DeepEqual(s.Labels, wantLabels) {
			t.Errorf("series %d labels = %v, want %v", i, s.Labels, wantLabels)
		}
		if got := values(s.Datasets[0].Data); !reflect.DeepEqual(got, wantData[i]) {
			t.Errorf("series %d data = %v, want %v", i, got, wantData[i])
		}
		if s.Datasets[0].BorderColor != Colors[i] {
			t.Errorf("series %d color = %v, want %s", i, s.Datasets[0].BorderColor, Colors[i])
		}
	}
}

func TestSectionTrendWithoutCurrent(t *testing.T) {
	history := []model.Outcome{{At: day(1), Total: 2}}
	series := SectionTrend(nil, history, nil, NewPalette(nil))
	if len(series) != 1 || len(series[0].Labels) != 1 {
		t.Fatalf("unexpected series %+v", series)
	}
}

func TestQuestionTrend(t *testing.T) {
	q := model.Question{Code: "S1A", Answers: []model.Answer{
		{Code: "A0", Score: 0},
		{Code: "A1", Score: 5},
	}}
	history := []model.Outcome{
		{At: day(1), Answers: map[string][]string{"S1A": {"A1"}}},
		{At: day(2), Answers: map[string][]string{"S1A": {"B7"}}},
		{At: day(3), Tag: "3mo", Answers: map[string][]string{}},
	}

	s := QuestionTrend(q, history, NewPalette(nil))
	if got, want := values(s.Datasets[0].Data), []any{5, 0, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("data = %v, want %v", got, want)
	}
	wantColors := []string{Colors[1], Colors[0], Colors[0]}
	if !reflect.DeepEqual(s.Datasets[0].BackgroundColor, wantColors) {
		t.Errorf("colors = %v, want %v", s.Datasets[0].BackgroundColor, wantColors)
	}
	if !reflect.DeepEqual(s.Labels, []string{"24-03-01", "24-03-02", "3mo"}) {
		t.Errorf("labels = %v", s.Labels)
	}
}

func TestTagDistribution(t *testing.T) {
	all := []model.TagCount{{Tag: "pre-op", Total: 5}, {Tag: "", Total: 3}, {Tag: "3mo", Total: 1}}
	variants := []Variant{
		{Lang: "EN", Counts: []model.TagCount{{Tag: "", Total: 3}, {Tag: "pre-op", Total: 2}}},
		{Lang: "IT", Counts: []model.TagCount{{Tag: "3mo", Total: 1}, {Tag: "pre-op", Total: 3}}},
	}

	series := TagDistribution(all, variants, NewPalette(nil))
	if len(series) != 3 {
		t.Fatalf("got %d series, want 3", len(series))
	}

	wantLabels := []string{"pre-op", UntaggedLabel, "3mo"}
	wantTitles := []string{AllLanguages, "EN", "IT"}
	wantData := [][]any{{5, 3, 1}, {2, 3, 0}, {3, 0, 1}}
	for i, s := range series {
		if s.Title != wantTitles[i] {
			t.Errorf("series %d title = %q, want %q", i, s.Title, wantTitles[i])
		}
		if !reflect.DeepEqual(s.Labels, wantLabels) {
			t.Errorf("series %d labels = %v, want %v", i, s.Labels, wantLabels)
		}
		if got := values(s.Datasets[0].Data); !reflect.DeepEqual(got, wantData[i]) {
			t.Errorf("series %d data = %v, want %v", i, got, wantData[i])
		}
	}
}
