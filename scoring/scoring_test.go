package scoring

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
)

func bk1() model.Shape {
	return model.Shape{
		Survey: model.Survey{Code: "BK1", Lang: "EN", Version: 1},
		Sections: []model.Section{
			{Code: "S1", Name: "Pain"},
			{Code: "S2", Name: "Function"},
		},
		Questions: []model.Question{
			{Code: "S1A", Answers: []model.Answer{{Code: "A0", Score: 0}, {Code: "A1", Score: 5}}},
			{Code: "S1B", Answers: []model.Answer{{Code: "A0", Score: 0}, {Code: "A1", Score: 3}}},
			{Code: "S2A", Answers: []model.Answer{{Code: "A0", Score: 1}, {Code: "A1", Score: 2}, {Code: "A2", Score: 4}}},
		},
	}
}

func TestDecode(t *testing.T) {
	h, resp, err := Decode("BK1:EN:2/S1AA1/S2AA0A2/S1B:A0,A1")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if want := (Header{Code: "BK1", Lang: "EN", Version: 2}); h != want {
		t.Errorf("header = %+v, want %+v", h, want)
	}
	want := Response{
		{Question: "S1A", Answers: []string{"A1"}},
		{Question: "S2A", Answers: []string{"A0", "A2"}},
		{Question: "S1B", Answers: []string{"A0", "A1"}},
	}
	if !reflect.DeepEqual(resp, want) {
		t.Errorf("response = %+v, want %+v", resp, want)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"",
		"BK1:EN:1",
		"BK1:EN/S1AA1",
		"BK1:EN:1:X/S1AA1",
		"BK1:EN:1/S1",
	}
	for _, body := range cases {
		_, _, err := Decode(body)
		if !errors.Is(err, errs.ErrMalformed) {
			t.Errorf("Decode(%q) error = %v, want ErrMalformed", body, err)
		}
	}
}

func TestOutdated(t *testing.T) {
	h, _, err := Decode("BK1:EN:3/S1AA1")
	if err != nil {
		t.Fatal(err)
	}
	if !h.Outdated(model.Survey{Version: 2}) {
		t.Error("stored version 2 < 3 should be outdated")
	}
	if h.Outdated(model.Survey{Version: 3}) {
		t.Error("same version should not be outdated")
	}
}

func TestDecodeUnreadableVersion(t *testing.T) {
	h, resp, err := Decode("BK1:EN:x/S1AA1")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if h.Version != 0 {
		t.Errorf("version = %d, want 0", h.Version)
	}
	if h.Outdated(model.Survey{Version: 1}) {
		t.Error("unreadable version should not be outdated")
	}
	if len(resp) != 1 || resp[0].Question != "S1A" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSplitCodes(t *testing.T) {
	cases := []struct {
		in   []string
		want []string
	}{
		{[]string{"A1"}, []string{"A1"}},
		{[]string{"A1A2"}, []string{"A1", "A2"}},
		{[]string{"a1, a2"}, []string{"A1", "A2"}},
		{[]string{"A1", "A2", "A1"}, []string{"A1", "A2"}},
		{[]string{""}, []string{}},
		{[]string{"A"}, []string{"A"}},
	}
	for _, c := range cases {
		if got := SplitCodes(c.in...); !reflect.DeepEqual(got, c.want) {
			t.Errorf("SplitCodes(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFromValues(t *testing.T) {
	resp := FromValues(map[string][]string{
		"s1b":    {"A1"},
		"S1A":    {"A0", "A1"},
		"tag":    {"pre-op"},
		"survey": {"BK1"},
	})
	want := Response{
		{Question: "S1A", Answers: []string{"A0", "A1"}},
		{Question: "S1B", Answers: []string{"A1"}},
	}
	if !reflect.DeepEqual(resp, want) {
		t.Errorf("FromValues() = %+v, want %+v", resp, want)
	}
}

func TestScoreExample(t *testing.T) {
	_, resp, err := Decode("BK1:EN:1/S1AA1/S1BA1")
	if err != nil {
		t.Fatal(err)
	}
	res, err := Score(bk1(), resp)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if got, want := res.QuestionScores(), map[string]int{"S1A": 5, "S1B": 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("question scores = %v, want %v", got, want)
	}
	if got, want := res.SectionScores(), map[string]int{"S1": 8, "S2": 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("section scores = %v, want %v", got, want)
	}
	if res.Total != 8 {
		t.Errorf("total = %d, want 8", res.Total)
	}
}

func TestScoreTotalsAgree(t *testing.T) {
	bodies := []string{
		"BK1:EN:1/S1AA1/S1BA1/S2AA2",
		"BK1:EN:1/S2AA0A1A2",
		"BK1:EN:1/S1AA0/S2A:A1,A2/S1BA1",
		"BK1:EN:1/S1AA1/S1AA1",
	}
	for _, body := range bodies {
		_, resp, err := Decode(body)
		if err != nil {
			t.Fatal(err)
		}
		res, err := Score(bk1(), resp)
		if err != nil {
			t.Fatalf("Score(%q) error = %v", body, err)
		}
		qsum, ssum := 0, 0
		for _, q := range res.Questions {
			qsum += q.Score
		}
		for _, s := range res.Sections {
			ssum += s.Score
		}
		if qsum != res.Total || ssum != res.Total {
			t.Errorf("%q: total %d, questions %d, sections %d", body, res.Total, qsum, ssum)
		}
	}
}

func TestScoreRepeatedQuestionCountsOnce(t *testing.T) {
	res, err := Score(bk1(), Response{
		{Question: "S1A", Answers: []string{"A1"}},
		{Question: "S1A", Answers: []string{"A1"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 5 || len(res.Questions) != 1 {
		t.Errorf("got total %d over %d questions, want 5 over 1", res.Total, len(res.Questions))
	}
}

func TestScoreUnknownAnswerIsZero(t *testing.T) {
	res, err := Score(bk1(), Response{{Question: "S1A", Answers: []string{"ZZ", "A1"}}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 5 {
		t.Errorf("total = %d, want 5", res.Total)
	}
}

func TestScoreUnknownQuestionFails(t *testing.T) {
	_, err := Score(bk1(), Response{
		{Question: "S1A", Answers: []string{"A1"}},
		{Question: "XXX", Answers: []string{"A1"}},
	})
	if !errors.Is(err, errs.ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
}
