package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mbolis/prom-tracker/cohort"
	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
	"github.com/mbolis/prom-tracker/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := NewStore(db)
	t.Cleanup(func() { s.Close() })
	return s
}

func bk1() model.Definition {
	return model.Definition{
		Code:    "BK1",
		Lang:    "EN",
		Version: 1,
		Name:    "Back pain",
		Sections: []model.SectionDefinition{
			{Code: "S1", Name: "Pain"},
			{Code: "S2", Name: "Mobility"},
		},
		Questions: []model.QuestionDefinition{
			{Code: "S1A", Name: "How much?", Answers: []model.AnswerDefinition{
				{Code: "A0", Name: "None", Score: 0},
				{Code: "A1", Name: "A lot", Score: 5},
			}},
			{Code: "S1B", Name: "How often?", Answers: []model.AnswerDefinition{
				{Code: "A0", Name: "Never", Score: 0},
				{Code: "A1", Name: "Always", Score: 3},
			}},
			{Code: "S2A", Name: "Can you walk?", Answers: []model.AnswerDefinition{
				{Code: "A0", Name: "Yes", Score: 0},
				{Code: "A1", Name: "With help", Score: 2},
				{Code: "A2", Name: "No", Score: 4},
			}},
		},
	}
}

func importBK1(t *testing.T, s *Store) model.Survey {
	t.Helper()
	sv, err := s.ImportDefinition(context.Background(), bk1(), `{"code":"BK1"}`)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	return sv
}

func createPatient(t *testing.T, s *Store, id, name string) model.Patient {
	t.Helper()
	p, err := s.CreatePatient(context.Background(), model.Patient{ID: id, Name: name})
	if err != nil {
		t.Fatalf("create patient %s: %v", id, err)
	}
	return p
}

func accept(t *testing.T, s *Store, patientID string, sv model.Survey, at time.Time, total int, answers map[string][]string) model.Outcome {
	t.Helper()
	o, err := s.AcceptOutcome(context.Background(), store.Submission{
		PatientID:      patientID,
		Survey:         sv,
		Answers:        answers,
		QuestionScores: map[string]int{"S1A": total},
		SectionScores:  map[string]int{"S1": total},
		Total:          total,
		At:             at,
		Since:          time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location()),
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return o
}

func TestImportIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := importBK1(t, s)
	before, err := s.GetShape(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}

	second := importBK1(t, s)
	if second.ID != first.ID {
		t.Fatalf("re-import created survey %d, want %d", second.ID, first.ID)
	}
	after, err := s.GetShape(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}

	if len(after.Sections) != len(before.Sections) || len(after.Questions) != len(before.Questions) {
		t.Fatalf("shape changed: %d/%d sections, %d/%d questions",
			len(before.Sections), len(after.Sections), len(before.Questions), len(after.Questions))
	}
	for i, q := range after.Questions {
		b := before.Questions[i]
		if q.ID != b.ID || q.Code != b.Code || len(q.Answers) != len(b.Answers) {
			t.Fatalf("question %d changed: %+v != %+v", i, q, b)
		}
		for j, a := range q.Answers {
			if a != b.Answers[j] {
				t.Errorf("answer %s%s changed: %+v != %+v", q.Code, a.Code, a, b.Answers[j])
			}
		}
	}
}

func TestImportUpdatesScores(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sv := importBK1(t, s)

	def := bk1()
	def.Version = 2
	def.Questions[0].Answers[1].Score = 7
	if _, err := s.ImportDefinition(ctx, def, "{}"); err != nil {
		t.Fatal(err)
	}

	shape, err := s.GetShape(ctx, sv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if shape.Survey.Version != 2 {
		t.Errorf("version = %d, want 2", shape.Survey.Version)
	}
	q, _ := shape.Question("S1A")
	if q.Answers[1].Score != 7 {
		t.Errorf("S1A A1 score = %d, want 7", q.Answers[1].Score)
	}
}

func TestImportRejectsInvalidDefinition(t *testing.T) {
	s := openTestStore(t)

	def := bk1()
	def.Questions[0].Code = "TOOLONG"
	_, err := s.ImportDefinition(context.Background(), def, "{}")
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if surveys, _ := s.ListSurveys(context.Background()); len(surveys) != 0 {
		t.Errorf("invalid import stored %d surveys", len(surveys))
	}
}

func TestFindSurvey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sv := importBK1(t, s)

	found, err := s.FindSurvey(ctx, "BK1", "EN")
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != sv.ID {
		t.Errorf("found survey %d, want %d", found.ID, sv.ID)
	}

	_, err = s.FindSurvey(ctx, "BK1", "IT")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestPatients(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := createPatient(t, s, "  RSSMRA80 ", "Mario Rossi")
	if p.ID != "rssmra80" {
		t.Errorf("id = %q, want normalized", p.ID)
	}

	_, err := s.CreatePatient(ctx, model.Patient{ID: "rssmra80", Name: "Again"})
	if !errors.Is(err, errs.ErrDuplicate) {
		t.Errorf("err = %v, want duplicate", err)
	}

	long := model.Patient{ID: "x", Name: "012345678901234567890123456789012345678901234567890"}
	if _, err = s.CreatePatient(ctx, long); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}

	if err = s.UpdatePatient(ctx, model.Patient{ID: "RSSMRA80", Name: "Mario Bianchi"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetPatient(ctx, "rssmra80")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Mario Bianchi" {
		t.Errorf("name = %q", got.Name)
	}

	err = s.UpdatePatient(ctx, model.Patient{ID: "nobody"})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestSearchPatients(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	createPatient(t, s, "p1", "Anna Verdi")
	createPatient(t, s, "p2", "Luca Neri")
	createPatient(t, s, "x_3", "Anna Neri")

	tests := []struct {
		q    string
		want int
	}{
		{"anna", 2},
		{"NERI", 2},
		{"p2", 1},
		{"_", 1},
		{"%", 0},
		{"", 3},
	}
	for _, tt := range tests {
		got, err := s.SearchPatients(ctx, tt.q, 15)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tt.want {
			t.Errorf("search %q: %d results, want %d", tt.q, len(got), tt.want)
		}
	}
}

func TestSameDaySubmissionsOverwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sv := importBK1(t, s)
	createPatient(t, s, "p1", "")

	morning := time.Date(2023, 3, 10, 9, 0, 0, 0, time.UTC)
	first := accept(t, s, "p1", sv, morning, 8, map[string][]string{"S1A": {"A1"}})
	second := accept(t, s, "p1", sv, morning.Add(3*time.Hour), 3, map[string][]string{"S1B": {"A1"}})

	if second.ID != first.ID {
		t.Errorf("second submission created outcome %s, want %s", second.ID, first.ID)
	}

	outcomes, count, err := s.ListOutcomes(ctx, store.OutcomeQuery{PatientID: "p1"}, store.Paging{Number: 1, Size: 15})
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 || len(outcomes) != 1 {
		t.Fatalf("%d outcomes (count %d), want 1", len(outcomes), count)
	}
	o := outcomes[0]
	if o.Total != 3 || o.SectionScores["S1"] != 3 {
		t.Errorf("outcome = %+v, want the second submission's scores", o)
	}
	if _, ok := o.Answers["S1A"]; ok {
		t.Errorf("answers were merged: %v", o.Answers)
	}

	accept(t, s, "p1", sv, morning.AddDate(0, 0, 1), 5, map[string][]string{"S1A": {"A1"}})
	history, err := s.PatientHistory(ctx, "p1", sv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d outcomes, want 2", len(history))
	}
	if !history[0].At.Before(history[1].At) {
		t.Errorf("history is not oldest first")
	}
}

func TestAcceptGrowsAnswerSets(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sv := importBK1(t, s)
	createPatient(t, s, "p1", "")

	day := time.Date(2023, 3, 10, 9, 0, 0, 0, time.UTC)
	accept(t, s, "p1", sv, day, 0, map[string][]string{"S2A": {"A1"}})
	accept(t, s, "p1", sv, day.AddDate(0, 0, 1), 0, map[string][]string{"S2A": {"A1", "A2"}})

	p, err := s.GetPatient(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	got := p.Answers[model.AnswerKey("BK1", "S2A")]
	if len(got) != 2 || got[0] != "A1" || got[1] != "A2" {
		t.Errorf("answer set = %v, want [A1 A2]", got)
	}
	if p.LastSurvey == nil || p.LastSurvey.ID != sv.ID {
		t.Errorf("last survey = %+v, want %d", p.LastSurvey, sv.ID)
	}
	if !p.At.Equal(day.AddDate(0, 0, 1)) {
		t.Errorf("at = %v", p.At)
	}
}

func TestAcceptUnknownPatient(t *testing.T) {
	s := openTestStore(t)
	sv := importBK1(t, s)

	_, err := s.AcceptOutcome(context.Background(), store.Submission{PatientID: "ghost", Survey: sv, At: time.Now()})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sv := importBK1(t, s)
	createPatient(t, s, "p1", "")
	createPatient(t, s, "p2", "")
	createPatient(t, s, "p3", "")

	day := time.Date(2023, 3, 10, 9, 0, 0, 0, time.UTC)
	o1 := accept(t, s, "p1", sv, day, 1, nil)
	o2 := accept(t, s, "p2", sv, day, 1, nil)
	accept(t, s, "p3", sv, day, 1, nil)

	if err := s.SetOutcomeTag(ctx, o1.ID, " pre-op "); err != nil {
		t.Fatal(err)
	}
	if err := s.SetOutcomeTag(ctx, o2.ID, "pre-op"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetOutcomeTag(ctx, "missing", "x"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}

	tags, err := s.DistinctTags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 || tags[0] != "pre-op" {
		t.Errorf("tags = %v", tags)
	}

	counts, err := s.CountTagsByCode(ctx, "BK1")
	if err != nil {
		t.Fatal(err)
	}
	want := []model.TagCount{{Tag: "pre-op", Total: 2}, {Tag: "", Total: 1}}
	if len(counts) != len(want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("counts[%d] = %v, want %v", i, counts[i], want[i])
		}
	}
}

func questionID(t *testing.T, s *Store, sv model.Survey, code string) (int64, map[string]int64) {
	t.Helper()
	shape, err := s.GetShape(context.Background(), sv.ID)
	if err != nil {
		t.Fatal(err)
	}
	q, ok := shape.Question(code)
	if !ok {
		t.Fatalf("no question %s", code)
	}
	answers := map[string]int64{}
	for _, a := range q.Answers {
		answers[a.Code] = a.ID
	}
	return q.ID, answers
}

func TestDuplicateFilterKeepsFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sv := importBK1(t, s)
	qid, answers := questionID(t, s, sv, "S2A")

	first, err := s.CreateFilter(ctx, qid, []int64{answers["A1"], answers["A2"]})
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.CreateFilter(ctx, qid, []int64{answers["A0"]})
	if !errors.Is(err, errs.ErrDuplicate) {
		t.Fatalf("err = %v, want duplicate", err)
	}

	filters, err := s.ListFilters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(filters) != 1 || filters[0].ID != first.ID || len(filters[0].Answers) != 2 {
		t.Errorf("filters = %+v, want the first one untouched", filters)
	}
}

func TestCreateFilterValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sv := importBK1(t, s)
	qid, _ := questionID(t, s, sv, "S2A")
	_, other := questionID(t, s, sv, "S1A")

	if _, err := s.CreateFilter(ctx, qid, nil); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("no answers: err = %v, want validation error", err)
	}
	if _, err := s.CreateFilter(ctx, qid, []int64{other["A1"]}); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("foreign answer: err = %v, want validation error", err)
	}
	if _, err := s.CreateFilter(ctx, 9999, []int64{1}); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("unknown question: err = %v, want not found", err)
	}
}

func TestDeleteFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sv := importBK1(t, s)
	qid, answers := questionID(t, s, sv, "S2A")

	f, err := s.CreateFilter(ctx, qid, []int64{answers["A1"]})
	if err != nil {
		t.Fatal(err)
	}
	if err = s.DeleteFilter(ctx, f.ID); err != nil {
		t.Fatal(err)
	}
	if _, err = s.GetFilter(ctx, f.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	if err = s.DeleteFilter(ctx, f.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("second delete: err = %v, want not found", err)
	}

	// the slot is free again
	if _, err = s.CreateFilter(ctx, qid, []int64{answers["A2"]}); err != nil {
		t.Errorf("recreate: %v", err)
	}
}

func TestMatchPatientsRequiresSuperset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sv := importBK1(t, s)
	day := time.Date(2023, 3, 10, 9, 0, 0, 0, time.UTC)

	createPatient(t, s, "both", "")
	createPatient(t, s, "only-a1", "")
	createPatient(t, s, "split", "")
	createPatient(t, s, "none", "")
	accept(t, s, "both", sv, day, 0, map[string][]string{"S2A": {"A1", "A2"}, "S1A": {"A1"}})
	accept(t, s, "only-a1", sv, day, 0, map[string][]string{"S2A": {"A1"}, "S1A": {"A1"}})
	accept(t, s, "split", sv, day, 0, map[string][]string{"S2A": {"A1"}, "S1A": {"A1"}})
	accept(t, s, "split", sv, day.AddDate(0, 0, 1), 0, map[string][]string{"S2A": {"A2"}})

	tests := []struct {
		name     string
		criteria []cohort.Criterion
		want     []string
	}{
		{"no criteria", nil, []string{"both", "none", "only-a1", "split"}},
		{"superset", []cohort.Criterion{
			{SurveyCode: "BK1", QuestionCode: "S2A", AnswerCodes: []string{"A1", "A2"}},
		}, []string{"both", "split"}},
		{"and across", []cohort.Criterion{
			{SurveyCode: "BK1", QuestionCode: "S2A", AnswerCodes: []string{"A2"}},
			{SurveyCode: "BK1", QuestionCode: "S1A", AnswerCodes: []string{"A1"}},
		}, []string{"both", "split"}},
		{"repeated code", []cohort.Criterion{
			{SurveyCode: "BK1", QuestionCode: "S2A", AnswerCodes: []string{"A1", "A1"}},
		}, []string{"both", "only-a1", "split"}},
		{"empty accepted list", []cohort.Criterion{
			{SurveyCode: "BK1", QuestionCode: "S2A"},
		}, nil},
		{"other survey", []cohort.Criterion{
			{SurveyCode: "XX1", QuestionCode: "S2A", AnswerCodes: []string{"A1"}},
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, count, err := s.MatchPatients(ctx, tt.criteria, store.Paging{Number: 1, Size: 15})
			if err != nil {
				t.Fatal(err)
			}
			if count != len(tt.want) {
				t.Errorf("count = %d, want %d", count, len(tt.want))
			}
			ids := map[string]bool{}
			for _, p := range got {
				ids[p.ID] = true
			}
			for _, id := range tt.want {
				if !ids[id] {
					t.Errorf("%s did not match", id)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("matched %d patients, want %d", len(got), len(tt.want))
			}

			// the SQL query and the reference predicate agree
			for _, id := range []string{"both", "only-a1", "split", "none"} {
				p, err := s.GetPatient(ctx, id)
				if err != nil {
					t.Fatal(err)
				}
				if cohort.Matches(p, tt.criteria) != ids[id] {
					t.Errorf("%s: predicate and query disagree", id)
				}
			}
		})
	}
}

func TestMatchPatientsPaging(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		createPatient(t, s, id, "")
	}

	got, count, err := s.MatchPatients(context.Background(), nil, store.Paging{Number: 2, Size: 2})
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 || len(got) != 2 {
		t.Errorf("page 2: %d patients of %d", len(got), count)
	}
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnsureUser(ctx, "admin", "old"); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureUser(ctx, "admin", "s3cret"); err != nil {
		t.Fatal(err)
	}
	if err := s.ValidateUser(ctx, "admin", "s3cret"); err != nil {
		t.Errorf("valid password rejected: %v", err)
	}
	if err := s.ValidateUser(ctx, "admin", "old"); err == nil {
		t.Error("old password accepted")
	}
	if err := s.ValidateUser(ctx, "nobody", "x"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := s.StoreToken(ctx, "admin", "t1", "r1", exp); err != nil {
		t.Fatal(err)
	}
	got, err := s.ConsumeToken(ctx, "admin", "t1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(exp) {
		t.Errorf("expiration = %v, want %v", got, exp)
	}
	if _, err = s.ConsumeToken(ctx, "admin", "t1", "r1"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("second consume: err = %v, want not found", err)
	}
}
