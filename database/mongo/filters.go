package mongo

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mbolis/prom-tracker/cohort"
	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
	"github.com/mbolis/prom-tracker/store"
)

type filterDoc struct {
	ID         string    `bson:"_id"`
	SurveyID   int64     `bson:"survey_id"`
	QuestionID int64     `bson:"question_id"`
	AnswerIDs  []int64   `bson:"answer_ids"`
	At         time.Time `bson:"at"`
}

// CreateFilter saves a filter on a question accepting the given answers.
// The unique index on survey and question rejects a second filter with
// errs.ErrDuplicate.
func (s *Store) CreateFilter(ctx context.Context, questionID int64, answerIDs []int64) (model.Filter, error) {
	q, _, err := s.GetQuestion(ctx, questionID)
	if err != nil {
		return model.Filter{}, err
	}
	if len(answerIDs) == 0 {
		return model.Filter{}, errs.Invalid(errors.New("a filter needs at least one answer"))
	}

	valid := map[int64]bool{}
	for _, a := range q.Answers {
		valid[a.ID] = true
	}
	ids := []int64{}
	seen := map[int64]bool{}
	for _, id := range answerIDs {
		if !valid[id] {
			return model.Filter{}, errs.Invalid(errors.Errorf("answer %d does not belong to question %s", id, q.Code))
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.Filter{}, errors.Wrap(err, "create_filter.id")
	}

	_, err = s.db.Collection(filters).InsertOne(ctx, filterDoc{
		ID:         id.String(),
		SurveyID:   q.SurveyID,
		QuestionID: q.ID,
		AnswerIDs:  ids,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return model.Filter{}, classify(err, "create_filter")
	}

	return s.GetFilter(ctx, id.String())
}

func (s *Store) findFilters(ctx context.Context, filter any) ([]model.Filter, error) {
	cur, err := s.db.Collection(filters).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "at", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []filterDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	surveyIDs := []int64{}
	questionIDs := []int64{}
	for _, d := range docs {
		surveyIDs = append(surveyIDs, d.SurveyID)
		questionIDs = append(questionIDs, d.QuestionID)
	}
	svs, err := s.surveysByID(ctx, surveyIDs)
	if err != nil {
		return nil, err
	}
	qs, err := s.questions(ctx, bson.M{"_id": bson.M{"$in": questionIDs}})
	if err != nil {
		return nil, err
	}
	byID := map[int64]model.Question{}
	for _, q := range qs {
		byID[q.ID] = q
	}

	out := make([]model.Filter, 0, len(docs))
	for _, d := range docs {
		q := byID[d.QuestionID]
		accepted := map[int64]bool{}
		for _, id := range d.AnswerIDs {
			accepted[id] = true
		}

		f := model.Filter{
			ID:      d.ID,
			Survey:  svs[d.SurveyID],
			At:      d.At,
			Answers: []model.Answer{},
		}
		// answers are already ordered by code
		for _, a := range q.Answers {
			if accepted[a.ID] {
				f.Answers = append(f.Answers, a)
			}
		}
		q.Answers = nil
		f.Question = q
		out = append(out, f)
	}
	return out, nil
}

func (s *Store) ListFilters(ctx context.Context) ([]model.Filter, error) {
	out, err := s.findFilters(ctx, bson.M{})
	return out, errors.Wrap(err, "list_filters")
}

func (s *Store) GetFilter(ctx context.Context, id string) (model.Filter, error) {
	out, err := s.findFilters(ctx, bson.M{"_id": id})
	if err != nil {
		return model.Filter{}, errors.Wrap(err, "get_filter")
	}
	if len(out) == 0 {
		return model.Filter{}, errs.NotFound("filter", id)
	}
	return out[0], nil
}

func (s *Store) DeleteFilter(ctx context.Context, id string) error {
	res, err := s.db.Collection(filters).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "delete_filter")
	}
	if res.DeletedCount < 1 {
		return errs.NotFound("filter", id)
	}
	return nil
}

func (s *Store) MatchPatients(ctx context.Context, criteria []cohort.Criterion, page store.Paging) ([]model.Patient, int, error) {
	filter := CriteriaFilter(criteria)

	count, err := s.db.Collection(patients).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errors.Wrap(err, "match_patients.count")
	}

	out, err := s.findPatients(ctx, filter, false, paging(page).SetSort(patientOrder))
	return out, int(count), errors.Wrap(err, "match_patients")
}
