package mongo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
)

type surveyDoc struct {
	ID      int64     `bson:"_id"`
	Code    string    `bson:"code"`
	Lang    string    `bson:"lang"`
	Version int       `bson:"version"`
	Name    string    `bson:"name"`
	Type    string    `bson:"type"`
	Body    string    `bson:"body"`
	At      time.Time `bson:"at"`
}

func (d surveyDoc) model() model.Survey {
	return model.Survey(d)
}

type sectionDoc struct {
	ID       int64  `bson:"_id"`
	SurveyID int64  `bson:"survey_id"`
	Code     string `bson:"code"`
	Name     string `bson:"name"`
	Intro    string `bson:"intro"`
	Ons      string `bson:"ons"`
}

type questionDoc struct {
	ID       int64  `bson:"_id"`
	SurveyID int64  `bson:"survey_id"`
	Code     string `bson:"code"`
	Name     string `bson:"name"`
}

type answerDoc struct {
	ID         int64  `bson:"_id"`
	QuestionID int64  `bson:"question_id"`
	Code       string `bson:"code"`
	Name       string `bson:"name"`
	Score      int    `bson:"score"`
	Goto       string `bson:"goto"`
}

func (d answerDoc) model() model.Answer {
	return model.Answer(d)
}

func (s *Store) ImportDefinition(ctx context.Context, def model.Definition, body string) (model.Survey, error) {
	def.Normalize()
	if err := def.Validate(); err != nil {
		return model.Survey{}, errs.Invalid(err)
	}

	surveyID, err := s.upsert(ctx, surveys,
		bson.D{{Key: "code", Value: def.Code}, {Key: "lang", Value: def.Lang}},
		bson.D{
			{Key: "version", Value: def.Version},
			{Key: "name", Value: def.Name},
			{Key: "type", Value: def.Type},
			{Key: "body", Value: body},
		},
		bson.D{{Key: "at", Value: time.Now().UTC()}},
	)
	if err != nil {
		return model.Survey{}, err
	}

	for _, sec := range def.Sections {
		ons := string(sec.Ons)
		if ons == "" || ons == "null" {
			ons = "[]"
		}
		_, err = s.upsert(ctx, sections,
			bson.D{{Key: "survey_id", Value: surveyID}, {Key: "code", Value: sec.Code}},
			bson.D{
				{Key: "name", Value: sec.Name},
				{Key: "intro", Value: sec.Intro},
				{Key: "ons", Value: ons},
			},
			nil,
		)
		if err != nil {
			return model.Survey{}, err
		}
	}

	for _, q := range def.Questions {
		questionID, err := s.upsert(ctx, questions,
			bson.D{{Key: "survey_id", Value: surveyID}, {Key: "code", Value: q.Code}},
			bson.D{{Key: "name", Value: q.Name}},
			nil,
		)
		if err != nil {
			return model.Survey{}, err
		}

		for _, a := range q.Answers {
			_, err = s.upsert(ctx, answers,
				bson.D{{Key: "question_id", Value: questionID}, {Key: "code", Value: a.Code}},
				bson.D{
					{Key: "name", Value: a.Name},
					{Key: "score", Value: a.Score},
					{Key: "goto", Value: a.Goto},
				},
				nil,
			)
			if err != nil {
				return model.Survey{}, err
			}
		}
	}

	return s.GetSurvey(ctx, surveyID)
}

func (s *Store) findSurveys(ctx context.Context, filter any, opts ...*options.FindOptions) ([]model.Survey, error) {
	cur, err := s.db.Collection(surveys).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var docs []surveyDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]model.Survey, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *Store) ListSurveys(ctx context.Context) ([]model.Survey, error) {
	out, err := s.findSurveys(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "code", Value: 1}, {Key: "lang", Value: 1}}))
	return out, errors.Wrap(err, "list_surveys")
}

func (s *Store) ListSurveyVariants(ctx context.Context, code string) ([]model.Survey, error) {
	out, err := s.findSurveys(ctx, bson.M{"code": code},
		options.Find().SetSort(bson.D{{Key: "lang", Value: 1}}))
	return out, errors.Wrap(err, "list_survey_variants")
}

func (s *Store) findSurvey(ctx context.Context, filter any, id any) (model.Survey, error) {
	var d surveyDoc
	err := s.db.Collection(surveys).FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, driver.ErrNoDocuments) {
		return model.Survey{}, errs.NotFound("survey", id)
	}
	if err != nil {
		return model.Survey{}, errors.Wrap(err, "find_survey")
	}
	return d.model(), nil
}

func (s *Store) GetSurvey(ctx context.Context, id int64) (model.Survey, error) {
	return s.findSurvey(ctx, bson.M{"_id": id}, id)
}

func (s *Store) FindSurvey(ctx context.Context, code, lang string) (model.Survey, error) {
	return s.findSurvey(ctx, bson.M{"code": code, "lang": lang}, code+":"+lang)
}

// surveysByID loads the given surveys, skipping ids that do not exist.
func (s *Store) surveysByID(ctx context.Context, ids []int64) (map[int64]model.Survey, error) {
	out := map[int64]model.Survey{}
	if len(ids) == 0 {
		return out, nil
	}
	list, err := s.findSurveys(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for _, sv := range list {
		out[sv.ID] = sv
	}
	return out, nil
}

var byCode = options.Find().SetSort(bson.D{{Key: "code", Value: 1}})

func (s *Store) GetShape(ctx context.Context, surveyID int64) (shape model.Shape, err error) {
	shape.Survey, err = s.GetSurvey(ctx, surveyID)
	if err != nil {
		return
	}

	cur, err := s.db.Collection(sections).Find(ctx, bson.M{"survey_id": surveyID}, byCode)
	if err != nil {
		return shape, errors.Wrap(err, "get_shape.sections")
	}
	var docs []sectionDoc
	if err = cur.All(ctx, &docs); err != nil {
		return shape, errors.Wrap(err, "get_shape.sections")
	}

	shape.Sections = make([]model.Section, 0, len(docs))
	for _, d := range docs {
		shape.Sections = append(shape.Sections, model.Section{
			ID:       d.ID,
			SurveyID: d.SurveyID,
			Code:     d.Code,
			Name:     d.Name,
			Intro:    d.Intro,
			Ons:      json.RawMessage(d.Ons),
		})
	}

	shape.Questions, err = s.questions(ctx, bson.M{"survey_id": surveyID})
	return shape, errors.Wrap(err, "get_shape.questions")
}

// questions loads the questions matching filter with their answers, both
// ordered by code.
func (s *Store) questions(ctx context.Context, filter any) ([]model.Question, error) {
	cur, err := s.db.Collection(questions).Find(ctx, filter, byCode)
	if err != nil {
		return nil, err
	}
	var docs []questionDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	byQuestion, err := s.answers(ctx, bson.M{"question_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}

	out := make([]model.Question, 0, len(docs))
	for _, d := range docs {
		q := model.Question{
			ID:       d.ID,
			SurveyID: d.SurveyID,
			Code:     d.Code,
			Name:     d.Name,
			Answers:  byQuestion[d.ID],
		}
		if q.Answers == nil {
			q.Answers = []model.Answer{}
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *Store) answers(ctx context.Context, filter any) (map[int64][]model.Answer, error) {
	cur, err := s.db.Collection(answers).Find(ctx, filter, byCode)
	if err != nil {
		return nil, err
	}
	var docs []answerDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := map[int64][]model.Answer{}
	for _, d := range docs {
		out[d.QuestionID] = append(out[d.QuestionID], d.model())
	}
	return out, nil
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, model.Survey, error) {
	qs, err := s.questions(ctx, bson.M{"_id": id})
	if err != nil {
		return model.Question{}, model.Survey{}, errors.Wrap(err, "get_question")
	}
	if len(qs) == 0 {
		return model.Question{}, model.Survey{}, errs.NotFound("question", id)
	}

	sv, err := s.GetSurvey(ctx, qs[0].SurveyID)
	return qs[0], sv, err
}
