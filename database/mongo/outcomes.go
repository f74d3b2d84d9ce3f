package mongo

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
	"github.com/mbolis/prom-tracker/store"
)

type outcomeDoc struct {
	ID             string              `bson:"_id"`
	PatientID      string              `bson:"patient_id"`
	SurveyID       int64               `bson:"survey_id"`
	SurveyCode     string              `bson:"survey_code"`
	Answers        map[string][]string `bson:"answers"`
	QuestionScores map[string]int      `bson:"question_scores"`
	SectionScores  map[string]int      `bson:"section_scores"`
	Total          int                 `bson:"total"`
	Tag            string              `bson:"tag"`
	At             time.Time           `bson:"at"`
}

// AcceptOutcome overwrites the latest outcome recorded since sub.Since, or
// creates one, then grows the patient's answer sets in a second write. If
// that second write fails the outcome stays saved.
func (s *Store) AcceptOutcome(ctx context.Context, sub store.Submission) (model.Outcome, error) {
	patientID := model.NormalizePatientID(sub.PatientID)
	if err := s.patientExists(ctx, patientID); err != nil {
		return model.Outcome{}, err
	}

	coll := s.db.Collection(outcomes)

	var found struct {
		ID string `bson:"_id"`
	}
	err := coll.FindOne(ctx,
		bson.M{
			"patient_id": patientID,
			"survey_id":  sub.Survey.ID,
			"at":         bson.M{"$gte": sub.Since.UTC()},
		},
		options.FindOne().
			SetSort(bson.D{{Key: "at", Value: -1}}).
			SetProjection(bson.M{"_id": 1}),
	).Decode(&found)
	outcomeID := found.ID
	switch {
	case errors.Is(err, driver.ErrNoDocuments):
		id, err := uuid.NewV4()
		if err != nil {
			return model.Outcome{}, errors.Wrap(err, "accept.outcome.id")
		}
		outcomeID = id.String()
		_, err = coll.InsertOne(ctx, bson.M{
			"_id":        outcomeID,
			"patient_id": patientID,
			"survey_id":  sub.Survey.ID,
			"at":         sub.At.UTC(),
		})
		if err != nil {
			return model.Outcome{}, classify(err, "accept.outcome.insert")
		}
	case err != nil:
		return model.Outcome{}, errors.Wrap(err, "accept.outcome.find")
	}

	_, err = coll.UpdateByID(ctx, outcomeID, bson.M{"$set": bson.M{
		"survey_code":     sub.Survey.Code,
		"answers":         nonNil(sub.Answers),
		"question_scores": nonNilScores(sub.QuestionScores),
		"section_scores":  nonNilScores(sub.SectionScores),
		"total":           sub.Total,
		"tag":             strings.TrimSpace(sub.Tag),
	}})
	if err != nil {
		return model.Outcome{}, errors.Wrap(err, "accept.outcome.update")
	}

	update := bson.M{"$set": bson.M{
		"last_survey_id": sub.Survey.ID,
		"at":             sub.At.UTC(),
	}}
	if add := answerSetUpdate(sub.Survey.Code, sub.Answers); len(add) > 0 {
		update["$addToSet"] = add
	}
	_, err = s.db.Collection(patients).UpdateByID(ctx, patientID, update)
	if err != nil {
		return model.Outcome{}, errors.Wrap(err, "accept.patient.update")
	}

	return s.GetOutcome(ctx, outcomeID)
}

// answerSetUpdate builds the $addToSet document adding every submitted code
// to the patient's per-question answer sets.
func answerSetUpdate(surveyCode string, answers map[string][]string) bson.M {
	add := bson.M{}
	for question, codes := range answers {
		if len(codes) == 0 {
			continue
		}
		add["answers."+model.AnswerKey(surveyCode, question)] = bson.M{"$each": codes}
	}
	return add
}

func nonNil(m map[string][]string) map[string][]string {
	if m == nil {
		return map[string][]string{}
	}
	return m
}

func nonNilScores(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func (s *Store) findOutcomes(ctx context.Context, filter any, opts ...*options.FindOptions) ([]model.Outcome, error) {
	cur, err := s.db.Collection(outcomes).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var docs []outcomeDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	surveyIDs := []int64{}
	patientIDs := []string{}
	for _, d := range docs {
		surveyIDs = append(surveyIDs, d.SurveyID)
		patientIDs = append(patientIDs, d.PatientID)
	}
	svs, err := s.surveysByID(ctx, surveyIDs)
	if err != nil {
		return nil, err
	}
	names, err := s.patientNames(ctx, patientIDs)
	if err != nil {
		return nil, err
	}

	out := make([]model.Outcome, 0, len(docs))
	for _, d := range docs {
		sv := svs[d.SurveyID]
		out = append(out, model.Outcome{
			ID:             d.ID,
			PatientID:      d.PatientID,
			PatientName:    names[d.PatientID],
			SurveyID:       d.SurveyID,
			SurveyCode:     d.SurveyCode,
			SurveyName:     sv.Name,
			SurveyLang:     sv.Lang,
			Answers:        nonNil(d.Answers),
			QuestionScores: nonNilScores(d.QuestionScores),
			SectionScores:  nonNilScores(d.SectionScores),
			Total:          d.Total,
			Tag:            d.Tag,
			At:             d.At,
		})
	}
	return out, nil
}

func (s *Store) patientNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.db.Collection(patients).Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"name": 1}),
	)
	if err != nil {
		return nil, err
	}
	var docs []patientDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.ID] = d.Name
	}
	return out, nil
}

func (s *Store) GetOutcome(ctx context.Context, id string) (model.Outcome, error) {
	out, err := s.findOutcomes(ctx, bson.M{"_id": id})
	if err != nil {
		return model.Outcome{}, errors.Wrap(err, "get_outcome")
	}
	if len(out) == 0 {
		return model.Outcome{}, errs.NotFound("outcome", id)
	}
	return out[0], nil
}

func outcomeFilter(q store.OutcomeQuery) bson.M {
	filter := bson.M{}
	if q.ID != "" {
		filter["_id"] = q.ID
	}
	if q.PatientID != "" {
		filter["patient_id"] = model.NormalizePatientID(q.PatientID)
	}
	if q.SurveyID != 0 {
		filter["survey_id"] = q.SurveyID
	}
	return filter
}

func (s *Store) ListOutcomes(ctx context.Context, q store.OutcomeQuery, page store.Paging) ([]model.Outcome, int, error) {
	filter := outcomeFilter(q)

	count, err := s.db.Collection(outcomes).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list_outcomes.count")
	}

	out, err := s.findOutcomes(ctx, filter,
		paging(page).SetSort(bson.D{{Key: "at", Value: -1}, {Key: "_id", Value: 1}}))
	return out, int(count), errors.Wrap(err, "list_outcomes")
}

func (s *Store) PatientHistory(ctx context.Context, patientID string, surveyID int64) ([]model.Outcome, error) {
	out, err := s.findOutcomes(ctx,
		bson.M{"patient_id": model.NormalizePatientID(patientID), "survey_id": surveyID},
		options.Find().SetSort(bson.D{{Key: "at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	return out, errors.Wrap(err, "patient_history")
}

func (s *Store) SetOutcomeTag(ctx context.Context, id, tag string) error {
	res, err := s.db.Collection(outcomes).UpdateByID(ctx, id,
		bson.M{"$set": bson.M{"tag": strings.TrimSpace(tag)}})
	if err != nil {
		return errors.Wrap(err, "set_outcome_tag")
	}
	if res.MatchedCount < 1 {
		return errs.NotFound("outcome", id)
	}
	return nil
}

func (s *Store) DistinctTags(ctx context.Context) ([]string, error) {
	values, err := s.db.Collection(outcomes).Distinct(ctx, "tag", bson.M{"tag": bson.M{"$ne": ""}})
	if err != nil {
		return nil, errors.Wrap(err, "distinct_tags")
	}

	tags := make([]string, 0, len(values))
	for _, v := range values {
		if tag, ok := v.(string); ok && tag != "" {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags, nil
}

func (s *Store) countTags(ctx context.Context, match bson.M) ([]model.TagCount, error) {
	cur, err := s.db.Collection(outcomes).Aggregate(ctx, driver.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": "$tag", "total": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "total", Value: -1}, {Key: "_id", Value: 1}}}},
	})
	if err != nil {
		return nil, err
	}
	var docs []struct {
		Tag   string `bson:"_id"`
		Total int    `bson:"total"`
	}
	if err = cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	counts := make([]model.TagCount, 0, len(docs))
	for _, d := range docs {
		counts = append(counts, model.TagCount{Tag: d.Tag, Total: d.Total})
	}
	return counts, nil
}

func (s *Store) CountTagsByCode(ctx context.Context, surveyCode string) ([]model.TagCount, error) {
	counts, err := s.countTags(ctx, bson.M{"survey_code": surveyCode})
	return counts, errors.Wrap(err, "count_tags_by_code")
}

func (s *Store) CountTagsBySurvey(ctx context.Context, surveyID int64) ([]model.TagCount, error) {
	counts, err := s.countTags(ctx, bson.M{"survey_id": surveyID})
	return counts, errors.Wrap(err, "count_tags_by_survey")
}
