package mongo

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
)

type patientDoc struct {
	ID           string              `bson:"_id"`
	Name         string              `bson:"name"`
	LastSurveyID int64               `bson:"last_survey_id,omitempty"`
	At           time.Time           `bson:"at,omitempty"`
	Answers      map[string][]string `bson:"answers,omitempty"`
}

func (s *Store) CreatePatient(ctx context.Context, p model.Patient) (model.Patient, error) {
	if err := p.Normalize(); err != nil {
		return p, err
	}

	_, err := s.db.Collection(patients).InsertOne(ctx, bson.M{"_id": p.ID, "name": p.Name})
	if err != nil {
		return p, classify(err, "create_patient")
	}
	return s.GetPatient(ctx, p.ID)
}

func (s *Store) UpdatePatient(ctx context.Context, p model.Patient) error {
	if err := p.Normalize(); err != nil {
		return err
	}

	res, err := s.db.Collection(patients).UpdateByID(ctx, p.ID, bson.M{"$set": bson.M{"name": p.Name}})
	if err != nil {
		return errors.Wrap(err, "update_patient")
	}
	if res.MatchedCount < 1 {
		return errs.NotFound("patient", p.ID)
	}
	return nil
}

// findPatients loads patients with their last survey. Answer sets are only
// kept when withAnswers is set.
func (s *Store) findPatients(ctx context.Context, filter any, withAnswers bool, opts ...*options.FindOptions) ([]model.Patient, error) {
	cur, err := s.db.Collection(patients).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var docs []patientDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := []int64{}
	for _, d := range docs {
		if d.LastSurveyID != 0 {
			ids = append(ids, d.LastSurveyID)
		}
	}
	svs, err := s.surveysByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]model.Patient, 0, len(docs))
	for _, d := range docs {
		p := model.Patient{ID: d.ID, Name: d.Name, At: d.At}
		if sv, ok := svs[d.LastSurveyID]; ok {
			p.LastSurvey = &model.Survey{ID: sv.ID, Code: sv.Code, Lang: sv.Lang, Name: sv.Name}
		}
		if withAnswers {
			p.Answers = map[string][]string{}
			for k, codes := range d.Answers {
				codes = append([]string(nil), codes...)
				sort.Strings(codes)
				p.Answers[k] = codes
			}
		}
		out = append(out, p)
	}
	return out, nil
}

var patientOrder = bson.D{{Key: "at", Value: -1}, {Key: "_id", Value: 1}}

func (s *Store) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	id = model.NormalizePatientID(id)
	out, err := s.findPatients(ctx, bson.M{"_id": id}, true)
	if err != nil {
		return model.Patient{}, errors.Wrap(err, "get_patient")
	}
	if len(out) == 0 {
		return model.Patient{}, errs.NotFound("patient", id)
	}
	return out[0], nil
}

// SearchPatients matches q as a case-insensitive substring of id or name.
func (s *Store) SearchPatients(ctx context.Context, q string, limit int) ([]model.Patient, error) {
	re := primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(q)), Options: "i"}
	out, err := s.findPatients(ctx,
		bson.M{"$or": bson.A{bson.M{"_id": re}, bson.M{"name": re}}},
		false,
		options.Find().SetSort(patientOrder).SetLimit(int64(limit)),
	)
	return out, errors.Wrap(err, "search_patients")
}

func (s *Store) patientExists(ctx context.Context, id string) error {
	err := s.db.Collection(patients).
		FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"_id": 1})).
		Err()
	if errors.Is(err, driver.ErrNoDocuments) {
		return errs.NotFound("patient", id)
	}
	return errors.Wrap(err, "patient_exists")
}
