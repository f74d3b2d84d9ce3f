// Package store declares the persistence operations the HTTP layer relies on.
// The SQLite implementation lives in package database, the MongoDB one in
// database/mongo.
package store

import (
	"context"
	"time"

	"github.com/mbolis/prom-tracker/cohort"
	"github.com/mbolis/prom-tracker/model"
)

type Store interface {
	SurveyStore
	PatientStore
	OutcomeStore
	FilterStore
	UserStore
	Close() error
}

type SurveyStore interface {
	// ImportDefinition upserts the survey and all of its sections, questions
	// and answers, keyed by their codes.
	ImportDefinition(ctx context.Context, def model.Definition, body string) (model.Survey, error)
	ListSurveys(ctx context.Context) ([]model.Survey, error)
	GetSurvey(ctx context.Context, id int64) (model.Survey, error)
	FindSurvey(ctx context.Context, code, lang string) (model.Survey, error)
	ListSurveyVariants(ctx context.Context, code string) ([]model.Survey, error)
	GetShape(ctx context.Context, surveyID int64) (model.Shape, error)
	GetQuestion(ctx context.Context, id int64) (model.Question, model.Survey, error)
}

type PatientStore interface {
	CreatePatient(ctx context.Context, p model.Patient) (model.Patient, error)
	GetPatient(ctx context.Context, id string) (model.Patient, error)
	UpdatePatient(ctx context.Context, p model.Patient) error
	SearchPatients(ctx context.Context, q string, limit int) ([]model.Patient, error)
}

// Submission is a scored response ready to be recorded as an outcome.
type Submission struct {
	PatientID      string
	Survey         model.Survey
	Answers        map[string][]string
	QuestionScores map[string]int
	SectionScores  map[string]int
	Total          int
	Tag            string
	At             time.Time

	// An outcome recorded at or after Since for the same patient and survey
	// is overwritten instead of creating a new one.
	Since time.Time
}

// OutcomeQuery narrows an outcome listing; zero fields are ignored.
type OutcomeQuery struct {
	ID        string
	PatientID string
	SurveyID  int64
}

type Paging struct {
	Number int
	Size   int
}

func (p Paging) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

type OutcomeStore interface {
	// AcceptOutcome records sub and adds its answers to the patient's
	// accumulated answer sets.
	AcceptOutcome(ctx context.Context, sub Submission) (model.Outcome, error)
	GetOutcome(ctx context.Context, id string) (model.Outcome, error)
	ListOutcomes(ctx context.Context, q OutcomeQuery, page Paging) ([]model.Outcome, int, error)
	// PatientHistory lists outcomes oldest first.
	PatientHistory(ctx context.Context, patientID string, surveyID int64) ([]model.Outcome, error)
	SetOutcomeTag(ctx context.Context, id, tag string) error
	DistinctTags(ctx context.Context) ([]string, error)
	// Tag counts are ordered by count descending, then tag.
	CountTagsByCode(ctx context.Context, surveyCode string) ([]model.TagCount, error)
	CountTagsBySurvey(ctx context.Context, surveyID int64) ([]model.TagCount, error)
}

type FilterStore interface {
	CreateFilter(ctx context.Context, questionID int64, answerIDs []int64) (model.Filter, error)
	ListFilters(ctx context.Context) ([]model.Filter, error)
	GetFilter(ctx context.Context, id string) (model.Filter, error)
	DeleteFilter(ctx context.Context, id string) error
	MatchPatients(ctx context.Context, criteria []cohort.Criterion, page Paging) ([]model.Patient, int, error)
}

type UserStore interface {
	EnsureUser(ctx context.Context, username, password string) error
	ValidateUser(ctx context.Context, username, password string) error
	StoreToken(ctx context.Context, username, tokenID, refreshTokenID string, expiration time.Time) error
	// ConsumeToken deletes a refresh token and returns its expiration.
	ConsumeToken(ctx context.Context, username, tokenID, refreshTokenID string) (time.Time, error)
}
