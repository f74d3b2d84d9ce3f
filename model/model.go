package model

import (
	"encoding/json"
	"time"
)

// Survey is one language variant of a questionnaire, unique by (Code, Lang).
type Survey struct {
	ID      int64     `json:"id"`
	Code    string    `json:"code"`
	Lang    string    `json:"lang"`
	Version int       `json:"version"`
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Body    string    `json:"-"`
	At      time.Time `json:"at"`
}

type Section struct {
	ID       int64           `json:"id"`
	SurveyID int64           `json:"survey_id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Intro    string          `json:"intro"`
	Ons      json.RawMessage `json:"ons,omitempty"`
}

// Question codes are three characters; the first two name the owning section.
type Question struct {
	ID       int64    `json:"id"`
	SurveyID int64    `json:"survey_id"`
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Answers  []Answer `json:"answers,omitempty"`
}

func (q Question) SectionCode() string {
	if len(q.Code) < 2 {
		return q.Code
	}
	return q.Code[:2]
}

type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Score      int    `json:"score"`
	Goto       string `json:"goto,omitempty"`
}

// Shape is a survey together with its sections and questions, ordered by code.
type Shape struct {
	Survey    Survey     `json:"survey"`
	Sections  []Section  `json:"sections"`
	Questions []Question `json:"questions"`
}

func (s Shape) Question(code string) (Question, bool) {
	for _, q := range s.Questions {
		if q.Code == code {
			return q, true
		}
	}
	return Question{}, false
}

type Patient struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	LastSurvey *Survey   `json:"last_survey,omitempty"`
	At         time.Time `json:"at,omitempty"`

	// Every answer code ever given, keyed by AnswerKey(survey, question).
	Answers map[string][]string `json:"answers,omitempty"`
}

func AnswerKey(surveyCode, questionCode string) string {
	return surveyCode + "_" + questionCode
}

// Outcome is one scored submission of a survey by a patient.
type Outcome struct {
	ID             string              `json:"id"`
	PatientID      string              `json:"patient_id"`
	PatientName    string              `json:"patient_name,omitempty"`
	SurveyID       int64               `json:"survey_id"`
	SurveyCode     string              `json:"survey_code"`
	SurveyName     string              `json:"survey_name,omitempty"`
	SurveyLang     string              `json:"survey_lang,omitempty"`
	Answers        map[string][]string `json:"answers"`
	QuestionScores map[string]int      `json:"question_scores"`
	SectionScores  map[string]int      `json:"section_scores"`
	Total          int                 `json:"total"`
	Tag            string              `json:"tag"`
	At             time.Time           `json:"at"`
}

type Filter struct {
	ID       string    `json:"id"`
	Survey   Survey    `json:"survey"`
	Question Question  `json:"question"`
	Answers  []Answer  `json:"answers"`
	At       time.Time `json:"at"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Total int    `json:"total"`
}

// Page is one page of a listing. Number starts at 1.
type Page[T any] struct {
	Items  []T `json:"items"`
	Number int `json:"page"`
	Pages  int `json:"pages"`
	Count  int `json:"count"`
}

func NewPage[T any](items []T, number, size, count int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if size > 0 {
		pages = (count + size - 1) / size
	}
	return Page[T]{Items: items, Number: number, Pages: pages, Count: count}
}

// Definition is the JSON document accepted by the import endpoint.
type Definition struct {
	Code      string               `json:"code"`
	Lang      string               `json:"lang"`
	Version   int                  `json:"ver"`
	Name      string               `json:"name"`
	Type      string               `json:"type"`
	Sections  []SectionDefinition  `json:"sections"`
	Questions []QuestionDefinition `json:"questions"`
}

type SectionDefinition struct {
	Code  string          `json:"code"`
	Name  string          `json:"name"`
	Intro string          `json:"intro"`
	Ons   json.RawMessage `json:"ons"`
}

type QuestionDefinition struct {
	Code    string             `json:"code"`
	Name    string             `json:"name"`
	Answers []AnswerDefinition `json:"answers"`
}

type AnswerDefinition struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	Goto  string `json:"goto"`
}
