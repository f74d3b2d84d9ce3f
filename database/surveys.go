package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
)

func (s *Store) ImportDefinition(ctx context.Context, def model.Definition, body string) (survey model.Survey, err error) {
	def.Normalize()
	if err = def.Validate(); err != nil {
		return survey, errs.Invalid(err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var surveyID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO survey (code, lang, version, name, type, body, at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (code, lang) DO UPDATE SET
				version = excluded.version,
				name = excluded.name,
				type = excluded.type,
				body = excluded.body
			RETURNING id`,
			def.Code, def.Lang, def.Version, def.Name, def.Type, body, time.Now().UTC(),
		).Scan(&surveyID)
		if err != nil {
			return classify(err, "import.survey")
		}

		sectionStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO section (survey_id, code, name, intro, ons)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (survey_id, code) DO UPDATE SET
				name = excluded.name,
				intro = excluded.intro,
				ons = excluded.ons`)
		if err != nil {
			return errors.Wrap(err, "import.sections.prepare")
		}
		defer sectionStmt.Close()

		for _, sec := range def.Sections {
			ons := string(sec.Ons)
			if ons == "" || ons == "null" {
				ons = "[]"
			}
			_, err = sectionStmt.ExecContext(ctx, surveyID, sec.Code, sec.Name, sec.Intro, ons)
			if err != nil {
				return classify(err, "import.sections."+sec.Code)
			}
		}

		questionStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO question (survey_id, code, name)
			VALUES (?, ?, ?)
			ON CONFLICT (survey_id, code) DO UPDATE SET
				name = excluded.name
			RETURNING id`)
		if err != nil {
			return errors.Wrap(err, "import.questions.prepare")
		}
		defer questionStmt.Close()

		answerStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO answer (question_id, code, name, score, goto)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (question_id, code) DO UPDATE SET
				name = excluded.name,
				score = excluded.score,
				goto = excluded.goto`)
		if err != nil {
			return errors.Wrap(err, "import.answers.prepare")
		}
		defer answerStmt.Close()

		for _, q := range def.Questions {
			var questionID int64
			err = questionStmt.QueryRowContext(ctx, surveyID, q.Code, q.Name).Scan(&questionID)
			if err != nil {
				return classify(err, "import.questions."+q.Code)
			}

			for _, a := range q.Answers {
				_, err = answerStmt.ExecContext(ctx, questionID, a.Code, a.Name, a.Score, a.Goto)
				if err != nil {
					return classify(err, "import.answers."+q.Code+a.Code)
				}
			}
		}

		survey.ID = surveyID
		return nil
	})
	if err != nil {
		return survey, err
	}

	return s.GetSurvey(ctx, survey.ID)
}

const surveyColumns = `s.id, s.code, s.lang, s.version, s.name, s.type, s.body, s.at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSurvey(row scanner) (sv model.Survey, err error) {
	err = row.Scan(&sv.ID, &sv.Code, &sv.Lang, &sv.Version, &sv.Name, &sv.Type, &sv.Body, &sv.At)
	return
}

func (s *Store) querySurveys(ctx context.Context, query string, args ...any) ([]model.Survey, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	surveys := []model.Survey{}
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		surveys = append(surveys, sv)
	}
	return surveys, rows.Err()
}

func (s *Store) ListSurveys(ctx context.Context) ([]model.Survey, error) {
	surveys, err := s.querySurveys(ctx, `
		SELECT `+surveyColumns+`
		FROM survey s
		ORDER BY s.code, s.lang`)
	return surveys, errors.Wrap(err, "list_surveys")
}

func (s *Store) ListSurveyVariants(ctx context.Context, code string) ([]model.Survey, error) {
	surveys, err := s.querySurveys(ctx, `
		SELECT `+surveyColumns+`
		FROM survey s
		WHERE s.code = ?
		ORDER BY s.lang`,
		code,
	)
	return surveys, errors.Wrap(err, "list_survey_variants")
}

func (s *Store) GetSurvey(ctx context.Context, id int64) (model.Survey, error) {
	sv, err := scanSurvey(s.db.QueryRowContext(ctx, `
		SELECT `+surveyColumns+`
		FROM survey s
		WHERE s.id = ?`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return sv, errs.NotFound("survey", id)
	}
	return sv, errors.Wrap(err, "get_survey")
}

func (s *Store) FindSurvey(ctx context.Context, code, lang string) (model.Survey, error) {
	sv, err := scanSurvey(s.db.QueryRowContext(ctx, `
		SELECT `+surveyColumns+`
		FROM survey s
		WHERE s.code = ? AND s.lang = ?`,
		code, lang,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return sv, errs.NotFound("survey", code+":"+lang)
	}
	return sv, errors.Wrap(err, "find_survey")
}

func (s *Store) GetShape(ctx context.Context, surveyID int64) (shape model.Shape, err error) {
	shape.Survey, err = s.GetSurvey(ctx, surveyID)
	if err != nil {
		return
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, survey_id, code, name, intro, ons
		FROM section
		WHERE survey_id = ?
		ORDER BY code`,
		surveyID,
	)
	if err != nil {
		return shape, errors.Wrap(err, "get_shape.sections")
	}
	defer rows.Close()

	shape.Sections = []model.Section{}
	for rows.Next() {
		var sec model.Section
		var ons string
		err = rows.Scan(&sec.ID, &sec.SurveyID, &sec.Code, &sec.Name, &sec.Intro, &ons)
		if err != nil {
			return shape, errors.Wrap(err, "get_shape.sections.scan")
		}
		sec.Ons = []byte(ons)
		shape.Sections = append(shape.Sections, sec)
	}
	if err = rows.Err(); err != nil {
		return shape, errors.Wrap(err, "get_shape.sections")
	}

	shape.Questions, err = s.questions(ctx, `q.survey_id = ?`, surveyID)
	return shape, errors.Wrap(err, "get_shape.questions")
}

// questions loads questions matching where, each with its answers, ordered
// by question and answer code.
func (s *Store) questions(ctx context.Context, where string, args ...any) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			q.id, q.survey_id, q.code, q.name,
			a.id, a.code, a.name, a.score, a.goto
		FROM question q
		LEFT OUTER JOIN answer a ON (a.question_id = q.id)
		WHERE `+where+`
		ORDER BY q.code, a.code`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		var answerID sql.NullInt64
		var code, name, gotoCode sql.NullString
		var score sql.NullInt64
		err = rows.Scan(
			&q.ID, &q.SurveyID, &q.Code, &q.Name,
			&answerID, &code, &name, &score, &gotoCode,
		)
		if err != nil {
			return nil, err
		}

		last := len(questions) - 1
		if last < 0 || questions[last].ID != q.ID {
			q.Answers = []model.Answer{}
			questions = append(questions, q)
			last++
		}
		if answerID.Valid {
			questions[last].Answers = append(questions[last].Answers, model.Answer{
				ID:         answerID.Int64,
				QuestionID: q.ID,
				Code:       code.String,
				Name:       name.String,
				Score:      int(score.Int64),
				Goto:       gotoCode.String,
			})
		}
	}
	return questions, rows.Err()
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, model.Survey, error) {
	questions, err := s.questions(ctx, `q.id = ?`, id)
	if err != nil {
		return model.Question{}, model.Survey{}, errors.Wrap(err, "get_question")
	}
	if len(questions) == 0 {
		return model.Question{}, model.Survey{}, errs.NotFound("question", id)
	}

	q := questions[0]
	sv, err := s.GetSurvey(ctx, q.SurveyID)
	return q, sv, err
}
