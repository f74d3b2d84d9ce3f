package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/mbolis/prom-tracker/cohort"
	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
	"github.com/mbolis/prom-tracker/store"
)

// CreateFilter saves a filter on a question accepting the given answers.
// A second filter for the same question fails with errs.ErrDuplicate and
// leaves the existing one alone.
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
	for _, id := range answerIDs {
		if !valid[id] {
			return model.Filter{}, errs.Invalid(errors.Errorf("answer %d does not belong to question %s", id, q.Code))
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.Filter{}, errors.Wrap(err, "create_filter.id")
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO filter (id, survey_id, question_id, at)
			VALUES (?, ?, ?, ?)`,
			id.String(), q.SurveyID, q.ID, time.Now().UTC(),
		)
		if err != nil {
			return classify(err, "create_filter")
		}

		for _, answerID := range answerIDs {
			_, err = tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO filter_answer (filter_id, answer_id)
				VALUES (?, ?)`,
				id.String(), answerID,
			)
			if err != nil {
				return classify(err, "create_filter.answers")
			}
		}
		return nil
	})
	if err != nil {
		return model.Filter{}, err
	}

	return s.GetFilter(ctx, id.String())
}

func (s *Store) queryFilters(ctx context.Context, where string, args ...any) ([]model.Filter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			f.id, f.at,
			`+surveyColumns+`,
			q.id, q.survey_id, q.code, q.name,
			a.id, a.code, a.name, a.score, a.goto
		FROM filter f
		INNER JOIN survey s ON (s.id = f.survey_id)
		INNER JOIN question q ON (q.id = f.question_id)
		LEFT OUTER JOIN filter_answer fa ON (fa.filter_id = f.id)
		LEFT OUTER JOIN answer a ON (a.id = fa.answer_id)
		WHERE `+where+`
		ORDER BY f.at DESC, f.id, a.code`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	filters := []model.Filter{}
	for rows.Next() {
		var f model.Filter
		var answerID, score sql.NullInt64
		var code, name, gotoCode sql.NullString
		err = rows.Scan(
			&f.ID, &f.At,
			&f.Survey.ID, &f.Survey.Code, &f.Survey.Lang, &f.Survey.Version,
			&f.Survey.Name, &f.Survey.Type, &f.Survey.Body, &f.Survey.At,
			&f.Question.ID, &f.Question.SurveyID, &f.Question.Code, &f.Question.Name,
			&answerID, &code, &name, &score, &gotoCode,
		)
		if err != nil {
			return nil, err
		}

		last := len(filters) - 1
		if last < 0 || filters[last].ID != f.ID {
			f.Answers = []model.Answer{}
			filters = append(filters, f)
			last++
		}
		if answerID.Valid {
			filters[last].Answers = append(filters[last].Answers, model.Answer{
				ID:         answerID.Int64,
				QuestionID: f.Question.ID,
				Code:       code.String,
				Name:       name.String,
				Score:      int(score.Int64),
				Goto:       gotoCode.String,
			})
		}
	}
	return filters, rows.Err()
}

func (s *Store) ListFilters(ctx context.Context) ([]model.Filter, error) {
	filters, err := s.queryFilters(ctx, "1 = 1")
	return filters, errors.Wrap(err, "list_filters")
}

func (s *Store) GetFilter(ctx context.Context, id string) (model.Filter, error) {
	filters, err := s.queryFilters(ctx, "f.id = ?", id)
	if err != nil {
		return model.Filter{}, errors.Wrap(err, "get_filter")
	}
	if len(filters) == 0 {
		return model.Filter{}, errs.NotFound("filter", id)
	}
	return filters[0], nil
}

func (s *Store) DeleteFilter(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM filter_answer WHERE filter_id = ?`, id)
		if err != nil {
			return errors.Wrap(err, "delete_filter.answers")
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM filter WHERE id = ?`, id)
		if err != nil {
			return errors.Wrap(err, "delete_filter")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "delete_filter.verify")
		}
		if n < 1 {
			return errs.NotFound("filter", id)
		}
		return nil
	})
}

// criteriaWhere requires, for every criterion, that the patient's answers
// to that question include each accepted code.
func criteriaWhere(criteria []cohort.Criterion) (string, []any) {
	conds := []string{"1 = 1"}
	args := []any{}
	for _, c := range criteria {
		if len(c.AnswerCodes) == 0 {
			conds = append(conds, "0 = 1")
			continue
		}

		codes := distinct(c.AnswerCodes)
		conds = append(conds, `(
			SELECT COUNT(DISTINCT pa.answer_code)
			FROM patient_answer pa
			WHERE pa.patient_id = p.id
				AND pa.survey_code = ?
				AND pa.question_code = ?
				AND pa.answer_code IN (?`+strings.Repeat(", ?", len(codes)-1)+`)
		) = ?`)
		args = append(args, c.SurveyCode, c.QuestionCode)
		for _, code := range codes {
			args = append(args, code)
		}
		args = append(args, len(codes))
	}
	return strings.Join(conds, " AND "), args
}

func distinct(codes []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) MatchPatients(ctx context.Context, criteria []cohort.Criterion, page store.Paging) ([]model.Patient, int, error) {
	where, args := criteriaWhere(criteria)

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM patient p WHERE `+where,
		args...,
	).Scan(&count)
	if err != nil {
		return nil, 0, errors.Wrap(err, "match_patients.count")
	}

	patients, err := s.queryPatients(ctx, where, `LIMIT ? OFFSET ?`,
		append(args, page.Size, page.Offset())...,
	)
	return patients, count, errors.Wrap(err, "match_patients")
}
