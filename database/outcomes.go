package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
	"github.com/mbolis/prom-tracker/store"
)

// AcceptOutcome overwrites the latest outcome recorded since sub.Since, or
// creates one, and grows the patient's answer sets. Both writes share one
// transaction. Two concurrent submissions can still each miss the other's
// outcome and insert two rows.
func (s *Store) AcceptOutcome(ctx context.Context, sub store.Submission) (model.Outcome, error) {
	patientID := model.NormalizePatientID(sub.PatientID)

	answers, err := toJSON(sub.Answers)
	if err != nil {
		return model.Outcome{}, errors.Wrap(err, "accept.answers")
	}
	questionScores, err := toJSON(sub.QuestionScores)
	if err != nil {
		return model.Outcome{}, errors.Wrap(err, "accept.question_scores")
	}
	sectionScores, err := toJSON(sub.SectionScores)
	if err != nil {
		return model.Outcome{}, errors.Wrap(err, "accept.section_scores")
	}

	var outcomeID string
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM patient WHERE id = ?`, patientID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFound("patient", patientID)
		}
		if err != nil {
			return errors.Wrap(err, "accept.patient")
		}

		err = tx.QueryRowContext(ctx, `
			SELECT id FROM outcome
			WHERE patient_id = ?
				AND survey_id = ?
				AND at >= ?
			ORDER BY at DESC
			LIMIT 1`,
			patientID, sub.Survey.ID, sub.Since.UTC(),
		).Scan(&outcomeID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id, err := uuid.NewV4()
			if err != nil {
				return errors.Wrap(err, "accept.outcome.id")
			}
			outcomeID = id.String()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO outcome (id, patient_id, survey_id, at)
				VALUES (?, ?, ?, ?)`,
				outcomeID, patientID, sub.Survey.ID, sub.At.UTC(),
			)
			if err != nil {
				return classify(err, "accept.outcome.insert")
			}
		case err != nil:
			return errors.Wrap(err, "accept.outcome.find")
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE outcome SET
				survey_code = ?,
				answers = ?,
				question_scores = ?,
				section_scores = ?,
				total = ?,
				tag = ?
			WHERE id = ?`,
			sub.Survey.Code, answers, questionScores, sectionScores,
			sub.Total, strings.TrimSpace(sub.Tag), outcomeID,
		)
		if err != nil {
			return classify(err, "accept.outcome.update")
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO patient_answer (patient_id, survey_code, question_code, answer_code)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "accept.patient_answers.prepare")
		}
		defer stmt.Close()

		for question, codes := range sub.Answers {
			for _, code := range codes {
				_, err = stmt.ExecContext(ctx, patientID, sub.Survey.Code, question, code)
				if err != nil {
					return errors.Wrap(err, "accept.patient_answers.insert")
				}
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE patient SET last_survey_id = ?, at = ? WHERE id = ?`,
			sub.Survey.ID, sub.At.UTC(), patientID,
		)
		return errors.Wrap(err, "accept.patient.update")
	})
	if err != nil {
		return model.Outcome{}, err
	}

	return s.GetOutcome(ctx, outcomeID)
}

const outcomeColumns = `
	o.id, o.patient_id, p.name, o.survey_id, o.survey_code, s.name, s.lang,
	o.answers, o.question_scores, o.section_scores, o.total, o.tag, o.at`

const outcomeJoins = `
	FROM outcome o
	INNER JOIN patient p ON (p.id = o.patient_id)
	INNER JOIN survey s ON (s.id = o.survey_id)`

func scanOutcome(row scanner) (o model.Outcome, err error) {
	var answers, questionScores, sectionScores string
	err = row.Scan(
		&o.ID, &o.PatientID, &o.PatientName, &o.SurveyID, &o.SurveyCode, &o.SurveyName, &o.SurveyLang,
		&answers, &questionScores, &sectionScores, &o.Total, &o.Tag, &o.At,
	)
	if err != nil {
		return
	}

	o.Answers = map[string][]string{}
	o.QuestionScores = map[string]int{}
	o.SectionScores = map[string]int{}
	if err = fromJSON(answers, &o.Answers); err != nil {
		return
	}
	if err = fromJSON(questionScores, &o.QuestionScores); err != nil {
		return
	}
	err = fromJSON(sectionScores, &o.SectionScores)
	return
}

func (s *Store) queryOutcomes(ctx context.Context, query string, args ...any) ([]model.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := []model.Outcome{}
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *Store) GetOutcome(ctx context.Context, id string) (model.Outcome, error) {
	o, err := scanOutcome(s.db.QueryRowContext(ctx, `
		SELECT `+outcomeColumns+outcomeJoins+`
		WHERE o.id = ?`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return o, errs.NotFound("outcome", id)
	}
	return o, errors.Wrap(err, "get_outcome")
}

func outcomeWhere(q store.OutcomeQuery) (string, []any) {
	conds := []string{"1 = 1"}
	args := []any{}
	if q.ID != "" {
		conds = append(conds, "o.id = ?")
		args = append(args, q.ID)
	}
	if q.PatientID != "" {
		conds = append(conds, "o.patient_id = ?")
		args = append(args, model.NormalizePatientID(q.PatientID))
	}
	if q.SurveyID != 0 {
		conds = append(conds, "o.survey_id = ?")
		args = append(args, q.SurveyID)
	}
	return strings.Join(conds, " AND "), args
}

// ListOutcomes pages through outcomes, newest first, and also returns how
// many outcomes match q overall.
func (s *Store) ListOutcomes(ctx context.Context, q store.OutcomeQuery, page store.Paging) ([]model.Outcome, int, error) {
	where, args := outcomeWhere(q)

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outcome o WHERE `+where,
		args...,
	).Scan(&count)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list_outcomes.count")
	}

	outcomes, err := s.queryOutcomes(ctx, `
		SELECT `+outcomeColumns+outcomeJoins+`
		WHERE `+where+`
		ORDER BY o.at DESC, o.rowid DESC
		LIMIT ? OFFSET ?`,
		append(args, page.Size, page.Offset())...,
	)
	return outcomes, count, errors.Wrap(err, "list_outcomes")
}

func (s *Store) PatientHistory(ctx context.Context, patientID string, surveyID int64) ([]model.Outcome, error) {
	outcomes, err := s.queryOutcomes(ctx, `
		SELECT `+outcomeColumns+outcomeJoins+`
		WHERE o.patient_id = ? AND o.survey_id = ?
		ORDER BY o.at, o.rowid`,
		model.NormalizePatientID(patientID), surveyID,
	)
	return outcomes, errors.Wrap(err, "patient_history")
}

func (s *Store) SetOutcomeTag(ctx context.Context, id, tag string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outcome SET tag = ? WHERE id = ?`,
		strings.TrimSpace(tag), id,
	)
	if err != nil {
		return errors.Wrap(err, "set_outcome_tag")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "set_outcome_tag.verify")
	}
	if n < 1 {
		return errs.NotFound("outcome", id)
	}
	return nil
}

func (s *Store) DistinctTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT tag FROM outcome
		WHERE tag != ''
		ORDER BY tag`)
	if err != nil {
		return nil, errors.Wrap(err, "distinct_tags")
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err = rows.Scan(&tag); err != nil {
			return nil, errors.Wrap(err, "distinct_tags.scan")
		}
		tags = append(tags, tag)
	}
	return tags, errors.Wrap(rows.Err(), "distinct_tags")
}

func (s *Store) countTags(ctx context.Context, where string, arg any) ([]model.TagCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, COUNT(*) AS total
		FROM outcome
		WHERE `+where+` = ?
		GROUP BY tag
		ORDER BY total DESC, tag`,
		arg,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []model.TagCount{}
	for rows.Next() {
		var c model.TagCount
		if err = rows.Scan(&c.Tag, &c.Total); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *Store) CountTagsByCode(ctx context.Context, surveyCode string) ([]model.TagCount, error) {
	counts, err := s.countTags(ctx, "survey_code", surveyCode)
	return counts, errors.Wrap(err, "count_tags_by_code")
}

func (s *Store) CountTagsBySurvey(ctx context.Context, surveyID int64) ([]model.TagCount, error) {
	counts, err := s.countTags(ctx, "survey_id", surveyID)
	return counts, errors.Wrap(err, "count_tags_by_survey")
}
