package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
)

func (s *Store) CreatePatient(ctx context.Context, p model.Patient) (model.Patient, error) {
	if err := p.Normalize(); err != nil {
		return p, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patient (id, name) VALUES (?, ?)`,
		p.ID, p.Name,
	)
	if err != nil {
		return p, classify(err, "create_patient")
	}
	return s.GetPatient(ctx, p.ID)
}

func (s *Store) UpdatePatient(ctx context.Context, p model.Patient) error {
	if err := p.Normalize(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE patient SET name = ? WHERE id = ?`,
		p.Name, p.ID,
	)
	if err != nil {
		return classify(err, "update_patient")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update_patient.verify")
	}
	if n < 1 {
		return errs.NotFound("patient", p.ID)
	}
	return nil
}

const patientColumns = `p.id, p.name, p.at, s.id, s.code, s.lang, s.name`

func scanPatient(row scanner) (p model.Patient, err error) {
	var at sql.NullTime
	var surveyID sql.NullInt64
	var code, lang, name sql.NullString
	err = row.Scan(&p.ID, &p.Name, &at, &surveyID, &code, &lang, &name)
	if err != nil {
		return
	}
	p.At = at.Time
	if surveyID.Valid {
		p.LastSurvey = &model.Survey{
			ID:   surveyID.Int64,
			Code: code.String,
			Lang: lang.String,
			Name: name.String,
		}
	}
	return
}

func (s *Store) queryPatients(ctx context.Context, where, tail string, args ...any) ([]model.Patient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+patientColumns+`
		FROM patient p
		LEFT OUTER JOIN survey s ON (s.id = p.last_survey_id)
		WHERE `+where+`
		ORDER BY p.at DESC, p.id
		`+tail,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	patients := []model.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func (s *Store) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	id = model.NormalizePatientID(id)
	patients, err := s.queryPatients(ctx, `p.id = ?`, "", id)
	if err != nil {
		return model.Patient{}, errors.Wrap(err, "get_patient")
	}
	if len(patients) == 0 {
		return model.Patient{}, errs.NotFound("patient", id)
	}
	p := patients[0]

	rows, err := s.db.QueryContext(ctx, `
		SELECT survey_code, question_code, answer_code
		FROM patient_answer
		WHERE patient_id = ?
		ORDER BY survey_code, question_code, answer_code`,
		id,
	)
	if err != nil {
		return p, errors.Wrap(err, "get_patient.answers")
	}
	defer rows.Close()

	p.Answers = map[string][]string{}
	for rows.Next() {
		var sc, qc, ac string
		if err = rows.Scan(&sc, &qc, &ac); err != nil {
			return p, errors.Wrap(err, "get_patient.answers.scan")
		}
		key := model.AnswerKey(sc, qc)
		p.Answers[key] = append(p.Answers[key], ac)
	}
	return p, errors.Wrap(rows.Err(), "get_patient.answers")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchPatients matches q as a case-insensitive substring of id or name.
func (s *Store) SearchPatients(ctx context.Context, q string, limit int) ([]model.Patient, error) {
	pattern := "%" + likeEscaper.Replace(strings.TrimSpace(q)) + "%"
	patients, err := s.queryPatients(ctx,
		`p.id LIKE ? ESCAPE '\' OR p.name LIKE ? ESCAPE '\'`,
		`LIMIT ?`,
		pattern, pattern, limit,
	)
	return patients, errors.Wrap(err, "search_patients")
}
