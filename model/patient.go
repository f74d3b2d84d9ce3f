package model

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/mbolis/prom-tracker/errs"
)

// MaxPatientName is the longest accepted patient name, in characters.
const MaxPatientName = 50

// NormalizePatientID trims and lower-cases a patient identifier; identifiers
// are case-insensitive.
func NormalizePatientID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Normalize cleans up the identifier and name and checks they can be stored.
func (p *Patient) Normalize() error {
	p.ID = NormalizePatientID(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.ID == "":
		return errs.Invalid(errors.New("patient id is required"))
	case len([]rune(p.Name)) > MaxPatientName:
		return errs.Invalid(errors.Errorf("patient name is longer than %d characters", MaxPatientName))
	}
	return nil
}
