package model

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Normalize trims names and upper-cases section, question and answer codes.
func (d *Definition) Normalize() {
	d.Code = strings.TrimSpace(d.Code)
	d.Lang = strings.TrimSpace(d.Lang)
	d.Name = strings.TrimSpace(d.Name)
	if d.Type == "" {
		d.Type = "FLAT"
	}
	for i := range d.Sections {
		s := &d.Sections[i]
		s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
		s.Name = strings.TrimSpace(s.Name)
		s.Intro = strings.TrimSpace(s.Intro)
	}
	for i := range d.Questions {
		q := &d.Questions[i]
		q.Code = strings.ToUpper(strings.TrimSpace(q.Code))
		q.Name = strings.TrimSpace(q.Name)
		for j := range q.Answers {
			a := &q.Answers[j]
			a.Code = strings.ToUpper(strings.TrimSpace(a.Code))
		}
	}
}

// Validate reports every code that cannot be stored, not just the first one.
func (d Definition) Validate() error {
	var result *multierror.Error
	fail := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if d.Code == "" {
		fail("survey code is required")
	}

	sections := map[string]bool{}
	for i, s := range d.Sections {
		switch {
		case s.Code == "" || len(s.Code) > 2:
			fail("section #%d: code %q must be 1 to 2 characters", i+1, s.Code)
		case sections[s.Code]:
			fail("section %s: duplicated", s.Code)
		}
		sections[s.Code] = true
	}

	questions := map[string]bool{}
	for i, q := range d.Questions {
		switch {
		case q.Code == "" || len(q.Code) > 3:
			fail("question #%d: code %q must be 1 to 3 characters", i+1, q.Code)
		case questions[q.Code]:
			fail("question %s: duplicated", q.Code)
		}
		questions[q.Code] = true

		answers := map[string]bool{}
		for j, a := range q.Answers {
			switch {
			case a.Code == "" || len(a.Code) > 2:
				fail("question %s, answer #%d: code %q must be 1 to 2 characters", q.Code, j+1, a.Code)
			case answers[a.Code]:
				fail("question %s, answer %s: duplicated", q.Code, a.Code)
			case a.Score < 0:
				fail("question %s, answer %s: negative score %d", q.Code, a.Code, a.Score)
			}
			answers[a.Code] = true
		}
	}

	return result.ErrorOrNil()
}
