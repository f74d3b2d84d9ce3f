// Package scoring turns a survey response into question, section and total scores.
package scoring

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/model"
)

// Header is the first segment of a compact response, CODE:LANG:VERSION.
type Header struct {
	Code    string `json:"code"`
	Lang    string `json:"lang"`
	Version int    `json:"version"`
}

// Outdated reports whether the stored definition is older than the one the
// response was filled in with.
func (h Header) Outdated(s model.Survey) bool {
	return s.Version < h.Version
}

// Item is the set of answer codes selected for one question.
type Item struct {
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
}

type Response []Item

// Decode parses the compact encoding
//
//	CODE:LANG:VERSION/QQQAACC/QQQAA/...
//
// where QQQ is a three character question code followed by the selected
// two character answer codes. The "QQQ:AA,CC" form written by the web form
// generator is accepted as well.
func Decode(body string) (Header, Response, error) {
	segs := strings.Split(strings.TrimSpace(body), "/")
	if len(segs) < 2 {
		return Header{}, nil, errs.Malformed("expected at least 2 segments, got %d", len(segs))
	}

	parts := strings.Split(segs[0], ":")
	if len(parts) != 3 {
		return Header{}, nil, errs.Malformed("expected CODE:LANG:VERSION, got %q", segs[0])
	}
	h := Header{
		Code: strings.TrimSpace(parts[0]),
		Lang: strings.TrimSpace(parts[1]),
	}
	// an unreadable version never flags the response as outdated
	h.Version, _ = strconv.Atoi(strings.TrimSpace(parts[2]))

	resp := Response{}
	for _, seg := range segs[1:] {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if len(seg) < 3 {
			return Header{}, nil, errs.Malformed("segment %q is shorter than a question code", seg)
		}
		resp = append(resp, Item{
			Question: strings.ToUpper(seg[:3]),
			Answers:  SplitCodes(strings.TrimPrefix(seg[3:], ":")),
		})
	}
	return h, resp, nil
}

// FromValues builds a response out of submitted form or JSON values, keyed by
// question code. Keys longer than 3 characters and the "tag" field are not
// question codes and are ignored.
func FromValues(values map[string][]string) Response {
	keys := make([]string, 0, len(values))
	for k := range values {
		k = strings.TrimSpace(k)
		if k == "" || len(k) > 3 || strings.EqualFold(k, "tag") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	resp := make(Response, 0, len(keys))
	for _, k := range keys {
		resp = append(resp, Item{
			Question: strings.ToUpper(k),
			Answers:  SplitCodes(values[k]...),
		})
	}
	return resp
}

// SplitCodes normalizes selected answers into a list of distinct codes.
// Values may be repeated, comma separated or concatenated two character codes.
func SplitCodes(values ...string) []string {
	codes := []string{}
	seen := map[string]bool{}
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			codes = append(codes, c)
		}
	}

	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			for len(part) > 2 {
				add(part[:2])
				part = part[2:]
			}
			add(part)
		}
	}
	return codes
}
