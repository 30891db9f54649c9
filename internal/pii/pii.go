// Package pii implements the PII Anonymizer: detect IIN/phone/card/
// email/full-name entities in free text, substitute stable per-kind
// tokens, and hand back a reversible mapping. See DESIGN.md for the
// grounding note on the dropped NER pass.
package pii

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	KindIIN      = "IIN"
	KindPhone    = "PHONE"
	KindCard     = "CARD"
	KindEmail    = "EMAIL"
	KindFullName = "FULL_NAME"
)

var (
	iinPattern = regexp.MustCompile(`(?:^|\D)(\d{12})(?:\D|$)`)

	phonePattern = regexp.MustCompile(
		`(?:\+7|8)[\s\-]?\(?\d{3}\)?[\s\-]?\d{3}[\s\-]?\d{2}[\s\-]?\d{2}` +
			`|(?:\+7|8)\d{10}` +
			`|(?:\+7|8)[0-9ХхXx\s\-]{8,12}\d{0,2}`,
	)

	cardPattern = regexp.MustCompile(`(?:^|\D)(\d{4}[\s\-]?\d{4}[\s\-]?\d{4}[\s\-]?\d{4})(?:\D|$)`)

	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// fullNamePattern matches two consecutive capitalized word tokens,
	// Cyrillic or Latin, 2-26 letters each.
	fullNamePattern = regexp.MustCompile(
		`[А-ЯЁA-Z][а-яёa-z]{1,25}\s+[А-ЯЁA-Z][а-яёa-z]{1,25}`,
	)
)

// fullNameIgnore is a fixed denylist of common bigrams that match the
// shape of a name but are not one: greetings, polite phrases,
// institution and product names, brokerage terms.
var fullNameIgnore = map[string]bool{
	"добрый день":         true,
	"добрый вечер":        true,
	"доброе утро":         true,
	"уважаемые коллеги":   true,
	"уважаемый клиент":    true,
	"подскажите пожалуйста": true,
	"хочу узнать":         true,
	"прошу вас":           true,
	"freedom broker":      true,
	"freedom finance":     true,
	"money advisor":       true,
	"московская биржа":    true,
	"брокерский счет":     true,
	"брокерские услуги":   true,
}

// Detection is a single PII entity found in text.
type Detection struct {
	Start    int
	End      int
	Original string
	Kind     string
	Token    string
}

// Result is the output of Anonymize.
type Result struct {
	AnonymizedText string
	Detections     []Detection
}

// Anonymizer detects and replaces PII in ticket text. It holds no
// mutable state and is safe for concurrent use.
type Anonymizer struct{}

func New() *Anonymizer {
	return &Anonymizer{}
}

// Anonymize detects all PII entities in text and replaces them with
// stable, per-kind sequential tokens. An empty input returns an empty
// result with no detections.
func (a *Anonymizer) Anonymize(text string) Result {
	if text == "" {
		return Result{}
	}

	var detections []Detection

	for _, m := range iinPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		detections = append(detections, Detection{Start: start, End: end, Original: text[start:end], Kind: KindIIN})
	}

	for _, loc := range phonePattern.FindAllStringIndex(text, -1) {
		if overlaps(loc[0], loc[1], detections) {
			continue
		}
		detections = append(detections, Detection{Start: loc[0], End: loc[1], Original: text[loc[0]:loc[1]], Kind: KindPhone})
	}

	for _, m := range cardPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if overlaps(start, end, detections) {
			continue
		}
		detections = append(detections, Detection{Start: start, End: end, Original: text[start:end], Kind: KindCard})
	}

	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		if overlaps(loc[0], loc[1], detections) {
			continue
		}
		detections = append(detections, Detection{Start: loc[0], End: loc[1], Original: text[loc[0]:loc[1]], Kind: KindEmail})
	}

	for _, loc := range fullNamePattern.FindAllStringIndex(text, -1) {
		full := strings.TrimSpace(text[loc[0]:loc[1]])
		if fullNameIgnore[strings.ToLower(full)] {
			continue
		}
		if overlaps(loc[0], loc[1], detections) {
			continue
		}
		detections = append(detections, Detection{Start: loc[0], End: loc[1], Original: full, Kind: KindFullName})
	}

	// Sort descending by start, drop overlaps keeping the first-seen
	// (earliest-declared-kind) detection, then re-sort ascending for
	// token numbering — matches the original's two-pass sort exactly.
	sort.SliceStable(detections, func(i, j int) bool { return detections[i].Start > detections[j].Start })
	detections = removeOverlaps(detections)
	sort.SliceStable(detections, func(i, j int) bool { return detections[i].Start < detections[j].Start })

	counters := map[string]int{}
	for i := range detections {
		counters[detections[i].Kind]++
		detections[i].Token = fmt.Sprintf("[%s_%d]", detections[i].Kind, counters[detections[i].Kind])
	}

	anonymized := text
	for i := len(detections) - 1; i >= 0; i-- {
		d := detections[i]
		anonymized = anonymized[:d.Start] + d.Token + anonymized[d.End:]
	}

	return Result{AnonymizedText: anonymized, Detections: detections}
}

// Rehydrate replaces every literal occurrence of each mapping's token
// with its original value. Idempotent on text containing no tokens.
func Rehydrate(text string, mappings []Detection) string {
	if text == "" || len(mappings) == 0 {
		return text
	}
	result := text
	for _, m := range mappings {
		result = strings.ReplaceAll(result, m.Token, m.Original)
	}
	return result
}

func overlaps(start, end int, detections []Detection) bool {
	for _, d := range detections {
		if start < d.End && end > d.Start {
			return true
		}
	}
	return false
}

// removeOverlaps assumes detections is sorted descending by Start and
// keeps, among overlapping spans, the one seen first (which — since the
// kinds are appended in fixed rule order — means regex kinds win over a
// later full-name match at the same position).
func removeOverlaps(detections []Detection) []Detection {
	if len(detections) == 0 {
		return nil
	}
	result := []Detection{detections[0]}
	for _, d := range detections[1:] {
		last := result[len(result)-1]
		if d.End <= last.Start {
			result = append(result, d)
		}
	}
	return result
}
