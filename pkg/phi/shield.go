package phi

import (
	"fmt"
	"regexp"
	"strings"

	"cliniguard-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Category classifies the kind of identifying information a matcher detects
type Category string

const (
	CategoryName    Category = "NAME"
	CategoryDate    Category = "DATE"
	CategoryPhone   Category = "PHONE"
	CategoryEmail   Category = "EMAIL"
	CategoryAddress Category = "ADDRESS"
)

// Map records the placeholder to original-substring pairs produced while
// scrubbing one text payload. It lives for the duration of a single pipeline
// invocation and must never be persisted or shared across requests.
type Map map[string]string

// matcher pairs a compiled pattern with its placeholder category
type matcher struct {
	category Category
	pattern  *regexp.Regexp
}

// Shield performs reversible de-identification of free text before it is
// handed to an external AI service, and re-identification of the result
type Shield struct {
	logger   *logrus.Logger
	matchers []matcher
}

// placeholderPattern recognizes any placeholder the shield could have emitted
var placeholderPattern = regexp.MustCompile(`\[([A-Z]+)_(\d+)\]`)

// NewShield creates a new PHI shield.
//
// The matcher order is fixed and load-bearing: names are matched before
// addresses, dates before phone numbers. Overlapping candidates are resolved
// by whichever matcher runs first, which keeps scrubbing deterministic.
func NewShield(logger *logrus.Logger) *Shield {
	return &Shield{
		logger: logger,
		matchers: []matcher{
			{CategoryName, regexp.MustCompile(`\b[A-Z][a-zäöüß]+ [A-Z][a-zäöüß]+\b`)},
			{CategoryDate, regexp.MustCompile(`\b\d{2}[./]\d{2}[./]\d{4}\b`)},
			{CategoryPhone, regexp.MustCompile(`\+?\d[\d ()/\-]{6,}\d`)},
			{CategoryEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
			{CategoryAddress, regexp.MustCompile(`\b(?:[A-ZÄÖÜ][a-zäöüß]+(?:straße|strasse|weg|gasse|platz|allee) \d+[a-z]?|\d+ [A-Z][a-z]+ (?:Street|Avenue|Road|Lane|Drive|Boulevard))\b`)},
		},
	}
}

// Deidentify replaces identifying substrings with unique placeholders of the
// form [CATEGORY_n] and returns the scrubbed text together with the map
// needed to reverse the substitution
func (s *Shield) Deidentify(text string) (string, Map) {
	scrubbed, m := s.DeidentifyMany([]string{text})
	return scrubbed[0], m
}

// DeidentifyMany scrubs several payloads of one request into a shared map.
// Placeholder counters run continuously across payloads so no two payloads
// emit the same placeholder for different originals.
func (s *Shield) DeidentifyMany(texts []string) ([]string, Map) {
	m := make(Map)
	counters := make(map[Category]int)
	scrubbed := make([]string, len(texts))

	for i, text := range texts {
		scrubbed[i] = s.scrub(text, m, counters)
	}

	if len(m) > 0 {
		total := 0
		for _, text := range texts {
			total += len(text)
		}
		s.logger.WithFields(logrus.Fields{
			"placeholders": len(m),
			"payloads":     len(texts),
			"text_length":  total,
		}).Info("De-identified text payload")
	}

	return scrubbed, m
}

func (s *Shield) scrub(text string, m Map, counters map[Category]int) string {
	scrubbed := text

	for _, mt := range s.matchers {
		for _, match := range mt.pattern.FindAllString(scrubbed, -1) {
			counters[mt.category]++
			placeholder := fmt.Sprintf("[%s_%d]", mt.category, counters[mt.category])
			scrubbed = strings.Replace(scrubbed, match, placeholder, 1)
			m[placeholder] = match

			if metrics.Enabled() && metrics.PHIPlaceholdersEmitted != nil {
				metrics.PHIPlaceholdersEmitted.WithLabelValues(string(mt.category)).Inc()
			}
		}
	}

	return scrubbed
}

// Reidentify replaces every placeholder in text with its mapped original.
// Placeholders without a map entry (a model can echo back a bracketed token
// it invented) are left unchanged and logged; re-identification must never
// block a response.
func (s *Shield) Reidentify(text string, m Map) string {
	result := text
	for placeholder, original := range m {
		result = strings.ReplaceAll(result, placeholder, original)
	}

	for _, leftover := range placeholderPattern.FindAllStringSubmatch(result, -1) {
		s.logger.WithField("placeholder", leftover[0]).Warn("Unmapped placeholder left unchanged during re-identification")
		if metrics.Enabled() && metrics.PHIUnmappedPlaceholder != nil {
			metrics.PHIUnmappedPlaceholder.WithLabelValues(leftover[1]).Inc()
		}
	}

	return result
}

// ReidentifyValue applies Reidentify recursively through nested maps, slices
// and strings, for AI results that are structured rather than flat text
func (s *Shield) ReidentifyValue(value interface{}, m Map) interface{} {
	switch v := value.(type) {
	case string:
		return s.Reidentify(v, m)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, inner := range v {
			out[key] = s.ReidentifyValue(inner, m)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, inner := range v {
			out[i] = s.ReidentifyValue(inner, m)
		}
		return out
	default:
		return value
	}
}
