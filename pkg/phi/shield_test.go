package phi

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShield() *Shield {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewShield(logger)
}

func TestDeidentifyReplacesKnownCategories(t *testing.T) {
	shield := newTestShield()

	testCases := []struct {
		name        string
		input       string
		placeholder string
	}{
		{
			name:        "full name",
			input:       "Anna Schmidt reported feeling better this week",
			placeholder: "[NAME_1]",
		},
		{
			name:        "dotted date",
			input:       "follow-up scheduled for 12.03.2024 at the clinic",
			placeholder: "[DATE_1]",
		},
		{
			name:        "phone number",
			input:       "reachable at +49 170 1234567 during the day",
			placeholder: "[PHONE_1]",
		},
		{
			name:        "email address",
			input:       "sent the forms to patient.a@example.com yesterday",
			placeholder: "[EMAIL_1]",
		},
		{
			name:        "street address",
			input:       "moved to Hauptstraße 12 last month",
			placeholder: "[ADDRESS_1]",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			scrubbed, m := shield.Deidentify(tc.input)

			assert.Contains(t, scrubbed, tc.placeholder, "Scrubbed text should contain the placeholder")
			assert.Len(t, m, 1, "Map should hold exactly one entry")
		})
	}
}

func TestDeidentifyReidentifyRoundTrip(t *testing.T) {
	shield := newTestShield()

	original := "Anna Schmidt came in on 12.03.2024, gave her number +49 170 1234567 " +
		"and email anna.s@example.com, and now lives at Hauptstraße 12."

	scrubbed, m := shield.Deidentify(original)

	assert.NotContains(t, scrubbed, "Anna Schmidt", "Name must not survive scrubbing")
	assert.NotContains(t, scrubbed, "12.03.2024", "Date must not survive scrubbing")
	assert.NotContains(t, scrubbed, "anna.s@example.com", "Email must not survive scrubbing")

	restored := shield.Reidentify(scrubbed, m)
	assert.Equal(t, original, restored, "Reidentify must invert Deidentify exactly")
}

func TestDeidentifyCleanTextUnchanged(t *testing.T) {
	shield := newTestShield()

	input := "the client described ongoing difficulty sleeping and low appetite"
	scrubbed, m := shield.Deidentify(input)

	assert.Equal(t, input, scrubbed, "Text without identifiers should pass through unchanged")
	assert.Empty(t, m, "Map should be empty for clean text")
}

func TestDeidentifyManySharesCounters(t *testing.T) {
	shield := newTestShield()

	scrubbed, m := shield.DeidentifyMany([]string{
		"Anna Schmidt attended the session.",
		"Previous notes mention Karl Weber as emergency contact.",
	})

	require.Len(t, scrubbed, 2)
	assert.Contains(t, scrubbed[0], "[NAME_1]")
	assert.Contains(t, scrubbed[1], "[NAME_2]", "Counters must continue across payloads")
	assert.Equal(t, "Anna Schmidt", m["[NAME_1]"])
	assert.Equal(t, "Karl Weber", m["[NAME_2]"])
}

func TestReidentifyLeavesUnmappedPlaceholder(t *testing.T) {
	shield := newTestShield()

	m := Map{"[NAME_1]": "Anna Schmidt"}
	text := "[NAME_1] mentioned that [NAME_7] was also present"

	restored := shield.Reidentify(text, m)

	assert.Contains(t, restored, "Anna Schmidt", "Mapped placeholder must be restored")
	assert.Contains(t, restored, "[NAME_7]", "Unmapped placeholder must be left unchanged")
}

func TestReidentifyEmptyMap(t *testing.T) {
	shield := newTestShield()

	text := "no placeholders in here"
	assert.Equal(t, text, shield.Reidentify(text, Map{}), "Empty map must leave text unchanged")
}

func TestReidentifyValueNestedStructure(t *testing.T) {
	shield := newTestShield()

	m := Map{"[NAME_1]": "Anna Schmidt"}
	value := map[string]interface{}{
		"subjective": "[NAME_1] reports improved mood",
		"sections": []interface{}{
			"[NAME_1] completed homework",
			42.0,
		},
		"score": 0.8,
	}

	restored, ok := shield.ReidentifyValue(value, m).(map[string]interface{})
	require.True(t, ok, "Restored value should keep its map shape")

	assert.Equal(t, "Anna Schmidt reports improved mood", restored["subjective"])
	assert.Equal(t, 0.8, restored["score"], "Non-string values must pass through untouched")

	sections, ok := restored["sections"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, "Anna Schmidt completed homework", sections[0])
	assert.Equal(t, 42.0, sections[1])
}

func TestDeidentifyRepeatedOccurrences(t *testing.T) {
	shield := newTestShield()

	scrubbed, m := shield.Deidentify("Anna Schmidt said Anna Schmidt prefers morning sessions")

	assert.False(t, strings.Contains(scrubbed, "Anna Schmidt"), "Every occurrence must be scrubbed")
	restored := shield.Reidentify(scrubbed, m)
	assert.Equal(t, "Anna Schmidt said Anna Schmidt prefers morning sessions", restored)
}
