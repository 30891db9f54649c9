package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymize_DetectsKnownEntityKinds(t *testing.T) {
	cases := []struct {
		name string
		text string
		kind string
	}{
		{"iin", "Мой ИИН 123456789012 для справки", KindIIN},
		{"email", "пишите на test.user@example.com пожалуйста", KindEmail},
		{"card", "карта 4400 1234 5678 9012 заблокирована", KindCard},
		{"phone", "позвоните +77011234567 срочно", KindPhone},
	}

	a := New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := a.Anonymize(tc.text)
			require.NotEmpty(t, res.Detections, "expected at least one detection")
			found := false
			for _, d := range res.Detections {
				if d.Kind == tc.kind {
					found = true
				}
			}
			assert.True(t, found, "expected a %s detection, got %+v", tc.kind, res.Detections)
		})
	}
}

func TestAnonymize_FullNameIgnoresDenylist(t *testing.T) {
	a := New()
	res := a.Anonymize("Добрый день, прошу рассмотреть вопрос.")
	for _, d := range res.Detections {
		assert.NotEqual(t, KindFullName, d.Kind)
	}
}

// Property 1 — PII round trip: anonymize(T).rehydrate(mappings) == T.
func TestRoundTrip(t *testing.T) {
	texts := []string{
		"Иван Петров пишет с карты 4400 1234 5678 9012 и email ivan@example.com",
		"Обычный текст без персональных данных",
		"",
	}
	a := New()
	for _, text := range texts {
		res := a.Anonymize(text)
		rehydrated := Rehydrate(res.AnonymizedText, res.Detections)
		assert.Equal(t, text, rehydrated)
	}
}

// Property 2 — PII stability: repeated anonymization produces identical
// token sequences.
func TestStability(t *testing.T) {
	text := "Иван Петров, ИИН 123456789012, email ivan@example.com"
	a := New()
	first := a.Anonymize(text)
	second := a.Anonymize(text)

	require.Len(t, second.Detections, len(first.Detections))
	for i := range first.Detections {
		assert.Equal(t, first.Detections[i].Token, second.Detections[i].Token)
		assert.Equal(t, first.Detections[i].Kind, second.Detections[i].Kind)
	}
}

func TestRehydrate_IdempotentOnTextWithoutTokens(t *testing.T) {
	text := "nothing to rehydrate here"
	assert.Equal(t, text, Rehydrate(text, []Detection{{Token: "[IIN_1]", Original: "x"}}))
}

func TestRehydrate_EmptyMappings(t *testing.T) {
	assert.Equal(t, "hello", Rehydrate("hello", nil))
}
