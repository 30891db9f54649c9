package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/freedomfinance/ticketfire/internal/models"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, models.SentimentPositive, normalize("positive"))
	assert.Equal(t, models.SentimentNegative, normalize("negative"))
	assert.Equal(t, models.SentimentNeutral, normalize("неизвестно"))
}

func TestSafeDefault(t *testing.T) {
	d := SafeDefault()
	assert.Equal(t, models.SentimentNeutral, d.Sentiment)
	assert.Equal(t, 0.0, d.Confidence)
}
