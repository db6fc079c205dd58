package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowToInquiry(t *testing.T) {
	t.Run("FullRow", func(t *testing.T) {
		row := []interface{}{
			"8/30/2026 14:05:12", "Asha", "asha@example.com", "+1 555 0101",
			"catering", "Office party", "40 people, vegetarian options",
		}

		inq := rowToInquiry(row)
		assert.Equal(t, "8/30/2026 14:05:12", inq.Timestamp)
		assert.Equal(t, "Asha", inq.Name)
		assert.Equal(t, "asha@example.com", inq.Email)
		assert.Equal(t, "+1 555 0101", inq.Phone)
		assert.Equal(t, "catering", inq.Purpose)
		assert.Equal(t, "Office party", inq.Subject)
		assert.Equal(t, "40 people, vegetarian options", inq.Message)
	})

	t.Run("ShortRow", func(t *testing.T) {
		inq := rowToInquiry([]interface{}{"8/30/2026", "Ben"})
		assert.Equal(t, "Ben", inq.Name)
		assert.Empty(t, inq.Email)
		assert.Empty(t, inq.Message)
	})

	t.Run("NonStringCell", func(t *testing.T) {
		inq := rowToInquiry([]interface{}{"8/30/2026", "Ben", "ben@example.com", 5550101})
		assert.Equal(t, "5550101", inq.Phone)
	})
}
