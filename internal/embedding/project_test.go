package embedding

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bhaveshbhatkar/AISecurityLog/internal/parser"
)

func intPtr(i int) *int { return &i }

func TestProjectText(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)

	t.Run("renders all segments in order", func(t *testing.T) {
		rec := &parser.Record{
			Timestamp: &ts,
			SrcIP:     "192.168.1.1",
			Method:    "GET",
			URL:       "/api/users",
			Status:    intPtr(200),
			UserAgent: "Mozilla/5.0",
			Username:  "alice",
		}
		got := ProjectText(rec)
		assert.Equal(t,
			"2024-01-15T10:30:45Z | IP:192.168.1.1 | GET /api/users 200 | UA:Mozilla/5.0 | User:alice",
			got)
	})

	t.Run("omits absent segments entirely", func(t *testing.T) {
		rec := &parser.Record{Method: "GET", URL: "/x"}
		got := ProjectText(rec)
		assert.Equal(t, "GET /x 0", got)
		assert.NotContains(t, got, "UA:")
		assert.NotContains(t, got, "User:")
	})

	t.Run("missing method and url use defaults", func(t *testing.T) {
		rec := &parser.Record{SrcIP: "1.2.3.4"}
		assert.Equal(t, "IP:1.2.3.4 | UNKNOWN / 0", ProjectText(rec))
	})

	t.Run("truncates long user agent to 100 chars", func(t *testing.T) {
		rec := &parser.Record{
			Method:    "GET",
			URL:       "/x",
			UserAgent: strings.Repeat("a", 250),
		}
		got := ProjectText(rec)
		assert.Contains(t, got, "UA:"+strings.Repeat("a", 100))
		assert.NotContains(t, got, strings.Repeat("a", 101))
	})

	t.Run("is stable across calls", func(t *testing.T) {
		rec := &parser.Record{Timestamp: &ts, SrcIP: "1.1.1.1", Method: "POST", URL: "/y", Status: intPtr(404)}
		assert.Equal(t, ProjectText(rec), ProjectText(rec))
	})
}
