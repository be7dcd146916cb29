package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	t.Run("registers without panicking twice", func(t *testing.T) {
		a := NewCollector()
		b := NewCollector()
		assert.NotNil(t, a)
		assert.NotNil(t, b)
	})

	t.Run("serves recorded values", func(t *testing.T) {
		c := NewCollector()
		c.LinesTotal.WithLabelValues("parsed").Add(3)
		c.AnomaliesTotal.WithLabelValues("rule_based").Inc()
		c.IndexSize.Set(42)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/metrics", nil)
		c.Handler().ServeHTTP(rec, req)

		require.Equal(t, 200, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `seclog_lines_total{result="parsed"} 3`)
		assert.Contains(t, body, `seclog_anomalies_total{detector="rule_based"} 1`)
		assert.Contains(t, body, "seclog_index_vectors 42")
	})
}
