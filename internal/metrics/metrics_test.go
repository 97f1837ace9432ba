package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStep(t *testing.T) {
	before := promtest.ToFloat64(stepRuns.WithLabelValues("cut", "success"))
	RecordStep("cut", "success", 0)
	RecordStep("cut", "success", 2*time.Second)
	assert.Equal(t, before+2, promtest.ToFloat64(stepRuns.WithLabelValues("cut", "success")))
}

func TestRecordCollisionsIgnoresZero(t *testing.T) {
	before := promtest.ToFloat64(collisions)
	RecordCollisions(0)
	RecordCollisions(3)
	assert.Equal(t, before+3, promtest.ToFloat64(collisions))
}

func TestSetRoutedSelectors(t *testing.T) {
	SetRoutedSelectors(42)
	assert.Equal(t, float64(42), promtest.ToFloat64(routedSelectors))
}

func TestPush(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	RecordWarning("verify")
	RecordRun("Complete")
	require.NoError(t, Push(context.Background(), server.URL, "facetctl", map[string]string{"network": "local"}))
	assert.True(t, strings.HasPrefix(path, "/metrics/job/facetctl"), path)
	assert.Contains(t, path, "network/local")
}

func TestPush_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := Push(context.Background(), server.URL, "facetctl", nil)
	assert.ErrorContains(t, err, "push metrics")
}
