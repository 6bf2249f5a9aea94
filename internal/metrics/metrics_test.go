package metrics_test

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosub/vpadmin/internal/metrics"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.NavSynced(true)
	m.RegistryWritten()
	m.FilesRewritten("rename", 3)
	m.Request("GET /api/list", 200)
	m.Scanned(4)
	assert.Nil(t, m.Registry())
}

func TestCountersExported(t *testing.T) {
	m := metrics.New()
	m.NavSynced(true)
	m.NavSynced(false)
	m.RegistryWritten()
	m.FilesRewritten("remove", 2)

	n, err := testutil.GatherAndCount(m.Registry(), "vpadmin_nav_syncs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `vpadmin_categories_rewritten_files_total{mode="remove"} 2`)
	assert.Contains(t, w.Body.String(), "vpadmin_registry_writes_total 1")
}
