package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordView(t *testing.T) {
	before := testutil.ToFloat64(ViewRequests.WithLabelValues("no_match"))
	skippedBefore := testutil.ToFloat64(ViewSkippedTrips)

	RecordView("no_match", 3*time.Millisecond, 2)
	RecordView("no_match", time.Millisecond, 0)

	if got := testutil.ToFloat64(ViewRequests.WithLabelValues("no_match")) - before; got != 2 {
		t.Errorf("no_match views = %v, want 2", got)
	}
	if got := testutil.ToFloat64(ViewSkippedTrips) - skippedBefore; got != 2 {
		t.Errorf("skipped trips = %v, want 2", got)
	}
}

func TestRecordStaleView(t *testing.T) {
	before := testutil.ToFloat64(ViewStaleResults)
	RecordStaleView()
	if got := testutil.ToFloat64(ViewStaleResults) - before; got != 1 {
		t.Errorf("stale results = %v, want 1", got)
	}
}

func TestRecordCorruptViewState(t *testing.T) {
	before := testutil.ToFloat64(ViewStateCorrupt)
	RecordCorruptViewState()
	if got := testutil.ToFloat64(ViewStateCorrupt) - before; got != 1 {
		t.Errorf("corrupt view state = %v, want 1", got)
	}
}

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("list_trips"))

	RecordDBQuery("list_trips", 10*time.Millisecond, nil)
	RecordDBQuery("list_trips", 10*time.Millisecond, errors.New("connection refused"))

	if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("list_trips")) - before; got != 1 {
		t.Errorf("query errors = %v, want 1", got)
	}
}

func TestRecordGeocode(t *testing.T) {
	ok := testutil.ToFloat64(GeocodeResolved.WithLabelValues("success"))
	failed := testutil.ToFloat64(GeocodeResolved.WithLabelValues("failure"))

	RecordGeocode(true)
	RecordGeocode(false)
	RecordGeocode(false)

	if got := testutil.ToFloat64(GeocodeResolved.WithLabelValues("success")) - ok; got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(GeocodeResolved.WithLabelValues("failure")) - failed; got != 2 {
		t.Errorf("failure = %v, want 2", got)
	}
}

func TestMetricsLint(t *testing.T) {
	RecordAPIRequest("GET", "/api/vehicles", "200", time.Millisecond)
	GeocodePending.Set(3)
	WSClients.Set(1)

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("GatherAndLint: %v", err)
	}
	for _, p := range problems {
		t.Errorf("metric %s: %s", p.Metric, p.Text)
	}
}
