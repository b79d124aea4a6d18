package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tripgazer/internal/api/geocoder"
	"github.com/langchou/tripgazer/internal/models"
	"github.com/langchou/tripgazer/internal/spatial"
	"github.com/langchou/tripgazer/internal/state"
	"github.com/langchou/tripgazer/internal/tripview"
	"github.com/langchou/tripgazer/internal/units"
	"github.com/langchou/tripgazer/internal/viewstate"
	"github.com/langchou/tripgazer/pkg/ws"
)

func f(v float64) *float64 { return &v }

func ptr[T any](v T) *T { return &v }

var base = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type fakeTrips struct {
	mu          sync.Mutex
	trips       []*models.Trip
	buckets     []*models.PeriodBucket
	since       []*time.Time
	summaryDays []int
	err         error
	beforeList  func()
}

func (s *fakeTrips) ListByVIN(_ context.Context, vin string, since *time.Time) ([]*models.Trip, error) {
	s.mu.Lock()
	s.since = append(s.since, since)
	hook := s.beforeList
	s.beforeList = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.Trip
	for _, t := range s.trips {
		if t.VIN == vin {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTrips) DailySummary(_ context.Context, _ string, days int) ([]*models.PeriodBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaryDays = append(s.summaryDays, days)
	return s.buckets, nil
}

type fakeVehicles []*models.Vehicle

func (v fakeVehicles) List(context.Context) ([]*models.Vehicle, error) { return v, nil }

type sent struct {
	vin     string
	msgType string
	data    any
}

type fakeHub struct {
	mu       sync.Mutex
	messages []sent
}

func (h *fakeHub) BroadcastMessage(msgType string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, sent{msgType: msgType, data: data})
}

func (h *fakeHub) BroadcastToVehicle(vin, msgType string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, sent{vin: vin, msgType: msgType, data: data})
}

func (h *fakeHub) ofType(msgType string) []sent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []sent
	for _, m := range h.messages {
		if m.msgType == msgType {
			out = append(out, m)
		}
	}
	return out
}

func newTripService(trips *fakeTrips, vehicles fakeVehicles, opts ...viewstate.Option) (*TripService, *fakeHub) {
	hub := &fakeHub{}
	views := viewstate.NewManager(viewstate.NewMemoryStore(), zap.NewNop(), opts...)
	svc := NewTripService(zap.NewNop(), trips, vehicles, views, hub)
	svc.now = func() time.Time { return base }
	return svc, hub
}

func sampleTrips() []*models.Trip {
	return []*models.Trip{
		{ID: 1, VIN: "A", StartTime: base.AddDate(0, 0, -1), DistanceKm: f(100), FuelConsumptionL100Km: f(5), Countries: []string{"FR"}},
		{ID: 2, VIN: "A", StartTime: base.AddDate(0, 0, -2), DistanceKm: f(50), FuelConsumptionL100Km: f(6), Countries: []string{"DE"}},
		{ID: 3, VIN: "B", StartTime: base.AddDate(0, 0, -3), DistanceKm: f(10)},
	}
}

func TestViewPersistsStateAndBroadcasts(t *testing.T) {
	trips := &fakeTrips{trips: sampleTrips()}
	svc, hub := newTripService(trips, nil)
	ctx := context.Background()

	res, err := svc.View(ctx, "A", viewstate.Patch{
		SortKey:       ptr("distance_km"),
		SortDirection: ptr(tripview.Asc),
		Country:       ptr("FR"),
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].Trip.ID != 1 {
		t.Fatalf("rows = %+v", res.Rows)
	}

	saved := svc.LoadState(ctx, "A")
	if saved.SortKey != "distance_km" || saved.SortDirection != tripview.Asc || saved.Country != "FR" {
		t.Errorf("saved state = %+v", saved)
	}
	if other := svc.LoadState(ctx, "B"); other.Country != tripview.CountryAll {
		t.Errorf("state leaked across vehicles: %+v", other)
	}

	updates := hub.ofType(ws.MsgTypeViewUpdate)
	if len(updates) != 1 || updates[0].vin != "A" {
		t.Fatalf("view updates = %+v", updates)
	}
	if u := updates[0].data.(ViewUpdate); u.RowCount != 1 || u.Status != tripview.StatusOK {
		t.Errorf("update = %+v", u)
	}
	if got := svc.Sessions().GetOrCreate("A").CurrentState(); got != state.StateReady {
		t.Errorf("session state = %s", got)
	}
	if len(hub.ofType(ws.MsgTypeSessionState)) == 0 {
		t.Error("expected session state broadcasts")
	}
}

func TestViewNoMatch(t *testing.T) {
	svc, _ := newTripService(&fakeTrips{trips: sampleTrips()}, nil)
	res, err := svc.View(context.Background(), "A", viewstate.Patch{Country: ptr("IT")})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if res.Status != tripview.StatusNoMatch || res.Totals != nil {
		t.Errorf("result = %+v", res)
	}
	if got := svc.Sessions().GetOrCreate("A").CurrentState(); got != state.StateNoMatch {
		t.Errorf("session state = %s", got)
	}
}

func TestSupersededViewIsStale(t *testing.T) {
	trips := &fakeTrips{trips: sampleTrips()}
	svc, hub := newTripService(trips, nil)
	ctx := context.Background()

	var newer *tripview.Result
	var newerErr error
	trips.beforeList = func() {
		newer, newerErr = svc.View(ctx, "A", viewstate.Patch{SortKey: ptr("distance_km")})
	}

	_, err := svc.View(ctx, "A", viewstate.Patch{Country: ptr("DE")})
	if !errors.Is(err, state.ErrStaleView) {
		t.Fatalf("err = %v, want ErrStaleView", err)
	}
	if newerErr != nil || newer == nil || len(newer.Rows) != 2 {
		t.Fatalf("newer result = %+v, %v", newer, newerErr)
	}
	if got := len(hub.ofType(ws.MsgTypeViewUpdate)); got != 1 {
		t.Errorf("view updates = %d, want only the newer one", got)
	}
}

func TestViewLoadErrorFailsSession(t *testing.T) {
	trips := &fakeTrips{err: errors.New("db down")}
	svc, _ := newTripService(trips, nil)
	if _, err := svc.View(context.Background(), "A", viewstate.Patch{}); err == nil {
		t.Fatal("expected error")
	}
	if got := svc.Sessions().GetOrCreate("A").CurrentState(); got != state.StateIdle {
		t.Errorf("session state = %s", got)
	}
}

func TestLineChartLoadsDailySummary(t *testing.T) {
	trips := &fakeTrips{
		trips:   sampleTrips(),
		buckets: []*models.PeriodBucket{{Date: "2024-05-31", DistanceKm: f(100)}, {Date: "2024-06-01"}},
	}
	svc, _ := newTripService(trips, nil)

	res, err := svc.View(context.Background(), "A", viewstate.Patch{
		Period:      ptr("7d"),
		ChartMode:   ptr(tripview.ChartLine),
		ChartMetric: ptr("distance_km"),
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(trips.summaryDays) != 1 || trips.summaryDays[0] != 7 {
		t.Errorf("summary days = %v", trips.summaryDays)
	}
	if trips.since[0] == nil || !trips.since[0].Equal(base.AddDate(0, 0, -7)) {
		t.Errorf("since = %v", trips.since[0])
	}
	if res.Chart == nil || res.Chart.Line == nil || len(res.Chart.Line.Labels) != 2 {
		t.Fatalf("chart = %+v", res.Chart)
	}
}

func TestLineChartSummaryDaysCapped(t *testing.T) {
	trips := &fakeTrips{trips: sampleTrips()}
	svc, _ := newTripService(trips, nil)

	_, err := svc.View(context.Background(), "A", viewstate.Patch{
		Period:      ptr("100000d"),
		ChartMode:   ptr(tripview.ChartLine),
		ChartMetric: ptr("distance_km"),
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(trips.summaryDays) != 1 || trips.summaryDays[0] != maxSummaryDays {
		t.Errorf("summary days = %v, want [%d]", trips.summaryDays, maxSummaryDays)
	}
}

func TestHistogramSkipsDailySummary(t *testing.T) {
	trips := &fakeTrips{trips: sampleTrips()}
	svc, _ := newTripService(trips, nil)
	_, err := svc.View(context.Background(), "A", viewstate.Patch{
		ChartMode:   ptr(tripview.ChartHistogram),
		ChartMetric: ptr("distance_km"),
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(trips.summaryDays) != 0 {
		t.Errorf("daily summary should not load for histogram")
	}
}

func TestInvalidPeriodRejected(t *testing.T) {
	trips := &fakeTrips{trips: sampleTrips()}
	svc, _ := newTripService(trips, nil)
	ctx := context.Background()

	if _, err := svc.View(ctx, "A", viewstate.Patch{Period: ptr("fortnight")}); !errors.Is(err, tripview.ErrInvalidConfig) {
		t.Errorf("View err = %v", err)
	}
	if _, err := svc.SaveState(ctx, "A", viewstate.Patch{SortDirection: ptr(tripview.Direction("sideways"))}); !errors.Is(err, tripview.ErrInvalidConfig) {
		t.Errorf("SaveState err = %v", err)
	}
	if len(trips.since) != 0 {
		t.Error("invalid request should not load trips")
	}
	if got := svc.LoadState(ctx, "A").Period; got != "all" {
		t.Errorf("period persisted = %q", got)
	}
}

func TestViewRecoversFromInvalidSavedState(t *testing.T) {
	store := viewstate.NewMemoryStore()
	ctx := context.Background()
	if err := store.SetItem(ctx, viewstate.VehicleKey("A"), `{"period":"fortnight","sort_direction":"sideways"}`); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	views := viewstate.NewManager(store, zap.NewNop())
	svc := NewTripService(zap.NewNop(), &fakeTrips{trips: sampleTrips()}, nil, views, nil)
	svc.now = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		res, err := svc.View(ctx, "A", viewstate.Patch{})
		if err != nil {
			t.Fatalf("View #%d: %v", i, err)
		}
		if len(res.Rows) != 2 {
			t.Errorf("View #%d rows = %d", i, len(res.Rows))
		}
	}
	raw, ok, _ := store.GetItem(ctx, viewstate.VehicleKey("A"))
	if !ok || strings.Contains(raw, "fortnight") {
		t.Errorf("stored state = %q, %v", raw, ok)
	}
}

func TestVehicleSummariesUseSavedUnits(t *testing.T) {
	vehicles := fakeVehicles{{VIN: "A", Name: "Alpha"}, {VIN: "B", Name: "Beta"}}
	svc, _ := newTripService(&fakeTrips{trips: sampleTrips()}, vehicles, viewstate.WithUnitSystem(units.Metric))
	ctx := context.Background()

	if _, err := svc.SaveState(ctx, "B", viewstate.Patch{UnitSystem: ptr(units.ImperialUS)}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	summaries, err := svc.VehicleSummaries(ctx)
	if err != nil {
		t.Fatalf("VehicleSummaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d", len(summaries))
	}
	a, b := summaries[0].Totals, summaries[1].Totals
	if a.TripCount != 2 || a.DistanceUnit != "km" || *a.Distance != 150 {
		t.Errorf("A totals = %+v", a)
	}
	if b.TripCount != 1 || b.DistanceUnit != "mi" {
		t.Errorf("B totals = %+v", b)
	}
}

func TestClearFiltersResetsSpatial(t *testing.T) {
	svc, _ := newTripService(&fakeTrips{}, nil)
	ctx := context.Background()
	area := spatial.Area(spatial.Bounds{South: 48, West: 2, North: 49, East: 3})

	if _, err := svc.SaveState(ctx, "A", viewstate.Patch{Spatial: &area}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if !svc.LoadState(ctx, "A").Spatial.IsActive() {
		t.Fatal("spatial filter not saved")
	}
	vs, err := svc.ClearFilters(ctx, "A")
	if err != nil {
		t.Fatalf("ClearFilters: %v", err)
	}
	if vs.Spatial.IsActive() || svc.LoadState(ctx, "A").Spatial.IsActive() {
		t.Error("spatial filter still active")
	}
}

type fakeGeocodeStore struct {
	mu      sync.Mutex
	pending []*models.Trip
	updates map[int64][2]string
	country map[int64][]string
}

func (s *fakeGeocodeStore) ListPendingGeocode(_ context.Context, limit int) ([]*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit < len(s.pending) {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeGeocodeStore) UpdateAddresses(_ context.Context, id int64, start, end string, countries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		s.updates = map[int64][2]string{}
		s.country = map[int64][]string{}
	}
	s.updates[id] = [2]string{start, end}
	s.country[id] = countries
	retry := start == models.GeocodingPending || end == models.GeocodingPending
	var kept []*models.Trip
	for _, t := range s.pending {
		if t.ID != id || retry {
			kept = append(kept, t)
		}
	}
	s.pending = kept
	return nil
}

func (s *fakeGeocodeStore) GeocodeStatus(context.Context) (*models.GeocodeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.GeocodeStatus{Pending: int64(len(s.pending)), Total: 10}, nil
}

type fakeGeocoder map[float64]*geocoder.Address

func (g fakeGeocoder) ReverseGeocode(_ context.Context, lat, _ float64) (*geocoder.Address, error) {
	if addr, ok := g[lat]; ok {
		return addr, nil
	}
	return nil, errors.New("no result")
}

func TestGeocodeRunOnce(t *testing.T) {
	store := &fakeGeocodeStore{pending: []*models.Trip{
		{ID: 1, StartLatitude: f(48.8), StartLongitude: f(2.3), EndLatitude: f(52.5), EndLongitude: f(13.4)},
		{ID: 2, StartLatitude: f(48.8), StartLongitude: f(2.3), EndLatitude: f(1), EndLongitude: f(1)},
		{ID: 3},
		{ID: 4, StartLatitude: f(10), StartLongitude: f(10), EndLatitude: f(52.5), EndLongitude: f(13.4)},
	}}
	gc := fakeGeocoder{
		48.8: {FormattedAddress: "Paris", Country: "France"},
		52.5: {FormattedAddress: "Berlin", Country: "Germany"},
		10:   nil,
	}
	hub := &fakeHub{}
	svc := NewGeocodeService(zap.NewNop(), store, gc, hub, GeocodeOptions{Enabled: true, BatchSize: 10})

	n, err := svc.RunOnce(context.Background())
	if err != nil || n != 4 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	if got := store.updates[1]; got[0] != "Paris" || got[1] != "Berlin" {
		t.Errorf("trip 1 = %v", got)
	}
	if got := store.country[1]; len(got) != 2 || got[0] != "France" || got[1] != "Germany" {
		t.Errorf("trip 1 countries = %v", got)
	}
	if got := store.updates[2]; got[0] != "Paris" || got[1] != models.GeocodingPending {
		t.Errorf("trip 2 = %v, want failed end left pending", got)
	}
	if got := store.updates[3]; got[0] != UnknownAddress || got[1] != UnknownAddress {
		t.Errorf("trip 3 = %v", got)
	}
	if got := store.updates[4]; got[0] != UnknownAddress || got[1] != "Berlin" {
		t.Errorf("trip 4 = %v, want empty lookup stamped Unknown", got)
	}

	statuses := hub.ofType(ws.MsgTypeGeocodeStatus)
	if len(statuses) != 4 {
		t.Fatalf("status broadcasts = %d", len(statuses))
	}
	if last := statuses[3].data.(*models.GeocodeStatus); last.Pending != 1 {
		t.Errorf("last status = %+v", last)
	}

	gc[1] = &geocoder.Address{FormattedAddress: "Gulf of Guinea"}
	if n, err := svc.RunOnce(context.Background()); err != nil || n != 1 {
		t.Fatalf("retry RunOnce = %d, %v", n, err)
	}
	if got := store.updates[2]; got[1] != "Gulf of Guinea" {
		t.Errorf("trip 2 after retry = %v", got)
	}
	if got := store.country[2]; len(got) != 1 || got[0] != "France" {
		t.Errorf("trip 2 countries = %v", got)
	}
}

func TestGeocodeDisabledWritesCoordinates(t *testing.T) {
	store := &fakeGeocodeStore{pending: []*models.Trip{
		{ID: 7, StartLatitude: f(48.5), StartLongitude: f(2.25), EndLatitude: f(49), EndLongitude: f(3)},
	}}
	svc := NewGeocodeService(zap.NewNop(), store, fakeGeocoder{}, nil, GeocodeOptions{})

	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := store.updates[7]; got[0] != "48.5, 2.25" || got[1] != "49, 3" {
		t.Errorf("addresses = %v", got)
	}
	if store.country[7] != nil {
		t.Errorf("countries = %v", store.country[7])
	}
}

func TestGeocodeStartStopAndTrigger(t *testing.T) {
	store := &fakeGeocodeStore{}
	svc := NewGeocodeService(zap.NewNop(), store, fakeGeocoder{}, nil, GeocodeOptions{Enabled: true, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	svc.Start(ctx)

	store.mu.Lock()
	store.pending = []*models.Trip{{ID: 9}}
	store.mu.Unlock()

	svc.Trigger()
	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		done := len(store.pending) == 0
		store.mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("triggered backfill did not run")
		case <-time.After(10 * time.Millisecond):
			svc.Trigger()
		}
	}

	svc.Stop()
	svc.Stop()
}
