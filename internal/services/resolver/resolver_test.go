package resolver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/TrackGate/internal/broker/messages"
	"github.com/BearBump/TrackGate/internal/carriers"
	"github.com/BearBump/TrackGate/internal/models"
	"github.com/BearBump/TrackGate/internal/storage/pgrecords"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	rec       models.OrderRecord
	lookupErr error
	lookupIn  string

	upserted  []models.OrderRecord
	upsertErr error
}

func (f *fakeRepo) LookupRecord(ctx context.Context, code string) (models.OrderRecord, error) {
	f.lookupIn = code
	return f.rec, f.lookupErr
}

func (f *fakeRepo) UpsertRecord(ctx context.Context, rec models.OrderRecord) error {
	f.upserted = append(f.upserted, rec)
	return f.upsertErr
}

type fakeAdapter struct {
	carrier models.Carrier
	res     models.TrackingResult
	err     error
	calls   int
	lastNum string
}

func (a *fakeAdapter) Carrier() models.Carrier { return a.carrier }

func (a *fakeAdapter) Track(ctx context.Context, trackNumber string) (models.TrackingResult, error) {
	a.calls++
	a.lastNum = trackNumber
	return a.res, a.err
}

type fakeCache struct {
	m       map[string][]byte
	deleted []string
}

func newFakeCache() *fakeCache { return &fakeCache{m: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.deleted = append(c.deleted, key)
	delete(c.m, key)
	return nil
}

type fakeRL struct {
	allowed bool
	err     error
}

func (rl *fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return rl.allowed, 1, rl.err
}

type fakeProducer struct {
	topic string
	key   []byte
	value []byte
	calls int
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.calls++
	p.topic, p.key, p.value = topic, key, value
	return nil
}

func upsAdapter() *fakeAdapter {
	return &fakeAdapter{
		carrier: models.CarrierUPS,
		res:     models.TrackingResult{Status: "In Transit", EstimatedDelivery: "2024-01-15"},
	}
}

func fedexAdapter() *fakeAdapter {
	return &fakeAdapter{
		carrier: models.CarrierFedEx,
		res:     models.TrackingResult{Status: "On the way", EstimatedDelivery: "Not available"},
	}
}

func TestCleanCode(t *testing.T) {
	require.Equal(t, "MY CODE", CleanCode(`%22MY+CODE%22`))
	require.Equal(t, "MY CODE", CleanCode(`"MY CODE"`))
	require.Equal(t, "my-code", CleanCode("  my-code  "))
	require.Equal(t, "ORDER 42", CleanCode("ORDER+42"))
	require.Equal(t, "", CleanCode(`""`))
}

func TestResolve_EmptyCode(t *testing.T) {
	s := New(&fakeRepo{}, upsAdapter())
	_, err := s.Resolve(context.Background(), `  ""  `)
	require.ErrorIs(t, err, ErrEmptyCode)
}

func TestResolve_UnknownCodeIsInvalidResult(t *testing.T) {
	ups := upsAdapter()
	s := New(&fakeRepo{lookupErr: pgrecords.ErrRecordNotFound}, ups)

	res, err := s.Resolve(context.Background(), "NOPE")
	require.NoError(t, err)
	require.Equal(t, models.InvalidCodeResult(), res)
	require.Zero(t, ups.calls) // до перевозчика не дошли
}

func TestResolve_NASentinelIsInProduction(t *testing.T) {
	for _, na := range []string{"NA", "na", "Na", ""} {
		ups := upsAdapter()
		r := &fakeRepo{rec: models.OrderRecord{Code: "C1", TrackingNumber: na, CarrierCode: "UPS"}}
		s := New(r, ups)

		res, err := s.Resolve(context.Background(), "C1")
		require.NoError(t, err)
		require.Equal(t, models.InProductionResult(), res)
		require.Zero(t, ups.calls)
	}
}

func TestResolve_LookupFailureIsLookupError(t *testing.T) {
	boom := errors.New("pg down")
	s := New(&fakeRepo{lookupErr: boom}, upsAdapter())

	_, err := s.Resolve(context.Background(), "C1")
	var le *LookupError
	require.ErrorAs(t, err, &le)
	require.ErrorIs(t, err, boom)
}

func TestResolve_AutoDispatchesByClassification(t *testing.T) {
	ups, fdx := upsAdapter(), fedexAdapter()
	r := &fakeRepo{rec: models.OrderRecord{Code: "C1", TrackingNumber: "123456789012345", CarrierCode: "AUTO"}}
	s := New(r, ups, fdx)

	res, err := s.Resolve(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, "On the way", res.Status)
	require.Zero(t, ups.calls)
	require.Equal(t, 1, fdx.calls)
	require.Equal(t, "123456789012345", fdx.lastNum)
}

func TestResolve_AutoUnknownFormatDefaultsToUPS(t *testing.T) {
	ups, fdx := upsAdapter(), fedexAdapter()
	r := &fakeRepo{rec: models.OrderRecord{Code: "C1", TrackingNumber: "WEIRD-FORMAT", CarrierCode: ""}}
	s := New(r, ups, fdx)

	_, err := s.Resolve(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, 1, ups.calls)
	require.Zero(t, fdx.calls)
}

func TestResolve_StoredCarrierWinsOverFormat(t *testing.T) {
	ups, fdx := upsAdapter(), fedexAdapter()
	// Формат номера фёдексовский, но в записи явно UPS.
	r := &fakeRepo{rec: models.OrderRecord{Code: "C1", TrackingNumber: "123456789012345", CarrierCode: "ups"}}
	s := New(r, ups, fdx)

	_, err := s.Resolve(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, 1, ups.calls)
	require.Zero(t, fdx.calls)
}

func TestResolve_JunkCarrierFallsBackToUPS(t *testing.T) {
	ups, fdx := upsAdapter(), fedexAdapter()
	r := &fakeRepo{rec: models.OrderRecord{Code: "C1", TrackingNumber: "123456789012345", CarrierCode: "DHL"}}
	s := New(r, ups, fdx)

	_, err := s.Resolve(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, 1, ups.calls)
}

func TestResolve_AdapterErrorIsTrackError(t *testing.T) {
	ce := &carriers.CarrierError{Carrier: models.CarrierUPS, StatusCode: 503, Body: "unavailable"}
	ups := upsAdapter()
	ups.err = ce
	r := &fakeRepo{rec: models.OrderRecord{Code: "C1", TrackingNumber: "1Z1", CarrierCode: "UPS"}}
	s := New(r, ups)

	_, err := s.Resolve(context.Background(), "C1")
	var te *TrackError
	require.ErrorAs(t, err, &te)
	require.Equal(t, models.CarrierUPS, te.Carrier)

	var gotCE *carriers.CarrierError
	require.ErrorAs(t, err, &gotCE)
	require.Equal(t, 503, gotCE.StatusCode)
}

func TestResolve_CacheHitSkipsAdapter(t *testing.T) {
	ups := upsAdapter()
	r := &fakeRepo{rec: models.OrderRecord{Code: "C1", TrackingNumber: "1Z1", CarrierCode: "UPS"}}
	c := newFakeCache()
	s := New(r, ups).WithCache(c, 10*time.Minute)

	res1, err := s.Resolve(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, 1, ups.calls)

	res2, err := s.Resolve(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, 1, ups.calls) // второй раз из кэша
	require.Equal(t, res1, res2)
}

func TestResolve_SentinelResultsNotCached(t *testing.T) {
	r := &fakeRepo{rec: models.OrderRecord{Code: "C1", TrackingNumber: "NA"}}
	c := newFakeCache()
	s := New(r, upsAdapter()).WithCache(c, 10*time.Minute)

	_, err := s.Resolve(context.Background(), "C1")
	require.NoError(t, err)
	require.Empty(t, c.m)
}

func TestResolve_RateLimitDenies(t *testing.T) {
	ups := upsAdapter()
	r := &fakeRepo{rec: models.OrderRecord{Code: "C1", TrackingNumber: "1Z1", CarrierCode: "UPS"}}
	s := New(r, ups).WithRateLimiter(&fakeRL{allowed: false}, 10)

	_, err := s.Resolve(context.Background(), "C1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limit")
	require.Zero(t, ups.calls)
}

func TestResolve_RateLimiterOutageIsIgnored(t *testing.T) {
	ups := upsAdapter()
	r := &fakeRepo{rec: models.OrderRecord{Code: "C1", TrackingNumber: "1Z1", CarrierCode: "UPS"}}
	s := New(r, ups).WithRateLimiter(&fakeRL{err: errors.New("redis down")}, 10)

	_, err := s.Resolve(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, 1, ups.calls)
}

func TestResolve_PublishesResolutionEvent(t *testing.T) {
	ups := upsAdapter()
	r := &fakeRepo{rec: models.OrderRecord{Code: "C1", TrackingNumber: "1Z1", CarrierCode: "UPS"}}
	p := &fakeProducer{}
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	s := New(r, ups).WithProducer(p, "resolution.completed").WithClock(func() time.Time { return now })

	_, err := s.Resolve(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, 1, p.calls)
	require.Equal(t, "resolution.completed", p.topic)
	require.Equal(t, []byte("C1"), p.key)

	var msg messages.ResolutionCompleted
	require.NoError(t, json.Unmarshal(p.value, &msg))
	require.Equal(t, "C1", msg.Code)
	require.Equal(t, "UPS", msg.Carrier)
	require.Equal(t, "In Transit", msg.Status)
	require.Equal(t, now, msg.ResolvedAt)
}

func TestResolve_CleansCodeBeforeLookup(t *testing.T) {
	r := &fakeRepo{lookupErr: pgrecords.ErrRecordNotFound}
	s := New(r, upsAdapter())

	_, err := s.Resolve(context.Background(), `%22MY+CODE%22`)
	require.NoError(t, err)
	require.Equal(t, "MY CODE", r.lookupIn)
}

func TestApplyRecordUpdate(t *testing.T) {
	r := &fakeRepo{}
	c := newFakeCache()
	c.m["resolve:UPS:OLD1"] = []byte(`{}`)
	s := New(r, upsAdapter(), fedexAdapter()).WithCache(c, time.Minute)

	err := s.ApplyRecordUpdate(context.Background(), messages.RecordUpdated{
		Code:                   "C1",
		TrackingNumber:         "NEW1",
		Carrier:                "UPS",
		PreviousTrackingNumber: "OLD1",
	})
	require.NoError(t, err)
	require.Len(t, r.upserted, 1)
	require.Equal(t, "NEW1", r.upserted[0].TrackingNumber)

	// Сброшены оба номера по обоим перевозчикам.
	require.Len(t, c.deleted, 4)
	require.NotContains(t, c.m, "resolve:UPS:OLD1")
}

func TestApplyRecordUpdate_RequiresCode(t *testing.T) {
	s := New(&fakeRepo{}, upsAdapter())
	require.Error(t, s.ApplyRecordUpdate(context.Background(), messages.RecordUpdated{}))
}
