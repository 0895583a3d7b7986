package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/TrackGate/internal/broker/messages"
	"github.com/BearBump/TrackGate/internal/cache"
	"github.com/BearBump/TrackGate/internal/carriers"
	"github.com/BearBump/TrackGate/internal/classify"
	"github.com/BearBump/TrackGate/internal/models"
	"github.com/BearBump/TrackGate/internal/storage/pgrecords"
	"github.com/pkg/errors"
)

type Repository interface {
	LookupRecord(ctx context.Context, code string) (models.OrderRecord, error)
	UpsertRecord(ctx context.Context, rec models.OrderRecord) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// ErrEmptyCode — пустой код после очистки; до хранилища и перевозчиков
// не доходим.
var ErrEmptyCode = errors.New("missing tracking code")

// LookupError — хранилище записей упало (это не "кода нет": промах
// превращается в обычный InvalidCode-результат).
type LookupError struct {
	Err error
}

func (e *LookupError) Error() string { return "record lookup failed: " + e.Err.Error() }
func (e *LookupError) Unwrap() error { return e.Err }

// TrackError — упал сам поход к перевозчику (auth или tracking вызов).
type TrackError struct {
	Carrier models.Carrier
	Err     error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("track via %s failed: %s", e.Carrier, e.Err.Error())
}
func (e *TrackError) Unwrap() error { return e.Err }

type Service struct {
	repo     Repository
	adapters map[models.Carrier]carriers.Adapter

	cache    cache.BytesCache
	cacheTTL time.Duration

	rl            RateLimiter
	ratePerMinute int64

	producer Producer
	topic    string

	now func() time.Time
}

func New(repo Repository, adapters ...carriers.Adapter) *Service {
	m := make(map[models.Carrier]carriers.Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Carrier()] = a
	}
	return &Service{
		repo:     repo,
		adapters: m,
		now:      time.Now,
	}
}

// WithCache включает best-effort кэш нормализованных результатов.
// Sentinel-результаты (InvalidCode/InProduction) не кэшируются.
func (s *Service) WithCache(c cache.BytesCache, ttl time.Duration) *Service {
	if c != nil && ttl > 0 {
		s.cache = c
		s.cacheTTL = ttl
	}
	return s
}

func (s *Service) WithRateLimiter(rl RateLimiter, perMinute int64) *Service {
	if rl != nil && perMinute > 0 {
		s.rl = rl
		s.ratePerMinute = perMinute
	}
	return s
}

func (s *Service) WithProducer(p Producer, topic string) *Service {
	if p != nil && topic != "" {
		s.producer = p
		s.topic = topic
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// CleanCode снимает мусор, с которым код приезжает из форм и ссылок:
// percent-encoding, обёрнутые кавычки, "+" вместо пробелов, пробелы по краям.
func CleanCode(raw string) string {
	s := raw
	if dec, err := url.QueryUnescape(s); err == nil {
		s = dec
	}
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return strings.TrimSpace(s)
}

// Resolve ведёт один запрос через всю цепочку: очистка кода -> lookup ->
// короткие замыкания (нет кода / ещё в производстве) -> выбор перевозчика ->
// адаптер. Sentinel-исходы — успешные результаты, не ошибки.
func (s *Service) Resolve(ctx context.Context, rawCode string) (models.TrackingResult, error) {
	code := CleanCode(rawCode)
	if code == "" {
		return models.TrackingResult{}, ErrEmptyCode
	}

	rec, err := s.repo.LookupRecord(ctx, code)
	if errors.Is(err, pgrecords.ErrRecordNotFound) {
		slog.Info("unknown tracking code", "code", code)
		return models.InvalidCodeResult(), nil
	}
	if err != nil {
		return models.TrackingResult{}, &LookupError{Err: err}
	}

	if rec.NotShipped() {
		return models.InProductionResult(), nil
	}

	carrier := s.resolveCarrier(rec)

	if s.cache != nil {
		if res, ok := s.cachedResult(ctx, carrier, rec.TrackingNumber); ok {
			return res, nil
		}
	}

	if err := s.allowCarrierCall(ctx, carrier); err != nil {
		return models.TrackingResult{}, err
	}

	adapter, ok := s.adapters[carrier]
	if !ok {
		return models.TrackingResult{}, errors.Errorf("no adapter registered for carrier %s", carrier)
	}

	res, err := adapter.Track(ctx, rec.TrackingNumber)
	if err != nil {
		return models.TrackingResult{}, &TrackError{Carrier: carrier, Err: err}
	}

	s.storeResult(ctx, carrier, rec.TrackingNumber, res)
	s.publishResolved(ctx, code, carrier, res)

	return res, nil
}

// resolveCarrier: явный перевозчик как есть; AUTO (или пустой) — через
// классификатор; неизвестный формат и legacy-мусор в колонке carrier
// откатываются к UPS (явный fallback, исторически дефолтный перевозчик).
func (s *Service) resolveCarrier(rec models.OrderRecord) models.Carrier {
	switch c := models.ParseCarrier(rec.CarrierCode); c {
	case models.CarrierAuto:
		if detected := classify.Detect(rec.TrackingNumber); detected != models.CarrierUnknown {
			return detected
		}
		return models.CarrierUPS
	case models.CarrierUnknown:
		return models.CarrierUPS
	default:
		return c
	}
}

func (s *Service) cachedResult(ctx context.Context, carrier models.Carrier, trackNumber string) (models.TrackingResult, bool) {
	b, ok, err := s.cache.Get(ctx, resolveKey(carrier, trackNumber))
	if err != nil || !ok {
		return models.TrackingResult{}, false
	}
	var res models.TrackingResult
	if json.Unmarshal(b, &res) != nil {
		return models.TrackingResult{}, false
	}
	return res, true
}

func (s *Service) storeResult(ctx context.Context, carrier models.Carrier, trackNumber string, res models.TrackingResult) {
	if s.cache == nil {
		return
	}
	b, _ := json.Marshal(res)
	if err := s.cache.Set(ctx, resolveKey(carrier, trackNumber), b, s.cacheTTL); err != nil {
		slog.Warn("cache result", "error", err.Error())
	}
}

func (s *Service) allowCarrierCall(ctx context.Context, carrier models.Carrier) error {
	if s.rl == nil {
		return nil
	}
	minuteKey := fmt.Sprintf("rl:carrier:%s:%s", carrier, s.now().UTC().Format("200601021504"))
	allowed, n, err := s.rl.Allow(ctx, minuteKey, s.ratePerMinute, 70*time.Second)
	if err != nil {
		// Лимитер best-effort: редис лёг — пропускаем запрос, а не роняем его.
		slog.Warn("rate limiter unavailable", "error", err.Error())
		return nil
	}
	if !allowed {
		slog.Warn("carrier rate limit exceeded", "carrier", carrier, "count", n)
		return errors.Errorf("rate limit exceeded for carrier %s", carrier)
	}
	return nil
}

func (s *Service) publishResolved(ctx context.Context, code string, carrier models.Carrier, res models.TrackingResult) {
	if s.producer == nil {
		return
	}
	b, _ := json.Marshal(messages.ResolutionCompleted{
		Code:       code,
		Carrier:    string(carrier),
		Status:     res.Status,
		ResolvedAt: s.now().UTC(),
	})
	if err := s.producer.Publish(ctx, s.topic, []byte(code), b); err != nil {
		slog.Warn("publish resolution", "code", code, "error", err.Error())
	}
}

// ApplyRecordUpdate применяет сообщение фида заказов: upsert записи и сброс
// кэша для нового и прежнего трек-номеров.
func (s *Service) ApplyRecordUpdate(ctx context.Context, msg messages.RecordUpdated) error {
	if msg.Code == "" {
		return errors.New("code is required")
	}

	err := s.repo.UpsertRecord(ctx, models.OrderRecord{
		Code:           msg.Code,
		TrackingNumber: msg.TrackingNumber,
		CarrierCode:    msg.Carrier,
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		for _, n := range []string{msg.TrackingNumber, msg.PreviousTrackingNumber} {
			if n == "" {
				continue
			}
			for carrier := range s.adapters {
				if err := s.cache.Del(ctx, resolveKey(carrier, n)); err != nil {
					slog.Warn("invalidate result cache", "track_number", n, "error", err.Error())
				}
			}
		}
	}
	return nil
}

func resolveKey(carrier models.Carrier, trackNumber string) string {
	return fmt.Sprintf("resolve:%s:%s", carrier, trackNumber)
}
