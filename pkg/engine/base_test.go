package engine

import (
	"context"
	"testing"
	"time"

	"github.com/gridrank/gridrank/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, config Config) *BaseEngine {
	t.Helper()
	e := NewBaseEngine(config, nil)
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e
}

func TestStatusHealthyByDefault(t *testing.T) {
	e := newTestEngine(t, Config{EngineID: "test"})
	assert.Equal(t, StatusHealthy, e.Status())
	assert.True(t, e.CanMakeRequest())
}

func TestStatusDisabled(t *testing.T) {
	e := newTestEngine(t, Config{EngineID: "test"})
	e.SetDisabled(true)
	assert.Equal(t, StatusDisabled, e.Status())
	assert.False(t, e.CanMakeRequest())
}

func TestStatusThrottledAtHourlyCap(t *testing.T) {
	e := newTestEngine(t, Config{
		EngineID: "test",
		Throttle: ThrottleConfig{MaxPerHour: 2, MaxPerDay: 100},
	})
	e.recordSuccess()
	assert.Equal(t, StatusHealthy, e.Status())
	e.recordSuccess()
	assert.Equal(t, StatusThrottled, e.Status())
	assert.False(t, e.CanMakeRequest())
}

func TestHourlyWindowResets(t *testing.T) {
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, Config{
		EngineID: "test",
		Throttle: ThrottleConfig{MaxPerHour: 1},
	})
	e.now = func() time.Time { return current }
	e.hourWindowStart = current
	e.dayWindowStart = utcMidnight(current)

	e.recordSuccess()
	assert.Equal(t, StatusThrottled, e.Status())

	current = current.Add(61 * time.Minute)
	assert.Equal(t, StatusHealthy, e.Status())
}

func TestDailyWindowResetsAtUTCMidnight(t *testing.T) {
	current := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	e := newTestEngine(t, Config{
		EngineID: "test",
		Throttle: ThrottleConfig{MaxPerDay: 1},
	})
	e.now = func() time.Time { return current }
	e.hourWindowStart = current
	e.dayWindowStart = utcMidnight(current)

	e.recordSuccess()
	assert.Equal(t, StatusThrottled, e.Status())
	assert.Equal(t, 1, e.RequestsToday())

	current = current.Add(2 * time.Hour)
	assert.Equal(t, StatusHealthy, e.Status())
	assert.Equal(t, 0, e.RequestsToday())
}

func TestGraduatedCaptchaBlocks(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, Config{EngineID: "test"})
	e.now = func() time.Time { return current }

	e.recordCaptchaEvent()
	require.NotNil(t, e.blockedUntil)
	assert.Equal(t, current.Add(15*time.Minute), *e.blockedUntil)
	assert.Equal(t, StatusBlocked, e.Status())

	current = current.Add(20 * time.Minute)
	e.recordCaptchaEvent()
	assert.Equal(t, current.Add(2*time.Hour), *e.blockedUntil)

	current = current.Add(3 * time.Hour)
	e.recordCaptchaEvent()
	assert.Equal(t, current.Add(24*time.Hour), *e.blockedUntil)
}

func TestCaptchaCeilingFromConfig(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, Config{
		EngineID: "test",
		Throttle: ThrottleConfig{PauseOnCaptchaHours: 1},
	})
	e.now = func() time.Time { return current }

	e.recordCaptchaEvent()
	e.recordCaptchaEvent()
	require.NotNil(t, e.blockedUntil)
	assert.Equal(t, current.Add(time.Hour), *e.blockedUntil)
}

func TestCaptchaWindowSlides(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, Config{EngineID: "test"})
	e.now = func() time.Time { return current }

	e.recordCaptchaEvent()
	e.recordCaptchaEvent()

	// Both events fall out of the 24h window, so the next one counts as
	// the first and earns only the short block.
	current = current.Add(25 * time.Hour)
	e.recordCaptchaEvent()
	assert.Equal(t, current.Add(15*time.Minute), *e.blockedUntil)
}

func TestBlockExpiresBackToHealthy(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, Config{EngineID: "test"})
	e.now = func() time.Time { return current }

	e.recordCaptchaEvent()
	assert.Equal(t, StatusBlocked, e.Status())

	current = current.Add(16 * time.Minute)
	assert.Equal(t, StatusHealthy, e.Status())
	assert.Nil(t, e.blockedUntil)
}

func TestClearBlockResetsState(t *testing.T) {
	e := newTestEngine(t, Config{EngineID: "test"})
	e.recordCaptchaEvent()
	e.recordError()
	e.recordError()

	e.ClearBlock()
	assert.Equal(t, StatusHealthy, e.Status())
	report := e.StatusReport()
	assert.Equal(t, 0, report.ErrorStreak)
	assert.Equal(t, 0, report.CaptchaCount)
	assert.Nil(t, report.BlockedUntil)
}

func TestErrorStreakResetsOnSuccess(t *testing.T) {
	e := newTestEngine(t, Config{EngineID: "test"})
	e.recordError()
	e.recordError()
	assert.Equal(t, 2, e.StatusReport().ErrorStreak)

	e.recordSuccess()
	assert.Equal(t, 0, e.StatusReport().ErrorStreak)
}

func TestThrottleDelayWithinBounds(t *testing.T) {
	e := newTestEngine(t, Config{
		EngineID: "test",
		Throttle: ThrottleConfig{MinDelayMs: 100, MaxDelayMs: 200, JitterMs: 50},
	})
	for i := 0; i < 200; i++ {
		delay := e.throttleDelay()
		assert.GreaterOrEqual(t, delay, time.Duration(float64(100*time.Millisecond)*0.7))
		assert.LessOrEqual(t, delay, time.Duration(float64(250*time.Millisecond)*1.3))
	}
}

func TestThrottleBackoffClampedAtFiveMinutes(t *testing.T) {
	e := newTestEngine(t, Config{
		EngineID: "test",
		Throttle: ThrottleConfig{MinDelayMs: 1000, MaxDelayMs: 2000, BackoffOnError: true},
	})
	for i := 0; i < 12; i++ {
		e.recordError()
	}
	for i := 0; i < 50; i++ {
		delay := e.throttleDelay()
		assert.LessOrEqual(t, delay, time.Duration(float64(maxBackoffDelay)*1.3))
	}
}

func TestDetectCaptcha(t *testing.T) {
	assert.True(t, DetectCaptcha([]byte("<title>Unusual Traffic detected</title>")))
	assert.True(t, DetectCaptcha([]byte(`<form action="https://www.google.com/sorry/index">`)))
	assert.True(t, DetectCaptcha([]byte(`<div class="g-recaptcha">`)))
	assert.False(t, DetectCaptcha([]byte("<html><body>plumber near me results</body></html>")))
}

func TestRegistryGroupRequestsToday(t *testing.T) {
	registry := NewRegistry()
	a := NewGoogleSearchEngine(nil)
	b := NewGoogleLocalFinderEngine(nil)
	registry.Register(a)
	registry.Register(b)
	registry.Register(NewDuckDuckGoEngine(nil))

	a.recordSuccess()
	a.recordSuccess()
	b.recordSuccess()

	assert.Equal(t, 3, registry.GroupRequestsToday(googleReputationGroup))
	assert.Len(t, registry.ByReputationGroup(googleReputationGroup), 2)
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewDuckDuckGoEngine(nil))

	e, err := registry.Get(EngineDuckDuckGo)
	require.NoError(t, err)
	assert.Equal(t, EngineDuckDuckGo, e.ID())

	_, err = registry.Get("nope")
	assert.Error(t, err)
	assert.True(t, registry.Has(EngineDuckDuckGo))
	assert.False(t, registry.Has("nope"))
}

func TestBingAPIRequiresKey(t *testing.T) {
	e := NewBingAPIEngine(nil)
	e.apiKey = ""
	_, err := e.Search(context.Background(), "plumber", geo.GridPoint{Lat: 30.2672, Lng: -97.7431}, "Austin", "TX")
	assert.Error(t, err)
}
