package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cannaflow/cannaflow/pkg/storage"
)

// fakeClock is a manually advanced time source for deterministic tests.
type fakeClock struct {
	current time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{current: t}
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

// flakyStore wraps a real store and fails writes on demand.
type flakyStore struct {
	storage.Store
	failSet bool
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if s.failSet {
		return errors.New("simulated write failure")
	}
	return s.Store.Set(ctx, key, value)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	engine := New(storage.NewMemoryStore(), opts...)
	require.NoError(t, engine.Initialize(context.Background()))
	return engine, clock
}

func TestInitializeWritesDefaults(t *testing.T) {
	engine, _ := newTestEngine(t)

	settings, err := engine.Settings(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ProvinceBC, settings.Province)
	assert.Equal(t, "CannaFlow Dispensary", settings.BusinessName)
	assert.Equal(t, "SAMPLE-LICENSE-123", settings.LicenseNumber)
	assert.Equal(t, 6, settings.RetentionPeriodYears)
	assert.Equal(t, FormatCSV, settings.ExportFormat)
	assert.Equal(t, "en", settings.Language)

	// Second initialization must not disturb state.
	require.NoError(t, engine.Initialize(context.Background()))
}

func TestSettingsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	engine := New(store)
	require.NoError(t, engine.Initialize(ctx))

	province := ProvinceON
	name := "Queen Street Cannabis"
	_, err := engine.UpdateSettings(ctx, SettingsPatch{
		Province:     &province,
		BusinessName: &name,
	})
	require.NoError(t, err)

	// A fresh engine over the same store sees the persisted settings.
	reloaded := New(store)
	settings, err := reloaded.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProvinceON, settings.Province)
	assert.Equal(t, "Queen Street Cannabis", settings.BusinessName)
	// Unpatched fields keep their previous values.
	assert.Equal(t, 6, settings.RetentionPeriodYears)
}

func TestUpdateSettingsValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	bad := Province("ZZ")
	_, err := engine.UpdateSettings(ctx, SettingsPatch{Province: &bad})
	assert.Error(t, err)

	zero := 0
	_, err = engine.UpdateSettings(ctx, SettingsPatch{RetentionPeriodYears: &zero})
	assert.Error(t, err)

	badFormat := ExportFormat("yaml")
	_, err = engine.UpdateSettings(ctx, SettingsPatch{ExportFormat: &badFormat})
	assert.Error(t, err)

	// Failed updates leave the settings untouched.
	settings, err := engine.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProvinceBC, settings.Province)
	assert.Equal(t, 6, settings.RetentionPeriodYears)
}

func TestUpdateSettingsPersistFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: storage.NewMemoryStore()}
	engine := New(flaky)
	require.NoError(t, engine.Initialize(ctx))

	flaky.failSet = true
	province := ProvinceAB
	_, err := engine.UpdateSettings(ctx, SettingsPatch{Province: &province})
	require.Error(t, err)

	flaky.failSet = false
	settings, err := engine.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProvinceBC, settings.Province, "cache must not diverge from the store")
}

func TestLogSaleDefaultsMissingFields(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	entry, err := engine.LogSale(ctx, SaleRecord{})
	require.NoError(t, err)

	assert.Equal(t, LogTypeSale, entry.Type)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "unknown", entry.Data["staffId"])
	assert.Equal(t, "123 Main Street, Vancouver, BC", entry.Data["location"])
	assert.Equal(t, float64(0), entry.Data["total"])
	assert.Contains(t, entry.Data["id"], "sale_")
	assert.Equal(t, "BC", entry.Data["province"])
}

func TestLogSalePreservesExtraFields(t *testing.T) {
	engine, _ := newTestEngine(t)

	entry, err := engine.LogSale(context.Background(), SaleRecord{
		ID:      "sale-77",
		Total:   41.50,
		Tax:     4.98,
		StaffID: "staff-3",
		Extra:   map[string]interface{}{"terminal": "till-2"},
	})
	require.NoError(t, err)

	assert.Equal(t, "sale-77", entry.Data["id"])
	assert.Equal(t, "till-2", entry.Data["terminal"])
	assert.Equal(t, "staff-3", entry.Data["staffId"])
}

func TestAppendFailureLeavesLogUnchanged(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: storage.NewMemoryStore()}
	engine := New(flaky)
	require.NoError(t, engine.Initialize(ctx))

	_, err := engine.LogSale(ctx, SaleRecord{Total: 10})
	require.NoError(t, err)

	flaky.failSet = true
	_, err = engine.LogSale(ctx, SaleRecord{Total: 20})
	require.Error(t, err)

	flaky.failSet = false
	logs, err := engine.Logs(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, float64(10), logs[0].Data["total"])
}

func TestLogsNewestFirstWithLimit(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := engine.LogSale(ctx, SaleRecord{Total: float64(i)})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	logs, err := engine.Logs(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	// The limit applies after the newest-first sort.
	assert.Equal(t, float64(4), logs[0].Data["total"])
	assert.Equal(t, float64(3), logs[1].Data["total"])
}

func TestLogsFilterByTypeAndDate(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.LogSale(ctx, SaleRecord{Total: 10})
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)
	_, err = engine.LogSale(ctx, SaleRecord{Total: 20})
	require.NoError(t, err)
	_, err = engine.LogCashFloat(ctx, CashFloatActivity{ActivityType: "open", Amount: 200})
	require.NoError(t, err)

	start := clock.Now().Add(-time.Hour)
	logs, err := engine.Logs(ctx, Filter{Type: LogTypeSale, StartDate: &start})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, float64(20), logs[0].Data["total"])
}

func TestLogsReturnsCopies(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.LogSale(ctx, SaleRecord{Total: 12})
	require.NoError(t, err)

	logs, err := engine.Logs(ctx, Filter{})
	require.NoError(t, err)
	logs[0].Data["total"] = float64(9999)

	again, err := engine.Logs(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, float64(12), again[0].Data["total"])
}

func TestGenerateDailySummaryAggregates(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.LogSale(ctx, SaleRecord{Total: 100, Tax: 12})
	require.NoError(t, err)
	_, err = engine.LogSale(ctx, SaleRecord{Total: 50, Tax: 6})
	require.NoError(t, err)
	_, err = engine.LogInventoryAdjustment(ctx, InventoryAdjustment{
		ProductName:    "Blue Dream 3.5g",
		AdjustmentType: "received",
		Quantity:       24,
	})
	require.NoError(t, err)
	_, err = engine.LogCashFloat(ctx, CashFloatActivity{ActivityType: "open", Amount: 200})
	require.NoError(t, err)

	date := clock.Now().UTC().Format("2006-01-02")
	summary, err := engine.GenerateDailySummary(ctx, date)
	require.NoError(t, err)

	assert.Equal(t, LogTypeDailySummary, summary.Type)
	assert.Equal(t, "summary_"+date, summary.Data["id"])
	assert.Equal(t, float64(150), summary.Data["totalSales"])
	assert.Equal(t, float64(18), summary.Data["totalTax"])
	assert.Equal(t, 2, summary.Data["transactionCount"])
	assert.Equal(t, 1, summary.Data["inventoryAdjustments"])
	assert.Equal(t, 1, summary.Data["cashFloatActivities"])
	assert.Equal(t, "CannaFlow Dispensary", summary.Data["businessName"])
}

func TestGenerateDailySummaryRejectsBadDate(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.GenerateDailySummary(context.Background(), "June 1st")
	assert.Error(t, err)
}

func TestLogsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	engine := New(store)
	require.NoError(t, engine.Initialize(ctx))
	_, err := engine.LogSale(ctx, SaleRecord{Total: 33})
	require.NoError(t, err)

	reloaded := New(store)
	logs, err := reloaded.Logs(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, float64(33), logs[0].Data["total"])
}
