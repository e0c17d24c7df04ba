package compliance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cannaflow/cannaflow/pkg/common/logging"
	"github.com/cannaflow/cannaflow/pkg/storage"
)

// Storage keys used in the key-value store. The log collection is persisted
// as a single serialized array under logsStorageKey.
const (
	settingsStorageKey = "cannabis_pos_compliance_settings"
	logsStorageKey     = "cannabis_pos_compliance_logs"
)

// Engine is the compliance logging and retention engine. It owns the settings
// singleton and the log collection exclusively; the in-memory caches are
// loaded on first use and invalidated only by the engine's own writes.
//
// Operations are safe for concurrent use within one process. The engine
// assumes no other process mutates the same store keys.
type Engine struct {
	store  storage.Store
	sink   Sink
	logger *logging.Logger
	now    func() time.Time

	mu         sync.Mutex
	settings   *Settings
	logs       []*LogEntry
	logsLoaded bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets the sink export artifacts are written to. Defaults to an
// in-memory sink suitable for hosts without filesystem access.
func WithSink(sink Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithLogger sets the structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) { e.logger = logger.WithComponent("compliance") }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over the given store. The engine is not usable until
// Initialize has been called (or implicitly, until the first operation loads
// state).
func New(store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		sink:   NewMemorySink(),
		logger: logging.NewLogger(nil).WithComponent("compliance"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize loads settings and logs from the store, writing defaults for
// whichever is absent. It is idempotent; once the caches are warm it is a
// no-op. The owning process should call it during startup and treat a failure
// as fatal.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.settingsLocked(ctx); err != nil {
		return fmt.Errorf("failed to initialize compliance settings: %w", err)
	}
	if err := e.ensureLogsLocked(ctx); err != nil {
		return fmt.Errorf("failed to initialize compliance logs: %w", err)
	}

	e.logger.Info("compliance engine initialized", map[string]interface{}{
		"province": string(e.settings.Province),
		"logs":     len(e.logs),
	})
	return nil
}

// LogSale records a completed sale transaction. Missing fields are defaulted
// (zero total/tax, "unknown" staff, configured store location) and the data
// is enriched with the configured province's mandated fields before being
// durably appended.
func (e *Engine) LogSale(ctx context.Context, sale SaleRecord) (*LogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.settingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()

	data := make(map[string]interface{}, len(sale.Extra)+7)
	for k, v := range sale.Extra {
		data[k] = v
	}
	data["id"] = stringOr(sale.ID, fmt.Sprintf("sale_%d", now.UnixMilli()))
	data["timestamp"] = now.Format(time.RFC3339)
	data["products"] = saleProductsToData(sale.Products)
	data["total"] = sale.Total
	data["tax"] = sale.Tax
	data["staffId"] = stringOr(sale.StaffID, "unknown")
	data["location"] = stringOr(sale.Location, settings.Location)

	enriched := enrichProvinceData(settings.Province, LogTypeSale, data, now)
	return e.appendLocked(ctx, LogTypeSale, enriched)
}

// LogInventoryAdjustment records a stock change (received, sold, returned,
// destroyed).
func (e *Engine) LogInventoryAdjustment(ctx context.Context, adj InventoryAdjustment) (*LogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.settingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()

	data := make(map[string]interface{}, len(adj.Extra)+9)
	for k, v := range adj.Extra {
		data[k] = v
	}
	data["id"] = stringOr(adj.ID, fmt.Sprintf("inv_%d", now.UnixMilli()))
	data["timestamp"] = now.Format(time.RFC3339)
	data["productId"] = adj.ProductID
	data["productName"] = adj.ProductName
	data["adjustmentType"] = adj.AdjustmentType
	data["quantity"] = adj.Quantity
	data["reason"] = adj.Reason
	data["staffId"] = stringOr(adj.StaffID, "unknown")
	data["location"] = stringOr(adj.Location, settings.Location)
	if adj.BatchID != "" {
		data["batchId"] = adj.BatchID
	}

	enriched := enrichProvinceData(settings.Province, LogTypeInventory, data, now)
	return e.appendLocked(ctx, LogTypeInventory, enriched)
}

// LogCashFloat records till activity (open, close, adjustment).
func (e *Engine) LogCashFloat(ctx context.Context, activity CashFloatActivity) (*LogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.settingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()

	data := make(map[string]interface{}, len(activity.Extra)+7)
	for k, v := range activity.Extra {
		data[k] = v
	}
	data["id"] = stringOr(activity.ID, fmt.Sprintf("float_%d", now.UnixMilli()))
	data["timestamp"] = now.Format(time.RFC3339)
	data["activityType"] = activity.ActivityType
	data["amount"] = activity.Amount
	data["staffId"] = stringOr(activity.StaffID, "unknown")
	data["notes"] = activity.Notes
	data["location"] = stringOr(activity.Location, settings.Location)

	enriched := enrichProvinceData(settings.Province, LogTypeCashFloat, data, now)
	return e.appendLocked(ctx, LogTypeCashFloat, enriched)
}

// GenerateDailySummary aggregates one calendar day's sales, inventory, and
// cash-float activity into a daily_summary entry. An empty date means today;
// dates are YYYY-MM-DD, interpreted in UTC.
func (e *Engine) GenerateDailySummary(ctx context.Context, date string) (*LogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.settingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.ensureLogsLocked(ctx); err != nil {
		return nil, err
	}
	now := e.now().UTC()

	if date == "" {
		date = now.Format("2006-01-02")
	}
	start, end, err := dayBounds(date)
	if err != nil {
		return nil, err
	}

	sales := filterEntries(e.logs, Filter{Type: LogTypeSale, StartDate: &start, EndDate: &end})
	inventory := filterEntries(e.logs, Filter{Type: LogTypeInventory, StartDate: &start, EndDate: &end})
	floats := filterEntries(e.logs, Filter{Type: LogTypeCashFloat, StartDate: &start, EndDate: &end})

	var totalSales, totalTax float64
	for _, sale := range sales {
		totalSales += numberValue(sale.Data["total"])
		totalTax += numberValue(sale.Data["tax"])
	}

	data := map[string]interface{}{
		"id":                   "summary_" + date,
		"date":                 date,
		"timestamp":            now.Format(time.RFC3339),
		"totalSales":           totalSales,
		"totalTax":             totalTax,
		"transactionCount":     len(sales),
		"inventoryAdjustments": len(inventory),
		"cashFloatActivities":  len(floats),
		"location":             settings.Location,
		"businessName":         settings.BusinessName,
		"licenseNumber":        settings.LicenseNumber,
	}

	enriched := enrichProvinceData(settings.Province, LogTypeDailySummary, data, now)
	return e.appendLocked(ctx, LogTypeDailySummary, enriched)
}

// dayBounds returns the inclusive UTC timestamp range covering one
// YYYY-MM-DD calendar day.
func dayBounds(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", date, err)
	}
	return day, day.Add(24*time.Hour - time.Millisecond), nil
}

// saleProductsToData converts line items into plain maps so fresh entries
// look the same as entries reloaded from the store.
func saleProductsToData(products []SaleProduct) []interface{} {
	out := make([]interface{}, 0, len(products))
	for _, p := range products {
		item := map[string]interface{}{
			"name":     p.Name,
			"quantity": p.Quantity,
			"price":    p.Price,
		}
		if p.ID != 0 {
			item["id"] = p.ID
		}
		out = append(out, item)
	}
	return out
}
