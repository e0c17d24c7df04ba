package compliance

import (
	"time"
)

// Province identifies the regulatory region whose rules govern required
// fields and retention. Codes are stable string identifiers because they are
// persisted inside stored records.
type Province string

const (
	ProvinceBC Province = "BC"
	ProvinceON Province = "ON"
	ProvinceAB Province = "AB"
	ProvinceQC Province = "QC"
	ProvinceMB Province = "MB"
	ProvinceSK Province = "SK"
	ProvinceNS Province = "NS"
	ProvinceNB Province = "NB"
	ProvinceNL Province = "NL"
	ProvincePE Province = "PE"
	ProvinceYT Province = "YT"
	ProvinceNT Province = "NT"
	ProvinceNU Province = "NU"
)

// ProvinceNames maps province codes to display names for callers.
var ProvinceNames = map[Province]string{
	ProvinceBC: "British Columbia",
	ProvinceON: "Ontario",
	ProvinceAB: "Alberta",
	ProvinceQC: "Quebec",
	ProvinceMB: "Manitoba",
	ProvinceSK: "Saskatchewan",
	ProvinceNS: "Nova Scotia",
	ProvinceNB: "New Brunswick",
	ProvinceNL: "Newfoundland and Labrador",
	ProvincePE: "Prince Edward Island",
	ProvinceYT: "Yukon",
	ProvinceNT: "Northwest Territories",
	ProvinceNU: "Nunavut",
}

// Valid reports whether p is a known province code.
func (p Province) Valid() bool {
	_, ok := ProvinceNames[p]
	return ok
}

// LogType classifies a compliance log entry.
type LogType string

const (
	LogTypeSale         LogType = "sale"
	LogTypeInventory    LogType = "inventory"
	LogTypeCashFloat    LogType = "cash_float"
	LogTypeDailySummary LogType = "daily_summary"
	LogTypeAudit        LogType = "audit"
)

// Valid reports whether t is a known log type.
func (t LogType) Valid() bool {
	switch t {
	case LogTypeSale, LogTypeInventory, LogTypeCashFloat, LogTypeDailySummary, LogTypeAudit:
		return true
	}
	return false
}

// ExportFormat selects the serialization used for compliance extracts.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatXML  ExportFormat = "xml"
)

// Valid reports whether f is a supported export format.
func (f ExportFormat) Valid() bool {
	switch f {
	case FormatCSV, FormatJSON, FormatXML:
		return true
	}
	return false
}

// Issue severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// Settings is the singleton jurisdiction and business configuration. Exactly
// one instance exists per installation, fully owned by the engine.
type Settings struct {
	Province             Province     `json:"province"`
	BusinessName         string       `json:"business_name"`
	LicenseNumber        string       `json:"license_number"`
	Location             string       `json:"location"`
	RetentionPeriodYears int          `json:"retention_period_years"`
	AutoExport           bool         `json:"auto_export"`
	ExportFormat         ExportFormat `json:"export_format"`
	ExportEmail          string       `json:"export_email,omitempty"`
	Language             string       `json:"language"`
}

// DefaultSettings returns the configuration written on first initialization.
func DefaultSettings() *Settings {
	return &Settings{
		Province:             ProvinceBC,
		BusinessName:         "CannaFlow Dispensary",
		LicenseNumber:        "SAMPLE-LICENSE-123",
		Location:             "123 Main Street, Vancouver, BC",
		RetentionPeriodYears: 6,
		AutoExport:           false,
		ExportFormat:         FormatCSV,
		ExportEmail:          "",
		Language:             "en",
	}
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged;
// set fields are shallow-merged into the current settings.
type SettingsPatch struct {
	Province             *Province     `json:"province,omitempty"`
	BusinessName         *string       `json:"business_name,omitempty"`
	LicenseNumber        *string       `json:"license_number,omitempty"`
	Location             *string       `json:"location,omitempty"`
	RetentionPeriodYears *int          `json:"retention_period_years,omitempty"`
	AutoExport           *bool         `json:"auto_export,omitempty"`
	ExportFormat         *ExportFormat `json:"export_format,omitempty"`
	ExportEmail          *string       `json:"export_email,omitempty"`
	Language             *string       `json:"language,omitempty"`
}

// LogEntry is one compliance log record. ID and Timestamp are set at creation
// and never change; Data gains province-mandated fields at creation time only.
type LogEntry struct {
	ID        string                 `json:"id"`
	Type      LogType                `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Clone returns a copy whose data map is independent of the original.
func (e *LogEntry) Clone() *LogEntry {
	out := *e
	out.Data = cloneDataMap(e.Data)
	return &out
}

// Filter narrows a log query. Zero values mean "no constraint"; the date
// range is inclusive on both ends, and Limit caps the result count after the
// newest-first sort.
type Filter struct {
	Type      LogType
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

// Issue is an actionable compliance gap surfaced by the issue detector.
type Issue struct {
	Type         string                 `json:"type"`
	Severity     string                 `json:"severity"`
	Message      string                 `json:"message"`
	Action       string                 `json:"action"`
	ActionParams map[string]interface{} `json:"action_params,omitempty"`
}

// RetentionStatus summarizes the live log collection against the configured
// retention window.
type RetentionStatus struct {
	TotalLogs            int        `json:"total_logs"`
	CurrentLogs          int        `json:"current_logs"`
	ExpiringLogs         int        `json:"expiring_logs"`
	ExpiredLogs          int        `json:"expired_logs"`
	RetentionPeriodYears int        `json:"retention_period_years"`
	OldestLog            *time.Time `json:"oldest_log,omitempty"`
	NewestLog            *time.Time `json:"newest_log,omitempty"`
}

// ArchiveResult reports the outcome of an archive run.
type ArchiveResult struct {
	ArchivedCount   int    `json:"archived_count"`
	ArchiveLocation string `json:"archive_location,omitempty"`
	Message         string `json:"message"`
}

// ExportOptions controls a compliance export. Zero-valued fields fall back to
// the configured export format and a yesterday-to-now window.
type ExportOptions struct {
	Format    ExportFormat
	LogType   LogType
	StartDate *time.Time
	EndDate   *time.Time
	Share     bool
}

// ExportResult describes a produced extract. Data is populated only when the
// sink is non-durable (browser-like hosts), where the caller must deliver the
// content itself.
type ExportResult struct {
	Filename string       `json:"filename"`
	Location string       `json:"location"`
	Format   ExportFormat `json:"format"`
	Count    int          `json:"count"`
	Data     []byte       `json:"data,omitempty"`
}

// SaleProduct is one line item of a sale.
type SaleProduct struct {
	ID       int     `json:"id,omitempty"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// SaleRecord is the upstream payload for a completed sale. Missing fields are
// defaulted rather than rejected; recording the event matters more than
// complete data.
type SaleRecord struct {
	ID       string
	Products []SaleProduct
	Total    float64
	Tax      float64
	StaffID  string
	Location string
	// Extra carries upstream fields the engine does not model; they are
	// preserved verbatim in the entry's data.
	Extra map[string]interface{}
}

// InventoryAdjustment is the upstream payload for a stock change.
type InventoryAdjustment struct {
	ID             string
	ProductID      int
	ProductName    string
	AdjustmentType string // received, sold, returned, destroyed
	Quantity       float64
	Reason         string
	BatchID        string
	StaffID        string
	Location       string
	Extra          map[string]interface{}
}

// CashFloatActivity is the upstream payload for till activity.
type CashFloatActivity struct {
	ID           string
	ActivityType string // open, close, adjustment
	Amount       float64
	StaffID      string
	Notes        string
	Location     string
	Extra        map[string]interface{}
}
