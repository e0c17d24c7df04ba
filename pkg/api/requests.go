package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cannaflow/cannaflow/pkg/compliance"
)

type saleRequest struct {
	ID       string                   `json:"id"`
	Products []compliance.SaleProduct `json:"products"`
	Total    float64                  `json:"total"`
	Tax      float64                  `json:"tax"`
	StaffID  string                   `json:"staff_id"`
	Location string                   `json:"location"`
	Extra    map[string]interface{}   `json:"extra"`
}

func (r saleRequest) toRecord() compliance.SaleRecord {
	return compliance.SaleRecord{
		ID:       r.ID,
		Products: r.Products,
		Total:    r.Total,
		Tax:      r.Tax,
		StaffID:  r.StaffID,
		Location: r.Location,
		Extra:    r.Extra,
	}
}

type inventoryRequest struct {
	ID             string                 `json:"id"`
	ProductID      int                    `json:"product_id"`
	ProductName    string                 `json:"product_name"`
	AdjustmentType string                 `json:"adjustment_type"`
	Quantity       float64                `json:"quantity"`
	Reason         string                 `json:"reason"`
	BatchID        string                 `json:"batch_id"`
	StaffID        string                 `json:"staff_id"`
	Location       string                 `json:"location"`
	Extra          map[string]interface{} `json:"extra"`
}

func (r inventoryRequest) toRecord() compliance.InventoryAdjustment {
	return compliance.InventoryAdjustment{
		ID:             r.ID,
		ProductID:      r.ProductID,
		ProductName:    r.ProductName,
		AdjustmentType: r.AdjustmentType,
		Quantity:       r.Quantity,
		Reason:         r.Reason,
		BatchID:        r.BatchID,
		StaffID:        r.StaffID,
		Location:       r.Location,
		Extra:          r.Extra,
	}
}

type cashFloatRequest struct {
	ID           string                 `json:"id"`
	ActivityType string                 `json:"activity_type"`
	Amount       float64                `json:"amount"`
	StaffID      string                 `json:"staff_id"`
	Notes        string                 `json:"notes"`
	Location     string                 `json:"location"`
	Extra        map[string]interface{} `json:"extra"`
}

func (r cashFloatRequest) toRecord() compliance.CashFloatActivity {
	return compliance.CashFloatActivity{
		ID:           r.ID,
		ActivityType: r.ActivityType,
		Amount:       r.Amount,
		StaffID:      r.StaffID,
		Notes:        r.Notes,
		Location:     r.Location,
		Extra:        r.Extra,
	}
}

// parseFilter reads log query parameters: type, start, end (RFC3339 or
// YYYY-MM-DD) and limit.
func parseFilter(r *http.Request) (compliance.Filter, error) {
	var filter compliance.Filter
	query := r.URL.Query()

	if value := query.Get("type"); value != "" {
		logType := compliance.LogType(value)
		if !logType.Valid() {
			return filter, fmt.Errorf("unknown log type: %s", value)
		}
		filter.Type = logType
	}
	if value := query.Get("start"); value != "" {
		start, err := parseTimeParam(value)
		if err != nil {
			return filter, fmt.Errorf("invalid start: %w", err)
		}
		filter.StartDate = &start
	}
	if value := query.Get("end"); value != "" {
		end, err := parseTimeParam(value)
		if err != nil {
			return filter, fmt.Errorf("invalid end: %w", err)
		}
		filter.EndDate = &end
	}
	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("invalid limit: %s", value)
		}
		filter.Limit = limit
	}
	return filter, nil
}

type exportRequest struct {
	Format    string `json:"format"`
	LogType   string `json:"log_type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Share     bool   `json:"share"`
}

func parseExportOptions(r *http.Request) (compliance.ExportOptions, error) {
	var options compliance.ExportOptions
	if r.ContentLength == 0 {
		return options, nil
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return options, err
	}

	options.Format = compliance.ExportFormat(req.Format)
	options.LogType = compliance.LogType(req.LogType)
	options.Share = req.Share
	if req.StartDate != "" {
		start, err := parseTimeParam(req.StartDate)
		if err != nil {
			return options, fmt.Errorf("invalid start_date: %w", err)
		}
		options.StartDate = &start
	}
	if req.EndDate != "" {
		end, err := parseTimeParam(req.EndDate)
		if err != nil {
			return options, fmt.Errorf("invalid end_date: %w", err)
		}
		options.EndDate = &end
	}
	return options, nil
}

func parseTimeParam(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", value, time.UTC)
}
