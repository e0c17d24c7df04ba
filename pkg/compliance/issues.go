package compliance

import (
	"context"
	"fmt"
)

// How far back the completeness checks look.
const (
	taxBreakdownScanLimit = 10
	frenchScanLimit       = 20
)

// CheckIssues scans recent logs and the live settings for actionable
// compliance gaps. The rule set is re-derived from settings on every call, so
// a jurisdiction change takes effect immediately. The detector never resolves
// issues itself; each issue names the action a caller can take.
func (e *Engine) CheckIssues(ctx context.Context) ([]Issue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.settingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.ensureLogsLocked(ctx); err != nil {
		return nil, err
	}

	issues := []Issue{}

	// Every jurisdiction requires a summary for each completed business day.
	// Summaries are matched on their covered date, not the entry timestamp: a
	// summary for yesterday is usually generated today.
	yesterday := e.now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	if !hasSummaryFor(e.logs, yesterday) {
		issues = append(issues, Issue{
			Type:     "missing_summary",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("Missing daily summary for %s", yesterday),
			Action:   "generate_summary",
			ActionParams: map[string]interface{}{
				"date": yesterday,
			},
		})
	}

	switch settings.Province {
	case ProvinceON:
		recent := filterEntries(e.logs, Filter{Type: LogTypeSale, Limit: taxBreakdownScanLimit})
		missing := entriesMissingField(recent, "detailedTaxBreakdown")
		if len(missing) > 0 {
			issues = append(issues, Issue{
				Type:     "missing_tax_breakdown",
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("%d sales missing detailed tax breakdown required for Ontario", len(missing)),
				Action:   "update_sales_tax",
				ActionParams: map[string]interface{}{
					"count":  len(missing),
					"logIds": missing,
				},
			})
		}

	case ProvinceQC:
		recent := filterEntries(e.logs, Filter{Limit: frenchScanLimit})
		sales := make([]*LogEntry, 0, len(recent))
		for _, entry := range recent {
			if entry.Type == LogTypeSale {
				sales = append(sales, entry)
			}
		}
		missing := entriesMissingField(sales, "frenchDescription")
		if len(missing) > 0 {
			issues = append(issues, Issue{
				Type:     "missing_french",
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("%d logs missing French descriptions required for Quebec", len(missing)),
				Action:   "add_french_descriptions",
				ActionParams: map[string]interface{}{
					"count":  len(missing),
					"logIds": missing,
				},
			})
		}
	}

	return issues, nil
}

// hasSummaryFor reports whether a daily summary covering date exists.
func hasSummaryFor(entries []*LogEntry, date string) bool {
	for _, entry := range entries {
		if entry.Type != LogTypeDailySummary {
			continue
		}
		if covered, ok := entry.Data["date"].(string); ok && covered == date {
			return true
		}
	}
	return false
}

// entriesMissingField returns the ids of entries whose data lacks field.
func entriesMissingField(entries []*LogEntry, field string) []string {
	var missing []string
	for _, entry := range entries {
		if _, ok := entry.Data[field]; !ok {
			missing = append(missing, entry.ID)
		}
	}
	return missing
}
