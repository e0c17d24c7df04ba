package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoLogsToExport is returned when the export window matches no entries.
var ErrNoLogsToExport = errors.New("no logs found for export criteria")

// Export serializes the logs matching options and writes the artifact to the
// sink. Format defaults to the configured export format; the window defaults
// to the last 24 hours. When the sink is non-durable the payload is also
// returned in ExportResult.Data so the caller can deliver it.
func (e *Engine) Export(ctx context.Context, options ExportOptions) (*ExportResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.settingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.ensureLogsLocked(ctx); err != nil {
		return nil, err
	}

	format := options.Format
	if format == "" {
		format = settings.ExportFormat
	}
	if format == "" {
		format = FormatCSV
	}
	if !format.Valid() {
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
	if options.LogType != "" && !options.LogType.Valid() {
		return nil, fmt.Errorf("unknown log type: %s", options.LogType)
	}

	now := e.now().UTC()
	start := now.AddDate(0, 0, -1)
	end := now
	if options.StartDate != nil {
		start = *options.StartDate
	}
	if options.EndDate != nil {
		end = *options.EndDate
	}

	entries := filterEntries(e.logs, Filter{
		Type:      options.LogType,
		StartDate: &start,
		EndDate:   &end,
	})
	if len(entries) == 0 {
		return nil, ErrNoLogsToExport
	}

	payload, err := formatLogsForExport(entries, format, settings.Province)
	if err != nil {
		return nil, fmt.Errorf("failed to format export: %w", err)
	}

	filename := exportFilename(settings.Province, options.LogType, format, now)
	location, err := e.sink.Write(ctx, filename, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}

	result := &ExportResult{
		Filename: filename,
		Location: location,
		Format:   format,
		Count:    len(entries),
	}
	if !e.sink.Durable() {
		result.Data = payload
	}

	e.logger.Info("Exported compliance logs", map[string]interface{}{
		"filename": filename,
		"format":   string(format),
		"count":    len(entries),
	})

	if options.Share {
		if sharer, ok := e.sink.(Sharer); ok {
			if err := sharer.ShareArtifact(location); err != nil {
				e.logger.Warn("Failed to share export", map[string]interface{}{
					"location": location,
					"error":    err.Error(),
				})
			}
		}
	}

	return result, nil
}

// exportFilename builds the conventional artifact name. The log type segment
// is present only for filtered exports.
func exportFilename(province Province, logType LogType, format ExportFormat, now time.Time) string {
	segment := ""
	if logType != "" {
		segment = "_" + string(logType)
	}
	return fmt.Sprintf("cannaflow_compliance_%s%s_%s.%s",
		province, segment, now.Format("2006-01-02"), format)
}

// formatLogsForExport renders entries in the requested format, applying the
// province's presentation requirements to each row.
func formatLogsForExport(entries []*LogEntry, format ExportFormat, province Province) ([]byte, error) {
	rows := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, exportRow(entry, province))
	}

	switch format {
	case FormatJSON:
		return json.MarshalIndent(rows, "", "  ")
	case FormatCSV:
		return convertToCSV(rows), nil
	case FormatXML:
		return convertToXML(rows, province), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// exportRow flattens an entry into a single record. Data fields are prefixed
// with data_ so they never collide with the entry's own columns, and each
// province contributes the display fields its regulator expects.
func exportRow(entry *LogEntry, province Province) map[string]interface{} {
	row := map[string]interface{}{
		"id":        entry.ID,
		"type":      string(entry.Type),
		"timestamp": entry.Timestamp.UTC().Format(time.RFC3339),
	}
	for key, value := range entry.Data {
		row["data_"+key] = value
	}

	switch province {
	case ProvinceBC:
		row["formatted_date"] = entry.Timestamp.UTC().Format("2006-01-02")
	case ProvinceON:
		if entry.Type == LogTypeSale {
			row["ontario_transaction_id"] = "ON-" + entry.ID
		}
	case ProvinceQC:
		row["date_fr"] = entry.Timestamp.UTC().Format("2006-01-02")
		if entry.Type == LogTypeSale {
			row["montant_total"] = numberValue(entry.Data["total"])
			row["taxe"] = numberValue(entry.Data["tax"])
		}
	}
	return row
}

// convertToCSV renders rows with a header built from the sorted union of all
// row keys. Rows missing a column emit an empty field.
func convertToCSV(rows []map[string]interface{}) []byte {
	header := csvHeader(rows)

	var buf strings.Builder
	for i, column := range header {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(formatCSVValue(column))
	}
	buf.WriteByte('\n')

	for _, row := range rows {
		for i, column := range header {
			if i > 0 {
				buf.WriteByte(',')
			}
			if value, ok := row[column]; ok {
				buf.WriteString(formatCSVValue(exportValueString(value)))
			}
		}
		buf.WriteByte('\n')
	}
	return []byte(buf.String())
}

// csvHeader is the sorted union of every row's keys.
func csvHeader(rows []map[string]interface{}) []string {
	seen := make(map[string]bool)
	var header []string
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				header = append(header, key)
			}
		}
	}
	sort.Strings(header)
	return header
}

// formatCSVValue quotes every field and doubles embedded quotes, so values
// containing commas or newlines survive round-trips through spreadsheets.
func formatCSVValue(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// convertToXML renders rows as a complianceLogs document. The entry type
// becomes a log attribute; the entry's own fields become direct children and
// the event data keys are nested inside a <data> block, all in sorted order.
func convertToXML(rows []map[string]interface{}, province Province) []byte {
	var buf strings.Builder
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(fmt.Sprintf("<complianceLogs province=%q>\n", province))

	for _, row := range rows {
		buf.WriteString(fmt.Sprintf("  <log type=%q>\n", exportValueString(row["type"])))

		var own, data []string
		for key := range row {
			switch {
			case key == "type":
			case strings.HasPrefix(key, "data_"):
				data = append(data, key)
			default:
				own = append(own, key)
			}
		}
		sort.Strings(own)
		sort.Strings(data)

		for _, key := range own {
			name := xmlElementName(key)
			buf.WriteString(fmt.Sprintf("    <%s>%s</%s>\n",
				name, xmlEscape(exportValueString(row[key])), name))
		}
		buf.WriteString("    <data>\n")
		for _, key := range data {
			name := xmlElementName(strings.TrimPrefix(key, "data_"))
			buf.WriteString(fmt.Sprintf("      <%s>%s</%s>\n",
				name, xmlEscape(exportValueString(row[key])), name))
		}
		buf.WriteString("    </data>\n")
		buf.WriteString("  </log>\n")
	}
	buf.WriteString("</complianceLogs>\n")
	return []byte(buf.String())
}

// xmlElementName keeps only characters safe in an element name.
func xmlElementName(key string) string {
	var out strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out.WriteRune(r)
		default:
			out.WriteByte('_')
		}
	}
	if out.Len() == 0 {
		return "field"
	}
	return out.String()
}

func xmlEscape(value string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(value)
}

// exportValueString renders a row value as text. Nested structures are
// serialized as JSON so no information is dropped.
func exportValueString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
