package compliance

import (
	"fmt"
	"time"
)

// enrichmentRule augments a raw event payload with one province's mandated
// fields. Rules must be deterministic for a given (data, logType, now) and
// must never fail on sparse input; absent numerics count as zero, absent
// strings as empty.
type enrichmentRule func(data map[string]interface{}, logType LogType, now time.Time)

// provinceRules maps each jurisdiction to its enrichment rules. Adding a
// province is a localized change here; provinces without entries only get the
// province stamp.
var provinceRules = map[Province][]enrichmentRule{
	ProvinceBC: {requireInventoryBatchID},
	ProvinceON: {requireSaleTaxBreakdown},
	ProvinceQC: {requireFrenchSaleDescription},
	ProvinceAB: {requireAGLCTrackingNumber},
}

// enrichProvinceData returns a copy of data carrying the province code and
// every field the province mandates for this log type. It performs no I/O.
func enrichProvinceData(province Province, logType LogType, data map[string]interface{}, now time.Time) map[string]interface{} {
	enriched := cloneDataMap(data)
	if enriched == nil {
		enriched = make(map[string]interface{})
	}
	enriched["province"] = string(province)

	for _, rule := range provinceRules[province] {
		rule(enriched, logType, now)
	}
	return enriched
}

// requireInventoryBatchID backfills the batch identifier British Columbia
// requires on inventory records.
func requireInventoryBatchID(data map[string]interface{}, logType LogType, now time.Time) {
	if logType != LogTypeInventory {
		return
	}
	if batchID, ok := data["batchId"].(string); ok && batchID != "" {
		return
	}
	data["batchId"] = fmt.Sprintf("BATCH-%d", now.UnixMilli())
}

// requireSaleTaxBreakdown attaches the transaction identifier and detailed
// tax breakdown Ontario requires on sale records. A missing tax amount
// breaks down to zeros rather than failing the log.
func requireSaleTaxBreakdown(data map[string]interface{}, logType LogType, now time.Time) {
	if logType != LogTypeSale {
		return
	}
	data["transactionId"] = fmt.Sprintf("ON-%d", now.UnixMilli())

	tax := numberValue(data["tax"])
	data["detailedTaxBreakdown"] = map[string]interface{}{
		"hst":    tax * 0.8,
		"excise": tax * 0.2,
	}
}

// requireFrenchSaleDescription attaches the French description Quebec
// requires on sale records that carry products.
func requireFrenchSaleDescription(data map[string]interface{}, logType LogType, now time.Time) {
	if logType != LogTypeSale {
		return
	}
	count := listLength(data["products"])
	if count == 0 {
		return
	}
	data["frenchDescription"] = fmt.Sprintf("Vente de %d produits", count)
}

// requireAGLCTrackingNumber stamps the AGLC tracking number Alberta requires
// on every record regardless of type.
func requireAGLCTrackingNumber(data map[string]interface{}, logType LogType, now time.Time) {
	data["aglcTrackingNumber"] = fmt.Sprintf("AGLC-%d", now.UnixMilli())
}
