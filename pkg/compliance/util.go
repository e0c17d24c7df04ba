package compliance

// cloneDataMap returns a shallow copy of a data map. Entry data is never
// mutated after creation, so sharing nested values is safe.
func cloneDataMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// numberValue coerces a data-map value to float64. Stored entries round-trip
// through JSON, so numbers usually arrive as float64; freshly created entries
// may still hold native ints. Anything else counts as zero.
func numberValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// listLength reports the length of a slice-valued data field regardless of
// whether it was created in-process or reloaded from the store.
func listLength(v interface{}) int {
	switch l := v.(type) {
	case []interface{}:
		return len(l)
	case []map[string]interface{}:
		return len(l)
	case []SaleProduct:
		return len(l)
	default:
		return 0
	}
}

// stringOr returns value unless it is empty, in which case fallback is used.
func stringOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
