// Package compliance implements the CannaFlow compliance logging and
// retention engine for cannabis retail.
//
// The engine records regulated business events (sales, inventory adjustments,
// cash-float activity, daily summaries) as append-only log entries, enhances
// each entry with the fields its province mandates, detects compliance gaps,
// enforces the configured data-retention policy, and exports audit-ready
// extracts in CSV, JSON, or XML.
//
// Persistence goes through a replaceable key-value store adapter
// (storage.Store); export artifacts go through a Sink. Both are injected, so
// the engine runs unchanged on a device with a local filesystem, in a
// browser-like host, or against a central database.
package compliance
