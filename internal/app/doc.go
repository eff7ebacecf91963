// Package app provides the application service layer.
//
// Orchestrates use cases: subscriber registration, watchlist and interval
// changes, the shared upstream fetch loop, per-subscriber comparison cycles
// and leader election. Depends on domain interfaces, not concrete adapters.
package app
