// Package domain defines the core election types and the interfaces the
// application layer depends on.
//
// Concept-oriented files (election.go, subscriber.go, report.go, upstream.go)
// hold value types and consumer-side interfaces. No adapters live here.
package domain
