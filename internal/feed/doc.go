// Package feed orders chapter records and renders them as the extended RSS 2.0
// document consumed by the downstream notification bots.
package feed
