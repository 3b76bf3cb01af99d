// Package normalize turns raw chapter nodes into canonical ChapterRecords.
//
// It owns the pure parsing rules of the pipeline: release-time labels
// ("February 16, 2025", "3 hours ago"), chapter keys used for ordering,
// volume/chapter numbering, permalink synthesis and stable identifiers.
// Nothing in this package touches the network.
package normalize
