// Package crawler defines the records, contracts and shared policies used by the
// paid-chapter discovery pipeline: catalog entries flow in, fetchers and
// extractors turn source pages into ChapterRecords, and the feed assembler
// consumes them.
package crawler
