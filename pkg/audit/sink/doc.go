// Package sink provides audit.Sink implementations.
//
//   - WriterSink writes one {"audit":{...}} JSON line per record (stdout by default)
//   - MemorySink keeps records in memory for tests and inspection
//   - SQLiteSink appends records to a SQLite table
//   - MultiSink fans out to several sinks
//
// SQLiteSink and MemorySink also satisfy retention.Store so old records can be
// pruned on a schedule.
package sink
