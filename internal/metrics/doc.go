// Package metrics is the scalar ingestion and query engine.
//
// It reconciles three competing constraints: an unbounded, user-defined set
// of metric names; a column-oriented storage engine that prefers a small
// number of statically typed columns; and low-latency reads under concurrent
// writers, without a transactional schema-migration facility.
//
// The Service facade owns one result cache, one name mapper, one table
// manager, one ingest writer, and one query engine per process, and is passed
// by reference to every consumer. Subpackages:
//
//   - names:  scalar name → internal column mapping (per project)
//   - schema: deterministic table names and idempotent DDL
//   - ingest: the write path (validate → map → ensure schema → insert)
//   - query:  the read path (cache → backend → series reconstruction)
//   - cache:  TTL'd result cache with write-time invalidation
//   - types:  shared data types
package metrics
