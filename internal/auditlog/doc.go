// Package auditlog ships lifecycle audit data out of the process: freshly appended
// action log entries are streamed to Kafka, and the snapshot of a reported event is
// archived to S3 as canonical JSON.
package auditlog
