// Package emission provides the business boundary for ventwatch's emission event
// control tower. It defines the triage Scorer, the SLAClock, the event lifecycle
// state machine, the fleet Summarize fold, the Service (action boundary, bulk import,
// audit snapshots), the Store interface (persistence) and the domain models.
package emission
