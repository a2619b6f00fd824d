// Package progress defines the event structures emitted by the fetch
// pipeline.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageRunError     Stage = "RUN_ERROR"
	StagePageDone     Stage = "PAGE_DONE"
	StageChainError   Stage = "CHAIN_ERROR"
	StageReportStored Stage = "REPORT_STORED"
)

// Event captures a single component of fetch progress.
type Event struct {
	// RunID uniquely identifies a fetch run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or page milestone occurred.
	Stage Stage
	// Chain scopes page and report events to a network label.
	Chain string
	// Page is the 1-based page number for page events.
	Page int
	// Reports increments by the number of reports stored on this milestone.
	Reports int64
	// Skipped increments by the number of reports dropped by filtering.
	Skipped int64
	// Addresses increments by the number of address rows written.
	Addresses int64
	// Dur captures execution latency for pages and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageReportStored:
	case StagePageDone:
		if e.Chain == "" {
			return errors.New("page done requires chain")
		}
		if e.Page <= 0 {
			return errors.New("page done requires a positive page number")
		}
	case StageChainError:
		if e.Chain == "" {
			return errors.New("chain error requires chain")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for consumers.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
