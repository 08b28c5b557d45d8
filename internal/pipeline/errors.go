package pipeline

import (
	"errors"

	"github.com/sathizz7/streetview-capturing-sys/internal/maps"
	"github.com/sathizz7/streetview-capturing-sys/internal/oracle"
	"github.com/sathizz7/streetview-capturing-sys/internal/spatial"
)

// Terminal pipeline failures. Each maps to a failure kind carried as data
// in the run record, never as an uncaught fault.
var (
	// ErrNoRoadsFound means road discovery exhausted every sample without a
	// single snap. Retrying the same query cannot produce new geometry.
	ErrNoRoadsFound = errors.New("no roads found")

	// ErrNoCoverage means every candidate viewpoint lacked imagery.
	ErrNoCoverage = errors.New("no street-level coverage")

	// ErrAllCandidatesRejected means the quality gate found no valid front
	// facade among the screened candidates.
	ErrAllCandidatesRejected = errors.New("all candidates rejected")
)

// Failure kind tags for the run record.
const (
	KindInvalidCoordinate     = "invalid_coordinate"
	KindNoRoadsFound          = "no_roads_found"
	KindNoCoverage            = "no_coverage"
	KindAllCandidatesRejected = "all_candidates_rejected"
	KindCollaboratorFatal     = "collaborator_fatal"
	KindCollaboratorTransient = "collaborator_transient"
)

// failureKind maps an error to its run-record tag.
func failureKind(err error) string {
	switch {
	case errors.Is(err, spatial.ErrInvalidCoordinate):
		return KindInvalidCoordinate
	case errors.Is(err, ErrNoRoadsFound):
		return KindNoRoadsFound
	case errors.Is(err, ErrNoCoverage):
		return KindNoCoverage
	case errors.Is(err, ErrAllCandidatesRejected):
		return KindAllCandidatesRejected
	case errors.Is(err, maps.ErrFatal), errors.Is(err, oracle.ErrFatal):
		return KindCollaboratorFatal
	default:
		return KindCollaboratorTransient
	}
}
