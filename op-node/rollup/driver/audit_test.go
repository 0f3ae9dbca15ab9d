package driver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAuditRecordMapsValidationResultFields(t *testing.T) {
	result := ValidationResult{
		L1BlockNumber:     100,
		Successful:        false,
		ExpectedCreations: 2,
		ActualCreations:   1,
		ExpectedTransfers: 3,
		ActualTransfers:   3,
		StorageChecks:     5,
		Errors:            []string{"missing creation", "mismatched owner"},
	}

	row := newAuditRecord("run-1", result)
	require.Equal(t, "run-1", row.RunID)
	require.Equal(t, uint64(100), row.L1BlockNumber)
	require.False(t, row.Successful)
	require.Equal(t, 2, row.ExpectedCreations)
	require.Equal(t, 1, row.ActualCreations)
	require.Equal(t, "missing creation; mismatched owner", row.Errors)
}

func TestDiffValidationResultsReportsFieldLevelChanges(t *testing.T) {
	before := ValidationResult{L1BlockNumber: 10, Successful: false, Errors: []string{"missing transfer"}}
	after := ValidationResult{L1BlockNumber: 10, Successful: true}

	diff := DiffValidationResults(before, after)
	require.NotEmpty(t, diff, "a changed verdict must produce a non-empty diff")
	require.Contains(t, diff, "Successful")

	require.Empty(t, DiffValidationResults(after, after), "an identical result must diff to nothing")
}
