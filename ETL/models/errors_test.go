package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), KindInternal},
		{"unknown column", fmt.Errorf("projection: %w", ErrUnknownColumn), KindSchema},
		{"mysql syntax", &mysql.MySQLError{Number: 1064, Message: "syntax"}, KindSchema},
		{"bad connection", fmt.Errorf("ping: %w", mysql.ErrInvalidConn), KindConnectivity},
		{"pipeline", &PipelineError{Kind: KindTransformation, Phase: "TRANSFORMATION", Err: errors.New("x")}, KindTransformation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestNewPipelineErrorKeepsSpecificKind(t *testing.T) {
	err := NewPipelineError(KindExtraction, "EXTRACTION", fmt.Errorf("stg: %w", ErrUnknownTable))

	assert.Equal(t, KindSchema, err.Kind)
	assert.ErrorIs(t, err, ErrUnknownTable)
	assert.Contains(t, err.Error(), "EXTRACTION")
}

func TestRunRecordHelpers(t *testing.T) {
	r := RunRecord{Process: ProcessExtractionIncrement, Status: RunStarted}
	assert.True(t, r.IsExtraction())
	assert.False(t, r.Closed())

	r.Status = RunError
	assert.True(t, r.Closed())
	assert.False(t, RunRecord{Process: ProcessTransformation}.IsExtraction())
}

func TestWarningCountsAsPass(t *testing.T) {
	assert.True(t, QualityCheck{Result: CheckWarning}.Passed())
	assert.True(t, QualityCheck{Result: CheckPass}.Passed())
	assert.False(t, QualityCheck{Result: CheckFail}.Passed())
}
