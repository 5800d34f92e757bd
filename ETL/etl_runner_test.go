package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LilVoxy/rental_warehouse/ETL/orchestrator"
)

func TestConfirmAcceptsAffirmativeAnswers(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"s\n", true},
		{"SI\n", true},
		{" y \n", true},
		{"yes\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"да\n", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got := confirm(strings.NewReader(tt.answer), &out, orchestrator.Options{Incremental: true})
		assert.Equal(t, tt.want, got, "answer %q", tt.answer)
		assert.Contains(t, out.String(), "инкрементальный")
	}
}
