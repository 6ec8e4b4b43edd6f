package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestSourceDateEpoch(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		want   time.Time
		wantOK bool
	}{
		{name: "unset", value: ""},
		{name: "valid", value: "1700000000", want: time.Unix(1700000000, 0).UTC(), wantOK: true},
		{name: "zero", value: "0", want: time.Unix(0, 0).UTC(), wantOK: true},
		{name: "negative", value: "-5"},
		{name: "garbage", value: "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(domain.SourceDateEpochEnv, tt.value)
			got, ok := domain.SourceDateEpoch()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
