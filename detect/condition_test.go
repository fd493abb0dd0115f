package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMetricName(t *testing.T) {
	tests := []struct {
		condition string
		want      string
	}{
		{"failed_logins > 10", "failed_logins"},
		{"cpu_usage>=80", "cpu_usage>=80"}, // no whitespace: whole token
		{"  disk_free < 5", "disk_free"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractMetricName(tt.condition), "condition %q", tt.condition)
	}
}

func TestCompareValue(t *testing.T) {
	tests := []struct {
		operator  string
		value     float64
		threshold float64
		want      bool
	}{
		{">", 11, 10, true},
		{">", 10, 10, false},
		{">=", 10, 10, true},
		{"<", 5, 10, true},
		{"<", 10, 10, false},
		{"<=", 10, 10, true},
		{"==", 10, 10, true},
		{"==", 10.5, 10, false},
		{"!", 99, 10, false},
	}
	for _, tt := range tests {
		got := CompareValue(tt.operator, tt.value, tt.threshold)
		assert.Equal(t, tt.want, got, "%v %s %v", tt.value, tt.operator, tt.threshold)
	}
}
