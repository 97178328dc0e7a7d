package sacd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00.00.000"},
		{1.25, "00:00.01.250"},
		{61.5, "00:01.01.500"},
		{3725.5, "01:02.05.500"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, timestamp(tt.seconds))
	}
}
