package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want []string
	}{
		{raw: "", want: nil},
		{raw: "localhost:9092", want: []string{"localhost:9092"}},
		{raw: " a:9092 , ,b:9092 ", want: []string{"a:9092", "b:9092"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBrokers(tt.raw), tt.raw)
	}
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	t.Parallel()

	_, _, err := CreateChannel(watermill.NopLogger{}, "autoflow", nil, false)
	require.ErrorIs(t, err, ErrNoBrokers)
}
