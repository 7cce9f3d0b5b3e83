package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	const now = int64(1_700_000_000_000)
	const skew = int64(300_000)

	tests := []struct {
		name    string
		claimed int64
		want    int64
	}{
		{"zero collapses", 0, 0},
		{"negative collapses", -42, 0},
		{"in range passes through", now - 1000, now - 1000},
		{"exactly now passes through", now, now},
		{"within skew passes through", now + skew, now + skew},
		{"beyond skew clamps to ceiling", now + skew + 1, now + skew},
		{"far future clamps to ceiling", now + 86_400_000, now + skew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp(tt.claimed, now, skew))
		})
	}
}
