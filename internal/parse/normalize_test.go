package parse

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeScore(t *testing.T) {
	cases := []struct {
		in       string
		want     int64
		repaired bool
		ok       bool
	}{
		{"7,948,885", 7948885, false, true},
		{"7.948.885", 7948885, false, true},
		{"1 234 567", 1234567, false, true},
		{"12O45", 12045, true, true},       // letter O for zero
		{"1I8,S43", 118543, true, true},    // I->1, S->5
		{"B42,100", 842100, true, true},    // B->8
		{"(7,948,885)", 7948885, false, true}, // edge trim
		{"；；", 0, false, false},
		{"", 0, false, false},
		{"abc", 0, false, false},
	}
	for _, tc := range cases {
		got, repaired, ok := NormalizeScore(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %q", tc.in)
			assert.Equal(t, tc.repaired, repaired, "input %q", tc.in)
		}
	}
}

func TestNormalizeScoreFullWidth(t *testing.T) {
	got, _, ok := NormalizeScore("１２３４５６")
	require.True(t, ok)
	assert.Equal(t, int64(123456), got)
}

func TestNormalizeScoreIdempotent(t *testing.T) {
	for _, in := range []string{"7,948,885", "12O45", "B42,100", "  9S1,00O "} {
		first, _, ok := NormalizeScore(in)
		require.True(t, ok, "input %q", in)
		second, repaired, ok := NormalizeScore(strconv.FormatInt(first, 10))
		require.True(t, ok)
		assert.Equal(t, first, second, "input %q", in)
		assert.False(t, repaired)
	}
}

func TestRepairDigitsLeavesCleanRunsAlone(t *testing.T) {
	assert.Equal(t, "1234567890", RepairDigits("1234567890"))
}
