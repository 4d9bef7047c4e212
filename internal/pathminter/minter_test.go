package pathminter

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keyPattern = regexp.MustCompile(`^optimized/\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}-\d{3}_.+_[0-9a-f-]{36}\.jpeg$`)

func TestMintShape(t *testing.T) {
	key := Mint("jpeg")
	assert.Regexp(t, keyPattern, key)
}

func TestMintIsCollisionFree(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		key := Mint("webp")
		require.False(t, seen[key], "duplicate key minted: %s", key)
		seen[key] = true
	}
}

func TestMintCarriesFormat(t *testing.T) {
	for _, format := range []string{"jpeg", "png", "webp", "avif", "auto"} {
		assert.Regexp(t, `\.`+format+`$`, Mint(format))
	}
}

func TestUTCOffsetWholeHours(t *testing.T) {
	tests := []struct {
		name string
		zone *time.Location
		want string
	}{
		{"utc", time.UTC, "+0"},
		{"plus two", time.FixedZone("CEST", 2*3600), "+2"},
		{"minus five", time.FixedZone("EST", -5*3600), "-5"},
		{"half hour", time.FixedZone("IST", 5*3600+1800), "+5:30"},
		{"minus half", time.FixedZone("MART", -(9*3600 + 1800)), "-9:30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2024, 6, 1, 12, 0, 0, 0, tt.zone)
			assert.Equal(t, tt.want, utcOffset(now))
		})
	}
}

func TestMintAtUsesLocalClock(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	now := time.Date(2024, 6, 1, 13, 45, 9, 123*int(time.Millisecond), loc)

	key := mintAt(now, "png")
	assert.Contains(t, key, "optimized/2024-06-01-13-45-09-123_+2_")
	assert.Regexp(t, `\.png$`, key)
}
