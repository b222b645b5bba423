package patientcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsValidFormat(t *testing.T) {
	valid := []string{"20231119-001", "20231119-999", "19991231-042"}
	invalid := []string{"", "2023111-001", "20231119-01", "20231119-0001", "20231119_001", "2023111a-001", " 20231119-001", "J001"}

	for _, s := range valid {
		assert.True(t, IsValidFormat(s), s)
	}
	for _, s := range invalid {
		assert.False(t, IsValidFormat(s), s)
	}
}

func TestParse(t *testing.T) {
	date, seq, ok := Parse("20231119-007")
	assert.True(t, ok)
	assert.Equal(t, 7, seq)
	assert.Equal(t, time.Date(2023, time.November, 19, 0, 0, 0, 0, time.UTC), date)

	for _, s := range []string{"20231340-001", "20230230-001", "20231119-000", "garbage", ""} {
		_, _, ok := Parse(s)
		assert.False(t, ok, s)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	prefix := DatePrefix(time.Date(2024, time.February, 29, 15, 4, 5, 0, time.UTC))
	assert.Equal(t, "20240229", prefix)

	for seq := 1; seq <= MaxSequence; seq++ {
		code := Format(prefix, seq)
		if !IsValidFormat(code) {
			t.Fatalf("Format(%q, %d) = %q is not a valid code", prefix, seq, code)
		}
		_, got, ok := Parse(code)
		if !ok || got != seq {
			t.Fatalf("Parse(%q) = %d, %v; want %d", code, got, ok, seq)
		}
	}
}

func TestNextSequence(t *testing.T) {
	cases := []struct {
		latest  string
		next    int
		corrupt bool
	}{
		{"20231119-001", 2, false},
		{"20231119-998", 999, false},
		{"20231119-999", 1000, false},
		{"20231119-abc", 1, true},
		{"20231119-000", 1, true},
		{"x", 1, true},
	}
	for _, tc := range cases {
		next, corrupt := nextSequence(tc.latest)
		assert.Equal(t, tc.next, next, tc.latest)
		assert.Equal(t, tc.corrupt, corrupt, tc.latest)
	}
}
