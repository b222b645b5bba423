// Package patientcode issues date-scoped patient codes of the form
// YYYYMMDD-SSS. At most MaxSequence codes exist per calendar day.
package patientcode

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	MaxSequence = 999
	DateLayout  = "20060102"
)

var codePattern = regexp.MustCompile(`^\d{8}-\d{3}$`)

// IsValidFormat reports whether s is shaped like a patient code. It does not
// check that the date exists.
func IsValidFormat(s string) bool {
	return codePattern.MatchString(s)
}

// Parse splits a code into its issue date and sequence. ok is false for
// malformed codes, impossible dates and sequences outside 1..MaxSequence.
func Parse(s string) (date time.Time, sequence int, ok bool) {
	if !IsValidFormat(s) {
		return time.Time{}, 0, false
	}
	date, err := time.Parse(DateLayout, s[:8])
	if err != nil {
		return time.Time{}, 0, false
	}
	sequence, err = strconv.Atoi(s[9:])
	if err != nil || sequence < 1 || sequence > MaxSequence {
		return time.Time{}, 0, false
	}
	return date, sequence, true
}

// Format renders datePrefix and sequence as a code, zero padding the sequence.
func Format(datePrefix string, sequence int) string {
	return fmt.Sprintf("%s-%03d", datePrefix, sequence)
}

func DatePrefix(t time.Time) string {
	return t.Format(DateLayout)
}

// nextSequence derives the sequence following latest. Anything unparsable
// restarts numbering at 1.
func nextSequence(latest string) (next int, corrupt bool) {
	if len(latest) < 3 {
		return 1, true
	}
	seq, err := strconv.Atoi(latest[len(latest)-3:])
	if err != nil || seq < 1 || seq > MaxSequence {
		return 1, true
	}
	return seq + 1, false
}
