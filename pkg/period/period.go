// Package period computes the observing-night token substituted into
// configured paths. Data collection runs overnight, so the bucket rolls
// over at a fixed local hour (noon by default) rather than at midnight:
// frames written at 03:00 belong to the previous calendar day's night.
package period

import (
	"regexp"
	"strings"
	"time"

	"gitlab.com/tozd/go/errors"
)

// Token is the literal placeholder replaced in watch and remote paths.
const Token = "{night}"

// nightFormat is the 8-digit date layout used for night directories.
const nightFormat = "20060102"

// DefaultBoundaryHour is the local hour at which a new night begins.
const DefaultBoundaryHour = 12

var nightRe = regexp.MustCompile(`^\d{8}$`)

// Current returns the night token for the given wall-clock time. Times
// before the boundary hour still belong to the previous day's night.
func Current(now time.Time, boundaryHour int) string {
	if boundaryHour < 0 || boundaryHour > 23 {
		boundaryHour = DefaultBoundaryHour
	}
	if now.Hour() < boundaryHour {
		now = now.AddDate(0, 0, -1)
	}
	return now.Format(nightFormat)
}

// Validate checks that an explicit night override is an 8-digit date.
func Validate(night string) error {
	if !nightRe.MatchString(night) {
		return errors.Errorf("invalid night %q: expected YYYYMMDD", night)
	}
	if _, err := time.Parse(nightFormat, night); err != nil {
		return errors.Errorf("invalid night %q: %w", night, err)
	}
	return nil
}

// Expand substitutes every occurrence of Token in path with the night
// string. Pure string replacement; the result is not checked for existence.
func Expand(path, night string) string {
	return strings.ReplaceAll(path, Token, night)
}
