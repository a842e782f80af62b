package whatsminer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// v3Constraint selects firmware that serves API v3.
var v3Constraint = mustConstraint(">= 2024.11.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseFirmwareVersion turns a fw_ver string such as "20240912.17.REL"
// into the version year.month.day.
func ParseFirmwareVersion(fw string) (*semver.Version, error) {
	date, _, _ := strings.Cut(strings.TrimSpace(fw), ".")
	if len(date) != 8 {
		return nil, fmt.Errorf("%w: %q", ErrBadVersion, fw)
	}
	if _, err := strconv.Atoi(date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadVersion, fw)
	}
	year, _ := strconv.Atoi(date[:4])
	month, _ := strconv.Atoi(date[4:6])
	day, _ := strconv.Atoi(date[6:])
	return semver.NewVersion(fmt.Sprintf("%d.%d.%d", year, month, day))
}

// UsesV3 reports whether firmware version v speaks API v3.
func UsesV3(v *semver.Version) bool {
	return v != nil && v3Constraint.Check(v)
}
