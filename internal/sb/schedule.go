package sb

import (
	"fmt"
	"strings"
)

// Schedule selects which file list is archived and which key prefix the
// archive lands under.
type Schedule int

const (
	Daily Schedule = iota + 1
	Weekly
	Monthly
)

// Schedules lists every schedule in display order.
var Schedules = []Schedule{Daily, Weekly, Monthly}

// ParseSchedule maps "daily", "weekly" or "monthly" to a Schedule.
func ParseSchedule(s string) (Schedule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	case "monthly":
		return Monthly, nil
	default:
		return 0, fmt.Errorf("unknown schedule %q (want daily, weekly or monthly)", s)
	}
}

func (s Schedule) String() string {
	switch s {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return fmt.Sprintf("schedule(%d)", int(s))
	}
}
