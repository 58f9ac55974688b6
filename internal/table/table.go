// Package table implements the table inspector (C5): reading and
// normalizing the on-page form cells, deciding whether a date needs
// clicking, and validating the report-sending preconditions.
package table

import (
	"regexp"
	"strings"
)

// Cells holds the two labeled time cells read from the right-hand panel
// (spec §4.5).
type Cells struct {
	FirstTime string
	LastTime  string
}

// timePattern matches a normalized HH:MM value.
var timePattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// Normalize applies the empty-value rules from spec §4.5: "", "-", "—",
// "--:--", or any text containing "클릭" (click) is treated as empty;
// anything matching HH:MM is kept; anything else is treated as empty too,
// since only a valid time is meaningful to the decision matrix.
func Normalize(raw string) string {
	v := strings.TrimSpace(raw)
	switch v {
	case "", "-", "—", "--:--":
		return ""
	}
	if strings.Contains(v, "클릭") {
		return ""
	}
	if timePattern.MatchString(v) {
		return v
	}
	return ""
}

// Reading is the normalized view of Cells plus the derived click
// requirements (spec §4.5).
type Reading struct {
	FirstTime       string
	LastTime        string
	NeedsFirstClick bool
	NeedsLastClick  bool
}

// Read normalizes raw cell text and derives which slots still need
// filling.
func Read(raw Cells) Reading {
	first := Normalize(raw.FirstTime)
	last := Normalize(raw.LastTime)
	return Reading{
		FirstTime:       first,
		LastTime:        last,
		NeedsFirstClick: first == "",
		NeedsLastClick:  last == "",
	}
}

// Action is the decision the table inspector reaches for a date (spec
// §4.5's matrix).
type Action string

const (
	ActionAlreadyFilled Action = "already_filled"
	ActionNoIrrigation  Action = "no_irrigation"
	ActionClickRequired Action = "click_required"
)

// Decide applies the decision matrix: both cells already filled means
// leave it alone; no events found and at least one cell empty means record
// no-irrigation; otherwise a click is required for the missing slot(s).
func Decide(r Reading, eventCount int) Action {
	if !r.NeedsFirstClick && !r.NeedsLastClick {
		return ActionAlreadyFilled
	}
	if eventCount == 0 {
		return ActionNoIrrigation
	}
	return ActionClickRequired
}

// ReportTable is the full set of cells the report-sending validation
// reads (spec §4.5, additional validation).
type ReportTable struct {
	NightMoistureDeviation string // 야간 함수율 편차
	LastIrrigationTime     string // 마지막 급액 시간
	FirstIrrigationTime    string // 첫 급액 시간
	Sunrise                string // 일출 시
}

// ValidateForReport enforces the four equalities spec §4.5 requires
// before the "리포트 생성" button may be activated. It returns ok=true
// and an empty reason when all hold, or ok=false with the concatenated
// failure reasons otherwise.
func ValidateForReport(t ReportTable) (ok bool, reason string) {
	var failures []string

	if strings.TrimSpace(t.NightMoistureDeviation) != "-" {
		failures = append(failures, `야간 함수율 편차 must be "-"`)
	}
	if strings.TrimSpace(t.LastIrrigationTime) != "-" {
		failures = append(failures, `마지막 급액 시간 must be "-"`)
	}
	first := strings.TrimSpace(t.FirstIrrigationTime)
	if first == "-" || first == "" {
		failures = append(failures, `첫 급액 시간 must be set`)
	}
	sunrise := strings.TrimSpace(t.Sunrise)
	if sunrise == "-" || sunrise == "" {
		failures = append(failures, `일출 시 must be set`)
	}

	if len(failures) == 0 {
		return true, ""
	}
	return false, joinReasons(failures)
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}

// String implements fmt.Stringer for Action so orchestrator logs read
// naturally.
func (a Action) String() string { return string(a) }
