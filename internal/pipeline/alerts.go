package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// ThreatTable maps class names to the alert they raise
type ThreatTable map[string]ThreatRule

// defaultThreats is shared by every run and never written after init
var defaultThreats = ThreatTable{
	"person":       {Type: AlertIntrusion, Severity: SeverityHigh},
	"car":          {Type: AlertIntrusion, Severity: SeverityMedium},
	"truck":        {Type: AlertIntrusion, Severity: SeverityMedium},
	"motorcycle":   {Type: AlertIntrusion, Severity: SeverityMedium},
	"bus":          {Type: AlertIntrusion, Severity: SeverityMedium},
	"bicycle":      {Type: AlertIntrusion, Severity: SeverityLow},
	"dog":          {Type: AlertMotion, Severity: SeverityLow},
	"cat":          {Type: AlertMotion, Severity: SeverityLow},
	"bird":         {Type: AlertMotion, Severity: SeverityLow},
	"fire hydrant": {Type: AlertOther, Severity: SeverityLow},
	"knife":        {Type: AlertVandalism, Severity: SeverityHigh},
	"scissors":     {Type: AlertVandalism, Severity: SeverityHigh},
	"backpack":     {Type: AlertIntrusion, Severity: SeverityMedium},
	"handbag":      {Type: AlertIntrusion, Severity: SeverityMedium},
	"suitcase":     {Type: AlertIntrusion, Severity: SeverityMedium},
}

// DefaultThreatTable returns a copy of the monument-protection threat table
func DefaultThreatTable() ThreatTable {
	out := make(ThreatTable, len(defaultThreats))
	for k, v := range defaultThreats {
		out[k] = v
	}
	return out
}

// Lookup returns the rule for class, if any
func (t ThreatTable) Lookup(class string) (ThreatRule, bool) {
	rule, ok := t[class]
	return rule, ok
}

// Classes returns the ruled class names, sorted
func (t ThreatTable) Classes() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AlertEngine raises at most one alert per (alert type, class) for a run
type AlertEngine struct {
	table  ThreatTable
	seen   map[string]struct{}
	alerts []Alert
}

// NewAlertEngine creates an engine for one run. A nil table uses the default one.
func NewAlertEngine(table ThreatTable) *AlertEngine {
	if table == nil {
		table = defaultThreats
	}
	return &AlertEngine{
		table:  table,
		seen:   make(map[string]struct{}),
		alerts: make([]Alert, 0),
	}
}

// Observe checks one detection and returns the alert it raised, if any.
// confidence is the detector's unrounded score, used for the message percentage.
func (e *AlertEngine) Observe(d Detection, confidence float64) (Alert, bool) {
	rule, ok := e.table.Lookup(d.Class)
	if !ok {
		return Alert{}, false
	}

	key := alertKey(rule.Type, d.Class)
	if _, dup := e.seen[key]; dup {
		return Alert{}, false
	}
	e.seen[key] = struct{}{}

	alert := Alert{
		Type:     rule.Type,
		Severity: rule.Severity,
		Message:  alertMessage(d, confidence),
	}
	e.alerts = append(e.alerts, alert)
	return alert, true
}

// Alerts returns the raised alerts in the order they fired
func (e *AlertEngine) Alerts() []Alert {
	return e.alerts
}

func alertKey(t AlertType, class string) string {
	return string(t) + "_" + class
}

// alertMessage uses the already-rounded time and the raw confidence as a whole percentage
func alertMessage(d Detection, confidence float64) string {
	pct := strconv.FormatFloat(confidence*100, 'f', 0, 64)
	return fmt.Sprintf("%s detected at %ss (confidence %s%%)", capitalize(d.Class), d.Time.String(), pct)
}

// capitalize upper-cases the first letter and lower-cases the rest
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
