package evaluation

import "strings"

// Tenet is one of the nine fixed usability qualities a design is scored on.
type Tenet struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TrapDefinition is a reference entry of the trap catalogue.
type TrapDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Tenet       string `json:"tenet"`
	Description string `json:"description"`
}

// Tenets in display order.
var Tenets = []Tenet{
	{"Understandable", "Users can figure out what they see and what it does."},
	{"Physical", "Controls are comfortable to reach, target and operate."},
	{"Responsive", "The interface reacts quickly and shows what is happening."},
	{"Efficient", "Goals are reached with the least effort and repetition."},
	{"Forgiving", "Mistakes are prevented, explained and easy to undo."},
	{"Discreet", "Users are not interrupted or exposed without reason."},
	{"Protective", "Data, money and reputation are guarded by default."},
	{"Habituating", "Patterns stay consistent so skills carry over."},
	{"Beautiful", "The visual design feels polished and intentional."},
}

// Traps is the catalogue of 25 anti-patterns, each bound to one tenet.
var Traps = []TrapDefinition{
	{"invisible-element", "Invisible Element", "Understandable", "A needed control or piece of information is not visible."},
	{"effectively-invisible-element", "Effectively Invisible Element", "Understandable", "Something is on screen but users will not notice it."},
	{"uncomprehended-element", "Uncomprehended Element", "Understandable", "Users see an element but cannot tell what it means or does."},
	{"inviting-dead-end", "Inviting Dead End", "Understandable", "An element looks like the way forward but leads nowhere useful."},
	{"poor-grouping", "Poor Grouping", "Understandable", "Related items are separated or unrelated items are grouped."},
	{"memory-challenge", "Memory Challenge", "Understandable", "Users must remember information from an earlier step."},
	{"accidental-activation", "Accidental Activation", "Physical", "Targets are easy to trigger by mistake."},
	{"physical-challenge", "Physical Challenge", "Physical", "Controls are small, distant or need precise movement."},
	{"slow-or-no-response", "Slow or No Response", "Responsive", "Actions take too long or give no acknowledgement."},
	{"unclear-status", "Unclear Status", "Responsive", "Users cannot tell whether work is pending, done or failed."},
	{"information-overload", "Information Overload", "Efficient", "Too much content competes for attention at once."},
	{"unnecessary-step", "Unnecessary Step", "Efficient", "The flow asks for a step that adds no value."},
	{"gratuitous-redundancy", "Gratuitous Redundancy", "Efficient", "The same input or content is requested or shown repeatedly."},
	{"tedious-input", "Tedious Input", "Efficient", "Data entry is longer or more precise than the task needs."},
	{"irreversible-action", "Irreversible Action", "Forgiving", "A destructive action cannot be undone or lacks confirmation."},
	{"unhelpful-error-message", "Unhelpful Error Message", "Forgiving", "Errors do not say what went wrong or how to recover."},
	{"unexpected-data-loss", "Unexpected Data Loss", "Forgiving", "Work in progress can vanish without warning."},
	{"gratuitous-interruption", "Gratuitous Interruption", "Discreet", "Pop-ups or alerts break concentration without need."},
	{"unwanted-disclosure", "Unwanted Disclosure", "Discreet", "Private information is shown where others can see it."},
	{"unprotected-data", "Unprotected Data", "Protective", "Sensitive data or actions lack safeguards."},
	{"risky-default", "Risky Default", "Protective", "The preselected option works against the user's interest."},
	{"inconsistent-pattern", "Inconsistent Pattern", "Habituating", "Similar things look or behave differently."},
	{"misleading-signal", "Misleading Signal", "Habituating", "A familiar cue is used with an unexpected meaning."},
	{"shifting-layout", "Shifting Layout", "Habituating", "Controls move between visits or while the page loads."},
	{"unattractive-design", "Unattractive Design", "Beautiful", "Visual execution looks careless, cluttered or dated."},
}

// Severity code P1 (most severe) .. P5.
type Severity string

const (
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
	SeverityP4 Severity = "P4"
	SeverityP5 Severity = "P5"
)

// SeverityInfo describes how a severity code is presented.
type SeverityInfo struct {
	Code  Severity `json:"code"`
	Label string   `json:"label"`
	Color string   `json:"color"`
}

// Severities ordered from most to least severe.
var Severities = []SeverityInfo{
	{SeverityP1, "Critical", "#dc2626"},
	{SeverityP2, "High", "#ea580c"},
	{SeverityP3, "Medium", "#ca8a04"},
	{SeverityP4, "Low", "#2563eb"},
	{SeverityP5, "Minor", "#6b7280"},
}

// Info returns presentation data; ok is false for unknown codes.
func (s Severity) Info() (SeverityInfo, bool) {
	for _, info := range Severities {
		if info.Code == s {
			return info, true
		}
	}
	return SeverityInfo{}, false
}

// Rank is 1 for P1 and 5 for P5, 0 when unknown.
func (s Severity) Rank() int {
	for i, info := range Severities {
		if info.Code == s {
			return i + 1
		}
	}
	return 0
}

// ParseSeverity accepts "P1", "p1" or " P1 ".
func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	if s.Rank() == 0 {
		return "", false
	}
	return s, true
}

// CanonicalTenet maps a tenet name to its canonical spelling, ignoring case.
func CanonicalTenet(name string) (string, bool) {
	n := strings.TrimSpace(name)
	for _, t := range Tenets {
		if strings.EqualFold(t.Name, n) {
			return t.Name, true
		}
	}
	return "", false
}

// ParseVerdict normalizes the verdict spellings models tend to produce.
func ParseVerdict(raw string) (Verdict, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	switch key {
	case "pass", "passed":
		return VerdictPass, true
	case "needswork":
		return VerdictNeedsWork, true
	case "critical":
		return VerdictCritical, true
	}
	return "", false
}
