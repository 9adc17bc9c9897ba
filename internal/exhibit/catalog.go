package exhibit

// Unknown is the exhibit code used when no matcher recognizes a file
const Unknown = "unknown"

// Exhibit classes
const (
	ClassSummary   = "summary"
	ClassDetail    = "detail"
	ClassNarrative = "narrative"
)

// Type describes one exhibit type
type Type struct {
	Code        string
	DisplayName string
	Class       string
	Description string
}

// IsNarrative reports whether pages of this exhibit carry narrative sections
func (t Type) IsNarrative() bool {
	return t.Class == ClassNarrative
}

// Types is the exhibit catalog seeded into the exhibit_types table
var Types = []Type{
	{Code: "p1", DisplayName: "P-1", Class: ClassSummary, Description: "Procurement Programs summary"},
	{Code: "p1r", DisplayName: "P-1R", Class: ClassSummary, Description: "Procurement Programs, Reserve Components"},
	{Code: "p5", DisplayName: "P-5", Class: ClassDetail, Description: "Cost Analysis"},
	{Code: "p21", DisplayName: "P-21", Class: ClassDetail, Description: "Production Schedule"},
	{Code: "p40", DisplayName: "P-40", Class: ClassNarrative, Description: "Budget Line Item Justification"},
	{Code: "r1", DisplayName: "R-1", Class: ClassSummary, Description: "RDT&E Programs summary"},
	{Code: "r2", DisplayName: "R-2", Class: ClassNarrative, Description: "RDT&E Budget Item Justification"},
	{Code: "r2a", DisplayName: "R-2A", Class: ClassNarrative, Description: "RDT&E Project Justification"},
	{Code: "r3", DisplayName: "R-3", Class: ClassDetail, Description: "RDT&E Project Cost Analysis"},
	{Code: "r4", DisplayName: "R-4", Class: ClassDetail, Description: "RDT&E Program Schedule Profile"},
	{Code: "r4a", DisplayName: "R-4A", Class: ClassDetail, Description: "RDT&E Schedule Details"},
	{Code: "o1", DisplayName: "O-1", Class: ClassSummary, Description: "Operation and Maintenance summary"},
	{Code: "op5", DisplayName: "OP-5", Class: ClassNarrative, Description: "O&M Detail by Subactivity Group"},
	{Code: "m1", DisplayName: "M-1", Class: ClassSummary, Description: "Military Personnel summary"},
	{Code: "c1", DisplayName: "C-1", Class: ClassSummary, Description: "Military Construction summary"},
	{Code: "rf1", DisplayName: "RF-1", Class: ClassSummary, Description: "Revolving and Management Funds summary"},
}

// Lookup returns the catalog entry for a code
func Lookup(code string) (Type, bool) {
	for _, t := range Types {
		if t.Code == code {
			return t, true
		}
	}
	return Type{}, false
}

// IsNarrative reports whether the exhibit code is a narrative exhibit
func IsNarrative(code string) bool {
	t, ok := Lookup(code)
	return ok && t.IsNarrative()
}

// Abbreviations maps service-specific appropriation book abbreviations to a
// canonical exhibit code
var Abbreviations = map[string]string{
	"apn":    "p1",  // Aircraft Procurement, Navy
	"wpn":    "p1",  // Weapons Procurement, Navy
	"scn":    "p1",  // Shipbuilding and Conversion, Navy
	"opn":    "p1",  // Other Procurement, Navy
	"pmc":    "p1",  // Procurement, Marine Corps
	"pann":   "p1",  // Procurement of Ammunition, Navy and Marine Corps
	"rdten":  "r2",  // RDT&E, Navy
	"rdtea":  "r2",  // RDT&E, Army
	"rdteaf": "r2",  // RDT&E, Air Force
	"rdtedw": "r2",  // RDT&E, Defense-Wide
	"omn":    "o1",  // Operation and Maintenance, Navy
	"ommc":   "o1",  // Operation and Maintenance, Marine Corps
	"mpn":    "m1",  // Military Personnel, Navy
	"mpmc":   "m1",  // Military Personnel, Marine Corps
	"rpn":    "m1",  // Reserve Personnel, Navy
	"mcon":   "c1",  // Military Construction
	"ndsf":   "rf1", // National Defense Sealift Fund
	"nwcf":   "rf1", // Navy Working Capital Fund
}

// BudgetCycle is one entry of the budget_cycles reference table
type BudgetCycle struct {
	Code  string
	Label string
}

// BudgetCycles lists the recognized budget cycles
var BudgetCycles = []BudgetCycle{
	{Code: "PB", Label: "President's Budget"},
	{Code: "ENACTED", Label: "Enacted"},
	{Code: "CR", Label: "Continuing Resolution"},
	{Code: "SUPPLEMENTAL", Label: "Supplemental"},
	{Code: "AMENDMENT", Label: "Budget Amendment"},
	{Code: "RECONCILIATION", Label: "Reconciliation"},
	{Code: "ACTUAL", Label: "Actuals"},
}
