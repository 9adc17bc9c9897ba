package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dshills/budgetdb/pkg/types"
)

// Role is the canonical meaning of a spreadsheet column
type Role string

const (
	RoleNone                Role = ""
	RoleAccount             Role = "account"
	RoleAccountTitle        Role = "account_title"
	RoleOrganization        Role = "organization"
	RoleBudgetActivity      Role = "budget_activity"
	RoleBudgetActivityTitle Role = "budget_activity_title"
	RoleSubActivity         Role = "sub_activity"
	RoleSubActivityTitle    Role = "sub_activity_title"
	RoleLineItem            Role = "line_item"
	RoleLineItemTitle       Role = "line_item_title"
	RolePENumber            Role = "pe_number"
	RoleClassification      Role = "classification"
	// RoleFiscalYear marks an amount or quantity column; the column name is
	// carried separately.
	RoleFiscalYear Role = "fiscal_year"
)

type headerRule struct {
	role     Role
	synonyms []string
}

// baseRules are evaluated in order. Titles come before codes because a title
// header usually contains the code header as a substring.
var baseRules = []headerRule{
	{RoleSubActivityTitle, []string{"budget sub activity title", "sub activity title", "subactivity title", "bsa title", "sag title", "sub activity group title"}},
	{RoleBudgetActivityTitle, []string{"budget activity title", "ba title", "activity title"}},
	{RoleAccountTitle, []string{"account title", "appropriation title", "appn title", "appropriation account title"}},
	{RoleLineItemTitle, []string{"line item title", "program element title", "pe title", "item title", "line item nomenclature", "nomenclature", "title", "description"}},
	{RolePENumber, []string{"program element number", "pe number", "pe no", "program element", "pe"}},
	{RoleSubActivity, []string{"budget sub activity", "sub activity group", "sub activity", "subactivity", "bsa", "sag"}},
	{RoleBudgetActivity, []string{"budget activity", "ba"}},
	{RoleLineItem, []string{"line item number", "line item", "line number", "line no", "item number", "li"}},
	{RoleAccount, []string{"appropriation account", "treasury account", "account", "appropriation", "appn"}},
	{RoleOrganization, []string{"organization", "service", "component", "agency"}},
	{RoleClassification, []string{"security classification", "classification", "class"}},
}

// exhibitRules are consulted before baseRules for the keyed exhibit type
var exhibitRules = map[string][]headerRule{
	"p1":  {{RoleLineItem, []string{"p 1 line item", "p 1 line"}}},
	"p1r": {{RoleLineItem, []string{"p 1r line item", "p 1 line item", "p 1 line"}}},
	"r1":  {{RoleLineItem, []string{"r 1 line item", "r 1 line"}}},
	"o1":  {{RoleSubActivityTitle, []string{"sag title", "sag description"}}},
	"m1":  {{RoleSubActivityTitle, []string{"budget sub activity title", "bsa description"}}},
	"c1": {
		{RoleLineItemTitle, []string{"project title", "construction project"}},
		{RoleLineItem, []string{"project number", "project no"}},
		{RoleSubActivityTitle, []string{"installation", "location"}},
		{RoleSubActivity, []string{"state", "country"}},
	},
	"rf1": {{RoleSubActivityTitle, []string{"business area"}}},
}

var (
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
	fyHeaderRE    = regexp.MustCompile(`\bfy\s?((?:19|20)\d{2}|\d{2})\b`)
	quantityWords = []string{"quantity", "qty", "quantities", "units"}
	phaseWords    = []struct{ word, phase string }{
		{"actuals", "actual"},
		{"actual", "actual"},
		{"enacted", "enacted"},
		{"continuing resolution", "cr"},
		{"cr", "cr"},
		{"request", "request"},
		{"requested", "request"},
		{"pb", "request"},
		{"estimate", "estimate"},
		{"est", "estimate"},
	}
	modifierWords = []string{"base", "oco", "supplemental", "reconciliation", "total"}
)

// normalizeHeader lowercases and collapses punctuation to single spaces
func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// hasWords reports whether phrase appears in the normalized header on word
// boundaries.
func hasWords(header, phrase string) bool {
	return strings.Contains(" "+header+" ", " "+phrase+" ")
}

// ColumnMapping is the role assignment for one header row
type ColumnMapping struct {
	Roles     map[int]Role
	FYColumns map[int]string
	Headers   []string
}

// Score is the number of recognized columns
func (m ColumnMapping) Score() int {
	return len(m.Roles) + len(m.FYColumns)
}

// FYColumnNames returns the distinct FY column names in column order
func (m ColumnMapping) FYColumnNames() []string {
	var names []string
	for i := range m.Headers {
		if name, ok := m.FYColumns[i]; ok {
			names = append(names, name)
		}
	}
	return names
}

// MapHeaders assigns a canonical role or an FY column name to each header
// cell. Each role and FY column is assigned to its first matching column;
// later duplicates stay unmapped and land in extra_fields.
func MapHeaders(headers []string, exhibitCode string) ColumnMapping {
	m := ColumnMapping{
		Roles:     make(map[int]Role),
		FYColumns: make(map[int]string),
		Headers:   headers,
	}
	usedRoles := make(map[Role]bool)
	usedFY := make(map[string]bool)
	rules := append(append([]headerRule{}, exhibitRules[exhibitCode]...), baseRules...)

	for i, raw := range headers {
		h := normalizeHeader(raw)
		if h == "" {
			continue
		}
		if name, ok := FYColumnName(raw); ok {
			if !usedFY[name] {
				usedFY[name] = true
				m.FYColumns[i] = name
			}
			continue
		}
		if role := matchRole(h, rules); role != RoleNone && !usedRoles[role] {
			usedRoles[role] = true
			m.Roles[i] = role
		}
	}
	return m
}

func matchRole(header string, rules []headerRule) Role {
	for _, rule := range rules {
		for _, syn := range rule.synonyms {
			if hasWords(header, syn) {
				return rule.role
			}
		}
	}
	return RoleNone
}

// FYColumnName converts a fiscal year header such as "FY2026 Request
// Quantity" into its column name, quantity_fy2026_request. Quantity is
// detected before amount so the two stay distinct for the same year and
// phase. Headers without a phase word get the phase "total".
func FYColumnName(header string) (string, bool) {
	h := normalizeHeader(header)
	m := fyHeaderRE.FindStringSubmatch(h)
	if m == nil {
		return "", false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	if year < 100 {
		year += 2000
	}

	kind := "amount"
	for _, w := range quantityWords {
		if hasWords(h, w) {
			kind = "quantity"
			break
		}
	}

	var parts []string
	for _, pw := range phaseWords {
		if hasWords(h, pw.word) {
			parts = append(parts, pw.phase)
			break
		}
	}
	for _, mod := range modifierWords {
		if hasWords(h, mod) {
			parts = append(parts, mod)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "total")
	}

	name := fmt.Sprintf("%s_fy%d_%s", kind, year, strings.Join(parts, "_"))
	return name, types.ValidFYColumn(name)
}
