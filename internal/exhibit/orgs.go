package exhibit

import (
	"path/filepath"
	"strings"
)

// Organization is one entry of the services_agencies reference table
type Organization struct {
	Code     string
	Name     string
	Category string
}

// Organizations lists the military departments and defense agencies
var Organizations = []Organization{
	{Code: "A", Name: "Army", Category: "military_department"},
	{Code: "N", Name: "Navy", Category: "military_department"},
	{Code: "M", Name: "Marine Corps", Category: "military_department"},
	{Code: "F", Name: "Air Force", Category: "military_department"},
	{Code: "S", Name: "Space Force", Category: "military_department"},
	{Code: "D", Name: "Defense-Wide", Category: "defense_wide"},
	{Code: "DLA", Name: "Defense Logistics Agency", Category: "defense_agency"},
	{Code: "DARPA", Name: "Defense Advanced Research Projects Agency", Category: "defense_agency"},
	{Code: "MDA", Name: "Missile Defense Agency", Category: "defense_agency"},
	{Code: "SOCOM", Name: "Special Operations Command", Category: "defense_agency"},
	{Code: "DHA", Name: "Defense Health Agency", Category: "defense_agency"},
}

var orgAliases = map[string]string{
	"a":            "Army",
	"army":         "Army",
	"usa":          "Army",
	"us_army":      "Army",
	"n":            "Navy",
	"navy":         "Navy",
	"usn":          "Navy",
	"us_navy":      "Navy",
	"don":          "Navy",
	"m":            "Marine Corps",
	"usmc":         "Marine Corps",
	"marines":      "Marine Corps",
	"marine corps": "Marine Corps",
	"f":            "Air Force",
	"af":           "Air Force",
	"usaf":         "Air Force",
	"air force":    "Air Force",
	"us_air_force": "Air Force",
	"airforce":     "Air Force",
	"s":            "Space Force",
	"ussf":         "Space Force",
	"space force":  "Space Force",
	"spaceforce":   "Space Force",
	"d":            "Defense-Wide",
	"dw":           "Defense-Wide",
	"defw":         "Defense-Wide",
	"defense-wide": "Defense-Wide",
	"defense wide": "Defense-Wide",
	"defense_wide": "Defense-Wide",
	"dla":          "Defense Logistics Agency",
	"darpa":        "Defense Advanced Research Projects Agency",
	"mda":          "Missile Defense Agency",
	"socom":        "Special Operations Command",
	"dha":          "Defense Health Agency",
}

// NormalizeOrganization maps an organization label, code, or directory name
// to its canonical name. The input is returned trimmed when it is not known.
func NormalizeOrganization(s string) string {
	if name, ok := KnownOrganization(s); ok {
		return name
	}
	return strings.TrimSpace(s)
}

var (
	dashToUnderscore = strings.NewReplacer("-", "_")
	separatorToSpace = strings.NewReplacer("-", " ", "_", " ")
)

// KnownOrganization reports whether s normalizes to a catalogued organization
func KnownOrganization(s string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", false
	}
	for _, k := range []string{key, dashToUnderscore.Replace(key), separatorToSpace.Replace(key)} {
		if name, ok := orgAliases[k]; ok {
			return name, true
		}
	}
	return "", false
}

// OrganizationFromPath looks for a known organization in the directory
// segments of a relative path, then in the file name tokens. Single-letter
// codes are only accepted from whole directory names.
func OrganizationFromPath(relPath string) string {
	dir := filepath.Dir(filepath.ToSlash(relPath))
	segments := strings.Split(dir, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "." || seg == "" || fiscalDirPattern.MatchString(seg) {
			continue
		}
		if name, ok := KnownOrganization(seg); ok {
			return name
		}
	}

	base := strings.ToLower(strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath)))
	for _, tok := range strings.FieldsFunc(base, isSeparator) {
		if len(tok) < 3 {
			continue
		}
		if name, ok := orgAliases[tok]; ok {
			return name
		}
	}
	return ""
}

func isSeparator(r rune) bool {
	return r == '_' || r == '-' || r == ' ' || r == '.'
}
