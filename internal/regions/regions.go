package regions

import "strings"

// postal maps two-letter postal codes to canonical region names. Feed
// revisions have switched between postal codes and full names more than
// once; grouping must survive that.
var postal = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut",
	"DE": "Delaware", "DC": "District of Columbia", "FL": "Florida",
	"GA": "Georgia", "HI": "Hawaii", "ID": "Idaho", "IL": "Illinois",
	"IN": "Indiana", "IA": "Iowa", "KS": "Kansas", "KY": "Kentucky",
	"LA": "Louisiana", "ME": "Maine", "MD": "Maryland", "MA": "Massachusetts",
	"MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi", "MO": "Missouri",
	"MT": "Montana", "NE": "Nebraska", "NV": "Nevada", "NH": "New Hampshire",
	"NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania",
	"RI": "Rhode Island", "SC": "South Carolina", "SD": "South Dakota",
	"TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont",
	"VA": "Virginia", "WA": "Washington", "WV": "West Virginia",
	"WI": "Wisconsin", "WY": "Wyoming",
}

// aliases covers spellings seen in older feed dumps.
var aliases = map[string]string{
	"N. Carolina":    "North Carolina",
	"S. Carolina":    "South Carolina",
	"N. Dakota":      "North Dakota",
	"S. Dakota":      "South Dakota",
	"W. Virginia":    "West Virginia",
	"Washington DC":  "District of Columbia",
	"Washington D.C": "District of Columbia",
}

// Normalize converts a feed spelling of a region name to its canonical form
// so per-region grouping is stable across feed revisions. Unknown names pass
// through trimmed but otherwise untouched.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if canonical, ok := postal[strings.ToUpper(name)]; ok && len(name) == 2 {
		return canonical
	}
	if canonical, ok := aliases[strings.TrimSuffix(name, ".")]; ok {
		return canonical
	}
	return name
}
