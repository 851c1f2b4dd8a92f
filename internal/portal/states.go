package portal

import (
	"strings"
	"unicode"
)

// GST state codes as printed in the first two digits of a GSTIN.
var gstStateCodes = map[string]string{
	"01": "JAMMU AND KASHMIR",
	"02": "HIMACHAL PRADESH",
	"03": "PUNJAB",
	"04": "CHANDIGARH",
	"05": "UTTARAKHAND",
	"06": "HARYANA",
	"07": "DELHI",
	"08": "RAJASTHAN",
	"09": "UTTAR PRADESH",
	"10": "BIHAR",
	"11": "SIKKIM",
	"12": "ARUNACHAL PRADESH",
	"13": "NAGALAND",
	"14": "MANIPUR",
	"15": "MIZORAM",
	"16": "TRIPURA",
	"17": "MEGHALAYA",
	"18": "ASSAM",
	"19": "WEST BENGAL",
	"20": "JHARKHAND",
	"21": "ODISHA",
	"22": "CHHATTISGARH",
	"23": "MADHYA PRADESH",
	"24": "GUJARAT",
	"25": "DADRA AND NAGAR HAVELI AND DAMAN AND DIU",
	"26": "DADRA AND NAGAR HAVELI AND DAMAN AND DIU",
	"27": "MAHARASHTRA",
	"28": "ANDHRA PRADESH",
	"29": "KARNATAKA",
	"30": "GOA",
	"31": "LAKSHADWEEP",
	"32": "KERALA",
	"33": "TAMIL NADU",
	"34": "PUDUCHERRY",
	"35": "ANDAMAN AND NICOBAR ISLANDS",
	"36": "TELANGANA",
	"37": "ANDHRA PRADESH",
	"38": "LADAKH",
	"97": "OTHER TERRITORY",
}

var stateAliases = map[string]string{
	"ORISSA":              "ODISHA",
	"PONDICHERRY":         "PUDUCHERRY",
	"UTTARANCHAL":         "UTTARAKHAND",
	"NEWDELHI":            "DELHI",
	"NCTOFDELHI":          "DELHI",
	"DADRAANDNAGARHAVELI": "DADRA AND NAGAR HAVELI AND DAMAN AND DIU",
	"DAMANANDDIU":         "DADRA AND NAGAR HAVELI AND DAMAN AND DIU",
	"ANDAMANANDNICOBAR":   "ANDAMAN AND NICOBAR ISLANDS",
	"JAMMUKASHMIR":        "JAMMU AND KASHMIR",
	"CHATTISGARH":         "CHHATTISGARH",
	"TELENGANA":           "TELANGANA",
	"ANDHRAPRADESHNEW":    "ANDHRA PRADESH",
	"OTHERTERRITORYINDIA": "OTHER TERRITORY",
}

var statesByCompact = func() map[string]string {
	out := make(map[string]string, len(gstStateCodes)+len(stateAliases))
	for _, name := range gstStateCodes {
		out[compactState(name)] = name
	}
	for alias, name := range stateAliases {
		out[alias] = name
	}
	return out
}()

func compactState(s string) string {
	s = strings.ReplaceAll(strings.ToUpper(s), "&", "AND")
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalState maps a free-text state to its GST spelling. Unknown names are
// returned upper-cased and trimmed so they still group consistently.
func CanonicalState(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if name, ok := statesByCompact[compactState(s)]; ok {
		return name
	}
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// StateFromGSTIN derives the registered state from a GSTIN-like identifier.
func StateFromGSTIN(gstin string) (string, bool) {
	g := strings.ToUpper(strings.TrimSpace(gstin))
	if len(g) < 2 {
		return "", false
	}
	name, ok := gstStateCodes[g[:2]]
	return name, ok
}
