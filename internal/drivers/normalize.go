package drivers

import (
	"sort"
	"strings"
)

var zeroWidthReplacer = strings.NewReplacer(
	"​", "",
	"‌", "",
	"‍", "",
	"\uFEFF", "",
	" ", " ",
)

// CollapseWhitespace strips zero-width and non-breaking-space artifacts and
// collapses runs of whitespace into single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(zeroWidthReplacer.Replace(s)), " ")
}

// NormalizePhone rewrites phone numbers matching the national 10/12/13-digit
// patterns into one international format. Anything else passes through
// unchanged rather than guessing.
func NormalizePhone(raw string) string {
	digits := keepDigits(raw)
	switch {
	case len(digits) == 10:
		return "+52 " + digits
	case len(digits) == 12 && strings.HasPrefix(digits, "52"):
		return "+52 " + digits[2:]
	case len(digits) == 13 && strings.HasPrefix(digits, "521"):
		return "+52 " + digits[3:]
	default:
		return raw
	}
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// INEGI state codes keyed by folded official name.
var regionCodes = map[string]string{
	"AGUASCALIENTES":      "01",
	"BAJA CALIFORNIA":     "02",
	"BAJA CALIFORNIA SUR": "03",
	"CAMPECHE":            "04",
	"COAHUILA":            "05",
	"COLIMA":              "06",
	"CHIAPAS":             "07",
	"CHIHUAHUA":           "08",
	"CIUDAD DE MEXICO":    "09",
	"DURANGO":             "10",
	"GUANAJUATO":          "11",
	"GUERRERO":            "12",
	"HIDALGO":             "13",
	"JALISCO":             "14",
	"MEXICO":              "15",
	"MICHOACAN":           "16",
	"MORELOS":             "17",
	"NAYARIT":             "18",
	"NUEVO LEON":          "19",
	"OAXACA":              "20",
	"PUEBLA":              "21",
	"QUERETARO":           "22",
	"QUINTANA ROO":        "23",
	"SAN LUIS POTOSI":     "24",
	"SINALOA":             "25",
	"SONORA":              "26",
	"TABASCO":             "27",
	"TAMAULIPAS":          "28",
	"TLAXCALA":            "29",
	"VERACRUZ":            "30",
	"YUCATAN":             "31",
	"ZACATECAS":           "32",
}

// regionAliases cover common shorthand forms seen on the portal.
var regionAliases = map[string]string{
	"CDMX":             "09",
	"DISTRITO FEDERAL": "09",
	"D.F.":             "09",
	"EDOMEX":           "15",
	"EDO. DE MEXICO":   "15",
}

var regionPrefixes = []string{
	"ESTADO DE ",
	"EDO. DE ",
	"EDO DE ",
	"ESTADO LIBRE Y SOBERANO DE ",
}

// regionNamesByLength caches the canonical names, longest first, so the
// substring pass prefers the most specific match ("BAJA CALIFORNIA SUR"
// before "BAJA CALIFORNIA").
var regionNamesByLength = func() []string {
	names := make([]string, 0, len(regionCodes))
	for name := range regionCodes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}()

// NormalizeRegion resolves a region/state name to its fixed two-digit code:
// exact match, then prefix-stripped match, then substring match. Unmapped
// names report ok=false; the caller logs and leaves the code blank, never
// guessing.
func NormalizeRegion(raw string) (string, bool) {
	folded := foldText(raw)
	if folded == "" {
		return "", false
	}
	if code, ok := regionCodes[folded]; ok {
		return code, true
	}
	if code, ok := regionAliases[folded]; ok {
		return code, true
	}
	for _, prefix := range regionPrefixes {
		if stripped := strings.TrimPrefix(folded, prefix); stripped != folded {
			if code, ok := regionCodes[stripped]; ok {
				return code, true
			}
		}
	}
	for _, name := range regionNamesByLength {
		if strings.Contains(folded, name) {
			return regionCodes[name], true
		}
	}
	return "", false
}

var accentFolder = strings.NewReplacer(
	"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U", "Ü", "U", "Ñ", "N",
	"á", "A", "é", "E", "í", "I", "ó", "O", "ú", "U", "ü", "U", "ñ", "N",
)

// foldText uppercases and strips accents for tolerant comparisons.
func foldText(s string) string {
	return strings.ToUpper(accentFolder.Replace(CollapseWhitespace(s)))
}
