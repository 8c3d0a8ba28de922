package match

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are trailing entity designators dropped from names. They add
// nothing to a nonprofit search and vary between sources.
var legalSuffixes = []string{
	" incorporated", " inc",
	" corporation", " corp",
	" llc", " ltd",
}

var (
	multiSpaceRe = regexp.MustCompile(`\s+`)
	nonDigitRe   = regexp.MustCompile(`[^0-9A-Za-z]`)
)

// fold decomposes, strips combining marks and case-folds s.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// NormalizeName standardizes an organization name for searching and cache
// keys: accents removed, case-folded, "&" spelled out, punctuation replaced
// by spaces, a trailing legal suffix dropped and whitespace collapsed.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = fold(name)
	name = strings.ReplaceAll(name, "&", " and ")
	// Apostrophes join rather than split: "children's" -> "childrens".
	name = strings.NewReplacer("'", "", "’", "").Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, name)
	name = strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			name = strings.TrimSpace(strings.TrimSuffix(name, suffix))
			break
		}
	}
	return name
}

// NormalizeCity folds a city name the same way as organization names,
// without suffix stripping.
func NormalizeCity(city string) string {
	city = fold(strings.TrimSpace(city))
	city = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, city)
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(city, " "))
}

// NormalizeEIN returns the nine-digit EIN, or "" when raw is not a valid EIN.
// Seven and eight digit values are left-padded; spreadsheets drop leading
// zeros.
func NormalizeEIN(raw string) string {
	s := nonDigitRe.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" || len(s) > 9 || len(s) < 7 {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}
	if strings.Trim(s, "0") == "" {
		return ""
	}
	return strings.Repeat("0", 9-len(s)) + s
}

// NormalizeState returns the two-letter USPS code for a state name or code,
// or "" when unrecognized.
func NormalizeState(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if len(s) == 2 {
		code := strings.ToUpper(s)
		if _, ok := stateCodes[code]; ok {
			return code
		}
		return ""
	}
	return stateNames[NormalizeCity(s)]
}

// NormalizeWebsite returns an absolute http(s) URL with a lower-case host and
// no trailing slash, or "" when raw is not a usable website.
func NormalizeWebsite(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.User != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawQuery = ""
	return strings.TrimSuffix(u.String(), "/")
}

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "district of columbia": "DC",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID", "illinois": "IL",
	"indiana": "IN", "iowa": "IA", "kansas": "KS", "kentucky": "KY", "louisiana": "LA",
	"maine": "ME", "maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK", "oregon": "OR",
	"pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC", "south dakota": "SD",
	"tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT", "virginia": "VA",
	"washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
	"puerto rico": "PR", "guam": "GU", "virgin islands": "VI", "american samoa": "AS",
	"northern mariana islands": "MP",
}

var stateCodes = func() map[string]struct{} {
	m := make(map[string]struct{}, len(stateNames))
	for _, code := range stateNames {
		m[code] = struct{}{}
	}
	return m
}()
