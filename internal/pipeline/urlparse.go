package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/askcarbuddy/advisor-cli/internal/model"
)

// urlFragments is what structural URL inspection alone can tell us about a
// listing: which marketplace it is, and sometimes a VIN or year/make/model
// embedded in the path.
type urlFragments struct {
	Source model.ListingSource
	VIN    string
	Year   int
	Make   string
	Model  string
}

var (
	carsComVINRe    = regexp.MustCompile(`(?i)/detail/([A-HJ-NPR-Z0-9]{17})`)
	carsComSlugRe   = regexp.MustCompile(`(?i)/(\d{4})[-_]([a-z]+)[-_]([a-z0-9]+)`)
	autotraderVINRe = regexp.MustCompile(`(?i)/([A-HJ-NPR-Z0-9]{17})`)
	cargurusVINRe   = regexp.MustCompile(`(?i)[#/]([A-HJ-NPR-Z0-9]{17})`)
	dealerVINRe     = regexp.MustCompile(`(?i)[/=]([A-HJ-NPR-Z0-9]{17})(?:[/&?.]|$)`)
)

// parseListingURL inspects a listing URL and extracts whatever identity
// fragments the URL structure itself carries.
func parseListingURL(rawURL string) urlFragments {
	rawURL = strings.TrimSpace(rawURL)
	frags := urlFragments{Source: model.SourceDealer}

	switch {
	case strings.Contains(rawURL, "cars.com"):
		frags.Source = model.SourceCarsCom
		if m := carsComVINRe.FindStringSubmatch(rawURL); m != nil {
			frags.VIN = strings.ToUpper(m[1])
		}
		if m := carsComSlugRe.FindStringSubmatch(rawURL); m != nil {
			year, _ := strconv.Atoi(m[1])
			if plausibleYear(year) {
				frags.Year = year
				frags.Make = titleWord(m[2])
				frags.Model = titleWord(m[3])
			}
		}
	case strings.Contains(rawURL, "autotrader.com"):
		frags.Source = model.SourceAutotrader
		if m := autotraderVINRe.FindStringSubmatch(rawURL); m != nil {
			frags.VIN = strings.ToUpper(m[1])
		}
	case strings.Contains(rawURL, "cargurus.com"):
		frags.Source = model.SourceCarGurus
		if m := cargurusVINRe.FindStringSubmatch(rawURL); m != nil {
			frags.VIN = strings.ToUpper(m[1])
		}
	case strings.Contains(rawURL, "facebook.com/marketplace"):
		frags.Source = model.SourceFacebook
	default:
		if m := dealerVINRe.FindStringSubmatch(rawURL); m != nil {
			frags.VIN = strings.ToUpper(m[1])
		}
	}

	if frags.VIN != "" && !ValidVIN(frags.VIN) {
		frags.VIN = ""
	}
	return frags
}

// vinYearCodes are the characters a VIN may carry in position 10 (model
// year). Letters I, O, Q, U, Z and digit 0 are never used there.
const vinYearCodes = "ABCDEFGHJKLMNPRSTVWXY123456789"

var pureHexRe = regexp.MustCompile(`^[0-9A-F]{17}$`)

// ValidVIN reports whether a 17-character candidate looks like a real VIN:
// correct charset (no I/O/Q), a plausible model-year code in position 10,
// and not a pure-hexadecimal string. The hex check is a heuristic: opaque
// inventory ids in dealer URLs are often hex and would otherwise pass.
func ValidVIN(vin string) bool {
	if len(vin) != 17 {
		return false
	}
	vin = strings.ToUpper(vin)
	for _, r := range vin {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z' && r != 'I' && r != 'O' && r != 'Q':
		default:
			return false
		}
	}
	if !strings.ContainsRune(vinYearCodes, rune(vin[9])) {
		return false
	}
	if pureHexRe.MatchString(vin) {
		return false
	}
	return true
}

// plausibleYear bounds model years to the range a live listing could carry.
func plausibleYear(year int) bool {
	return year >= 1981 && year <= 2035
}

// titleWord capitalizes a lowercase URL slug word ("honda" → "Honda").
func titleWord(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
