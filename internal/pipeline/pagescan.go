package pipeline

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/askcarbuddy/advisor-cli/internal/model"
)

// pageFragments holds identity fields recovered from retrieved page text.
type pageFragments struct {
	Year       int
	Make       string
	Model      string
	Trim       string
	VIN        string
	Price      int
	Mileage    int
	DealerName string
}

var (
	priceRe      = regexp.MustCompile(`\$(\d{1,3},?\d{3})`)
	mileageRe    = regexp.MustCompile(`(?i)(\d{1,3},?\d{3})\s*(?:mi(?:les)?|mileage|odometer)`)
	vinLabelRe   = regexp.MustCompile(`(?i)VIN[:\s]*([A-HJ-NPR-Z0-9]{17})`)
	titleYMMRe   = regexp.MustCompile(`(20\d{2}|19\d{2})\s+([A-Z][a-zA-Z]+)\s+([A-Z][a-zA-Z0-9\-]+)`)
	trimLabelRe  = regexp.MustCompile(`(?i)(?:trim|package)[:\s]+([A-Za-z0-9 \-]+)`)
	dealerRe     = regexp.MustCompile(`(?i)(?:sold by|dealer)[:\s]+([A-Z][A-Za-z0-9&'. \-]{2,60})`)
	jsonLDRe     = regexp.MustCompile(`(?is)<script[^>]*type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)
)

// scanPage extracts vehicle fields from retrieved page content, trying
// embedded JSON-LD vehicle records first, then a title-style
// year/make/model pattern, then free-text label patterns. Earlier sources
// win; later patterns only fill gaps.
func scanPage(text string) pageFragments {
	frags := extractJSONLDVehicle(text)

	if m := titleYMMRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		if frags.Year == 0 && plausibleYear(year) {
			frags.Year = year
		}
		if frags.Make == "" {
			frags.Make = m[2]
		}
		if frags.Model == "" {
			frags.Model = m[3]
		}
	}

	if frags.Price == 0 {
		if m := priceRe.FindStringSubmatch(text); m != nil {
			if p, ok := model.ParsePrice(m[1]); ok {
				frags.Price = p
			}
		}
	}
	if frags.Mileage == 0 {
		if m := mileageRe.FindStringSubmatch(text); m != nil {
			if miles, ok := model.ParseMileage(m[1]); ok {
				frags.Mileage = miles
			}
		}
	}
	if frags.VIN == "" {
		if m := vinLabelRe.FindStringSubmatch(text); m != nil {
			candidate := strings.ToUpper(m[1])
			if ValidVIN(candidate) {
				frags.VIN = candidate
			}
		}
	}
	if frags.Trim == "" {
		if m := trimLabelRe.FindStringSubmatch(text); m != nil {
			frags.Trim = strings.TrimSpace(m[1])
		}
	}
	if frags.DealerName == "" {
		if m := dealerRe.FindStringSubmatch(text); m != nil {
			frags.DealerName = strings.TrimSpace(m[1])
		}
	}

	return frags
}

// jsonLDVehicle is a minimal JSON-LD Vehicle/Car/Product object as embedded
// by listing pages.
type jsonLDVehicle struct {
	Type              string       `json:"@type"`
	Name              string       `json:"name"`
	VehicleIdentifier string       `json:"vehicleIdentificationNumber"`
	Brand             jsonLDNamed  `json:"brand"`
	Model             any          `json:"model"`
	VehicleModelDate  string       `json:"vehicleModelDate"`
	MileageFromOdo    jsonLDQty    `json:"mileageFromOdometer"`
	Offers            jsonLDOffers `json:"offers"`
}

type jsonLDNamed struct {
	Name string `json:"name"`
}

// UnmarshalJSON accepts either a bare string or a {"name": ...} object.
func (n *jsonLDNamed) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n.Name = s
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	n.Name = obj.Name
	return nil
}

type jsonLDQty struct {
	Value any `json:"value"`
}

type jsonLDOffers struct {
	Price any `json:"price"`
}

// extractJSONLDVehicle pulls vehicle fields from JSON-LD structured data
// blocks. Listing pages commonly embed a Vehicle or Car record with the
// authoritative price, VIN, and odometer reading.
func extractJSONLDVehicle(text string) pageFragments {
	var frags pageFragments
	for _, m := range jsonLDRe.FindAllStringSubmatch(text, -1) {
		raw := strings.TrimSpace(m[1])

		var v jsonLDVehicle
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			var arr []jsonLDVehicle
			if err := json.Unmarshal([]byte(raw), &arr); err != nil {
				continue
			}
			for _, item := range arr {
				if isVehicleType(item.Type) {
					v = item
					break
				}
			}
		}
		if !isVehicleType(v.Type) {
			continue
		}

		mergeJSONLDVehicle(&frags, v)
		if frags.Make != "" && frags.Model != "" {
			break
		}
	}
	return frags
}

func mergeJSONLDVehicle(frags *pageFragments, v jsonLDVehicle) {
	if frags.VIN == "" && ValidVIN(strings.ToUpper(v.VehicleIdentifier)) {
		frags.VIN = strings.ToUpper(v.VehicleIdentifier)
	}
	if frags.Make == "" && v.Brand.Name != "" {
		frags.Make = v.Brand.Name
	}
	if frags.Model == "" {
		switch mv := v.Model.(type) {
		case string:
			frags.Model = mv
		case map[string]any:
			if name, ok := mv["name"].(string); ok {
				frags.Model = name
			}
		}
	}
	if frags.Year == 0 && v.VehicleModelDate != "" {
		if year, err := strconv.Atoi(v.VehicleModelDate[:min(4, len(v.VehicleModelDate))]); err == nil && plausibleYear(year) {
			frags.Year = year
		}
	}
	if frags.Price == 0 {
		if p, ok := model.ParsePrice(v.Offers.Price); ok {
			frags.Price = p
		}
	}
	if frags.Mileage == 0 {
		if miles, ok := model.ParseMileage(v.MileageFromOdo.Value); ok {
			frags.Mileage = miles
		}
	}
	// Fall back to parsing the record name as a listing title.
	if (frags.Make == "" || frags.Model == "") && v.Name != "" {
		if m := titleYMMRe.FindStringSubmatch(v.Name); m != nil {
			year, _ := strconv.Atoi(m[1])
			if frags.Year == 0 && plausibleYear(year) {
				frags.Year = year
			}
			if frags.Make == "" {
				frags.Make = m[2]
			}
			if frags.Model == "" {
				frags.Model = m[3]
			}
		}
	}
}

func isVehicleType(t string) bool {
	switch strings.ToLower(t) {
	case "vehicle", "car", "motorizedvehicle", "product":
		return true
	}
	return false
}
