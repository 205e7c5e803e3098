package model

import "fmt"

// ListingSource identifies which marketplace a listing URL came from.
type ListingSource string

const (
	SourceCarsCom    ListingSource = "cars.com"
	SourceAutotrader ListingSource = "autotrader"
	SourceCarGurus   ListingSource = "cargurus"
	SourceFacebook   ListingSource = "facebook"
	SourceDealer     ListingSource = "dealer"
	SourceManual     ListingSource = "manual"
)

// ListingInput is the caller-supplied reference to a vehicle: a listing URL,
// a set of manually entered fields, or both. Manually entered fields always
// win over anything derived from the URL or page content.
type ListingInput struct {
	URL        string `json:"url,omitempty"`
	Year       int    `json:"year,omitempty"`
	Make       string `json:"make,omitempty"`
	Model      string `json:"model,omitempty"`
	Trim       string `json:"trim,omitempty"`
	VIN        string `json:"vin,omitempty"`
	Price      any    `json:"price,omitempty"`   // int or string, normalized by ParsePrice
	Mileage    any    `json:"mileage,omitempty"` // int or string, normalized by ParseMileage
	ZipCode    string `json:"zip,omitempty"`
	Color      string `json:"color,omitempty"`
	DealerName string `json:"dealer_name,omitempty"`
}

// VehicleIdentity is the canonical merged identity of one listing, built
// incrementally across resolver stages and frozen once resolution ends.
// Make and Model are the only required fields; everything else may stay
// absent for the life of the run.
type VehicleIdentity struct {
	Source ListingSource `json:"source"`
	URL    string        `json:"url,omitempty"`

	Year  int    `json:"year,omitempty"`
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Trim  string `json:"trim,omitempty"`
	VIN   string `json:"vin,omitempty"`

	Price   int `json:"price,omitempty"`   // whole currency units
	Mileage int `json:"mileage,omitempty"` // miles

	Color       string   `json:"color,omitempty"`
	DealerName  string   `json:"dealer_name,omitempty"`
	DealerPhone string   `json:"dealer_phone,omitempty"`
	ZipCode     string   `json:"zip,omitempty"`
	Photos      []string `json:"photos,omitempty"`

	BodyType     string `json:"body_type,omitempty"`
	Engine       string `json:"engine,omitempty"`
	Transmission string `json:"transmission,omitempty"`
	Drivetrain   string `json:"drivetrain,omitempty"`
	FuelType     string `json:"fuel_type,omitempty"`
	MPGCity      int    `json:"mpg_city,omitempty"`
	MPGHighway   int    `json:"mpg_highway,omitempty"`
}

// Resolved reports whether the identity meets the minimum bar for analysis.
func (v *VehicleIdentity) Resolved() bool {
	return v.Make != "" && v.Model != ""
}

// Label returns a short human-readable description, e.g. "2019 Honda Accord EX-L".
func (v *VehicleIdentity) Label() string {
	s := ""
	if v.Year > 0 {
		s = fmt.Sprintf("%d ", v.Year)
	}
	s += v.Make + " " + v.Model
	if v.Trim != "" {
		s += " " + v.Trim
	}
	return s
}
