package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/askcarbuddy/advisor-cli/internal/model"
)

// IdentityResolutionError means every resolver stage ran and the result
// still lacks the make/model minimum required for analysis.
type IdentityResolutionError struct {
	Tried []string
}

func (e *IdentityResolutionError) Error() string {
	return fmt.Sprintf("could not resolve vehicle identity (tried: %s)", strings.Join(e.Tried, ", "))
}

// resolverStage is one identity source. Stages run in declaration order;
// each may only fill fields the merged identity does not already carry, so
// earlier stages take precedence.
type resolverStage struct {
	name string
	run  func(ctx context.Context, id *model.VehicleIdentity) error
}

// ResolveIdentity builds the canonical vehicle identity for an input.
// Caller-entered fields bind first and are never overwritten; the listing
// URL, the federal VIN decode, the retrieved page content, and the VIN
// listing record each fill remaining gaps in that order. Stage failures are
// logged and skipped; only a final identity below the make/model minimum is
// an error.
func (p *Pipeline) ResolveIdentity(ctx context.Context, in model.ListingInput) (*model.VehicleIdentity, error) {
	id := &model.VehicleIdentity{Source: model.SourceManual, URL: in.URL}
	applyCallerFields(id, in)

	stages := []resolverStage{
		{name: "listing_url", run: func(_ context.Context, id *model.VehicleIdentity) error {
			if in.URL == "" {
				return nil
			}
			mergeURLFragments(id, parseListingURL(in.URL))
			return nil
		}},
		{name: "vin_decode", run: p.resolveFromVINDecode},
		{name: "page_content", run: p.resolveFromPage},
		{name: "vin_listing", run: p.resolveFromVINListing},
	}

	tried := make([]string, 0, len(stages))
	for _, stage := range stages {
		tried = append(tried, stage.name)
		if err := stage.run(ctx, id); err != nil {
			zap.L().Warn("identity stage failed",
				zap.String("stage", stage.name),
				zap.Error(err))
		}
	}

	if !id.Resolved() {
		return nil, &IdentityResolutionError{Tried: tried}
	}

	zap.L().Info("vehicle identity resolved",
		zap.String("vehicle", id.Label()),
		zap.String("source", string(id.Source)),
		zap.Bool("has_vin", id.VIN != ""),
		zap.Bool("has_price", id.Price > 0))
	return id, nil
}

// applyCallerFields seeds the identity with manually entered fields. These
// bind unconditionally and nothing downstream may change them.
func applyCallerFields(id *model.VehicleIdentity, in model.ListingInput) {
	if plausibleYear(in.Year) {
		id.Year = in.Year
	}
	id.Make = strings.TrimSpace(in.Make)
	id.Model = strings.TrimSpace(in.Model)
	id.Trim = strings.TrimSpace(in.Trim)
	if vin := strings.ToUpper(strings.TrimSpace(in.VIN)); ValidVIN(vin) {
		id.VIN = vin
	}
	if p, ok := model.ParsePrice(in.Price); ok {
		id.Price = p
	}
	if miles, ok := model.ParseMileage(in.Mileage); ok {
		id.Mileage = miles
	}
	id.ZipCode = strings.TrimSpace(in.ZipCode)
	id.Color = strings.TrimSpace(in.Color)
	id.DealerName = strings.TrimSpace(in.DealerName)
}

func mergeURLFragments(id *model.VehicleIdentity, frags urlFragments) {
	id.Source = frags.Source
	if id.VIN == "" {
		id.VIN = frags.VIN
	}
	if id.Year == 0 {
		id.Year = frags.Year
	}
	if id.Make == "" {
		id.Make = frags.Make
	}
	if id.Model == "" {
		id.Model = frags.Model
	}
}

// resolveFromPage retrieves the listing page and scans it for identity
// fields. Skipped when there is no URL or the identity is already complete
// enough that the page could add nothing.
func (p *Pipeline) resolveFromPage(ctx context.Context, id *model.VehicleIdentity) error {
	if id.URL == "" || p.exa == nil {
		return nil
	}
	if id.Resolved() && id.VIN != "" && id.Price > 0 && id.Mileage > 0 {
		return nil
	}

	content, err := p.exa.Contents(ctx, id.URL)
	if err != nil {
		return err
	}

	frags := scanPage(content.Title + "\n" + content.Text)
	if id.Year == 0 {
		id.Year = frags.Year
	}
	if id.Make == "" {
		id.Make = frags.Make
	}
	if id.Model == "" {
		id.Model = frags.Model
	}
	if id.Trim == "" {
		id.Trim = frags.Trim
	}
	if id.VIN == "" {
		id.VIN = frags.VIN
	}
	if id.Price == 0 {
		id.Price = frags.Price
	}
	if id.Mileage == 0 {
		id.Mileage = frags.Mileage
	}
	if id.DealerName == "" {
		id.DealerName = frags.DealerName
	}
	if len(id.Photos) == 0 {
		id.Photos = content.ImageLinks
	}
	return nil
}

// resolveFromVINListing fills gaps from the live listing record for the VIN.
// Lowest precedence: the listing knows dealer contact, photos, and asking
// price, but its build attributes are dealer-entered and less trustworthy
// than the federal decode.
func (p *Pipeline) resolveFromVINListing(ctx context.Context, id *model.VehicleIdentity) error {
	if id.VIN == "" || p.autodev == nil {
		return nil
	}

	rec, err := p.autodev.ListingByVIN(ctx, id.VIN)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	if id.Year == 0 && plausibleYear(rec.Year) {
		id.Year = rec.Year
	}
	if id.Make == "" {
		id.Make = rec.Make
	}
	if id.Model == "" {
		id.Model = rec.Model
	}
	if id.Trim == "" {
		id.Trim = rec.Trim
	}
	if id.Price == 0 {
		if price, ok := model.ParsePrice(rec.Price); ok {
			id.Price = price
		}
	}
	if id.Mileage == 0 {
		if miles, ok := model.ParseMileage(rec.Mileage); ok {
			id.Mileage = miles
		}
	}
	if id.Color == "" {
		id.Color = rec.DisplayColor
	}
	if id.DealerName == "" {
		id.DealerName = rec.DealerName
	}
	if id.DealerPhone == "" {
		id.DealerPhone = rec.DealerPhone
	}
	if len(id.Photos) == 0 {
		id.Photos = rec.PhotoURLs
	}
	if id.BodyType == "" {
		id.BodyType = rec.BodyType
	}
	if id.Engine == "" {
		id.Engine = rec.Engine
	}
	if id.Transmission == "" {
		id.Transmission = rec.Transmission
	}
	if id.Drivetrain == "" {
		id.Drivetrain = rec.Drivetrain
	}
	if id.FuelType == "" {
		id.FuelType = rec.FuelType
	}
	if id.MPGCity == 0 {
		id.MPGCity = rec.MPGCity
	}
	if id.MPGHighway == 0 {
		id.MPGHighway = rec.MPGHighway
	}
	return nil
}

// resolveFromVINDecode fills remaining gaps from the federal VIN decode,
// the authoritative source for build attributes. It runs before the page
// scan and the listing lookup so scraped or dealer-entered values cannot
// shadow the decode.
func (p *Pipeline) resolveFromVINDecode(ctx context.Context, id *model.VehicleIdentity) error {
	if id.VIN == "" || p.nhtsa == nil {
		return nil
	}

	dec, err := p.nhtsa.DecodeVIN(ctx, id.VIN)
	if err != nil {
		return err
	}

	if id.Year == 0 && plausibleYear(dec.Year) {
		id.Year = dec.Year
	}
	if id.Make == "" {
		id.Make = dec.Make
	}
	if id.Model == "" {
		id.Model = dec.Model
	}
	if id.Trim == "" {
		id.Trim = dec.Trim
	}
	if id.BodyType == "" {
		id.BodyType = dec.BodyType
	}
	if id.Engine == "" {
		id.Engine = dec.Engine
	}
	if id.Transmission == "" {
		id.Transmission = dec.Transmission
	}
	if id.Drivetrain == "" {
		id.Drivetrain = dec.Drivetrain
	}
	if id.FuelType == "" {
		id.FuelType = dec.FuelType
	}
	return nil
}
