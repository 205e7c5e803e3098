package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/askcarbuddy/advisor-cli/internal/model"
	"github.com/askcarbuddy/advisor-cli/pkg/autodev"
	"github.com/askcarbuddy/advisor-cli/pkg/exa"
	"github.com/askcarbuddy/advisor-cli/pkg/nhtsa"
)

func TestResolveIdentity_CallerFieldsWin(t *testing.T) {
	p, deps := newTestPipeline(t)

	// Page claims a different trim and price; caller fields must survive.
	deps.exa.On("Contents", mock.Anything, mock.Anything).Return(&exa.ContentsResult{
		Title: "2019 Honda Accord Sport",
		Text:  "Price: $21,000\n48,000 miles",
	}, nil)

	id, err := p.ResolveIdentity(context.Background(), model.ListingInput{
		URL:   "https://www.sometowndealer.com/listing/1",
		Year:  2019,
		Make:  "Honda",
		Model: "Accord",
		Trim:  "EX-L",
		Price: "19,500",
	})
	require.NoError(t, err)
	assert.Equal(t, "EX-L", id.Trim)
	assert.Equal(t, 19500, id.Price)
	// Page fills the gap the caller left.
	assert.Equal(t, 48000, id.Mileage)
}

func TestResolveIdentity_VINFlowFillsFromDecodeAndListing(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.autodev.On("ListingByVIN", mock.Anything, "1HGCV1F54KA123456").Return(&autodev.ListingRecord{
		VIN: "1HGCV1F54KA123456", Year: 2019, Make: "Honda", Model: "Accord", Trim: "EX-L",
		Price: "23,495", Mileage: float64(42000), DealerName: "Lakeside Honda",
		PhotoURLs: []string{"https://img.example.com/1.jpg"},
	}, nil)
	deps.nhtsa.On("DecodeVIN", mock.Anything, "1HGCV1F54KA123456").Return(&nhtsa.VINDecode{
		Year: 2019, Make: "Honda", Model: "Accord",
		Engine: "1.5L 4-cyl", Drivetrain: "FWD", FuelType: "Gasoline",
	}, nil)

	id, err := p.ResolveIdentity(context.Background(), model.ListingInput{
		VIN: "1HGCV1F54KA123456",
	})
	require.NoError(t, err)
	assert.Equal(t, "2019 Honda Accord EX-L", id.Label())
	assert.Equal(t, 23495, id.Price)
	assert.Equal(t, 42000, id.Mileage)
	assert.Equal(t, "Lakeside Honda", id.DealerName)
	// Decode supplies the build attributes; the listing fills what the
	// decode does not know.
	assert.Equal(t, "1.5L 4-cyl", id.Engine)
	assert.Equal(t, "FWD", id.Drivetrain)
}

func TestResolveIdentity_DecodeOutranksListingRecord(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.nhtsa.On("DecodeVIN", mock.Anything, "1HGCV1F54KA123456").Return(&nhtsa.VINDecode{
		Year: 2019, Make: "Honda", Model: "Accord", Trim: "EX-L",
		Engine: "1.5L 4-cyl", Transmission: "CVT", Drivetrain: "FWD",
	}, nil)
	deps.autodev.On("ListingByVIN", mock.Anything, "1HGCV1F54KA123456").Return(&autodev.ListingRecord{
		VIN: "1HGCV1F54KA123456", Year: 2019, Make: "Honda", Model: "Accord",
		Trim: "Sport", Engine: "2.0L 4-cyl", Transmission: "10-Speed Automatic",
		Price: "23,495", DealerName: "Lakeside Honda",
	}, nil)

	id, err := p.ResolveIdentity(context.Background(), model.ListingInput{
		VIN: "1HGCV1F54KA123456",
	})
	require.NoError(t, err)
	// Where the federal decode and the dealer listing disagree on build
	// attributes, the decode wins.
	assert.Equal(t, "EX-L", id.Trim)
	assert.Equal(t, "1.5L 4-cyl", id.Engine)
	assert.Equal(t, "CVT", id.Transmission)
	// Listing-only facts still come through.
	assert.Equal(t, 23495, id.Price)
	assert.Equal(t, "Lakeside Honda", id.DealerName)
}

func TestResolveIdentity_URLVINSkipsPageFetch(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.exa.On("Contents", mock.Anything, mock.Anything).Return(&exa.ContentsResult{
		Text: "Price: $12,000",
	}, nil).Maybe()
	deps.autodev.On("ListingByVIN", mock.Anything, "1HGCV1F54KA123456").Return(&autodev.ListingRecord{
		Year: 2019, Make: "Honda", Model: "Accord",
	}, nil)
	deps.nhtsa.On("DecodeVIN", mock.Anything, "1HGCV1F54KA123456").Return(nil, errors.New("vpic down"))

	id, err := p.ResolveIdentity(context.Background(), model.ListingInput{
		URL: "https://www.cars.com/vehicledetail/detail/1HGCV1F54KA123456/",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SourceCarsCom, id.Source)
	assert.Equal(t, "1HGCV1F54KA123456", id.VIN)
	assert.Equal(t, "Honda", id.Make)
}

func TestResolveIdentity_StageFailureIsNotFatal(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.exa.On("Contents", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	id, err := p.ResolveIdentity(context.Background(), model.ListingInput{
		URL:  "https://www.sometowndealer.com/listing/1",
		Make: "Mazda", Model: "CX-5", Year: 2020,
	})
	require.NoError(t, err)
	assert.Equal(t, "2020 Mazda CX-5", id.Label())
}

func TestResolveIdentity_Unresolvable(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.exa.On("Contents", mock.Anything, mock.Anything).Return(&exa.ContentsResult{
		Text: "an empty page",
	}, nil)

	_, err := p.ResolveIdentity(context.Background(), model.ListingInput{
		URL: "https://www.sometowndealer.com/listing/blank",
	})
	var resErr *IdentityResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Contains(t, resErr.Tried, "page_content")
}

func TestResolveIdentity_InvalidCallerVINDropped(t *testing.T) {
	p, _ := newTestPipeline(t)

	id, err := p.ResolveIdentity(context.Background(), model.ListingInput{
		Make: "Honda", Model: "Civic",
		VIN: "NOTAVIN",
	})
	require.NoError(t, err)
	assert.Empty(t, id.VIN)
}
