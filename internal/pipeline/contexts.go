package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/askcarbuddy/advisor-cli/internal/model"
)

// runData is everything the data-gathering phases produced for one run.
// Section context builders read from it; nothing writes to it afterward.
type runData struct {
	Identity *model.VehicleIdentity
	Market   *model.MarketSnapshot
	Safety   *model.SafetyProfile
	Research model.ResearchBundle
}

// sectionContext is the scoped input for one section generation call. Each
// section sees only the slice of run data its contract allows, so a prompt
// can never leak, say, market numbers into the reliability narrative.
type sectionContext struct {
	Name model.SectionName

	// Context is the serialized data block handed to the model.
	Context string

	// Schema describes the required JSON output shape.
	Schema string

	// NoEvidence marks a section whose only evidence source came back as
	// the no-evidence marker; generation must produce an honest fallback.
	NoEvidence bool
}

// identityCore renders the identity fields every section is allowed to see.
func identityCore(id *model.VehicleIdentity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vehicle: %s\n", id.Label())
	if id.Mileage > 0 {
		fmt.Fprintf(&b, "Mileage: %d miles\n", id.Mileage)
	}
	if id.Price > 0 {
		fmt.Fprintf(&b, "Asking price: $%d\n", id.Price)
	}
	if id.VIN != "" {
		fmt.Fprintf(&b, "VIN: %s\n", id.VIN)
	}
	return b.String()
}

// buildSectionContexts constructs the five scoped section inputs.
func buildSectionContexts(data *runData) []sectionContext {
	return []sectionContext{
		marketPositionContext(data),
		reliabilityContext(data),
		ownerExperienceContext(data),
		buyingPlaybookContext(data),
		ownershipCostsContext(data),
	}
}

func marketPositionContext(data *runData) sectionContext {
	var b strings.Builder
	b.WriteString(identityCore(data.Identity))
	noEvidence := data.Market == nil
	if data.Market != nil {
		encoded, _ := json.MarshalIndent(data.Market, "", "  ")
		b.WriteString("\nMarket data (comparable listings):\n")
		b.Write(encoded)
	} else {
		b.WriteString("\nMarket data: " + model.NoEvidenceMarker + "\n")
	}
	return sectionContext{
		Name:       model.SectionMarketPosition,
		Context:    b.String(),
		NoEvidence: noEvidence,
		Schema: `{"summary": "2-3 sentences on where this price sits in the market",
"price_position": "below_market|competitive|market_price|above_market",
"value_factors": ["factor the buyer should weigh"],
"negotiation": "one concrete negotiation angle"}`,
	}
}

func reliabilityContext(data *runData) sectionContext {
	var b strings.Builder
	b.WriteString(identityCore(data.Identity))
	if data.Safety != nil {
		encoded, _ := json.MarshalIndent(data.Safety, "", "  ")
		b.WriteString("\nFederal safety record:\n")
		b.Write(encoded)
		b.WriteString("\n")
	}
	evidence, _ := data.Research.Evidence(model.TopicGenerationFacts)
	b.WriteString("\nGeneration research findings:\n" + evidence + "\n")
	return sectionContext{
		Name:       model.SectionReliability,
		Context:    b.String(),
		NoEvidence: data.Safety == nil && !data.Research.HasEvidence(model.TopicGenerationFacts),
		Schema: `{"generation_overview": "2-3 sentences on this generation's track record",
"known_issues": [{"item": "the issue", "severity": "minor_quirk|worth_checking|important|serious",
"context": "when/why it happens", "what_to_do": "what the buyer should do about it"}],
"recall_takeaway": "one sentence on the recall picture"}`,
	}
}

func ownerExperienceContext(data *runData) sectionContext {
	var b strings.Builder
	b.WriteString(identityCore(data.Identity))
	evidence, _ := data.Research.Evidence(model.TopicOwnerFeedback)
	b.WriteString("\nOwner feedback findings:\n" + evidence + "\n")
	return sectionContext{
		Name:       model.SectionOwnerExperience,
		Context:    b.String(),
		NoEvidence: !data.Research.HasEvidence(model.TopicOwnerFeedback),
		Schema: `{"sentiment": "one sentence on overall owner sentiment",
"praises": ["what owners consistently like"],
"complaints": ["what owners consistently dislike"],
"evidence_note": "how much real owner feedback backs this up"}`,
	}
}

func buyingPlaybookContext(data *runData) sectionContext {
	var b strings.Builder
	b.WriteString(identityCore(data.Identity))
	id := data.Identity
	if id.DealerName != "" {
		fmt.Fprintf(&b, "Dealer: %s\n", id.DealerName)
	}
	if id.DealerPhone != "" {
		fmt.Fprintf(&b, "Dealer phone: %s\n", id.DealerPhone)
	}
	evidence, _ := data.Research.Evidence(model.TopicBuyingTips)
	b.WriteString("\nBuying guidance findings:\n" + evidence + "\n")
	return sectionContext{
		Name:       model.SectionBuyingPlaybook,
		Context:    b.String(),
		NoEvidence: !data.Research.HasEvidence(model.TopicBuyingTips),
		Schema: `{"before_you_visit": ["step to take before going to see the car"],
"questions_to_ask": [{"ask": "the question", "why": "why it matters",
"good_sign": "answer that should reassure", "heads_up": "answer that should worry"}],
"test_drive": ["specific thing to check on the test drive"]}`,
	}
}

func ownershipCostsContext(data *runData) sectionContext {
	var b strings.Builder
	b.WriteString(identityCore(data.Identity))
	id := data.Identity
	if id.Engine != "" {
		fmt.Fprintf(&b, "Engine: %s\n", id.Engine)
	}
	if id.Transmission != "" {
		fmt.Fprintf(&b, "Transmission: %s\n", id.Transmission)
	}
	if id.Drivetrain != "" {
		fmt.Fprintf(&b, "Drivetrain: %s\n", id.Drivetrain)
	}
	if id.FuelType != "" {
		fmt.Fprintf(&b, "Fuel type: %s\n", id.FuelType)
	}
	if id.MPGCity > 0 || id.MPGHighway > 0 {
		fmt.Fprintf(&b, "EPA MPG: %d city / %d highway\n", id.MPGCity, id.MPGHighway)
	}
	return sectionContext{
		Name:    model.SectionOwnershipCosts,
		Context: b.String(),
		Schema: `{"monthly_fuel": "estimated monthly fuel spend with assumptions",
"annual_insurance_range": "typical annual insurance range for this vehicle class",
"annual_maintenance": "expected annual maintenance at this age and mileage",
"total_annual_estimate": "rough total annual cost of ownership",
"ownership_verdict": "one sentence: is this cheap, average, or expensive to own"}`,
	}
}
