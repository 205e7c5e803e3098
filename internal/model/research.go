package model

// ResearchTopic names one scoped research lane.
type ResearchTopic string

const (
	TopicGenerationFacts ResearchTopic = "generation_facts"
	TopicOwnerFeedback   ResearchTopic = "owner_feedback"
	TopicBuyingTips      ResearchTopic = "buying_tips"
)

// AllTopics is the fixed set of research topics, in presentation order.
var AllTopics = []ResearchTopic{TopicGenerationFacts, TopicOwnerFeedback, TopicBuyingTips}

// NoEvidenceMarker is the explicit sentinel for "we searched and found
// nothing". Downstream generation is instructed to say so honestly instead
// of inventing content, so it must be distinguishable from both an empty
// string and an absent topic.
const NoEvidenceMarker = "NO_EVIDENCE_FOUND"

// ResearchBundle maps topics to concatenated, source-tagged evidence text.
// A missing key means the topic was never searched; NoEvidenceMarker means
// it was searched and came back empty.
type ResearchBundle map[ResearchTopic]string

// Evidence returns the evidence blob for a topic and whether it exists.
func (b ResearchBundle) Evidence(topic ResearchTopic) (string, bool) {
	if b == nil {
		return "", false
	}
	text, ok := b[topic]
	return text, ok
}

// HasEvidence reports whether the topic has real findings (present and not
// the no-evidence marker).
func (b ResearchBundle) HasEvidence(topic ResearchTopic) bool {
	text, ok := b.Evidence(topic)
	return ok && text != "" && text != NoEvidenceMarker
}
