package domain

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of the rolling conversation window the client sends.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UIState is the client-declared view position: which pane is showing and
// which artifact tab is active.
type UIState struct {
	View        string `json:"view,omitempty"`
	ArtifactTab string `json:"artifact_tab,omitempty"`
}

// ClientState describes where the visitor is on the site, so answers can
// reference it without re-surfacing it.
type ClientState struct {
	Origin string  `json:"origin,omitempty"`
	Page   string  `json:"page,omitempty"`
	UI     UIState `json:"ui"`
}

// Classification buckets produced by the router.
type Classification string

const (
	ClassificationNewOpportunity Classification = "new_opportunity"
	ClassificationGeneralTalk    Classification = "general_talk"
)

func ParseClassification(s string) (Classification, bool) {
	switch Classification(strings.ToLower(strings.TrimSpace(s))) {
	case ClassificationNewOpportunity:
		return ClassificationNewOpportunity, true
	case ClassificationGeneralTalk:
		return ClassificationGeneralTalk, true
	default:
		return "", false
	}
}

// DefaultTone is used when the router gives no usable tone hint.
const DefaultTone = "warm"

// ToneApologetic is forced when the turn had to answer without retrieval
// context.
const ToneApologetic = "apologetic"

// RouteDecision is the router's verdict on a turn: which conversational bucket
// the latest message falls into, what to search for, and early UI-flow hints.
type RouteDecision struct {
	Classification Classification `json:"classification"`
	Tone           string         `json:"tone"`
	RetrievalQuery string         `json:"retrieval_query"`
	SuggestedSlugs []string       `json:"suggested_slugs,omitempty"`
	Flags          NextFlags      `json:"flags"`
	Reason         string         `json:"reason,omitempty"`
}

// Directive is an early UI hint streamed before the answer text, telling the
// client which pane to prepare.
type Directive struct {
	View string `json:"view"`
	Tab  string `json:"tab,omitempty"`
}

// RelatedItem is a UI directive: show this item alongside the answer.
type RelatedItem struct {
	Slug   string `json:"slug"`
	Reason string `json:"reason,omitempty"`
}

// Citation ties a span of the answer back to a retrieved chunk.
type Citation struct {
	Type    string `json:"type"`
	Slug    string `json:"slug"`
	ChunkID string `json:"chunk_id,omitempty"`
}

// NextFlags are conversational steering hints for the client.
type NextFlags struct {
	OfferMoreExamples bool `json:"offer_more_examples"`
	AskForEmail       bool `json:"ask_for_email"`
}

// ArtifactSection is one block of a generated fit brief.
type ArtifactSection struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ExperienceRef is one entry of the relevant-experience artifact. Title, role
// and period are filled from the catalog during validation so the client
// never needs a second lookup.
type ExperienceRef struct {
	Slug      string   `json:"slug"`
	Title     string   `json:"title,omitempty"`
	Role      string   `json:"role,omitempty"`
	Period    string   `json:"period,omitempty"`
	Bullets   []string `json:"bullets,omitempty"`
	Relevance string   `json:"relevance,omitempty"`
}

// Artifacts carries richer structured output for new-opportunity turns.
type Artifacts struct {
	FitBrief           []ArtifactSection `json:"fit_brief,omitempty"`
	RelevantExperience []ExperienceRef   `json:"relevant_experience,omitempty"`
}

// AssistantOutput is the structured completion of one generated answer as it
// moves through generation and validation.
type AssistantOutput struct {
	Text      string        `json:"text"`
	Related   []RelatedItem `json:"related"`
	Citations []Citation    `json:"citations,omitempty"`
	Next      NextFlags     `json:"next"`
	Artifacts *Artifacts    `json:"artifacts,omitempty"`
}

// AssistantText is the prose part of the response envelope.
type AssistantText struct {
	Text string `json:"text"`
}

// TurnResponse is the full result of one pipeline turn as returned to the
// client (or as the terminal payload of a stream).
type TurnResponse struct {
	Assistant      AssistantText  `json:"assistant"`
	Classification Classification `json:"classification"`
	Tone           string         `json:"tone"`
	Related        []RelatedItem  `json:"related"`
	Citations      []Citation     `json:"citations,omitempty"`
	Next           NextFlags      `json:"next"`
	Artifacts      *Artifacts     `json:"artifacts,omitempty"`
	Degraded       bool           `json:"degraded,omitempty"`
}

// LastUserMessage returns the text of the most recent user message in the
// window, or "" when the window holds none.
func LastUserMessage(window []Message) string {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].Role == RoleUser {
			return strings.TrimSpace(window[i].Text)
		}
	}
	return ""
}
