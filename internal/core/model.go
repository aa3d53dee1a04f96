package core

import (
	"time"
)

// Label is the intent classification assigned to a reply
type Label string

const (
	LabelNotInterested   Label = "Not Interested"
	LabelMaybeInterested Label = "Maybe Interested"
	LabelInterested      Label = "Interested"
)

// AllLabels is the fixed label set handed to the inference capability
var AllLabels = []Label{LabelNotInterested, LabelMaybeInterested, LabelInterested}

// Valid reports whether the label is one of the known intent labels
func (l Label) Valid() bool {
	switch l {
	case LabelNotInterested, LabelMaybeInterested, LabelInterested:
		return true
	}
	return false
}

// Message is one inbound reply as delivered by the ingestion collaborator.
// Immutable once ingested.
type Message struct {
	ID         string
	Sender     string
	Recipients []string
	Subject    string
	Body       string
	HTMLBody   string
	ReceivedAt time.Time
	InReplyTo  string
	References []string
	Headers    map[string][]string
}

// Header returns the first value of a header, or ""
func (m *Message) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	if vs, ok := m.Headers[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// ThreadMessage is a message as recorded inside a thread, with the
// per-message duplicate/spam flags and, once classified, its label.
type ThreadMessage struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ReceivedAt  time.Time `json:"received_at"`
	ContentHash string    `json:"content_hash"`
	Duplicate   bool      `json:"duplicate"`
	Spam        bool      `json:"spam"`
	Label       Label     `json:"label,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
}

// Thread is an ordered conversation of messages. Membership is append-only:
// messages are never moved between threads once assigned.
type Thread struct {
	Key          string           `json:"key"`
	Subject      string           `json:"subject"` // normalized
	Participants []string         `json:"participants"`
	Messages     []*ThreadMessage `json:"messages"` // chronological
	CreatedAt    time.Time        `json:"created_at"`
	LastAt       time.Time        `json:"last_at"`
}

// Message returns the thread message with the given ID, or nil
func (t *Thread) Message(id string) *ThreadMessage {
	for _, m := range t.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// ContextEntry is one prior message of the thread as seen by the classifier:
// the text plus the label it was previously given.
type ContextEntry struct {
	MessageID  string    `json:"message_id"`
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	Label      Label     `json:"label"`
	ReceivedAt time.Time `json:"received_at"`
}

// ClassificationResult is the classifier output for one non-duplicate message.
// Immutable; exactly one per classified message.
type ClassificationResult struct {
	MessageID     string         `json:"message_id"`
	ThreadKey     string         `json:"thread_key"`
	Label         Label          `json:"label"`
	Confidence    float64        `json:"confidence"` // calibrated
	RawConfidence float64        `json:"raw_confidence"`
	Context       []ContextEntry `json:"context"` // window used, most recent first
	Model         string         `json:"model"`
	Reasoning     string         `json:"reasoning,omitempty"`
	Fallback      bool           `json:"fallback"`
	ClassifiedAt  time.Time      `json:"classified_at"`
}

// MatchReason records how a thread was attributed to a campaign
type MatchReason string

const (
	MatchTrackingID   MatchReason = "tracking-id"
	MatchSenderEmail  MatchReason = "sender-email"
	MatchFuzzySubject MatchReason = "fuzzy-subject"
	MatchNone         MatchReason = "unattributed"
)

// UnattributedCampaign is the sentinel campaign id for threads that could not
// be linked to any campaign. Such threads still flow through the router but
// are ineligible for campaign-list removal actions.
const UnattributedCampaign = "unattributed"

// AttributionRecord links a thread to a campaign and lead. It may be revised
// wholesale when a stronger match (lower precedence number) appears later in
// the same thread; score history is never rewritten.
type AttributionRecord struct {
	ThreadKey  string      `json:"thread_key"`
	CampaignID string      `json:"campaign_id"`
	LeadID     string      `json:"lead_id,omitempty"`
	Confidence float64     `json:"confidence"`
	Reason     MatchReason `json:"reason"`
	Precedence int         `json:"precedence"` // 1 tracking, 2 sender, 3 fuzzy, 4 none
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Attributed reports whether the record points at a real campaign or lead.
// A sender-matched lead with no campaign membership still counts: suppression
// applies to the lead even when there is no campaign list to prune.
func (a *AttributionRecord) Attributed() bool {
	return a != nil && (a.CampaignID != UnattributedCampaign || a.LeadID != "")
}

// LeadScore is the running engagement score for one lead. Owned exclusively
// by the attribution engine; never drops below the configured floor.
type LeadScore struct {
	LeadID        string    `json:"lead_id"`
	Score         float64   `json:"score"`
	LastEngagedAt time.Time `json:"last_engaged_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Archived      bool      `json:"archived"`
}

// Action is one downstream action the router can emit
type Action string

const (
	ActionRespondInterested      Action = "RespondInterested"
	ActionRespondMaybe           Action = "RespondMaybe"
	ActionSuppressAndAcknowledge Action = "SuppressAndAcknowledge"
	ActionNotifyRep              Action = "NotifyRep"
	ActionNoAction               Action = "NoAction"
)

// ActionDecision is the router output for one processed message, together
// with the evidence that produced it. Immutable.
type ActionDecision struct {
	MessageID      string               `json:"message_id"`
	Actions        []Action             `json:"actions"`
	Classification ClassificationResult `json:"classification"`
	Attribution    AttributionRecord    `json:"attribution"`
	Score          LeadScore            `json:"score"` // snapshot at decision time
	DecidedAt      time.Time            `json:"decided_at"`
}

// HasAction reports whether the decision contains the given action
func (d *ActionDecision) HasAction(a Action) bool {
	for _, got := range d.Actions {
		if got == a {
			return true
		}
	}
	return false
}

// RoutingPolicy holds the externally supplied router thresholds
type RoutingPolicy struct {
	ThresholdHigh float64
	ThresholdMid  float64
}

// Campaign is one marketing campaign known to the directory collaborator
type Campaign struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	TrackingID string   `json:"tracking_id"`
	Subjects   []string `json:"subjects"` // subjects used on the send list
	Active     bool     `json:"active"`
}

// Lead is a CRM lead/contact known to the directory collaborator
type Lead struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	CampaignIDs []string `json:"campaign_ids"`
}

// FeedbackSample is one human-confirmed outcome joined with the original
// classification context, appended to the calibration sample log.
type FeedbackSample struct {
	MessageID        string    `json:"message_id"`
	Predicted        Label     `json:"predicted"`
	Confirmed        Label     `json:"confirmed"`
	Confidence       float64   `json:"confidence"`
	ConsistentPriors int       `json:"consistent_priors"`
	Flips            int       `json:"flips"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// Correct reports whether the prediction matched the confirmed outcome
func (s *FeedbackSample) Correct() bool {
	return s.Predicted == s.Confirmed
}

// BatchSummary is the per-invocation processing report
type BatchSummary struct {
	BatchID    string
	Processed  int
	Duplicates int
	Spam       int
	Skipped    int // malformed input
	Failed     int
	Replayed   int // already-processed messages returning stored decisions
	Decisions  []*ActionDecision
	StartedAt  time.Time
	FinishedAt time.Time
}
