package core

import (
	"context"
	"time"
)

// InferenceRequest is the input handed to the external classification
// capability: the message text plus the thread context window.
type InferenceRequest struct {
	Sender  string
	Subject string
	Body    string
	Context []ContextEntry // most recent first
	Labels  []Label
}

// InferenceResult is the raw provider output before calibration
type InferenceResult struct {
	Label      Label
	Confidence float64
	Reasoning  string
	Model      string
}

// IntentClassifier is the pluggable inference capability. Concrete providers
// are interchangeable variants selected by configuration. Infer failures are
// transient by contract; the classifier's fallback policy absorbs them.
type IntentClassifier interface {
	// Infer classifies the message text given its context window and label set
	Infer(ctx context.Context, req *InferenceRequest) (*InferenceResult, error)

	// Healthy reports whether the capability is currently usable
	Healthy(ctx context.Context) error
}

// StateRepository persists everything the core owns: threads, the dedup
// index, classifications, attributions, lead scores, decisions and the
// calibration sample log. All of it must survive restarts.
type StateRepository interface {
	// GetThread retrieves a thread by key; ErrNotFound if absent
	GetThread(ctx context.Context, key string) (*Thread, error)

	// PutThread stores or replaces a thread
	PutThread(ctx context.Context, thread *Thread) error

	// ThreadKeyByMessageID resolves the thread that ingested the given
	// message id, for explicit reference linkage; ErrNotFound if unknown
	ThreadKeyByMessageID(ctx context.Context, messageID string) (string, error)

	// SeenMessage reports whether a message id has already been ingested
	SeenMessage(ctx context.Context, messageID string) (bool, error)

	// SeenContent reports whether a content hash was already seen in a thread
	SeenContent(ctx context.Context, threadKey, contentHash string) (bool, error)

	// MarkSeen records a message id and its content hash in the dedup index
	MarkSeen(ctx context.Context, messageID, threadKey, contentHash string) error

	// IsProcessed reports whether a message id was fully processed, i.e. its
	// decision was persisted; reprocessing such a message must be a no-op
	IsProcessed(ctx context.Context, messageID string) (bool, error)

	// MarkProcessed sets the fully-processed marker for a message id
	MarkProcessed(ctx context.Context, messageID string) error

	// PutClassification stores the immutable classification for a message
	PutClassification(ctx context.Context, result *ClassificationResult) error

	// GetClassification retrieves a stored classification; ErrNotFound if absent
	GetClassification(ctx context.Context, messageID string) (*ClassificationResult, error)

	// GetAttribution retrieves the attribution for a thread; ErrNotFound if absent
	GetAttribution(ctx context.Context, threadKey string) (*AttributionRecord, error)

	// PutAttribution stores or replaces the attribution record for a thread
	PutAttribution(ctx context.Context, record *AttributionRecord) error

	// GetScore retrieves the lead score record; ErrNotFound if absent
	GetScore(ctx context.Context, leadID string) (*LeadScore, error)

	// UpdateScore replaces the lead score record, attributing the update to a
	// message id. The update applies at most once per (lead, message) pair;
	// if the message was already applied the stored record is returned.
	UpdateScore(ctx context.Context, score *LeadScore, messageID string) (*LeadScore, error)

	// PutDecision stores the immutable decision for a message
	PutDecision(ctx context.Context, decision *ActionDecision) error

	// GetDecision retrieves a stored decision; ErrNotFound if absent
	GetDecision(ctx context.Context, messageID string) (*ActionDecision, error)

	// AppendFeedback appends a calibration sample to the feedback log
	AppendFeedback(ctx context.Context, sample *FeedbackSample) error

	// ListFeedback returns up to limit most recent calibration samples
	ListFeedback(ctx context.Context, limit int) ([]*FeedbackSample, error)

	// CleanupThreads removes threads with no activity since the cutoff
	CleanupThreads(ctx context.Context, olderThan time.Time) (int, error)
}

// DecisionSink receives the per-message outcome payload consumed by the CRM
// updater, notifier and response generator collaborators
type DecisionSink interface {
	// Publish hands one decision to the downstream collaborators
	Publish(ctx context.Context, decision *ActionDecision) error
}

// CampaignDirectory exposes the campaign/lead catalog the attribution engine
// matches against. The catalog itself is owned by the CRM collaborator.
type CampaignDirectory interface {
	// CampaignByTracking resolves an exact tracking identifier; ErrNotFound if unknown
	CampaignByTracking(ctx context.Context, token string) (*Campaign, error)

	// LeadByEmail resolves a sender address to a known lead; ErrNotFound if unknown
	LeadByEmail(ctx context.Context, email string) (*Lead, error)

	// ActiveCampaigns lists campaigns currently sending
	ActiveCampaigns(ctx context.Context) ([]*Campaign, error)
}
