package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/reply-triage/internal/blocklist"
	"github.com/mikey/reply-triage/internal/utils"
)

// autoReplyIndicators are phrases that mark out-of-office replies, bounces
// and other automated mail in the subject or body
var autoReplyIndicators = []string{
	"auto-reply", "automatic reply", "out of office", "out-of-office",
	"vacation reply", "away message", "automated response",
	"delivery failure", "undelivered mail", "mail delivery failed",
	"this is an automated", "automatically generated",
	"you have been unsubscribed", "unsubscribe confirmation",
}

// bulkHeaders identify bulk/auto-submitted mail by header
var bulkHeaders = map[string][]string{
	"Auto-Submitted": {"auto-replied", "auto-generated"},
	"Precedence":     {"bulk", "junk", "list"},
	"X-Autoreply":    {}, // presence alone is enough
	"X-Autorespond":  {},
}

// minBodyLength is the shortest body still considered a human reply
const minBodyLength = 20

// ThreadResolver groups inbound messages into conversation threads and flags
// duplicates and automated mail before anything else runs. It owns thread and
// dedup state exclusively.
type ThreadResolver struct {
	store   StateRepository
	text    *utils.TextProcessor
	blocked *blocklist.Checker
	logger  *zap.Logger
}

// NewThreadResolver creates a new thread resolver
func NewThreadResolver(
	store StateRepository,
	text *utils.TextProcessor,
	blocked *blocklist.Checker,
	logger *zap.Logger,
) *ThreadResolver {
	return &ThreadResolver{
		store:   store,
		text:    text,
		blocked: blocked,
		logger:  logger,
	}
}

// Resolve assigns the message to exactly one thread and reports whether it is
// a duplicate or automated mail. Duplicates and spam are appended to the
// thread for history but must not reach the classifier or scorer.
func (r *ThreadResolver) Resolve(ctx context.Context, msg *Message) (*Thread, bool, bool, error) {
	if err := validateMessage(msg); err != nil {
		return nil, false, false, err
	}

	// A message id already in the dedup index was ingested before; return
	// its original thread untouched with the flags recorded at ingest. A
	// clean prior ingest means processing stopped partway (the processed
	// marker is written last), so the caller resumes from the stored state.
	seen, err := r.store.SeenMessage(ctx, msg.ID)
	if err != nil {
		return nil, false, false, fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		key, err := r.store.ThreadKeyByMessageID(ctx, msg.ID)
		if err != nil {
			return nil, false, false, &StateCorruptionError{MessageID: msg.ID, Detail: "message seen but unindexed"}
		}
		thread, err := r.loadThread(ctx, key)
		if err != nil {
			return nil, false, false, err
		}
		tm := thread.Message(msg.ID)
		if tm == nil {
			return nil, false, false, &StateCorruptionError{ThreadKey: key, Detail: fmt.Sprintf("message %s indexed but absent from thread", msg.ID)}
		}
		r.logger.Debug("Previously ingested message id",
			zap.String("message_id", msg.ID),
			zap.String("thread", key),
			zap.Bool("duplicate", tm.Duplicate),
			zap.Bool("spam", tm.Spam))
		return thread, tm.Duplicate, tm.Spam, nil
	}

	key, err := r.resolveKey(ctx, msg)
	if err != nil {
		return nil, false, false, err
	}

	thread, err := r.loadOrCreateThread(ctx, key, msg)
	if err != nil {
		return nil, false, false, err
	}

	contentHash := r.text.ContentHash(msg.Body)
	dupContent, err := r.store.SeenContent(ctx, key, contentHash)
	if err != nil {
		return nil, false, false, fmt.Errorf("content dedup lookup: %w", err)
	}

	spam := false
	if !dupContent {
		spam = r.isAutomated(msg)
	}

	tm := &ThreadMessage{
		ID:          msg.ID,
		Sender:      msg.Sender,
		Subject:     msg.Subject,
		Body:        msg.Body,
		ReceivedAt:  msg.ReceivedAt,
		ContentHash: contentHash,
		Duplicate:   dupContent,
		Spam:        spam,
	}
	appendChronological(thread, tm)
	mergeParticipants(thread, msg)

	if err := r.store.PutThread(ctx, thread); err != nil {
		return nil, false, false, fmt.Errorf("store thread: %w", err)
	}
	if err := r.store.MarkSeen(ctx, msg.ID, key, contentHash); err != nil {
		return nil, false, false, fmt.Errorf("mark seen: %w", err)
	}

	if dupContent {
		r.logger.Info("Duplicate content in thread",
			zap.String("message_id", msg.ID),
			zap.String("thread", key))
	}
	if spam {
		r.logger.Info("Automated message detected",
			zap.String("message_id", msg.ID),
			zap.String("sender", msg.Sender))
	}

	return thread, dupContent, spam, nil
}

// KeyFor resolves the thread key the message will land in without mutating
// any state. Used by the pipeline to scope per-thread serialization.
func (r *ThreadResolver) KeyFor(ctx context.Context, msg *Message) (string, error) {
	if err := validateMessage(msg); err != nil {
		return "", err
	}
	seen, err := r.store.SeenMessage(ctx, msg.ID)
	if err != nil {
		return "", fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		return r.store.ThreadKeyByMessageID(ctx, msg.ID)
	}
	return r.resolveKey(ctx, msg)
}

// resolveKey prefers explicit reference linkage over the subject-derived key
func (r *ThreadResolver) resolveKey(ctx context.Context, msg *Message) (string, error) {
	refs := make([]string, 0, len(msg.References)+1)
	if msg.InReplyTo != "" {
		refs = append(refs, msg.InReplyTo)
	}
	refs = append(refs, msg.References...)

	for _, ref := range refs {
		key, err := r.store.ThreadKeyByMessageID(ctx, ref)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("reference lookup: %w", err)
		}
	}

	return r.DeriveKey(msg), nil
}

// DeriveKey computes the heuristic thread key from the normalized subject and
// the sorted participant set
func (r *ThreadResolver) DeriveKey(msg *Message) string {
	subject := r.text.NormalizeSubject(msg.Subject)
	participants := participantSet(msg)
	sum := sha256.Sum256([]byte(subject + "|" + strings.Join(participants, ",")))
	return "t-" + hex.EncodeToString(sum[:])[:16]
}

func (r *ThreadResolver) loadThread(ctx context.Context, key string) (*Thread, error) {
	thread, err := r.store.GetThread(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &StateCorruptionError{ThreadKey: key, Detail: "indexed thread missing"}
		}
		return nil, fmt.Errorf("load thread: %w", err)
	}
	if thread.Key != key {
		return nil, &StateCorruptionError{ThreadKey: key, Detail: "thread key mismatch on read"}
	}
	return thread, nil
}

func (r *ThreadResolver) loadOrCreateThread(ctx context.Context, key string, msg *Message) (*Thread, error) {
	thread, err := r.store.GetThread(ctx, key)
	if err == nil {
		if thread.Key != key {
			return nil, &StateCorruptionError{ThreadKey: key, Detail: "thread key mismatch on read"}
		}
		return thread, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load thread: %w", err)
	}

	thread = &Thread{
		Key:          key,
		Subject:      r.text.NormalizeSubject(msg.Subject),
		Participants: participantSet(msg),
		CreatedAt:    msg.ReceivedAt,
		LastAt:       msg.ReceivedAt,
	}
	r.logger.Info("Created thread",
		zap.String("thread", key),
		zap.String("subject", thread.Subject))
	return thread, nil
}

// isAutomated applies the auto-reply/bulk-mail heuristics
func (r *ThreadResolver) isAutomated(msg *Message) bool {
	if r.blocked.IsBlocked(msg.Sender) {
		return true
	}

	for name, values := range bulkHeaders {
		got := msg.Header(name)
		if got == "" {
			continue
		}
		if len(values) == 0 {
			return true
		}
		for _, v := range values {
			if strings.EqualFold(strings.TrimSpace(got), v) {
				return true
			}
		}
	}

	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Body)
	for _, indicator := range autoReplyIndicators {
		if strings.Contains(subject, indicator) || strings.Contains(body, indicator) {
			return true
		}
	}

	return len(strings.TrimSpace(msg.Body)) < minBodyLength
}

func validateMessage(msg *Message) error {
	if msg == nil {
		return &MalformedInputError{Reason: "nil message"}
	}
	if msg.ID == "" {
		return &MalformedInputError{Reason: "missing message id"}
	}
	if strings.TrimSpace(msg.Sender) == "" {
		return &MalformedInputError{MessageID: msg.ID, Reason: "missing sender"}
	}
	if strings.TrimSpace(msg.Body) == "" && strings.TrimSpace(msg.HTMLBody) == "" {
		return &MalformedInputError{MessageID: msg.ID, Reason: "empty body"}
	}
	return nil
}

// appendChronological inserts the message keeping the thread ordered by
// received timestamp; membership is append-only
func appendChronological(thread *Thread, tm *ThreadMessage) {
	idx := sort.Search(len(thread.Messages), func(i int) bool {
		return thread.Messages[i].ReceivedAt.After(tm.ReceivedAt)
	})
	thread.Messages = append(thread.Messages, nil)
	copy(thread.Messages[idx+1:], thread.Messages[idx:])
	thread.Messages[idx] = tm

	if tm.ReceivedAt.After(thread.LastAt) {
		thread.LastAt = tm.ReceivedAt
	}
	if thread.CreatedAt.IsZero() || tm.ReceivedAt.Before(thread.CreatedAt) {
		thread.CreatedAt = tm.ReceivedAt
	}
}

func mergeParticipants(thread *Thread, msg *Message) {
	known := make(map[string]bool, len(thread.Participants))
	for _, p := range thread.Participants {
		known[p] = true
	}
	for _, p := range participantSet(msg) {
		if !known[p] {
			thread.Participants = append(thread.Participants, p)
			known[p] = true
		}
	}
	sort.Strings(thread.Participants)
}

func participantSet(msg *Message) []string {
	set := map[string]bool{strings.ToLower(strings.TrimSpace(msg.Sender)): true}
	for _, rcpt := range msg.Recipients {
		addr := strings.ToLower(strings.TrimSpace(rcpt))
		if addr != "" {
			set[addr] = true
		}
	}
	participants := make([]string, 0, len(set))
	for p := range set {
		participants = append(participants, p)
	}
	sort.Strings(participants)
	return participants
}
