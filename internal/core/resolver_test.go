package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/reply-triage/internal/blocklist"
	"github.com/mikey/reply-triage/internal/utils"
)

func newTestResolver(store StateRepository, blockedDomains []string) *ThreadResolver {
	logger := zap.NewNop()
	return NewThreadResolver(
		store,
		utils.NewTextProcessor(logger),
		blocklist.NewChecker(blockedDomains, logger),
		logger,
	)
}

func testMessage(id, sender, subject, body string, at time.Time) *Message {
	return &Message{
		ID:         id,
		Sender:     sender,
		Recipients: []string{"sales@vendor.example"},
		Subject:    subject,
		Body:       body,
		ReceivedAt: at,
	}
}

func TestResolverCreatesThread(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, nil)
	ctx := context.Background()

	msg := testMessage("m1", "alice@corp.example", "Re: Pricing question",
		"Thanks for reaching out, can you send the deck?", time.Now())

	thread, duplicate, spam, err := resolver.Resolve(ctx, msg)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.False(t, spam)
	require.NotNil(t, thread)

	assert.Regexp(t, `^t-[0-9a-f]{16}$`, thread.Key)
	assert.Equal(t, "pricing question", thread.Subject)
	assert.Len(t, thread.Messages, 1)
	assert.Contains(t, thread.Participants, "alice@corp.example")
	assert.Contains(t, thread.Participants, "sales@vendor.example")

	seen, err := store.SeenMessage(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestResolverRedeliveredMessageID(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, nil)
	ctx := context.Background()

	msg := testMessage("m1", "alice@corp.example", "Pricing question",
		"Can you send the full pricing sheet over?", time.Now())

	first, duplicate, _, err := resolver.Resolve(ctx, msg)
	require.NoError(t, err)
	require.False(t, duplicate)

	// A cleanly ingested id delivered again resumes from the stored thread
	// state instead of being treated as a duplicate.
	again, duplicate, spam, err := resolver.Resolve(ctx, msg)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.False(t, spam)
	assert.Equal(t, first.Key, again.Key)
	// The redelivery is not appended a second time
	assert.Len(t, again.Messages, 1)
}

func TestResolverRedeliveryKeepsIngestFlags(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, nil)
	ctx := context.Background()
	now := time.Now()

	body := "We are definitely interested, let's set up a call next week."
	_, _, _, err := resolver.Resolve(ctx,
		testMessage("m1", "alice@corp.example", "Re: Spring offer", body, now))
	require.NoError(t, err)

	dup := testMessage("m2", "alice@corp.example", "Re: Spring offer", body, now.Add(time.Minute))
	_, duplicate, _, err := resolver.Resolve(ctx, dup)
	require.NoError(t, err)
	require.True(t, duplicate)

	// Redelivering the content duplicate reports the flags recorded at ingest
	_, duplicate, spam, err := resolver.Resolve(ctx, dup)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.False(t, spam)

	auto := testMessage("m3", "alice@corp.example", "Automatic reply: Spring offer",
		"I am out of office until Monday with limited email access.", now.Add(2*time.Minute))
	_, _, wasSpam, err := resolver.Resolve(ctx, auto)
	require.NoError(t, err)
	require.True(t, wasSpam)

	_, duplicate, spam, err = resolver.Resolve(ctx, auto)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.True(t, spam)
}

func TestResolverDuplicateContent(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, nil)
	ctx := context.Background()
	now := time.Now()

	body := "We are definitely interested, let's set up a call next week."
	_, _, _, err := resolver.Resolve(ctx,
		testMessage("m1", "alice@corp.example", "Re: Spring offer", body, now))
	require.NoError(t, err)

	thread, duplicate, spam, err := resolver.Resolve(ctx,
		testMessage("m2", "alice@corp.example", "Re: Spring offer", body, now.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.False(t, spam)

	// Recorded in the thread for history, flagged as duplicate
	require.Len(t, thread.Messages, 2)
	assert.True(t, thread.Messages[1].Duplicate)
}

func TestResolverContentHashIgnoresQuotedReply(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, nil)
	ctx := context.Background()
	now := time.Now()

	_, _, _, err := resolver.Resolve(ctx,
		testMessage("m1", "alice@corp.example", "Re: Offer",
			"Sounds good, send over the contract please.", now))
	require.NoError(t, err)

	quoted := "Sounds good, send over the contract please.\n\nOn Tue, Bob wrote:\n> original text here"
	_, duplicate, _, err := resolver.Resolve(ctx,
		testMessage("m2", "alice@corp.example", "Re: Offer", quoted, now.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, duplicate)
}

func TestResolverReferenceLinkage(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, nil)
	ctx := context.Background()
	now := time.Now()

	first, _, _, err := resolver.Resolve(ctx,
		testMessage("m1", "alice@corp.example", "Pricing question",
			"Could you share the enterprise pricing tiers?", now))
	require.NoError(t, err)

	// Entirely different subject, but In-Reply-To points into the thread
	reply := testMessage("m2", "alice@corp.example", "totally different subject",
		"Following up on my earlier question about tiers.", now.Add(time.Hour))
	reply.InReplyTo = "m1"

	second, duplicate, _, err := resolver.Resolve(ctx, reply)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, first.Key, second.Key)
	assert.Len(t, second.Messages, 2)
}

func TestResolverDeriveKeyStability(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, nil)
	now := time.Now()

	a := testMessage("m1", "alice@corp.example", "Re: Re: Pricing Question",
		"body one that is long enough", now)
	b := testMessage("m2", "Alice@Corp.Example", "FWD: pricing   question",
		"body two that is long enough", now)
	assert.Equal(t, resolver.DeriveKey(a), resolver.DeriveKey(b))

	c := testMessage("m3", "someone-else@corp.example", "pricing question",
		"body three that is long enough", now)
	assert.NotEqual(t, resolver.DeriveKey(a), resolver.DeriveKey(c))
}

func TestResolverAutomatedDetection(t *testing.T) {
	tests := []struct {
		name    string
		msg     *Message
		blocked []string
		spam    bool
	}{
		{
			name: "out of office subject",
			msg: testMessage("m1", "alice@corp.example", "Automatic reply: Spring offer",
				"I am away until Monday with limited email access.", time.Now()),
			spam: true,
		},
		{
			name: "bounce phrase in body",
			msg: testMessage("m2", "alice@corp.example", "Spring offer",
				"Mail delivery failed: returning message to sender.", time.Now()),
			spam: true,
		},
		{
			name: "precedence bulk header",
			msg: func() *Message {
				m := testMessage("m3", "alice@corp.example", "Spring offer",
					"This is a perfectly reasonable looking body.", time.Now())
				m.Headers = map[string][]string{"Precedence": {"bulk"}}
				return m
			}(),
			spam: true,
		},
		{
			name: "x-autoreply presence",
			msg: func() *Message {
				m := testMessage("m4", "alice@corp.example", "Spring offer",
					"This is a perfectly reasonable looking body.", time.Now())
				m.Headers = map[string][]string{"X-Autoreply": {"yes"}}
				return m
			}(),
			spam: true,
		},
		{
			name: "mailer daemon local part",
			msg: testMessage("m5", "mailer-daemon@corp.example", "Spring offer",
				"Your message could not be delivered to one recipient.", time.Now()),
			spam: true,
		},
		{
			name: "blocked domain",
			msg: testMessage("m6", "alice@spammer.example", "Spring offer",
				"This is a perfectly reasonable looking body.", time.Now()),
			blocked: []string{"spammer.example"},
			spam:    true,
		},
		{
			name: "body below minimum length",
			msg: testMessage("m7", "alice@corp.example", "Spring offer",
				"ok thanks", time.Now()),
			spam: true,
		},
		{
			name: "genuine human reply",
			msg: testMessage("m8", "alice@corp.example", "Re: Spring offer",
				"Yes, I would like to hear more about this.", time.Now()),
			spam: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := newTestResolver(newFakeStore(), tt.blocked)
			_, _, spam, err := resolver.Resolve(context.Background(), tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.spam, spam)
		})
	}
}

func TestResolverMalformedInput(t *testing.T) {
	resolver := newTestResolver(newFakeStore(), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  *Message
	}{
		{"nil message", nil},
		{"missing id", &Message{Sender: "a@b.example", Body: "a body long enough to pass"}},
		{"missing sender", &Message{ID: "m1", Body: "a body long enough to pass"}},
		{"empty body", &Message{ID: "m1", Sender: "a@b.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := resolver.Resolve(ctx, tt.msg)
			assert.True(t, IsMalformed(err))
		})
	}
}

func TestResolverChronologicalInsert(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, nil)
	ctx := context.Background()
	base := time.Now()

	// Delivered out of order
	_, _, _, err := resolver.Resolve(ctx,
		testMessage("m2", "alice@corp.example", "Offer",
			"Second message by timestamp, delivered first.", base.Add(time.Hour)))
	require.NoError(t, err)

	thread, _, _, err := resolver.Resolve(ctx,
		testMessage("m1", "alice@corp.example", "Offer",
			"First message by timestamp, delivered second.", base))
	require.NoError(t, err)

	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "m1", thread.Messages[0].ID)
	assert.Equal(t, "m2", thread.Messages[1].ID)
	assert.Equal(t, base, thread.CreatedAt)
	assert.Equal(t, base.Add(time.Hour), thread.LastAt)
}

func TestResolverSeenButUnindexedIsCorruption(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, nil)
	ctx := context.Background()

	msg := testMessage("m1", "alice@corp.example", "Offer",
		"A body that is long enough to pass validation.", time.Now())
	require.NoError(t, store.MarkSeen(ctx, "m1", "t-deadbeef00000000", ""))

	// Indexed thread key points at a thread that does not exist
	_, _, _, err := resolver.Resolve(ctx, msg)
	var corruption *StateCorruptionError
	require.ErrorAs(t, err, &corruption)
	// Scoped to the broken thread; never escalates to the whole store
	assert.Equal(t, "t-deadbeef00000000", corruption.ThreadKey)
	assert.False(t, corruption.Fatal())
}

func TestResolverKeyForDoesNotMutate(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, nil)
	ctx := context.Background()

	msg := testMessage("m1", "alice@corp.example", "Offer",
		"A body that is long enough to pass validation.", time.Now())

	key, err := resolver.KeyFor(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, resolver.DeriveKey(msg), key)

	seen, err := store.SeenMessage(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, seen)
	_, err = store.GetThread(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}
