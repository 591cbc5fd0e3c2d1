package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/business"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/members"
)

type staticSource []members.Member

func (s staticSource) ListActive(context.Context) ([]members.Member, error) { return s, nil }

type businessMap map[uuid.UUID]string

func (b businessMap) Get(_ context.Context, id uuid.UUID) (*business.Business, error) {
	name, ok := b[id]
	if !ok {
		return nil, business.ErrNotFound
	}
	return &business.Business{ID: id, Name: name}, nil
}

type recordingSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.sent = append(r.sent, c)
	return tgbotapi.Message{}, r.err
}

var (
	gymID           = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	shopID          = uuid.MustParse("00000000-0000-0000-0000-0000000000b2")
	knownBusinesses = businessMap{gymID: "Iron Gym", shopID: "Beauty Shop"}
)

var digestNow = time.Date(2025, 4, 7, 6, 30, 0, 0, time.UTC)

func in(d time.Duration) *time.Time {
	t := digestNow.Add(d)
	return &t
}

func newTestDigest(src MemberSource, bot Sender) *Digest {
	return NewDigest(src, knownBusinesses, bot, 42, 9, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(func() time.Time { return digestNow })
}

func TestDigestBuild(t *testing.T) {
	src := staticSource{
		{ID: uuid.New(), BusinessID: gymID, Name: "Far", PlanType: members.PlanSubscription, PlanName: "Year", ExpiresAt: in(200 * members.Day)},
		{ID: uuid.New(), BusinessID: gymID, Name: "Soon", Code: "17", PlanType: members.PlanSubscription, PlanName: "Monthly", ExpiresAt: in(6 * members.Day)},
		{ID: uuid.New(), BusinessID: gymID, Name: "Sooner", PlanType: members.PlanSubscription, PlanName: "Monthly", ExpiresAt: in(2 * members.Day)},
		{ID: uuid.New(), BusinessID: gymID, Name: "Last", PlanType: members.PlanPackage, PlanName: "10 visits", SessionsTotal: 10, SessionsUsed: 9},
		{ID: uuid.New(), BusinessID: gymID, Name: "Gone", PlanType: members.PlanSubscription, ExpiresAt: in(-members.Day)},
	}

	text, n, err := newTestDigest(src, &recordingSender{}).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "Expiring soon (3):", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "Iron Gym (3):", lines[2])
	assert.Contains(t, lines[3], "Last: last session of 10 visits")
	assert.Contains(t, lines[4], "Sooner: Monthly ends in 2 day(s)")
	assert.Contains(t, lines[5], "Soon [17]: Monthly ends in 6 day(s)")
}

func TestDigestBuildGroupsByBusiness(t *testing.T) {
	orphan := uuid.MustParse("00000000-0000-0000-0000-0000000000c3")
	src := staticSource{
		{ID: uuid.New(), BusinessID: gymID, Name: "Dana", PlanType: members.PlanSubscription, PlanName: "Monthly", ExpiresAt: in(3 * members.Day)},
		{ID: uuid.New(), BusinessID: shopID, Name: "Rim", PlanType: members.PlanPackage, PlanName: "5 visits", SessionsTotal: 5, SessionsUsed: 4},
		{ID: uuid.New(), BusinessID: gymID, Name: "Omar", PlanType: members.PlanSubscription, PlanName: "Monthly", ExpiresAt: in(members.Day)},
		{ID: uuid.New(), BusinessID: orphan, Name: "Lost", PlanType: members.PlanSubscription, PlanName: "Monthly", ExpiresAt: in(5 * members.Day)},
		{ID: uuid.New(), BusinessID: shopID, Name: "Far", PlanType: members.PlanSubscription, ExpiresAt: in(90 * members.Day)},
	}

	text, n, err := newTestDigest(src, &recordingSender{}).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "Expiring soon (4):", lines[0])
	assert.Equal(t, "00000000-0000-0000-0000-0000000000c3 (1):", lines[2], "an unknown business falls back to its id")
	assert.Contains(t, lines[3], "Lost: Monthly ends in 5 day(s)")
	assert.Equal(t, "Beauty Shop (1):", lines[5])
	assert.Contains(t, lines[6], "Rim: last session of 5 visits")
	assert.Equal(t, "Iron Gym (2):", lines[8])
	assert.Contains(t, lines[9], "Omar: Monthly ends in 1 day(s)")
	assert.Contains(t, lines[10], "Dana: Monthly ends in 3 day(s)")
	assert.NotContains(t, text, "Far")
}

type failingLookup struct{}

func (failingLookup) Get(context.Context, uuid.UUID) (*business.Business, error) {
	return nil, errors.New("connection reset")
}

func TestDigestBuildLookupFailure(t *testing.T) {
	src := staticSource{{BusinessID: gymID, Name: "Soon", PlanType: members.PlanSubscription, ExpiresAt: in(members.Day)}}
	d := NewDigest(src, failingLookup{}, &recordingSender{}, 42, 9, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(func() time.Time { return digestNow })
	_, _, err := d.Build(context.Background())
	assert.ErrorContains(t, err, "connection reset")
}

func TestDigestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing to report", func(t *testing.T) {
		bot := &recordingSender{}
		require.NoError(t, newTestDigest(staticSource{}, bot).Send(ctx))
		assert.Empty(t, bot.sent)
	})

	t.Run("sends to the admin chat", func(t *testing.T) {
		bot := &recordingSender{}
		src := staticSource{{Name: "Soon", PlanType: members.PlanSubscription, ExpiresAt: in(members.Day)}}
		require.NoError(t, newTestDigest(src, bot).Send(ctx))
		require.Len(t, bot.sent, 1)
		msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
		require.True(t, ok)
		assert.Equal(t, int64(42), msg.ChatID)
		assert.Contains(t, msg.Text, "Soon")
	})

	t.Run("telegram failure", func(t *testing.T) {
		bot := &recordingSender{err: errors.New("bad gateway")}
		src := staticSource{{Name: "Soon", PlanType: members.PlanSubscription, ExpiresAt: in(members.Day)}}
		assert.Error(t, newTestDigest(src, bot).Send(ctx))
	})
}

func TestNextRun(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)

	// 06:30 UTC is 09:30 local, past today's 09:00.
	next := NextRun(digestNow, 9, loc)
	assert.Equal(t, time.Date(2025, 4, 8, 9, 0, 0, 0, loc), next)

	next = NextRun(digestNow, 10, loc)
	assert.Equal(t, time.Date(2025, 4, 7, 10, 0, 0, 0, loc), next)

	exact := time.Date(2025, 4, 7, 9, 0, 0, 0, loc)
	assert.Equal(t, exact.AddDate(0, 0, 1), NextRun(exact, 9, loc))
}

func TestDigestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestDigest(staticSource{}, &recordingSender{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
