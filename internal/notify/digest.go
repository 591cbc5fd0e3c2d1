package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/business"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/members"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/infra/metrics"
)

// Sender is the part of *tgbotapi.BotAPI the digest needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type MemberSource interface {
	ListActive(ctx context.Context) ([]members.Member, error)
}

// BusinessLookup resolves the business name shown above each group.
type BusinessLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*business.Business, error)
}

// Digest sends the admin chat a daily list of members about to run out.
type Digest struct {
	src    MemberSource
	biz    BusinessLookup
	bot    Sender
	chatID int64
	hour   int
	loc    *time.Location
	log    *slog.Logger
	now    func() time.Time
}

func NewDigest(src MemberSource, biz BusinessLookup, bot Sender, chatID int64, hour int, loc *time.Location, log *slog.Logger) *Digest {
	if loc == nil {
		loc = time.UTC
	}
	if hour < 0 || hour > 23 {
		hour = 9
	}
	return &Digest{src: src, biz: biz, bot: bot, chatID: chatID, hour: hour, loc: loc, log: log, now: time.Now}
}

func (d *Digest) WithClock(now func() time.Time) *Digest {
	d.now = now
	return d
}

type digestGroup struct {
	name    string
	members []members.View
}

// Build renders the digest text and the number of members in it. Members are
// grouped under their business, groups ordered by business name.
func (d *Digest) Build(ctx context.Context) (string, int, error) {
	list, err := d.src.ListActive(ctx)
	if err != nil {
		return "", 0, err
	}
	now := d.now()

	byBusiness := make(map[uuid.UUID]*digestGroup)
	total := 0
	for _, m := range list {
		if members.StatusAt(m, now) != members.StatusExpiringSoon {
			continue
		}
		g, ok := byBusiness[m.BusinessID]
		if !ok {
			name, err := d.businessName(ctx, m.BusinessID)
			if err != nil {
				return "", 0, err
			}
			g = &digestGroup{name: name}
			byBusiness[m.BusinessID] = g
		}
		g.members = append(g.members, members.NewView(m, now))
		total++
	}
	if total == 0 {
		return "", 0, nil
	}

	groups := make([]*digestGroup, 0, len(byBusiness))
	for _, g := range byBusiness {
		sort.SliceStable(g.members, func(i, j int) bool {
			return remainingKey(g.members[i]) < remainingKey(g.members[j])
		})
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].name < groups[j].name })

	var b strings.Builder
	fmt.Fprintf(&b, "Expiring soon (%d):\n", total)
	for _, g := range groups {
		fmt.Fprintf(&b, "\n%s (%d):\n", g.name, len(g.members))
		for _, v := range g.members {
			writeLine(&b, v)
		}
	}
	return b.String(), total, nil
}

func (d *Digest) businessName(ctx context.Context, id uuid.UUID) (string, error) {
	biz, err := d.biz.Get(ctx, id)
	switch {
	case errors.Is(err, business.ErrNotFound):
		return id.String(), nil
	case err != nil:
		return "", fmt.Errorf("digest business %s: %w", id, err)
	case biz.Name == "":
		return id.String(), nil
	}
	return biz.Name, nil
}

func writeLine(b *strings.Builder, v members.View) {
	name := v.Name
	if v.Code != "" {
		name = fmt.Sprintf("%s [%s]", name, v.Code)
	}
	switch v.ResolvedPlan {
	case members.PlanPackage:
		fmt.Fprintf(b, "• %s: last session of %s\n", name, v.PlanName)
	default:
		fmt.Fprintf(b, "• %s: %s ends in %d day(s)\n", name, v.PlanName, *v.DaysRemaining)
	}
}

// remainingKey orders packages on their last session first, then by days.
func remainingKey(v members.View) int {
	if v.DaysRemaining == nil {
		return 0
	}
	return *v.DaysRemaining
}

func (d *Digest) Send(ctx context.Context) error {
	text, n, err := d.Build(ctx)
	if err != nil {
		metrics.ObserveDigest(metrics.ResultError)
		return err
	}
	if n == 0 {
		metrics.ObserveDigest(metrics.ResultSkipped)
		d.log.Debug("digest skipped, nothing expiring")
		return nil
	}
	if _, err := d.bot.Send(tgbotapi.NewMessage(d.chatID, text)); err != nil {
		metrics.ObserveDigest(metrics.ResultError)
		return fmt.Errorf("send digest: %w", err)
	}
	metrics.ObserveDigest(metrics.ResultOK)
	d.log.Info("digest sent", "members", n)
	return nil
}

// NextRun is the next occurrence of hour:00 in loc strictly after now.
func NextRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run sends the digest once a day until ctx is done.
func (d *Digest) Run(ctx context.Context) error {
	for {
		now := d.now()
		wait := NextRun(now, d.hour, d.loc).Sub(now)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
			if err := d.Send(ctx); err != nil {
				d.log.Error("digest failed", "err", err)
			}
		}
	}
}
