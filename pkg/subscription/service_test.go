package subscription_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/plankit/pkg/clock"
	"github.com/dmitrymomot/plankit/pkg/logger"
	"github.com/dmitrymomot/plankit/pkg/plans"
	"github.com/dmitrymomot/plankit/pkg/subscription"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testPlans() []plans.Plan {
	return []plans.Plan{
		{
			Code: "starter", Tag: "default", Name: "Starter",
			Price:           plans.Money{Amount: 999, Currency: "USD"},
			DurationDays:    30,
			GraceDays:       3,
			ProviderPriceID: "pri_starter",
			Features: []plans.Feature{
				{Code: "api-calls", Name: "API calls", Type: plans.FeatureTypeLimit, Limit: 1000},
				{Code: "storage", Name: "Storage", Type: plans.FeatureTypeLimit, Limit: plans.Unlimited},
				{Code: "sso", Name: "Single sign-on", Type: plans.FeatureTypeBoolean},
			},
		},
		{
			Code: "pro", Tag: "default", Name: "Pro",
			Price:           plans.Money{Amount: 2999, Currency: "USD"},
			DurationDays:    30,
			GraceDays:       5,
			ProviderPriceID: "pri_pro",
			Features: []plans.Feature{
				{Code: "api-calls", Name: "API calls", Type: plans.FeatureTypeLimit, Limit: 10000},
				{Code: "storage", Name: "Storage", Type: plans.FeatureTypeLimit, Limit: plans.Unlimited},
			},
		},
		{
			Code: "sms-100", Tag: "sms", Name: "SMS Pack",
			Price:        plans.Money{Amount: 500, Currency: "USD"},
			DurationDays: 30,
			Features: []plans.Feature{
				{Code: "sms", Name: "SMS messages", Type: plans.FeatureTypeLimit, Limit: 100},
			},
		},
	}
}

type testEnv struct {
	svc     subscription.Service
	store   subscription.Store
	usage   subscription.UsageStore
	sink    *subscription.MemorySink
	clk     *clock.Fixed
	catalog plans.Catalog
	starter *plans.Plan
	pro     *plans.Plan
	smsPack *plans.Plan
}

func newTestEnv(t *testing.T, opts ...subscription.ServiceOption) *testEnv {
	t.Helper()

	catalog, err := plans.NewInMemCatalog(testPlans())
	require.NoError(t, err)

	ctx := context.Background()
	starter, err := catalog.FindByCodeAndTag(ctx, "starter", "default")
	require.NoError(t, err)
	pro, err := catalog.FindByCodeAndTag(ctx, "pro", "default")
	require.NoError(t, err)
	smsPack, err := catalog.FindByCodeAndTag(ctx, "sms-100", "sms")
	require.NoError(t, err)

	env := &testEnv{
		store:   subscription.NewMemStore(),
		usage:   subscription.NewMemUsageStore(),
		sink:    subscription.NewMemorySink(),
		clk:     clock.NewFixed(testNow),
		catalog: catalog,
		starter: starter,
		pro:     pro,
		smsPack: smsPack,
	}
	opts = append([]subscription.ServiceOption{
		subscription.WithClock(env.clk),
		subscription.WithSink(env.sink),
	}, opts...)
	env.svc = subscription.NewService(catalog, env.store, env.usage, opts...)
	return env
}

func (e *testEnv) eventKinds() []string {
	events := e.sink.Events()
	kinds := make([]string, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind()
	}
	return kinds
}

type fakeGateway struct {
	requests []subscription.ChargeRequest
	ref      string
	err      error
}

func (g *fakeGateway) Charge(_ context.Context, req subscription.ChargeRequest) (*subscription.ChargeResult, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &subscription.ChargeResult{Reference: g.ref}, nil
}

func TestService_SubscribeTo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates monthly subscription", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		sub, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30,
			IsRecurring:  true,
			IsPaid:       true,
		})
		require.NoError(t, err)

		wantStart := testNow.Add(-time.Second)
		assert.Equal(t, subjectID, sub.SubjectID)
		assert.Equal(t, env.starter.ID, sub.PlanID)
		assert.Equal(t, "default", sub.Tag)
		assert.Equal(t, wantStart, sub.StartsOn)
		// 30 days means one calendar month, not 720 hours.
		assert.Equal(t, wantStart.AddDate(0, 1, 0), sub.ExpiresOn)
		assert.Equal(t, sub.ExpiresOn.AddDate(0, 0, 3), sub.GraceUntil)
		assert.Equal(t, 30, sub.RecurringDays)
		assert.True(t, sub.IsPaid)
		assert.True(t, sub.IsRecurring)
		assert.Equal(t, int64(999), sub.ChargingPrice)
		assert.Equal(t, "USD", sub.ChargingCurrency)

		assert.True(t, env.svc.HasActiveSubscription(ctx, subjectID, "default"))
		assert.Equal(t, []string{"subscription.new"}, env.eventKinds())
	})

	t.Run("literal day count below a month", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		sub, err := env.svc.SubscribeTo(ctx, uuid.New(), env.starter, subscription.SubscribeParams{
			DurationDays: 15,
			IsPaid:       true,
		})
		require.NoError(t, err)
		assert.Equal(t, sub.StartsOn.AddDate(0, 0, 15), sub.ExpiresOn)
		assert.Equal(t, 14, sub.RemainingDaysAt(testNow))
	})

	t.Run("rejects zero duration", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, err := env.svc.SubscribeTo(ctx, uuid.New(), env.starter, subscription.SubscribeParams{})
		assert.ErrorIs(t, err, subscription.ErrInvalidDuration)
	})

	t.Run("rejects when already active", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		_, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)

		_, err = env.svc.SubscribeTo(ctx, subjectID, env.pro, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		assert.ErrorIs(t, err, subscription.ErrSubscriptionAlreadyActive)
	})

	t.Run("supersedes due subscription", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		due, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30,
		})
		require.NoError(t, err)
		require.True(t, due.IsDue())

		fresh, err := env.svc.SubscribeTo(ctx, subjectID, env.pro, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)
		assert.NotEqual(t, due.ID, fresh.ID)

		_, err = env.store.Get(ctx, due.ID)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

		n, err := env.store.CountForSubject(ctx, subjectID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("custom future start is not active yet", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()
		startsOn := testNow.AddDate(0, 0, 5)

		sub, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30,
			IsPaid:       true,
			StartsOn:     &startsOn,
		})
		require.NoError(t, err)
		assert.Equal(t, startsOn, sub.StartsOn)
		assert.False(t, env.svc.HasActiveSubscription(ctx, subjectID, "default"))

		env.clk.AdvanceDays(5)
		assert.True(t, env.svc.HasActiveSubscription(ctx, subjectID, "default"))
	})

	t.Run("rejects overlap with future-dated subscription", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()
		startsOn := testNow.AddDate(0, 0, 5)

		_, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30,
			IsPaid:       true,
			StartsOn:     &startsOn,
		})
		require.NoError(t, err)

		// The future-dated record is not active yet, but it still blocks a
		// second subscription whose window would overlap it.
		_, err = env.svc.SubscribeTo(ctx, subjectID, env.pro, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		assert.ErrorIs(t, err, subscription.ErrSubscriptionAlreadyActive)

		// Other tags are independent tracks.
		_, err = env.svc.SubscribeTo(ctx, subjectID, env.smsPack, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)

		env.clk.AdvanceDays(6)
		list, err := env.store.ListForTag(ctx, subjectID, "default")
		require.NoError(t, err)
		active := 0
		for _, s := range list {
			if s.IsActiveAt(env.clk.Now()) && s.IsPaid && !s.IsCancelled() {
				active++
			}
		}
		assert.Equal(t, 1, active)
	})
}

func TestService_SubscribeToUntil(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("uses explicit expiry date", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		until := testNow.AddDate(0, 0, 10)

		sub, err := env.svc.SubscribeToUntil(ctx, uuid.New(), env.starter, until, subscription.SubscribeParams{
			IsPaid: true,
		})
		require.NoError(t, err)
		assert.Equal(t, until, sub.ExpiresOn)
		assert.Equal(t, 10, sub.RecurringDays)
		assert.Equal(t, []string{"subscription.new_until"}, env.eventKinds())
	})

	t.Run("rejects start on or after target date", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()
		until := testNow.AddDate(0, 0, 10)
		startsOn := testNow.AddDate(0, 0, 20)

		_, err := env.svc.SubscribeToUntil(ctx, subjectID, env.starter, until, subscription.SubscribeParams{
			IsPaid:   true,
			StartsOn: &startsOn,
		})
		assert.ErrorIs(t, err, subscription.ErrInvalidTargetDate)
		assert.False(t, env.svc.HasSubscriptions(ctx, subjectID))
	})

	t.Run("rejects non-future dates", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, err := env.svc.SubscribeToUntil(ctx, uuid.New(), env.starter, testNow, subscription.SubscribeParams{})
		assert.ErrorIs(t, err, subscription.ErrInvalidTargetDate)

		_, err = env.svc.SubscribeToUntil(ctx, uuid.New(), env.starter, testNow.AddDate(0, 0, -1), subscription.SubscribeParams{})
		assert.ErrorIs(t, err, subscription.ErrInvalidTargetDate)
	})
}

func TestService_SubscribeTo_Gateway(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("successful charge marks paid", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{ref: "txn_123"}
		env := newTestEnv(t, subscription.WithGateway(gw))
		subjectID := uuid.New()

		sub, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30,
			Payment:      &subscription.PaymentDetails{Method: "card", Token: "tok_abc"},
		})
		require.NoError(t, err)
		assert.True(t, sub.IsPaid)
		assert.Equal(t, "card", sub.PaymentMethod)

		require.Len(t, gw.requests, 1)
		assert.Equal(t, subjectID, gw.requests[0].SubjectID)
		assert.Equal(t, "tok_abc", gw.requests[0].Token)
		assert.Equal(t, "pri_starter", gw.requests[0].PriceID)
		assert.Equal(t, env.starter.Price, gw.requests[0].Amount)
		assert.Equal(t, sub.ID, gw.requests[0].SubscriptionID)

		assert.Equal(t, []string{"charge.succeeded", "subscription.new"}, env.eventKinds())
	})

	t.Run("failed charge keeps subscription unpaid", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{err: errors.New("card declined")}
		var logBuf bytes.Buffer
		env := newTestEnv(t,
			subscription.WithGateway(gw),
			subscription.WithLogger(logger.New(
				logger.WithOutput(&logBuf),
				logger.WithFormat(logger.FormatText),
			)),
		)
		subjectID := uuid.New()

		sub, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30,
			IsPaid:       true, // ignored with payment attached
			Payment:      &subscription.PaymentDetails{Method: "card", Token: "tok_bad"},
		})
		require.NoError(t, err)
		assert.False(t, sub.IsPaid)
		assert.True(t, sub.IsDue())

		stored, err := env.store.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsPaid)

		assert.Equal(t, []string{"charge.failed", "subscription.new"}, env.eventKinds())
		assert.Contains(t, logBuf.String(), "subscription charge failed")
	})

	t.Run("custom payment price overrides plan price", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{ref: "txn_456"}
		env := newTestEnv(t, subscription.WithGateway(gw))
		discounted := plans.Money{Amount: 500, Currency: "USD"}

		sub, err := env.svc.SubscribeTo(ctx, uuid.New(), env.starter, subscription.SubscribeParams{
			DurationDays: 30,
			Payment: &subscription.PaymentDetails{
				Method: "card",
				Token:  "tok_abc",
				Price:  &discounted,
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(500), sub.ChargingPrice)
		require.Len(t, gw.requests, 1)
		assert.Equal(t, discounted, gw.requests[0].Amount)
	})
}

func TestService_ExtendWith(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("in place from now", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		orig, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)
		env.sink.Reset()

		extended, err := env.svc.ExtendWith(ctx, subjectID, "default", 10, true, true)
		require.NoError(t, err)
		assert.Equal(t, orig.ID, extended.ID)
		assert.Equal(t, orig.ExpiresOn.AddDate(0, 0, 10), extended.ExpiresOn)
		assert.Equal(t, extended.ExpiresOn.AddDate(0, 0, 3), extended.GraceUntil)

		n, err := env.store.CountForSubject(ctx, subjectID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"subscription.extend"}, env.eventKinds())
	})

	t.Run("chained successor record", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		orig, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)
		env.sink.Reset()

		successor, err := env.svc.ExtendWith(ctx, subjectID, "default", 10, false, true)
		require.NoError(t, err)
		assert.NotEqual(t, orig.ID, successor.ID)
		assert.Equal(t, orig.ExpiresOn, successor.StartsOn)
		assert.Equal(t, orig.ExpiresOn.AddDate(0, 0, 10), successor.ExpiresOn)
		assert.Equal(t, orig.PlanID, successor.PlanID)
		assert.True(t, successor.IsPaid)

		n, err := env.store.CountForSubject(ctx, subjectID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		events := env.sink.Events()
		require.Len(t, events, 1)
		ext, ok := events[0].(subscription.ExtendSubscription)
		require.True(t, ok)
		assert.False(t, ext.StartFromNow)
		require.NotNil(t, ext.Successor)
		assert.Equal(t, successor.ID, ext.Successor.ID)
	})

	t.Run("rejects zero days on active subscription", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		_, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)

		_, err = env.svc.ExtendWith(ctx, subjectID, "default", 0, true, false)
		assert.ErrorIs(t, err, subscription.ErrInvalidDuration)
	})

	t.Run("falls back to default plan without history", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		sub, err := env.svc.ExtendWith(ctx, subjectID, "default", 20, false, false)
		require.NoError(t, err)
		assert.Equal(t, env.starter.ID, sub.PlanID)
		assert.True(t, sub.IsPaid)
		assert.Equal(t, 20, sub.RecurringDays)
		assert.True(t, env.svc.HasActiveSubscription(ctx, subjectID, "default"))
	})

	t.Run("falls back to last known plan after expiry", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		_, err := env.svc.SubscribeTo(ctx, subjectID, env.pro, subscription.SubscribeParams{
			DurationDays: 5, IsPaid: true,
		})
		require.NoError(t, err)
		env.clk.AdvanceDays(6)

		sub, err := env.svc.ExtendWith(ctx, subjectID, "default", 10, true, false)
		require.NoError(t, err)
		assert.Equal(t, env.pro.ID, sub.PlanID)
	})
}

func TestService_ExtendUntil(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("in place from now", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		orig, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)

		until := testNow.AddDate(0, 0, 40)
		extended, err := env.svc.ExtendUntil(ctx, subjectID, "default", until, true, true)
		require.NoError(t, err)
		assert.Equal(t, orig.ID, extended.ID)
		assert.Equal(t, until, extended.ExpiresOn)
	})

	t.Run("rejects past target from now", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		_, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)

		_, err = env.svc.ExtendUntil(ctx, subjectID, "default", testNow.Add(-time.Hour), true, false)
		assert.ErrorIs(t, err, subscription.ErrInvalidTargetDate)
	})

	t.Run("rejects chained target before current expiry", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		_, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)

		_, err = env.svc.ExtendUntil(ctx, subjectID, "default", testNow.AddDate(0, 0, 5), false, false)
		assert.ErrorIs(t, err, subscription.ErrInvalidTargetDate)
	})

	t.Run("chained successor up to target", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		orig, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)

		until := testNow.AddDate(0, 0, 60)
		successor, err := env.svc.ExtendUntil(ctx, subjectID, "default", until, false, true)
		require.NoError(t, err)
		assert.NotEqual(t, orig.ID, successor.ID)
		assert.Equal(t, orig.ExpiresOn, successor.StartsOn)
		assert.Equal(t, until, successor.ExpiresOn)
	})
}

func TestService_UpgradeTo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rebinds active subscription to new plan", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		_, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)
		env.sink.Reset()

		sub, err := env.svc.UpgradeTo(ctx, subjectID, env.pro, 10, true, true)
		require.NoError(t, err)
		assert.Equal(t, env.pro.ID, sub.PlanID)
		// Grace window follows the new plan.
		assert.Equal(t, sub.ExpiresOn.AddDate(0, 0, 5), sub.GraceUntil)

		events := env.sink.Events()
		require.Len(t, events, 2)
		assert.Equal(t, "subscription.extend", events[0].Kind())
		up, ok := events[1].(subscription.UpgradeSubscription)
		require.True(t, ok)
		assert.Equal(t, env.starter.ID, up.OldPlan.ID)
		assert.Equal(t, env.pro.ID, up.NewPlan.ID)
	})

	t.Run("degrades to fresh subscription when none active", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		sub, err := env.svc.UpgradeTo(ctx, subjectID, env.pro, 30, true, true)
		require.NoError(t, err)
		assert.Equal(t, env.pro.ID, sub.PlanID)
		assert.True(t, sub.IsPaid)
	})
}

func TestService_UpgradeToUntil(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	subjectID := uuid.New()

	orig, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
		DurationDays: 30, IsPaid: true,
	})
	require.NoError(t, err)
	env.sink.Reset()

	until := testNow.AddDate(0, 0, 60)
	successor, err := env.svc.UpgradeToUntil(ctx, subjectID, env.pro, until, false, true)
	require.NoError(t, err)
	assert.NotEqual(t, orig.ID, successor.ID)
	assert.Equal(t, env.pro.ID, successor.PlanID)
	assert.Equal(t, until, successor.ExpiresOn)

	kinds := env.eventKinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, "subscription.upgrade_until", kinds[1])
}

func TestService_Renew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("recreates expired recurring subscription", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		orig, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 15, IsRecurring: true, IsPaid: true,
		})
		require.NoError(t, err)
		env.clk.AdvanceDays(16)

		renewed, err := env.svc.Renew(ctx, subjectID, "default", nil)
		require.NoError(t, err)
		assert.NotEqual(t, orig.ID, renewed.ID)
		assert.Equal(t, orig.PlanID, renewed.PlanID)
		assert.Equal(t, 15, renewed.RecurringDays)
		assert.True(t, renewed.IsRecurring)

		// Renewal starts unpaid and activates once settled.
		assert.False(t, renewed.IsPaid)
		assert.False(t, env.svc.HasActiveSubscription(ctx, subjectID, "default"))

		paid, err := env.svc.MarkPaid(ctx, renewed.ID)
		require.NoError(t, err)
		assert.True(t, paid.IsPaid)
		assert.True(t, env.svc.HasActiveSubscription(ctx, subjectID, "default"))
	})

	t.Run("rejects while still active", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		_, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsRecurring: true, IsPaid: true,
		})
		require.NoError(t, err)

		_, err = env.svc.Renew(ctx, subjectID, "default", nil)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionAlreadyActive)
	})

	t.Run("rejects non-recurring", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		_, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 15, IsPaid: true,
		})
		require.NoError(t, err)
		env.clk.AdvanceDays(16)

		_, err = env.svc.Renew(ctx, subjectID, "default", nil)
		assert.ErrorIs(t, err, subscription.ErrNotRecurring)
	})

	t.Run("rejects without history", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, err := env.svc.Renew(ctx, uuid.New(), "default", nil)
		assert.ErrorIs(t, err, subscription.ErrNoSubscriptionToRenew)
	})

	t.Run("rejects cancelled", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		cancelledOn := testNow.AddDate(0, 0, -20)
		sub := &subscription.Subscription{
			ID:            uuid.New(),
			SubjectID:     subjectID,
			PlanID:        env.starter.ID,
			Tag:           "default",
			StartsOn:      testNow.AddDate(0, 0, -30),
			ExpiresOn:     testNow.AddDate(0, 0, -1),
			GraceUntil:    testNow.AddDate(0, 0, 2),
			CancelledOn:   &cancelledOn,
			IsPaid:        true,
			IsRecurring:   true,
			RecurringDays: 30,
		}
		require.NoError(t, env.store.Create(ctx, sub))

		_, err := env.svc.Renew(ctx, subjectID, "default", nil)
		assert.ErrorIs(t, err, subscription.ErrAlreadyCancelled)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("effective at period end", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		_, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsRecurring: true, IsPaid: true,
		})
		require.NoError(t, err)
		env.sink.Reset()

		cancelled, err := env.svc.Cancel(ctx, subjectID, "default")
		require.NoError(t, err)
		require.NotNil(t, cancelled.CancelledOn)
		assert.Equal(t, testNow, *cancelled.CancelledOn)
		assert.False(t, cancelled.IsRecurring)
		// The window itself is untouched.
		assert.True(t, cancelled.IsActiveAt(testNow))
		assert.True(t, cancelled.IsPendingCancellationAt(testNow))

		assert.Equal(t, []string{"subscription.cancel"}, env.eventKinds())
	})

	t.Run("second cancel fails", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		subjectID := uuid.New()

		_, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
			DurationDays: 30, IsPaid: true,
		})
		require.NoError(t, err)

		_, err = env.svc.Cancel(ctx, subjectID, "default")
		require.NoError(t, err)

		// The cancelled record is no longer selectable as active.
		_, err = env.svc.Cancel(ctx, subjectID, "default")
		assert.ErrorIs(t, err, subscription.ErrNoActiveSubscription)
	})

	t.Run("fails without active subscription", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, err := env.svc.Cancel(ctx, uuid.New(), "default")
		assert.ErrorIs(t, err, subscription.ErrNoActiveSubscription)
	})
}

func TestService_MarkPaid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.MarkPaid(ctx, uuid.New())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	sub, err := env.svc.SubscribeTo(ctx, uuid.New(), env.starter, subscription.SubscribeParams{
		DurationDays: 30,
	})
	require.NoError(t, err)
	require.False(t, sub.IsPaid)

	paid, err := env.svc.MarkPaid(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)

	// Idempotent on settled records.
	again, err := env.svc.MarkPaid(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, again.IsPaid)
}

func TestService_Queries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	subjectID := uuid.New()

	assert.False(t, env.svc.HasSubscriptions(ctx, subjectID))
	_, err := env.svc.ActiveSubscription(ctx, subjectID, "default")
	assert.ErrorIs(t, err, subscription.ErrNoActiveSubscription)

	sub, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
		DurationDays: 30, IsPaid: true,
	})
	require.NoError(t, err)

	assert.True(t, env.svc.HasSubscriptions(ctx, subjectID))

	active, err := env.svc.ActiveSubscription(ctx, subjectID, "default")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, active.ID)

	last, err := env.svc.LastSubscription(ctx, subjectID, "default")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, last.ID)

	proformaID := uuid.New()
	sub.ProformaID = &proformaID
	require.NoError(t, env.store.Update(ctx, sub))

	byProforma, err := env.svc.SubscriptionByProforma(ctx, proformaID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, byProforma.ID)

	_, err = env.svc.SubscriptionByProforma(ctx, uuid.New())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestService_TagsAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	subjectID := uuid.New()

	_, err := env.svc.SubscribeTo(ctx, subjectID, env.starter, subscription.SubscribeParams{
		DurationDays: 30, IsPaid: true,
	})
	require.NoError(t, err)

	_, err = env.svc.SubscribeTo(ctx, subjectID, env.smsPack, subscription.SubscribeParams{
		DurationDays: 30, IsPaid: true,
	})
	require.NoError(t, err)

	assert.True(t, env.svc.HasActiveSubscription(ctx, subjectID, "default"))
	assert.True(t, env.svc.HasActiveSubscription(ctx, subjectID, "sms"))

	_, err = env.svc.Cancel(ctx, subjectID, "default")
	require.NoError(t, err)

	assert.False(t, env.svc.HasActiveSubscription(ctx, subjectID, "default"))
	assert.True(t, env.svc.HasActiveSubscription(ctx, subjectID, "sms"))
}
