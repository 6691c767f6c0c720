package services

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/payments"
	"github.com/yungbote/sitechat-backend/internal/platform/plans"
)

func newBilling(f *fixture, stripe payments.Client, bots *memBots, msgs *memMessages) *billingService {
	svc := NewBillingService(logger.Nop(), stripe, f.catalog, f.workspaces, bots, msgs, f.access, "https://app.sitechat.test/")
	return svc.(*billingService)
}

func TestBillingDisabled(t *testing.T) {
	f := newFixture(t)
	svc := newBilling(f, nil, &memBots{}, &memMessages{})

	_, err := svc.Checkout(asUser(f.owner), f.ws.ID, plans.Pro)
	requireAPIErr(t, err, http.StatusServiceUnavailable, "integration_disabled")
	_, err = svc.Portal(asUser(f.owner), f.ws.ID)
	requireAPIErr(t, err, http.StatusServiceUnavailable, "integration_disabled")
	err = svc.HandleWebhook(asUser(f.owner), []byte(`{}`), "sig")
	requireAPIErr(t, err, http.StatusServiceUnavailable, "integration_disabled")
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	stripe := &fakeStripe{}
	svc := newBilling(f, stripe, &memBots{}, &memMessages{})

	_, err := svc.Checkout(asUser(f.admin), f.ws.ID, plans.Pro)
	requireAPIErr(t, err, http.StatusForbidden, "forbidden")

	for _, id := range []string{plans.Free, "enterprise", ""} {
		_, err = svc.Checkout(asUser(f.owner), f.ws.ID, id)
		requireAPIErr(t, err, http.StatusBadRequest, "invalid_request")
	}

	url, err := svc.Checkout(asUser(f.owner), f.ws.ID, plans.Pro)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/pro", url)
	assert.Equal(t, "price_pro", stripe.checkout.PriceID)
	assert.Equal(t, plans.Pro, stripe.checkout.PlanID)
	assert.Equal(t, f.ws.ID.String(), stripe.checkout.WorkspaceID)
	assert.Equal(t, "owner@acme.test", stripe.checkout.Email)
	assert.Equal(t, "https://app.sitechat.test/workspaces/"+f.ws.ID.String()+"/billing?checkout=success", stripe.checkout.SuccessURL)
}

func TestCheckoutWithoutPrice(t *testing.T) {
	f := newFixture(t)
	t.Setenv("STRIPE_PRICE_PRO", "")
	catalog, err := plans.Load()
	require.NoError(t, err)
	f.catalog = catalog
	svc := newBilling(f, &fakeStripe{}, &memBots{}, &memMessages{})

	_, err = svc.Checkout(asUser(f.owner), f.ws.ID, plans.Pro)
	requireAPIErr(t, err, http.StatusServiceUnavailable, "integration_disabled")
}

func TestPortal(t *testing.T) {
	f := newFixture(t)
	svc := newBilling(f, &fakeStripe{}, &memBots{}, &memMessages{})

	_, err := svc.Portal(asUser(f.owner), f.ws.ID)
	requireAPIErr(t, err, http.StatusConflict, "no_subscription")

	f.ws.StripeCustomerID = "cus_123"
	url, err := svc.Portal(asUser(f.owner), f.ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.test/cus_123", url)
}

func TestWebhookBadSignature(t *testing.T) {
	f := newFixture(t)
	svc := newBilling(f, &fakeStripe{parseErr: payments.ErrBadSignature}, &memBots{}, &memMessages{})

	err := svc.HandleWebhook(asUser(f.owner), []byte(`{}`), "bogus")
	requireAPIErr(t, err, http.StatusBadRequest, "invalid_signature")
	assert.True(t, errors.Is(err, payments.ErrBadSignature))
}

func TestWebhookCheckoutCompleted(t *testing.T) {
	f := newFixture(t)
	stripe := &fakeStripe{event: &payments.Event{
		ID:             "evt_1",
		Type:           payments.EventCheckoutCompleted,
		WorkspaceID:    f.ws.ID.String(),
		PlanID:         plans.Business,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
	}}
	svc := newBilling(f, stripe, &memBots{}, &memMessages{})

	require.NoError(t, svc.HandleWebhook(asUser(f.owner), nil, "sig"))
	got := f.workspaces.updates[f.ws.ID]
	assert.Equal(t, "cus_1", got["stripe_customer_id"])
	assert.Equal(t, "sub_1", got["stripe_subscription_id"])
	assert.Equal(t, "active", got["subscription_status"])
	assert.Equal(t, plans.Business, got["plan"])
}

func TestWebhookCheckoutWithoutWorkspace(t *testing.T) {
	f := newFixture(t)
	stripe := &fakeStripe{event: &payments.Event{Type: payments.EventCheckoutCompleted, WorkspaceID: "nope"}}
	svc := newBilling(f, stripe, &memBots{}, &memMessages{})

	require.NoError(t, svc.HandleWebhook(asUser(f.owner), nil, "sig"))
	assert.Empty(t, f.workspaces.updates)
}

func TestWebhookSubscriptionSync(t *testing.T) {
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		typ      string
		status   string
		priceID  string
		wantPlan interface{}
	}{
		{"upgrade by price", payments.EventSubscriptionUpdated, "active", "price_biz", plans.Business},
		{"trialing keeps paid plan", payments.EventSubscriptionUpdated, "trialing", "price_pro", plans.Pro},
		{"unknown price leaves plan", payments.EventSubscriptionUpdated, "active", "price_other", nil},
		{"unpaid downgrades", payments.EventSubscriptionUpdated, "unpaid", "price_pro", plans.Free},
		{"deleted downgrades", payments.EventSubscriptionDeleted, "canceled", "price_pro", plans.Free},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.ws.StripeCustomerID = "cus_9"
			stripe := &fakeStripe{event: &payments.Event{
				ID:               "evt_2",
				Type:             tc.typ,
				CustomerID:       "cus_9",
				SubscriptionID:   "sub_9",
				Status:           tc.status,
				PriceID:          tc.priceID,
				CurrentPeriodEnd: &end,
			}}
			svc := newBilling(f, stripe, &memBots{}, &memMessages{})

			require.NoError(t, svc.HandleWebhook(asUser(f.owner), nil, "sig"))
			got := f.workspaces.updates[f.ws.ID]
			require.NotNil(t, got)
			assert.Equal(t, tc.status, got["subscription_status"])
			assert.Equal(t, end, got["current_period_end"])
			assert.Equal(t, tc.wantPlan, got["plan"])
		})
	}
}

func TestWebhookUnknownCustomerIgnored(t *testing.T) {
	f := newFixture(t)
	stripe := &fakeStripe{event: &payments.Event{Type: payments.EventSubscriptionUpdated, CustomerID: "cus_ghost", Status: "active"}}
	svc := newBilling(f, stripe, &memBots{}, &memMessages{})

	require.NoError(t, svc.HandleWebhook(asUser(f.owner), nil, "sig"))
	assert.Empty(t, f.workspaces.updates)
}

func TestCheckBotLimit(t *testing.T) {
	f := newFixture(t)
	bots := &memBots{count: 0}
	svc := newBilling(f, nil, bots, &memMessages{})

	require.NoError(t, svc.CheckBotLimit(asUser(f.owner), f.ws))

	bots.count = 1
	err := svc.CheckBotLimit(asUser(f.owner), f.ws)
	requireAPIErr(t, err, http.StatusPaymentRequired, "plan_limit_reached")

	f.ws.Plan = plans.Pro
	require.NoError(t, svc.CheckBotLimit(asUser(f.owner), f.ws))
}

func TestCheckMessageQuota(t *testing.T) {
	f := newFixture(t)
	msgs := &memMessages{count: 499}
	svc := newBilling(f, nil, &memBots{}, msgs)
	svc.now = func() time.Time { return time.Date(2026, 3, 17, 15, 4, 5, 0, time.UTC) }

	require.NoError(t, svc.CheckMessageQuota(asUser(f.owner), f.ws))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), msgs.since)

	msgs.count = 500
	err := svc.CheckMessageQuota(asUser(f.owner), f.ws)
	requireAPIErr(t, err, http.StatusPaymentRequired, "plan_limit_reached")

	assert.Equal(t, 25, svc.MaxPagesPerBot(f.ws))
	assert.Equal(t, 25, svc.MaxPagesPerBot(nil))
}
