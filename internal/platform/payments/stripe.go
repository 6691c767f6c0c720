package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

var ErrBadSignature = errors.New("invalid webhook signature")

type CheckoutInput struct {
	WorkspaceID string
	PlanID      string
	PriceID     string
	CustomerID  string
	Email       string
	SuccessURL  string
	CancelURL   string
}

// Event is the part of a Stripe webhook the billing service acts on.
type Event struct {
	ID               string
	Type             string
	WorkspaceID      string
	PlanID           string
	CustomerID       string
	SubscriptionID   string
	Status           string
	PriceID          string
	CurrentPeriodEnd *time.Time
}

type Client interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

type stripeClient struct {
	log           *logger.Logger
	api           *client.API
	webhookSecret string
}

// NewClient returns nil, nil when STRIPE_SECRET_KEY is unset.
func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	key := envutil.String("STRIPE_SECRET_KEY", "")
	if key == "" {
		log.Warn("STRIPE_SECRET_KEY not set; billing disabled")
		return nil, nil
	}
	secret := envutil.String("STRIPE_WEBHOOK_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("missing STRIPE_WEBHOOK_SECRET")
	}
	api := &client.API{}
	api.Init(key, nil)
	return &stripeClient{
		log:           log.With("client", "Stripe"),
		api:           api,
		webhookSecret: secret,
	}, nil
}

func (c *stripeClient) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error) {
	if in.PriceID == "" {
		return "", fmt.Errorf("price id required")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(in.WorkspaceID),
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(in.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"workspace_id": in.WorkspaceID},
		},
	}
	params.Context = ctx
	params.AddMetadata("workspace_id", in.WorkspaceID)
	if in.PlanID != "" {
		params.AddMetadata("plan", in.PlanID)
	}
	switch {
	case in.CustomerID != "":
		params.Customer = stripe.String(in.CustomerID)
	case in.Email != "":
		params.CustomerEmail = stripe.String(in.Email)
	}
	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe checkout: %w", err)
	}
	c.log.Info("checkout session created", "workspace_id", in.WorkspaceID, "session", sess.ID)
	return sess.URL, nil
}

func (c *stripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("customer id required")
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe portal: %w", err)
	}
	return sess.URL, nil
}

func (c *stripeClient) ParseWebhook(payload []byte, signature string) (*Event, error) {
	return parseWebhook(payload, signature, c.webhookSecret)
}

func parseWebhook(payload []byte, signature, secret string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.WorkspaceID = sess.ClientReferenceID
		if out.WorkspaceID == "" {
			out.WorkspaceID = sess.Metadata["workspace_id"]
		}
		out.PlanID = sess.Metadata["plan"]
		if sess.Customer != nil {
			out.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			out.SubscriptionID = sess.Subscription.ID
		}
		out.Status = string(sess.Status)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out.SubscriptionID = sub.ID
		out.WorkspaceID = sub.Metadata["workspace_id"]
		out.Status = string(sub.Status)
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		if sub.Items != nil {
			for _, item := range sub.Items.Data {
				if item != nil && item.Price != nil && item.Price.ID != "" {
					out.PriceID = item.Price.ID
					break
				}
			}
		}
		if sub.CurrentPeriodEnd > 0 {
			t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			out.CurrentPeriodEnd = &t
		}
	}
	out.WorkspaceID = strings.TrimSpace(out.WorkspaceID)
	return out, nil
}
