package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/domain/workspace"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/payments"
	"github.com/yungbote/sitechat-backend/internal/platform/plans"
)

var errBillingDisabled = apierr.New(http.StatusServiceUnavailable, "integration_disabled", errors.New("billing is not configured"))

type BillingService interface {
	Checkout(dbc dbctx.Context, workspaceID uuid.UUID, planID string) (string, error)
	Portal(dbc dbctx.Context, workspaceID uuid.UUID) (string, error)
	HandleWebhook(dbc dbctx.Context, payload []byte, signature string) error
	Plans() []plans.Plan

	// CheckBotLimit fails with plan_limit_reached when ws cannot add a bot.
	CheckBotLimit(dbc dbctx.Context, ws *types.Workspace) error
	// CheckMessageQuota fails with plan_limit_reached once the workspace has
	// used its monthly user messages.
	CheckMessageQuota(dbc dbctx.Context, ws *types.Workspace) error
	MaxPagesPerBot(ws *types.Workspace) int
}

type billingService struct {
	log        *logger.Logger
	stripe     payments.Client
	catalog    *plans.Catalog
	workspaces repos.WorkspaceRepo
	bots       repos.BotRepo
	messages   repos.MessageRepo
	access     WorkspaceService
	appURL     string
	now        func() time.Time
}

func NewBillingService(
	baseLog *logger.Logger,
	stripe payments.Client,
	catalog *plans.Catalog,
	workspaces repos.WorkspaceRepo,
	bots repos.BotRepo,
	messages repos.MessageRepo,
	access WorkspaceService,
	appURL string,
) BillingService {
	return &billingService{
		log:        baseLog.With("service", "BillingService"),
		stripe:     stripe,
		catalog:    catalog,
		workspaces: workspaces,
		bots:       bots,
		messages:   messages,
		access:     access,
		appURL:     strings.TrimRight(appURL, "/"),
		now:        time.Now,
	}
}

func planLimitErr(format string, args ...any) error {
	return apierr.Newf(http.StatusPaymentRequired, "plan_limit_reached", format, args...)
}

func (s *billingService) Plans() []plans.Plan { return s.catalog.All() }

func (s *billingService) Checkout(dbc dbctx.Context, workspaceID uuid.UUID, planID string) (string, error) {
	if s.stripe == nil {
		return "", errBillingDisabled
	}
	ws, _, err := s.access.Authorize(dbc, workspaceID, workspace.RoleOwner)
	if err != nil {
		return "", err
	}
	plan, ok := s.catalog.Lookup(planID)
	if !ok || plan.ID == plans.Free {
		return "", apierr.BadRequest("invalid_request", fmt.Errorf("unknown paid plan %q", planID))
	}
	if plan.PriceID == "" {
		return "", apierr.New(http.StatusServiceUnavailable, "integration_disabled", fmt.Errorf("no price configured for %s", plan.ID))
	}
	email := ""
	if rd := ctxutil.GetRequestData(dbc.Ctx); rd != nil {
		email = rd.Email
	}
	base := fmt.Sprintf("%s/workspaces/%s/billing", s.appURL, ws.ID)
	return s.stripe.CreateCheckoutSession(dbc.Ctx, payments.CheckoutInput{
		WorkspaceID: ws.ID.String(),
		PlanID:      plan.ID,
		PriceID:     plan.PriceID,
		CustomerID:  ws.StripeCustomerID,
		Email:       email,
		SuccessURL:  base + "?checkout=success",
		CancelURL:   base + "?checkout=canceled",
	})
}

func (s *billingService) Portal(dbc dbctx.Context, workspaceID uuid.UUID) (string, error) {
	if s.stripe == nil {
		return "", errBillingDisabled
	}
	ws, _, err := s.access.Authorize(dbc, workspaceID, workspace.RoleOwner)
	if err != nil {
		return "", err
	}
	if ws.StripeCustomerID == "" {
		return "", apierr.Conflict("no_subscription", "workspace has no billing account yet")
	}
	return s.stripe.CreatePortalSession(dbc.Ctx, ws.StripeCustomerID, fmt.Sprintf("%s/workspaces/%s/billing", s.appURL, ws.ID))
}

func (s *billingService) HandleWebhook(dbc dbctx.Context, payload []byte, signature string) error {
	if s.stripe == nil {
		return errBillingDisabled
	}
	ev, err := s.stripe.ParseWebhook(payload, signature)
	if err != nil {
		return apierr.BadRequest("invalid_signature", err)
	}
	log := s.log.With("event_id", ev.ID, "event_type", ev.Type)

	switch ev.Type {
	case payments.EventCheckoutCompleted:
		id, err := uuid.Parse(ev.WorkspaceID)
		if err != nil {
			log.Warn("checkout without workspace reference")
			return nil
		}
		updates := map[string]interface{}{
			"stripe_customer_id":     ev.CustomerID,
			"stripe_subscription_id": ev.SubscriptionID,
			"subscription_status":    "active",
		}
		if plan, ok := s.catalog.Lookup(ev.PlanID); ok {
			updates["plan"] = plan.ID
		}
		if err := s.workspaces.UpdateFields(dbc, id, updates); err != nil {
			return err
		}
		log.Info("checkout completed", "workspace_id", id, "plan", updates["plan"])
		return nil

	case payments.EventSubscriptionUpdated, payments.EventSubscriptionDeleted:
		ws, err := s.resolveWorkspace(dbc, ev)
		if err != nil {
			return err
		}
		if ws == nil {
			log.Warn("subscription event for unknown workspace", "customer", ev.CustomerID)
			return nil
		}
		updates := map[string]interface{}{
			"subscription_status":    ev.Status,
			"stripe_subscription_id": ev.SubscriptionID,
		}
		if ev.CurrentPeriodEnd != nil {
			updates["current_period_end"] = *ev.CurrentPeriodEnd
		}
		if ev.Type == payments.EventSubscriptionDeleted || !subscriptionActive(ev.Status) {
			updates["plan"] = plans.Free
		} else if plan, ok := s.catalog.ByPriceID(ev.PriceID); ok {
			updates["plan"] = plan.ID
		}
		if err := s.workspaces.UpdateFields(dbc, ws.ID, updates); err != nil {
			return err
		}
		log.Info("subscription synced", "workspace_id", ws.ID, "status", ev.Status, "plan", updates["plan"])
		return nil

	default:
		log.Debug("ignoring stripe event")
		return nil
	}
}

func subscriptionActive(status string) bool {
	switch status {
	case "active", "trialing", "past_due":
		return true
	}
	return false
}

func (s *billingService) resolveWorkspace(dbc dbctx.Context, ev *payments.Event) (*types.Workspace, error) {
	if id, err := uuid.Parse(ev.WorkspaceID); err == nil {
		ws, err := s.workspaces.GetByID(dbc, id)
		if err != nil || ws != nil {
			return ws, err
		}
	}
	if ev.CustomerID == "" {
		return nil, nil
	}
	return s.workspaces.GetByStripeCustomer(dbc, ev.CustomerID)
}

func (s *billingService) CheckBotLimit(dbc dbctx.Context, ws *types.Workspace) error {
	limit := s.catalog.Get(ws.Plan).Limits.MaxBots
	if limit <= 0 {
		return nil
	}
	n, err := s.bots.CountByWorkspace(dbc, ws.ID)
	if err != nil {
		return err
	}
	if n >= int64(limit) {
		return planLimitErr("plan %s allows %d bots", ws.Plan, limit)
	}
	return nil
}

func (s *billingService) CheckMessageQuota(dbc dbctx.Context, ws *types.Workspace) error {
	limit := s.catalog.Get(ws.Plan).Limits.MaxMessagesPerMonth
	if limit <= 0 {
		return nil
	}
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	n, err := s.messages.CountForWorkspaceSince(dbc, ws.ID, monthStart)
	if err != nil {
		return err
	}
	if n >= int64(limit) {
		return planLimitErr("monthly message limit of %d reached", limit)
	}
	return nil
}

func (s *billingService) MaxPagesPerBot(ws *types.Workspace) int {
	if ws == nil {
		return s.catalog.Get(plans.Free).Limits.MaxPagesPerBot
	}
	return s.catalog.Get(ws.Plan).Limits.MaxPagesPerBot
}
