package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"client-delivery-backend/internal/frameio"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/payments"
	"client-delivery-backend/internal/repository"
	"client-delivery-backend/internal/webhooks"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
)

// Frame.io event types that can bring a new deliverable.
const (
	FrameioFileCreated         = "file.created"
	FrameioFileUploadCompleted = "file.upload.completed"
	FrameioFileVersioned       = "file.versioned"
)

// Trello action types that change a card's handler.
const (
	TrelloAddMember    = "addMemberToCard"
	TrelloRemoveMember = "removeMemberFromCard"
)

// IngestService applies verified webhook deliveries. Each delivery is
// processed at most once: it is recorded only after its side effects
// succeed, so a failed delivery is retried by the sender.
type IngestService struct {
	store      repository.Store
	projects   *ProjectService
	reconciler *ReconcileService
	media      MediaPlatform
	logger     *slog.Logger
}

func NewIngestService(store repository.Store, projects *ProjectService, reconciler *ReconcileService, media MediaPlatform, logger *slog.Logger) *IngestService {
	return &IngestService{
		store:      store,
		projects:   projects,
		reconciler: reconciler,
		media:      media,
		logger:     logger.With("component", "ingest"),
	}
}

// Handle processes ev unless it was processed before. Unknown event types
// are acknowledged without side effects.
func (s *IngestService) Handle(ctx context.Context, ev *webhooks.Event) error {
	log := s.logger.With("provider", ev.Provider, "event_id", ev.ID, "type", ev.Type)

	done, err := s.store.EventProcessed(ctx, ev.Provider, ev.ID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if done {
		log.Info("duplicate delivery ignored")
		return nil
	}

	switch ev.Provider {
	case webhooks.ProviderStripe:
		err = s.handleStripe(ctx, ev)
	case webhooks.ProviderFrameio:
		err = s.handleFrameio(ctx, ev)
	case webhooks.ProviderTrello:
		err = s.handleTrello(ctx, ev)
	default:
		log.Warn("event from unknown provider acknowledged")
	}
	if err != nil {
		log.Error("webhook processing failed", "error", err)
		return err
	}

	if err := s.store.RecordEvent(ctx, ev.Provider, ev.ID, ev.Type); err != nil && !errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("failed to record event: %w", err)
	}
	log.Info("webhook processed")
	return nil
}

func (s *IngestService) handleStripe(ctx context.Context, ev *webhooks.Event) error {
	var sev stripe.Event
	if err := json.Unmarshal(ev.Payload, &sev); err != nil {
		return fmt.Errorf("%w: %v", webhooks.ErrMalformedPayload, err)
	}

	switch ev.Type {
	case payments.EventCheckoutCompleted:
		sess, err := payments.CheckoutSession(&sev)
		if err != nil {
			return err
		}
		return s.checkoutCompleted(ctx, sess)

	case payments.EventCheckoutExpired:
		sess, err := payments.CheckoutSession(&sev)
		if err != nil {
			return err
		}
		if sess.Metadata[payments.MetaPaymentType] != payments.PaymentTypeRevision {
			return nil
		}
		if err := s.store.FailPayment(ctx, sess.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to mark payment failed: %w", err)
		}
		return nil

	case payments.EventSubscriptionUpdated, payments.EventSubscriptionDeleted:
		sub, err := payments.Subscription(&sev)
		if err != nil {
			return err
		}
		return s.syncSubscription(ctx, sub, ev.Type == payments.EventSubscriptionDeleted)

	case payments.EventInvoicePaid, payments.EventInvoicePaymentFailed:
		inv, err := payments.Invoice(&sev)
		if err != nil {
			return err
		}
		if inv.Subscription == nil || inv.Subscription.ID == "" {
			return nil
		}
		status := models.SubscriptionActive
		if ev.Type == payments.EventInvoicePaymentFailed {
			status = models.SubscriptionPastDue
		}
		return s.setSubscriptionStatus(ctx, inv.Subscription.ID, status)
	}
	return nil
}

func (s *IngestService) checkoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	switch sess.Metadata[payments.MetaPaymentType] {
	case payments.PaymentTypeRevision:
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			s.logger.Info("revision checkout completed without payment", "session_id", sess.ID)
			return nil
		}
		projectID, err := uuid.Parse(sess.Metadata[payments.MetaProjectID])
		if err != nil {
			return fmt.Errorf("%w: project_id metadata", ErrPaymentMismatch)
		}
		userID, err := uuid.Parse(sess.Metadata[payments.MetaUserID])
		if err != nil {
			return fmt.Errorf("%w: user_id metadata", ErrPaymentMismatch)
		}
		_, err = s.projects.ConfirmRevisionPayment(ctx, RevisionConfirmation{
			SessionID:   sess.ID,
			ProjectID:   projectID,
			UserID:      userID,
			AmountCents: sess.AmountTotal,
			Currency:    string(sess.Currency),
		})
		return err

	case payments.PaymentTypeSubscription:
		userID, err := uuid.Parse(sess.Metadata[payments.MetaUserID])
		if err != nil {
			return fmt.Errorf("%w: user_id metadata", ErrInvalidInput)
		}
		tier, err := models.ParseTier(sess.Metadata[payments.MetaTier])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		sub := &models.Subscription{
			UserID:             userID,
			Tier:               tier,
			Status:             models.SubscriptionActive,
			CurrentPeriodStart: time.Now(),
		}
		if sess.Customer != nil && sess.Customer.ID != "" {
			sub.StripeCustomerID = sql.NullString{String: sess.Customer.ID, Valid: true}
		}
		if sess.Subscription != nil && sess.Subscription.ID != "" {
			sub.StripeSubscriptionID = sql.NullString{String: sess.Subscription.ID, Valid: true}
		}
		if err := s.store.UpsertSubscription(ctx, sub); err != nil {
			return fmt.Errorf("failed to store subscription: %w", err)
		}
		s.logger.Info("subscription started", "user_id", userID.String(), "tier", string(tier))
		return nil
	}
	return nil
}

func (s *IngestService) syncSubscription(ctx context.Context, ss *stripe.Subscription, deleted bool) error {
	sub, err := s.store.GetSubscriptionByStripeID(ctx, ss.ID)
	if errors.Is(err, repository.ErrNotFound) {
		userID, perr := uuid.Parse(ss.Metadata[payments.MetaUserID])
		if perr != nil {
			s.logger.Warn("subscription event for unknown subscription", "subscription_id", ss.ID)
			return nil
		}
		sub = &models.Subscription{
			UserID:               userID,
			Tier:                 models.TierBasic,
			StripeSubscriptionID: sql.NullString{String: ss.ID, Valid: true},
		}
	} else if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}

	if tier, err := models.ParseTier(ss.Metadata[payments.MetaTier]); err == nil {
		sub.Tier = tier
	}
	if ss.Customer != nil && ss.Customer.ID != "" {
		sub.StripeCustomerID = sql.NullString{String: ss.Customer.ID, Valid: true}
	}
	if ss.CurrentPeriodStart > 0 {
		sub.CurrentPeriodStart = time.Unix(ss.CurrentPeriodStart, 0).UTC()
	}
	if ss.CurrentPeriodEnd > 0 {
		sub.CurrentPeriodEnd = sql.NullTime{Time: time.Unix(ss.CurrentPeriodEnd, 0).UTC(), Valid: true}
	}
	sub.Status = subscriptionStatus(ss.Status)
	if deleted {
		sub.Status = models.SubscriptionCanceled
	}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to store subscription: %w", err)
	}
	return nil
}

func (s *IngestService) setSubscriptionStatus(ctx context.Context, stripeID string, status models.SubscriptionStatus) error {
	sub, err := s.store.GetSubscriptionByStripeID(ctx, stripeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.Status == status {
		return nil
	}
	sub.Status = status
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to store subscription: %w", err)
	}
	return nil
}

func subscriptionStatus(st stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch st {
	case stripe.SubscriptionStatusActive:
		return models.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		return models.SubscriptionTrialing
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionCanceled
	default:
		return models.SubscriptionPastDue
	}
}

func (s *IngestService) handleFrameio(ctx context.Context, ev *webhooks.Event) error {
	switch ev.Type {
	case FrameioFileCreated, FrameioFileUploadCompleted, FrameioFileVersioned:
	default:
		return nil
	}

	var payload webhooks.FrameioPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", webhooks.ErrMalformedPayload, err)
	}
	asset, err := s.media.GetFile(ctx, payload.Resource.ID)
	if frameio.IsNotFound(err) {
		s.logger.Info("webhook file no longer exists", "file_id", payload.Resource.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get file: %w", err)
	}

	p, err := s.store.FindProjectByFolder(ctx, asset.ParentID)
	if errors.Is(err, repository.ErrNotFound) {
		// Client uploads and unrelated folders.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find project: %w", err)
	}

	res, err := s.reconciler.Reconcile(ctx, p.ID)
	if err != nil {
		return err
	}
	s.logger.Info("project reconciled from webhook",
		"project_id", p.ID.String(), "new_files", res.NewFiles, "transitioned", res.Transitioned)
	return nil
}

func (s *IngestService) handleTrello(ctx context.Context, ev *webhooks.Event) error {
	if ev.Type != TrelloAddMember && ev.Type != TrelloRemoveMember {
		return nil
	}
	var payload webhooks.TrelloPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", webhooks.ErrMalformedPayload, err)
	}

	cardID := payload.Action.Data.Card.ID
	memberID := payload.Action.Data.IDMember
	if memberID == "" {
		memberID = payload.Action.Member.ID
	}
	card, err := s.store.GetCardByExternalID(ctx, cardID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get card: %w", err)
	}

	handler := sql.NullString{String: memberID, Valid: memberID != ""}
	if ev.Type == TrelloRemoveMember {
		if card.AssignedHandler.String != memberID {
			return nil
		}
		handler = sql.NullString{}
	}
	if err := s.store.SetCardHandler(ctx, cardID, handler); err != nil {
		return fmt.Errorf("failed to set card handler: %w", err)
	}
	s.logger.Info("card handler updated", "card_id", cardID, "handler", handler.String)
	return nil
}
