package merchant

import (
	"context"
	"errors"
	"strings"

	"checkout-proxy/internal/entry"
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/payment"
	"checkout-proxy/internal/proxy"
	"checkout-proxy/internal/utils"

	"go.uber.org/zap"
)

// ActionApplier is satisfied by *payment.Processor.
type ActionApplier interface {
	Apply(ctx context.Context, a payment.Action) (payment.Outcome, error)
}

// Poster performs a signed exchange with the Payment Service.
type Poster interface {
	Post(ctx context.Context, endpoint string, in, out interface{}) error
}

// VerifyResult tells the payment page where to send the customer.
type VerifyResult struct {
	Success      bool
	ErrorMessage string
	Outcome      payment.Outcome
}

type Service interface {
	LookupAmount(ctx context.Context, req proxy.AmountLookupRequest) (*proxy.AmountLookupResponse, error)
	OpenPaymentPage(ctx context.Context, entryID int64) (*entry.Entry, error)
	VerifyReturn(ctx context.Context, entryID int64, sessionID string) (VerifyResult, error)
}

type service struct {
	entries   entry.Repository
	processor ActionApplier
	builder   payment.ActionBuilder
	peer      Poster
	verifyURL string
}

func NewService(entries entry.Repository, processor ActionApplier, builder payment.ActionBuilder, peer Poster, verifyURL string) Service {
	return &service{
		entries:   entries,
		processor: processor,
		builder:   builder,
		peer:      peer,
		verifyURL: verifyURL,
	}
}

// LookupAmount answers the Payment Service's Amount Lookup. A paid entry
// never reveals its amount.
func (s *service) LookupAmount(ctx context.Context, req proxy.AmountLookupRequest) (*proxy.AmountLookupResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "LookupAmount"),
		zap.Int64("entry_id", req.EntryID),
	)

	e, err := s.entries.GetByID(ctx, req.EntryID)
	if err != nil {
		if errors.Is(err, entry.ErrEntryNotFound) {
			log.Warn("amount lookup for unknown entry")
		}
		return nil, err
	}

	if e.PaymentStatus == entry.StatusPaid {
		log.Warn("amount lookup for paid entry")
		return nil, ErrAlreadyPaid
	}
	if e.PaymentAmount <= 0 {
		return nil, ErrAmountNotFound
	}

	// A lookup opens a new frame session, so a Failed entry is retried.
	if e.PaymentStatus == entry.StatusFailed {
		changed, err := s.entries.ResetForRetry(ctx, req.EntryID)
		if err != nil {
			return nil, err
		}
		if changed {
			log.Info("failed entry reopened for retry")
		} else if e, err = s.entries.GetByID(ctx, req.EntryID); err != nil {
			return nil, err
		} else if e.PaymentStatus == entry.StatusPaid {
			return nil, ErrAlreadyPaid
		}
	}

	return &proxy.AmountLookupResponse{
		Amount:   utils.ToMinorUnits(e.PaymentAmount),
		Currency: e.Currency,
	}, nil
}

// OpenPaymentPage loads the entry behind the payment page. Rendering never
// changes the stored status.
func (s *service) OpenPaymentPage(ctx context.Context, entryID int64) (*entry.Entry, error) {
	return s.entries.GetByID(ctx, entryID)
}

// VerifyReturn asks the Payment Service for the payment behind a 3DS
// session, applies the matching action and decides the redirect. Every
// failure ends in a failure redirect, never in an error page.
func (s *service) VerifyReturn(ctx context.Context, entryID int64, sessionID string) (VerifyResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "VerifyReturn"),
		zap.Int64("entry_id", entryID),
	)

	if s.verifyURL == "" || s.peer == nil {
		log.Error("3DS verification url not configured")
		return VerifyResult{}, ErrNotConfigured
	}

	var resp proxy.VerifyResponse
	err := s.peer.Post(ctx, s.verifyURL, proxy.VerifyRequest{
		EntryID:   entryID,
		SessionID: strings.TrimSpace(sessionID),
	}, &resp)
	if err != nil {
		// Nothing is confirmed yet; the webhook settles the entry.
		log.Error("3DS verification request failed", zap.Error(err))
		return VerifyResult{ErrorMessage: payment.GenericDeclineMessage}, nil
	}

	p, err := resp.DecodePayment()
	if err != nil || p == nil {
		log.Warn("3DS verification returned no payment", zap.Error(err))
		outcome := s.apply(ctx, s.builder.VerificationUnavailable(entryID))
		return VerifyResult{ErrorMessage: "Unknown Error", Outcome: outcome}, nil
	}

	if ref, ok := p.ReferenceID(); ok && ref != entryID {
		log.Warn("3DS payment belongs to another entry",
			zap.Int64("reference", ref),
			zap.String("transaction_id", p.ID),
		)
		return VerifyResult{ErrorMessage: payment.GenericDeclineMessage}, ErrEntryMismatch
	}

	outcome := s.apply(ctx, s.builder.FromProviderPayment(entryID, p))

	if p.PaymentStatus().IsUserSuccess() {
		return VerifyResult{Success: true, Outcome: outcome}, nil
	}

	reason := payment.FailureReason(p)
	if reason == "" {
		reason = "Unknown Error"
	}
	return VerifyResult{ErrorMessage: reason, Outcome: outcome}, nil
}

// apply never blocks the redirect on a processing error; the webhook path
// reports the same payment again.
func (s *service) apply(ctx context.Context, a payment.Action) payment.Outcome {
	outcome, err := s.processor.Apply(ctx, a)
	if err != nil {
		logger.FromCtx(ctx).Error("3DS action not applied",
			zap.Int64("entry_id", a.EntryID),
			zap.String("type", string(a.Type)),
			zap.Error(err),
		)
	}
	return outcome
}
