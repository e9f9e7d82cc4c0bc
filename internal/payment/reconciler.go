// Package payment reconciles provider payment results with hotspot sessions.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sokonet/sokonet-hotspot/internal/db"
	"github.com/sokonet/sokonet-hotspot/internal/mpesa"
	"github.com/sokonet/sokonet-hotspot/internal/plans"
)

// Kenyan MSISDN in international format, e.g. 254712345678.
var phonePattern = regexp.MustCompile(`^254[17]\d{8}$`)

// StkPusher initiates the provider push-payment call.
type StkPusher interface {
	STKPush(ctx context.Context, phoneNumber string, amount int64, reference string) (string, error)
}

// Admitter is the admission hand-off after a session becomes paid.
type Admitter interface {
	Admit(ctx context.Context, sessionID string)
}

// Reconciler creates sessions and matches provider callbacks to them.
type Reconciler struct {
	db       *db.DB
	catalog  *plans.Catalog
	provider StkPusher
	admitter Admitter
	logger   *zap.Logger
}

// NewReconciler creates a payment reconciler.
func NewReconciler(
	database *db.DB,
	catalog *plans.Catalog,
	provider StkPusher,
	admitter Admitter,
	logger *zap.Logger,
) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		db:       database,
		catalog:  catalog,
		provider: provider,
		admitter: admitter,
		logger:   logger,
	}
}

// CreateSession validates the purchase request, creates a pending session and
// initiates the STK push. The provider's checkout request id is recorded on
// the session before the call returns.
func (r *Reconciler) CreateSession(ctx context.Context, deviceIdentifier string, planID int64, phoneNumber string) (*db.Session, error) {
	if err := validateDeviceIdentifier(deviceIdentifier); err != nil {
		return nil, err
	}
	if !phonePattern.MatchString(phoneNumber) {
		return nil, fmt.Errorf("phone number %q: %w", phoneNumber, ErrInvalidInput)
	}

	plan, err := r.catalog.GetActive(planID)
	if errors.Is(err, plans.ErrPlanNotFound) {
		return nil, fmt.Errorf("plan %d: %w", planID, ErrInvalidPlan)
	}
	if err != nil {
		return nil, err
	}

	session := &db.Session{
		ID:               uuid.New().String(),
		DeviceIdentifier: deviceIdentifier,
		PhoneNumber:      phoneNumber,
		PlanID:           plan.ID,
		PlanName:         plan.Name,
		Duration:         plan.Duration(),
		Amount:           plan.Price,
		State:            db.SessionPending,
		CreatedAt:        time.Now(),
	}

	if err := r.db.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("device", deviceIdentifier),
		zap.String("plan", plan.Name),
	)

	checkoutID, err := r.provider.STKPush(ctx, phoneNumber, plan.Price, sessionReference(session.ID))
	if err != nil {
		if _, ferr := r.db.MarkFailed(session.ID, err.Error()); ferr != nil {
			r.logger.Error("failed to record provider rejection", zap.Error(ferr),
				zap.String("session_id", session.ID))
		}
		r.logger.Warn("stk push rejected",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrProviderRejected, err)
	}

	if err := r.db.SetCheckoutRequestID(session.ID, checkoutID); err != nil {
		return nil, fmt.Errorf("failed to record checkout request id: %w", err)
	}
	session.CheckoutRequestID = checkoutID

	return session, nil
}

// HandleCallback matches a provider payment result to its session and
// transitions it. Duplicate deliveries are acknowledged without
// re-processing; only an unknown correlation id is an error.
func (r *Reconciler) HandleCallback(ctx context.Context, cb *mpesa.StkCallback) error {
	session, err := r.db.GetSessionByCheckoutID(cb.CheckoutRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checkout request %q: %w", cb.CheckoutRequestID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}

	if session.State != db.SessionPending {
		r.logger.Info("duplicate callback ignored",
			zap.String("session_id", session.ID),
			zap.String("state", string(session.State)),
		)
		return nil
	}

	if cb.ResultCode != mpesa.ResultSuccess {
		if _, err := r.db.MarkFailed(session.ID, cb.ResultDesc); err != nil {
			return fmt.Errorf("failed to record payment failure: %w", err)
		}
		r.logger.Info("payment failed",
			zap.String("session_id", session.ID),
			zap.Int("result_code", cb.ResultCode),
			zap.String("result_desc", cb.ResultDesc),
		)
		return nil
	}

	receipt := cb.CallbackMetadata.Receipt()
	paidAt := receipt.TransactionTime
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	amount := receipt.Amount
	if amount == 0 {
		amount = session.Amount
	}

	won, err := r.db.MarkPaid(session.ID, paidAt, receipt.Number, amount)
	if err != nil {
		return fmt.Errorf("failed to mark session paid: %w", err)
	}
	if !won {
		// A concurrent duplicate settled the session first.
		return nil
	}

	r.logger.Info("payment confirmed",
		zap.String("session_id", session.ID),
		zap.String("receipt", receipt.Number),
		zap.Int64("amount", amount),
	)

	// Admission and its retries run off the callback path; the provider
	// only needs the paid transition persisted before the ack.
	go r.admitter.Admit(context.WithoutCancel(ctx), session.ID)

	return nil
}

func validateDeviceIdentifier(device string) error {
	if device == "" {
		return fmt.Errorf("device identifier required: %w", ErrInvalidInput)
	}
	if _, err := net.ParseMAC(device); err == nil {
		return nil
	}
	if ip := net.ParseIP(device); ip != nil {
		return nil
	}
	return fmt.Errorf("device identifier %q is not a MAC or IP: %w", device, ErrInvalidInput)
}

// sessionReference derives the short account reference shown on the payer's
// phone from the session id.
func sessionReference(sessionID string) string {
	if len(sessionID) > 12 {
		return sessionID[:12]
	}
	return sessionID
}
