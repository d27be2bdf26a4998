package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	braintree "github.com/braintree-go/braintree-go"
	"go.uber.org/zap"
)

// ErrGatewayUnavailable indicates the processor could not be reached or
// rejected the configured credentials. Not retried here; a fresh checkout
// page load requests a new token.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

type Outcome string

const (
	OutcomeAuthorized   Outcome = "authorized"
	OutcomeDeclined     Outcome = "declined"
	OutcomeGatewayError Outcome = "gateway_error"
)

// SaleResult is the tagged outcome of a single sale submission.
type SaleResult struct {
	Outcome       Outcome
	TransactionID string
	GatewayStatus string
	Reason        string
}

// Adapter is the only code path permitted to talk to the payment processor.
// It is constructed explicitly and injected so tests can substitute a fake.
type Adapter interface {
	FetchAuthorizationToken(ctx context.Context) (string, error)
	// AuthorizeSale submits exactly one sale transaction. On
	// OutcomeAuthorized money has moved at the processor; callers must not
	// blindly retry.
	AuthorizeSale(ctx context.Context, nonce string, amountCents int64) SaleResult
}

type BraintreeAdapter struct {
	bt      *braintree.Braintree
	timeout time.Duration
	logger  *zap.Logger
}

func NewBraintreeAdapter(env, merchantID, publicKey, privateKey string, timeout time.Duration, logger *zap.Logger) *BraintreeAdapter {
	btEnv := braintree.Sandbox
	if env == "production" {
		btEnv = braintree.Production
	}

	return &BraintreeAdapter{
		bt:      braintree.New(btEnv, merchantID, publicKey, privateKey),
		timeout: timeout,
		logger:  logger,
	}
}

// FetchAuthorizationToken generates a short-lived client token for the
// payment widget. Generated per checkout-page load, never persisted.
func (a *BraintreeAdapter) FetchAuthorizationToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	token, err := a.bt.ClientToken().Generate(ctx)
	if err != nil {
		a.logger.Warn("Braintree client token generation failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return token, nil
}

// AuthorizeSale submits one sale for the given nonce at the given amount in
// minor units. The amount comes from the orchestrator's server-side
// computation, never from client input.
func (a *BraintreeAdapter) AuthorizeSale(ctx context.Context, nonce string, amountCents int64) SaleResult {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	tx, err := a.bt.Transaction().Create(ctx, &braintree.TransactionRequest{
		Type:               "sale",
		Amount:             braintree.NewDecimal(amountCents, 2),
		PaymentMethodNonce: nonce,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: true,
		},
	})
	if err != nil {
		res := classifySaleError(err)
		a.logger.Warn("Braintree sale not authorized",
			zap.String("outcome", string(res.Outcome)),
			zap.Int64("amount_cents", amountCents),
			zap.Error(err),
		)
		return res
	}

	return SaleResult{
		Outcome:       OutcomeAuthorized,
		TransactionID: tx.Id,
		GatewayStatus: string(tx.Status),
	}
}

// classifySaleError maps a sale submission error to a tagged outcome.
// Timeouts and transport failures are OutcomeGatewayError: the outcome is
// unknown and funds may have been captured, so they must never read as a
// decline. Everything else is an answer from the processor.
func classifySaleError(err error) SaleResult {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SaleResult{Outcome: OutcomeGatewayError, Reason: err.Error()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return SaleResult{Outcome: OutcomeGatewayError, Reason: err.Error()}
	}

	return SaleResult{Outcome: OutcomeDeclined, Reason: err.Error()}
}
