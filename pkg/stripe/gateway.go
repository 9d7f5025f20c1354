package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/transfer"

	"github.com/angelmondragon/gearledger-backend/internal/provider"
	"github.com/angelmondragon/gearledger-backend/pkg/config"
)

// resources abstracts the Stripe resource calls so the gateway can be tested offline.
type resources interface {
	NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	ExpireSession(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
	NewTransfer(params *stripe.TransferParams) (*stripe.Transfer, error)
	NewAccount(params *stripe.AccountParams) (*stripe.Account, error)
	NewAccountLink(params *stripe.AccountLinkParams) (*stripe.AccountLink, error)
}

type liveResources struct{}

func (liveResources) NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (liveResources) GetSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.Get(id, params)
}

func (liveResources) ExpireSession(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error) {
	return session.Expire(id, params)
}

func (liveResources) NewTransfer(params *stripe.TransferParams) (*stripe.Transfer, error) {
	return transfer.New(params)
}

func (liveResources) NewAccount(params *stripe.AccountParams) (*stripe.Account, error) {
	return account.New(params)
}

func (liveResources) NewAccountLink(params *stripe.AccountLinkParams) (*stripe.AccountLink, error) {
	return accountlink.New(params)
}

// Gateway implements provider.Gateway on top of Stripe Checkout, Connect and Transfers.
type Gateway struct {
	api        resources
	returnURL  string
	refreshURL string
}

var _ provider.Gateway = (*Gateway)(nil)

// NewGateway requires an initialized Client so the global API key is set.
func NewGateway(client *Client, cfg config.CheckoutConfig) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	return &Gateway{
		api:        liveResources{},
		returnURL:  cfg.ConnectReturnURL,
		refreshURL: cfg.ConnectRefreshURL,
	}, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req provider.CheckoutSessionRequest) (provider.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: copyMetadata(req.Metadata),
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.Context = ctx

	out, err := g.api.NewSession(params)
	if err != nil {
		return provider.CheckoutSession{}, classify("create_checkout_session", err)
	}
	return toCheckoutSession(out), nil
}

func (g *Gateway) GetCheckoutSession(ctx context.Context, sessionID string) (provider.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	out, err := g.api.GetSession(sessionID, params)
	if err != nil {
		return provider.CheckoutSession{}, classify("get_checkout_session", err)
	}
	return toCheckoutSession(out), nil
}

func (g *Gateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := g.api.ExpireSession(sessionID, params); err != nil {
		return classify("expire_checkout_session", err)
	}
	return nil
}

func (g *Gateway) CreateTransfer(ctx context.Context, req provider.TransferRequest) (provider.Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.DestinationAccountID),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.Context = ctx

	out, err := g.api.NewTransfer(params)
	if err != nil {
		return provider.Transfer{}, classify("create_transfer", err)
	}
	result := provider.Transfer{
		ID:          out.ID,
		AmountCents: out.Amount,
		Reversed:    out.Reversed,
	}
	if out.Destination != nil {
		result.Destination = out.Destination.ID
	}
	return result, nil
}

func (g *Gateway) CreateConnectedAccount(ctx context.Context, req provider.AccountRequest) (provider.ConnectedAccount, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(req.Country),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if req.BusinessType != "" {
		params.BusinessType = stripe.String(req.BusinessType)
	}
	params.AddMetadata(provider.MetadataPayeeID, req.PayeeID.String())
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.Context = ctx

	out, err := g.api.NewAccount(params)
	if err != nil {
		return provider.ConnectedAccount{}, classify("create_connected_account", err)
	}
	return provider.ConnectedAccount{
		ID:               out.ID,
		DetailsSubmitted: out.DetailsSubmitted,
		PayoutsEnabled:   out.PayoutsEnabled,
		ChargesEnabled:   out.ChargesEnabled,
	}, nil
}

func (g *Gateway) CreateOnboardingLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(g.refreshURL),
		ReturnURL:  stripe.String(g.returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx

	out, err := g.api.NewAccountLink(params)
	if err != nil {
		return "", classify("create_onboarding_link", err)
	}
	return out.URL, nil
}

func toCheckoutSession(s *stripe.CheckoutSession) provider.CheckoutSession {
	if s == nil {
		return provider.CheckoutSession{}
	}
	out := provider.CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		Status:        provider.SessionStatus(s.Status),
		PaymentStatus: provider.PaymentStatus(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// classify maps Stripe failures onto the provider retry classes. Network
// errors and 5xx/429 responses are transient; everything else is permanent.
func classify(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return provider.Transient(op, err)
	}
	if stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
		stripeErr.Type == stripe.ErrorTypeAPI {
		return provider.Transient(op, err)
	}
	return provider.Permanent(op, err)
}
