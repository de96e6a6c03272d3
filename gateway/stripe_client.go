package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stays/entity"
)

const (
	stripeMaxNetworkRetries = 3
	stripeRequestTimeout    = 10 * time.Second

	metadataBookingID = "bookingId"
)

type StripeClient struct {
	api           *client.API
	webhookSecret string
}

func NewStripeClient(apiKey string, webhookSecret string) StripeClient {
	if apiKey == "" {
		panic("missing stripe api key")
	}

	httpClient := &http.Client{
		Timeout:   stripeRequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	backend := func(backendType stripe.SupportedBackend) stripe.Backend {
		return stripe.GetBackendWithConfig(backendType, &stripe.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(stripeMaxNetworkRetries),
		})
	}

	api := &client.API{}
	api.Init(apiKey, &stripe.Backends{
		API:     backend(stripe.APIBackend),
		Connect: backend(stripe.ConnectBackend),
		Uploads: backend(stripe.UploadsBackend),
	})

	return StripeClient{
		api:           api,
		webhookSecret: webhookSecret,
	}
}

func (c StripeClient) CreateCheckoutSession(ctx context.Context, req entity.CheckoutSessionRequest) (entity.CheckoutSession, error) {
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.ProductName),
	}
	if req.ProductDescription != "" {
		product.Description = stripe.String(req.ProductDescription)
	}
	if len(req.ProductImages) > 0 {
		product.Images = stripe.StringSlice(req.ProductImages)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		ExpiresAt:  stripe.Int64(req.ExpiresAt.Unix()),
		SubmitType: stripe.String(string(stripe.CheckoutSessionSubmitTypeBook)),
		InvoiceCreation: &stripe.CheckoutSessionInvoiceCreationParams{
			Enabled: stripe.Bool(true),
		},
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(req.Currency),
					UnitAmount:  stripe.Int64(req.AmountMinor),
					ProductData: product,
				},
			},
		},
	}
	if req.ReceiptEmail != "" {
		params.CustomerEmail = stripe.String(req.ReceiptEmail)
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			ReceiptEmail: stripe.String(req.ReceiptEmail),
		}
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + req.BookingID)
	params.AddMetadata(metadataBookingID, req.BookingID)

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return entity.CheckoutSession{}, &entity.GatewayError{Op: "create checkout session", Err: err}
	}

	return toCheckoutSession(s), nil
}

func (c StripeClient) RetrieveSession(ctx context.Context, sessionID string) (entity.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return entity.CheckoutSession{}, &entity.GatewayError{Op: "retrieve checkout session", Err: err}
	}

	return toCheckoutSession(s), nil
}

func (c StripeClient) ExpireSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := c.api.CheckoutSessions.Expire(sessionID, params); err != nil {
		return &entity.GatewayError{Op: "expire checkout session", Err: err}
	}

	return nil
}

func (c StripeClient) CreateRefund(ctx context.Context, req entity.RefundRequest) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Amount:        stripe.Int64(req.AmountMinor),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	if _, err := c.api.Refunds.New(params); err != nil {
		return &entity.GatewayError{Op: "create refund", Err: err}
	}

	return nil
}

func toCheckoutSession(s *stripe.CheckoutSession) entity.CheckoutSession {
	session := entity.CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		BookingID:     s.Metadata[metadataBookingID],
	}
	if s.PaymentIntent != nil {
		session.PaymentIntentID = s.PaymentIntent.ID
	}

	return session
}
