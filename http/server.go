package http

import (
	"context"
	"errors"
	"net/http"

	echoHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"stays/booking"
	"stays/entity"
)

type BookingService interface {
	CreateBooking(ctx context.Context, req booking.CreateBookingRequest) (entity.Booking, string, error)
	ListBookings(ctx context.Context, userID string) ([]entity.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, userID string) (entity.Booking, error)
	ConfirmPayment(ctx context.Context, sessionID string) (booking.ConfirmResult, error)
}

type CommandBus interface {
	Send(ctx context.Context, cmd any) error
}

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (entity.PaymentWebhookEvent, error)
}

type OpsBookingReadModel interface {
	AllBookings(ctx context.Context, refundFailedOnly bool) ([]entity.OpsBooking, error)
	BookingReadModel(ctx context.Context, bookingID string) (entity.OpsBooking, error)
}

type Config struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
}

type Server struct {
	addr                string
	e                   *echo.Echo
	bookings            BookingService
	commandBus          CommandBus
	webhooks            WebhookParser
	opsBookingReadModel OpsBookingReadModel
	limiter             *userRateLimiter
}

func NewServer(
	addr string,
	config Config,
	bookings BookingService,
	commandBus CommandBus,
	webhooks WebhookParser,
	opsBookingReadModel OpsBookingReadModel,
) *Server {
	e := echoHTTP.NewEcho()

	server := &Server{
		addr:                addr,
		e:                   e,
		bookings:            bookings,
		commandBus:          commandBus,
		webhooks:            webhooks,
		opsBookingReadModel: opsBookingReadModel,
		limiter:             newUserRateLimiter(config.RateLimitPerMinute),
	}

	e.Use(otelecho.Middleware("stays"))
	if len(config.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: config.AllowedOrigins,
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, userIDHeader},
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/bookings", server.PostBookings, server.rateLimit)
	e.GET("/bookings", server.GetBookings)
	e.PUT("/bookings/:id/cancel", server.PutCancelBooking)
	e.PUT("/bookings/:id", server.PutCancelBooking)
	e.POST("/bookings/confirm-payment", server.PostConfirmPayment)

	e.POST("/webhooks/stripe", server.PostStripeWebhook)

	e.GET("/ops/bookings", server.GetOpsBookings)
	e.GET("/ops/bookings/:id", server.GetOpsBooking)

	return server
}

func (s Server) Handler() http.Handler {
	return s.e
}

func (s Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		err := s.e.Shutdown(context.Background())
		if err != nil {
			log.FromContext(ctx).WithError(err).Error("failed to shutdown HTTP server")
		}
	}()
	log.FromContext(ctx).WithField("addr", s.addr).Info("[HTTP] server listening")
	if err := s.e.Start(s.addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
