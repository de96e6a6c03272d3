package http

import (
	"errors"
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"

	"stays/entity"
)

// toHTTPError translates domain errors into responses. Unknown errors are returned as they are
// and end up as 500 in echo's error handler.
func toHTTPError(c echo.Context, err error) error {
	var gatewayErr *entity.GatewayError
	var reconciliationErr *entity.ReconciliationError

	switch {
	case errors.Is(err, entity.ErrConflict):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, entity.ErrInvalidProperty),
		errors.Is(err, entity.ErrInvalidBooking),
		errors.Is(err, entity.ErrInvalidUser):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, entity.ErrHoldExpired):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, entity.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, entity.ErrTransactionTimeout):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &reconciliationErr):
		log.FromContext(c.Request().Context()).
			WithError(err).
			WithField("booking_id", reconciliationErr.BookingID).
			Error("Booking cancelled without refund")
		return echo.NewHTTPError(
			http.StatusInternalServerError,
			"booking cancelled, but the refund could not be issued; it will be handled manually",
		)
	case errors.As(err, &gatewayErr):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return err
	}
}
