package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

func (s Server) GetOpsBookings(c echo.Context) error {
	refundFailedOnly := false
	if value := c.QueryParam("refund_failed"); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid refund_failed, expected a boolean")
		}
		refundFailedOnly = parsed
	}

	bookings, err := s.opsBookingReadModel.AllBookings(c.Request().Context(), refundFailedOnly)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, bookings)
}

func (s Server) GetOpsBooking(c echo.Context) error {
	booking, err := s.opsBookingReadModel.BookingReadModel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, booking)
}
