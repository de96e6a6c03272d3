package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"stays/booking"
	"stays/entity"
)

const userIDHeader = "X-User-ID"

type postBookingsRequest struct {
	PropertyID    string `json:"property_id"`
	PropertyType  string `json:"property_type"`
	StayStartDate string `json:"stay_start_date"`
	StayEndDate   string `json:"stay_end_date"`
}

type postBookingsResponse struct {
	BookingID   string `json:"booking_id"`
	CheckoutURL string `json:"checkout_url"`
}

type postConfirmPaymentRequest struct {
	SessionID string `json:"session_id"`
}

func (s Server) PostBookings(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	var request postBookingsRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	createRequest, err := request.toCreateBookingRequest(userID, time.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, checkoutURL, err := s.bookings.CreateBooking(c.Request().Context(), createRequest)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusCreated, postBookingsResponse{
		BookingID:   created.ID,
		CheckoutURL: checkoutURL,
	})
}

func (r postBookingsRequest) toCreateBookingRequest(userID string, now time.Time) (booking.CreateBookingRequest, error) {
	if r.PropertyID == "" {
		return booking.CreateBookingRequest{}, errors.New("missing property_id")
	}

	kind, err := entity.ParsePropertyKind(r.PropertyType)
	if err != nil {
		return booking.CreateBookingRequest{}, err
	}

	start, err := parseDate(r.StayStartDate)
	if err != nil {
		return booking.CreateBookingRequest{}, fmt.Errorf("invalid stay_start_date: %w", err)
	}
	end, err := parseDate(r.StayEndDate)
	if err != nil {
		return booking.CreateBookingRequest{}, fmt.Errorf("invalid stay_end_date: %w", err)
	}

	if start.Before(entity.NormalizeDate(now)) {
		return booking.CreateBookingRequest{}, errors.New("stay_start_date can't be in the past")
	}
	if !end.After(start) {
		return booking.CreateBookingRequest{}, errors.New("stay_end_date must be after stay_start_date")
	}

	return booking.CreateBookingRequest{
		UserID:        userID,
		Property:      entity.PropertyRef{Kind: kind, ID: r.PropertyID},
		StayStartDate: start,
		StayEndDate:   end,
	}, nil
}

func (s Server) GetBookings(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	bookings, err := s.bookings.ListBookings(c.Request().Context(), userID)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, bookings)
}

func (s Server) PutCancelBooking(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	bookingID := c.Param("id")
	if bookingID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing booking id")
	}

	cancelled, err := s.bookings.CancelBooking(c.Request().Context(), bookingID, userID)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, cancelled)
}

func (s Server) PostConfirmPayment(c echo.Context) error {
	var request postConfirmPaymentRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	if request.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing session_id")
	}

	result, err := s.bookings.ConfirmPayment(c.Request().Context(), request.SessionID)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func callerID(c echo.Context) (string, error) {
	userID := c.Request().Header.Get(userIDHeader)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing "+userIDHeader+" header")
	}

	return userID, nil
}

// parseDate accepts plain dates and RFC 3339 timestamps, only the UTC day is kept.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}

	return entity.NormalizeDate(t), nil
}
