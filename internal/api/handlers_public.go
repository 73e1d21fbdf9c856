package api

import (
	"errors"
	"net/http"
	"strings"

	"termin/internal/database"
	"termin/internal/models"
	"termin/internal/service"

	"github.com/labstack/echo/v4"
)

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func (s *HTTPServer) formPage(req service.SubmitRequest) formPage {
	return formPage{
		AppName: s.deps.AppName,
		Form:    req,
		MinDate: s.deps.Bookings.Today().Format(models.DateLayout),
	}
}

func (s *HTTPServer) showForm(c echo.Context) error {
	return c.Render(http.StatusOK, "booking_form.html", s.formPage(service.SubmitRequest{}))
}

func (s *HTTPServer) showSuccess(c echo.Context) error {
	return c.Render(http.StatusOK, "booking_success.html", echo.Map{"AppName": s.deps.AppName})
}

// submitForm redirects to /success on acceptance; otherwise the form comes back
// with the entered values and the reason.
func (s *HTTPServer) submitForm(c echo.Context) error {
	var req service.SubmitRequest
	if err := c.Bind(&req); err != nil {
		page := s.formPage(req)
		page.Reason = "Invalid form data."
		return c.Render(http.StatusBadRequest, "booking_form.html", page)
	}
	req.ClientKey = c.RealIP()

	_, rejection, err := s.deps.Bookings.Submit(c.Request().Context(), req)
	page := s.formPage(req)

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		page.Errors = verr.Fields
		return c.Render(http.StatusOK, "booking_form.html", page)
	case errors.Is(err, service.ErrRateLimited):
		page.Reason = err.Error()
		return c.Render(http.StatusTooManyRequests, "booking_form.html", page)
	case err != nil:
		s.log.Error().Err(err).Msg("form submission failed")
		page.Reason = "Your booking could not be saved. Please try again."
		return c.Render(http.StatusInternalServerError, "booking_form.html", page)
	case !rejection.Accepted():
		page.Reason = rejection.Reason
		return c.Render(http.StatusOK, "booking_form.html", page)
	}

	return c.Redirect(http.StatusSeeOther, "/success")
}

func (s *HTTPServer) createBooking(c echo.Context) error {
	var req service.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.ClientKey = c.RealIP()

	booking, rejection, err := s.deps.Bookings.Submit(c.Request().Context(), req)
	if err != nil {
		return s.serviceError(c, err)
	}
	if !rejection.Accepted() {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": rejection.Reason, "rule": rejection.Rule})
	}
	return c.JSON(http.StatusCreated, booking)
}

func (s *HTTPServer) checkSlot(c echo.Context) error {
	date := strings.TrimSpace(c.QueryParam("date"))
	tod := strings.TrimSpace(c.QueryParam("time"))
	if date == "" || tod == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date and time are required"})
	}
	if err := parseSlot(date, tod); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	rejection, err := s.deps.Bookings.CheckSlot(c.Request().Context(), date, tod)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"accepted": rejection.Accepted(),
		"rule":     rejection.Rule,
		"reason":   rejection.Reason,
	})
}

func (s *HTTPServer) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}

	token, err := s.deps.Staff.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.log.Warn().Str("username", req.Username).Str("remote", c.RealIP()).Msg("staff login failed")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
		}
		return s.serviceError(c, err)
	}
	return c.JSON(http.StatusOK, token)
}

// parseSlot rejects input the validator would silently skip.
func parseSlot(date, tod string) error {
	if _, err := models.ParseDate(date); err != nil {
		return err
	}
	if _, err := models.ParseTimeOfDay(tod); err != nil {
		return err
	}
	return nil
}

// serviceError maps service and storage errors to JSON responses.
func (s *HTTPServer) serviceError(c echo.Context, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid submission", "fields": verr.Fields})
	case errors.Is(err, service.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": err.Error()})
	case errors.Is(err, database.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrNotConfirmed):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
