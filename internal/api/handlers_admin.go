package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"termin/internal/database"
	"termin/internal/document"
	"termin/internal/export"
	"termin/internal/models"

	"github.com/labstack/echo/v4"
)

// buildWorkbook is replaced in tests.
var buildWorkbook = export.Bytes

type rescheduleRequest struct {
	Date string `json:"date" form:"date"`
	Time string `json:"time" form:"time"`
}

type selectionRequest struct {
	IDs []int64 `json:"ids" form:"ids"`
}

type templateRequest struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	IsActive    *bool  `json:"is_active"`
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid booking id")
	}
	return id, nil
}

func parseOptionalDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return models.ParseDate(raw)
}

func (s *HTTPServer) listBookings(c echo.Context) error {
	filter := models.BookingFilter{
		Status: strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))),
		Search: c.QueryParam("q"),
	}
	switch filter.Status {
	case "", models.StatusPending, models.StatusConfirmed, models.StatusCancelled:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}

	var err error
	if filter.From, err = parseOptionalDate(c.QueryParam("from")); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if filter.To, err = parseOptionalDate(c.QueryParam("to")); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if v := c.QueryParam("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil || filter.Offset < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid offset"})
		}
	}

	list, err := s.deps.Bookings.ListBookings(c.Request().Context(), filter)
	if err != nil {
		return s.serviceError(c, err)
	}
	if list == nil {
		list = []*models.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list, "count": len(list)})
}

func (s *HTTPServer) getBooking(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	booking, err := s.deps.Bookings.GetBooking(c.Request().Context(), id)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(http.StatusOK, booking)
}

func (s *HTTPServer) rescheduleBooking(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	booking, rejection, err := s.deps.Bookings.Reschedule(c.Request().Context(), id, req.Date, req.Time)
	if err != nil {
		return s.serviceError(c, err)
	}
	if !rejection.Accepted() {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": rejection.Reason, "rule": rejection.Rule})
	}

	s.log.Info().Int64("booking_id", id).Str("by", staffName(c)).Msg("booking rescheduled")
	return c.JSON(http.StatusOK, booking)
}

func (s *HTTPServer) confirmBookings(c echo.Context) error {
	var req selectionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if len(req.IDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no bookings selected"})
	}

	result, err := s.deps.Confirmations.ConfirmBookings(c.Request().Context(), req.IDs)
	if err != nil {
		// bookings before the failing one stay confirmed
		s.log.Error().Err(err).Int("confirmed", result.Confirmed).Str("by", staffName(c)).Msg("confirmation batch aborted")
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":     "confirmation aborted",
			"confirmed": result.Confirmed,
			"failed":    result.Failed,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"confirmed": result.Confirmed,
		"failed":    result.Failed,
		"message":   result.Message(),
	})
}

func (s *HTTPServer) cancelBookings(c echo.Context) error {
	var req selectionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if len(req.IDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no bookings selected"})
	}

	n, err := s.deps.Bookings.Cancel(c.Request().Context(), req.IDs)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"cancelled": n,
		"message":   fmt.Sprintf("%d booking(s) cancelled.", n),
	})
}

func (s *HTTPServer) receipt(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	booking, data, err := s.deps.Confirmations.Receipt(c.Request().Context(), id)
	if err != nil {
		return s.serviceError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", document.Filename(booking.ID)))
	return c.Blob(http.StatusOK, document.ContentType, data)
}

func (s *HTTPServer) dashboard(c echo.Context) error {
	d, err := s.deps.Bookings.Dashboard(c.Request().Context())
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// exportBookings defaults to the dashboard week starting today.
func (s *HTTPServer) exportBookings(c echo.Context) error {
	from, err := parseOptionalDate(c.QueryParam("from"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	to, err := parseOptionalDate(c.QueryParam("to"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if from.IsZero() {
		from = s.deps.Bookings.Today()
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, models.DashboardDays-1)
	}
	if to.Before(from) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "to is before from"})
	}

	ctx := c.Request().Context()
	list, err := s.deps.Bookings.BookingsBetween(ctx, from, to)
	if err != nil {
		return s.serviceError(c, err)
	}

	filename := export.Filename(from, to)
	if s.deps.ExportDir != "" {
		path, err := export.Save(s.deps.ExportDir, from, to, list)
		if err != nil {
			return s.serviceError(c, err)
		}
		s.log.Info().Str("path", path).Int("rows", len(list)).Str("by", staffName(c)).Msg("export saved")
		return c.Attachment(path, filename)
	}

	data, err := buildWorkbook(from, to, list)
	if err != nil {
		return s.serviceError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, export.ContentType, data)
}

func (s *HTTPServer) listTemplates(c echo.Context) error {
	list, err := s.deps.Templates.ListTemplates(c.Request().Context())
	if err != nil {
		return s.serviceError(c, err)
	}
	if list == nil {
		list = []*models.EmailTemplate{}
	}
	return c.JSON(http.StatusOK, echo.Map{"templates": list})
}

func (s *HTTPServer) getTemplate(c echo.Context) error {
	tmpl, err := s.deps.Templates.GetTemplate(c.Request().Context(), c.Param("key"))
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(http.StatusOK, tmpl)
}

func (s *HTTPServer) createTemplate(c echo.Context) error {
	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Key = strings.TrimSpace(req.Key)
	if !models.IsTemplateKey(req.Key) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown template key", "allowed": models.TemplateKeys})
	}
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Body) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "subject/body required"})
	}

	ctx := c.Request().Context()
	if _, err := s.deps.Templates.GetTemplate(ctx, req.Key); err == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "template already exists"})
	} else if !errors.Is(err, database.ErrNotFound) {
		return s.serviceError(c, err)
	}

	tmpl := &models.EmailTemplate{
		Key:         req.Key,
		Description: req.Description,
		Subject:     req.Subject,
		Body:        req.Body,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := s.deps.Templates.UpsertTemplate(ctx, tmpl); err != nil {
		return s.serviceError(c, err)
	}
	s.log.Info().Str("key", tmpl.Key).Str("by", staffName(c)).Msg("email template created")
	return c.JSON(http.StatusCreated, tmpl)
}

// updateTemplate changes only the fields present in the body.
func (s *HTTPServer) updateTemplate(c echo.Context) error {
	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx := c.Request().Context()
	tmpl, err := s.deps.Templates.GetTemplate(ctx, c.Param("key"))
	if err != nil {
		return s.serviceError(c, err)
	}
	if req.Description != "" {
		tmpl.Description = req.Description
	}
	if req.Subject != "" {
		tmpl.Subject = req.Subject
	}
	if req.Body != "" {
		tmpl.Body = req.Body
	}
	if req.IsActive != nil {
		tmpl.IsActive = *req.IsActive
	}

	if err := s.deps.Templates.UpsertTemplate(ctx, tmpl); err != nil {
		return s.serviceError(c, err)
	}
	s.log.Info().Str("key", tmpl.Key).Bool("active", tmpl.IsActive).Str("by", staffName(c)).Msg("email template updated")
	return c.JSON(http.StatusOK, tmpl)
}

func (s *HTTPServer) failedTasks(c echo.Context) error {
	tasks, err := s.deps.Outbox.GetFailedOutboxTasks(c.Request().Context())
	if err != nil {
		return s.serviceError(c, err)
	}
	if tasks == nil {
		tasks = []*models.OutboxTask{}
	}
	return c.JSON(http.StatusOK, echo.Map{"tasks": tasks, "count": len(tasks)})
}

func (s *HTTPServer) listBackups(c echo.Context) error {
	names, err := s.deps.Backups.ListBackups()
	if err != nil {
		return s.serviceError(c, err)
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"backups": names})
}
