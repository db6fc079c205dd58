package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dynasty/internal/config"
	"dynasty/internal/metrics"
	"dynasty/internal/models"
	"dynasty/internal/projector"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Result captures one send attempt. Failures are data, not faults: booking
// state never depends on them.
type Result struct {
	Attempted bool   `json:"attempted"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Results reports both recipients of a booking notification.
type Results struct {
	Customer   Result `json:"customer"`
	Restaurant Result `json:"restaurant"`
}

// Mailer talks to an EmailJS-compatible transactional email endpoint. Sends
// are throttled and best-effort; SendBookingEmails never returns an error.
type Mailer struct {
	cfg     config.MailConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

func New(cfg config.MailConfig, logger *zerolog.Logger) *Mailer {
	return &Mailer{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRPS), cfg.SendBurst),
		logger:  logger,
	}
}

// SendBookingEmails dispatches the customer confirmation and the restaurant
// notification for one booking. Each recipient succeeds or fails on its own.
func (m *Mailer) SendBookingEmails(ctx context.Context, booking models.Booking) Results {
	var results Results

	if booking.Email != "" && m.cfg.CustomerTemplateID != "" {
		params := map[string]string{
			"to_name":            booking.Name,
			"to_email":           booking.Email,
			"booking_id":         booking.ID,
			"customer_name":      booking.Name,
			"booking_date":       projector.FormatBookingDateTime(booking.DateTime),
			"number_of_people":   fmt.Sprintf("%d", booking.People),
			"special_request":    orNone(booking.Message),
			"restaurant_name":    m.cfg.RestaurantName,
			"restaurant_phone":   m.cfg.RestaurantPhone,
			"restaurant_address": m.cfg.RestaurantAddress,
			"booking_status":     statusText(booking),
		}
		results.Customer = m.send(ctx, "customer", m.cfg.CustomerTemplateID, params)
	}

	if m.cfg.RestaurantTemplateID != "" {
		params := map[string]string{
			"to_email":        m.cfg.RestaurantEmail,
			"booking_id":      booking.ID,
			"customer_name":   booking.Name,
			"customer_email":  booking.Email,
			"booking_date":    projector.FormatBookingDateTime(booking.DateTime),
			"number_of_people": fmt.Sprintf("%d", booking.People),
			"special_request": orNone(booking.Message),
			"booking_status":  statusText(booking),
			"booking_time":    time.Now().Format("Jan 2, 2006 3:04 PM"),
		}
		results.Restaurant = m.send(ctx, "restaurant", m.cfg.RestaurantTemplateID, params)
	}

	return results
}

type sendRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
}

func (m *Mailer) send(ctx context.Context, recipient, templateID string, params map[string]string) Result {
	result := Result{Attempted: true}

	if err := m.limiter.Wait(ctx); err != nil {
		result.Error = err.Error()
		metrics.IncMail(recipient, "error")
		return result
	}

	body, err := json.Marshal(sendRequest{
		ServiceID:      m.cfg.ServiceID,
		TemplateID:     templateID,
		UserID:         m.cfg.PublicKey,
		TemplateParams: params,
	})
	if err != nil {
		result.Error = err.Error()
		metrics.IncMail(recipient, "error")
		return result
	}

	url := m.cfg.BaseURL + "/api/v1.0/email/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		result.Error = err.Error()
		metrics.IncMail(recipient, "error")
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn().Err(err).Str("recipient", recipient).Msg("email dispatch failed")
		result.Error = err.Error()
		metrics.IncMail(recipient, "error")
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		result.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, payload)
		m.logger.Warn().Str("recipient", recipient).Str("error", result.Error).Msg("email dispatch rejected")
		metrics.IncMail(recipient, "error")
		return result
	}

	result.Success = true
	result.Message = recipient + " email sent"
	metrics.IncMail(recipient, "ok")
	return result
}

func orNone(v string) string {
	if v == "" {
		return "None"
	}
	return v
}

func statusText(b models.Booking) string {
	switch b.Status {
	case models.StatusConfirmed:
		return "Confirmed"
	case models.StatusCancelled:
		return "Cancelled"
	default:
		return "New Booking - Pending Review"
	}
}
