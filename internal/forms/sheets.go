package forms

import (
	"context"
	"fmt"
	"os"

	"dynasty/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Service reads externally submitted contact-form inquiries from the form
// response spreadsheet. Read-only and best-effort: inquiries never feed the
// booking lifecycle and a failed read degrades to an empty list upstream.
type Service struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *zerolog.Logger
}

func NewService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, logger *zerolog.Logger) (*Service, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Service{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

// TestConnection reads the header cell to verify access.
func (s *Service) TestConnection(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1", s.sheetName)
	if _, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do(); err != nil {
		return fmt.Errorf("forms connection test: %w", err)
	}
	return nil
}

// Inquiries returns submitted rows newest-first. The response sheet grows
// downward, so the fetched order is reversed.
func (s *Service) Inquiries(ctx context.Context) ([]models.Inquiry, error) {
	rng := fmt.Sprintf("%s!A2:G", s.sheetName)
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		s.logger.Warn().Err(err).Msg("fetch form submissions failed")
		return nil, fmt.Errorf("fetch form submissions: %w", err)
	}

	inquiries := make([]models.Inquiry, 0, len(resp.Values))
	for i := len(resp.Values) - 1; i >= 0; i-- {
		inquiries = append(inquiries, rowToInquiry(resp.Values[i]))
	}
	return inquiries, nil
}

func rowToInquiry(row []interface{}) models.Inquiry {
	return models.Inquiry{
		Timestamp: cell(row, 0),
		Name:      cell(row, 1),
		Email:     cell(row, 2),
		Phone:     cell(row, 3),
		Purpose:   cell(row, 4),
		Subject:   cell(row, 5),
		Message:   cell(row, 6),
	}
}

func cell(row []interface{}, idx int) string {
	if idx >= len(row) {
		return ""
	}
	if s, ok := row[idx].(string); ok {
		return s
	}
	return fmt.Sprintf("%v", row[idx])
}
