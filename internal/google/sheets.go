package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"clipcast/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsService mirrors rollup snapshots to a Google Sheets dashboard.
// The sheet is a plain table the content team reads; the engine fully
// rewrites it on every push, rows keyed by content id.
type SheetsService struct {
	service   *sheets.Service
	sheetID   string
	sheetName string
}

func NewSheetsService(credentialsFile, spreadsheetID, sheetName string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsService{
		service:   srv,
		sheetID:   spreadsheetID,
		sheetName: sheetName,
	}, nil
}

// TestConnection reads the top-left cell to verify access.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.sheetID, s.sheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail returns the email operators must share the sheet with.
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// UpdateRollupSheet clears and rewrites the rollup sheet with the given
// snapshots. Implements domain.RollupWriter.
func (s *SheetsService) UpdateRollupSheet(ctx context.Context, rollups []models.RollupSnapshot) error {
	clearRange := s.sheetName + "!A:Z"
	_, err := s.service.Spreadsheets.Values.Clear(s.sheetID, clearRange, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear rollup sheet: %v", err)
	}

	values := [][]interface{}{
		{
			"Content ID", "Views", "Likes", "Comments", "Shares", "Saves",
			"Engagement", "Best Platform", "Platforms", "Checkbacks", "Computed At",
		},
	}
	for _, r := range rollups {
		values = append(values, []interface{}{
			r.ContentID,
			r.TotalViews,
			r.TotalLikes,
			r.TotalComments,
			r.TotalShares,
			r.TotalSaves,
			r.TotalLikes + r.TotalComments + r.TotalShares,
			r.BestPlatform,
			r.PlatformsTracked,
			r.CompletedCheckbacks,
			r.ComputedAt.Format("2006-01-02 15:04:05"),
		})
	}

	rangeData := fmt.Sprintf("%s!A1:K%d", s.sheetName, len(values))
	valueRange := &sheets.ValueRange{Values: values}

	_, err = s.service.Spreadsheets.Values.Update(s.sheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update rollup sheet: %v", err)
	}
	return nil
}
