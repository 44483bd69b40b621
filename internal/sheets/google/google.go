// Package google mirrors transactions into a Google Sheets statement.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc            *gsheet.Service
	spreadsheetID  string
	statementSheet string
}

// Ensure interface conformance
var _ ports.StatementWriter = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Auth: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_NAME (default "Statement").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Statement"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:            svc,
		spreadsheetID:  spreadsheetID,
		statementSheet: sheetName,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON([]byte(serviceAccountJSON)),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	case serviceAccountFile != "":
		return gsheet.NewService(ctx,
			goption.WithCredentialsFile(serviceAccountFile),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	default:
		// Fall back to application default credentials
		return gsheet.NewService(ctx, goption.WithScopes(gsheet.SpreadsheetsScope))
	}
}

// AppendTransaction writes the row for a transaction, replacing any row
// already carrying its dedupe token.
func (c *Client) AppendTransaction(ctx context.Context, t core.Transaction) error {
	// Updates re-sync the same record, so drop the stale row first.
	if err := c.DeleteTransaction(ctx, t.UUID); err != nil {
		return fmt.Errorf("replace statement row: %w", err)
	}

	row := []interface{}{
		t.UUID,
		t.UserID,
		string(t.Kind),
		t.Amount.String(),
		t.Description,
		t.Category,
		t.OccurredAt.Format("2006-01-02"),
		t.UpdatedAt.Format("2006-01-02 15:04:05"),
	}

	_, err := c.svc.Spreadsheets.Values.Append(
		c.spreadsheetID,
		c.statementSheet+"!A:H",
		&gsheet.ValueRange{Values: [][]interface{}{row}},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append statement row: %w", err)
	}

	slog.InfoContext(ctx, "Statement row appended",
		"uuid", t.UUID,
		"sheet", c.statementSheet)
	return nil
}

// DeleteTransaction removes the row whose first column holds the dedupe
// token. Absent rows are ignored.
func (c *Client) DeleteTransaction(ctx context.Context, uuid string) error {
	rowIndex, err := c.findRowByUUID(ctx, uuid)
	if err != nil {
		return err
	}
	if rowIndex < 0 {
		return nil
	}

	sheetID, err := c.sheetID(ctx)
	if err != nil {
		return err
	}

	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(rowIndex),
					EndIndex:   int64(rowIndex + 1),
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete statement row: %w", err)
	}

	slog.InfoContext(ctx, "Statement row deleted", "uuid", uuid, "row", rowIndex)
	return nil
}

// findRowByUUID returns the zero-based row index holding the token in
// column A, or -1 when absent.
func (c *Client) findRowByUUID(ctx context.Context, uuid string) (int, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(
		c.spreadsheetID,
		c.statementSheet+"!A:A",
	).Context(ctx).Do()
	if err != nil {
		return -1, fmt.Errorf("read statement tokens: %w", err)
	}

	for i, row := range resp.Values {
		if len(row) > 0 && fmt.Sprintf("%v", row[0]) == uuid {
			return i, nil
		}
	}
	return -1, nil
}

func (c *Client) sheetID(ctx context.Context) (int64, error) {
	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet metadata: %w", err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.statementSheet {
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.statementSheet)
}
