package storage

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// GoogleSheets stores partitions as worksheets of a single spreadsheet
type GoogleSheets struct {
	service       *sheets.Service
	spreadsheetID string
}

// Ensure GoogleSheets implements Store
var _ Store = (*GoogleSheets)(nil)

// NewGoogleSheets authenticates with a service account file and opens the spreadsheet by URL
func NewGoogleSheets(ctx context.Context, sheetURL, serviceAccountFile string) (*GoogleSheets, error) {
	spreadsheetID, err := SpreadsheetIDFromURL(sheetURL)
	if err != nil {
		return nil, err
	}

	service, err := sheets.NewService(ctx,
		option.WithCredentialsFile(serviceAccountFile),
		option.WithScopes(sheets.SpreadsheetsScope, sheets.DriveFileScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}

	if _, err := service.Spreadsheets.Get(spreadsheetID).Context(ctx).Fields("spreadsheetId").Do(); err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet %s: %w", spreadsheetID, err)
	}

	return &GoogleSheets{service: service, spreadsheetID: spreadsheetID}, nil
}

// SpreadsheetIDFromURL extracts the spreadsheet key from a docs.google.com URL.
// A bare key is returned unchanged.
func SpreadsheetIDFromURL(sheetURL string) (string, error) {
	sheetURL = strings.TrimSpace(sheetURL)
	if sheetURL == "" {
		return "", fmt.Errorf("spreadsheet URL is required")
	}
	if m := spreadsheetIDPattern.FindStringSubmatch(sheetURL); m != nil {
		return m[1], nil
	}
	if strings.Contains(sheetURL, "/") {
		return "", fmt.Errorf("cannot extract spreadsheet id from %q", sheetURL)
	}
	return sheetURL, nil
}

// ReadAll returns every row of the worksheet. Cells are rendered as formatted strings.
func (g *GoogleSheets) ReadAll(ctx context.Context, partition string) ([][]string, error) {
	resp, err := g.service.Spreadsheets.Values.Get(g.spreadsheetID, quoteSheet(partition)).
		Context(ctx).
		ValueRenderOption("FORMATTED_VALUE").
		Do()
	if err != nil {
		if isMissingSheet(err) {
			return nil, ErrPartitionNotFound
		}
		return nil, fmt.Errorf("failed to read sheet %s: %w", partition, err)
	}

	table := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprint(cell)
		}
		table = append(table, cells)
	}
	return table, nil
}

// AppendRows appends after the last row of the table anchored at A1
func (g *GoogleSheets) AppendRows(ctx context.Context, partition string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		values[i] = cells
	}

	_, err := g.service.Spreadsheets.Values.Append(g.spreadsheetID, quoteSheet(partition)+"!A1", &sheets.ValueRange{Values: values}).
		Context(ctx).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Do()
	if err != nil {
		return fmt.Errorf("failed to append %d rows to sheet %s: %w", len(rows), partition, err)
	}

	logrus.Infof("Appended %d rows to sheet %s", len(rows), partition)
	return nil
}

// EnsurePartition adds the worksheet and writes the header row when it is missing
func (g *GoogleSheets) EnsurePartition(ctx context.Context, partition string, header []string) error {
	spreadsheet, err := g.service.Spreadsheets.Get(g.spreadsheetID).Context(ctx).Fields("sheets.properties.title").Do()
	if err != nil {
		return fmt.Errorf("failed to list sheets: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == partition {
			logrus.Debugf("Sheet %s already exists", partition)
			return nil
		}
	}

	logrus.Infof("Sheet %s not found. Creating it...", partition)
	_, err = g.service.Spreadsheets.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title: partition,
					GridProperties: &sheets.GridProperties{
						RowCount:    1,
						ColumnCount: int64(len(header)),
					},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to add sheet %s: %w", partition, err)
	}

	return g.AppendRows(ctx, partition, [][]string{header})
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func isMissingSheet(err error) bool {
	apiErr, ok := err.(*googleapi.Error)
	if !ok {
		return false
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "Unable to parse range")
}
