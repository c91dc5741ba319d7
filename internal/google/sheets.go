package google

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"arenda/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// blocksRange covers the staff-maintained block sheet: property uid, start
// day, end day (exclusive), note.
const blocksRange = "Blocks!A2:D"

// SheetsService reads externally managed calendar blocks from a Google
// spreadsheet maintained by staff.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
}

func NewSheetsService(credentialsFile, spreadsheetID string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsService{service: srv, spreadsheetID: spreadsheetID}, nil
}

// TestConnection reads the sheet header to verify access.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, "Blocks!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// FetchBlocks reads the block rows. Rows with unparseable dates are skipped,
// not fatal: a typo in one row must not stall the whole import.
func (s *SheetsService) FetchBlocks(ctx context.Context) ([]*models.ExternalBlock, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, blocksRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read blocks sheet: %v", err)
	}

	var blocks []*models.ExternalBlock
	for _, row := range resp.Values {
		if len(row) < 3 {
			continue
		}

		uid := strings.TrimSpace(fmt.Sprint(row[0]))
		if uid == "" {
			continue
		}

		start, err := parseSheetDay(fmt.Sprint(row[1]))
		if err != nil {
			continue
		}
		end, err := parseSheetDay(fmt.Sprint(row[2]))
		if err != nil {
			continue
		}

		block := &models.ExternalBlock{
			PropertyUID: uid,
			Start:       start,
			End:         end,
		}
		if len(row) > 3 {
			block.Note = strings.TrimSpace(fmt.Sprint(row[3]))
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

func parseSheetDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(models.DayFormat, raw, time.UTC); err == nil {
		return t, nil
	}
	// Staff sometimes enter dates in the local notation.
	return time.ParseInLocation("02.01.2006", raw, time.UTC)
}
