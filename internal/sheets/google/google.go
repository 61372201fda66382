package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"financas/internal/cache"
	applog "financas/internal/log"
	"financas/internal/report"
	ports "financas/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const titleCacheTTL = 10 * time.Minute

// Client exports reports into tabs of one spreadsheet. Each export
// replaces the content of every tab.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// titles of the tabs known to exist
	titles *cache.LRUCache[bool]
}

var _ ports.ReportExporter = (*Client)(nil)

// NewFromEnv creates a Sheets client for spreadsheetID using Service
// Account credentials from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context, spreadsheetID string) (*Client, error) {
	credentialsJSON, err := credentialsFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, spreadsheetID,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
}

// New creates a client with explicit API options.
func New(ctx context.Context, spreadsheetID string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		titles:        cache.NewLRUCache[bool](64, titleCacheTTL),
	}, nil
}

func credentialsFromEnv(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// Export writes every report table to its tab, creating missing tabs.
func (c *Client) Export(ctx context.Context, rep report.Report) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	tables := ports.Tables(rep)
	if err := c.ensureTabs(ctx, tables); err != nil {
		return err
	}

	for _, t := range tables {
		if err := c.writeTable(ctx, t); err != nil {
			// a deleted tab invalidates what we know
			c.titles.Delete(t.Name)
			return err
		}
	}

	slog.InfoContext(ctx, "Report exported to Google Sheets",
		applog.FieldComponent, applog.ComponentSheets,
		"spreadsheet_id", c.spreadsheetID,
		"pending", len(rep.PendingInstallments),
		"history", len(rep.PaymentHistory),
		"projections", len(rep.FutureProjections))
	return nil
}

func (c *Client) ensureTabs(ctx context.Context, tables []ports.Table) error {
	missing := make([]string, 0, len(tables))
	for _, t := range tables {
		if _, ok := c.titles.Get(t.Name); !ok {
			missing = append(missing, t.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	existing, err := c.sheetTitles(ctx)
	if err != nil {
		return err
	}

	var requests []*gsheet.Request
	for _, name := range missing {
		if existing[name] {
			c.titles.Set(name, true)
			continue
		}
		requests = append(requests, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: name},
			},
		})
	}
	if len(requests) == 0 {
		return nil
	}

	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("create tabs: %w", err)
	}
	for _, r := range requests {
		c.titles.Set(r.AddSheet.Properties.Title, true)
	}
	slog.InfoContext(ctx, "Created spreadsheet tabs",
		applog.FieldComponent, applog.ComponentSheets,
		"count", len(requests))
	return nil
}

func (c *Client) sheetTitles(ctx context.Context) (map[string]bool, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	out := make(map[string]bool, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			out[s.Properties.Title] = true
		}
	}
	return out, nil
}

func (c *Client) writeTable(ctx context.Context, t ports.Table) error {
	clearRange := quoteSheet(t.Name) + "!A:Z"
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", t.Name, err)
	}

	vr := &gsheet.ValueRange{Values: t.Values()}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoteSheet(t.Name)+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", t.Name, err)
	}
	return nil
}

// CleanExpired drops expired tab titles. It lets a cache.Manager clean the
// client's cache.
func (c *Client) CleanExpired() int {
	return c.titles.CleanExpired()
}

// quoteSheet quotes a tab name for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
