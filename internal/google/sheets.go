package google

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"loyaltybot/internal/config"
	"loyaltybot/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsService is the adapter to the authoritative applications sheet and its Config tab.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetGID      int64
	configSheet   string
	logger        *zerolog.Logger

	titleMu sync.RWMutex
	title   string

	registered *TTLCache[int64, bool]
	initiators *TTLCache[int64, models.User]
	options    *TTLCache[string, []string]
}

func NewSheetsService(ctx context.Context, cfg config.GoogleConfig, logger *zerolog.Logger) (*SheetsService, error) {
	credentialsJSON, err := cfg.CredentialsBytes()
	if err != nil {
		return nil, err
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return NewWithService(srv, cfg.SheetKey, cfg.SheetGID, cfg.ConfigSheet, logger), nil
}

// NewWithService wraps an existing client. Tests point it at a fake endpoint.
func NewWithService(srv *sheets.Service, spreadsheetID string, gid int64, configSheet string, logger *zerolog.Logger) *SheetsService {
	if configSheet == "" {
		configSheet = config.DefaultConfigSheet
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetGID:      gid,
		configSheet:   configSheet,
		logger:        logger,
		registered:    NewTTLCache[int64, bool](models.RegistrationCacheTTL),
		initiators:    NewTTLCache[int64, models.User](models.InitiatorCacheTTL),
		options:       NewTTLCache[string, []string](models.ConfigOptionsCacheTTL),
	}
}

// TestConnection resolves the worksheet and reads its header row.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	headers, err := s.headers(ctx)
	if err != nil {
		return err
	}
	if len(headers) == 0 {
		return remoteErr("test_connection", fmt.Errorf("header row is empty"))
	}
	return nil
}

// sheetTitle resolves the worksheet title from its gid once.
func (s *SheetsService) sheetTitle(ctx context.Context) (string, error) {
	s.titleMu.RLock()
	title := s.title
	s.titleMu.RUnlock()
	if title != "" {
		return title, nil
	}

	resp, err := s.service.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return "", remoteErr("resolve_sheet", err)
	}

	for _, sh := range resp.Sheets {
		if sh.Properties != nil && sh.Properties.SheetId == s.sheetGID {
			s.titleMu.Lock()
			s.title = sh.Properties.Title
			s.titleMu.Unlock()
			return sh.Properties.Title, nil
		}
	}
	return "", remoteErr("resolve_sheet", fmt.Errorf("%w: gid %d", ErrSheetNotFound, s.sheetGID))
}

func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func (s *SheetsService) getValues(ctx context.Context, op, rng string) ([][]interface{}, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, remoteErr(op, err)
	}
	return resp.Values, nil
}

func normalizeHeaders(row []interface{}) []string {
	headers := make([]string, len(row))
	for i, v := range row {
		headers[i] = normalizeHeader(cellString(v))
	}
	return headers
}

func (s *SheetsService) headers(ctx context.Context) ([]string, error) {
	title, err := s.sheetTitle(ctx)
	if err != nil {
		return nil, err
	}
	values, err := s.getValues(ctx, "headers", quoteSheet(title)+"!1:1")
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return normalizeHeaders(values[0]), nil
}

func (s *SheetsService) columnIndex(headers []string, column string) (int, error) {
	key := normalizeHeader(column)
	for i, h := range headers {
		if h == key {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
}

// AllRecords returns every data row. Rows are numbered as in the sheet, header is row 1.
func (s *SheetsService) AllRecords(ctx context.Context) ([]*Record, error) {
	title, err := s.sheetTitle(ctx)
	if err != nil {
		return nil, err
	}
	values, err := s.getValues(ctx, "all_records", quoteSheet(title))
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	headers := normalizeHeaders(values[0])
	records := make([]*Record, 0, len(values)-1)
	for i, row := range values[1:] {
		if isBlankRow(row) {
			continue
		}
		records = append(records, newRecord(i+2, headers, row))
	}
	return records, nil
}

func isBlankRow(row []interface{}) bool {
	for _, v := range row {
		if cellString(v) != "" {
			return false
		}
	}
	return true
}

// IsRegistered is true when some row has the chat id and a full name. Only positives are cached.
func (s *SheetsService) IsRegistered(ctx context.Context, chatID int64) (bool, error) {
	if ok, hit := s.registered.Get(chatID); hit && ok {
		return true, nil
	}

	records, err := s.AllRecords(ctx)
	if err != nil {
		return false, err
	}

	for _, r := range records {
		if r.ChatID() == chatID && r.Get(ColFullName) != "" {
			s.registered.Set(chatID, true)
			return true, nil
		}
	}
	return false, nil
}

// GetInitiator returns the submitter fields of the latest row for this chat, or nil.
func (s *SheetsService) GetInitiator(ctx context.Context, chatID int64) (*models.User, error) {
	if u, ok := s.initiators.Get(chatID); ok {
		return &u, nil
	}

	records, err := s.AllRecords(ctx)
	if err != nil {
		return nil, err
	}

	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.ChatID() != chatID || r.Get(ColFullName) == "" {
			continue
		}
		u := r.Initiator()
		s.initiators.Set(chatID, *u)
		s.registered.Set(chatID, true)
		return u, nil
	}
	return nil, nil
}

// FindCardByNumber returns the first row with this card number, or nil.
func (s *SheetsService) FindCardByNumber(ctx context.Context, number string) (*Record, error) {
	found, err := s.FindCardsByNumber(ctx, number)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// FindCardsByNumber returns every row with this card number in sheet order.
func (s *SheetsService) FindCardsByNumber(ctx context.Context, number string) ([]*Record, error) {
	number = strings.TrimSpace(number)
	records, err := s.AllRecords(ctx)
	if err != nil {
		return nil, err
	}

	var found []*Record
	for _, r := range records {
		if r.Get(ColCardNumber) == number {
			found = append(found, r)
		}
	}
	return found, nil
}

// GetConfigOptions reads one column of the Config tab, header excluded and blanks dropped.
func (s *SheetsService) GetConfigOptions(ctx context.Context, column string) ([]string, error) {
	key := normalizeHeader(column)
	if opts, ok := s.options.Get(key); ok {
		return opts, nil
	}

	values, err := s.getValues(ctx, "config_options", quoteSheet(s.configSheet))
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, remoteErr("config_options", fmt.Errorf("%w: %q", ErrColumnNotFound, column))
	}

	idx, err := s.columnIndex(normalizeHeaders(values[0]), column)
	if err != nil {
		return nil, remoteErr("config_options", err)
	}

	var opts []string
	for _, row := range values[1:] {
		if idx >= len(row) {
			continue
		}
		if v := cellString(row[idx]); v != "" {
			opts = append(opts, v)
		}
	}
	if len(opts) > 0 {
		s.options.Set(key, opts)
	}
	return opts, nil
}

var updatedRangeRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// parseUpdatedRow extracts the first row number from a range like 'Sheet'!A10:U10.
func parseUpdatedRow(rng string) (int, error) {
	m := updatedRangeRe.FindStringSubmatch(rng)
	if m == nil {
		return 0, fmt.Errorf("unexpected updated range %q", rng)
	}
	return strconv.Atoi(m[1])
}

// AppendRow writes the application in the current header order and returns its row index.
func (s *SheetsService) AppendRow(ctx context.Context, app *models.Application) (int, error) {
	title, err := s.sheetTitle(ctx)
	if err != nil {
		return 0, err
	}
	headers, err := s.headers(ctx)
	if err != nil {
		return 0, err
	}
	if len(headers) == 0 {
		return 0, remoteErr("append", fmt.Errorf("header row is empty"))
	}

	fields := applicationFields(app)
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = fields[h]
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, quoteSheet(title)+"!A1", &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, remoteErr("append", err)
	}
	if resp.Updates == nil {
		return 0, remoteErr("append", fmt.Errorf("response has no updates"))
	}

	rowIdx, err := parseUpdatedRow(resp.Updates.UpdatedRange)
	if err != nil {
		return 0, remoteErr("append", err)
	}

	s.WarmSubmitter(app.Submitter)
	return rowIdx, nil
}

// WarmSubmitter seeds the registration and initiator caches after a successful write.
func (s *SheetsService) WarmSubmitter(u models.User) {
	if u.TelegramID == 0 || u.FullName == "" {
		return
	}
	s.registered.Set(u.TelegramID, true)
	s.initiators.Set(u.TelegramID, u)
}

// UpdateCell writes a single cell addressed by header name.
func (s *SheetsService) UpdateCell(ctx context.Context, row int, column, value string) error {
	rng, err := s.cellRange(ctx, row, column)
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return remoteErr("update_cell", err)
}

// UpdateCells writes several cells of one row in a single batch request.
func (s *SheetsService) UpdateCells(ctx context.Context, row int, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	if row < 2 {
		return remoteErr("update_cells", fmt.Errorf("%w: %d", ErrRowNotFound, row))
	}
	title, err := s.sheetTitle(ctx)
	if err != nil {
		return err
	}
	headers, err := s.headers(ctx)
	if err != nil {
		return err
	}

	data := make([]*sheets.ValueRange, 0, len(values))
	for column, value := range values {
		idx, err := s.columnIndex(headers, column)
		if err != nil {
			return remoteErr("update_cells", err)
		}
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", quoteSheet(title), columnLetter(idx), row),
			Values: [][]interface{}{{value}},
		})
	}

	_, err = s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	return remoteErr("update_cells", err)
}

func (s *SheetsService) cellRange(ctx context.Context, row int, column string) (string, error) {
	if row < 2 {
		return "", remoteErr("update_cell", fmt.Errorf("%w: %d", ErrRowNotFound, row))
	}
	title, err := s.sheetTitle(ctx)
	if err != nil {
		return "", err
	}
	headers, err := s.headers(ctx)
	if err != nil {
		return "", err
	}
	idx, err := s.columnIndex(headers, column)
	if err != nil {
		return "", remoteErr("update_cell", err)
	}
	return fmt.Sprintf("%s!%s%d", quoteSheet(title), columnLetter(idx), row), nil
}

// GetRow reads one data row keyed by header.
func (s *SheetsService) GetRow(ctx context.Context, row int) (*Record, error) {
	if row < 2 {
		return nil, fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	title, err := s.sheetTitle(ctx)
	if err != nil {
		return nil, err
	}
	headers, err := s.headers(ctx)
	if err != nil {
		return nil, err
	}
	values, err := s.getValues(ctx, "get_row", fmt.Sprintf("%s!%d:%d", quoteSheet(title), row, row))
	if err != nil {
		return nil, err
	}
	if len(values) == 0 || isBlankRow(values[0]) {
		return nil, fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	return newRecord(row, headers, values[0]), nil
}

// InvalidateCaches drops cached registration, initiator and option lookups.
func (s *SheetsService) InvalidateCaches() {
	s.registered.Clear()
	s.initiators.Clear()
	s.options.Clear()
}

// ListApplications converts every data row into an application.
func (s *SheetsService) ListApplications(ctx context.Context) ([]*models.Application, error) {
	records, err := s.AllRecords(ctx)
	if err != nil {
		return nil, err
	}
	apps := make([]*models.Application, 0, len(records))
	for _, r := range records {
		apps = append(apps, r.Application())
	}
	return apps, nil
}

// GetApplication reads one row as an application.
func (s *SheetsService) GetApplication(ctx context.Context, row int) (*models.Application, error) {
	rec, err := s.GetRow(ctx, row)
	if err != nil {
		return nil, err
	}
	return rec.Application(), nil
}

// FindApplicationsByCard returns every application carrying this card number.
func (s *SheetsService) FindApplicationsByCard(ctx context.Context, number string) ([]*models.Application, error) {
	records, err := s.FindCardsByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	apps := make([]*models.Application, 0, len(records))
	for _, r := range records {
		apps = append(apps, r.Application())
	}
	return apps, nil
}
