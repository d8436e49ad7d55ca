// Package sheetstest provides an in-memory Google Sheets endpoint for tests.
package sheetstest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type Op string

const (
	OpMeta   Op = "meta"
	OpGet    Op = "get"
	OpAppend Op = "append"
	OpUpdate Op = "update"
	OpBatch  Op = "batch"
)

type tab struct {
	gid  int64
	rows [][]string
}

// Server emulates the subset of the Sheets v4 REST API the bot uses.
type Server struct {
	*httptest.Server

	SpreadsheetID string

	mu       sync.Mutex
	tabs     map[string]*tab
	order    []string
	failures map[Op]int
	calls    map[Op]int
}

func NewServer(t testing.TB, spreadsheetID string) *Server {
	t.Helper()
	s := &Server{
		SpreadsheetID: spreadsheetID,
		tabs:          make(map[string]*tab),
		failures:      make(map[Op]int),
		calls:         make(map[Op]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Service returns a client bound to this server without authentication.
func (s *Server) Service(t testing.TB) *sheets.Service {
	t.Helper()
	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(s.URL), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("sheets.NewService: %v", err)
	}
	return srv
}

// AddSheet creates a worksheet. The first row is the header.
func (s *Server) AddSheet(gid int64, title string, rows ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([][]string, len(rows))
	for i, r := range rows {
		copied[i] = append([]string(nil), r...)
	}
	s.tabs[title] = &tab{gid: gid, rows: copied}
	s.order = append(s.order, title)
}

// Rows returns a copy of the worksheet grid.
func (s *Server) Rows(title string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabs[title]
	if !ok {
		return nil
	}
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Cell returns the value under header in the 1-based row.
func (s *Server) Cell(title string, row int, header string) string {
	rows := s.Rows(title)
	if len(rows) == 0 || row < 1 || row > len(rows) {
		return ""
	}
	for i, h := range rows[0] {
		if strings.TrimSpace(h) == header {
			if i < len(rows[row-1]) {
				return rows[row-1][i]
			}
			return ""
		}
	}
	return ""
}

// FailNext makes the next n calls of op fail with HTTP 400. Negative n fails forever.
func (s *Server) FailNext(op Op, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = n
}

func (s *Server) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	prefix := "/v4/spreadsheets/" + s.SpreadsheetID
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusNotFound, "unknown spreadsheet")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)

	var op Op
	switch {
	case path == "":
		op = OpMeta
	case path == "/values:batchUpdate":
		op = OpBatch
	case strings.HasPrefix(path, "/values/") && strings.HasSuffix(path, ":append"):
		op = OpAppend
	case strings.HasPrefix(path, "/values/") && r.Method == http.MethodPut:
		op = OpUpdate
	case strings.HasPrefix(path, "/values/"):
		op = OpGet
	default:
		writeError(w, http.StatusNotFound, "unknown path")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[op]++
	if n := s.failures[op]; n != 0 {
		if n > 0 {
			s.failures[op] = n - 1
		}
		writeError(w, http.StatusBadRequest, "injected failure")
		return
	}

	rng := strings.TrimSuffix(strings.TrimPrefix(path, "/values/"), ":append")

	switch op {
	case OpMeta:
		s.meta(w)
	case OpGet:
		s.get(w, rng)
	case OpAppend:
		s.append(w, r, rng)
	case OpUpdate:
		var vr sheets.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.write(rng, vr.Values); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, sheets.UpdateValuesResponse{UpdatedRange: rng, UpdatedCells: 1})
	case OpBatch:
		var req sheets.BatchUpdateValuesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, vr := range req.Data {
			if err := s.write(vr.Range, vr.Values); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		writeJSON(w, sheets.BatchUpdateValuesResponse{TotalUpdatedCells: int64(len(req.Data))})
	}
}

func (s *Server) meta(w http.ResponseWriter) {
	resp := sheets.Spreadsheet{SpreadsheetId: s.SpreadsheetID}
	for _, title := range s.order {
		resp.Sheets = append(resp.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{SheetId: s.tabs[title].gid, Title: title},
		})
	}
	writeJSON(w, resp)
}

func (s *Server) get(w http.ResponseWriter, rng string) {
	title, spec := splitRange(rng)
	t, ok := s.tabs[title]
	if !ok {
		writeError(w, http.StatusBadRequest, "unable to parse range: "+rng)
		return
	}

	var out [][]interface{}
	switch {
	case spec == "":
		for _, row := range t.rows {
			out = append(out, toInterfaces(row))
		}
	case isRowSpec(spec):
		n, _ := strconv.Atoi(strings.SplitN(spec, ":", 2)[0])
		if n >= 1 && n <= len(t.rows) {
			out = append(out, toInterfaces(t.rows[n-1]))
		}
	default:
		col, row, err := parseCell(spec)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if row <= len(t.rows) && col < len(t.rows[row-1]) {
			out = [][]interface{}{{t.rows[row-1][col]}}
		}
	}
	writeJSON(w, sheets.ValueRange{Range: rng, Values: out})
}

func (s *Server) append(w http.ResponseWriter, r *http.Request, rng string) {
	title, _ := splitRange(rng)
	t, ok := s.tabs[title]
	if !ok {
		writeError(w, http.StatusBadRequest, "unable to parse range: "+rng)
		return
	}
	var vr sheets.ValueRange
	if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	first := len(t.rows) + 1
	width := 1
	for _, row := range vr.Values {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		if len(cells) > width {
			width = len(cells)
		}
		t.rows = append(t.rows, cells)
	}
	last := len(t.rows)

	writeJSON(w, sheets.AppendValuesResponse{
		SpreadsheetId: s.SpreadsheetID,
		Updates: &sheets.UpdateValuesResponse{
			UpdatedRange: fmt.Sprintf("'%s'!A%d:%s%d", title, first, columnLetter(width-1), last),
			UpdatedRows:  int64(last - first + 1),
		},
	})
}

func (s *Server) write(rng string, values [][]interface{}) error {
	title, spec := splitRange(rng)
	t, ok := s.tabs[title]
	if !ok {
		return fmt.Errorf("unknown sheet %q", title)
	}
	col, row, err := parseCell(spec)
	if err != nil {
		return err
	}
	if len(values) == 0 || len(values[0]) == 0 {
		return nil
	}
	for len(t.rows) < row {
		t.rows = append(t.rows, nil)
	}
	for len(t.rows[row-1]) <= col {
		t.rows[row-1] = append(t.rows[row-1], "")
	}
	t.rows[row-1][col] = fmt.Sprint(values[0][0])
	return nil
}

func splitRange(rng string) (string, string) {
	title, spec := rng, ""
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		title, spec = rng[:i], rng[i+1:]
	}
	if strings.HasPrefix(title, "'") && strings.HasSuffix(title, "'") && len(title) >= 2 {
		title = strings.ReplaceAll(title[1:len(title)-1], "''", "'")
	}
	return title, spec
}

func isRowSpec(spec string) bool {
	parts := strings.Split(spec, ":")
	if len(parts) != 2 {
		return false
	}
	_, err1 := strconv.Atoi(parts[0])
	_, err2 := strconv.Atoi(parts[1])
	return err1 == nil && err2 == nil
}

// parseCell parses a single A1 cell like "C5" (or the start of "C5:C5").
func parseCell(spec string) (int, int, error) {
	spec = strings.SplitN(spec, ":", 2)[0]
	i := 0
	col := 0
	for i < len(spec) && spec[i] >= 'A' && spec[i] <= 'Z' {
		col = col*26 + int(spec[i]-'A'+1)
		i++
	}
	row, err := strconv.Atoi(spec[i:])
	if i == 0 || err != nil || row < 1 {
		return 0, 0, fmt.Errorf("bad cell %q", spec)
	}
	return col - 1, row, nil
}

func columnLetter(idx int) string {
	var out []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		out = append([]byte{byte('A' + (n-1)%26)}, out...)
	}
	return string(out)
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"code": code, "message": msg},
	})
}
