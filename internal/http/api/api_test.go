package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"gitea.jw6.us/james/odoolink/internal/auth"
	"gitea.jw6.us/james/odoolink/internal/booking"
	"gitea.jw6.us/james/odoolink/internal/config"
	"gitea.jw6.us/james/odoolink/internal/store"
)

const operatorToken = "operator-token-0123456789"

// Monday 2025-11-10 10:00 in Mexico City (UTC-6).
var testNow = time.Date(2025, 11, 10, 16, 0, 0, 0, time.UTC)

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func newHandler(t *testing.T, env config.Env) *Handler {
	t.Helper()
	h := NewHandler(env, booking.DefaultPolicy(), nil, auth.NewOperators(operatorToken, nil))
	h.SetClock(func() time.Time { return testNow })
	return h
}

func post(t *testing.T, fn http.HandlerFunc, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", "application/json")
	return serve(t, fn, req)
}

func get(t *testing.T, fn http.HandlerFunc, target string, header ...string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	return serve(t, fn, req)
}

func serve(t *testing.T, fn http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, response) {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(rec, req)
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, resp response, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Errorf("status = %d, want %d (%s)", rec.Code, status, rec.Body.String())
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != code {
		t.Errorf("body = %s, want code %s", rec.Body.String(), code)
	}
}

func decodeData(t *testing.T, resp response, v any) {
	t.Helper()
	if !resp.Success {
		t.Fatalf("request failed: %+v", resp.Error)
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

// ledgerDB records inserted ledger rows in memory and answers contact
// counts with distinct.
type ledgerDB struct {
	mu       sync.Mutex
	args     [][]any
	distinct int
}

func (d *ledgerDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("unexpected exec")
}

func (d *ledgerDB) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, errors.New("unexpected transaction")
}

func (d *ledgerDB) Ping(context.Context) error { return nil }

func (d *ledgerDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	if strings.Contains(sql, "COUNT(") {
		return countRow(d.distinct)
	}
	d.args = append(d.args, args)
	return ledgerRow{id: int64(len(d.args))}
}

func (d *ledgerDB) rows() [][]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.args
}

type ledgerRow struct{ id int64 }

func (r ledgerRow) Scan(dest ...any) error {
	*dest[0].(*int64) = r.id
	*dest[1].(*time.Time) = testNow
	return nil
}

type countRow int

func (r countRow) Scan(dest ...any) error {
	*dest[0].(*int) = int(r)
	return nil
}

func withLedger(h *Handler) *ledgerDB {
	db := &ledgerDB{}
	h.ledger = store.New(db)
	return db
}
