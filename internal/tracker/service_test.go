package tracker_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/freelilwilly/polymarket-tracker/internal/ledger"
	"github.com/freelilwilly/polymarket-tracker/internal/model"
	"github.com/freelilwilly/polymarket-tracker/internal/store"
	"github.com/freelilwilly/polymarket-tracker/internal/tracker"
)

// flakyStore fails SaveSnapshot while failing is set.
type flakyStore struct {
	*store.MemoryStore
	mu      sync.Mutex
	failing bool
	calls   int
}

func (f *flakyStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	f.mu.Lock()
	f.calls++
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("connection refused")
	}
	return f.MemoryStore.SaveSnapshot(ctx, snap)
}

func (f *flakyStore) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func testParams() ledger.Params {
	return ledger.Params{
		StartingBankroll:      1000,
		BaseRiskPct:           0.02,
		MinMultiplier:         0.5,
		MaxMultiplier:         2.0,
		MaxTradeNotionalPct:   1,
		MaxMarketNotionalPct:  1,
		MaxAccountNotionalPct: 1,
		CurvePower:            1,
		LowSizeHaircutPower:   0.5,
		LowSizeHaircutMin:     0.35,
	}
}

// newTestEnv creates a test Service with a flaky in-memory store and chi router.
func newTestEnv(t *testing.T) (*tracker.Service, *flakyStore, chi.Router) {
	t.Helper()
	fs := &flakyStore{MemoryStore: store.NewMemoryStore()}
	engine := ledger.NewEngine(testParams(), nil)
	svc := tracker.NewService(engine, fs, tracker.PersistPolicy{Attempts: 2, Backoff: time.Millisecond}, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return svc, fs, r
}

func tradeBody(side string, size, price float64) tracker.RecordRequest {
	return tracker.RecordRequest{
		Trader:   model.Trader{ID: "0xabc", Name: "whale"},
		Category: "Politics",
		Trade: model.TradeEvent{
			ID:        "t-" + side,
			Side:      side,
			Size:      size,
			Price:     price,
			Title:     "Election winner",
			Asset:     "123",
			Outcome:   "Yes",
			Timestamp: 1700000000,
		},
	}
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeRecord(t *testing.T, w *httptest.ResponseRecorder) tracker.RecordResponse {
	t.Helper()
	var resp tracker.RecordResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return resp
}

// --- Recording tests ---

func TestRecordTrade_BuyOpensPosition(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/trades", tradeBody("BUY", 10, 0.4))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeRecord(t, w)

	if resp.Audit.Status != model.StatusOpened {
		t.Fatalf("expected OPENED, got %s", resp.Audit.Status)
	}
	if !resp.Audit.CopiedNotional.Equal(resp.Audit.TargetNotional) || resp.Audit.CopiedNotional.InexactFloat64() != 25 {
		t.Errorf("expected 25 copied, got %s", resp.Audit.CopiedNotional)
	}
	if resp.Audit.TradeKey != "t-BUY" || resp.Audit.Category != "Politics" {
		t.Errorf("unexpected audit metadata: %+v", resp.Audit)
	}
	if resp.Reason != "" {
		t.Errorf("unexpected reason %q", resp.Reason)
	}

	w = doJSON(t, router, "GET", "/api/v1/positions", nil)
	var positions []model.Position
	json.Unmarshal(w.Body.Bytes(), &positions)
	if len(positions) != 1 || positions[0].InstrumentKey != "123|yes" {
		t.Fatalf("expected one position on 123|yes, got %+v", positions)
	}

	w = doJSON(t, router, "GET", "/api/v1/summary", nil)
	var summary model.Summary
	json.Unmarshal(w.Body.Bytes(), &summary)
	if summary.ProcessedTrades != 1 || summary.OpenPositions != 1 || summary.TrackedAccounts != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestRecordTrade_IgnoredReportsReason(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/trades", tradeBody("SELL", 10, 0.4))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeRecord(t, w)
	if resp.Audit.Status != model.StatusIgnored || resp.Reason == "" {
		t.Errorf("expected IGNORED with reason, got %s %q", resp.Audit.Status, resp.Reason)
	}

	w = doJSON(t, router, "GET", "/api/v1/accounts", nil)
	var accounts []model.Account
	json.Unmarshal(w.Body.Bytes(), &accounts)
	if len(accounts) != 1 || accounts[0].CopiedTrades != 0 {
		t.Errorf("ignored trader should be tracked with no copies: %+v", accounts)
	}
}

func TestRecordTrade_DerivesTradeKey(t *testing.T) {
	_, _, router := newTestEnv(t)

	body := tradeBody("BUY", 10, 0.4)
	body.Trade.ID = ""
	body.Trade.TransactionHash = "0xfeed"
	resp := decodeRecord(t, doJSON(t, router, "POST", "/api/v1/trades", body))

	want := "0xfeed:1700000000:123:Yes:BUY:10:0.4"
	if resp.Audit.TradeKey != want {
		t.Errorf("expected trade key %q, got %q", want, resp.Audit.TradeKey)
	}
}

func TestRecordTrade_InvalidBody(t *testing.T) {
	_, _, router := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/v1/trades", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRecordTrade_StringNumbers(t *testing.T) {
	_, _, router := newTestEnv(t)

	body := `{"trader":{"id":"0xabc"},"trade":{"side":"buy","size":"10","price":"0.4","asset":"123","outcome":"Yes"}}`
	req := httptest.NewRequest("POST", "/api/v1/trades", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := decodeRecord(t, w)
	if resp.Audit.Status != model.StatusOpened {
		t.Errorf("expected string numbers to be coerced, got %s", resp.Audit.Status)
	}
}

// --- Persistence failure tests ---

func TestRecord_PersistFailureKeepsLedgerAndRetries(t *testing.T) {
	svc, fs, router := newTestEnv(t)
	fs.setFailing(true)

	w := doJSON(t, router, "POST", "/api/v1/trades", tradeBody("BUY", 10, 0.4))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	failed := decodeRecord(t, w)
	if failed.Error == "" {
		t.Error("expected persistence error in response")
	}
	if failed.Audit.Seq != 1 || failed.Audit.Status != model.StatusOpened {
		t.Errorf("expected the applied audit row in the response, got %+v", failed.Audit)
	}
	if fs.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", fs.calls)
	}
	if svc.Pending() != 1 {
		t.Fatalf("expected 1 pending audit row, got %d", svc.Pending())
	}
	// The ledger mutation stands.
	if got := svc.Engine().Totals().ProcessedTrades; got != 1 {
		t.Errorf("expected ledger to have applied the trade, processed=%d", got)
	}

	_, err := svc.Record(context.Background(), tradeBody("HOLD", 1, 0.4).Trade, model.Trader{ID: "x"}, "", "")
	if !errors.Is(err, tracker.ErrPersist) {
		t.Errorf("expected ErrPersist, got %v", err)
	}

	fs.setFailing(false)
	w = doJSON(t, router, "POST", "/api/v1/snapshot/flush", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected flush to succeed, got %d: %s", w.Code, w.Body.String())
	}
	if svc.Pending() != 0 {
		t.Errorf("expected nothing pending after flush, got %d", svc.Pending())
	}

	audit, _ := fs.ListAudit(context.Background(), 0)
	if len(audit) != 2 || audit[0].Seq != 2 || audit[1].Seq != 1 {
		t.Errorf("expected both audit rows persisted once, got %+v", audit)
	}
}

func TestFlush_IdempotentWhenNothingPending(t *testing.T) {
	svc, fs, _ := newTestEnv(t)
	ctx := context.Background()

	svc.Record(ctx, tradeBody("BUY", 10, 0.4).Trade, model.Trader{ID: "a"}, "", "")
	before, _ := fs.GetSummary(ctx)
	if err := svc.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	after, _ := fs.GetSummary(ctx)

	b1, _ := json.Marshal(before)
	b2, _ := json.Marshal(after)
	if !bytes.Equal(b1, b2) {
		t.Errorf("flush changed the summary:\n%s\n%s", b1, b2)
	}
	audit, _ := fs.ListAudit(ctx, 0)
	if len(audit) != 1 {
		t.Errorf("expected one audit row, got %d", len(audit))
	}
}

// --- Query endpoint tests ---

func TestGetSummary_BeforeFirstWrite(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var summary model.Summary
	json.Unmarshal(w.Body.Bytes(), &summary)
	if summary.StartingBankroll.InexactFloat64() != 1000 || summary.ProcessedTrades != 0 {
		t.Errorf("unexpected live summary: %+v", summary)
	}
}

func TestSeedHistory_AffectsPercentile(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "PUT", "/api/v1/traders/0xabc/history", tracker.SeedRequest{Sizes: []float64{5, 20, 40, 80}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	resp := decodeRecord(t, doJSON(t, router, "POST", "/api/v1/trades", tradeBody("BUY", 10, 0.4)))
	if resp.Audit.Percentile != 0.25 {
		t.Errorf("expected percentile 0.25 against seeded history, got %v", resp.Audit.Percentile)
	}
}

func TestOpenTraders(t *testing.T) {
	_, _, router := newTestEnv(t)
	doJSON(t, router, "POST", "/api/v1/trades", tradeBody("BUY", 10, 0.4))

	w := doJSON(t, router, "GET", "/api/v1/traders/open", nil)
	var body map[string][]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if len(body["traders"]) != 1 || body["traders"][0] != "0xabc" {
		t.Errorf("expected [0xabc], got %v", body["traders"])
	}
}

func TestListAudit_Limit(t *testing.T) {
	_, _, router := newTestEnv(t)
	for i := 0; i < 3; i++ {
		doJSON(t, router, "POST", "/api/v1/trades", tradeBody("BUY", 10, 0.4))
	}

	w := doJSON(t, router, "GET", "/api/v1/audit?limit=2", nil)
	var rows []model.AuditRow
	json.Unmarshal(w.Body.Bytes(), &rows)
	if len(rows) != 2 || rows[0].Seq != 3 {
		t.Errorf("expected 2 newest rows, got %+v", rows)
	}

	w = doJSON(t, router, "GET", "/api/v1/audit?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}
}

// --- Concurrency ---

func TestRecord_ConcurrentCallsSerialize(t *testing.T) {
	svc, fs, _ := newTestEnv(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Record(ctx, tradeBody("BUY", 1, 0.5).Trade, model.Trader{ID: "a"}, "", "")
		}()
	}
	wg.Wait()

	audit, _ := fs.ListAudit(ctx, 0)
	if len(audit) != n {
		t.Fatalf("expected %d audit rows, got %d", n, len(audit))
	}
	seen := make(map[int64]bool)
	for _, row := range audit {
		if seen[row.Seq] {
			t.Fatalf("duplicate seq %d", row.Seq)
		}
		seen[row.Seq] = true
	}
	summary, _ := fs.GetSummary(ctx)
	if summary.ProcessedTrades != n {
		t.Errorf("expected %d processed, got %d", n, summary.ProcessedTrades)
	}
}
