package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financas/internal/advisor"
	"financas/internal/core"
	applog "financas/internal/log"
	"financas/internal/report"
	"financas/internal/services"
	"financas/internal/storage"
)

var testNow = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

type fakeGenerator func(ctx context.Context, prompt string) iter.Seq2[string, error]

func (f fakeGenerator) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return f(ctx, prompt)
}

func chunks(parts ...string) fakeGenerator {
	return func(context.Context, string) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			for _, p := range parts {
				if !yield(p, nil) {
					return
				}
			}
		}
	}
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Ledger == nil {
		store := storage.NewSnapshotStore(storage.NewMemoryKV())
		opts.Ledger = services.NewLedger(storage.Snapshot{Data: core.EmptyFinancialData()}, store,
			services.WithClock(func() time.Time { return testNow }))
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Output: io.Discard})
	}
	srv := NewServer(opts)
	t.Cleanup(func() { srv.limiter.Stop() })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}

func TestHealthReadyAndMetrics(t *testing.T) {
	srv := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := do(t, srv, http.MethodGet, "/metrics", "")
	m := decode[metricsResponse](t, rr)
	assert.Equal(t, int64(4), m.Requests.TotalRequests)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/incomes", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestIncomeCRUD(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/incomes",
		`{"date":"2024-03-05","description":"Salário","amount":5000}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	inc := decode[core.Income](t, rr)
	assert.NotEmpty(t, inc.ID)
	assert.Equal(t, int64(500000), inc.Amount.Cents)

	rr = do(t, srv, http.MethodPut, "/api/incomes/"+inc.ID,
		`{"date":"2024-03-06","description":"Salário","amount":"5100.50"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	snap := decode[snapshotResponse](t, do(t, srv, http.MethodGet, "/api/snapshot", ""))
	require.Len(t, snap.Data.Income, 1)
	assert.Equal(t, int64(510050), snap.Data.Income[0].Amount.Cents)

	rr = do(t, srv, http.MethodDelete, "/api/incomes/"+inc.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, srv, http.MethodDelete, "/api/incomes/"+inc.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRequestErrors(t *testing.T) {
	srv := newTestServer(t, Options{})

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"malformed json", "/api/incomes", `{"date":`, http.StatusBadRequest},
		{"unknown field", "/api/incomes", `{"date":"2024-03-05","description":"x","amount":1,"paid":true}`, http.StatusBadRequest},
		{"trailing data", "/api/cards", `{"name":"Visa","dueDate":5} {}`, http.StatusBadRequest},
		{"zero amount", "/api/incomes", `{"date":"2024-03-05","description":"x","amount":0}`, http.StatusUnprocessableEntity},
		{"date not a day key", "/api/incomes", `{"date":"05/03/2024","description":"x","amount":10}`, http.StatusUnprocessableEntity},
		{"amount not a number", "/api/fixed-expenses", `{"description":"Luz","amount":"abc","dueDate":5}`, http.StatusUnprocessableEntity},
		{"due day out of range", "/api/cards", `{"name":"Visa","dueDate":0}`, http.StatusUnprocessableEntity},
		{"purchase on missing card", "/api/cards/missing/purchases",
			`{"purchaseDate":"2024-01-15","store":"","item":"10","totalInstallments":1}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decode[errorResponse](t, rr).Error)
		})
	}
}

func TestFixedExpenseToggleAndDashboard(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/incomes", `{"date":"2024-03-01","description":"Salário","amount":1000}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, srv, http.MethodPost, "/api/fixed-expenses", `{"description":"Aluguel","amount":200,"dueDate":10}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	e := decode[core.FixedExpense](t, rr)

	totals := decode[report.Totals](t, do(t, srv, http.MethodGet, "/api/dashboard", ""))
	assert.Equal(t, int64(20000), totals.ToPayThisMonth.Cents)

	rr = do(t, srv, http.MethodPost, "/api/fixed-expenses/"+e.ID+"/toggle", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []core.Period{"2024-03"}, decode[core.FixedExpense](t, rr).PaidMonths)

	totals = decode[report.Totals](t, do(t, srv, http.MethodGet, "/api/dashboard", ""))
	assert.Equal(t, core.Period("2024-03"), totals.Period)
	assert.Equal(t, int64(100000), totals.TotalIncome.Cents)
	assert.Equal(t, int64(20000), totals.TotalPaidFixedExpensesThisMonth.Cents)
	assert.Equal(t, int64(80000), totals.Balance.Cents)
	assert.Zero(t, totals.ToPayThisMonth.Cents)
}

func TestCardPurchaseFlow(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/cards", `{"name":"Visa","dueDate":5}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	card := decode[core.Card](t, rr)

	rr = do(t, srv, http.MethodPost, "/api/cards/"+card.ID+"/purchases",
		`{"purchaseDate":"2024-01-15","store":"Loja","item":"100,50","totalInstallments":3}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	p := decode[core.Purchase](t, rr)
	require.Len(t, p.Installments, 3)
	for i, want := range []core.Period{"2024-02", "2024-03", "2024-04"} {
		assert.Equal(t, want, p.Installments[i].MonthYear)
		assert.Equal(t, int64(5000), p.Installments[i].Amount.Cents)
		assert.False(t, p.Installments[i].Paid)
	}

	base := "/api/cards/" + card.ID + "/purchases/" + p.ID
	rr = do(t, srv, http.MethodPost, base+"/installments/2024-02/toggle", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[core.Purchase](t, rr).PaidInstallmentsCount)

	rr = do(t, srv, http.MethodPost, base+"/installments/2024-13/toggle", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, srv, http.MethodPost, base+"/installments/2030-01/toggle", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rep := decode[report.Report](t, do(t, srv, http.MethodGet, "/api/report", ""))
	assert.Len(t, rep.PendingInstallments, 2)
	assert.Len(t, rep.PaymentHistory, 1)
	assert.Len(t, rep.FutureProjections, 3)

	rr = do(t, srv, http.MethodPut, base,
		`{"purchaseDate":"2024-01-15","store":"Loja","item":"200","totalInstallments":2}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	edited := decode[core.Purchase](t, rr)
	assert.Equal(t, p.ID, edited.ID)
	assert.True(t, edited.Installments[0].Paid)
	assert.Equal(t, 1, edited.PaidInstallmentsCount)

	rr = do(t, srv, http.MethodDelete, "/api/cards/"+card.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rep = decode[report.Report](t, do(t, srv, http.MethodGet, "/api/report", ""))
	assert.Empty(t, rep.PendingInstallments)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/report", "").Code)
	}
	rr := do(t, srv, http.MethodGet, "/api/report", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// health checks are not limited
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)
}

func TestAdvice_Streams(t *testing.T) {
	var prompt string
	gen := fakeGenerator(func(ctx context.Context, p string) iter.Seq2[string, error] {
		prompt = p
		return chunks("Olá", "", ", corte gastos.")(ctx, p)
	})
	srv := newTestServer(t, Options{Advisor: advisor.New(gen)})
	require.Equal(t, http.StatusCreated,
		do(t, srv, http.MethodPost, "/api/cards", `{"name":"Nubank","dueDate":5}`).Code)

	rr := do(t, srv, http.MethodPost, "/api/advice", `{"question":"Como economizar?"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "Olá, corte gastos.", rr.Body.String())
	assert.True(t, rr.Flushed)
	assert.Contains(t, prompt, `"Como economizar?"`)
}

func TestAdvice_Failures(t *testing.T) {
	failing := fakeGenerator(func(context.Context, string) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			yield("", errors.New("quota exceeded"))
		}
	})

	tests := []struct {
		name    string
		advisor Advisor
		body    string
		want    int
		wantMsg string
	}{
		{"missing credential", advisor.New(nil), `{"question":"oi"}`, http.StatusServiceUnavailable, advisor.ErrUnavailable.Error()},
		{"no advisor", nil, `{"question":"oi"}`, http.StatusServiceUnavailable, advisor.ErrUnavailable.Error()},
		{"service error", advisor.New(failing), `{"question":"oi"}`, http.StatusServiceUnavailable, advisor.ErrUnavailable.Error()},
		{"empty question", advisor.New(chunks("x")), `{"question":"  "}`, http.StatusUnprocessableEntity, advisor.ErrEmptyQuestion.Error()},
		{"bad body", advisor.New(chunks("x")), `{"q":1}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Options{Advisor: tt.advisor})
			rr := do(t, srv, http.MethodPost, "/api/advice", tt.body)

			assert.Equal(t, tt.want, rr.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, decode[errorResponse](t, rr).Error)
			}
		})
	}
}

func TestAdvice_ErrorMidStream(t *testing.T) {
	gen := fakeGenerator(func(context.Context, string) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			if !yield("Parte um.", nil) {
				return
			}
			yield("", errors.New("connection reset"))
		}
	})
	srv := newTestServer(t, Options{Advisor: advisor.New(gen)})

	rr := do(t, srv, http.MethodPost, "/api/advice", `{"question":"oi"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Parte um.\n\n"+advisor.ErrUnavailable.Error(), rr.Body.String())
}

func TestAdvice_FailureIsLoggedWithRequestContext(t *testing.T) {
	gen := fakeGenerator(func(context.Context, string) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			yield("", errors.New("quota exhausted"))
		}
	})
	var logs bytes.Buffer
	srv := newTestServer(t, Options{
		Advisor: advisor.New(gen),
		Logger:  applog.New(applog.Config{Output: &logs}),
	})

	rr := do(t, srv, http.MethodPost, "/api/advice", `{"question":"oi"}`)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	out := logs.String()
	assert.Contains(t, out, "Advice request failed")
	assert.Contains(t, out, "component=advisor")
	assert.Contains(t, out, "operation=advise")
	assert.Contains(t, out, "request_id="+rr.Header().Get("X-Request-ID"))
	assert.Contains(t, out, "quota exhausted")
}

func TestAdvice_Timeout(t *testing.T) {
	gen := fakeGenerator(func(ctx context.Context, _ string) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			<-ctx.Done()
			yield("", ctx.Err())
		}
	})
	srv := newTestServer(t, Options{Advisor: advisor.New(gen), AdviceTimeout: 20 * time.Millisecond})

	rr := do(t, srv, http.MethodPost, "/api/advice", `{"question":"oi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAdvice_ClientDisconnectCancelsGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var genErr error
	gen := fakeGenerator(func(genCtx context.Context, _ string) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			if !yield("primeiro", nil) {
				return
			}
			cancel() // the client goes away
			<-genCtx.Done()
			genErr = genCtx.Err()
			yield("", genErr)
		}
	})
	srv := newTestServer(t, Options{Advisor: advisor.New(gen)})

	req := httptest.NewRequest(http.MethodPost, "/api/advice", strings.NewReader(`{"question":"oi"}`)).WithContext(ctx)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	assert.ErrorIs(t, genErr, context.Canceled)
	assert.Equal(t, "primeiro", rr.Body.String())

	snap := decode[snapshotResponse](t, do(t, srv, http.MethodGet, "/api/snapshot", ""))
	assert.Equal(t, core.EmptyFinancialData(), snap.Data)
}
