package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"MarketLabel/internal/domain/models"
	domsvc "MarketLabel/internal/domain/service"
	"MarketLabel/internal/usecase"
)

type fakeLabeler struct {
	runErr    error
	lastRun   domsvc.RunParams
	lastQuery models.LabelsQuery
	computed  int
}

func (f *fakeLabeler) Run(_ context.Context, p domsvc.RunParams) (*models.LabelRun, error) {
	f.lastRun = p
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &models.LabelRun{RunID: "r1", Symbol: p.Symbol, Timeframe: p.Timeframe}, nil
}

func (f *fakeLabeler) Compute(_ context.Context, symbol, tf string, candles []models.Candle, debug bool) (*models.LabelRun, error) {
	f.computed = len(candles)
	run := &models.LabelRun{RunID: "c1", Symbol: symbol, Timeframe: tf}
	if debug {
		run.Diagnostics = &models.Diagnostics{}
	}
	return run, nil
}

func (f *fakeLabeler) Labels(_ context.Context, q models.LabelsQuery) ([]models.LabeledBar, error) {
	f.lastQuery = q
	return []models.LabeledBar{{Symbol: q.Symbol, Trend: models.TrendRise}}, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health(context.Context) error { return f.err }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, h *LabelsEchoHandler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestRunEndpoint(t *testing.T) {
	f := &fakeLabeler{}
	h := NewLabelsEchoHandler(nil, f, nil, nil)

	rec, env := serve(t, h, http.MethodPost, "/api/labels/run", `{"symbol":"AAPL","from":"2024-06-03T09:00:00Z","to":"2024-06-03T10:00:00Z"}`)
	if rec.Code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.lastRun.Timeframe != "1m" || f.lastRun.Persist {
		t.Fatalf("defaults not applied: %+v", f.lastRun)
	}
	if !f.lastRun.From.Equal(time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("from not bound: %v", f.lastRun.From)
	}

	rec, _ = serve(t, h, http.MethodPost, "/api/labels/run", `{"symbol":"AAPL","persist":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for persisted run, got %d", rec.Code)
	}
}

func TestRunValidation(t *testing.T) {
	h := NewLabelsEchoHandler(nil, &fakeLabeler{}, nil, nil)
	rec, env := serve(t, h, http.MethodPost, "/api/labels/run", `{"tf":"1h"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var verrs []struct {
		Code  string `json:"code"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(env.Data, &verrs); err != nil {
		t.Fatalf("decode validation errors: %v", err)
	}
	codes := map[string]bool{}
	for _, v := range verrs {
		codes[v.Field+":"+v.Code] = true
	}
	if !codes["Symbol:ERR_REQUIRED"] || !codes["TF:ERR_ONEOF"] {
		t.Fatalf("unexpected validation errors %+v", verrs)
	}
}

func TestRunErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", fmt.Errorf("bad range: %w", usecase.ErrInvalidInput), http.StatusBadRequest},
		{"no candles", fmt.Errorf("AAPL: %w", usecase.ErrNoCandles), http.StatusNotFound},
		{"in progress", usecase.ErrRunInProgress, http.StatusConflict},
		{"storage", errors.New("clickhouse down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewLabelsEchoHandler(nil, &fakeLabeler{runErr: tc.err}, nil, nil)
			rec, env := serve(t, h, http.MethodPost, "/api/labels/run", `{"symbol":"AAPL"}`)
			if rec.Code != tc.want || env.Status != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestComputeEndpoint(t *testing.T) {
	f := &fakeLabeler{}
	h := NewLabelsEchoHandler(nil, f, nil, nil)
	body := `{"symbol":"AAPL","debug":true,"candles":[{"bucket":"2024-06-03T09:00:00Z","close":1,"volume":2},{"bucket":"2024-06-03T09:01:00Z","close":2,"volume":3}]}`
	rec, env := serve(t, h, http.MethodPost, "/api/labels/compute", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.computed != 2 {
		t.Fatalf("expected 2 candles passed through, got %d", f.computed)
	}
	var run models.LabelRun
	if err := json.Unmarshal(env.Data, &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Diagnostics == nil || run.Timeframe != "1m" {
		t.Fatalf("unexpected run %+v", run)
	}

	rec, _ = serve(t, h, http.MethodPost, "/api/labels/compute", `{"symbol":"AAPL","candles":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty candles should be rejected, got %d", rec.Code)
	}
}

func TestListEndpoint(t *testing.T) {
	f := &fakeLabeler{}
	h := NewLabelsEchoHandler(nil, f, nil, nil)
	rec, env := serve(t, h, http.MethodGet, "/api/labels?symbol=AAPL&tf=5m&from=2024-06-03T09:00:00Z", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.lastQuery.TF != "5m" || f.lastQuery.Limit != 5000 || f.lastQuery.From == "" {
		t.Fatalf("query not bound: %+v", f.lastQuery)
	}
	var list struct {
		Rows  []models.LabeledBar `json:"rows"`
		Total int64               `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil || list.Total != 1 {
		t.Fatalf("unexpected list %s (%v)", env.Data, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := NewLabelsEchoHandler(nil, &fakeLabeler{}, nil, fakeHealth{})
	if rec, _ := serve(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	h = NewLabelsEchoHandler(nil, &fakeLabeler{}, nil, fakeHealth{err: errors.New("down")})
	if rec, _ := serve(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

type fakeCandleReader struct{ q models.CandlesQuery }

func (f *fakeCandleReader) GetCandles(_ context.Context, q models.CandlesQuery) (*usecase.GetCandlesResult, error) {
	f.q = q
	return &usecase.GetCandlesResult{Symbol: q.Symbol, Timeframe: q.TF, Count: 0}, nil
}

func TestCandlesEndpoint(t *testing.T) {
	r := &fakeCandleReader{}
	h := NewLabelsEchoHandler(nil, &fakeLabeler{}, r, nil)
	rec, _ := serve(t, h, http.MethodGet, "/api/candles?symbol=MSFT&limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if r.q.Symbol != "MSFT" || r.q.Limit != 10 || r.q.TF != "1m" {
		t.Fatalf("query not bound: %+v", r.q)
	}
	rec, _ = serve(t, h, http.MethodGet, "/api/candles?symbol=MSFT&limit=60000", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit above cap should be rejected, got %d", rec.Code)
	}
}

type captureJobs struct{ jobs []models.LabelJob }

func (c *captureJobs) Enqueue(_ context.Context, job models.LabelJob) error {
	c.jobs = append(c.jobs, job)
	return nil
}

func TestEnqueueEndpoint(t *testing.T) {
	h := NewLabelsEchoHandler(nil, &fakeLabeler{}, nil, nil)
	if rec, _ := serve(t, h, http.MethodPost, "/api/labels/jobs", `{"symbol":"AAPL"}`); rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("jobs route should be absent without a queue, got %d", rec.Code)
	}

	q := &captureJobs{}
	h = NewLabelsEchoHandler(nil, &fakeLabeler{}, nil, nil)
	h.SetJobQueue(q)
	rec, _ := serve(t, h, http.MethodPost, "/api/labels/jobs", `{"symbol":"AAPL","tf":"5m"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(q.jobs) != 1 || q.jobs[0].TF != "5m" {
		t.Fatalf("unexpected jobs %+v", q.jobs)
	}
}
