package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chronodb/oplogd/apply"
	"github.com/chronodb/oplogd/internal/lockmgr"
	"github.com/chronodb/oplogd/internal/storage"
	"github.com/chronodb/oplogd/internal/testdoc"
	"github.com/chronodb/oplogd/internal/upstream"
)

type fakeProber struct {
	info apply.CandidateInfo
	err  error
}

func (p fakeProber) Probe(ctx context.Context, host string) (apply.CandidateInfo, error) {
	return p.info, p.err
}

// apply.Driver enforces a process-wide one-driver singleton, so every test
// in this file shares a single Handler built once rather than constructing
// its own Driver.
var (
	sharedHandlerOnce sync.Once
	sharedHandler     *Handler
	sharedSource      *upstream.MemorySource
)

func newTestHandler(t *testing.T) (*Handler, *upstream.MemorySource) {
	t.Helper()
	sharedHandlerOnce.Do(func() {
		leaf := testdoc.NewStore()
		persist := storage.NewMemoryStore()
		lockMgr := lockmgr.New()
		src := upstream.NewMemorySource()
		engine := apply.NewEngine(lockMgr, leaf, persist, nil)
		minValid := apply.NewMinValidJournal(persist)
		queue := apply.NewQueueAdapter(src)

		driver, err := apply.NewDriver(apply.Config{WriterThreads: 1, BatchMax: 128}, queue, engine, persist, minValid, lockMgr, src, nil, nil)
		if err != nil {
			t.Fatalf("NewDriver: %v", err)
		}
		driver.Configure(apply.NullOpTime)

		ghosts := apply.NewTracker("self", nil)
		sharedSource = src
		sharedHandler = &Handler{
			Driver: driver,
			Ghosts: ghosts,
			Prober: fakeProber{info: apply.CandidateInfo{Reachable: true, Optime: apply.NullOpTime}},
			Source: src,
		}
	})
	return sharedHandler, sharedSource
}

func TestRouter_Healthz(t *testing.T) {
	h, _ := newTestHandler(t)
	r := NewRouter(h, func() bool { return true })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", w.Code)
	}
}

func TestRouter_HealthzReportsNotAlive(t *testing.T) {
	h, _ := newTestHandler(t)
	r := NewRouter(h, func() bool { return false })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz status = %d, want 503", w.Code)
	}
}

func TestRouter_Status(t *testing.T) {
	h, _ := newTestHandler(t)
	r := NewRouter(h, func() bool { return true })

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State == "" {
		t.Fatal("expected a non-empty state string")
	}
}

func TestRouter_ForceSyncFrom(t *testing.T) {
	h, src := newTestHandler(t)
	r := NewRouter(h, func() bool { return true })

	body := strings.NewReader(`{"host":"candidate1"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/forceSyncFrom", body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("forceSyncFrom status = %d, body=%s", w.Code, w.Body.String())
	}

	var res apply.ForceSyncResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected OK response, got %+v", res)
	}
	if target, ok := src.SyncTarget(); !ok || target != "candidate1" {
		t.Fatalf("SyncTarget = %q,%v want candidate1,true", target, ok)
	}
}

func TestRouter_ForceSyncFromRejectsMissingHost(t *testing.T) {
	h, _ := newTestHandler(t)
	r := NewRouter(h, func() bool { return true })

	req := httptest.NewRequest(http.MethodPost, "/admin/forceSyncFrom", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
