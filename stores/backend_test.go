package stores

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Frodemaneskold/greenup/gateway"
)

// fakeBackend is a canned PostgREST-style server for store tests. Reads
// return per-table payloads; writes and RPCs are recorded.
type fakeBackend struct {
	mu      sync.Mutex
	tables  map[string]string // table -> JSON array payload
	singles map[string]string // table -> JSON object payload for Single reads
	rpcResp map[string]string
	rpcs    []rpcCall
	writes  []string // "METHOD table"
	reads   int
}

type rpcCall struct {
	Name   string
	Params map[string]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tables:  make(map[string]string),
		singles: make(map[string]string),
		rpcResp: make(map[string]string),
	}
}

func (b *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/rest/v1/")

		if fn, ok := strings.CutPrefix(path, "rpc/"); ok {
			var params map[string]any
			body, _ := io.ReadAll(r.Body)
			if len(body) > 0 {
				json.Unmarshal(body, &params)
			}
			b.mu.Lock()
			b.rpcs = append(b.rpcs, rpcCall{Name: fn, Params: params})
			resp, found := b.rpcResp[fn]
			b.mu.Unlock()
			if !found {
				resp = "null"
			}
			w.Write([]byte(resp))
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if r.Method != http.MethodGet {
			b.writes = append(b.writes, r.Method+" "+path)
			w.Write([]byte(`[]`))
			return
		}
		b.reads++
		if strings.Contains(r.Header.Get("Accept"), "pgrst.object") {
			if payload, ok := b.singles[path]; ok {
				w.Write([]byte(payload))
				return
			}
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":"PGRST116","message":"no rows"}`))
			return
		}
		if payload, ok := b.tables[path]; ok {
			w.Write([]byte(payload))
			return
		}
		w.Write([]byte(`[]`))
	})
}

func (b *fakeBackend) rpcCalls() []rpcCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]rpcCall(nil), b.rpcs...)
}

func (b *fakeBackend) writeCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.writes...)
}

func (b *fakeBackend) readCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

func (b *fakeBackend) client(t *testing.T) *gateway.Client {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	client, err := gateway.New(gateway.Config{
		URL:        srv.URL,
		APIKey:     "test-key",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("gateway.New() error: %v", err)
	}
	return client
}

// fakeFeed is an in-memory change feed for store tests.
type fakeFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]fakeSub
	closed bool
}

type fakeSub struct {
	cfg gateway.ChangeConfig
	fn  gateway.ChangeHandler
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subs: make(map[int]fakeSub)}
}

func (f *fakeFeed) Subscribe(ctx context.Context, cfg gateway.ChangeConfig, fn gateway.ChangeHandler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fakeSub{cfg: cfg, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}, nil
}

func (f *fakeFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.subs = make(map[int]fakeSub)
	return nil
}

// emit delivers an event to every subscription on the given table and filter.
func (f *fakeFeed) emit(table, filter string, ev gateway.ChangeEvent) {
	f.mu.Lock()
	var handlers []gateway.ChangeHandler
	for _, sub := range f.subs {
		if sub.cfg.Table == table && sub.cfg.Filter == filter {
			handlers = append(handlers, sub.fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

func testChangeEvent(eventType string) gateway.ChangeEvent {
	return gateway.ChangeEvent{Type: eventType, Schema: "public"}
}

func (f *fakeFeed) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
