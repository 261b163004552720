package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nidhogg/vault-nexus/internal/elephant"
	"github.com/nidhogg/vault-nexus/internal/events"
	"github.com/nidhogg/vault-nexus/internal/gateway"
	"github.com/nidhogg/vault-nexus/internal/hypercube"
	"github.com/nidhogg/vault-nexus/internal/memory"
	"github.com/nidhogg/vault-nexus/internal/store"
	"github.com/nidhogg/vault-nexus/internal/vectorstore"
	"go.uber.org/zap"
)

// newTestServer wires a handler over an in-memory cube and engine (no
// Postgres/Neo4j/Redis/Qdrant).
func newTestServer(t *testing.T, opts Options) (*Handler, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()
	cube := hypercube.New(hypercube.DefaultConfig(), logger)
	engine := elephant.NewEngine(cube, logger)
	h := NewHandler(cube, engine, opts, logger)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return h, ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, body)
	}
}

func storeRecord(t *testing.T, ts *httptest.Server, data map[string]any) string {
	t.Helper()
	resp := postJSON(t, ts, "/api/v1/store", map[string]any{"data": data})
	expectStatus(t, resp, http.StatusCreated)
	var out map[string]any
	decodeJSON(t, resp, &out)
	return out["genome"].(string)
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp := getJSON(t, ts, "/api/v1/health")
	expectStatus(t, resp, http.StatusOK)
	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
	backends := body["backends"].(map[string]any)
	if backends["postgres"] != "disabled" {
		t.Errorf("postgres = %v, want disabled", backends["postgres"])
	}
}

func TestStoreAndQuery(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	storeRecord(t, ts, map[string]any{"sector": "quantum_ai", "brand": "NVQLink", "year": 2025, "quality_score": 0.95, "value": 1000.0})
	storeRecord(t, ts, map[string]any{"sector": "quantum_ai", "brand": "Qubitron", "year": 2024, "quality_score": 0.6})
	storeRecord(t, ts, map[string]any{"sector": "biotech", "brand": "Helix", "year": 2025, "quality_score": 0.9})

	resp := postJSON(t, ts, "/api/v1/query", map[string]any{
		"filters":   map[string]any{"sector": "quantum_ai", "quality_score": 0.8},
		"operators": map[string]string{"quality_score": ">="},
	})
	expectStatus(t, resp, http.StatusOK)
	var out struct {
		Success bool               `json:"success"`
		Count   int                `json:"count"`
		Results []hypercube.Record `json:"results"`
	}
	decodeJSON(t, resp, &out)
	if out.Count != 1 || len(out.Results) != 1 {
		t.Fatalf("count = %d, want 1", out.Count)
	}
	if out.Results[0].Content["brand"] != "NVQLink" {
		t.Errorf("brand = %v", out.Results[0].Content["brand"])
	}

	resp = postJSON(t, ts, "/api/v1/query", map[string]any{
		"filters":    map[string]any{"year": 2025},
		"count_only": true,
	})
	expectStatus(t, resp, http.StatusOK)
	var counted map[string]any
	decodeJSON(t, resp, &counted)
	if counted["count"].(float64) != 2 {
		t.Errorf("count_only = %v, want 2", counted["count"])
	}
	if _, ok := counted["results"]; ok {
		t.Error("count_only should not return results")
	}

	resp = postJSON(t, ts, "/api/v1/query", map[string]any{"filters": map[string]any{}, "limit": 2})
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &out)
	if out.Count != 2 {
		t.Errorf("limited count = %d, want 2", out.Count)
	}
}

func TestQueryRejectsUnknownOperator(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	resp := postJSON(t, ts, "/api/v1/query", map[string]any{
		"filters":   map[string]any{"year": 2025},
		"operators": map[string]string{"year": "~="},
	})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestStoreValidation(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, err := http.Post(ts.URL+"/api/v1/store", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/v1/store", map[string]any{})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestStatsIncludesAPISection(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	storeRecord(t, ts, map[string]any{"brand": "A", "value": 100.0})

	resp := getJSON(t, ts, "/api/v1/stats")
	expectStatus(t, resp, http.StatusOK)
	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["total_stored"].(float64) != 1 {
		t.Errorf("total_stored = %v", body["total_stored"])
	}
	if pool := body["care_pool"].(float64); math.Abs(pool-15) > 1e-9 {
		t.Errorf("care_pool = %v, want 15", body["care_pool"])
	}
	api, ok := body["api"].(map[string]any)
	if !ok {
		t.Fatal("missing api section")
	}
	if _, ok := api["uptime_seconds"]; !ok {
		t.Error("missing uptime_seconds")
	}
}

func TestRecordLookup(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	hash := storeRecord(t, ts, map[string]any{"brand": "A", "note": "extra"})
	storeRecord(t, ts, map[string]any{"brand": "A", "note": "extra"})

	resp := getJSON(t, ts, "/api/v1/hypercube/records/"+hash)
	expectStatus(t, resp, http.StatusOK)
	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["occurrences"].(float64) != 2 {
		t.Errorf("occurrences = %v, want 2", body["occurrences"])
	}
	if body["overflow"].(map[string]any)["note"] != "extra" {
		t.Errorf("overflow = %v", body["overflow"])
	}

	resp = getJSON(t, ts, "/api/v1/hypercube/records/missing")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestDimensions(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	resp := getJSON(t, ts, "/api/v1/hypercube/dimensions")
	expectStatus(t, resp, http.StatusOK)
	var dims []struct {
		Index int    `json:"index"`
		Name  string `json:"name"`
		Group string `json:"group"`
	}
	decodeJSON(t, resp, &dims)
	if len(dims) != 40 {
		t.Fatalf("dimensions = %d", len(dims))
	}
	if dims[0].Name != "sector" || dims[39].Group != "metadata" {
		t.Errorf("unexpected schema ends: %+v %+v", dims[0], dims[39])
	}
}

func TestEchoIngestsIntoBothStores(t *testing.T) {
	h, ts := newTestServer(t, Options{})

	body := map[string]any{
		"content": map[string]any{"event": "demo", "brand": "NVQLink"},
		"tags":    []string{"quantum", "demo"},
	}
	resp := postJSON(t, ts, "/api/v1/echo", body)
	expectStatus(t, resp, http.StatusOK)
	var first map[string]any
	decodeJSON(t, resp, &first)
	if first["phase"] != "INTAKE" || first["page"].(float64) != 1 || first["strength"].(float64) != 1 {
		t.Errorf("unexpected echo response: %v", first)
	}
	if first["decay_rate"].(float64) != 0 {
		t.Errorf("decay_rate = %v", first["decay_rate"])
	}

	resp = postJSON(t, ts, "/api/v1/echo", body)
	expectStatus(t, resp, http.StatusOK)
	var second map[string]any
	decodeJSON(t, resp, &second)
	if second["genome"] != first["genome"] {
		t.Error("same content should echo the same genome")
	}
	if second["echo_count"].(float64) != 1 {
		t.Errorf("echo_count = %v, want 1", second["echo_count"])
	}

	if h.engine.Len() != 1 {
		t.Errorf("engine memories = %d, want 1", h.engine.Len())
	}
	if h.cube.Len() != 1 {
		t.Errorf("cube records = %d, want 1", h.cube.Len())
	}
}

func echoN(t *testing.T, ts *httptest.Server, n int, tag string) []string {
	t.Helper()
	out := make([]string, n)
	for i := range n {
		resp := postJSON(t, ts, "/api/v1/echo", map[string]any{
			"content": map[string]any{"seq": i, "tag": tag},
			"tags":    []string{tag},
		})
		expectStatus(t, resp, http.StatusOK)
		var body map[string]any
		decodeJSON(t, resp, &body)
		out[i] = body["genome"].(string)
	}
	return out
}

func TestCycleAndWisdom(t *testing.T) {
	var (
		mu      sync.Mutex
		reports []elephant.CycleReport
	)
	_, ts := newTestServer(t, Options{
		OnCycle: func(_ context.Context, rep elephant.CycleReport) {
			mu.Lock()
			reports = append(reports, rep)
			mu.Unlock()
		},
	})
	echoN(t, ts, 11, "quantum")

	for range 2 {
		resp := postJSON(t, ts, "/api/v1/elephant/cycle", nil)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
	mu.Lock()
	if len(reports) != 2 {
		t.Fatalf("OnCycle called %d times, want 2", len(reports))
	}
	if reports[1].Snapshot == nil || reports[1].Snapshot.Generation != 0 {
		t.Errorf("second cycle should archive generation 0: %+v", reports[1].Snapshot)
	}
	mu.Unlock()

	resp := getJSON(t, ts, "/api/v1/wisdom?tags=quantum&limit=5")
	expectStatus(t, resp, http.StatusOK)
	var w struct {
		Wisdom   elephant.Wisdom   `json:"wisdom"`
		Memories []elephant.Memory `json:"memories"`
	}
	decodeJSON(t, resp, &w)
	if w.Wisdom.TotalGenerations != 1 || w.Wisdom.CurrentGeneration != 1 {
		t.Errorf("wisdom = %+v", w.Wisdom)
	}
	if len(w.Memories) != 5 {
		t.Errorf("memories = %d, want 5", len(w.Memories))
	}

	resp = getJSON(t, ts, "/api/v1/wisdom?generation=0")
	expectStatus(t, resp, http.StatusOK)
	var g struct {
		Wisdom elephant.GenerationSnapshot `json:"wisdom"`
	}
	decodeJSON(t, resp, &g)
	if g.Wisdom.TotalMemories != 11 {
		t.Errorf("snapshot memories = %d, want 11", g.Wisdom.TotalMemories)
	}

	resp = getJSON(t, ts, "/api/v1/wisdom?generation=7")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/v1/wisdom?generation=x")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestAdvanceEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	echoN(t, ts, 3, "a")

	resp := postJSON(t, ts, "/api/v1/elephant/advance?phase=TRUNK_SORT", nil)
	expectStatus(t, resp, http.StatusOK)
	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["promoted"].(float64) != 3 {
		t.Errorf("promoted = %v, want 3", body["promoted"])
	}

	for _, bad := range []string{"INTAKE", "SIDEWAYS", ""} {
		resp = postJSON(t, ts, "/api/v1/elephant/advance?phase="+bad, nil)
		expectStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	}
}

func TestAdvanceHandsSnapshotToObserver(t *testing.T) {
	var (
		mu      sync.Mutex
		reports []elephant.AdvanceReport
	)
	_, ts := newTestServer(t, Options{
		OnAdvance: func(_ context.Context, rep elephant.AdvanceReport) {
			mu.Lock()
			reports = append(reports, rep)
			mu.Unlock()
		},
	})
	echoN(t, ts, 11, "quantum")

	for _, phase := range []string{"TRUNK_SORT", "HERD_CONSENSUS", "HERD_CONSENSUS", "MEMORY_ENCODE", "GENERATIONAL_PASS"} {
		resp := postJSON(t, ts, "/api/v1/elephant/advance?phase="+phase, nil)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 5 {
		t.Fatalf("OnAdvance called %d times, want 5", len(reports))
	}
	if len(reports[3].Links) != 11 {
		t.Errorf("encode advance links = %d, want 11", len(reports[3].Links))
	}
	last := reports[4]
	if last.Target != elephant.GenerationalPass || last.Promoted != 11 {
		t.Errorf("last advance = %s/%d", last.Target, last.Promoted)
	}
	if last.Snapshot == nil || last.Snapshot.Generation != 0 {
		t.Errorf("generational pass should carry generation 0: %+v", last.Snapshot)
	}
}

func TestRecallAndMemory(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	hashes := echoN(t, ts, 3, "herd")
	echoN(t, ts, 2, "lone")

	resp := getJSON(t, ts, "/api/v1/elephant/recall?tags=herd")
	expectStatus(t, resp, http.StatusOK)
	var body struct {
		Count    int               `json:"count"`
		Memories []elephant.Memory `json:"memories"`
	}
	decodeJSON(t, resp, &body)
	if body.Count != 3 {
		t.Errorf("recall count = %d, want 3", body.Count)
	}

	resp = getJSON(t, ts, "/api/v1/elephant/recall?phase=INTAKE&limit=2")
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &body)
	if body.Count != 2 {
		t.Errorf("limited recall = %d, want 2", body.Count)
	}

	resp = getJSON(t, ts, "/api/v1/elephant/recall?phase=NOPE")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/v1/elephant/memories/"+hashes[0])
	expectStatus(t, resp, http.StatusOK)
	var m elephant.Memory
	decodeJSON(t, resp, &m)
	if m.Genome != hashes[0] || m.Phase != elephant.Intake {
		t.Errorf("memory = %+v", m)
	}

	resp = getJSON(t, ts, "/api/v1/elephant/memories/unknown")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestExportImportRoundTrip(t *testing.T) {
	_, src := newTestServer(t, Options{})
	storeRecord(t, src, map[string]any{"brand": "A", "year": 2025})
	storeRecord(t, src, map[string]any{"brand": "B", "year": 2024})
	echoN(t, src, 4, "x")

	cubeDump := getJSON(t, src, "/api/v1/hypercube/export")
	expectStatus(t, cubeDump, http.StatusOK)
	cubeData, _ := io.ReadAll(cubeDump.Body)
	cubeDump.Body.Close()

	memDump := getJSON(t, src, "/api/v1/elephant/export")
	expectStatus(t, memDump, http.StatusOK)
	memData, _ := io.ReadAll(memDump.Body)
	memDump.Body.Close()

	dst, dstTS := newTestServer(t, Options{})
	resp, err := http.Post(dstTS.URL+"/api/v1/elephant/import", "application/json", bytes.NewReader(memData))
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusOK)
	var res elephant.ImportResult
	decodeJSON(t, resp, &res)
	if res.Created != 4 {
		t.Errorf("created = %d, want 4", res.Created)
	}
	if dst.cube.Len() != 0 {
		t.Errorf("imported memories should not be forwarded, cube has %d", dst.cube.Len())
	}

	resp, err = http.Post(dstTS.URL+"/api/v1/hypercube/import", "application/json", bytes.NewReader(cubeData))
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusOK)
	var imported map[string]any
	decodeJSON(t, resp, &imported)
	// 2 stored records plus 4 forwarded memories
	if imported["imported"].(float64) != 6 {
		t.Errorf("imported = %v, want 6", imported["imported"])
	}

	resp, err = http.Post(dstTS.URL+"/api/v1/hypercube/import", "application/json", strings.NewReader("garbage"))
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestOptionalBackendsDisabled(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	hash := storeRecord(t, ts, map[string]any{"brand": "A"})

	for _, path := range []string{
		"/api/v1/cycles",
		"/api/v1/generations/archive",
		"/api/v1/events",
		"/api/v1/similar/" + hash,
		"/api/v1/elephant/memories/" + hash + "/neighbors",
	} {
		resp := getJSON(t, ts, path)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

type fakeBackends struct {
	failGraph   bool
	similarDown bool
}

func (f *fakeBackends) RecentCycles(_ context.Context, limit int) ([]store.CycleRecord, error) {
	return []store.CycleRecord{{ID: 1, Loop: 1}}, nil
}

func (f *fakeBackends) ListGenerations(context.Context) ([]elephant.GenerationSnapshot, error) {
	return []elephant.GenerationSnapshot{{Generation: 0, TotalMemories: 11}}, nil
}

func (f *fakeBackends) Neighbors(_ context.Context, genome string) ([]memory.Neighbor, error) {
	if f.failGraph {
		return nil, errors.New("neo4j down")
	}
	return []memory.Neighbor{{Genome: "n1", Rank: 0, Tags: []string{"t"}}}, nil
}

func (f *fakeBackends) Recent(_ context.Context, n int64) ([]events.Entry, error) {
	return []events.Entry{{ID: "1-0", Event: &gateway.Event{Type: gateway.EventBreath, Phase: "PULSE"}}}, nil
}

func (f *fakeBackends) Similar(_ context.Context, _ *hypercube.Coordinates, exclude string, k int) ([]vectorstore.Match, error) {
	if f.similarDown {
		return nil, vectorstore.ErrUnavailable
	}
	return []vectorstore.Match{{Genome: fmt.Sprintf("near-%d", k), Score: 0.9}}, nil
}

func (f *fakeBackends) Mirrored() int64 { return 3 }
func (f *fakeBackends) Dropped() int64  { return 0 }

func TestSimilarUnavailableAfterMirrorFailure(t *testing.T) {
	fb := &fakeBackends{similarDown: true}
	_, ts := newTestServer(t, Options{Similar: fb})
	hash := storeRecord(t, ts, map[string]any{"brand": "A"})

	resp := getJSON(t, ts, "/api/v1/similar/"+hash)
	expectStatus(t, resp, http.StatusServiceUnavailable)
	resp.Body.Close()
}

func TestOptionalBackendsEnabled(t *testing.T) {
	fb := &fakeBackends{}
	_, ts := newTestServer(t, Options{Cycles: fb, Graph: fb, Events: fb, Similar: fb})
	hash := storeRecord(t, ts, map[string]any{"brand": "A"})

	resp := getJSON(t, ts, "/api/v1/similar/"+hash+"?k=4")
	expectStatus(t, resp, http.StatusOK)
	var sim struct {
		Matches []vectorstore.Match `json:"matches"`
	}
	decodeJSON(t, resp, &sim)
	if len(sim.Matches) != 1 || sim.Matches[0].Genome != "near-4" {
		t.Errorf("matches = %+v", sim.Matches)
	}

	resp = getJSON(t, ts, "/api/v1/similar/unknown")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/v1/elephant/memories/"+hash+"/neighbors")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/v1/events?limit=10")
	expectStatus(t, resp, http.StatusOK)
	var entries []events.Entry
	decodeJSON(t, resp, &entries)
	if len(entries) != 1 || entries[0].Event.Phase != "PULSE" {
		t.Errorf("entries = %+v", entries)
	}

	resp = getJSON(t, ts, "/api/v1/cycles")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/v1/generations/archive")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/v1/health")
	var health map[string]any
	decodeJSON(t, resp, &health)
	if health["backends"].(map[string]any)["neo4j"] != "enabled" {
		t.Errorf("backends = %v", health["backends"])
	}

	fb.failGraph = true
	resp = getJSON(t, ts, "/api/v1/elephant/memories/"+hash+"/neighbors")
	expectStatus(t, resp, http.StatusBadGateway)
	resp.Body.Close()
}

func TestWriteRateLimit(t *testing.T) {
	_, ts := newTestServer(t, Options{RateLimit: 0.001, Burst: 1})

	resp := postJSON(t, ts, "/api/v1/store", map[string]any{"data": map[string]any{"brand": "A"}})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/v1/store", map[string]any{"data": map[string]any{"brand": "B"}})
	expectStatus(t, resp, http.StatusTooManyRequests)
	resp.Body.Close()

	// reads are not limited
	resp = getJSON(t, ts, "/api/v1/stats")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestBodyLimit(t *testing.T) {
	_, ts := newTestServer(t, Options{MaxBodyBytes: 64})
	resp := postJSON(t, ts, "/api/v1/store", map[string]any{
		"data": map[string]any{"brand": strings.Repeat("x", 256)},
	})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestGatewayRoutes(t *testing.T) {
	logger := zap.NewNop()
	gw := gateway.NewGateway(logger)
	ws := gateway.NewWebSocketAdapter(gateway.WebSocketOptions{}, logger)
	gw.Register(ws)
	if err := gw.ConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	b := gateway.NewBroadcaster(gw, logger)
	_, ts := newTestServer(t, Options{Gateway: gw, Broadcaster: b, Realtime: ws})

	resp := getJSON(t, ts, "/api/v1/gateway/status")
	expectStatus(t, resp, http.StatusOK)
	var statuses []gateway.AdapterStatus
	decodeJSON(t, resp, &statuses)
	if len(statuses) != 1 || statuses[0].Platform != gateway.PlatformWebSocket || !statuses[0].Connected {
		t.Errorf("statuses = %+v", statuses)
	}

	resp = postJSON(t, ts, "/api/v1/broadcast", map[string]any{"type": "export", "title": "manual"})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/v1/broadcast", map[string]any{"title": "untyped"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/v1/broadcasts")
	expectStatus(t, resp, http.StatusOK)
	var history []gateway.BroadcastRecord
	decodeJSON(t, resp, &history)
	if len(history) != 1 || history[0].Event.Title != "manual" {
		t.Errorf("history = %+v", history)
	}
	if len(history[0].Targets) != 1 || history[0].Targets[0] != gateway.PlatformWebSocket {
		t.Errorf("targets = %v", history[0].Targets)
	}
}
