package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fatalwatch/internal/api"
	"fatalwatch/internal/pipeline"
	"fatalwatch/internal/source"
	"fatalwatch/internal/testmocks"
)

// --- helpers ---

func setupTestServer(lines ...string) (*httptest.Server, *pipeline.Monitor, *testmocks.MockSink) {
	sink := &testmocks.MockSink{}
	open := func(path string) (source.Source, error) {
		return &testmocks.BlockingSource{SliceSource: testmocks.SliceSource{SourceName: path, Lines: lines}}, nil
	}

	m := pipeline.NewMonitor([]string{"/var/log/postgresql.log"}, open, sink,
		pipeline.Options{Destination: "fatal_events"})
	server := api.NewServer(m)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	return ts, m, sink
}

func waitDelivered(t *testing.T, m *pipeline.Monitor, n uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.Metrics().Delivered() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting: lines=%d delivered=%d failed=%d",
				m.Metrics().LinesRead(), m.Metrics().Delivered(), m.Metrics().Failed())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --- Tests ---

func TestHealthEndpoint(t *testing.T) {
	ts, m, _ := setupTestServer()
	defer ts.Close()

	deadline := time.Now().Add(2 * time.Second)
	for m.ActiveWorkers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID header")
	}

	// Health AFTER shutdown → unavailable
	if err := m.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	resp2, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp2.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp2.StatusCode != http.StatusServiceUnavailable || body["healthy"] != false {
		t.Errorf("expected unhealthy after shutdown, got %d %v", resp2.StatusCode, body)
	}
}

func TestMatchEndpoint(t *testing.T) {
	ts, m, _ := setupTestServer()
	defer ts.Close()
	defer m.Shutdown()

	payload := `{"line":"2024-01-01 10:00:00.123456 UTC FATAL: connection reset\n"}`
	resp, err := http.Post(ts.URL+"/match", "application/json", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var res api.MatchResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if !res.Matched || res.Event == nil {
		t.Fatalf("expected a match, got %+v", res)
	}
	if res.Event.Message != "connection reset" {
		t.Errorf("expected message %q, got %q", "connection reset", res.Event.Message)
	}
	want := time.Date(2024, 1, 1, 10, 0, 0, 123456000, time.UTC)
	if !res.Event.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, res.Event.Timestamp)
	}
}

func TestMatchEndpointRejects(t *testing.T) {
	ts, m, _ := setupTestServer()
	defer ts.Close()
	defer m.Shutdown()

	resp, err := http.Get(ts.URL + "/match")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/match", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMatchBatchEndpoint(t *testing.T) {
	ts, m, _ := setupTestServer()
	defer ts.Close()
	defer m.Shutdown()

	payload := `{"lines":[
		"2024-01-01 10:00:00.123456 UTC FATAL: connection reset\n",
		"2024-01-01 10:00:01.000000 UTC LOG: checkpoint complete\n",
		"bad-ts FATAL: oops\n"
	]}`
	resp, err := http.Post(ts.URL+"/match/batch", "application/json", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Results []api.MatchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(body.Results))
	}
	if !body.Results[0].Matched || body.Results[0].Event == nil {
		t.Errorf("expected first line to match, got %+v", body.Results[0])
	}
	if body.Results[1].Matched {
		t.Errorf("expected second line not to match, got %+v", body.Results[1])
	}
	if !body.Results[2].Matched || body.Results[2].Error == "" || body.Results[2].Event != nil {
		t.Errorf("expected timestamp error for third line, got %+v", body.Results[2])
	}
}

func TestMatchBatchTooLarge(t *testing.T) {
	ts, m, _ := setupTestServer()
	defer ts.Close()
	defer m.Shutdown()

	lines := make([]string, 101)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}
	data, _ := json.Marshal(api.BatchRequest{Lines: lines})

	resp, err := http.Post(ts.URL+"/match/batch", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, m, sink := setupTestServer(
		"2024-01-01 10:00:00.000001 UTC FATAL: one\n",
		"2024-01-01 10:00:00.000002 UTC LOG: two\n",
		"bad-ts FATAL: three\n",
	)
	defer ts.Close()
	defer m.Shutdown()

	waitDelivered(t, m, 1)
	deadline := time.Now().Add(2 * time.Second)
	for m.Metrics().TimestampErrors() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}

	if body["lines_read"].(float64) != 3 {
		t.Errorf("expected lines_read=3, got %v", body["lines_read"])
	}
	if body["events_delivered"].(float64) != 1 {
		t.Errorf("expected events_delivered=1, got %v", body["events_delivered"])
	}
	if body["timestamp_errors"].(float64) != 1 {
		t.Errorf("expected timestamp_errors=1, got %v", body["timestamp_errors"])
	}
	if body["monitored_files"].(float64) != 1 {
		t.Errorf("expected monitored_files=1, got %v", body["monitored_files"])
	}
	if msgs := sink.Messages(); len(msgs) != 1 || msgs[0] != "one" {
		t.Errorf("expected [one] delivered, got %v", msgs)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	ts, m, _ := setupTestServer("2024-01-01 10:00:00.000001 UTC FATAL: one\n")
	defer ts.Close()
	defer m.Shutdown()

	waitDelivered(t, m, 1)

	resp, err := http.Get(ts.URL + "/metrics/prometheus")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(data), "fatalwatch_events_delivered_total 1") {
		t.Errorf("expected delivered counter in exposition, got:\n%s", data)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID header on prometheus endpoint")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	ts, m, _ := setupTestServer()
	defer ts.Close()
	defer m.Shutdown()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected X-Request-ID abc-123, got %q", got)
	}
}
