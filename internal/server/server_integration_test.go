package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/punchcounter/internal/app"
	"github.com/ayusman/punchcounter/internal/motion"
	"github.com/ayusman/punchcounter/internal/store"
	"github.com/ayusman/punchcounter/testdata"
)

type testEnv struct {
	ts     *httptest.Server
	store  *store.Store
	events *EventHub
	poses  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	poses, err := testdata.CopyPoses(testdata.Sparring, tmpDir)
	if err != nil {
		t.Fatalf("CopyPoses() error = %v", err)
	}

	hub := NewEventHub()
	t.Cleanup(hub.Close)

	a, err := app.New(app.Config{
		Store:      s,
		Motion:     motion.DefaultConfig(),
		DataDir:    filepath.Join(tmpDir, "data"),
		OnProgress: hub.Publish,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	ts := httptest.NewServer(New(Config{Store: s, Analyzer: a, Events: hub}))
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: s, events: hub, poses: poses}
}

func TestAPI_RunWorkflow(t *testing.T) {
	env := newTestEnv(t)
	client := env.ts.Client()

	// 1. Analyze a pose folder
	body, _ := json.Marshal(map[string]string{"poses": env.poses})
	resp, err := client.Post(env.ts.URL+"/api/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/runs error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		RunID string `json:"run_id"`
		Total int    `json:"total_punches"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.Total != 3 {
		t.Errorf("total_punches = %d, want 3", created.Total)
	}

	// 2. List runs
	resp, _ = client.Get(env.ts.URL + "/api/runs")
	var listed struct {
		Runs []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"runs"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Runs) != 1 || listed.Runs[0].ID != created.RunID || listed.Runs[0].Status != "completed" {
		t.Fatalf("listed runs = %+v", listed.Runs)
	}

	// 3. Punch list in wire form
	resp, _ = client.Get(env.ts.URL + "/api/runs/" + created.RunID + "/punches")
	var punches struct {
		Events []motion.Event `json:"punch_frames"`
	}
	json.NewDecoder(resp.Body).Decode(&punches)
	resp.Body.Close()

	if len(punches.Events) != len(testdata.SparringEvents) {
		t.Fatalf("punch_frames = %v, want %v", punches.Events, testdata.SparringEvents)
	}
	for i, e := range testdata.SparringEvents {
		if punches.Events[i] != e {
			t.Errorf("punch %d = %v, want %v", i, punches.Events[i], e)
		}
	}

	// 4. Recount without burst merging: every jab counts out and back
	resp, _ = client.Post(env.ts.URL+"/api/runs/"+created.RunID+"/recount", "application/json",
		strings.NewReader(`{"min_gap": 0}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recount status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var recounted struct {
		Total  int `json:"total_punches"`
		MinGap int `json:"min_gap"`
	}
	json.NewDecoder(resp.Body).Decode(&recounted)
	resp.Body.Close()

	if recounted.Total != 6 || recounted.MinGap != 0 {
		t.Errorf("recount = %+v, want 6 punches with min_gap 0", recounted)
	}

	// 5. Delete
	req, _ := http.NewRequest(http.MethodDelete, env.ts.URL+"/api/runs/"+created.RunID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	resp, _ = client.Get(env.ts.URL + "/api/runs/" + created.RunID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_ProgressEvents(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()

	// Wait for the hub to register the client
	deadline := time.Now().Add(2 * time.Second)
	for env.events.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	body, _ := json.Marshal(map[string]string{"poses": env.poses})
	resp, err := env.ts.Client().Post(env.ts.URL+"/api/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/runs error = %v", err)
	}
	resp.Body.Close()

	var stages []app.Stage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var p app.Progress
		if err := conn.ReadJSON(&p); err != nil {
			t.Fatalf("read progress: %v (got stages %v)", err, stages)
		}
		stages = append(stages, p.Stage)

		if p.Stage == app.StageCompleted {
			if p.Report == nil || p.Report.Total != 3 {
				t.Errorf("completed event report = %+v, want 3 punches", p.Report)
			}
			break
		}
	}

	if stages[0] != app.StageStarted {
		t.Errorf("first stage = %s, want started", stages[0])
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}
