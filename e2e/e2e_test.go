package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ayusman/punchcounter/internal/app"
	"github.com/ayusman/punchcounter/internal/motion"
	"github.com/ayusman/punchcounter/internal/report"
	"github.com/ayusman/punchcounter/internal/server"
	"github.com/ayusman/punchcounter/internal/store"
	"github.com/ayusman/punchcounter/testdata"
)

type memoryPublisher struct {
	mu        sync.Mutex
	published []*report.Results
}

func (p *memoryPublisher) Publish(r *report.Results) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, r)
	return nil
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "data.db")

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	poses, err := testdata.CopyPoses(testdata.Sparring, tmpDir)
	if err != nil {
		t.Fatalf("CopyPoses() error = %v", err)
	}

	publisher := &memoryPublisher{}
	hub := server.NewEventHub()
	defer hub.Close()

	application, err := app.New(app.Config{
		Store:      s,
		Motion:     motion.DefaultConfig(),
		DataDir:    filepath.Join(tmpDir, "data"),
		Publisher:  publisher,
		OnProgress: hub.Publish,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	srv := server.New(server.Config{Store: s, Analyzer: application, Events: hub})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	var cliRun *report.Results

	t.Run("AnalyzePoseFolder", func(t *testing.T) {
		res, err := application.AnalyzePoses(context.Background(), poses)
		if err != nil {
			t.Fatalf("AnalyzePoses() error = %v", err)
		}
		if res.Total != 3 || res.Left != 1 || res.Right != 2 {
			t.Errorf("totals = %d/%d/%d, want 3/1/2", res.Total, res.Left, res.Right)
		}
		cliRun = res
	})

	t.Run("ResultsFile", func(t *testing.T) {
		if cliRun == nil {
			t.Skip("no run to inspect")
		}
		path := filepath.Join(application.ResultsDir(), report.FileName(poses))
		written, err := report.Read(path)
		if err != nil {
			t.Fatalf("report.Read() error = %v", err)
		}
		if written.RunID != cliRun.RunID || written.PoseFolder != poses {
			t.Errorf("results file = %+v", written)
		}
		if len(written.Events) != len(testdata.SparringEvents) {
			t.Fatalf("punch_frames = %v, want %v", written.Events, testdata.SparringEvents)
		}
	})

	t.Run("ListRunsOverHTTP", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/runs")
		if err != nil {
			t.Fatalf("list runs error = %v", err)
		}
		defer resp.Body.Close()

		var listed struct {
			Runs []struct {
				ID           string `json:"id"`
				SourceType   string `json:"source_type"`
				TotalPunches int    `json:"total_punches"`
			} `json:"runs"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
			t.Fatalf("decode error = %v", err)
		}
		if len(listed.Runs) != 1 || listed.Runs[0].SourceType != "poses" || listed.Runs[0].TotalPunches != 3 {
			t.Errorf("runs = %+v", listed.Runs)
		}
	})

	t.Run("RecountOverHTTP", func(t *testing.T) {
		if cliRun == nil {
			t.Skip("no run to recount")
		}
		resp, err := client.Post(
			ts.URL+"/api/runs/"+cliRun.RunID+"/recount",
			"application/json",
			strings.NewReader(`{"threshold": 0.5}`),
		)
		if err != nil {
			t.Fatalf("recount error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var res report.Results
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			t.Fatalf("decode error = %v", err)
		}
		if res.Total != 0 {
			t.Errorf("a 0.5 threshold should count nothing, got %d", res.Total)
		}
	})

	t.Run("Published", func(t *testing.T) {
		publisher.mu.Lock()
		defer publisher.mu.Unlock()

		// One for the analysis, one for the recount
		if len(publisher.published) != 2 {
			t.Errorf("published %d results, want 2", len(publisher.published))
		}
	})
}
