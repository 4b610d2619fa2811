package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/neuromance/neuromance-go/internal/config"
)

func TestProbeModels_ReportsReachableAndUnreachable(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	cfg := &config.DaemonConfig{
		Models: map[string]config.ModelProfile{
			"fast": {Provider: "anthropic", Model: "claude-test", BaseURL: up.URL},
			"slow": {Provider: "openai", Model: "gpt-test", BaseURL: "http://127.0.0.1:1"},
		},
	}

	results := ProbeModels(context.Background(), cfg, up.Client())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Nickname != "fast" || results[1].Nickname != "slow" {
		t.Fatalf("expected results sorted by nickname, got %q then %q", results[0].Nickname, results[1].Nickname)
	}
	if !results[0].Reachable || results[0].Error != "" {
		t.Fatalf("expected fast to be reachable, got %+v", results[0])
	}
	if results[1].Reachable || results[1].Error == "" {
		t.Fatalf("expected slow to report an error, got %+v", results[1])
	}
}

func TestProbeModels_EmptyConfigReturnsNoResults(t *testing.T) {
	cfg := &config.DaemonConfig{}
	if results := ProbeModels(context.Background(), cfg, nil); results != nil {
		t.Fatalf("expected nil results for an empty model set, got %v", results)
	}
}

func TestProbeModels_UnknownProviderWithNoBaseURLReportsError(t *testing.T) {
	cfg := &config.DaemonConfig{
		Models: map[string]config.ModelProfile{
			"mystery": {Provider: "made-up"},
		},
	}
	results := ProbeModels(context.Background(), cfg, nil)
	if len(results) != 1 || results[0].Reachable || results[0].Error == "" {
		t.Fatalf("expected an error result for an unknown provider, got %+v", results)
	}
}
