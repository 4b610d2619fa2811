// Package doctor holds operator-facing diagnostics that the daemon and CLI
// don't need on their normal request path — currently just outbound
// reachability checks for configured model providers.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neuromance/neuromance-go/internal/config"
)

const probeTimeout = 5 * time.Second

// probeEndpoint is where each provider is probed when a model profile
// doesn't set its own BaseURL. A HEAD to the bare host is enough to tell
// whether the network path and TLS handshake work; it says nothing about
// credentials.
var probeEndpoint = map[string]string{
	"anthropic": "https://api.anthropic.com",
	"openai":    "https://api.openai.com",
	"responses": "https://api.openai.com",
}

// ModelProbe is one model profile's reachability result.
type ModelProbe struct {
	Nickname  string
	Provider  string
	Reachable bool
	Latency   time.Duration
	Error     string
}

// ProbeModels checks every configured model profile's provider endpoint in
// parallel, bounding concurrency so a large model list doesn't open a burst
// of outbound connections at once. A probe failure never aborts the others:
// each goroutine always reports its own result rather than returning an
// error, so errgroup.Wait never short-circuits the remaining probes.
func ProbeModels(ctx context.Context, cfg *config.DaemonConfig, client *http.Client) []ModelProbe {
	profiles := cfg.AllModels()
	if len(profiles) == 0 {
		return nil
	}
	if client == nil {
		client = &http.Client{}
	}

	nicknames := make([]string, 0, len(profiles))
	for nickname := range profiles {
		nicknames = append(nicknames, nickname)
	}
	sort.Strings(nicknames)

	results := make([]ModelProbe, len(nicknames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, nickname := range nicknames {
		i, nickname, profile := i, nickname, profiles[nickname]
		g.Go(func() error {
			results[i] = probeOne(gctx, client, nickname, profile)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func probeOne(ctx context.Context, client *http.Client, nickname string, profile config.ModelProfile) ModelProbe {
	target := profile.BaseURL
	if target == "" {
		target = probeEndpoint[profile.Provider]
	}
	result := ModelProbe{Nickname: nickname, Provider: profile.Provider}
	if target == "" {
		result.Error = fmt.Sprintf("no known endpoint for provider %q", profile.Provider)
		return result
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, target, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	resp, err := client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.Reachable = true
	return result
}
