// Package proxy rewrites outgoing provider requests onto a tokenizer proxy
// when a model profile names one (spec.md §6 "optional proxy mode"): the
// scheme and host are replaced with the proxy's, path and query are left
// untouched, the real credential is swapped for a sealed token, and the
// original upstream host travels along in an X-Target-Host header so the
// proxy knows where to ultimately route the request. Grounded on
// internal/net/ssrf's request-rewriting style (URL/header manipulation on
// an http.RoundTripper) — the closest the pack comes to this concern — with
// no third-party library pulled in, since this is pure request
// transformation and no pack repo reaches for one here.
package proxy

import (
	"net/http"
	"net/url"

	"github.com/neuromance/neuromance-go/internal/domain"
)

// TargetHostHeader carries the provider host the proxy should forward to,
// extracted from the provider's normal base URL.
const TargetHostHeader = "X-Target-Host"

// Config describes one tokenizer-proxy rewrite.
type Config struct {
	// ProxyURL is the tokenizer proxy's base URL; only its scheme and host
	// are used, the original request's path and query are preserved.
	ProxyURL string

	// SealedToken replaces the real credential on the wire.
	SealedToken string

	// AuthHeader names the header the sealed token is written to (e.g.
	// "Authorization" for OpenAI, "x-api-key" for Anthropic) — whichever
	// header the adapter would otherwise have put the real key in.
	AuthHeader string

	// AuthPrefix is prepended to SealedToken in AuthHeader (e.g. "Bearer "
	// for OpenAI's scheme; empty for Anthropic's bare-token header).
	AuthPrefix string

	// TargetHost, if set, is sent as TargetHostHeader so the proxy knows
	// which upstream host the request was originally addressed to.
	TargetHost string
}

// NewHTTPClient builds an *http.Client whose Transport rewrites every
// request per cfg, wrapping base (http.DefaultTransport if nil).
func NewHTTPClient(base http.RoundTripper, cfg Config) (*http.Client, error) {
	rt, err := NewRoundTripper(base, cfg)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: rt}, nil
}

// NewRoundTripper builds the rewriting RoundTripper itself, for callers
// that want to compose it with other transports.
func NewRoundTripper(base http.RoundTripper, cfg Config) (http.RoundTripper, error) {
	target, err := url.Parse(cfg.ProxyURL)
	if err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeConfig, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, domain.NewDomainError(domain.ErrCodeConfig, "tokenizer proxy URL must be absolute: "+cfg.ProxyURL)
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{base: base, target: target, cfg: cfg}, nil
}

type roundTripper struct {
	base   http.RoundTripper
	target *url.URL
	cfg    Config
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = rt.target.Host

	if rt.cfg.AuthHeader != "" {
		out.Header.Set(rt.cfg.AuthHeader, rt.cfg.AuthPrefix+rt.cfg.SealedToken)
	}
	if rt.cfg.TargetHost != "" {
		out.Header.Set(TargetHostHeader, rt.cfg.TargetHost)
	}
	if out.Body == nil && out.ContentLength == 0 {
		out.Header.Del("Content-Type")
	}

	return rt.base.RoundTrip(out)
}
