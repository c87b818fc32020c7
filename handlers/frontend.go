package handlers

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"
)

// FrontendConfig selects where the single page application is served from
type FrontendConfig struct {
	DevMode   bool
	DevURL    string
	StaticDir string
}

// NewFrontendHandler serves the built bundle from StaticDir, or in dev mode
// forwards to the bundler's dev server. The dev server uses a self-signed
// certificate, so TLS verification is off for that hop only.
func NewFrontendHandler(cfg FrontendConfig, logger *zap.Logger) (http.Handler, error) {
	if !cfg.DevMode {
		return http.FileServer(http.Dir(cfg.StaticDir)), nil
	}

	target, err := url.Parse(cfg.DevURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid frontend dev url %q", cfg.DevURL)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // local dev server only
	}
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.Host = target.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("frontend dev server unreachable",
			zap.String("target", target.String()),
			zap.String("uri", r.RequestURI),
			zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
	}

	logger.Info("forwarding frontend requests to dev server", zap.String("target", target.String()))
	return proxy, nil
}
