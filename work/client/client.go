package client

import (
	"fmt"
	"net/http"
	"time"

	"sokol-player/work/config"
)

// HeaderSettingClient wraps http.Client so every upstream request presents the
// configured legacy player identity. Many IPTV origins gate on the player
// signature and reject generic Go user agents outright.
type HeaderSettingClient struct {
	Client *http.Client
	config *config.Config
}

// New builds a HeaderSettingClient tuned for long-lived media streams: no
// overall request timeout (streams run for hours), a bounded wait for response
// headers, and a bounded redirect chain.
func New(cfg *config.Config) *HeaderSettingClient {
	c := &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.StreamHeaderTimeout,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}

	return &HeaderSettingClient{
		Client: c,
		config: cfg,
	}
}

// Do sends the request with the player identity headers applied, leaving any
// header already set by the caller untouched.
func (hsc *HeaderSettingClient) Do(req *http.Request) (*http.Response, error) {
	hsc.setHeaders(req)
	return hsc.Client.Do(req)
}

func (hsc *HeaderSettingClient) setHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", hsc.config.PlayerUserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Icy-MetaData", "1")

	if hsc.config.ReqOrigin != "" && req.Header.Get("Origin") == "" {
		req.Header.Set("Origin", hsc.config.ReqOrigin)
	}
	if hsc.config.ReqReferrer != "" && req.Header.Get("Referer") == "" {
		req.Header.Set("Referer", hsc.config.ReqReferrer)
	}
}
