package validator

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"olxscout/internal/shared/logger"
	"olxscout/proxypool/model"
)

// Result 是单个代理的验证结果。
type Result struct {
	Proxy   *model.Proxy
	Latency time.Duration
	Err     error
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

type Validator struct {
	timeout     time.Duration
	concurrency int
	target      string
}

// NewValidator 创建验证器。target 是通过代理发送 HEAD 请求的地址。
func NewValidator(target string, timeout time.Duration, concurrency int) *Validator {
	if concurrency <= 0 {
		concurrency = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Validator{
		timeout:     timeout,
		concurrency: concurrency,
		target:      target,
	}
}

// Validate 并发验证所有代理，结果顺序与输入一致。
func (v *Validator) Validate(ctx context.Context, proxies []*model.Proxy) []Result {
	l := logger.WithComponent("ProxyPool/Validator")
	results := make([]Result, len(proxies))
	if len(proxies) == 0 {
		return results
	}

	l.Info().Int("count", len(proxies)).Int("concurrency", v.concurrency).Str("target", v.target).Msg("Starting validation batch...")

	var g errgroup.Group
	g.SetLimit(v.concurrency)

	for i, p := range proxies {
		g.Go(func() error {
			start := time.Now()
			err := v.checkHttpProxy(ctx, p)
			results[i] = Result{Proxy: p, Err: err}
			if err == nil {
				results[i].Latency = time.Since(start)
			}
			return nil
		})
	}

	g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
			l.Debug().Str("proxy_id", r.Proxy.ID).Err(r.Err).Msg("Proxy failed validation.")
		}
	}
	l.Info().Int("passed", len(results)-failed).Int("failed", failed).Msg("Validation batch finished.")
	return results
}

// checkHttpProxy sends a HEAD request for the target through the proxy.
func (v *Validator) checkHttpProxy(ctx context.Context, p *model.Proxy) error {
	dialer := &net.Dialer{
		Timeout: v.timeout,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyURL(p.URL()),
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		TLSHandshakeTimeout:   v.timeout / 2,
		DisableKeepAlives:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   v.timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, v.target, nil)
	if err != nil {
		return fmt.Errorf("failed to create HEAD request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 403 说明目标站点屏蔽了该出口
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}
	return nil
}
