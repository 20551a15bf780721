package proxypool

import (
	"context"

	"olxscout/proxypool/validator"
)

// Probe 验证池中所有代理，并隔离验证失败的代理。
func (p *Pool) Probe(ctx context.Context, v *validator.Validator) []validator.Result {
	results := v.Validate(ctx, p.Proxies())
	for _, r := range results {
		if !r.OK() {
			p.MarkFailed(r.Proxy)
		}
	}
	return results
}
