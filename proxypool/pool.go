package proxypool

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"olxscout/internal/shared/logger"
	"olxscout/proxypool/model"
	"olxscout/proxypool/storage"
)

var ipv4Pattern = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`)

// Stats 是代理池的观测快照。
type Stats struct {
	Total       int `json:"total"`
	Quarantined int `json:"quarantined"`
	Available   int `json:"available"`
	Cursor      int `json:"cursor"`
}

// Pool 维护代理的轮换顺序和失败隔离集合。
// 所有方法都在同一把锁下执行，可被并发的搜索共享。
type Pool struct {
	mu          sync.Mutex
	proxies     []*model.Proxy
	cursor      int
	quarantined map[string]struct{}
}

// New 创建一个空的代理池。空池意味着所有请求走直连。
func New() *Pool {
	return &Pool{
		quarantined: make(map[string]struct{}),
	}
}

// ParseLine 解析一行 host:port[:user[:pass]]。
func ParseLine(line string) (*model.Proxy, error) {
	parts := strings.Split(strings.TrimSpace(line), ":")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid proxy format: %q", line)
	}

	host := strings.TrimSpace(parts[0])
	if !ipv4Pattern.MatchString(host) {
		return nil, fmt.Errorf("invalid proxy host: %q", host)
	}

	port, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid proxy port: %q", parts[1])
	}

	var username, password string
	if len(parts) > 2 {
		username = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		password = strings.TrimSpace(parts[3])
	}
	return model.New(host, port, username, password), nil
}

// Load 用给定的行替换池中的代理。注释行和空行被忽略，无效行记录日志后跳过。
// 游标和隔离集合同时被重置。
func (p *Pool) Load(lines []string) int {
	l := logger.WithComponent("ProxyPool")

	proxies := make([]*model.Proxy, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxy, err := ParseLine(line)
		if err != nil {
			l.Warn().Int("line", i+1).Err(err).Msg("Skipping invalid proxy line.")
			continue
		}
		if _, dup := seen[proxy.ID]; dup {
			l.Debug().Int("line", i+1).Str("proxy_id", proxy.ID).Msg("Duplicate proxy, skipping.")
			continue
		}
		seen[proxy.ID] = struct{}{}
		proxies = append(proxies, proxy)
	}

	p.mu.Lock()
	p.proxies = proxies
	p.cursor = 0
	p.quarantined = make(map[string]struct{})
	p.mu.Unlock()

	if len(proxies) == 0 {
		l.Warn().Msg("No valid proxies loaded, searches will use a direct connection.")
	} else {
		l.Info().Int("count", len(proxies)).Msg("Proxies loaded.")
	}
	return len(proxies)
}

// LoadFromSource is an alias of Load kept for callers that think in terms of a line source.
func (p *Pool) LoadFromSource(lines []string) int {
	return p.Load(lines)
}

// LoadStorage 从存储读取代理列表并替换池内容。
func (p *Pool) LoadStorage(s storage.Storage) (int, error) {
	lines, err := s.Load()
	if err != nil {
		return 0, err
	}
	return p.Load(lines), nil
}

// Count 至少返回 1，空池时代表一次直连尝试。
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return max(len(p.proxies), 1)
}

// Len returns the number of loaded proxies, which may be zero.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// Next 按加载顺序返回下一个未被隔离的代理。
// 如果全部代理都被隔离，隔离集合被清空且游标归零。
// 返回后游标指向被返回代理的下一个位置，因此 MarkCurrentFailed 总是命中它。
// 空池返回 nil，调用方应直连。
func (p *Pool) Next() *model.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.proxies)
	if n == 0 {
		return nil
	}

	if p.allQuarantinedLocked() {
		l := logger.WithComponent("ProxyPool")
		l.Info().Int("count", n).Msg("All proxies quarantined, resetting quarantine.")
		p.quarantined = make(map[string]struct{})
		p.cursor = 0
	}

	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		proxy := p.proxies[idx]
		if _, bad := p.quarantined[proxy.ID]; bad {
			continue
		}
		p.cursor = (idx + 1) % n
		return proxy
	}
	// unreachable: the reset above guarantees at least one candidate
	return nil
}

// MarkCurrentFailed 隔离最近一次 Next 返回的代理 (cursor-1 mod len)。
func (p *Pool) MarkCurrentFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.proxies)
	if n == 0 {
		return
	}
	idx := (p.cursor - 1 + n) % n
	p.quarantineLocked(p.proxies[idx])
}

// MarkFailed 按标识隔离指定代理。未知或 nil 的代理被忽略。
func (p *Pool) MarkFailed(proxy *model.Proxy) {
	if proxy == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, candidate := range p.proxies {
		if candidate.ID == proxy.ID {
			p.quarantineLocked(candidate)
			return
		}
	}
}

// IsQuarantined reports whether the proxy with the given identifier is quarantined.
func (p *Pool) IsQuarantined(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.quarantined[id]
	return ok
}

// Reset 清空隔离集合，不改变游标。
func (p *Pool) Reset() {
	p.mu.Lock()
	p.quarantined = make(map[string]struct{})
	p.mu.Unlock()
	l := logger.WithComponent("ProxyPool")
	l.Info().Msg("Quarantine cleared.")
}

// Proxies returns a copy of the loaded proxies in load order.
func (p *Pool) Proxies() []*model.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*model.Proxy, len(p.proxies))
	copy(out, p.proxies)
	return out
}

// Stats 返回代理池的统计快照。
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Total:       len(p.proxies),
		Quarantined: len(p.quarantined),
		Available:   len(p.proxies) - len(p.quarantined),
		Cursor:      p.cursor,
	}
}

// 注意：以下函数必须在 p.mu 保护下调用。

func (p *Pool) quarantineLocked(proxy *model.Proxy) {
	p.quarantined[proxy.ID] = struct{}{}
	l := logger.WithComponent("ProxyPool")
	l.Warn().Str("proxy_id", proxy.ID).Msg("Proxy quarantined.")
}

func (p *Pool) allQuarantinedLocked() bool {
	for _, proxy := range p.proxies {
		if _, ok := p.quarantined[proxy.ID]; !ok {
			return false
		}
	}
	return true
}
