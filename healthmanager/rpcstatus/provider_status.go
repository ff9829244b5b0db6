package rpcstatus

import (
	"sort"
	"sync"
	"time"

	"github.com/status-im/status-go-rpc/healthmanager/provider_errors"
)

// StatusType represents the possible status values for a provider.
type StatusType string

const (
	StatusUnknown StatusType = "unknown"
	StatusUp      StatusType = "up"
	StatusDown    StatusType = "down"
)

// ProviderStatus holds the status information for a single provider.
type ProviderStatus struct {
	Name          string     `json:"name"`
	LastSuccessAt time.Time  `json:"last_success_at"`
	LastErrorAt   time.Time  `json:"last_error_at"`
	LastError     error      `json:"-"`
	Status        StatusType `json:"status"`
}

// RpcProviderCallStatus represents the result of an RPC provider call.
type RpcProviderCallStatus struct {
	Name      string
	Timestamp time.Time
	Err       error
}

// NewRpcProviderStatus processes RpcProviderCallStatus and returns a new ProviderStatus.
func NewRpcProviderStatus(res RpcProviderCallStatus) ProviderStatus {
	status := ProviderStatus{
		Name: res.Name,
	}

	// Determine if the error is critical
	if res.Err == nil || provider_errors.IsNonCriticalRpcError(res.Err) || provider_errors.IsNonCriticalProviderError(res.Err) {
		status.LastSuccessAt = res.Timestamp
		status.Status = StatusUp
	} else {
		status.LastErrorAt = res.Timestamp
		status.LastError = res.Err
		status.Status = StatusDown
	}

	return status
}

// ProviderStatuses keeps the latest status of every provider.
type ProviderStatuses struct {
	mu       sync.RWMutex
	statuses map[string]ProviderStatus
}

func NewProviderStatuses(names ...string) *ProviderStatuses {
	p := &ProviderStatuses{statuses: make(map[string]ProviderStatus, len(names))}
	for _, name := range names {
		p.statuses[name] = ProviderStatus{Name: name, Status: StatusUnknown}
	}
	return p
}

// Update merges a call result into the provider status, keeping the last
// success and error timestamps.
func (p *ProviderStatuses) Update(res RpcProviderCallStatus) ProviderStatus {
	next := NewRpcProviderStatus(res)

	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.statuses[res.Name]
	if next.LastSuccessAt.IsZero() {
		next.LastSuccessAt = prev.LastSuccessAt
	}
	if next.LastErrorAt.IsZero() {
		next.LastErrorAt = prev.LastErrorAt
		next.LastError = prev.LastError
	}
	p.statuses[res.Name] = next
	return next
}

func (p *ProviderStatuses) Get(name string) (ProviderStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.statuses[name]
	return s, ok
}

// All returns the statuses sorted by provider name.
func (p *ProviderStatuses) All() []ProviderStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ProviderStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
