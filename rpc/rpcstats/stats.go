package rpcstats

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const untagged = ""

var (
	callsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpc_calls_total",
		Help: "Number of JSON-RPC requests dispatched, per method and tag",
	}, []string{"method", "tag"})

	errorsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpc_errors_total",
		Help: "Number of JSON-RPC requests that ended in an error, per method and kind",
	}, []string{"method", "kind"})
)

type RPCUsageStats struct {
	mu                     sync.Mutex
	total                  uint
	counterPerMethod       map[string]uint
	counterPerMethodPerTag map[string]map[string]uint
}

// Snapshot is a copy of the counters at a point in time.
type Snapshot struct {
	Total                  uint                       `json:"total"`
	CounterPerMethod       map[string]uint            `json:"counterPerMethod"`
	CounterPerMethodPerTag map[string]map[string]uint `json:"counterPerMethodPerTag"`
}

var stats *RPCUsageStats
var mu sync.Mutex

func getInstance() *RPCUsageStats {
	mu.Lock()
	defer mu.Unlock()

	if stats == nil {
		stats = &RPCUsageStats{}
		stats.counterPerMethod = make(map[string]uint)
		stats.counterPerMethodPerTag = make(map[string]map[string]uint)
	}
	return stats
}

// Register exposes the counters on a prometheus registerer.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{callsCounter, errorsCounter} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

func GetStats() Snapshot {
	stats := getInstance()
	stats.mu.Lock()
	defer stats.mu.Unlock()

	snapshot := Snapshot{
		Total:                  stats.total,
		CounterPerMethod:       make(map[string]uint, len(stats.counterPerMethod)),
		CounterPerMethodPerTag: make(map[string]map[string]uint, len(stats.counterPerMethodPerTag)),
	}
	for method, n := range stats.counterPerMethod {
		snapshot.CounterPerMethod[method] = n
	}
	for tag, methods := range stats.counterPerMethodPerTag {
		copied := make(map[string]uint, len(methods))
		for method, n := range methods {
			copied[method] = n
		}
		snapshot.CounterPerMethodPerTag[tag] = copied
	}
	return snapshot
}

// Methods returns the counted methods sorted by name.
func (s Snapshot) Methods() []string {
	methods := maps.Keys(s.CounterPerMethod)
	slices.Sort(methods)
	return methods
}

func ResetStats() {
	stats := getInstance()
	stats.mu.Lock()
	defer stats.mu.Unlock()
	stats.total = 0
	stats.counterPerMethod = make(map[string]uint)
	stats.counterPerMethodPerTag = make(map[string]map[string]uint)
}

func CountCall(method string) {
	stats := getInstance()
	stats.mu.Lock()
	stats.total++
	stats.counterPerMethod[method]++
	stats.mu.Unlock()
	callsCounter.WithLabelValues(method, untagged).Inc()
}

func CountCallWithTag(method string, tag string) {
	if tag == "" {
		CountCall(method)
		return
	}

	stats := getInstance()
	stats.mu.Lock()
	methodMap, ok := stats.counterPerMethodPerTag[tag]
	if !ok {
		methodMap = make(map[string]uint)
		stats.counterPerMethodPerTag[tag] = methodMap
	}
	methodMap[method]++
	stats.total++
	stats.mu.Unlock()
	callsCounter.WithLabelValues(method, tag).Inc()
}

// CountError records a failed call. Kind is a short label such as
// "transport", "protocol" or "rate_limit".
func CountError(method string, kind string) {
	errorsCounter.WithLabelValues(method, kind).Inc()
}
