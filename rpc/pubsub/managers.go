package pubsub

import (
	"bytes"
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
)

type inFlightResult struct {
	resp jsonrpc.Response
	err  error
}

// inFlight is a request sent but not yet answered.
type inFlight struct {
	request   jsonrpc.SerializedRequest
	tx        chan inFlightResult
	abandoned <-chan struct{}
	// resubscribe marks subscribe requests re-issued after a reconnect.
	resubscribe bool
}

func newInFlight(req jsonrpc.SerializedRequest, abandoned <-chan struct{}) *inFlight {
	return &inFlight{
		request:   req,
		tx:        make(chan inFlightResult, 1),
		abandoned: abandoned,
	}
}

func (f *inFlight) isAbandoned() bool {
	select {
	case <-f.abandoned:
		return true
	default:
		return false
	}
}

// resolve never blocks: tx has room for exactly one result.
func (f *inFlight) resolve(resp jsonrpc.Response, err error) {
	select {
	case f.tx <- inFlightResult{resp: resp, err: err}:
	default:
	}
}

// requestManager keeps in-flight requests in issue order.
type requestManager struct {
	reqs *orderedmap.OrderedMap[jsonrpc.ID, *inFlight]
}

func newRequestManager() *requestManager {
	return &requestManager{reqs: orderedmap.New[jsonrpc.ID, *inFlight]()}
}

func (m *requestManager) insert(f *inFlight) {
	m.reqs.Set(f.request.ID(), f)
}

func (m *requestManager) contains(id jsonrpc.ID) bool {
	_, ok := m.reqs.Get(id)
	return ok
}

func (m *requestManager) take(id jsonrpc.ID) (*inFlight, bool) {
	return m.reqs.Delete(id)
}

func (m *requestManager) len() int {
	return m.reqs.Len()
}

// live drops abandoned requests and returns the rest in issue order.
func (m *requestManager) live() []*inFlight {
	var out []*inFlight
	var abandoned []jsonrpc.ID
	for pair := m.reqs.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.isAbandoned() {
			abandoned = append(abandoned, pair.Key)
			continue
		}
		out = append(out, pair.Value)
	}
	for _, id := range abandoned {
		m.reqs.Delete(id)
	}
	return out
}

func (m *requestManager) drain(err error) {
	for pair := m.reqs.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.resolve(jsonrpc.Response{}, err)
	}
	m.reqs = orderedmap.New[jsonrpc.ID, *inFlight]()
}

type activeSubscription struct {
	localID  common.Hash
	serverID json.RawMessage
	request  jsonrpc.SerializedRequest
	fan      *fanout
}

func serverKey(raw json.RawMessage) string {
	return string(bytes.TrimSpace(raw))
}

// subscriptionManager maps the stable local ids to the server ids of the
// current connection.
type subscriptionManager struct {
	local    *orderedmap.OrderedMap[common.Hash, *activeSubscription]
	byServer map[string]common.Hash
	size     int
}

func newSubscriptionManager(size int) *subscriptionManager {
	return &subscriptionManager{
		local:    orderedmap.New[common.Hash, *activeSubscription](),
		byServer: make(map[string]common.Hash),
		size:     size,
	}
}

func (m *subscriptionManager) get(localID common.Hash) (*activeSubscription, bool) {
	return m.local.Get(localID)
}

// upsert binds serverID to the local id of req, creating the entry on
// first use.
func (m *subscriptionManager) upsert(req jsonrpc.SerializedRequest, serverID json.RawMessage) *activeSubscription {
	localID := req.ParamsHash()
	sub, ok := m.local.Get(localID)
	if !ok {
		sub = &activeSubscription{
			localID: localID,
			request: req,
			fan:     newFanout(localID, m.size),
		}
		m.local.Set(localID, sub)
	}
	if len(sub.serverID) > 0 {
		delete(m.byServer, serverKey(sub.serverID))
	}
	sub.serverID = serverID
	m.byServer[serverKey(serverID)] = localID
	return sub
}

func (m *subscriptionManager) notify(n *jsonrpc.Notification) bool {
	localID, ok := m.byServer[n.SubscriptionKey()]
	if !ok {
		return false
	}
	sub, ok := m.local.Get(localID)
	if !ok {
		return false
	}
	sub.fan.send(n.Result)
	return true
}

// dropServerIDs forgets every server id; the entries wait for renewal.
func (m *subscriptionManager) dropServerIDs() {
	m.byServer = make(map[string]common.Hash)
	for pair := m.local.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.serverID = nil
	}
}

func (m *subscriptionManager) all() []*activeSubscription {
	out := make([]*activeSubscription, 0, m.local.Len())
	for pair := m.local.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (m *subscriptionManager) remove(localID common.Hash) (*activeSubscription, bool) {
	sub, ok := m.local.Delete(localID)
	if !ok {
		return nil, false
	}
	if len(sub.serverID) > 0 {
		delete(m.byServer, serverKey(sub.serverID))
	}
	return sub, true
}

func (m *subscriptionManager) closeAll() {
	for pair := m.local.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.fan.close()
	}
	m.local = orderedmap.New[common.Hash, *activeSubscription]()
	m.byServer = make(map[string]common.Hash)
}
