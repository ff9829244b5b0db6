package cache

import (
	"bytes"
	"context"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

const (
	DefaultTTL      = 10 * time.Minute
	DefaultCapacity = 1024
)

// DefaultMethods answer the same for the same params for as long as the
// node is the same.
var DefaultMethods = []string{
	"eth_chainId",
	"net_version",
	"web3_clientVersion",
	"eth_getBlockByHash",
	"eth_getTransactionByHash",
	"eth_getTransactionReceipt",
}

var nullResult = []byte("null")

// Transport answers repeated calls of immutable methods from memory.
type Transport struct {
	inner   transport.Transport
	cache   *ttlcache.Cache[common.Hash, jsonrpc.Response]
	methods mapset.Set
	logger  *zap.Logger
}

func NewTransport(inner transport.Transport, ttl time.Duration, capacity uint64, methods []string) *Transport {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if len(methods) == 0 {
		methods = DefaultMethods
	}

	allowed := mapset.NewSet()
	for _, m := range methods {
		allowed.Add(m)
	}

	t := &Transport{
		inner: inner,
		cache: ttlcache.New[common.Hash, jsonrpc.Response](
			ttlcache.WithTTL[common.Hash, jsonrpc.Response](ttl),
			ttlcache.WithCapacity[common.Hash, jsonrpc.Response](capacity),
			ttlcache.WithDisableTouchOnHit[common.Hash, jsonrpc.Response](),
		),
		methods: allowed,
		logger:  logutils.ZapLogger().Named("cache"),
	}
	go t.cache.Start()
	return t
}

func (t *Transport) cacheable(req jsonrpc.SerializedRequest) bool {
	return t.methods.Contains(req.Method()) && !req.IsSubscription()
}

func (t *Transport) Len() int {
	return t.cache.Len()
}

func (t *Transport) Call(ctx context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
	if !packet.IsBatch() && t.cacheable(*packet.Single) {
		req := *packet.Single
		if item := t.cache.Get(req.ParamsHash()); item != nil {
			resp := item.Value()
			resp.ID = req.ID()
			t.logger.Debug("cache hit", zap.String("method", req.Method()))
			return jsonrpc.ResponsePacket{Single: &resp}, nil
		}
	}

	out, err := t.inner.Call(ctx, packet)
	if err != nil {
		return out, err
	}

	byID := make(map[jsonrpc.ID]jsonrpc.SerializedRequest)
	for _, req := range packet.Requests() {
		if t.cacheable(req) {
			byID[req.ID()] = req
		}
	}
	for _, resp := range out.Responses() {
		req, ok := byID[resp.ID]
		if !ok || resp.Error != nil || bytes.Equal(bytes.TrimSpace(resp.Result), nullResult) {
			continue
		}
		t.cache.Set(req.ParamsHash(), resp, ttlcache.DefaultTTL)
	}
	return out, nil
}

// Close stops the expiration loop.
func (t *Transport) Close() error {
	t.cache.Stop()
	if closer, ok := t.inner.(transport.Closer); ok {
		return closer.Close()
	}
	return nil
}
