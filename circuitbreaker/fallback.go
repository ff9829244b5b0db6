package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/status-im/status-go-rpc/healthmanager/provider_errors"
	"github.com/status-im/status-go-rpc/healthmanager/rpcstatus"
	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

var ErrNoProviders = errors.New("no providers configured")

// Provider is one upstream endpoint tried by FallbackTransport.
type Provider struct {
	Name      string
	Transport transport.Transport
}

// FallbackTransport sends each packet to the first healthy provider, in
// order, with one circuit per provider. Error responses count as answers
// and never trip a circuit.
type FallbackTransport struct {
	cb        *CircuitBreaker
	providers []Provider
	statuses  *rpcstatus.ProviderStatuses
	logger    *zap.Logger
}

func NewFallbackTransport(config Config, providers []Provider) (*FallbackTransport, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name)
	}
	return &FallbackTransport{
		cb:        NewCircuitBreaker(config),
		providers: providers,
		statuses:  rpcstatus.NewProviderStatuses(names...),
		logger:    logutils.ZapLogger().Named("fallback"),
	}, nil
}

func (t *FallbackTransport) Statuses() []rpcstatus.ProviderStatus {
	return t.statuses.All()
}

func (t *FallbackTransport) Call(ctx context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
	cmd := NewCommand(ctx, nil)
	for _, provider := range t.providers {
		provider := provider
		cmd.Add(NewFunctor(func(ctx context.Context) ([]any, error) {
			resp, err := provider.Transport.Call(ctx, packet)
			t.statuses.Update(rpcstatus.RpcProviderCallStatus{
				Name:      provider.Name,
				Timestamp: time.Now(),
				Err:       err,
			})
			if err != nil {
				if provider_errors.ShouldCancelFallback(err) {
					cmd.Cancel()
				}
				return nil, err
			}
			return []any{resp}, nil
		}, provider.Name))
	}

	result := t.cb.Execute(cmd)
	if len(result.Result()) == 0 {
		err := result.Error()
		if err == nil {
			err = ErrNoProviders
		}
		t.logger.Debug("all providers failed",
			zap.Strings("methods", packet.Methods()),
			zap.Bool("cancelled", result.Cancelled()),
			zap.Error(err))
		return jsonrpc.ResponsePacket{}, err
	}
	return result.Result()[0].(jsonrpc.ResponsePacket), nil
}

// Close closes every provider transport that holds resources.
func (t *FallbackTransport) Close() error {
	var err error
	for _, p := range t.providers {
		if closer, ok := p.Transport.(transport.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
	}
	return err
}
