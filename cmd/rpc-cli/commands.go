package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common/hexutil"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"github.com/zenthangplus/goccm"

	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/metrics"
	"github.com/status-im/status-go-rpc/params"
	"github.com/status-im/status-go-rpc/rpc"
	"github.com/status-im/status-go-rpc/rpc/builder"
	"github.com/status-im/status-go-rpc/rpc/rpcstats"
)

var errMissingMethod = errors.New("missing method argument")

type session struct {
	client  *rpc.Client
	metrics *metrics.Server
	logger  *zap.Logger
}

func (s *session) close() {
	if err := s.client.Close(); err != nil {
		s.logger.Warn("failed to close client", zap.Error(err))
	}
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.metrics.Stop(ctx)
	}
}

func open(cCtx *cli.Context) (*session, error) {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return nil, err
	}
	if err := logutils.InitZapLogger(cfg.LogSettings); err != nil {
		return nil, err
	}
	logger := logutils.ZapLogger().Named("rpc-cli")

	var metricsServer *metrics.Server
	if addr := cCtx.String(MetricsAddrFlag); addr != "" {
		metricsServer, err = metrics.NewMetricsServer(addr, prom.NewRegistry())
		if err != nil {
			return nil, err
		}
		metricsServer.Listen()
		logger.Info("metrics server started", zap.String("addr", addr))
	}

	client, err := builder.Dial(cCtx.Context, cfg)
	if err != nil {
		return nil, err
	}
	return &session{client: client, metrics: metricsServer, logger: logger}, nil
}

func loadConfig(cCtx *cli.Context) (*params.ClientConfig, error) {
	var cfg *params.ClientConfig
	if path := cCtx.String(ConfigFlag); path != "" {
		loaded, err := params.LoadConfigFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = params.NewClientConfig("")
	}

	if url := cCtx.String(URLFlag); url != "" {
		cfg.URL = url
	}
	if tag := cCtx.String(TagFlag); tag != "" {
		cfg.Tag = tag
	}
	if level := cCtx.String(LogLevelFlag); level != "" {
		cfg.LogSettings.Level = level
	}
	return cfg, cfg.Validate()
}

func callAction(cCtx *cli.Context) error {
	method, callParams, err := methodAndParams(cCtx.Args().Slice())
	if err != nil {
		return err
	}
	s, err := open(cCtx)
	if err != nil {
		return err
	}
	defer s.close()

	var result json.RawMessage
	if err := s.client.CallContext(cCtx.Context, &result, method, callParams); err != nil {
		return err
	}
	return printJSON(result)
}

func batchAction(cCtx *cli.Context) error {
	if cCtx.NArg() == 0 {
		return errMissingMethod
	}
	s, err := open(cCtx)
	if err != nil {
		return err
	}
	defer s.close()

	batch := s.client.NewBatch()
	waiters := make([]*rpc.Waiter, 0, cCtx.NArg())
	methods := make([]string, 0, cCtx.NArg())
	for _, arg := range cCtx.Args().Slice() {
		method, callParams, err := splitCall(arg)
		if err != nil {
			return err
		}
		w, err := batch.AddCall(method, callParams)
		if err != nil {
			return err
		}
		waiters = append(waiters, w)
		methods = append(methods, method)
	}

	if err := batch.Send(cCtx.Context); err != nil {
		return err
	}

	out := make([]map[string]interface{}, 0, len(waiters))
	for i, w := range waiters {
		entry := map[string]interface{}{"method": methods[i], "id": w.ID()}
		var result json.RawMessage
		if err := w.Await(cCtx.Context, &result); err != nil {
			entry["error"] = err.Error()
		} else {
			entry["result"] = result
		}
		out = append(out, entry)
	}
	return printJSON(out)
}

func subscribeAction(cCtx *cli.Context) error {
	method, callParams, err := methodAndParams(cCtx.Args().Slice())
	if err != nil {
		return err
	}
	s, err := open(cCtx)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	localID, err := s.client.Subscribe(ctx, method, callParams)
	if err != nil {
		return err
	}
	sub, err := s.client.GetSubscription(ctx, localID)
	if err != nil {
		return err
	}
	defer sub.Close()
	s.logger.Info("subscribed", zap.String("id", hexutil.Encode(localID.Bytes())))

	limit := cCtx.Int(CountFlag)
	for received := 0; limit == 0 || received < limit; received++ {
		item, err := sub.Recv(ctx)
		if errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			return err
		}
		if err := printJSON(item); err != nil {
			return err
		}
	}

	unsubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Unsubscribe(unsubCtx, localID)
}

func statsAction(cCtx *cli.Context) error {
	method, callParams, err := methodAndParams(cCtx.Args().Slice())
	if err != nil {
		return err
	}
	s, err := open(cCtx)
	if err != nil {
		return err
	}
	defer s.close()

	count := cCtx.Int(CountFlag)
	if count < 1 {
		return errors.New("count must be positive")
	}
	concurrency := cCtx.Int(ConcurrencyFlag)
	if concurrency < 1 {
		concurrency = 1
	}

	rpcstats.ResetStats()
	var failed atomic.Int64
	ccm := goccm.New(concurrency)
	start := time.Now()
	for i := 0; i < count; i++ {
		ccm.Wait()
		go func() {
			defer ccm.Done()
			if err := s.client.CallContext(cCtx.Context, nil, method, callParams); err != nil {
				failed.Add(1)
				s.logger.Warn("call failed", zap.String("method", method), zap.Error(err))
			}
		}()
	}
	ccm.WaitAllDone()

	return printJSON(struct {
		Elapsed string            `json:"elapsed"`
		Failed  int64             `json:"failed"`
		Stats   rpcstats.Snapshot `json:"stats"`
	}{
		Elapsed: time.Since(start).String(),
		Failed:  failed.Load(),
		Stats:   rpcstats.GetStats(),
	})
}
