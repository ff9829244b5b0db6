package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

type instruction interface{}

type requestInstruction struct {
	inFlight *inFlight
}

type getSubInstruction struct {
	localID common.Hash
	tx      chan getSubResult
}

type getSubResult struct {
	sub *Subscription
	err error
}

type unsubscribeInstruction struct {
	localID common.Hash
	done    chan struct{}
}

type serverIDInstruction struct {
	localID common.Hash
	tx      chan json.RawMessage
}

// service is the single owner of the connection, the in-flight requests
// and the subscriptions. All of its state is touched only by run.
type service struct {
	handle    *ConnectionHandle
	connector Connector

	reqs <-chan instruction
	quit <-chan struct{}
	done chan struct{}
	err  error

	requests *requestManager
	subs     *subscriptionManager

	logger *zap.Logger
}

func (s *service) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	defer s.stop()

	for {
		// instructions and shutdown first
		select {
		case <-s.quit:
			return
		case inst := <-s.reqs:
			s.handleInstruction(inst)
			continue
		default:
		}

		// then a broken socket
		select {
		case <-s.handle.errored:
			if err := s.reconnect(ctx); err != nil {
				s.err = err
				return
			}
			continue
		default:
		}

		select {
		case <-s.quit:
			return
		case inst := <-s.reqs:
			s.handleInstruction(inst)
		case <-s.handle.errored:
			if err := s.reconnect(ctx); err != nil {
				s.err = err
				return
			}
		case raw := <-s.handle.fromSocket:
			s.handleInbound(raw)
		}
	}
}

func (s *service) stop() {
	gone := transport.ErrBackendGone
	if s.err != nil {
		gone = fmt.Errorf("%w: %v", transport.ErrBackendGone, s.err)
		s.logger.Error("pubsub service stopped", zap.Error(s.err))
	} else {
		s.logger.Debug("pubsub service stopped")
	}
	s.requests.drain(gone)
	s.subs.closeAll()
	s.handle.Shutdown()
	close(s.done)
}

func (s *service) handleInstruction(inst instruction) {
	switch inst := inst.(type) {
	case requestInstruction:
		s.dispatch(inst.inFlight)
	case getSubInstruction:
		sub, ok := s.subs.get(inst.localID)
		if !ok {
			inst.tx <- getSubResult{err: fmt.Errorf("%w: %s", ErrSubscriptionNotFound, inst.localID)}
			return
		}
		inst.tx <- getSubResult{sub: sub.fan.subscribe()}
	case unsubscribeInstruction:
		s.unsubscribe(inst.localID)
		close(inst.done)
	case serverIDInstruction:
		var id json.RawMessage
		if sub, ok := s.subs.get(inst.localID); ok {
			id = sub.serverID
		}
		inst.tx <- id
	default:
		s.logger.Warn("unknown pubsub instruction", zap.String("type", fmt.Sprintf("%T", inst)))
	}
}

func (s *service) dispatch(f *inFlight) {
	req := f.request
	if req.IsSubscription() {
		// identical subscribe requests share one server subscription
		if sub, ok := s.subs.get(req.ParamsHash()); ok && len(sub.serverID) > 0 {
			f.resolve(localIDResponse(req.ID(), sub.localID), nil)
			return
		}
	}

	if !req.ID().IsNone() {
		s.requests.insert(f)
	}
	if err := s.handle.Send(req.Bytes()); err != nil {
		// kept in flight, the reconnect replays it
		s.logger.Debug("send failed, waiting for reconnect", zap.Stringer("id", req.ID()), zap.Error(err))
	}
}

func (s *service) handleInbound(raw json.RawMessage) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []jsonrpc.PubSubItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			s.logger.Warn("failed to decode inbound batch", zap.Error(err), zap.ByteString("raw", trimmed))
			return
		}
		for i := range items {
			s.handleItem(&items[i])
		}
		return
	}

	var item jsonrpc.PubSubItem
	if err := json.Unmarshal(trimmed, &item); err != nil {
		s.logger.Warn("failed to decode inbound item", zap.Error(err), zap.ByteString("raw", trimmed))
		return
	}
	s.handleItem(&item)
}

func (s *service) handleItem(item *jsonrpc.PubSubItem) {
	if item.Notification != nil {
		if !s.subs.notify(item.Notification) {
			s.logger.Debug("notification for unknown subscription",
				zap.String("subscription", item.Notification.SubscriptionKey()))
		}
		return
	}

	resp := item.Response
	f, ok := s.requests.take(resp.ID)
	if !ok {
		s.logger.Debug("response for unknown request", zap.Stringer("id", resp.ID))
		return
	}

	if f.request.IsSubscription() && resp.Error == nil {
		s.bindSubscription(f, *resp)
		return
	}
	if f.resubscribe {
		s.logger.Warn("failed to renew subscription",
			zap.Stringer("localID", f.request.ParamsHash()),
			zap.Error(resp.Error))
	}
	f.resolve(*resp, nil)
}

func (s *service) bindSubscription(f *inFlight, resp jsonrpc.Response) {
	localID := f.request.ParamsHash()
	existing, ok := s.subs.get(localID)
	if f.resubscribe && !ok {
		// unsubscribed while the renewal was pending
		s.sendUnsubscribe(f.request.Method(), resp.Result)
		return
	}
	if ok && len(existing.serverID) > 0 && serverKey(existing.serverID) != serverKey(resp.Result) {
		// an identical subscribe was bound first, on either side of a renewal
		s.logger.Debug("dropping duplicate server subscription",
			zap.Stringer("localID", localID),
			zap.String("kept", serverKey(existing.serverID)),
			zap.String("dropped", serverKey(resp.Result)))
		s.sendUnsubscribe(f.request.Method(), resp.Result)
		f.resolve(localIDResponse(resp.ID, localID), nil)
		return
	}

	sub := s.subs.upsert(f.request, resp.Result)
	s.logger.Debug("subscription bound",
		zap.Stringer("localID", sub.localID),
		zap.String("serverID", serverKey(sub.serverID)))
	f.resolve(localIDResponse(resp.ID, localID), nil)
}

func localIDResponse(id jsonrpc.ID, localID common.Hash) jsonrpc.Response {
	raw, _ := json.Marshal(localID)
	return jsonrpc.Response{ID: id, Result: raw}
}

func (s *service) unsubscribe(localID common.Hash) {
	sub, ok := s.subs.remove(localID)
	if !ok {
		return
	}
	if len(sub.serverID) > 0 {
		s.sendUnsubscribe(sub.request.Method(), sub.serverID)
	}
	sub.fan.close()
}

func unsubscribeMethod(subscribeMethod string) string {
	if i := strings.Index(subscribeMethod, "_"); i > 0 {
		return subscribeMethod[:i] + "_unsubscribe"
	}
	return "eth_unsubscribe"
}

func (s *service) sendUnsubscribe(subscribeMethod string, serverID json.RawMessage) {
	req, err := jsonrpc.NewRequest(unsubscribeMethod(subscribeMethod), jsonrpc.NoneID(), []json.RawMessage{serverID}).Serialize()
	if err != nil {
		s.logger.Warn("failed to encode unsubscribe", zap.Error(err))
		return
	}
	if err := s.handle.Send(req.Bytes()); err != nil {
		s.logger.Debug("failed to send unsubscribe", zap.Error(err))
	}
}

// reconnect swaps in a new connection, processes whatever the old one had
// already buffered, replays unanswered requests in issue order and renews
// every subscription under its existing local id.
func (s *service) reconnect(ctx context.Context) error {
	s.logger.Info("connection lost, reconnecting", zap.Stringer("connection", s.handle.ID()))

	handle, err := s.connector.TryReconnect(ctx)
	if err != nil {
		return fmt.Errorf("reconnect failed: %w", err)
	}

	old := s.handle
	s.handle = handle
	s.drain(old)
	old.Shutdown()

	s.replay()
	s.resubscribe()

	s.logger.Info("reconnected",
		zap.Stringer("connection", handle.ID()),
		zap.Int("inFlight", s.requests.len()))
	return nil
}

func (s *service) drain(old *ConnectionHandle) {
	for {
		select {
		case raw := <-old.fromSocket:
			s.handleInbound(raw)
		default:
			return
		}
	}
}

func (s *service) replay() {
	for _, f := range s.requests.live() {
		if err := s.handle.Send(f.request.Bytes()); err != nil {
			s.logger.Debug("replay send failed", zap.Stringer("id", f.request.ID()), zap.Error(err))
			return
		}
	}
}

func (s *service) resubscribe() {
	s.subs.dropServerIDs()
	for _, sub := range s.subs.all() {
		if s.requests.contains(sub.request.ID()) {
			// already replayed
			continue
		}
		f := newInFlight(sub.request, nil)
		f.resubscribe = true
		s.requests.insert(f)
		if err := s.handle.Send(sub.request.Bytes()); err != nil {
			s.logger.Debug("resubscribe send failed", zap.Stringer("localID", sub.localID), zap.Error(err))
			return
		}
	}
}
