// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package hostd is the goroutine-driven shell around a deterministic
// DynamicEngine: it owns the propose ticker and the optional archive/replay
// sinks, exposes inbound and outbound queues for a network transport to
// feed and drain, and serializes every concurrent input
// (inbound network messages, propose ticks) through a single mutex so the
// engine itself never observes concurrent calls.
package hostd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/consensus/dynhb"
	"github.com/hbft-labs/dynhb/internal/archive"
	"github.com/hbft-labs/dynhb/internal/hostd/batchstore"
	"github.com/hbft-labs/dynhb/internal/xlog"
)

// Envelope pairs an outbound message with where the transport should send
// it; UnicastTo is the zero NodeID when Broadcast is set.
type Envelope struct {
	Broadcast bool
	UnicastTo common.NodeID
	Message   dynhb.Message
}

// Inbound is one message arriving from the network, tagged with its sender.
type Inbound struct {
	From    common.NodeID
	Message dynhb.Message
}

// Payload supplies the next contribution a Host should propose, or ok=false
// to skip a round with nothing to say yet.
type Payload[C dynhb.Contribution] func() (payload C, ok bool)

// Host drives a DynamicEngine[C] against wall-clock time and a network
// transport. All engine access happens on a single goroutine per Host
// guarded by mu; Deliver and the propose ticker both funnel through it.
type Host[C dynhb.Contribution] struct {
	mu     sync.Mutex
	engine *dynhb.DynamicEngine[C]

	proposeEvery time.Duration
	payload      Payload[C]

	archive *archive.Sink
	store   *batchstore.Store

	inbound  chan Inbound
	outbound chan Envelope
	batches  chan dynhb.Batch[C]
}

// New builds a Host around an already-constructed engine. archive and store
// are optional host-side sinks; pass nil to skip either.
func New[C dynhb.Contribution](engine *dynhb.DynamicEngine[C], proposeEvery time.Duration, payload Payload[C], sink *archive.Sink, store *batchstore.Store) *Host[C] {
	return &Host[C]{
		engine:       engine,
		proposeEvery: proposeEvery,
		payload:      payload,
		archive:      sink,
		store:        store,
		inbound:      make(chan Inbound, 256),
		outbound:     make(chan Envelope, 256),
		batches:      make(chan dynhb.Batch[C], 64),
	}
}

// Outbound is the channel a transport should drain to learn what to send.
func (h *Host[C]) Outbound() <-chan Envelope { return h.outbound }

// Batches is the channel committed batches are published on, for callers
// who want them beyond what archive/store already capture.
func (h *Host[C]) Batches() <-chan dynhb.Batch[C] { return h.batches }

// Deliver hands an inbound network message to the host's single worker.
// It blocks only if the inbound queue is saturated, which signals the
// worker has fallen behind the network.
func (h *Host[C]) Deliver(from common.NodeID, msg dynhb.Message) {
	h.inbound <- Inbound{From: from, Message: msg}
}

// Run drives the host until ctx is canceled, fanning the propose ticker and
// the inbound queue into the single goroutine that touches the engine.
func (h *Host[C]) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	ticker := time.NewTicker(h.proposeEvery)
	defer ticker.Stop()

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := h.tryPropose(ctx); err != nil {
					return err
				}
			case in := <-h.inbound:
				if err := h.handle(ctx, in); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (h *Host[C]) tryPropose(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine.Terminated() {
		return nil
	}
	if !h.engine.ShouldPropose() {
		return nil
	}
	payload, ok := h.payload()
	if !ok {
		return nil
	}
	step, err := h.engine.Propose(payload)
	if err != nil {
		return fmt.Errorf("hostd: propose: %w", err)
	}
	return h.publish(ctx, step)
}

func (h *Host[C]) handle(ctx context.Context, in Inbound) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine.Terminated() {
		return nil
	}
	step, err := h.engine.HandleMessage(in.From, in.Message)
	if err != nil {
		return fmt.Errorf("hostd: handle message from %s: %w", in.From.Hex(), err)
	}
	return h.publish(ctx, step)
}

func (h *Host[C]) publish(ctx context.Context, step dynhb.Step[C]) error {
	for _, fault := range step.Faults.Faults {
		xlog.Warn("hostd: fault observed", "node", fault.Node.Hex(), "kind", fault.Kind.String(), "reason", fault.Reason)
	}
	for _, out := range step.Messages {
		env := Envelope{Message: out.Message}
		if out.Target.All {
			env.Broadcast = true
		} else {
			env.UnicastTo = out.Target.NodeID
		}
		select {
		case h.outbound <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, batch := range step.Batches {
		if err := h.recordBatch(ctx, batch); err != nil {
			return err
		}
		select {
		case h.batches <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *Host[C]) recordBatch(ctx context.Context, batch dynhb.Batch[C]) error {
	rec := batchstore.Record{
		Era:           uint64(batch.Epoch.Era),
		HBEpoch:       batch.Epoch.HBEpoch,
		Senders:       batchstore.SendersToHex(batch.Senders()),
		ChangeKind:    batch.Change.Kind.String(),
		NumValidators: batch.NetworkInfo.NumValidators(),
	}
	if h.store != nil {
		if err := h.store.Put(rec.Era, rec.HBEpoch, rec); err != nil {
			xlog.Warn("hostd: batchstore put failed", "era", rec.Era, "hb_epoch", rec.HBEpoch, "err", err)
		}
	}
	if h.archive != nil {
		if err := h.archive.ArchiveBatch(ctx, rec.Era, rec.HBEpoch, rec); err != nil {
			xlog.Warn("hostd: archive batch failed", "era", rec.Era, "hb_epoch", rec.HBEpoch, "err", err)
		}
	}
	return nil
}
