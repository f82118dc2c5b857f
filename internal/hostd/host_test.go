// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package hostd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/consensus/dynhb"
	"github.com/hbft-labs/dynhb/crypto"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type blob []byte

func (b blob) Marshal() []byte { return []byte(b) }

func unmarshalBlob(b []byte) (blob, error) { return blob(b), nil }

func newTestHosts(t *testing.T, n int) []*Host[blob] {
	t.Helper()

	type node struct {
		id common.NodeID
		sk crypto.SecretKey
		pk crypto.PublicKey
	}
	nodes := make([]node, n)
	for i := range nodes {
		sk, err := crypto.GenerateSecretKey()
		require.NoError(t, err)
		var id common.NodeID
		id[common.NodeIDLength-1] = byte(i + 1)
		nodes[i] = node{id: id, sk: sk, pk: sk.PublicKey()}
	}
	keys := make(dynhb.PubKeyMap, n)
	for _, nd := range nodes {
		keys[nd.id] = nd.pk
	}
	shares, pks, err := crypto.GenerateThresholdShares(keys.NumFaulty(), n)
	require.NoError(t, err)

	hosts := make([]*Host[blob], n)
	for i, nd := range nodes {
		share := shares[i]
		engine, err := dynhb.NewBuilder[blob](nd.id, nd.sk, unmarshalBlob).
			Validators(keys).
			Build(pks, &share)
		require.NoError(t, err)
		hosts[i] = New[blob](engine, 5*time.Millisecond, func() (blob, bool) { return nil, true }, nil, nil)
	}
	return hosts
}

// relay wires every host's outbound channel to every other host's Deliver,
// standing in for the network transport a real node process would own.
func relay(ctx context.Context, hosts []*Host[blob]) {
	byID := make(map[common.NodeID]*Host[blob], len(hosts))
	for _, h := range hosts {
		byID[h.engine.OurID()] = h
	}
	for _, h := range hosts {
		h := h
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case env := <-h.Outbound():
					if env.Broadcast {
						for id, peer := range byID {
							if id == h.engine.OurID() {
								continue
							}
							peer.Deliver(h.engine.OurID(), env.Message)
						}
					} else {
						byID[env.UnicastTo].Deliver(h.engine.OurID(), env.Message)
					}
				}
			}
		}()
	}
}

func TestHostsCommitABatchOverTheWire(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	hosts := newTestHosts(t, 4)
	relay(ctx, hosts)

	for _, h := range hosts {
		h := h
		go func() { _ = h.Run(ctx) }()
	}

	select {
	case b := <-hosts[0].Batches():
		require.Equal(t, uint64(0), b.Epoch.HBEpoch)
	case <-ctx.Done():
		t.Fatal("timed out waiting for a committed batch")
	}
}
