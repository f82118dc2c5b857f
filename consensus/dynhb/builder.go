// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import (
	"fmt"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/crypto"
	"github.com/hbft-labs/dynhb/internal/honeybadger"
)

// Builder assembles a DynamicEngine. The zero value is not usable; create
// one with NewBuilder.
type Builder[C Contribution] struct {
	ourID      common.NodeID
	secretKey  crypto.SecretKey
	unmarshal  func([]byte) (C, error)
	era        Era
	startEpoch uint64
	validators PubKeyMap
	params     Params
}

// NewBuilder starts a Builder for ourID, signing with secretKey and
// decoding committed contributions with unmarshal.
func NewBuilder[C Contribution](ourID common.NodeID, secretKey crypto.SecretKey, unmarshal func([]byte) (C, error)) *Builder[C] {
	return &Builder[C]{
		ourID:     ourID,
		secretKey: secretKey,
		unmarshal: unmarshal,
		params:    honeybadger.DefaultParams(),
	}
}

// Era sets the starting era. Defaults to 0.
func (b *Builder[C]) Era(era Era) *Builder[C] { b.era = era; return b }

// StartEpoch sets the starting hb_epoch within the era. Defaults to 0.
func (b *Builder[C]) StartEpoch(epoch uint64) *Builder[C] { b.startEpoch = epoch; return b }

// Validators sets the initial validator set's long-term identity keys.
func (b *Builder[C]) Validators(v PubKeyMap) *Builder[C] { b.validators = v.Clone(); return b }

// Params overrides the atomic-broadcast collaborator's tunables.
func (b *Builder[C]) Params(p Params) *Builder[C] { b.params = p; return b }

// Build assembles the engine, joining an already-established era with an
// existing threshold key set.
func (b *Builder[C]) Build(pks crypto.ThresholdPublicKeySet, ourShare *crypto.SecretKeyShare) (*DynamicEngine[C], error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	netInfo := &NetworkInfo{
		OurID:                 b.ourID,
		Validators:            b.validators.Clone(),
		ThresholdPublicKeySet: pks,
		OurSecretShare:        ourShare,
	}
	return &DynamicEngine[C]{
		ourID:       b.ourID,
		secretKey:   b.secretKey,
		unmarshal:   b.unmarshal,
		era:         b.era,
		netInfo:     netInfo,
		params:      b.params,
		hb:          honeybadger.New(b.ourID, b.validators.Keys(), uint64(b.era), b.startEpoch, b.params),
		voteCounter: NewVoteCounter(b.ourID, b.era),
	}, nil
}

// BuildFirstNode builds the engine for a single genesis validator, deriving
// a trivial (1-of-1) threshold key set locally instead of running a DKG —
// there is no one else to generate shares with. This exists purely to
// bootstrap a brand-new network; every subsequent membership change still
// goes through a real DKG run.
func (b *Builder[C]) BuildFirstNode() (*DynamicEngine[C], error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if b.validators.Len() != 1 {
		return nil, fmt.Errorf("dynhb: BuildFirstNode requires exactly one validator, got %d", b.validators.Len())
	}
	shares, pks, err := crypto.GenerateThresholdShares(1, 1)
	if err != nil {
		return nil, fmt.Errorf("dynhb: %w", err)
	}
	share := shares[0]
	return b.Build(pks, &share)
}

func (b *Builder[C]) validate() error {
	if b.unmarshal == nil {
		return fmt.Errorf("dynhb: builder requires an unmarshal function")
	}
	if b.validators.Len() == 0 {
		return fmt.Errorf("dynhb: builder requires at least one validator")
	}
	if _, ok := b.validators[b.ourID]; !ok {
		return ErrNotAValidator
	}
	return nil
}
