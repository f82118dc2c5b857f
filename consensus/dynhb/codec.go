// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import (
	"fmt"
	"sort"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/crypto"
	"github.com/hbft-labs/dynhb/internal/honeybadger"
	"github.com/hbft-labs/dynhb/internal/synckeygen"
	"github.com/hbft-labs/dynhb/wire"
)

// canonicalKeyGenMsgBytes returns the bytes a SignedKeyGenMsg's signature
// covers. Era is deliberately excluded: a Part/Ack is meaningful only in
// the context of one DKG run, identified by its dealer/acker and content,
// not by the era label attached to the message carrying it.
func canonicalKeyGenMsgBytes(msg KeyGenMessage) []byte {
	w := wire.NewWriter()
	w.Uint64(uint64(msg.Kind))
	switch msg.Kind {
	case KeyGenPart:
		encodePart(w, msg.Part)
	case KeyGenAck:
		encodeAck(w, msg.Ack)
	}
	return w.Bytes()
}

func encodePart(w *wire.Writer, p synckeygen.Part) {
	w.BytesField(p.Dealer[:])
	w.Uint64(uint64(p.Threshold))
	w.BytesField(p.MasterCommitment[:])

	shareIdx := make([]uint64, 0, len(p.ShareCommitments))
	for idx := range p.ShareCommitments {
		shareIdx = append(shareIdx, idx)
	}
	sort.Slice(shareIdx, func(i, j int) bool { return shareIdx[i] < shareIdx[j] })
	w.Uint64(uint64(len(shareIdx)))
	for _, idx := range shareIdx {
		c := p.ShareCommitments[idx]
		w.Uint64(idx)
		w.BytesField(c[:])
	}

	recipients := make([]common.NodeID, 0, len(p.SharesToParticipants))
	for id := range p.SharesToParticipants {
		recipients = append(recipients, id)
	}
	sort.Slice(recipients, func(i, j int) bool { return recipients[i].Less(recipients[j]) })
	w.Uint64(uint64(len(recipients)))
	for _, id := range recipients {
		w.BytesField(id[:])
		w.BytesField(p.SharesToParticipants[id])
	}
}

func encodeAck(w *wire.Writer, a synckeygen.Ack) {
	w.BytesField(a.Acker[:])
	w.BytesField(a.Dealer[:])
	w.Bool(a.Valid)
}

// internalContribEnvelope is the wire shape proposed to the atomic-broadcast
// collaborator each round: the user contribution's own encoding, plus the
// votes and key-gen messages riding along with it.
type internalContribEnvelope struct {
	contribBytes   []byte
	votes          []SignedVote
	keyGenMessages []SignedKeyGenMsg
}

func encodeInternalContribution[C Contribution](ic InternalContribution[C]) []byte {
	w := wire.NewWriter()
	w.BytesField(ic.Contribution.Marshal())

	w.Uint64(uint64(len(ic.Votes)))
	for _, v := range ic.Votes {
		w.BytesField(v.Voter[:])
		w.Uint64(uint64(v.Vote.Era))
		w.Uint64(v.Vote.Num)
		encodeChange(w, v.Vote.Change)
		w.BytesField(v.Signature.Bytes())
	}

	w.Uint64(uint64(len(ic.KeyGenMessages)))
	for _, m := range ic.KeyGenMessages {
		w.Uint64(uint64(m.Era))
		w.BytesField(m.Sender[:])
		w.Uint64(uint64(m.Message.Kind))
		switch m.Message.Kind {
		case KeyGenPart:
			encodePart(w, m.Message.Part)
		case KeyGenAck:
			encodeAck(w, m.Message.Ack)
		}
		w.BytesField(m.Signature.Bytes())
	}

	return w.Bytes()
}

// decodeInternalContribution parses the envelope produced by
// encodeInternalContribution, leaving the user contribution's own bytes for
// the caller to pass to its unmarshal function.
func decodeInternalContribution(raw []byte) (internalContribEnvelope, error) {
	r := wire.NewReader(raw)
	contribBytes := r.BytesField()

	numVotes := r.Uint64()
	votes := make([]SignedVote, 0, numVotes)
	for i := uint64(0); i < numVotes; i++ {
		var sv SignedVote
		copy(sv.Voter[:], r.BytesField())
		era := r.Uint64()
		num := r.Uint64()
		change := decodeChange(r)
		sigBytes := r.BytesField()
		sv.Vote = Vote{Era: Era(era), Num: num, Change: change}
		sv.Signature = parseSignatureOrZero(sigBytes)
		votes = append(votes, sv)
	}

	numKeyGen := r.Uint64()
	keyGenMsgs := make([]SignedKeyGenMsg, 0, numKeyGen)
	for i := uint64(0); i < numKeyGen; i++ {
		era := r.Uint64()
		var sender common.NodeID
		copy(sender[:], r.BytesField())
		kind := KeyGenMessageKind(r.Uint64())
		var msg KeyGenMessage
		msg.Kind = kind
		switch kind {
		case KeyGenPart:
			msg.Part = decodePart(r)
		case KeyGenAck:
			msg.Ack = decodeAck(r)
		}
		sigBytes := r.BytesField()
		keyGenMsgs = append(keyGenMsgs, SignedKeyGenMsg{
			Era:       Era(era),
			Sender:    sender,
			Message:   msg,
			Signature: parseSignatureOrZero(sigBytes),
		})
	}

	if r.Err() != nil {
		return internalContribEnvelope{}, fmt.Errorf("dynhb: decode internal contribution: %w", r.Err())
	}
	return internalContribEnvelope{contribBytes: contribBytes, votes: votes, keyGenMessages: keyGenMsgs}, nil
}

func decodeChange(r *wire.Reader) Change {
	kind := ChangeKind(r.Uint64())
	c := Change{Kind: kind}
	switch kind {
	case ChangeNodeChange:
		n := r.Uint64()
		pm := make(PubKeyMap, n)
		for i := uint64(0); i < n; i++ {
			var id common.NodeID
			copy(id[:], r.BytesField())
			pkBytes := r.BytesField()
			pk, err := parsePublicKeyOrZero(pkBytes)
			if err == nil {
				pm[id] = pk
			}
		}
		c.PubKeys = pm
	case ChangeEncryptionSchedule:
		mode := r.Uint64()
		n := r.Uint64()
		c.Schedule = EncryptionSchedule{Mode: modeFromUint64(mode), N: n}
	}
	return c
}

func parseSignatureOrZero(b []byte) crypto.Signature {
	sig, err := crypto.SignatureFromBytes(b)
	if err != nil {
		return crypto.Signature{}
	}
	return sig
}

func parsePublicKeyOrZero(b []byte) (crypto.PublicKey, error) {
	return crypto.PublicKeyFromBytes(b)
}

func modeFromUint64(v uint64) honeybadger.EncryptionMode {
	return honeybadger.EncryptionMode(v)
}

func decodePart(r *wire.Reader) synckeygen.Part {
	var p synckeygen.Part
	copy(p.Dealer[:], r.BytesField())
	p.Threshold = int(r.Uint64())
	copy(p.MasterCommitment[:], r.BytesField())

	numCommits := r.Uint64()
	p.ShareCommitments = make(map[uint64][32]byte, numCommits)
	for i := uint64(0); i < numCommits; i++ {
		idx := r.Uint64()
		var c [32]byte
		copy(c[:], r.BytesField())
		p.ShareCommitments[idx] = c
	}

	numShares := r.Uint64()
	p.SharesToParticipants = make(map[common.NodeID][]byte, numShares)
	for i := uint64(0); i < numShares; i++ {
		var id common.NodeID
		copy(id[:], r.BytesField())
		p.SharesToParticipants[id] = r.BytesField()
	}
	return p
}

func decodeAck(r *wire.Reader) synckeygen.Ack {
	var a synckeygen.Ack
	copy(a.Acker[:], r.BytesField())
	copy(a.Dealer[:], r.BytesField())
	a.Valid = r.Bool()
	return a
}
