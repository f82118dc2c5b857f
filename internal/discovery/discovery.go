// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package discovery resolves bootstrap validator endpoints from a Route53
// hosted zone so a late joiner's host process can find a peer to request a
// JoinPlan from. It is host-side infrastructure: the deterministic core
// never looks up a network address.
package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
)

// Resolver looks up bootstrap peer endpoints published as a single TXT
// record under a hosted zone, whose value holds one comma-separated
// "<node-id-hex>=<host:port>" entry per validator.
type Resolver struct {
	client   *route53.Client
	zoneID   string
	recordFQDN string
}

// NewResolver builds a Resolver for the given hosted zone id and the fully
// qualified record name bootstrap peers are published under (e.g.
// "_dynhb-bootstrap.example.com").
func NewResolver(ctx context.Context, zoneID, recordFQDN string) (*Resolver, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery: load aws config: %w", err)
	}
	return &Resolver{
		client:     route53.NewFromConfig(cfg),
		zoneID:     zoneID,
		recordFQDN: recordFQDN,
	}, nil
}

// Peer is one bootstrap validator's advertised address.
type Peer struct {
	NodeIDHex string
	Address   string
}

// ListBootstrapPeers fetches and parses the TXT record's entries.
func (r *Resolver) ListBootstrapPeers(ctx context.Context) ([]Peer, error) {
	out, err := r.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(r.zoneID),
		StartRecordName: aws.String(r.recordFQDN),
		StartRecordType: types.RRTypeTxt,
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: list record sets: %w", err)
	}

	var peers []Peer
	for _, set := range out.ResourceRecordSets {
		if set.Type != types.RRTypeTxt || aws.ToString(set.Name) != ensureTrailingDot(r.recordFQDN) {
			continue
		}
		for _, rr := range set.ResourceRecords {
			peers = append(peers, parseTXTPeers(aws.ToString(rr.Value))...)
		}
	}
	return peers, nil
}

func parseTXTPeers(txt string) []Peer {
	txt = strings.Trim(txt, "\"")
	var peers []Peer
	for _, entry := range strings.Split(txt, ",") {
		entry = strings.TrimSpace(entry)
		idAddr := strings.SplitN(entry, "=", 2)
		if len(idAddr) != 2 {
			continue
		}
		peers = append(peers, Peer{NodeIDHex: idAddr[0], Address: idAddr[1]})
	}
	return peers
}

func ensureTrailingDot(fqdn string) string {
	if strings.HasSuffix(fqdn, ".") {
		return fqdn
	}
	return fqdn + "."
}

// PublishBootstrapPeers upserts the TXT record advertising peers, replacing
// whatever was published before.
func (r *Resolver) PublishBootstrapPeers(ctx context.Context, peers []Peer, ttl int64) error {
	entries := make([]string, len(peers))
	for i, p := range peers {
		entries[i] = fmt.Sprintf("%s=%s", p.NodeIDHex, p.Address)
	}
	value := fmt.Sprintf("%q", strings.Join(entries, ","))

	_, err := r.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.zoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action: types.ChangeActionUpsert,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name: aws.String(r.recordFQDN),
						Type: types.RRTypeTxt,
						TTL:  aws.Int64(ttl),
						ResourceRecords: []types.ResourceRecord{
							{Value: aws.String(value)},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("discovery: publish bootstrap peers: %w", err)
	}
	return nil
}
