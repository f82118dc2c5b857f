// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package archive optionally mirrors every batch and completed join plan a
// host process sees to Azure Blob Storage for off-box audit. It is purely
// a host-side sink: the deterministic core never calls it, and nothing
// here feeds back into consensus.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/hbft-labs/dynhb/internal/xlog"
)

// Sink uploads JSON renderings of batches and join plans to a single Azure
// Blob container.
type Sink struct {
	client    *azblob.Client
	container string
}

// NewSink builds a Sink from a container URL with an embedded SAS token
// (or, for managed-identity deployments, a bare container URL combined
// with DefaultAzureCredential — left to the caller's azblob.NewClient of
// choice).
func NewSink(containerURL string) (*Sink, error) {
	client, err := azblob.NewClientWithNoCredential(containerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: new client: %w", err)
	}
	return &Sink{client: client, container: containerName(containerURL)}, nil
}

func containerName(containerURL string) string {
	for i := len(containerURL) - 1; i >= 0; i-- {
		if containerURL[i] == '/' {
			return containerURL[i+1:]
		}
	}
	return containerURL
}

// ArchiveBatch uploads rec under a key derived from (era, hb_epoch), so a
// re-upload of the same batch (e.g. after a host restart replays it) is
// idempotent.
func (s *Sink) ArchiveBatch(ctx context.Context, era, hbEpoch uint64, rec interface{}) error {
	return s.put(ctx, fmt.Sprintf("batches/%020d/%020d.json", era, hbEpoch), rec)
}

// ArchiveJoinPlan uploads a completed JoinPlan rendering under a key
// derived from the era it hands a newcomer into.
func (s *Sink) ArchiveJoinPlan(ctx context.Context, era uint64, rec interface{}) error {
	return s.put(ctx, fmt.Sprintf("joinplans/%020d-%d.json", era, time.Now().UnixNano()), rec)
}

func (s *Sink) put(ctx context.Context, blobName string, rec interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: marshal: %w", err)
	}
	_, err = s.client.UploadBuffer(ctx, s.container, blobName, data, nil)
	if err != nil {
		xlog.Warn("archive: upload failed", "blob", blobName, "err", err)
		return fmt.Errorf("archive: upload %s: %w", blobName, err)
	}
	return nil
}
