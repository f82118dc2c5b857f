// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/consensus/dynhb"
	"github.com/hbft-labs/dynhb/crypto"
	"github.com/hbft-labs/dynhb/internal/archive"
	"github.com/hbft-labs/dynhb/internal/discovery"
	"github.com/hbft-labs/dynhb/internal/hostd"
	"github.com/hbft-labs/dynhb/internal/hostd/batchstore"
	"github.com/hbft-labs/dynhb/internal/xlog"
	"github.com/hbft-labs/dynhb/params"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "drive a validator: propose on a timer, route inbound messages, archive batches",
	Flags: []cli.Flag{
		configFlag,
		idFlag,
		secretKeyFlag,
		&cli.StringFlag{Name: "join-plan", Usage: "path to a join-plan file (omit only for a single-validator genesis)"},
		&cli.BoolFlag{Name: "wait-for-joinplan", Usage: "if --join-plan doesn't exist yet, watch its directory until a publisher writes it instead of failing immediately"},
		&cli.StringFlag{Name: "share-file", Usage: "path to this node's 32-byte threshold secret key share, if it already has one"},
		&cli.DurationFlag{Name: "propose-every", Value: 2 * time.Second, Usage: "how often to attempt a new proposal"},
	},
	Action: runAction,
}

func runAction(c *cli.Context) error {
	cfg, err := params.LoadFile(c.String(configFlag.Name))
	if err != nil {
		return err
	}
	mustXlogLevel(cfg.LogLevel)
	if cfg.LogFile != "" {
		xlog.EnableRotatingFile(xlog.RotatingFileConfig{
			Path:       cfg.LogFile,
			MaxSizeMB:  cfg.LogFileMaxSizeMB,
			MaxBackups: cfg.LogFileMaxBackups,
			MaxAgeDays: cfg.LogFileMaxAgeDays,
			Compress:   cfg.LogFileCompress,
		})
	}

	ourID := common.HexToNodeID(c.String(idFlag.Name))
	secretKey, err := loadSecretKey(c.String(secretKeyFlag.Name))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine, err := buildEngine(ctx, c, cfg, ourID, secretKey)
	if err != nil {
		return err
	}

	var sink *archive.Sink
	if cfg.ArchiveContainerURL != "" {
		sink, err = archive.NewSink(cfg.ArchiveContainerURL)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	store, err := batchstore.Open(filepath.Join(cfg.DataDir, "batches"))
	if err != nil {
		return fmt.Errorf("batchstore: %w", err)
	}
	defer store.Close()

	payloads := newStdinPayloads()
	defer payloads.close()

	host := hostd.New[textPayload](engine, c.Duration("propose-every"), payloads.next, sink, store)

	go drainAndPersistJoinPlans(ctx, host, filepath.Join(cfg.DataDir, "joinplan.json"))
	go logOutbound(ctx, host)
	if cfg.DiscoveryZoneID != "" && cfg.DiscoveryDomain != "" {
		go publishBootstrapRecord(ctx, cfg, ourID)
	}

	xlog.Info("dynhb-node starting", "id", ourID.Hex(), "era", engine.Era())
	err = host.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildEngine(ctx context.Context, c *cli.Context, cfg params.Config, ourID common.NodeID, secretKey crypto.SecretKey) (*dynhb.DynamicEngine[textPayload], error) {
	if planPath := c.String("join-plan"); planPath != "" {
		if c.Bool("wait-for-joinplan") {
			if err := waitForFile(ctx, planPath); err != nil {
				return nil, fmt.Errorf("waiting for join plan: %w", err)
			}
		}
		data, err := os.ReadFile(planPath)
		if err != nil {
			return nil, fmt.Errorf("reading join plan: %w", err)
		}
		plan, err := unmarshalJoinPlan(data)
		if err != nil {
			return nil, err
		}
		var share *crypto.SecretKeyShare
		if sf := c.String("share-file"); sf != "" {
			s, err := loadShare(sf)
			if err != nil {
				return nil, err
			}
			share = &s
		}
		engine, pending, err := dynhb.NewJoining[textPayload](plan, ourID, secretKey, share, unmarshalTextPayload)
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			xlog.Info("joining node queued key-gen messages to announce on first propose", "count", len(pending))
		}
		return engine, nil
	}

	validators, err := cfg.GenesisPubKeyMap()
	if err != nil {
		return nil, err
	}
	builder := dynhb.NewBuilder[textPayload](ourID, secretKey, unmarshalTextPayload).
		Validators(validators).
		Params(cfg.HoneyBadgerParams())

	if validators.Len() == 1 {
		return builder.BuildFirstNode()
	}
	return nil, fmt.Errorf("run: multiple genesis validators require --join-plan (only a lone genesis validator can bootstrap without one)")
}

// waitForFile blocks until path exists, watching its parent directory with
// fsnotify rather than polling. Pairs with export-joinplan: a newcomer can be
// started with --join-plan pointed at a bootstrap directory before the file
// a running validator will eventually write there exists.
func waitForFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	// The file may have been written between the Stat above and Add
	// registering the watch.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify: watcher closed")
			}
			if (event.Op&(fsnotify.Create|fsnotify.Write) != 0) && filepath.Clean(event.Name) == target {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify: watcher closed")
			}
			return fmt.Errorf("fsnotify: %w", err)
		}
	}
}

func loadSecretKey(path string) (crypto.SecretKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return crypto.SecretKey{}, fmt.Errorf("reading secret key file: %w", err)
	}
	return crypto.SecretKeyFromBytes(data)
}

func loadShare(path string) (crypto.SecretKeyShare, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return crypto.SecretKeyShare{}, fmt.Errorf("reading share file: %w", err)
	}
	var view struct {
		Index uint64 `json:"index"`
		Share string `json:"share"`
	}
	if err := json.Unmarshal(data, &view); err != nil {
		return crypto.SecretKeyShare{}, fmt.Errorf("parsing share file: %w", err)
	}
	return crypto.SecretKeyShareFromBytes(view.Index, common.FromHex(view.Share))
}

// drainAndPersistJoinPlans writes out the latest completed join plan
// whenever the engine closes a change, so export-joinplan always has a
// fresh file to copy from its watched directory.
func drainAndPersistJoinPlans(ctx context.Context, host *hostd.Host[textPayload], path string) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-host.Batches():
			if !ok {
				return
			}
			if batch.Change.Kind != dynhb.ChangeStateComplete {
				continue
			}
			data, err := marshalJoinPlan(batch.JoinPlan())
			if err != nil {
				xlog.Warn("failed to render join plan", "err", err)
				continue
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				xlog.Warn("failed to write join plan", "path", path, "err", err)
			}
		}
	}
}

// publishBootstrapRecord keeps this node's own listen address published
// under the configured Route53 zone so a late joiner's discovery.Resolver
// can find it, re-publishing at half the record's TTL since Route53 carries
// no renewal of its own. Failures are logged, not fatal: discovery is
// bootstrap convenience, never a dependency of consensus progress.
func publishBootstrapRecord(ctx context.Context, cfg params.Config, ourID common.NodeID) {
	resolver, err := discovery.NewResolver(ctx, cfg.DiscoveryZoneID, cfg.DiscoveryDomain)
	if err != nil {
		xlog.Warn("discovery: failed to build resolver", "err", err)
		return
	}
	ttl := cfg.DiscoveryTTL
	if ttl <= 0 {
		ttl = 60
	}
	ticker := time.NewTicker(time.Duration(ttl/2) * time.Second)
	defer ticker.Stop()

	publish := func() {
		peers, err := resolver.ListBootstrapPeers(ctx)
		if err != nil {
			xlog.Warn("discovery: failed to list bootstrap peers", "err", err)
			peers = nil
		}
		peers = upsertSelf(peers, ourID, cfg.ListenAddr)
		if err := resolver.PublishBootstrapPeers(ctx, peers, ttl); err != nil {
			xlog.Warn("discovery: failed to publish bootstrap record", "err", err)
		}
	}

	publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}

// upsertSelf replaces any existing entry for ourID with our current
// address, appending a new entry if we weren't already published.
func upsertSelf(peers []discovery.Peer, ourID common.NodeID, addr string) []discovery.Peer {
	self := discovery.Peer{NodeIDHex: ourID.Hex(), Address: addr}
	for i, p := range peers {
		if p.NodeIDHex == self.NodeIDHex {
			peers[i] = self
			return peers
		}
	}
	return append(peers, self)
}

func logOutbound(ctx context.Context, host *hostd.Host[textPayload]) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-host.Outbound():
			if !ok {
				return
			}
			target := env.UnicastTo.Hex()
			if env.Broadcast {
				target = "*"
			}
			xlog.Debug("outbound message", "target", target, "kind", env.Message.Kind)
		}
	}
}

// stdinPayloads turns newline-delimited stdin input into the textPayload
// values the engine proposes, matching the teacher's style of feeding a
// long-running loop from an operator-facing console.
type stdinPayloads struct {
	mu      sync.Mutex
	pending []textPayload
	done    chan struct{}
}

func newStdinPayloads() *stdinPayloads {
	p := &stdinPayloads{done: make(chan struct{})}
	go p.readLoop()
	return p
}

func (p *stdinPayloads) readLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.mu.Lock()
		p.pending = append(p.pending, textPayload(line))
		p.mu.Unlock()
	}
	close(p.done)
}

func (p *stdinPayloads) next() (textPayload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil, false
	}
	next := p.pending[0]
	p.pending = p.pending[1:]
	return next, true
}

func (p *stdinPayloads) close() {}
