// Copyright 2025 The keytrust Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package keytrust wires the trust engine, the key backup, the secret and room key request
// protocols and the key query updater into one core with a common lifetime.
//
// The core does not receive events itself. The embedding client forwards sync state changes,
// to-device events, decrypted events and account data, and calls AfterSync once per sync
// response:
//
//	core, err := keytrust.New(cfg, deps)
//	...
//	go core.Run(ctx)
//	core.HandleSyncState(ctx, keytrust.SyncRunning)
package keytrust

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/processmetrics"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/pkg/signatures"
	"github.com/crosstrust/keytrust/private/backup"
	"github.com/crosstrust/keytrust/private/env"
	"github.com/crosstrust/keytrust/private/keyquery"
	"github.com/crosstrust/keytrust/private/keyrequest"
	"github.com/crosstrust/keytrust/private/matrixapi"
	"github.com/crosstrust/keytrust/private/mgmtapi"
	"github.com/crosstrust/keytrust/private/notify"
	"github.com/crosstrust/keytrust/private/olm"
	"github.com/crosstrust/keytrust/private/periodic"
	"github.com/crosstrust/keytrust/private/roomkeyshare"
	"github.com/crosstrust/keytrust/private/secretshare"
	"github.com/crosstrust/keytrust/private/storage"
	"github.com/crosstrust/keytrust/private/storage/keystore"
	"github.com/crosstrust/keytrust/private/trust"
	"github.com/crosstrust/keytrust/private/trust/keychain"
	trustmetrics "github.com/crosstrust/keytrust/private/trust/metrics"
)

// Deps are the external collaborators of the core.
type Deps struct {
	API           matrixapi.Client
	Encrypter     olm.Encrypter
	DeviceSigner  olm.DeviceSigner
	Codec         olm.SessionCodec
	SecretStorage olm.SecretStorage
	// Dehydrated is optional. Without it, dehydrated device keys are never accepted.
	Dehydrated olm.DehydratedDevices
	// Store is optional. If nil, the key store described by the storage configuration is
	// opened and closed together with the core.
	Store keystore.DB
	// Registry is optional. If nil, the metrics are registered with a new registry.
	Registry *prometheus.Registry
}

// Core owns all components.
type Core struct {
	Trust    *trust.Engine
	Backup   *backup.Engine
	Secrets  *secretshare.Protocol
	RoomKeys *roomkeyshare.Protocol
	KeyQuery *keyquery.Updater

	cfg        Config
	store      keystore.DB
	ownsStore  bool
	registry   *prometheus.Registry
	tasks      *taskMetrics
	signer     olm.DeviceSigner
	links      atomic.Pointer[keychain.Cache]
	sync       *notify.Value[SyncState]
	reconciler *backup.Reconciler
	uploader   *backup.Uploader
}

// New builds the core from cfg. The configuration must be initialized and validated.
func New(cfg Config, deps Deps) (*Core, error) {
	if deps.API == nil || deps.Encrypter == nil || deps.DeviceSigner == nil ||
		deps.Codec == nil || deps.SecretStorage == nil {
		return nil, serrors.New("missing dependency")
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Core{
		cfg:      cfg,
		store:    deps.Store,
		registry: registry,
		signer:   deps.DeviceSigner,
		sync:     notify.NewValue(SyncStopped),
		tasks:    newTaskMetrics(registry),
	}
	if err := processmetrics.Register(registry); err != nil {
		log.Info("Process metrics not available", "err", err)
	}
	if c.store == nil {
		opts := newStoreMetrics(registry)
		opts.OnLinksRemoved = c.purgeLinks
		store, err := storage.NewKeyStorage(cfg.Storage, opts)
		if err != nil {
			return nil, serrors.Wrap("opening key store", err)
		}
		c.store = store
		c.ownsStore = true
	}
	links, err := keychain.New(c.store, cfg.Trust.LinkCacheSize)
	if err != nil {
		c.Close()
		return nil, serrors.Wrap("creating key chain link cache", err)
	}
	trustMetrics := trustmetrics.New(registry)
	links.Lookups = trustMetrics.LinkLookups
	c.links.Store(links)
	own := cfg.General.UserID
	device := cfg.General.DeviceID

	c.Trust = &trust.Engine{
		OwnUserID:    own,
		OwnDeviceID:  device,
		Store:        c.store,
		Links:        links,
		Secrets:      c.store,
		Verifier:     signatures.Ed25519Verifier{},
		DeviceSigner: deps.DeviceSigner,
		KeysAPI:      deps.API,
		Metrics:      trustMetrics,
	}

	backupRetry := cfg.Backup.Retry.Policy()
	backupRetry.WaitOnline = c.WaitOnline
	c.Backup = &backup.Engine{
		OwnUserID:    own,
		DeviceSigner: deps.DeviceSigner,
		Store:        c.store,
		API:          deps.API,
		AccountData:  deps.API,
		Codec:        deps.Codec,
		Secrets:      deps.SecretStorage,
		Retry:        backupRetry,
		VersionCache: cfg.Backup.Cache.New(),
		Metrics:      backup.NewMetrics(registry),
	}
	c.reconciler = &backup.Reconciler{Engine: c.Backup}
	c.uploader = &backup.Uploader{
		Engine:    c.Backup,
		Debounce:  cfg.Backup.UploadDebounce.Duration,
		BatchSize: cfg.Backup.UploadBatchSize,
	}

	c.Secrets = &secretshare.Protocol{
		OwnUserID:   own,
		OwnDeviceID: device,
		Store:       c.store,
		ToDevice:    deps.API,
		Encrypter:   deps.Encrypter,
		Backup:      c.Backup,
		Dehydrated:  deps.Dehydrated,
		Metrics:     keyrequest.NewMetrics(registry, "secret_requests"),
	}
	c.RoomKeys = &roomkeyshare.Protocol{
		OwnUserID:   own,
		OwnDeviceID: device,
		Store:       c.store,
		ToDevice:    deps.API,
		Encrypter:   deps.Encrypter,
		Codec:       deps.Codec,
		Metrics:     keyrequest.NewMetrics(registry, "room_key_requests"),
	}

	queryRetry := cfg.KeyQuery.Retry.Policy()
	queryRetry.WaitOnline = c.WaitOnline
	c.KeyQuery = &keyquery.Updater{
		Store:     c.store,
		API:       deps.API,
		Trust:     c.Trust,
		Verifier:  signatures.Ed25519Verifier{},
		Retry:     queryRetry,
		BatchSize: cfg.KeyQuery.BatchSize,
		Metrics:   keyquery.NewMetrics(registry),
	}
	return c, nil
}

// Store returns the key store of the core.
func (c *Core) Store() keystore.DB {
	return c.store
}

// Registry returns the registry holding the metrics of the core.
func (c *Core) Registry() *prometheus.Registry {
	return c.registry
}

// Run runs all background tasks until ctx is done or one of them fails.
func (c *Core) Run(ctx context.Context) error {
	start := func(task periodic.Task, period time.Duration) *periodic.Runner {
		return periodic.StartWithMetrics(task, c.tasks.forTask(task.Name()), period, period)
	}
	secretSweeper := start(&keyrequest.Sweeper{
		TaskName: "secret_request_sweeper",
		Horizon:  c.cfg.Requests.Horizon.Duration,
		Expire:   c.Secrets.CancelExpired,
	}, c.cfg.Requests.SweepInterval.Duration)
	defer secretSweeper.Kill()
	roomKeySweeper := start(&keyrequest.Sweeper{
		TaskName: "room_key_request_sweeper",
		Horizon:  c.cfg.Requests.Horizon.Duration,
		Expire:   c.RoomKeys.CancelExpired,
	}, c.cfg.Requests.SweepInterval.Duration)
	defer roomKeySweeper.Kill()
	keyQuery := start(c.KeyQuery, c.cfg.KeyQuery.Interval.Duration)
	defer keyQuery.Kill()

	g, errCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer log.HandlePanic()
		return c.reconciler.Run(errCtx)
	})
	g.Go(func() error {
		defer log.HandlePanic()
		return c.uploader.Run(errCtx)
	})
	g.Go(func() error {
		defer log.HandlePanic()
		return keyquery.TriggerOnOutdated(errCtx, c.store, keyQuery)
	})
	g.Go(func() error {
		defer log.HandlePanic()
		return c.crossSignOwnDevice(errCtx)
	})
	if c.cfg.API.Addr != "" {
		g.Go(func() error {
			defer log.HandlePanic()
			log.Info("Serving management API", "addr", c.cfg.API.Addr)
			return env.Serve(errCtx, &http.Server{
				Addr: c.cfg.API.Addr,
				Handler: mgmtapi.Handler(&mgmtapi.Server{
					Store:          c.store,
					Backup:         c.Backup,
					Gatherer:       c.registry,
					AllowedOrigins: c.cfg.API.AllowedOrigins,
				}),
			})
		})
	}
	g.Go(func() error {
		defer log.HandlePanic()
		return c.cfg.Metrics.ServePrometheus(errCtx, c.registry)
	})
	return g.Wait()
}

// Close stops the backup workers, aborts pending backup downloads and closes the key store if
// the core opened it.
func (c *Core) Close() error {
	var errs serrors.List
	ctx := context.Background()
	if c.Backup != nil {
		c.Backup.Close()
	}
	if c.reconciler != nil {
		if err := c.reconciler.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.uploader != nil {
		if err := c.uploader.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.ownsStore {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs.ToError()
}

// purgeLinks drops the cached key chain link index after the store removed links.
func (c *Core) purgeLinks() {
	if links := c.links.Load(); links != nil {
		links.Purge()
	}
}

// SyncState returns the last reported sync state.
func (c *Core) SyncState() SyncState {
	return c.sync.Get()
}

// WaitOnline blocks until the sync state reports that the server is reachable.
func (c *Core) WaitOnline(ctx context.Context) error {
	_, err := c.sync.Wait(ctx, SyncState.Online)
	return err
}

// HandleSyncState records the sync state. When sync starts running, the secrets that are
// neither cached nor requested yet are requested from the other own devices.
func (c *Core) HandleSyncState(ctx context.Context, state SyncState) {
	prev := c.sync.Get()
	c.sync.Set(state)
	if state != SyncRunning || prev == SyncRunning {
		return
	}
	if err := c.Secrets.RequestSecretKeys(ctx); err != nil {
		log.FromCtx(ctx).Info("Requesting secrets failed", "err", err)
	}
}

// HandleToDeviceEvent records incoming secret and room key requests.
func (c *Core) HandleToDeviceEvent(ctx context.Context, ev matrix.ToDeviceEvent) {
	switch ev.Type {
	case matrix.EventSecretRequest:
		c.Secrets.HandleIncomingKeyRequest(ctx, ev)
	case matrix.EventRoomKeyRequest:
		c.RoomKeys.HandleIncomingKeyRequest(ctx, ev)
	}
}

// HandleDecryptedEvent handles answers to outgoing secret and room key requests.
func (c *Core) HandleDecryptedEvent(ctx context.Context, ev matrix.DecryptedEvent) error {
	switch ev.Type {
	case matrix.EventSecretSend:
		return c.Secrets.HandleOutgoingKeyRequestAnswer(ctx, ev)
	case matrix.EventForwardedRoomKey:
		return c.RoomKeys.HandleOutgoingKeyRequestAnswer(ctx, ev)
	}
	return nil
}

// AfterSync answers the incoming requests recorded during the last sync response.
func (c *Core) AfterSync(ctx context.Context) {
	c.Secrets.ProcessIncomingKeyRequests(ctx)
	c.RoomKeys.ProcessIncomingKeyRequests(ctx)
}

// HandleAccountData stores global account data and invalidates secrets whose encrypted
// content changed.
func (c *Core) HandleAccountData(ctx context.Context, eventType string,
	content json.RawMessage) error {

	return c.Secrets.HandleAccountData(ctx, eventType, content)
}

// RequestRoomKeys requests a megolm session from the other own devices. It blocks until the
// request is answered or cleared and returns whether the session is known afterwards.
func (c *Core) RequestRoomKeys(ctx context.Context, room matrix.RoomID,
	session matrix.SessionID) (bool, error) {

	return c.RoomKeys.RequestRoomKeys(ctx, room, session)
}

// crossSignOwnDevice signs the own device with the self-signing key as soon as the key is
// cached and the device is not cross-signed yet.
func (c *Core) crossSignOwnDevice(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	secrets := c.store.SubscribeSecrets()
	defer secrets.Close()
	for {
		if err := c.signOwnDevice(ctx); err != nil && ctx.Err() == nil {
			logger.Info("Cross-signing own device failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-secrets.Updates:
		}
	}
}

func (c *Core) signOwnDevice(ctx context.Context) error {
	own := c.cfg.General.UserID
	secret, err := c.store.Secret(ctx, matrix.SecretCrossSigningSelfSigning)
	if err != nil || secret == nil {
		return err
	}
	device, err := c.store.DeviceKey(ctx, own, c.cfg.General.DeviceID)
	if err != nil || device == nil || device.Trust.IsCrossSigned() {
		return err
	}
	return c.Trust.TrustAndSignKeys(ctx, own, []matrix.Ed25519Key{c.signer.DeviceKey()})
}
