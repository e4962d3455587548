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

// Package secretshare requests missing secrets from the other devices of the own user and
// answers their requests.
//
// Requests only go to devices that are cross-signed and verified. An answer is accepted if it
// comes from a known and verified own device that the request was sent to, and if the secret
// passes the check of its kind. Requests of other devices are collected per sync and answered
// if the requesting device is verified and the secret is cached.
package secretshare

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/pkg/signatures"
	"github.com/crosstrust/keytrust/private/keyrequest"
	"github.com/crosstrust/keytrust/private/matrixapi"
	"github.com/crosstrust/keytrust/private/olm"
	"github.com/crosstrust/keytrust/private/storage/keystore"
)

// Store is the part of the key store the protocol uses.
type Store interface {
	keyrequest.DeviceStore
	keystore.SecretStore
	keystore.SecretRequestStore
	CrossSigningKey(ctx context.Context, user matrix.UserID,
		usage matrix.KeyUsage) (*matrix.StoredCrossSigningKey, error)
}

// BackupVersions looks up the current backup version on the server.
type BackupVersions interface {
	ServerVersion(ctx context.Context) (*matrix.BackupVersion, error)
}

// Protocol implements both directions of secret sharing.
type Protocol struct {
	OwnUserID   matrix.UserID
	OwnDeviceID matrix.DeviceID
	Store       Store
	ToDevice    matrixapi.ToDeviceAPI
	Encrypter   olm.Encrypter
	// Backup is used to check received backup keys. If nil, backup keys are rejected.
	Backup BackupVersions
	// Dehydrated is used to check received dehydrated device keys. If nil, they are rejected.
	Dehydrated olm.DehydratedDevices
	Metrics    keyrequest.Metrics
	// Now defaults to time.Now.
	Now func() time.Time

	// mu serializes changes to the outgoing requests.
	mu       sync.Mutex
	incoming keyrequest.Pending[matrix.SecretKeyRequest]
}

// RequestSecretKeys requests every known secret that is neither cached nor already requested.
// The requests go to all other own devices that are cross-signed and verified. Without such a
// device nothing is sent.
func (p *Protocol) RequestSecretKeys(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := log.FromCtx(ctx)
	missing, err := p.missingSecrets(ctx)
	if err != nil {
		keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.ErrDB)
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	receivers, err := keyrequest.SelectReceivers(ctx, p.Store, p.OwnUserID, p.OwnDeviceID)
	if err != nil {
		keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.ErrDB)
		return err
	}
	if len(receivers) == 0 {
		logger.Debug("No device to request secrets from", "missing", missing)
		keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.OkNoReceivers)
		return nil
	}
	var errs serrors.List
	for _, typ := range missing {
		content := matrix.SecretKeyRequest{
			Name:               typ,
			Action:             matrix.ActionRequest,
			RequestingDeviceID: p.OwnDeviceID,
			RequestID:          keyrequest.NewRequestID(),
		}
		if err := keyrequest.SendToDevices(ctx, p.ToDevice, matrix.EventSecretRequest,
			p.OwnUserID, receivers, content); err != nil {

			keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.ErrNetwork)
			errs = append(errs, serrors.Wrap("requesting secret", err, "type", typ))
			continue
		}
		if err := p.Store.AddSecretKeyRequest(ctx, matrix.StoredSecretKeyRequest{
			Content:           content,
			ReceiverDeviceIDs: receivers,
			CreatedAt:         p.now(),
		}); err != nil {
			keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.ErrDB)
			errs = append(errs, serrors.Wrap("storing request", err, "type", typ))
			continue
		}
		logger.Debug("Requested secret", "type", typ, "request_id", content.RequestID,
			"receivers", receivers)
		keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.Success)
	}
	return errs.ToError()
}

func (p *Protocol) missingSecrets(ctx context.Context) ([]matrix.SecretType, error) {
	cached, err := p.Store.Secrets(ctx)
	if err != nil {
		return nil, serrors.Wrap("loading secrets", err)
	}
	requests, err := p.Store.SecretKeyRequests(ctx)
	if err != nil {
		return nil, serrors.Wrap("loading requests", err)
	}
	requested := make(map[matrix.SecretType]bool, len(requests))
	for _, r := range requests {
		requested[r.Content.Name] = true
	}
	var missing []matrix.SecretType
	for _, typ := range matrix.SecretTypes {
		if _, ok := cached[typ]; ok || requested[typ] {
			continue
		}
		missing = append(missing, typ)
	}
	return missing, nil
}

// HandleOutgoingKeyRequestAnswer handles a decrypted m.secret.send event. Answers that fail any
// check are dropped without error. An accepted secret is cached and the request is cancelled
// at all other receivers.
func (p *Protocol) HandleOutgoingKeyRequestAnswer(ctx context.Context,
	ev matrix.DecryptedEvent) error {

	if ev.Type != matrix.EventSecretSend {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := log.FromCtx(ctx)
	drop := func(result, msg string, errCtx ...any) error {
		keyrequest.Count(p.Metrics.Answers, result)
		logger.Debug(msg, errCtx...)
		return nil
	}
	var content matrix.SecretKeySend
	if err := json.Unmarshal(ev.Content, &content); err != nil {
		return drop(keyrequest.ErrInternal, "Ignoring malformed secret", "err", err)
	}
	if ev.Sender != p.OwnUserID {
		return drop(keyrequest.ErrUnknownSender, "Ignoring secret from other user",
			"sender", ev.Sender)
	}
	sender, err := keyrequest.ResolveSender(ctx, p.Store, p.OwnUserID, ev.SenderSigningKey)
	if err != nil {
		keyrequest.Count(p.Metrics.Answers, keyrequest.ErrDB)
		return err
	}
	if sender == nil {
		return drop(keyrequest.ErrUnknownSender, "Ignoring secret from unknown device",
			"request_id", content.RequestID)
	}
	device := sender.Value.DeviceID
	if !sender.Trust.IsVerified() {
		return drop(keyrequest.ErrNotVerified, "Ignoring secret from unverified device",
			"device", device, "request_id", content.RequestID)
	}
	req, err := p.Store.SecretKeyRequest(ctx, content.RequestID)
	if err != nil {
		keyrequest.Count(p.Metrics.Answers, keyrequest.ErrDB)
		return serrors.Wrap("loading request", err, "request_id", content.RequestID)
	}
	if req == nil || !matrix.HasReceiver(req.ReceiverDeviceIDs, device) {
		return drop(keyrequest.ErrNotRequested, "Ignoring secret that was not requested",
			"device", device, "request_id", content.RequestID)
	}
	typ := req.Content.Name
	check, ok := kinds[typ]
	if !ok {
		return drop(keyrequest.ErrUnknownKind, "Ignoring secret of unknown type",
			"type", typ)
	}
	authentic, err := check(ctx, p, content.Secret)
	if err != nil {
		keyrequest.Count(p.Metrics.Answers, keyrequest.ErrInternal)
		return serrors.Wrap("checking secret", err, "type", typ)
	}
	if !authentic {
		return drop(keyrequest.ErrNotAuthentic, "Ignoring secret that failed its check",
			"type", typ, "device", device)
	}

	origin, err := p.Store.GlobalAccountData(ctx, string(typ))
	if err != nil {
		keyrequest.Count(p.Metrics.Answers, keyrequest.ErrDB)
		return serrors.Wrap("loading account data", err, "type", typ)
	}
	if err := p.Store.SetSecret(ctx, typ, matrix.StoredSecret{
		Origin:              origin,
		DecryptedPrivateKey: content.Secret,
	}); err != nil {
		keyrequest.Count(p.Metrics.Answers, keyrequest.ErrDB)
		return serrors.Wrap("storing secret", err, "type", typ)
	}
	keyrequest.Count(p.Metrics.Answers, keyrequest.Success)
	logger.Info("Received secret", "type", typ, "device", device)
	return p.cancel(ctx, *req, device)
}

// cancel sends a cancellation to all receivers of the request except skip, and deletes it.
func (p *Protocol) cancel(ctx context.Context, req matrix.StoredSecretKeyRequest,
	skip matrix.DeviceID) error {

	receivers := keyrequest.Without(req.ReceiverDeviceIDs, skip)
	content := matrix.SecretKeyRequest{
		Action:             matrix.ActionRequestCancellation,
		RequestingDeviceID: p.OwnDeviceID,
		RequestID:          req.Content.RequestID,
	}
	if err := keyrequest.SendToDevices(ctx, p.ToDevice, matrix.EventSecretRequest,
		p.OwnUserID, receivers, content); err != nil {

		keyrequest.Count(p.Metrics.Cancellations, keyrequest.ErrNetwork)
		return serrors.Wrap("cancelling request", err, "request_id", req.Content.RequestID)
	}
	if err := p.Store.DeleteSecretKeyRequest(ctx, req.Content.RequestID); err != nil {
		keyrequest.Count(p.Metrics.Cancellations, keyrequest.ErrDB)
		return serrors.Wrap("deleting request", err, "request_id", req.Content.RequestID)
	}
	keyrequest.Count(p.Metrics.Cancellations, keyrequest.Success)
	return nil
}

// CancelExpired cancels all outgoing requests created before the given time.
func (p *Protocol) CancelExpired(ctx context.Context, before time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelWhere(ctx, func(r matrix.StoredSecretKeyRequest) bool {
		return r.CreatedAt.Before(before)
	})
}

func (p *Protocol) cancelWhere(ctx context.Context,
	pred func(matrix.StoredSecretKeyRequest) bool) (int, error) {

	requests, err := p.Store.SecretKeyRequests(ctx)
	if err != nil {
		return 0, serrors.Wrap("loading requests", err)
	}
	var errs serrors.List
	n := 0
	for _, r := range requests {
		if !pred(r) {
			continue
		}
		if err := p.cancel(ctx, r, ""); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errs.ToError()
}

// HandleAccountData stores global account data. If the content of a secret's account data
// changed, the cached secret is evicted and outstanding requests for it are cancelled.
func (p *Protocol) HandleAccountData(ctx context.Context, eventType string,
	content json.RawMessage) error {

	p.mu.Lock()
	defer p.mu.Unlock()

	prev, err := p.Store.GlobalAccountData(ctx, eventType)
	if err != nil {
		return serrors.Wrap("loading account data", err, "type", eventType)
	}
	if err := p.Store.SetGlobalAccountData(ctx, eventType, content); err != nil {
		return serrors.Wrap("storing account data", err, "type", eventType)
	}
	typ, ok := matrix.ParseSecretType(eventType)
	if !ok {
		return nil
	}
	cached, err := p.Store.Secret(ctx, typ)
	if err != nil {
		return serrors.Wrap("loading secret", err, "type", typ)
	}
	changed := !signatures.Equal(prev, content)
	if cached != nil {
		changed = !signatures.Equal(cached.Origin, content)
	}
	if !changed {
		return nil
	}
	logger := log.FromCtx(ctx)
	if cached != nil {
		if err := p.Store.DeleteSecret(ctx, typ); err != nil {
			return serrors.Wrap("evicting secret", err, "type", typ)
		}
		logger.Info("Evicted secret after account data change", "type", typ)
	}
	n, err := p.cancelWhere(ctx, func(r matrix.StoredSecretKeyRequest) bool {
		return r.Content.Name == typ
	})
	if n > 0 {
		logger.Info("Cancelled requests after account data change", "type", typ, "count", n)
	}
	return err
}

// HandleIncomingKeyRequest records an m.secret.request event of another own device. Requests
// are added, cancellations remove the request with the same ID.
func (p *Protocol) HandleIncomingKeyRequest(ctx context.Context, ev matrix.ToDeviceEvent) {
	if ev.Type != matrix.EventSecretRequest || ev.Sender != p.OwnUserID {
		return
	}
	var content matrix.SecretKeyRequest
	if err := json.Unmarshal(ev.Content, &content); err != nil {
		log.FromCtx(ctx).Debug("Ignoring malformed secret request", "err", err)
		return
	}
	if content.RequestingDeviceID == p.OwnDeviceID || content.RequestID == "" {
		return
	}
	k := keyrequest.Key{
		User:      ev.Sender,
		Device:    content.RequestingDeviceID,
		RequestID: content.RequestID,
	}
	switch content.Action {
	case matrix.ActionRequest:
		p.incoming.Add(k, content)
	case matrix.ActionRequestCancellation:
		p.incoming.Remove(k)
	}
}

// ProcessIncomingKeyRequests answers all pending incoming requests. Every request is processed
// once, whether it is answered or not.
func (p *Protocol) ProcessIncomingKeyRequests(ctx context.Context) {
	logger := log.FromCtx(ctx)
	for _, e := range p.incoming.Drain() {
		result, err := p.answer(ctx, e.Key, e.Request)
		keyrequest.Count(p.Metrics.IncomingRequests, result)
		if err != nil {
			logger.Info("Answering secret request failed", "device", e.Key.Device,
				"request_id", e.Key.RequestID, "err", err)
		}
	}
}

func (p *Protocol) answer(ctx context.Context, k keyrequest.Key,
	req matrix.SecretKeyRequest) (string, error) {

	logger := log.FromCtx(ctx)
	verified, err := keyrequest.IsVerified(ctx, p.Store, k.User, k.Device)
	if err != nil {
		return keyrequest.ErrDB, err
	}
	if !verified {
		logger.Debug("Not answering secret request of unverified device",
			"device", k.Device, "type", req.Name)
		return keyrequest.ErrNotVerified, nil
	}
	if _, ok := kinds[req.Name]; !ok {
		return keyrequest.ErrUnknownKind, nil
	}
	secret, err := p.Store.Secret(ctx, req.Name)
	if err != nil {
		return keyrequest.ErrDB, serrors.Wrap("loading secret", err, "type", req.Name)
	}
	if secret == nil {
		return keyrequest.ErrNotFound, nil
	}
	raw, err := json.Marshal(matrix.SecretKeySend{
		RequestID: req.RequestID,
		Secret:    secret.DecryptedPrivateKey,
	})
	if err != nil {
		return keyrequest.ErrInternal, serrors.Wrap("encoding secret", err)
	}
	encrypted, err := p.Encrypter.EncryptDirect(ctx, k.User, k.Device,
		matrix.EventSecretSend, raw)
	if err != nil {
		return keyrequest.ErrInternal, serrors.Wrap("encrypting secret", err)
	}
	if err := p.ToDevice.SendToDevice(ctx, matrix.EventEncrypted,
		map[matrix.UserID]map[matrix.DeviceID]json.RawMessage{
			k.User: {k.Device: encrypted},
		}); err != nil {

		return keyrequest.ErrNetwork, serrors.Wrap("sending secret", err)
	}
	logger.Info("Sent secret", "type", req.Name, "device", k.Device)
	return keyrequest.Success, nil
}

func (p *Protocol) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
