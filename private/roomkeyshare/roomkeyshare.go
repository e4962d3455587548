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

// Package roomkeyshare requests megolm room keys from the other devices of the own user and
// answers their requests.
//
// It follows the rules of secret sharing. A requested session is identified by its room and
// session ID. A forwarded key is accepted only if it imports and extends the known history of
// the session, that is if its first known index is lower than the one of the stored session.
package roomkeyshare

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/keyrequest"
	"github.com/crosstrust/keytrust/private/matrixapi"
	"github.com/crosstrust/keytrust/private/olm"
	"github.com/crosstrust/keytrust/private/storage/keystore"
)

// ErrNoReceivers is returned if no own device can be asked for a room key.
var ErrNoReceivers = serrors.New("no verified device to request from")

// Store is the part of the key store the protocol uses.
type Store interface {
	keyrequest.DeviceStore
	keystore.RoomKeyRequestStore
	keystore.MegolmSessionStore
}

// Protocol implements both directions of room key sharing.
type Protocol struct {
	OwnUserID   matrix.UserID
	OwnDeviceID matrix.DeviceID
	Store       Store
	ToDevice    matrixapi.ToDeviceAPI
	Encrypter   olm.Encrypter
	Codec       olm.SessionCodec
	Metrics     keyrequest.Metrics
	// Now defaults to time.Now.
	Now func() time.Time

	mu       sync.Mutex
	incoming keyrequest.Pending[matrix.RoomKeyRequest]
}

// RequestRoomKeys requests the session from all other own devices that are cross-signed and
// verified, and blocks until the request is answered or cleared otherwise. An outstanding
// request for the same session is joined instead of sending a new one. It returns whether the
// session is known once the request is gone.
func (p *Protocol) RequestRoomKeys(ctx context.Context, room matrix.RoomID,
	session matrix.SessionID) (bool, error) {

	sub := p.Store.SubscribeRoomKeyRequests()
	defer sub.Close()

	id, err := p.request(ctx, room, session)
	if err != nil {
		return false, err
	}
	for {
		req, err := p.Store.RoomKeyRequest(ctx, id)
		if err != nil {
			return false, serrors.Wrap("loading request", err, "request_id", id)
		}
		if req == nil {
			break
		}
		select {
		case <-sub.Updates:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	s, err := p.Store.InboundMegolmSession(ctx, room, session)
	if err != nil {
		return false, serrors.Wrap("loading session", err, "room", room, "session", session)
	}
	return s != nil, nil
}

func (p *Protocol) request(ctx context.Context, room matrix.RoomID,
	session matrix.SessionID) (string, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	existing, err := p.findRequest(ctx, room, session)
	if err != nil {
		keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.ErrDB)
		return "", err
	}
	if existing != nil {
		return existing.Content.RequestID, nil
	}
	receivers, err := keyrequest.SelectReceivers(ctx, p.Store, p.OwnUserID, p.OwnDeviceID)
	if err != nil {
		keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.ErrDB)
		return "", err
	}
	if len(receivers) == 0 {
		keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.OkNoReceivers)
		return "", serrors.JoinNoStack(ErrNoReceivers, nil, "room", room, "session", session)
	}
	content := matrix.RoomKeyRequest{
		Action: matrix.ActionRequest,
		Body: &matrix.RoomKeyRequestBody{
			Algorithm: matrix.AlgorithmMegolm,
			RoomID:    room,
			SessionID: session,
		},
		RequestingDeviceID: p.OwnDeviceID,
		RequestID:          keyrequest.NewRequestID(),
	}
	if err := keyrequest.SendToDevices(ctx, p.ToDevice, matrix.EventRoomKeyRequest,
		p.OwnUserID, receivers, content); err != nil {

		keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.ErrNetwork)
		return "", serrors.Wrap("requesting room key", err, "room", room, "session", session)
	}
	if err := p.Store.AddRoomKeyRequest(ctx, matrix.StoredRoomKeyRequest{
		Content:           content,
		ReceiverDeviceIDs: receivers,
		CreatedAt:         p.now(),
	}); err != nil {
		keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.ErrDB)
		return "", serrors.Wrap("storing request", err, "room", room, "session", session)
	}
	log.FromCtx(ctx).Debug("Requested room key", "room", room, "session", session,
		"request_id", content.RequestID, "receivers", receivers)
	keyrequest.Count(p.Metrics.OutgoingRequests, keyrequest.Success)
	return content.RequestID, nil
}

func (p *Protocol) findRequest(ctx context.Context, room matrix.RoomID,
	session matrix.SessionID) (*matrix.StoredRoomKeyRequest, error) {

	requests, err := p.Store.RoomKeyRequests(ctx)
	if err != nil {
		return nil, serrors.Wrap("loading requests", err)
	}
	for _, r := range requests {
		if b := r.Content.Body; b != nil && b.RoomID == room && b.SessionID == session {
			return &r, nil
		}
	}
	return nil, nil
}

// HandleOutgoingKeyRequestAnswer handles a decrypted m.forwarded_room_key event. Keys that
// fail any check are dropped without error. An accepted key is stored and the request is
// cancelled at all other receivers.
func (p *Protocol) HandleOutgoingKeyRequestAnswer(ctx context.Context,
	ev matrix.DecryptedEvent) error {

	if ev.Type != matrix.EventForwardedRoomKey {
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
	var content matrix.ForwardedRoomKey
	if err := json.Unmarshal(ev.Content, &content); err != nil {
		return drop(keyrequest.ErrInternal, "Ignoring malformed room key", "err", err)
	}
	if ev.Sender != p.OwnUserID {
		return drop(keyrequest.ErrUnknownSender, "Ignoring room key from other user",
			"sender", ev.Sender)
	}
	sender, err := keyrequest.ResolveSender(ctx, p.Store, p.OwnUserID, ev.SenderSigningKey)
	if err != nil {
		keyrequest.Count(p.Metrics.Answers, keyrequest.ErrDB)
		return err
	}
	if sender == nil {
		return drop(keyrequest.ErrUnknownSender, "Ignoring room key from unknown device",
			"room", content.RoomID, "session", content.SessionID)
	}
	device := sender.Value.DeviceID
	if !sender.Trust.IsVerified() {
		return drop(keyrequest.ErrNotVerified, "Ignoring room key from unverified device",
			"device", device, "session", content.SessionID)
	}
	req, err := p.findRequest(ctx, content.RoomID, content.SessionID)
	if err != nil {
		keyrequest.Count(p.Metrics.Answers, keyrequest.ErrDB)
		return err
	}
	if req == nil || !matrix.HasReceiver(req.ReceiverDeviceIDs, device) {
		return drop(keyrequest.ErrNotRequested, "Ignoring room key that was not requested",
			"device", device, "room", content.RoomID, "session", content.SessionID)
	}
	if content.Algorithm != matrix.AlgorithmMegolm {
		return drop(keyrequest.ErrUnknownKind, "Ignoring room key of unknown algorithm",
			"algorithm", content.Algorithm)
	}
	imported, err := p.Codec.ImportSession(content.SessionKey)
	if err != nil {
		return drop(keyrequest.ErrNotAuthentic, "Ignoring room key that does not import",
			"session", content.SessionID, "err", err)
	}
	known, err := p.Store.InboundMegolmSession(ctx, content.RoomID, content.SessionID)
	if err != nil {
		keyrequest.Count(p.Metrics.Answers, keyrequest.ErrDB)
		return serrors.Wrap("loading session", err, "session", content.SessionID)
	}
	if known != nil && imported.FirstKnownIndex >= known.FirstKnownIndex {
		return drop(keyrequest.ErrNotAuthentic, "Ignoring room key without more history",
			"session", content.SessionID, "index", imported.FirstKnownIndex,
			"known_index", known.FirstKnownIndex)
	}
	chain := append(append([]string{}, content.ForwardingCurve25519KeyChain...),
		ev.SenderIdentityKey)
	stored, err := p.Store.MergeInboundMegolmSession(ctx, matrix.StoredInboundMegolmSession{
		SenderKey:                    content.SenderKey,
		SenderSigningKey:             content.SenderClaimedEd25519Key,
		SessionID:                    content.SessionID,
		RoomID:                       content.RoomID,
		FirstKnownIndex:              imported.FirstKnownIndex,
		ForwardingCurve25519KeyChain: chain,
		Pickled:                      imported.Pickled,
	})
	if err != nil {
		keyrequest.Count(p.Metrics.Answers, keyrequest.ErrDB)
		return serrors.Wrap("storing session", err, "session", content.SessionID)
	}
	if !stored {
		return drop(keyrequest.ErrNotAuthentic, "Ignoring room key without more history",
			"session", content.SessionID)
	}
	keyrequest.Count(p.Metrics.Answers, keyrequest.Success)
	logger.Info("Received room key", "room", content.RoomID, "session", content.SessionID,
		"device", device, "index", imported.FirstKnownIndex)
	return p.cancel(ctx, *req, device)
}

func (p *Protocol) cancel(ctx context.Context, req matrix.StoredRoomKeyRequest,
	skip matrix.DeviceID) error {

	receivers := keyrequest.Without(req.ReceiverDeviceIDs, skip)
	content := matrix.RoomKeyRequest{
		Action:             matrix.ActionRequestCancellation,
		RequestingDeviceID: p.OwnDeviceID,
		RequestID:          req.Content.RequestID,
	}
	if err := keyrequest.SendToDevices(ctx, p.ToDevice, matrix.EventRoomKeyRequest,
		p.OwnUserID, receivers, content); err != nil {

		keyrequest.Count(p.Metrics.Cancellations, keyrequest.ErrNetwork)
		return serrors.Wrap("cancelling request", err, "request_id", req.Content.RequestID)
	}
	if err := p.Store.DeleteRoomKeyRequest(ctx, req.Content.RequestID); err != nil {
		keyrequest.Count(p.Metrics.Cancellations, keyrequest.ErrDB)
		return serrors.Wrap("deleting request", err, "request_id", req.Content.RequestID)
	}
	keyrequest.Count(p.Metrics.Cancellations, keyrequest.Success)
	return nil
}

// CancelExpired cancels all outgoing requests created before the given time. Callers blocked
// in RequestRoomKeys for these requests return.
func (p *Protocol) CancelExpired(ctx context.Context, before time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	requests, err := p.Store.RoomKeyRequests(ctx)
	if err != nil {
		return 0, serrors.Wrap("loading requests", err)
	}
	var errs serrors.List
	n := 0
	for _, r := range requests {
		if !r.CreatedAt.Before(before) {
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

// HandleIncomingKeyRequest records an m.room_key_request event of another own device.
func (p *Protocol) HandleIncomingKeyRequest(ctx context.Context, ev matrix.ToDeviceEvent) {
	if ev.Type != matrix.EventRoomKeyRequest || ev.Sender != p.OwnUserID {
		return
	}
	var content matrix.RoomKeyRequest
	if err := json.Unmarshal(ev.Content, &content); err != nil {
		log.FromCtx(ctx).Debug("Ignoring malformed room key request", "err", err)
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
			logger.Info("Answering room key request failed", "device", e.Key.Device,
				"request_id", e.Key.RequestID, "err", err)
		}
	}
}

func (p *Protocol) answer(ctx context.Context, k keyrequest.Key,
	req matrix.RoomKeyRequest) (string, error) {

	verified, err := keyrequest.IsVerified(ctx, p.Store, k.User, k.Device)
	if err != nil {
		return keyrequest.ErrDB, err
	}
	if !verified {
		log.FromCtx(ctx).Debug("Not answering room key request of unverified device",
			"device", k.Device)
		return keyrequest.ErrNotVerified, nil
	}
	body := req.Body
	if body == nil || body.Algorithm != matrix.AlgorithmMegolm {
		return keyrequest.ErrUnknownKind, nil
	}
	session, err := p.Store.InboundMegolmSession(ctx, body.RoomID, body.SessionID)
	if err != nil {
		return keyrequest.ErrDB, serrors.Wrap("loading session", err,
			"room", body.RoomID, "session", body.SessionID)
	}
	if session == nil {
		return keyrequest.ErrNotFound, nil
	}
	key, _, err := p.Codec.ExportSession(session.Pickled)
	if err != nil {
		return keyrequest.ErrInternal, serrors.Wrap("exporting session", err,
			"session", body.SessionID)
	}
	chain := session.ForwardingCurve25519KeyChain
	if chain == nil {
		chain = []string{}
	}
	raw, err := json.Marshal(matrix.ForwardedRoomKey{
		Algorithm:                    matrix.AlgorithmMegolm,
		RoomID:                       session.RoomID,
		SenderKey:                    session.SenderKey,
		SessionID:                    session.SessionID,
		SessionKey:                   key,
		SenderClaimedEd25519Key:      session.SenderSigningKey,
		ForwardingCurve25519KeyChain: chain,
	})
	if err != nil {
		return keyrequest.ErrInternal, serrors.Wrap("encoding room key", err)
	}
	encrypted, err := p.Encrypter.EncryptDirect(ctx, k.User, k.Device,
		matrix.EventForwardedRoomKey, raw)
	if err != nil {
		return keyrequest.ErrInternal, serrors.Wrap("encrypting room key", err)
	}
	if err := p.ToDevice.SendToDevice(ctx, matrix.EventEncrypted,
		map[matrix.UserID]map[matrix.DeviceID]json.RawMessage{
			k.User: {k.Device: encrypted},
		}); err != nil {

		return keyrequest.ErrNetwork, serrors.Wrap("sending room key", err)
	}
	log.FromCtx(ctx).Info("Sent room key", "room", body.RoomID, "session", body.SessionID,
		"device", k.Device)
	return keyrequest.Success, nil
}

func (p *Protocol) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
