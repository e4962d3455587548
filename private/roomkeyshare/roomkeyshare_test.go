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

package roomkeyshare_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/metrics"
	"github.com/crosstrust/keytrust/pkg/private/xtest"
	"github.com/crosstrust/keytrust/private/keyrequest"
	"github.com/crosstrust/keytrust/private/matrixapi/mock_matrixapi"
	"github.com/crosstrust/keytrust/private/olm"
	"github.com/crosstrust/keytrust/private/olm/mock_olm"
	"github.com/crosstrust/keytrust/private/roomkeyshare"
	"github.com/crosstrust/keytrust/private/storage/keystore/sqlite"
)

const (
	alice matrix.UserID = "@alice:example.org"
	bob   matrix.UserID = "@bob:example.org"

	room    matrix.RoomID    = "!room:example.org"
	session matrix.SessionID = "session"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	p         *roomkeyshare.Protocol
	db        *sqlite.Backend
	toDevice  *mock_matrixapi.MockToDeviceAPI
	encrypter *mock_olm.MockEncrypter
	codec     *mock_olm.MockSessionCodec
	answers   *metrics.TestCounter
	incoming  *metrics.TestCounter
}

// newEnv creates the protocol on device B of alice. A and C are cross-signed and verified, D is
// cross-signed but not verified.
func newEnv(t *testing.T, mctrl *gomock.Controller) *env {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "keys.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.ReplaceDeviceKeys(context.Background(), alice,
		[]matrix.StoredDeviceKeys{
			device("A", matrix.CrossSigned(true)),
			device("B", matrix.CrossSigned(false)),
			device("C", matrix.CrossSigned(true)),
			device("D", matrix.CrossSigned(false)),
		},
	))
	e := &env{
		db:        db,
		toDevice:  mock_matrixapi.NewMockToDeviceAPI(mctrl),
		encrypter: mock_olm.NewMockEncrypter(mctrl),
		codec:     mock_olm.NewMockSessionCodec(mctrl),
		answers:   metrics.NewTestCounter(),
		incoming:  metrics.NewTestCounter(),
	}
	e.p = &roomkeyshare.Protocol{
		OwnUserID:   alice,
		OwnDeviceID: "B",
		Store:       db,
		ToDevice:    e.toDevice,
		Encrypter:   e.encrypter,
		Codec:       e.codec,
		Metrics: keyrequest.Metrics{
			Answers:          e.answers,
			IncomingRequests: e.incoming,
		},
		Now: func() time.Time { return now },
	}
	return e
}

func device(id matrix.DeviceID, trust matrix.TrustLevel) matrix.StoredDeviceKeys {
	return matrix.StoredDeviceKeys{
		Value: matrix.DeviceKeys{
			UserID:   alice,
			DeviceID: id,
			Keys: map[matrix.KeyID]string{
				matrix.NewKeyID("ed25519", string(id)): signingKey(id),
			},
		},
		Trust: trust,
	}
}

func signingKey(id matrix.DeviceID) string {
	return "signing-key-" + string(id)
}

func (e *env) addRequest(t *testing.T, id string, created time.Time,
	receivers ...matrix.DeviceID) {

	t.Helper()
	require.NoError(t, e.db.AddRoomKeyRequest(context.Background(), matrix.StoredRoomKeyRequest{
		Content: matrix.RoomKeyRequest{
			Action: matrix.ActionRequest,
			Body: &matrix.RoomKeyRequestBody{
				Algorithm: matrix.AlgorithmMegolm,
				RoomID:    room,
				SessionID: session,
			},
			RequestingDeviceID: "B",
			RequestID:          id,
		},
		ReceiverDeviceIDs: receivers,
		CreatedAt:         created,
	}))
}

func (e *env) requests(t *testing.T) []matrix.StoredRoomKeyRequest {
	t.Helper()
	r, err := e.db.RoomKeyRequests(context.Background())
	require.NoError(t, err)
	return r
}

func (e *env) storeSession(t *testing.T, index int64) {
	t.Helper()
	stored, err := e.db.MergeInboundMegolmSession(context.Background(),
		matrix.StoredInboundMegolmSession{
			SenderKey:        "sender-curve",
			SenderSigningKey: "sender-ed",
			SessionID:        session,
			RoomID:           room,
			FirstKnownIndex:  index,
			Pickled:          "known",
		},
	)
	require.NoError(t, err)
	require.True(t, stored)
}

type sent struct {
	eventType string
	messages  map[matrix.DeviceID]json.RawMessage
}

// recordSends records every to-device message for the own user on the returned channel.
func (e *env) recordSends(times int) <-chan sent {
	ch := make(chan sent, times)
	e.toDevice.EXPECT().SendToDevice(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, eventType string,
			msgs map[matrix.UserID]map[matrix.DeviceID]json.RawMessage) error {

			ch <- sent{eventType: eventType, messages: msgs[alice]}
			return nil
		},
	).Times(times)
	return ch
}

func forwarded(t *testing.T, from matrix.DeviceID,
	key matrix.ForwardedRoomKey) matrix.DecryptedEvent {

	return matrix.DecryptedEvent{
		Sender:            alice,
		SenderSigningKey:  signingKey(from),
		SenderIdentityKey: "curve-" + string(from),
		Type:              matrix.EventForwardedRoomKey,
		Content:           xtest.MustMarshalJSON(t, key),
	}
}

func forwardedKey() matrix.ForwardedRoomKey {
	return matrix.ForwardedRoomKey{
		Algorithm:                    matrix.AlgorithmMegolm,
		RoomID:                       room,
		SenderKey:                    "sender-curve",
		SessionID:                    session,
		SessionKey:                   "exported",
		SenderClaimedEd25519Key:      "sender-ed",
		ForwardingCurve25519KeyChain: []string{"curve-X"},
	}
}

type result struct {
	known bool
	err   error
}

func requestAsync(ctx context.Context, p *roomkeyshare.Protocol) <-chan result {
	done := make(chan result, 1)
	go func() {
		known, err := p.RequestRoomKeys(ctx, room, session)
		done <- result{known: known, err: err}
	}()
	return done
}

func waitResult(t *testing.T, done <-chan result) result {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("RequestRoomKeys did not return")
		return result{}
	}
}

func TestRequestRoomKeysAnswered(t *testing.T) {
	mctrl := gomock.NewController(t)
	e := newEnv(t, mctrl)
	ctx := context.Background()
	sends := e.recordSends(2)
	e.codec.EXPECT().ImportSession("exported").Return(
		olm.InboundSession{FirstKnownIndex: 0, Pickled: "imported"}, nil)

	done := requestAsync(ctx, e.p)
	req := <-sends
	assert.Equal(t, matrix.EventRoomKeyRequest, req.eventType)
	require.Len(t, req.messages, 2)
	var content matrix.RoomKeyRequest
	require.NoError(t, json.Unmarshal(req.messages["A"], &content))
	assert.Equal(t, matrix.ActionRequest, content.Action)
	assert.Equal(t, &matrix.RoomKeyRequestBody{
		Algorithm: matrix.AlgorithmMegolm,
		RoomID:    room,
		SessionID: session,
	}, content.Body)
	require.Eventually(t, func() bool { return len(e.requests(t)) == 1 },
		5*time.Second, 10*time.Millisecond)

	require.NoError(t, e.p.HandleOutgoingKeyRequestAnswer(ctx, forwarded(t, "A", forwardedKey())))
	r := waitResult(t, done)
	require.NoError(t, r.err)
	assert.True(t, r.known)

	cancellation := <-sends
	require.Len(t, cancellation.messages, 1)
	var cancel matrix.RoomKeyRequest
	require.NoError(t, json.Unmarshal(cancellation.messages["C"], &cancel))
	assert.Equal(t, matrix.ActionRequestCancellation, cancel.Action)
	assert.Equal(t, content.RequestID, cancel.RequestID)

	s, err := e.db.InboundMegolmSession(ctx, room, session)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "imported", s.Pickled)
	assert.Equal(t, "sender-ed", s.SenderSigningKey)
	assert.Equal(t, []string{"curve-X", "curve-A"}, s.ForwardingCurve25519KeyChain)
	assert.False(t, s.IsTrusted)
	assert.Empty(t, e.requests(t))
}

func TestRequestRoomKeysCleared(t *testing.T) {
	t.Run("expired", func(t *testing.T) {
		mctrl := gomock.NewController(t)
		e := newEnv(t, mctrl)
		ctx := context.Background()
		sends := e.recordSends(2)

		done := requestAsync(ctx, e.p)
		<-sends
		require.Eventually(t, func() bool { return len(e.requests(t)) == 1 },
			5*time.Second, 10*time.Millisecond)
		n, err := e.p.CancelExpired(ctx, now.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		r := waitResult(t, done)
		require.NoError(t, r.err)
		assert.False(t, r.known)
		cancellation := <-sends
		assert.Len(t, cancellation.messages, 2)
	})
	t.Run("joins outstanding request", func(t *testing.T) {
		mctrl := gomock.NewController(t)
		e := newEnv(t, mctrl)
		ctx := context.Background()
		e.addRequest(t, "outstanding", now, "A")

		done := requestAsync(ctx, e.p)
		e.storeSession(t, 3)
		require.NoError(t, e.db.DeleteRoomKeyRequest(ctx, "outstanding"))

		r := waitResult(t, done)
		require.NoError(t, r.err)
		assert.True(t, r.known)
	})
	t.Run("context done", func(t *testing.T) {
		mctrl := gomock.NewController(t)
		e := newEnv(t, mctrl)
		e.addRequest(t, "outstanding", now, "A")
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := e.p.RequestRoomKeys(ctx, room, session)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Len(t, e.requests(t), 1)
	})
	t.Run("no receivers", func(t *testing.T) {
		mctrl := gomock.NewController(t)
		e := newEnv(t, mctrl)
		require.NoError(t, e.db.ReplaceDeviceKeys(context.Background(), alice,
			[]matrix.StoredDeviceKeys{
				device("A", matrix.CrossSigned(false)),
				device("B", matrix.CrossSigned(true)),
			},
		))
		_, err := e.p.RequestRoomKeys(context.Background(), room, session)
		assert.True(t, errors.Is(err, roomkeyshare.ErrNoReceivers))
		assert.Empty(t, e.requests(t))
	})
}

func TestHandleOutgoingKeyRequestAnswer(t *testing.T) {
	testCases := map[string]struct {
		Known    *int64
		Imported olm.InboundSession
		ImportOK bool
		Modify   func(ev *matrix.DecryptedEvent, key *matrix.ForwardedRoomKey)
		Accepted bool
		Result   string
	}{
		"unknown session": {
			Imported: olm.InboundSession{FirstKnownIndex: 5, Pickled: "imported"},
			ImportOK: true,
			Accepted: true,
			Result:   keyrequest.Success,
		},
		"lower index": {
			Known:    index(5),
			Imported: olm.InboundSession{FirstKnownIndex: 2, Pickled: "imported"},
			ImportOK: true,
			Accepted: true,
			Result:   keyrequest.Success,
		},
		"equal index": {
			Known:    index(5),
			Imported: olm.InboundSession{FirstKnownIndex: 5, Pickled: "imported"},
			ImportOK: true,
			Result:   keyrequest.ErrNotAuthentic,
		},
		"higher index": {
			Known:    index(5),
			Imported: olm.InboundSession{FirstKnownIndex: 7, Pickled: "imported"},
			ImportOK: true,
			Result:   keyrequest.ErrNotAuthentic,
		},
		"import fails": {
			Result: keyrequest.ErrNotAuthentic,
		},
		"unknown algorithm": {
			Modify: func(_ *matrix.DecryptedEvent, key *matrix.ForwardedRoomKey) {
				key.Algorithm = "m.unknown"
			},
			Result: keyrequest.ErrUnknownKind,
		},
		"other user": {
			Modify: func(ev *matrix.DecryptedEvent, _ *matrix.ForwardedRoomKey) {
				ev.Sender = bob
			},
			Result: keyrequest.ErrUnknownSender,
		},
		"unknown device": {
			Modify: func(ev *matrix.DecryptedEvent, _ *matrix.ForwardedRoomKey) {
				ev.SenderSigningKey = "unknown"
			},
			Result: keyrequest.ErrUnknownSender,
		},
		"unverified device": {
			Modify: func(ev *matrix.DecryptedEvent, _ *matrix.ForwardedRoomKey) {
				ev.SenderSigningKey = signingKey("D")
			},
			Result: keyrequest.ErrNotVerified,
		},
		"not a receiver": {
			Modify: func(ev *matrix.DecryptedEvent, _ *matrix.ForwardedRoomKey) {
				ev.SenderSigningKey = signingKey("C")
			},
			Result: keyrequest.ErrNotRequested,
		},
		"not requested session": {
			Modify: func(_ *matrix.DecryptedEvent, key *matrix.ForwardedRoomKey) {
				key.SessionID = "other"
			},
			Result: keyrequest.ErrNotRequested,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			mctrl := gomock.NewController(t)
			e := newEnv(t, mctrl)
			ctx := context.Background()
			e.addRequest(t, "req", now, "A", "D")
			if tc.Known != nil {
				e.storeSession(t, *tc.Known)
			}
			key := forwardedKey()
			ev := forwarded(t, "A", key)
			if tc.Modify != nil {
				tc.Modify(&ev, &key)
				ev.Content = xtest.MustMarshalJSON(t, key)
			}
			if tc.ImportOK {
				e.codec.EXPECT().ImportSession("exported").Return(tc.Imported, nil)
			} else {
				e.codec.EXPECT().ImportSession(gomock.Any()).
					Return(olm.InboundSession{}, errors.New("bad key")).AnyTimes()
			}
			var sends <-chan sent
			if tc.Accepted {
				sends = e.recordSends(1)
			}

			require.NoError(t, e.p.HandleOutgoingKeyRequestAnswer(ctx, ev))
			s, err := e.db.InboundMegolmSession(ctx, room, session)
			require.NoError(t, err)
			if tc.Accepted {
				require.NotNil(t, s)
				assert.Equal(t, tc.Imported.FirstKnownIndex, s.FirstKnownIndex)
				assert.Equal(t, "imported", s.Pickled)
				assert.Empty(t, e.requests(t))
				cancellation := <-sends
				assert.Len(t, cancellation.messages, 1)
				assert.Contains(t, cancellation.messages, matrix.DeviceID("D"))
			} else {
				if tc.Known != nil {
					require.NotNil(t, s)
					assert.Equal(t, *tc.Known, s.FirstKnownIndex)
				} else {
					assert.Nil(t, s)
				}
				assert.Len(t, e.requests(t), 1)
			}
			assert.Equal(t, 1.0, metrics.CounterValue(e.answers.With("result", tc.Result)))
		})
	}
}

func index(i int64) *int64 {
	return &i
}

func request(t *testing.T, from matrix.DeviceID, action matrix.KeyRequestAction,
	body *matrix.RoomKeyRequestBody, id string) matrix.ToDeviceEvent {

	return matrix.ToDeviceEvent{
		Sender: alice,
		Type:   matrix.EventRoomKeyRequest,
		Content: xtest.MustMarshalJSON(t, matrix.RoomKeyRequest{
			Action:             action,
			Body:               body,
			RequestingDeviceID: from,
			RequestID:          id,
		}),
	}
}

func TestIncomingKeyRequests(t *testing.T) {
	mctrl := gomock.NewController(t)
	e := newEnv(t, mctrl)
	ctx := context.Background()
	e.storeSession(t, 3)

	known := &matrix.RoomKeyRequestBody{
		Algorithm: matrix.AlgorithmMegolm,
		RoomID:    room,
		SessionID: session,
	}
	unknown := &matrix.RoomKeyRequestBody{
		Algorithm: matrix.AlgorithmMegolm,
		RoomID:    room,
		SessionID: "unknown",
	}
	other := request(t, "A", matrix.ActionRequest, known, "7")
	other.Sender = bob
	for _, ev := range []matrix.ToDeviceEvent{
		request(t, "A", matrix.ActionRequest, known, "1"),
		request(t, "D", matrix.ActionRequest, known, "2"),
		request(t, "C", matrix.ActionRequest, unknown, "3"),
		request(t, "C", matrix.ActionRequest, nil, "4"),
		request(t, "C", matrix.ActionRequest, known, "5"),
		request(t, "C", matrix.ActionRequestCancellation, nil, "5"),
		request(t, "B", matrix.ActionRequest, known, "6"),
		other,
	} {
		e.p.HandleIncomingKeyRequest(ctx, ev)
	}

	e.codec.EXPECT().ExportSession("known").Return("exported", int64(3), nil)
	e.encrypter.EXPECT().EncryptDirect(gomock.Any(), alice, matrix.DeviceID("A"),
		matrix.EventForwardedRoomKey, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ matrix.UserID, _ matrix.DeviceID, _ string,
			content json.RawMessage) (json.RawMessage, error) {

			var key matrix.ForwardedRoomKey
			require.NoError(t, json.Unmarshal(content, &key))
			assert.Equal(t, matrix.ForwardedRoomKey{
				Algorithm:                    matrix.AlgorithmMegolm,
				RoomID:                       room,
				SenderKey:                    "sender-curve",
				SessionID:                    session,
				SessionKey:                   "exported",
				SenderClaimedEd25519Key:      "sender-ed",
				ForwardingCurve25519KeyChain: []string{},
			}, key)
			return json.RawMessage(`{"ciphertext":"x"}`), nil
		},
	)
	sends := e.recordSends(1)

	e.p.ProcessIncomingKeyRequests(ctx)
	s := <-sends
	assert.Equal(t, matrix.EventEncrypted, s.eventType)
	assert.Contains(t, s.messages, matrix.DeviceID("A"))
	assert.Equal(t, 1.0, metrics.CounterValue(e.incoming.With("result", keyrequest.Success)))
	assert.Equal(t, 1.0,
		metrics.CounterValue(e.incoming.With("result", keyrequest.ErrNotVerified)))
	assert.Equal(t, 1.0, metrics.CounterValue(e.incoming.With("result", keyrequest.ErrNotFound)))
	assert.Equal(t, 1.0,
		metrics.CounterValue(e.incoming.With("result", keyrequest.ErrUnknownKind)))

	e.p.ProcessIncomingKeyRequests(ctx)
}
