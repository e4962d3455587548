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

package keyrequest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/keyrequest"
	"github.com/crosstrust/keytrust/private/matrixapi/mock_matrixapi"
	"github.com/crosstrust/keytrust/private/storage/keystore/sqlite"
)

const alice matrix.UserID = "@alice:example.org"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func key(device matrix.DeviceID, id string) keyrequest.Key {
	return keyrequest.Key{User: alice, Device: device, RequestID: id}
}

func TestPending(t *testing.T) {
	var p keyrequest.Pending[string]
	assert.Empty(t, p.Drain())

	p.Add(key("B", "1"), "first")
	p.Add(key("A", "2"), "second")
	p.Add(key("B", "1"), "replaced")
	assert.Equal(t, 2, p.Len())
	assert.True(t, p.Remove(key("A", "2")))
	assert.False(t, p.Remove(key("A", "2")))

	// A cancellation followed by a new request with the same id keeps the new request.
	p.Remove(key("B", "1"))
	p.Add(key("B", "1"), "renewed")

	entries := p.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, "renewed", entries[0].Request)
	assert.Zero(t, p.Len())
}

func TestPendingDrainOrder(t *testing.T) {
	var p keyrequest.Pending[int]
	p.Add(key("C", "1"), 3)
	p.Add(key("A", "2"), 2)
	p.Add(key("A", "1"), 1)
	var got []int
	for _, e := range p.Drain() {
		got = append(got, e.Request)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestPendingConcurrent(t *testing.T) {
	var p keyrequest.Pending[int]
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.Add(key(matrix.DeviceID(fmt.Sprint(i)), fmt.Sprint(j)), j)
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, p.Drain(), 400)
}

func device(id matrix.DeviceID, signingKey string,
	trust matrix.TrustLevel) matrix.StoredDeviceKeys {

	return matrix.StoredDeviceKeys{
		Value: matrix.DeviceKeys{
			UserID:   alice,
			DeviceID: id,
			Keys: map[matrix.KeyID]string{
				matrix.NewKeyID(matrix.AlgorithmEd25519, string(id)): signingKey,
			},
		},
		Trust: trust,
	}
}

func newStore(t *testing.T) *sqlite.Backend {
	db, err := sqlite.New(filepath.Join(t.TempDir(), "keys.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.ReplaceDeviceKeys(context.Background(), alice,
		[]matrix.StoredDeviceKeys{
			device("A", "key-a", matrix.CrossSigned(true)),
			device("B", "key-b", matrix.CrossSigned(false)),
			device("C", "key-c", matrix.CrossSigned(true)),
			device("D", "key-d", matrix.Valid(true)),
			device("E", "key-e", matrix.Blocked()),
		},
	))
	return db
}

func TestSelectReceivers(t *testing.T) {
	db := newStore(t)
	testCases := map[string]struct {
		Own      matrix.DeviceID
		Expected []matrix.DeviceID
	}{
		"from unverified device": {Own: "B", Expected: []matrix.DeviceID{"A", "C"}},
		"from verified device":   {Own: "A", Expected: []matrix.DeviceID{"C"}},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			r, err := keyrequest.SelectReceivers(context.Background(), db, alice, tc.Own)
			require.NoError(t, err)
			assert.Equal(t, tc.Expected, r)
		})
	}
}

func TestResolveSender(t *testing.T) {
	db := newStore(t)
	testCases := map[string]struct {
		Key      string
		Expected matrix.DeviceID
	}{
		"known":   {Key: "key-c", Expected: "C"},
		"unknown": {Key: "key-x"},
		"empty":   {},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			d, err := keyrequest.ResolveSender(context.Background(), db, alice, tc.Key)
			require.NoError(t, err)
			if tc.Expected == "" {
				assert.Nil(t, d)
				return
			}
			require.NotNil(t, d)
			assert.Equal(t, tc.Expected, d.Value.DeviceID)
		})
	}
}

func TestIsVerified(t *testing.T) {
	db := newStore(t)
	for d, expected := range map[matrix.DeviceID]bool{
		"A": true, "B": false, "D": true, "E": false, "X": false,
	} {
		v, err := keyrequest.IsVerified(context.Background(), db, alice, d)
		require.NoError(t, err)
		assert.Equal(t, expected, v, string(d))
	}
}

func TestSendToDevices(t *testing.T) {
	mctrl := gomock.NewController(t)
	api := mock_matrixapi.NewMockToDeviceAPI(mctrl)
	content := matrix.SecretKeyRequest{
		Action:             matrix.ActionRequestCancellation,
		RequestingDeviceID: "A",
		RequestID:          "r1",
	}
	api.EXPECT().SendToDevice(gomock.Any(), matrix.EventSecretRequest, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string,
			msgs map[matrix.UserID]map[matrix.DeviceID]json.RawMessage) error {

			require.Len(t, msgs[alice], 2)
			var got matrix.SecretKeyRequest
			require.NoError(t, json.Unmarshal(msgs[alice]["C"], &got))
			assert.Equal(t, content, got)
			return nil
		},
	)
	require.NoError(t, keyrequest.SendToDevices(context.Background(), api,
		matrix.EventSecretRequest, alice, []matrix.DeviceID{"B", "C"}, content))
	require.NoError(t, keyrequest.SendToDevices(context.Background(), api,
		matrix.EventSecretRequest, alice, nil, content))
}

func TestWithout(t *testing.T) {
	assert.Equal(t, []matrix.DeviceID{"A", "C"},
		keyrequest.Without([]matrix.DeviceID{"A", "B", "C"}, "B"))
	assert.Empty(t, keyrequest.Without([]matrix.DeviceID{"B"}, "B"))
}

func TestSweeper(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	testCases := map[string]struct {
		Horizon  time.Duration
		Expected time.Time
		Err      error
	}{
		"default horizon": {Expected: now.Add(-24 * time.Hour)},
		"custom horizon":  {Horizon: time.Hour, Expected: now.Add(-time.Hour)},
		"error":           {Expected: now.Add(-24 * time.Hour), Err: serrors.New("db down")},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var got time.Time
			s := &keyrequest.Sweeper{
				TaskName: "sweep",
				Horizon:  tc.Horizon,
				Now:      func() time.Time { return now },
				Expire: func(_ context.Context, before time.Time) (int, error) {
					got = before
					return 1, tc.Err
				},
			}
			s.Run(context.Background())
			assert.Equal(t, tc.Expected, got)
			assert.Equal(t, "sweep", s.Name())
		})
	}
}
