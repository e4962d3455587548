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

// Package keyquery keeps the stored keys of outdated users up to date.
//
// The updater queries the keys of all users that are marked as outdated, drops device keys
// that do not belong to the queried user or are not signed by themselves, and hands the rest to
// the trust engine. A user stays outdated until its keys were stored.
package keyquery

import (
	"context"
	"sort"
	"strings"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/metrics"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/pkg/signatures"
	"github.com/crosstrust/keytrust/private/matrixapi"
	"github.com/crosstrust/keytrust/private/notify"
	"github.com/crosstrust/keytrust/private/periodic"
	"github.com/crosstrust/keytrust/private/retry"
)

// DefaultBatchSize is the default number of users queried at once.
const DefaultBatchSize = 100

// Store tracks the users whose keys are outdated.
type Store interface {
	OutdatedUsers(ctx context.Context) ([]matrix.UserID, error)
	RemoveOutdatedUsers(ctx context.Context, users ...matrix.UserID) error
	SubscribeOutdatedUsers() *notify.Subscription
}

// KeyUpdater stores queried keys and recalculates the trust levels depending on them.
type KeyUpdater interface {
	UpdateUserKeys(ctx context.Context, user matrix.UserID,
		keys map[matrix.KeyUsage]*matrix.CrossSigningKey, devices []matrix.DeviceKeys) error
}

var _ periodic.Task = (*Updater)(nil)

// Updater is a periodic task that updates the keys of outdated users.
type Updater struct {
	Store    Store
	API      matrixapi.KeysAPI
	Trust    KeyUpdater
	Verifier signatures.Verifier
	Retry    retry.Policy
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	Metrics   Metrics
}

func (u *Updater) Name() string {
	return "keyquery_updater"
}

func (u *Updater) Run(ctx context.Context) {
	if err := u.Update(ctx); err != nil {
		log.FromCtx(ctx).Info("Updating outdated keys failed", "err", err)
	}
}

// Update queries and stores the keys of all outdated users.
func (u *Updater) Update(ctx context.Context) error {
	users, err := u.Store.OutdatedUsers(ctx)
	if err != nil {
		return serrors.Wrap("loading outdated users", err)
	}
	size := u.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	var errs serrors.List
	for len(users) > 0 {
		n := min(size, len(users))
		if err := u.updateBatch(ctx, users[:n]); err != nil {
			errs = append(errs, err)
		}
		users = users[n:]
	}
	return errs.ToError()
}

func (u *Updater) updateBatch(ctx context.Context, users []matrix.UserID) error {
	logger := log.FromCtx(ctx)
	resp, err := retry.DoValue(ctx, u.Retry,
		func(ctx context.Context) (*matrix.KeysQueryResponse, error) {
			return u.API.QueryKeys(ctx, users)
		},
	)
	if err != nil {
		metrics.CounterInc(metrics.CounterWith(u.Metrics.Queries, "result", metrics.ErrNetwork))
		return serrors.Wrap("querying keys", err, "users", len(users))
	}
	metrics.CounterInc(metrics.CounterWith(u.Metrics.Queries, "result", metrics.OkSuccess))

	var done []matrix.UserID
	var errs serrors.List
	for _, user := range users {
		if _, failed := resp.Failures[serverName(user)]; failed {
			u.countUser(resultServerFailure)
			logger.Debug("Key query failed for server", "user", user)
			continue
		}
		keys := u.crossSigningKeys(ctx, user, resp)
		var devices []matrix.DeviceKeys
		if queried, ok := resp.DeviceKeys[user]; ok {
			devices = u.validDevices(ctx, user, queried)
		}
		if err := u.Trust.UpdateUserKeys(ctx, user, keys, devices); err != nil {
			u.countUser(metrics.ErrDB)
			errs = append(errs, serrors.Wrap("updating keys", err, "user", user))
			continue
		}
		u.countUser(metrics.OkSuccess)
		done = append(done, user)
	}
	if len(done) > 0 {
		if err := u.Store.RemoveOutdatedUsers(ctx, done...); err != nil {
			errs = append(errs, serrors.Wrap("clearing outdated users", err))
		}
		logger.Debug("Updated keys", "users", len(done))
	}
	return errs.ToError()
}

// crossSigningKeys returns the cross-signing keys of user in resp that belong to the user and
// carry the usage they were returned for. If resp answers for user, usages it does not carry
// map to nil so that the stored keys are removed. Rejected keys are left out.
func (u *Updater) crossSigningKeys(ctx context.Context, user matrix.UserID,
	resp *matrix.KeysQueryResponse) map[matrix.KeyUsage]*matrix.CrossSigningKey {

	byUsage := map[matrix.KeyUsage]map[matrix.UserID]matrix.CrossSigningKey{
		matrix.UsageMaster:      resp.MasterKeys,
		matrix.UsageSelfSigning: resp.SelfSigningKeys,
		matrix.UsageUserSigning: resp.UserSigningKeys,
	}
	_, answered := resp.DeviceKeys[user]
	for _, byUser := range byUsage {
		if _, ok := byUser[user]; ok {
			answered = true
		}
	}

	keys := make(map[matrix.KeyUsage]*matrix.CrossSigningKey)
	for usage, byUser := range byUsage {
		k, ok := byUser[user]
		if !ok {
			if answered {
				keys[usage] = nil
			}
			continue
		}
		if k.UserID != user {
			u.reject(ctx, reasonMismatch, "user", user, "usage", usage)
			continue
		}
		if !k.HasUsage(usage) {
			u.reject(ctx, reasonWrongUsage, "user", user, "usage", usage)
			continue
		}
		keys[usage] = &k
	}
	return keys
}

// validDevices returns the devices whose IDs match the query and that are signed with their
// own signing key, ordered by device ID.
func (u *Updater) validDevices(ctx context.Context, user matrix.UserID,
	queried map[matrix.DeviceID]matrix.DeviceKeys) []matrix.DeviceKeys {

	devices := make([]matrix.DeviceKeys, 0, len(queried))
	for id, d := range queried {
		if d.UserID != user || d.DeviceID != id {
			u.reject(ctx, reasonMismatch, "user", user, "device", id)
			continue
		}
		key, ok := d.SigningKey()
		if !ok {
			u.reject(ctx, reasonNoSigningKey, "user", user, "device", id)
			continue
		}
		res := u.Verifier.Verify(&d, d.Signatures, signatures.SigningKey{UserID: user, Key: key})
		if !res.Valid() {
			u.reject(ctx, reasonBadSignature, "user", user, "device", id,
				"detail", res.Reason)
			continue
		}
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceID < devices[j].DeviceID
	})
	return devices
}

// TriggerOnOutdated triggers a run of r whenever users are marked as outdated. It blocks until
// ctx is done.
func TriggerOnOutdated(ctx context.Context, store Store, r *periodic.Runner) error {
	sub := store.SubscribeOutdatedUsers()
	defer sub.Close()
	for {
		select {
		case <-sub.Updates:
			r.TriggerRun()
		case <-ctx.Done():
			return nil
		}
	}
}

func (u *Updater) reject(ctx context.Context, reason string, errCtx ...any) {
	metrics.CounterInc(metrics.CounterWith(u.Metrics.Rejected, "reason", reason))
	log.FromCtx(ctx).Debug("Rejected queried key", append(errCtx, "reason", reason)...)
}

func (u *Updater) countUser(result string) {
	metrics.CounterInc(metrics.CounterWith(u.Metrics.Users, "result", result))
}

func serverName(user matrix.UserID) string {
	_, server, _ := strings.Cut(string(user), ":")
	return server
}
