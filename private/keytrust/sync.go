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

package keytrust

// SyncState is the state of the sync loop that feeds the core.
type SyncState string

const (
	SyncStopped     SyncState = "stopped"
	SyncInitialSync SyncState = "initial_sync"
	SyncStarted     SyncState = "started"
	SyncRunning     SyncState = "running"
	SyncTimeout     SyncState = "timeout"
	SyncError       SyncState = "error"
	SyncStopping    SyncState = "stopping"
)

// Online returns whether the server is reachable in this state.
func (s SyncState) Online() bool {
	switch s {
	case SyncInitialSync, SyncStarted, SyncRunning, SyncTimeout:
		return true
	default:
		return false
	}
}
