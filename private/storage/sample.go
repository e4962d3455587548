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

package storage

const sample = `# The connection string of the SQLite key store. (default "/var/lib/keytrust/keys.db")
connection = "/var/lib/keytrust/keys.db"

# The maximum number of open read connections. 0 means max(4, number of CPUs). (default 0)
max_open_conns = 0

# The maximum number of idle read connections. 0 means the Go default. (default 0)
max_idle_conns = 0

# The interval in which orphaned key chain links are removed. (default 10m)
cleanup_interval = "10m"
`
