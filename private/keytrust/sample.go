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

const trustSample = `
# The number of signing keys whose key chain links are kept in memory. (default 1024)
link_cache_size = 1024
`

const requestsSample = `
# The interval in which expired outgoing requests are cancelled. (default 10m)
sweep_interval = "10m"

# The age after which an unanswered outgoing request expires. (default 24h)
horizon = "24h"
`

const keyQuerySample = `
# The interval in which the keys of outdated users are queried. Marking a user as
# outdated triggers a query immediately. (default 1m)
interval = "1m"

# The maximum number of users per key query. (default 100)
batch_size = 100
`
