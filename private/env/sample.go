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

package env

const generalSample = `
# The Matrix user ID of the own account. (required)
user_id = "@alice:example.org"

# The ID of the own device. (required)
device_id = "ABCDEFGHIJ"
`

const metricsSample = `
# The address to export prometheus metrics on (host:port or ip:port or :port).
# The metrics can be found under /metrics. If not set, metrics are not exported.
# (default "")
prometheus = ""
`

const apiSample = `
# The address the management API listens on (host:port or ip:port or :port).
# If not set, the API is not served. (default "")
addr = ""

# The origins allowed to query the management API from a browser. If empty, all
# origins are allowed. (default [])
allowed_origins = []
`
