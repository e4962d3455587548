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

// keytrust-inspect shows the content of a keytrust key store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crosstrust/keytrust/private/app/command"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func newRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "keytrust-inspect",
		Short:         "Inspect the key store of a keytrust core",
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	cmd.AddCommand(
		newDevices(cmd),
		newCrossSigning(cmd),
		newRequests(cmd),
		newSample(cmd),
		command.NewGendocs(cmd),
	)
	return cmd
}
