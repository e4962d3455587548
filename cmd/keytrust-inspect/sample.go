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

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crosstrust/keytrust/private/app/command"
	"github.com/crosstrust/keytrust/private/keytrust"
)

func newSample(pather command.Pather) *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "sample",
		Short:   "Print a sample configuration of the keytrust core",
		Args:    cobra.NoArgs,
		Example: fmt.Sprintf("  %[1]s sample > keytrust.toml", pather.CommandPath()),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg keytrust.Config
			cfg.Sample(cmd.OutOrStdout(), nil, nil)
			return nil
		},
	}
	return cmd
}
