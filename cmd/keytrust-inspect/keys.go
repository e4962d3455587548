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
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/crosstrust/keytrust/private/app/command"
	"github.com/crosstrust/keytrust/private/mgmtapi"
)

func newDevices(pather command.Pather) *cobra.Command {
	var flags storeFlags
	var cmd = &cobra.Command{
		Use:     "devices <user>",
		Short:   "List the devices of a user with their trust levels",
		Args:    cobra.ExactArgs(1),
		Example: fmt.Sprintf("  %[1]s devices @alice:example.org --format json", pather.CommandPath()),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := parseUser(args[0])
			if err != nil {
				return err
			}
			db, err := flags.setup()
			if err != nil {
				return err
			}
			defer db.Close()
			cmd.SilenceUsage = true

			devices, err := db.DeviceKeys(context.Background(), user)
			if err != nil {
				return err
			}
			rep := mgmtapi.NewDevicesResponse(user, devices)
			return write(cmd.OutOrStdout(), flags.format, rep, func(w io.Writer) {
				if len(rep.Devices) == 0 {
					fmt.Fprintf(w, "No devices of %s\n", user)
					return
				}
				fmt.Fprintf(w, "Devices of %s:\n", user)
				colors := newTrustColors(flags.colored())
				table := newTable(w, "DEVICE", "TRUST", "SIGNING KEY")
				for _, d := range rep.Devices {
					table.Append([]string{
						string(d.DeviceID), colors.render(d.Trust), d.SigningKey,
					})
				}
				table.Render()
			})
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newCrossSigning(pather command.Pather) *cobra.Command {
	var flags storeFlags
	var cmd = &cobra.Command{
		Use:     "cross-signing <user>",
		Short:   "List the cross-signing keys of a user with their trust levels",
		Aliases: []string{"cs"},
		Args:    cobra.ExactArgs(1),
		Example: fmt.Sprintf("  %[1]s cross-signing @alice:example.org", pather.CommandPath()),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := parseUser(args[0])
			if err != nil {
				return err
			}
			db, err := flags.setup()
			if err != nil {
				return err
			}
			defer db.Close()
			cmd.SilenceUsage = true

			keys, err := db.CrossSigningKeys(context.Background(), user)
			if err != nil {
				return err
			}
			rep := mgmtapi.NewCrossSigningResponse(user, keys)
			return write(cmd.OutOrStdout(), flags.format, rep, func(w io.Writer) {
				if len(rep.Keys) == 0 {
					fmt.Fprintf(w, "No cross-signing keys of %s\n", user)
					return
				}
				fmt.Fprintf(w, "Cross-signing keys of %s:\n", user)
				colors := newTrustColors(flags.colored())
				table := newTable(w, "USAGE", "TRUST", "PUBLIC KEY")
				for _, k := range rep.Keys {
					table.Append([]string{
						string(k.Usage), colors.render(k.Trust), k.PublicKey,
					})
				}
				table.Render()
			})
		},
	}
	flags.register(cmd.Flags())
	return cmd
}
