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
	"time"

	"github.com/spf13/cobra"

	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/app/command"
	"github.com/crosstrust/keytrust/private/mgmtapi"
)

type requests struct {
	Secrets  []mgmtapi.SecretRequest  `json:"secrets,omitempty" yaml:"secrets,omitempty"`
	RoomKeys []mgmtapi.RoomKeyRequest `json:"room_keys,omitempty" yaml:"room_keys,omitempty"`
}

func newRequests(pather command.Pather) *cobra.Command {
	var flags storeFlags
	var cmd = &cobra.Command{
		Use:   "requests [secrets|roomkeys]",
		Short: "List the outgoing secret and room key requests",
		Long: `'requests' lists the outgoing requests that are waiting for an answer.

Without an argument, both secret and room key requests are listed. The requests are
ordered by creation time.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"secrets", "roomkeys"},
		Example: fmt.Sprintf(`  %[1]s requests
  %[1]s requests roomkeys --format yaml`, pather.CommandPath()),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ""
			if len(args) == 1 {
				kind = args[0]
			}
			if kind != "" && kind != "secrets" && kind != "roomkeys" {
				return serrors.New("unknown request kind", "kind", kind)
			}
			db, err := flags.setup()
			if err != nil {
				return err
			}
			defer db.Close()
			cmd.SilenceUsage = true

			ctx := context.Background()
			var rep requests
			if kind != "roomkeys" {
				stored, err := db.SecretKeyRequests(ctx)
				if err != nil {
					return err
				}
				rep.Secrets = mgmtapi.NewSecretRequests(stored)
			}
			if kind != "secrets" {
				stored, err := db.RoomKeyRequests(ctx)
				if err != nil {
					return err
				}
				rep.RoomKeys = mgmtapi.NewRoomKeyRequests(stored)
			}
			return write(cmd.OutOrStdout(), flags.format, rep, func(w io.Writer) {
				if kind != "roomkeys" {
					fmt.Fprintf(w, "Secret requests: %d\n", len(rep.Secrets))
					for _, r := range rep.Secrets {
						fmt.Fprintf(w, "  %s: %s to=%s created=%s\n", r.RequestID, r.Name,
							deviceList(r.Receivers), r.CreatedAt.Format(time.RFC3339))
					}
				}
				if kind != "secrets" {
					fmt.Fprintf(w, "Room key requests: %d\n", len(rep.RoomKeys))
					for _, r := range rep.RoomKeys {
						fmt.Fprintf(w, "  %s: %s/%s to=%s created=%s\n", r.RequestID, r.RoomID,
							r.SessionID, deviceList(r.Receivers), r.CreatedAt.Format(time.RFC3339))
					}
				}
			})
		},
	}
	flags.register(cmd.Flags())
	return cmd
}
