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
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/storage"
	"github.com/crosstrust/keytrust/private/storage/keystore/sqlite"
)

// storeFlags are the flags shared by all commands that read the key store.
type storeFlags struct {
	db       string
	format   string
	logLevel string
	noColor  bool
}

// register registers the flags on the flag set.
func (f *storeFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.db, "db", storage.DefaultKeyStorePath, "path of the key store")
	flagSet.StringVar(&f.format, "format", "human",
		"Specify the output format (human|json|yaml)")
	flagSet.StringVar(&f.logLevel, "log.level", "", "Console logging level verbosity "+
		"(debug|info|error)")
	flagSet.BoolVar(&f.noColor, "no-color", false, "disable colored output")
}

// colored reports whether human output is colored.
func (f *storeFlags) colored() bool {
	return !f.noColor && isatty.IsTerminal(os.Stdout.Fd())
}

// setup validates the flags, configures logging and opens the key store. The store must
// already exist.
func (f *storeFlags) setup() (*sqlite.Backend, error) {
	switch f.format {
	case "human", "json", "yaml":
	default:
		return nil, serrors.New("format not supported", "format", f.format)
	}
	if err := setupLog(f.logLevel); err != nil {
		return nil, serrors.Wrap("setting up logging", err)
	}
	if _, err := os.Stat(f.db); err != nil {
		return nil, serrors.Wrap("opening key store", err, "db", f.db)
	}
	log.Debug("Opening key store", "db", f.db)
	db, err := sqlite.New(f.db, nil)
	if err != nil {
		return nil, serrors.Wrap("opening key store", err, "db", f.db)
	}
	return db, nil
}

func setupLog(level string) error {
	cfg := log.Config{Console: log.ConsoleConfig{Level: level, Format: "human"}}
	if level == "" {
		cfg.Console.Level = "error"
	}
	return log.Setup(cfg)
}

// write renders v in the requested format. For the human format, human is called instead.
func write(w io.Writer, format string, v any, human func(w io.Writer)) error {
	switch format {
	case "human":
		human(w)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		raw, err := yaml.Marshal(v)
		if err != nil {
			return serrors.Wrap("encoding yaml", err)
		}
		_, err = w.Write(raw)
		return err
	default:
		return serrors.New("format not supported", "format", format)
	}
}

func parseUser(raw string) (matrix.UserID, error) {
	if !strings.HasPrefix(raw, "@") || !strings.Contains(raw, ":") {
		return "", serrors.New("invalid user ID", "user", raw)
	}
	return matrix.UserID(raw), nil
}

func deviceList(ids []matrix.DeviceID) string {
	s := make([]string, 0, len(ids))
	for _, id := range ids {
		s = append(s, string(id))
	}
	return strings.Join(s, ",")
}


// trustColors renders trust levels in human output.
type trustColors struct {
	verified    *color.Color
	crossSigned *color.Color
	untrusted   *color.Color
}

func newTrustColors(colored bool) trustColors {
	c := trustColors{
		verified:    color.New(color.FgGreen),
		crossSigned: color.New(color.FgYellow),
		untrusted:   color.New(color.FgRed),
	}
	if !colored {
		c.verified.DisableColor()
		c.crossSigned.DisableColor()
		c.untrusted.DisableColor()
	}
	return c
}

func (c trustColors) render(trust matrix.TrustLevel) string {
	switch {
	case trust.IsVerified():
		return c.verified.Sprint(trust)
	case trust.IsCrossSigned():
		return c.crossSigned.Sprint(trust)
	default:
		return c.untrusted.Sprint(trust)
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}
