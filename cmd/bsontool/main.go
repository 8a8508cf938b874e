// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command bsontool inspects files with concatenated BSON documents.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FerretDB/bsonmap/internal/serialization"
	"github.com/FerretDB/bsonmap/internal/util/logging"
	"github.com/FerretDB/bsonmap/internal/util/must"
)

// The cli struct represents all command-line commands, fields and flags.
// It's used for parsing the user input.
//
//nolint:vet // for readability
var cli struct {
	Log struct {
		Level  string `default:"info"                  help:"${help_log_level}"  enum:"${enum_log_level}"`
		Format string `default:"${default_log_format}" help:"${help_log_format}" enum:"${enum_log_format}"`
	} `embed:"" prefix:"log-"`

	Hex     bool `default:"false" help:"Read inputs as hex dumps."`
	Metrics bool `default:"false" help:"Dump serializer registry metrics to stderr on exit."`

	Dump struct {
		Block   bool     `default:"false" help:"Never use compact flow style."`
		HexDump bool     `default:"false" help:"Print hex dump of each document."`
		Files   []string `name:"file" arg:"" help:"Files to read; '-' for stdin."`
	} `cmd:"" help:"Print documents."`

	Validate struct {
		Record string   `help:"Directory to record invalid documents as fuzz corpus entries."`
		Files  []string `name:"file" arg:"" help:"Files to read; '-' for stdin."`
	} `cmd:"" help:"Check that files contain only valid documents."`

	Schema struct {
		Files []string `name:"file" arg:"" help:"Files to read; '-' for stdin."`
	} `cmd:"" help:"Print field paths with their BSON types and counts."`
}

// Additional variables for the kong parser.
var kongOptions = []kong.Option{
	kong.Vars{
		"default_log_format": logging.Formats[0],

		"enum_log_format": strings.Join(logging.Formats, ","),
		"enum_log_level":  strings.Join(logging.Levels, ","),

		"help_log_format": fmt.Sprintf("Log format: '%s'.", strings.Join(logging.Formats, "', '")),
		"help_log_level":  fmt.Sprintf("Log level: '%s'.", strings.Join(logging.Levels, "', '")),
	},
	kong.DefaultEnvars("BSONTOOL"),
}

func main() {
	kongCtx := kong.Parse(&cli, kongOptions...)

	level := must.NotFail(zapcore.ParseLevel(cli.Log.Level))

	logger, err := logging.Setup(level, cli.Log.Format)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}

	if _, err = maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf)); err != nil {
		logger.Sugar().Warnf("Failed to set GOMAXPROCS: %s.", err)
	}

	reg := serialization.NewRegistry(&serialization.NewRegistryOpts{
		Logger: logger,
	})

	cmd := kongCtx.Command()
	logger.Debug("Running", zap.String("command", cmd))

	in := &inputs{hex: cli.Hex, stdin: os.Stdin}

	switch cmd {
	case "dump <file>":
		err = dump(os.Stdout, reg, in, cli.Dump.Files, &dumpOpts{
			block:   cli.Dump.Block,
			hexDump: cli.Dump.HexDump,
		})
	case "validate <file>":
		err = validate(os.Stdout, reg, in, cli.Validate.Files, &validateOpts{
			record: cli.Validate.Record,
			l:      logger.Named("validate"),
		})
	case "schema <file>":
		err = schema(os.Stdout, reg, in, cli.Schema.Files)
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}

	if cli.Metrics {
		dumpMetrics(reg)
	}

	if err != nil {
		logger.Fatal("Command failed", zap.String("command", cmd), zap.Error(err))
	}

	_ = logger.Sync()
}

// dumpMetrics dumps serializer registry metrics to stderr.
func dumpMetrics(reg *serialization.Registry) {
	r := prometheus.NewRegistry()
	r.MustRegister(reg)

	mfs := must.NotFail(r.Gather())

	for _, mf := range mfs {
		must.NotFail(expfmt.MetricFamilyToText(os.Stderr, mf))
	}
}
