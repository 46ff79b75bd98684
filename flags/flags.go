package flags

import (
	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "OP_TESTD"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Value:   "testd.toml",
		Usage:   "Path to the daemon config file",
		EnvVars: prefixEnvVars("CONFIG"),
	}
	OnceFlag = &cli.BoolFlag{
		Name:    "once",
		Usage:   "Run a single test pass and exit instead of serving",
		EnvVars: prefixEnvVars("ONCE"),
	}
	GrepFlag = &cli.StringFlag{
		Name:    "grep",
		Usage:   "Only run tests whose full title matches this pattern (one-shot mode)",
		EnvVars: prefixEnvVars("GREP"),
	}
	FileFlag = &cli.StringFlag{
		Name:    "file",
		Usage:   "Only run suites tagged with this source file path (one-shot mode)",
		EnvVars: prefixEnvVars("FILE"),
	}
	InvertFlag = &cli.BoolFlag{
		Name:    "invert",
		Usage:   "Invert the test name filter (one-shot mode)",
		EnvVars: prefixEnvVars("INVERT"),
	}
	ReporterFlag = &cli.StringFlag{
		Name:    "reporter",
		Value:   "spec",
		Usage:   "Reporter to use, 'spec' or 'json' (one-shot mode)",
		EnvVars: prefixEnvVars("REPORTER"),
	}
	BailFlag = &cli.BoolFlag{
		Name:    "bail",
		Usage:   "Stop at the first failing test (one-shot mode)",
		EnvVars: prefixEnvVars("BAIL"),
	}
	UpdateSnapshotsFlag = &cli.BoolFlag{
		Name:    "update-snapshots",
		Usage:   "Let tests rewrite their snapshot files (one-shot mode)",
		EnvVars: prefixEnvVars("UPDATE_SNAPSHOTS"),
	}
)

var Flags = []cli.Flag{
	ConfigFlag,
	OnceFlag,
	GrepFlag,
	FileFlag,
	InvertFlag,
	ReporterFlag,
	BailFlag,
	UpdateSnapshotsFlag,
}
