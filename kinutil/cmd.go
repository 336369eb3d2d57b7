/*
Copyright © 2024 the kinetics authors.
This file is part of kinetics.

kinetics is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

kinetics is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with kinetics.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package kinutil holds the command-line interface scaffolding for the
// kinetics drivers: the cobra command tree, viper-backed configuration,
// and the column-oriented output the drivers share.
package kinutil

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is the kinetics version number.
const Version = "0.9.0"

// Cfg holds configuration information for the command tree.
type Cfg struct {
	*viper.Viper

	Root, versionCmd, runCmd, ssaCmd, steadyCmd, scanCmd *cobra.Command
}

// options are the configuration options available to the drivers. Each
// may be set by flag, configuration file (--config), or a KINETICS_var
// environment variable, in the usual viper precedence order.
var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// InitializeConfig builds the command tree and binds its flags.
func InitializeConfig() *Cfg {
	cfg := &Cfg{
		Viper: viper.New(),
	}

	cfg.Root = &cobra.Command{
		Use:   "kinetics",
		Short: "A stochastic chemical-kinetics analysis toolkit.",
		Long: `kinetics analyzes biochemical reaction networks: deterministic
trajectories, linear-noise and higher-order moment corrections, and exact
Monte-Carlo simulation of the underlying jump process.

Use the subcommands below to choose an analysis. Time-course drivers take the
positional arguments 't0 t_end steps model_file' and write whitespace-separated
columns to standard output: time first, then one column per species in the
input model's order, then variance columns where the analysis produces them.
Configuration can be changed with command-line arguments, with a configuration
file (--config), or with environment variables named 'KINETICS_var'.`,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setConfig(cfg)
		},
	}

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kinetics v%s\n", Version)
		},
		DisableAutoGenTag: true,
	}

	cfg.runCmd = &cobra.Command{
		Use:   "run t0 t_end steps model_file",
		Short: "Integrate the deterministic and moment-expansion equations.",
		Long: `run integrates the system-size-expansion hierarchy selected by --level
(re, lna, emre, ios) from t0 to t_end, emitting 'steps' output intervals.`,
		Args:              cobra.ExactArgs(4),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := parseTimeCourse(args)
			if err != nil {
				return err
			}
			return RunTimeCourse(cfg, tc, os.Stdout)
		},
	}

	cfg.ssaCmd = &cobra.Command{
		Use:   "ssa t0 t_end steps model_file",
		Short: "Run a Monte-Carlo ensemble of the jump process.",
		Long: `ssa simulates an ensemble of exact trajectories of the jump process with
the algorithm selected by --method (direct, optimized, nextreaction), emitting
the ensemble mean and variance of every species at each output time.`,
		Args:              cobra.ExactArgs(4),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := parseTimeCourse(args)
			if err != nil {
				return err
			}
			return RunSSA(cfg, tc, os.Stdout)
		},
	}

	cfg.steadyCmd = &cobra.Command{
		Use:   "steady model_file",
		Short: "Solve for the steady state of the rate equations.",
		Long: `steady finds the rate-equation fixed point by damped Newton iteration and
reports the steady species values, with LNA variances when --level is lna or
higher.`,
		Args:              cobra.ExactArgs(1),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunSteady(cfg, args[0], os.Stdout)
		},
	}

	cfg.scanCmd = &cobra.Command{
		Use:   "scan model_file",
		Short: "Sweep the steady-state analysis over parameter sets.",
		Long: `scan repeats the steady-state analysis for every parameter set listed in
the TOML file given by --scan-file, one output row per set. Sets that fail with
a numeric error produce NaN columns; the sweep continues.`,
		Args:              cobra.ExactArgs(1),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunScan(cfg, args[0], os.Stdout)
		},
	}

	cfg.Root.AddCommand(cfg.versionCmd, cfg.runCmd, cfg.ssaCmd, cfg.steadyCmd, cfg.scanCmd)

	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name:       "config",
			usage:      `config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name:       "level",
			usage:      `level selects the expansion order: re, lna, emre, or ios.`,
			shorthand:  "l",
			defaultVal: "lna",
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags(), cfg.steadyCmd.Flags(), cfg.scanCmd.Flags()},
		},
		{
			name:       "opt",
			usage:      `opt selects the bytecode optimization level (0 or 1).`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "workers",
			usage: `workers is the number of worker threads. 0 means the OMP_NUM_THREADS
environment variable, or the machine's processor count if that is unset.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{cfg.ssaCmd.Flags(), cfg.scanCmd.Flags()},
		},
		{
			name:       "method",
			usage:      `method selects the simulation algorithm: direct, optimized, or nextreaction.`,
			shorthand:  "m",
			defaultVal: "optimized",
			flagsets:   []*pflag.FlagSet{cfg.ssaCmd.Flags()},
		},
		{
			name:       "ensemble",
			usage:      `ensemble is the number of Monte-Carlo realizations.`,
			shorthand:  "n",
			defaultVal: 1000,
			flagsets:   []*pflag.FlagSet{cfg.ssaCmd.Flags()},
		},
		{
			name:       "seed",
			usage:      `seed is the master random seed for the per-worker RNG streams.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{cfg.ssaCmd.Flags()},
		},
		{
			name:       "dt",
			usage:      `dt is the internal integration step of the time-course driver.`,
			defaultVal: 1e-3,
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name: "scan-file",
			usage: `scan-file is a TOML file with one [[set]] table per parameter set; each
table assigns numeric values to model parameter names.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.scanCmd.Flags()},
		},
		{
			name: "output-vars",
			usage: `output-vars adds derived output columns: a comma-separated list of
name=expression entries evaluated over the species columns of each output row.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags(), cfg.ssaCmd.Flags(), cfg.steadyCmd.Flags()},
		},
		{
			name:       "log-file",
			usage:      `log-file duplicates progress logging into the given file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
	}

	for _, option := range options {
		for _, set := range option.flagsets {
			if set.Lookup(option.name) != nil { // A flag can appear in multiple flagsets.
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, v, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, v, option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, v, option.usage)
				} else {
					set.IntP(option.name, option.shorthand, v, option.usage)
				}
			case float64:
				set.Float64(option.name, v, option.usage)
			default:
				panic(fmt.Sprintf("kinutil: invalid default type %T for option %s", v, option.name))
			}
		}
		cfg.SetDefault(option.name, option.defaultVal)
	}
	bindFlags(cfg)
	return cfg
}

// bindFlags registers every command's flags with viper so flag,
// configuration-file and environment values resolve through one lookup.
func bindFlags(cfg *Cfg) {
	for _, cmd := range []*cobra.Command{cfg.Root, cfg.versionCmd, cfg.runCmd,
		cfg.ssaCmd, cfg.steadyCmd, cfg.scanCmd} {
		cfg.BindPFlags(cmd.Flags())
		cfg.BindPFlags(cmd.PersistentFlags())
	}
	cfg.SetEnvPrefix("KINETICS")
	cfg.AutomaticEnv()
}

// setConfig reads the configuration file if one was specified.
func setConfig(cfg *Cfg) error {
	path := cfg.GetString("config")
	if path == "" {
		return nil
	}
	cfg.SetConfigFile(os.ExpandEnv(path))
	if err := cfg.ReadInConfig(); err != nil {
		return fmt.Errorf("kinetics: problem reading configuration file: %v", err)
	}
	return nil
}
