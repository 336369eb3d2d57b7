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

package kinutil

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Knetic/govaluate"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/kinetics/sse"
)

// TimeCourse holds the positional arguments shared by the time-course
// drivers: t0 t_end steps model_file.
type TimeCourse struct {
	T0, TEnd  float64
	Steps     int
	ModelFile string
}

func parseTimeCourse(args []string) (TimeCourse, error) {
	var tc TimeCourse
	var err error
	if tc.T0, err = strconv.ParseFloat(args[0], 64); err != nil {
		return tc, fmt.Errorf("kinetics: bad t0 %q: %v", args[0], err)
	}
	if tc.TEnd, err = strconv.ParseFloat(args[1], 64); err != nil {
		return tc, fmt.Errorf("kinetics: bad t_end %q: %v", args[1], err)
	}
	if tc.Steps, err = strconv.Atoi(args[2]); err != nil {
		return tc, fmt.Errorf("kinetics: bad steps %q: %v", args[2], err)
	}
	if tc.TEnd <= tc.T0 {
		return tc, fmt.Errorf("kinetics: t_end %v must be greater than t0 %v", tc.TEnd, tc.T0)
	}
	if tc.Steps < 1 {
		return tc, fmt.Errorf("kinetics: steps must be positive, got %d", tc.Steps)
	}
	tc.ModelFile = args[3]
	return tc, nil
}

// parseLevel maps the --level flag onto the expansion order.
func parseLevel(s string) (sse.Level, error) {
	switch strings.ToLower(s) {
	case "re":
		return sse.LevelRE, nil
	case "lna":
		return sse.LevelLNA, nil
	case "emre":
		return sse.LevelEMRE, nil
	case "ios":
		return sse.LevelIOS, nil
	default:
		return 0, fmt.Errorf("kinetics: unknown expansion level %q (want re, lna, emre, or ios)", s)
	}
}

// workerCount resolves the --workers flag: an explicit positive value
// wins; otherwise the OMP_NUM_THREADS environment variable is honored,
// falling back to the processor count.
func workerCount(flag int) int {
	if flag > 0 {
		return flag
	}
	if env := os.Getenv("OMP_NUM_THREADS"); env != "" {
		if n, err := strconv.Atoi(env); err == nil && n > 0 {
			return n
		}
	}
	return runtime.GOMAXPROCS(0)
}

// newLogger builds the driver logger, duplicating output into logFile
// when one is configured.
func newLogger(logFile string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: false})
	if logFile == "" {
		log.SetOutput(os.Stderr)
		return log, nil
	}
	f, err := os.Create(os.ExpandEnv(logFile))
	if err != nil {
		return nil, fmt.Errorf("kinetics: problem creating log file: %v", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return log, nil
}

// scanFile is the TOML layout of --scan-file: one [[set]] table per
// parameter set, each assigning values to model parameter names.
type scanFile struct {
	Set []map[string]float64 `toml:"set"`
}

// readScanSets loads the parameter sets of a scan from path.
func readScanSets(path string) ([]map[string]float64, error) {
	var sf scanFile
	if _, err := toml.DecodeFile(os.ExpandEnv(path), &sf); err != nil {
		return nil, fmt.Errorf("kinetics: problem reading scan file: %v", err)
	}
	if len(sf.Set) == 0 {
		return nil, fmt.Errorf("kinetics: scan file %q defines no [[set]] tables", path)
	}
	return sf.Set, nil
}

// outputVar is one derived output column: a named expression over the
// species columns, evaluated per output row.
type outputVar struct {
	name string
	expr *govaluate.EvaluableExpression
}

// parseOutputVars parses the --output-vars flag, a comma-separated list
// of name=expression entries. Expressions are evaluated numerically
// against the species values of each emitted row.
func parseOutputVars(spec string) ([]outputVar, error) {
	if spec == "" {
		return nil, nil
	}
	var out []outputVar
	for _, entry := range strings.Split(spec, ",") {
		name, rhs, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			return nil, fmt.Errorf("kinetics: bad output variable %q (want name=expression)", entry)
		}
		e, err := govaluate.NewEvaluableExpression(rhs)
		if err != nil {
			return nil, fmt.Errorf("kinetics: bad output expression %q: %v", rhs, err)
		}
		out = append(out, outputVar{name: strings.TrimSpace(name), expr: e})
	}
	return out, nil
}

// eval evaluates the derived column against one row's species values.
func (v outputVar) eval(values map[string]interface{}) (float64, error) {
	res, err := v.expr.Evaluate(values)
	if err != nil {
		return 0, fmt.Errorf("kinetics: output variable %q: %v", v.name, err)
	}
	f, ok := res.(float64)
	if !ok {
		return 0, fmt.Errorf("kinetics: output variable %q is not numeric", v.name)
	}
	return f, nil
}
