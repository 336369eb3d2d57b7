package kinutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spatialmodel/kinetics/sse"
)

const birthDeathXML = `<?xml version="1.0" encoding="UTF-8"?>
<sbml level="2" version="4">
  <model id="bd" substanceUnits="item">
    <listOfCompartments>
      <compartment id="cell" spatialDimensions="3" size="1" constant="true"/>
    </listOfCompartments>
    <listOfSpecies>
      <species id="X" compartment="cell" initialAmount="10" hasOnlySubstanceUnits="true"/>
    </listOfSpecies>
    <listOfParameters>
      <parameter id="k" value="10" constant="true"/>
      <parameter id="gamma" value="1" constant="true"/>
    </listOfParameters>
    <listOfReactions>
      <reaction id="birth" reversible="false">
        <listOfProducts><speciesReference species="X"/></listOfProducts>
        <kineticLaw formula="k"/>
      </reaction>
      <reaction id="death" reversible="false">
        <listOfReactants><speciesReference species="X"/></listOfReactants>
        <kineticLaw formula="gamma*X"/>
      </reaction>
    </listOfReactions>
  </model>
</sbml>`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func lastRow(t *testing.T, buf *bytes.Buffer) []float64 {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	fields := strings.Fields(lines[len(lines)-1])
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		require.NoError(t, err, "column %d", i)
		out[i] = v
	}
	return out
}

func TestParseTimeCourse(t *testing.T) {
	tc, err := parseTimeCourse([]string{"0", "5", "50", "model.xml"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, tc.T0)
	assert.Equal(t, 5.0, tc.TEnd)
	assert.Equal(t, 50, tc.Steps)
	assert.Equal(t, "model.xml", tc.ModelFile)

	_, err = parseTimeCourse([]string{"5", "0", "50", "model.xml"})
	assert.Error(t, err)
	_, err = parseTimeCourse([]string{"0", "5", "x", "model.xml"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]sse.Level{
		"re": sse.LevelRE, "LNA": sse.LevelLNA, "emre": sse.LevelEMRE, "ios": sse.LevelIOS,
	} {
		got, err := parseLevel(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := parseLevel("lma")
	assert.Error(t, err)
}

func TestWorkerCountHonorsEnvironment(t *testing.T) {
	assert.Equal(t, 3, workerCount(3))
	t.Setenv("OMP_NUM_THREADS", "5")
	assert.Equal(t, 5, workerCount(0))
	t.Setenv("OMP_NUM_THREADS", "")
	assert.Greater(t, workerCount(0), 0)
}

func TestParseOutputVars(t *testing.T) {
	vars, err := parseOutputVars("total=X+Y, ratio=X/Y")
	require.NoError(t, err)
	require.Len(t, vars, 2)
	v, err := vars[0].eval(map[string]interface{}{"X": 3.0, "Y": 4.0})
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
	v, err = vars[1].eval(map[string]interface{}{"X": 3.0, "Y": 4.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, v, 1e-12)

	_, err = parseOutputVars("nonsense")
	assert.Error(t, err)
}

func TestReadScanSets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[set]]
gamma = 0.5
[[set]]
gamma = 1.0
`), 0o644))
	sets, err := readScanSets(path)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, 0.5, sets[0]["gamma"])
	assert.Equal(t, 1.0, sets[1]["gamma"])
}

func TestRunTimeCourseRelaxesToSteadyState(t *testing.T) {
	cfg := InitializeConfig()
	cfg.Set("level", "lna")
	path := writeFixture(t, birthDeathXML)

	var buf bytes.Buffer
	require.NoError(t, RunTimeCourse(cfg, TimeCourse{T0: 0, TEnd: 20, Steps: 20, ModelFile: path}, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 21, "steps+1 output rows")

	// time, X mean, X variance
	row := lastRow(t, &buf)
	require.Len(t, row, 3)
	assert.InDelta(t, 20.0, row[0], 1e-9)
	assert.InDelta(t, 10.0, row[1], 1e-3)
	assert.InDelta(t, 10.0, row[2], 1e-2)
}

func TestRunSteadyEmitsSteadyRow(t *testing.T) {
	cfg := InitializeConfig()
	cfg.Set("level", "lna")
	path := writeFixture(t, birthDeathXML)

	var buf bytes.Buffer
	require.NoError(t, RunSteady(cfg, path, &buf))
	row := lastRow(t, &buf)
	require.Len(t, row, 3)
	assert.InDelta(t, 10.0, row[1], 1e-7)
	assert.InDelta(t, 10.0, row[2], 1e-7)
}

func TestRunSSAEmitsEnsembleMoments(t *testing.T) {
	cfg := InitializeConfig()
	cfg.Set("ensemble", 2000)
	cfg.Set("workers", 1)
	cfg.Set("method", "optimized")
	path := writeFixture(t, birthDeathXML)

	var buf bytes.Buffer
	require.NoError(t, RunSSA(cfg, TimeCourse{T0: 0, TEnd: 10, Steps: 5, ModelFile: path}, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 6)
	row := lastRow(t, &buf)
	require.Len(t, row, 3)
	assert.InDelta(t, 10.0, row[1], 0.5)
	assert.InDelta(t, 10.0, row[2], 2.0)
}

func TestRunScanSweepsParameterSets(t *testing.T) {
	cfg := InitializeConfig()
	cfg.Set("level", "re")
	cfg.Set("workers", 1)
	scanPath := filepath.Join(t.TempDir(), "scan.toml")
	require.NoError(t, os.WriteFile(scanPath, []byte(`
[[set]]
gamma = 0.5
[[set]]
gamma = 2.0
`), 0o644))
	cfg.Set("scan-file", scanPath)
	path := writeFixture(t, birthDeathXML)

	var buf bytes.Buffer
	require.NoError(t, RunScan(cfg, path, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	first := strings.Fields(lines[0])
	require.Len(t, first, 2) // gamma value, X steady state
	assert.Equal(t, "0.5", first[0])
	assert.Equal(t, "20", first[1])
}
