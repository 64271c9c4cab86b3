// replay-decode simulates a two-regime recording session, fits the decoder,
// refines it, and writes the run to the run database along with diagnostic
// plots.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/replay.report/internal/decoder"
	"github.com/banshee-data/replay.report/internal/decoder/emission"
	"github.com/banshee-data/replay.report/internal/monitor"
	"github.com/banshee-data/replay.report/internal/runstore"
	"github.com/banshee-data/replay.report/internal/version"
)

func main() {
	outDir := flag.String("out", "decode-output", "Output directory for plots and the run database")
	dbPath := flag.String("db", "", "Run database path (default <out>/runs.db)")
	migrationsDir := flag.String("migrations", "internal/runstore/migrations", "Run database migrations directory")
	nBins := flag.Int("bins", 20, "Number of position bins")
	nNeurons := flag.Int("neurons", 30, "Number of simulated place cells")
	trainSteps := flag.Int("train", 2000, "Training session length in time bins")
	decodeSteps := flag.Int("decode", 400, "Decoding session length in time bins")
	seed := flag.Uint64("seed", 42, "Simulation seed")
	diagonal := flag.Float64("diagonal", 0.98, "Regime self-transition probability")
	useFloat32 := flag.Bool("float32", false, "Use the accelerated float32 decode path")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		log.Printf("replay-decode %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *dbPath == "" {
		*dbPath = filepath.Join(*outDir, "runs.db")
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	rng := rand.New(rand.NewPCG(*seed, 0))
	cfg := emission.DefaultConfig()

	// Fit the spatial grid and place fields from a simulated training run.
	binSize := 5.0
	trackLen := float64(*nBins) * binSize
	trainPos := simulateTrajectory(rng, *trainSteps, trackLen)
	fields := syntheticFields(rng, *nNeurons, trackLen)
	trainSpikes := simulateSpikes(rng, trainPos, fields, cfg.TimeBinSecs)

	env, err := decoder.FitPlaceGrid("track", trainPos, binSize)
	if err != nil {
		log.Fatalf("Failed to fit place grid: %v", err)
	}
	pf, err := emission.Fit(env, trainPos, trainSpikes, cfg)
	if err != nil {
		log.Fatalf("Failed to fit place fields: %v", err)
	}
	log.Printf("fitted %d place fields on %d bins from %d training steps", pf.NNeurons(), env.NBins(), len(trainPos))

	// Decoding session: continuous movement, then a fragmented segment of
	// position jumps, then continuous again.
	testPos := switchingTrajectory(rng, *decodeSteps, trackLen)
	testSpikes := simulateSpikes(rng, testPos, fields, cfg.TimeBinSecs)
	logLik, err := pf.LogLikelihood(testSpikes)
	if err != nil {
		log.Fatalf("Failed to compute spike likelihood: %v", err)
	}

	c := decoder.NewClassifier([]*decoder.Environment{env}, [][]decoder.ContinuousTransition{
		{decoder.RandomWalk{MovementStd: binSize}, decoder.Uniform{}},
		{decoder.Uniform{}, decoder.Uniform{}},
	})
	c.DiscreteType = decoder.DiagonalDiscrete{DiagonalValue: *diagonal}
	if err := c.Fit(nil); err != nil {
		log.Fatalf("Failed to fit classifier: %v", err)
	}

	opts := decoder.DefaultRefineOptions()
	opts.Decode.UseFloat32 = *useFloat32
	blocks := map[decoder.ObservationModel][]float64{
		{EnvironmentName: env.Name}: logLik,
	}
	refined, err := c.EstimateParameters(blocks, len(testPos), opts)
	if err != nil {
		log.Fatalf("Refinement failed: %v", err)
	}
	log.Printf("refined in %d iterations, log likelihood %.2f, converged=%v",
		refined.Iterations, refined.Results.DataLogLikelihood, refined.Converged)

	recordRun(c, refined, *dbPath, *migrationsDir, *diagonal)

	plotPath := filepath.Join(*outDir, "convergence.png")
	if err := monitor.SaveConvergencePlot(refined.LogLikelihoods, plotPath); err != nil {
		log.Fatalf("Failed to write convergence plot: %v", err)
	}
	reportPath := filepath.Join(*outDir, "posterior.html")
	if err := monitor.WritePosteriorReport(refined.Results, []string{"continuous", "fragmented"}, reportPath); err != nil {
		log.Fatalf("Failed to write posterior report: %v", err)
	}
	log.Printf("wrote %s and %s", plotPath, reportPath)
}

// recordRun persists the refined run and its trace.
func recordRun(c *decoder.Classifier, refined *decoder.RefineResult, dbPath, migrationsDir string, diagonal float64) {
	db, err := runstore.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open run database: %v", err)
	}
	defer db.Close()

	if err := db.MigrateUp(migrationsDir); err != nil {
		log.Fatalf("Failed to migrate run database: %v", err)
	}

	params, err := json.Marshal(map[string]interface{}{
		"n_states": c.NStates(),
		"n_bins":   c.MaxBins(),
		"diagonal": diagonal,
	})
	if err != nil {
		log.Fatalf("Failed to encode model parameters: %v", err)
	}

	id, err := db.InsertRun(runstore.DecodeRun{
		ModelParams:       string(params),
		DataLogLikelihood: refined.Results.DataLogLikelihood,
		Converged:         refined.Converged,
		Iterations:        refined.Iterations,
	})
	if err != nil {
		log.Fatalf("Failed to record run: %v", err)
	}
	if err := db.InsertLogLikelihoods(id, refined.LogLikelihoods); err != nil {
		log.Fatalf("Failed to record run trace: %v", err)
	}
	log.Printf("recorded run %s in %s", id, dbPath)
}

// placeField is one simulated neuron's tuning curve.
type placeField struct {
	center  float64
	width   float64
	peakHz  float64
	floorHz float64
}

// syntheticFields spreads Gaussian place fields along the track.
func syntheticFields(rng *rand.Rand, nNeurons int, trackLen float64) []placeField {
	fields := make([]placeField, nNeurons)
	for n := range fields {
		fields[n] = placeField{
			center:  trackLen * float64(n) / float64(nNeurons),
			width:   trackLen * 0.05 * (1 + rng.Float64()),
			peakHz:  10 + 20*rng.Float64(),
			floorHz: 0.1,
		}
	}
	return fields
}

func (f placeField) rate(x float64) float64 {
	d := (x - f.center) / f.width
	return f.floorHz + f.peakHz*math.Exp(-0.5*d*d)
}

// simulateTrajectory runs a reflecting random walk along the track.
func simulateTrajectory(rng *rand.Rand, nSteps int, trackLen float64) [][]float64 {
	pos := make([][]float64, nSteps)
	x := trackLen / 2
	for t := range pos {
		x += rng.NormFloat64() * trackLen * 0.01
		if x < 0 {
			x = -x
		}
		if x > trackLen {
			x = 2*trackLen - x
		}
		pos[t] = []float64{x}
	}
	return pos
}

// switchingTrajectory is continuous movement with a fragmented middle third
// of independent position jumps.
func switchingTrajectory(rng *rand.Rand, nSteps int, trackLen float64) [][]float64 {
	pos := simulateTrajectory(rng, nSteps, trackLen)
	for t := nSteps / 3; t < 2*nSteps/3; t++ {
		pos[t] = []float64{rng.Float64() * trackLen}
	}
	return pos
}

// simulateSpikes draws Poisson counts from each neuron's tuning curve.
func simulateSpikes(rng *rand.Rand, position [][]float64, fields []placeField, dt float64) [][]float64 {
	spikes := make([][]float64, len(position))
	for t, pos := range position {
		row := make([]float64, len(fields))
		for n, f := range fields {
			p := distuv.Poisson{Lambda: f.rate(pos[0]) * dt, Src: rng}
			row[n] = p.Rand()
		}
		spikes[t] = row
	}
	return spikes
}
