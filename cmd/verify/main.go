// Command verify runs the validation suites offline: oracle agreement under
// random actions, simulator/oracle equivalence under the greedy policy and the
// noise sweep over Bell permutations. It exits non-zero on any regression.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/rollout"
	"github.com/aristath/disentangle/pkg/logger"
)

func parseQubits(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid qubit count %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}

func main() {
	suites := flag.String("suites", "agreement,equivalence,noise", "Comma separated suites to run")
	qubits := flag.String("qubits", "4,5,6", "Register sizes for the equivalence suite")
	trials := flag.Int("trials", 100, "Base trial count; larger registers run a share of it")
	agreementSteps := flag.Int("agreement-steps", 6, "Random actions per agreement trial")
	seed := flag.Uint64("seed", 0, "Seed for initial states (0 = time based)")
	workers := flag.Int("workers", 4, "Parallel trials")
	logLevel := flag.String("log-level", "info", "Log level")
	jsonOut := flag.Bool("json", false, "Print reports as JSON lines")
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel, Pretty: true, Output: os.Stderr})

	sizes, err := parseQubits(*qubits)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad -qubits")
	}
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	policies := policy.DefaultRegistry(rand.New(rand.NewPCG(*seed, 1)))
	suite := rollout.NewSuite(policies, *workers, log)

	var reports []rollout.Report
	for _, name := range strings.Split(*suites, ",") {
		switch strings.TrimSpace(name) {
		case rollout.KindAgreement:
			for _, n := range sizes {
				rep, err := suite.RunAgreement(ctx, n, rollout.ScaledTrials(n, *trials), *agreementSteps, *seed)
				if err != nil {
					log.Fatal().Err(err).Int("qubits", n).Msg("Agreement suite failed")
				}
				reports = append(reports, rep)
			}
		case rollout.KindEquivalence:
			for _, n := range sizes {
				rep, err := suite.RunEquivalence(ctx, n, rollout.ScaledTrials(n, *trials), *seed)
				if err != nil {
					log.Fatal().Err(err).Int("qubits", n).Msg("Equivalence suite failed")
				}
				reports = append(reports, rep)
			}
		case rollout.KindNoise:
			rep, err := suite.RunNoise(ctx, rollout.DefaultNoiseLevels, rollout.DefaultNoiseSteps, *seed)
			if err != nil {
				log.Fatal().Err(err).Msg("Noise suite failed")
			}
			reports = append(reports, rep)
		case "":
		default:
			log.Fatal().Str("suite", name).Msg("Unknown suite")
		}
	}

	if !report(reports, *jsonOut, log) {
		os.Exit(1)
	}
}

// report prints every report and returns whether all passed.
func report(reports []rollout.Report, jsonOut bool, log zerolog.Logger) bool {
	ok := true
	enc := json.NewEncoder(os.Stdout)
	for _, rep := range reports {
		passed := rep.Passed(rollout.MinPassRate)
		ok = ok && passed
		if jsonOut {
			if err := enc.Encode(rep); err != nil {
				log.Error().Err(err).Msg("Failed to encode report")
			}
			continue
		}
		fmt.Printf("%-12s %dq  trials=%-4d failed=%-3d pass=%.3f  min_fidelity=%.9f  %s\n",
			rep.Kind, rep.Qubits, rep.Trials, rep.Failed, rep.PassRate, rep.MinFidelity, verdict(passed))
	}
	return ok
}

func verdict(passed bool) string {
	if passed {
		return "ok"
	}
	return "FAIL"
}
