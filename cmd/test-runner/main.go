// Package main - test-runner
// Runs the lifecycle simulation scenarios and exits non-zero on failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/simulation"
)

func main() {
	verbose := flag.Bool("v", false, "log every scenario")
	flag.Parse()

	fmt.Println("🐾 PETGUILD - LIFECYCLE SIMULATION SUITE")
	fmt.Println(strings.Repeat("=", 48))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger.NewNop()
	if *verbose {
		log = logger.New("info", "console")
	}

	reports := simulation.NewRunner(log).RunAll(ctx, simulation.DefaultScenarios())

	passed, failed := 0, 0
	for _, r := range reports {
		res := r.Result
		if r.Passed {
			passed++
			fmt.Printf("   ✅ %s (%s)\n", r.Scenario, r.Took)
		} else {
			failed++
			fmt.Printf("   ❌ %s: %s\n", r.Scenario, r.Detail)
		}
		if res.AdoptErr == nil {
			fmt.Printf("      stage=%s health=%d level=%d feeds=%d plays=%d balance=%d\n",
				res.Pet.Stage, res.Pet.Health, res.Pet.Level, res.Feeds, res.Plays, res.Balance)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("📊 SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("   ✅ Passed: %d\n", passed)
	fmt.Printf("   ❌ Failed: %d\n", failed)

	if failed > 0 || len(reports) < len(simulation.DefaultScenarios()) {
		fmt.Println("\n⚠️  Lifecycle tuning needs another look")
		os.Exit(1)
	}
	fmt.Println("\n✅ Lifecycle behaves as tuned")
}
