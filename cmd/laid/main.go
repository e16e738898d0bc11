// Command laid is the orchestrator: it reads a dataset container, prepares
// it (sort/dedupe/class-index), appends JNSQ disambiguation bits, then
// drives the distributed greedy set-cover loop across an in-process
// cluster of ranks and prints the selected attribute set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/laid-engine/laid/pkg/cluster"
	"github.com/laid-engine/laid/pkg/config"
	"github.com/laid-engine/laid/pkg/dataset"
	"github.com/laid-engine/laid/pkg/enumerator"
	"github.com/laid-engine/laid/pkg/jnsq"
	"github.com/laid-engine/laid/pkg/reader"
	"github.com/laid-engine/laid/pkg/setcover"
	"github.com/laid-engine/laid/pkg/shared"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("laid", flag.ContinueOnError)
	file := fs.String("f", "", "dataset container file")
	name := fs.String("d", "", "dataset name within the container")
	ranks := fs.Int("ranks", 0, "number of ranks (0 = use config default)")
	ranksPerNode := fs.Int("ranks-per-node", 0, "ranks per node (0 = use config default)")
	configPath := fs.String("config", "", "optional config file (yaml/json/toml)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.New()
	if *configPath != "" {
		if err := cfg.LoadFromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "laid: config: %v\n", err)
			return 1
		}
	}
	if *file != "" {
		cfg.Set("dataset.file", *file)
	}
	if *name != "" {
		cfg.Set("dataset.name", *name)
	}
	if *ranks > 0 {
		cfg.Set("distributed.ranks", *ranks)
	}
	if *ranksPerNode > 0 {
		cfg.Set("distributed.ranks_per_node", *ranksPerNode)
	}

	log := cfg.CreateLogger()

	if cfg.DatasetFile() == "" {
		fmt.Fprintln(os.Stderr, "laid: -f <dataset file> is required")
		return 2
	}

	rm, err := (reader.FileReader{}).Read(cfg.DatasetFile(), cfg.DatasetName())
	if err != nil {
		fmt.Fprintf(os.Stderr, "laid: %v\n", err)
		return 1
	}
	log.Info().Str("file", cfg.DatasetFile()).Int("n", rm.N).Int("a", rm.A).Int("k", rm.K).Msg("dataset read")

	layout := dataset.NewLayout(rm.A, rm.C)
	ds, err := dataset.New(layout, rm.Data, rm.N, rm.K)
	if err != nil {
		fmt.Fprintf(os.Stderr, "laid: %v\n", err)
		return 1
	}

	removed, err := ds.Prepare()
	if err != nil {
		fmt.Fprintf(os.Stderr, "laid: %v\n", err)
		return 1
	}
	log.Info().Int("duplicates_removed", removed).Msg("dataset prepared")

	jnsqDS, jr, err := jnsq.Apply(ds, jnsq.Config{BitReversal: cfg.JNSQBitReversal()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "laid: jnsq: %v\n", err)
		return 1
	}
	log.Info().Int("max_inconsistency", jr.MaxInconsistency).Int("jnsq_width", jr.Width).Msg("jnsq applied")

	group := shared.New()
	group.Load(jnsqDS, shared.Metadata{
		Attributes: jnsqDS.Layout.Attributes,
		ClassBits:  jnsqDS.Layout.ClassBits,
		Words:      jnsqDS.Layout.Words,
		N:          jnsqDS.N,
		K:          jnsqDS.K,
		JNSQWidth:  jr.Width,
	})

	sizes := make(enumerator.ClassSizes, jnsqDS.K)
	for k := 0; k < jnsqDS.K; k++ {
		sizes[k] = jnsqDS.ClassCount(k)
	}
	en := enumerator.New(sizes)

	size := cfg.Ranks()
	nodeSize := cfg.RanksPerNode()
	cl, err := cluster.New(size, nodeSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "laid: %v\n", err)
		return 1
	}

	driver := &setcover.Driver{
		DS:            group.Dataset(),
		En:            en,
		Cluster:       cl,
		Logger:        zerologAdapter{log},
		WordsPerCycle: cfg.WordsPerCycle(),
	}

	result, err := driver.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "laid: %v\n", err)
		return 1
	}

	printSolution(result)
	return 0
}

func printSolution(res setcover.Result) {
	fmt.Print("Solution: { ")
	for i, attr := range res.Selected {
		if i > 0 {
			fmt.Print(" ")
		}
		fmt.Print(attr)
	}
	fmt.Println(" }")

	pct := 0.0
	if res.TotalAttributes > 0 {
		pct = 100 * float64(len(res.Selected)) / float64(res.TotalAttributes)
	}
	fmt.Printf("%d of %d attributes selected (%.1f%%)\n", len(res.Selected), res.TotalAttributes, pct)
}

// zerologAdapter satisfies setcover.Logger using a configured zerolog.Logger.
type zerologAdapter struct {
	log zerolog.Logger
}

func (z zerologAdapter) Debugf(format string, args ...interface{}) { z.log.Debug().Msgf(format, args...) }
func (z zerologAdapter) Infof(format string, args ...interface{})  { z.log.Info().Msgf(format, args...) }
