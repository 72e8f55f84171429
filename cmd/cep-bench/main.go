// Command cep-bench drives the engine with a synthetic rule population and
// a rate-limited event stream, reporting drop rate, throughput and cache
// behavior. The fixture table comes from build-testdb.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wbrown/janus-cep/cep"
	"github.com/wbrown/janus-cep/cep/engine"
	"github.com/wbrown/janus-cep/cep/sqlite"
)

func main() {
	scenarioPath := flag.String("scenario", "", "YAML scenario file (defaults built in)")
	verbose := flag.Bool("verbose", false, "log engine activity")
	flag.Parse()

	scenario, err := LoadScenario(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	if *verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
			os.Exit(1)
		}
	}

	if err := run(scenario, logger); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(scenario Scenario, logger *zap.Logger) error {
	rng := rand.New(rand.NewSource(scenario.Seed))

	provider, err := sqlite.NewProvider(scenario.Sqlite, logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	eng := engine.New(
		[]engine.NodeProvider{engine.StackProvider{}, provider},
		engine.Options{Workers: scenario.Workers, Logger: logger},
	)
	defer eng.Close()

	for _, decl := range generateDeclarations(scenario) {
		if err := eng.Declare(decl); err != nil {
			return err
		}
	}
	for i, rule := range generateRules(rng, scenario) {
		if err := eng.Define(rule); err != nil {
			return fmt.Errorf("defining rule %d: %w", i, err)
		}
	}

	counter := &engine.CountListener{}
	if _, err := eng.Subscribe(cep.FilterAny{}, counter); err != nil {
		return err
	}

	events := generateEvents(rng, scenario)
	start := time.Now()

	// The loader paces the stream at the configured rate through a
	// bounded queue; events that find the queue full are dropped, which
	// surfaces engine saturation as a drop rate instead of back-pressure.
	queue := make(chan *cep.Event, scenario.QueueLen)
	var group errgroup.Group
	var dropped int
	group.Go(func() error {
		interval := time.Second / time.Duration(scenario.EventsPerSec)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for _, ev := range events {
			<-ticker.C
			ev.Time = time.Now()
			select {
			case queue <- ev:
			default:
				dropped++
			}
		}
		close(queue)
		return nil
	})

	for ev := range queue {
		eng.Publish(ev)
	}
	if err := group.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	report(scenario, provider, counter, dropped, elapsed)
	return nil
}

func report(scenario Scenario, provider *sqlite.Provider, counter *engine.CountListener, dropped int, elapsed time.Duration) {
	stats := provider.CacheStats()
	dropRate := float64(dropped) / float64(scenario.NumEvents) * 100

	table := tablewriter.NewTable(os.Stdout)
	table.Header([]string{"Metric", "Value"})
	table.Append([]string{"Events published", strconv.Itoa(scenario.NumEvents - dropped)})
	table.Append([]string{"Events dropped", fmt.Sprintf("%d (%.2f%%)", dropped, dropRate)})
	table.Append([]string{"Events delivered", strconv.FormatInt(counter.Count(), 10)})
	table.Append([]string{"Cache hits", strconv.FormatUint(stats.Hits, 10)})
	table.Append([]string{"Cache misses", strconv.FormatUint(stats.Misses, 10)})
	table.Append([]string{"Wall time", elapsed.Round(time.Millisecond).String()})
	table.Render()

	if dropRate > 1 {
		color.Yellow("engine saturated: %.2f%% of the stream dropped", dropRate)
	} else {
		color.Green("sustained %d evt/s", scenario.EventsPerSec)
	}
}

// generateDeclarations declares, per rule family: the output event, the
// trigger event with three int attributes, the chain events with one int
// attribute, and the shared static table.
func generateDeclarations(scenario Scenario) []cep.TupleDeclaration {
	var decls []cep.TupleDeclaration
	for i := 0; i < scenario.NumDefs; i++ {
		id := i + 1
		decls = append(decls, cep.TupleDeclaration{
			Kind: cep.EventTuple,
			ID:   id,
			Name: fmt.Sprintf("event%d", id),
		})
		decls = append(decls, cep.TupleDeclaration{
			Kind: cep.EventTuple,
			ID:   id * 1000,
			Name: fmt.Sprintf("event%d", id*1000),
			Attributes: []cep.AttributeDeclaration{
				{Name: "attr0", Type: cep.TypeInt},
				{Name: "attr1", Type: cep.TypeInt},
				{Name: "attr2", Type: cep.TypeInt},
			},
		})
		for j := 1; j < scenario.NumPreds; j++ {
			decls = append(decls, cep.TupleDeclaration{
				Kind: cep.EventTuple,
				ID:   id*1000 + j,
				Name: fmt.Sprintf("event%d", id*1000+j),
				Attributes: []cep.AttributeDeclaration{
					{Name: "attr", Type: cep.TypeInt},
				},
			})
		}
	}

	attrs := make([]cep.AttributeDeclaration, scenario.TableColumns)
	for i := range attrs {
		attrs[i] = cep.AttributeDeclaration{
			Name: fmt.Sprintf("col%d", i),
			Type: cep.TypeInt,
		}
	}
	decls = append(decls, cep.TupleDeclaration{
		Kind:       cep.StaticTuple,
		ID:         0,
		Name:       "test",
		Attributes: attrs,
	})
	return decls
}

func generateRules(rng *rand.Rand, scenario Scenario) []*cep.Rule {
	rules := make([]*cep.Rule, 0, scenario.NumRules)
	for i := 0; i < scenario.NumRules; i++ {
		id := i%scenario.NumDefs + 1

		constraint := cep.Binary(cep.OpEqual, cep.Attr(0), cep.Const(cep.Int(1)))
		predicates := []*cep.Predicate{{
			Kind: &cep.Trigger{Params: []cep.ParameterDeclaration{
				{Name: "x", Expression: cep.Attr(1)},
				{Name: "y", Expression: cep.Attr(2)},
			}},
			Tuple: cep.ConstrainedTuple{
				TyID:        id * 1000,
				Constraints: []cep.Expression{constraint},
				Alias:       fmt.Sprintf("alias%d", id*1000),
			},
		}}

		for j := 1; j < scenario.NumPreds; j++ {
			selection := cep.SelectLast
			switch p := rng.Float64(); {
			case p < scenario.EachProb:
				selection = cep.SelectEach
			case p < scenario.EachProb+scenario.FirstProb:
				selection = cep.SelectFirst
			}
			window := time.Duration(scenario.MinWindow)
			if span := time.Duration(scenario.MaxWindow) - time.Duration(scenario.MinWindow); span > 0 {
				window += time.Duration(rng.Int63n(int64(span)))
			}
			predicates = append(predicates, &cep.Predicate{
				Kind: &cep.EventPred{
					Selection: selection,
					Window: cep.Timing{
						Upper: j - 1,
						Bound: cep.Within{Window: window},
					},
				},
				Tuple: cep.ConstrainedTuple{
					TyID:        id*1000 + j,
					Constraints: []cep.Expression{constraint},
					Alias:       fmt.Sprintf("alias%d", id*1000+j),
				},
			})
		}

		if rng.Float64() <= scenario.StaticProb {
			params := make([]cep.ParameterDeclaration, scenario.TableColumns)
			for k := range params {
				params[k] = cep.ParameterDeclaration{
					Name:       fmt.Sprintf("z%d", k),
					Expression: cep.Attr(k),
				}
			}
			predicates = append(predicates, &cep.Predicate{
				Kind: &cep.UnorderedStatic{Params: params},
				Tuple: cep.ConstrainedTuple{
					TyID: 0,
					Constraints: []cep.Expression{
						cep.Binary(cep.OpGreaterEqual, cep.Attr(0), cep.Param(0, 0)),
						cep.Binary(cep.OpLowerThan, cep.Attr(0), cep.Param(0, 1)),
					},
					Alias: "alias0",
				},
			})
		}

		var consuming []int
		if scenario.Consuming && scenario.NumPreds > 1 {
			consuming = []int{1}
		}

		rules = append(rules, &cep.Rule{
			Predicates: predicates,
			Template:   cep.EventTemplate{TyID: id},
			Consuming:  consuming,
		})
	}
	return rules
}

func generateEvents(rng *rand.Rand, scenario Scenario) []*cep.Event {
	events := make([]*cep.Event, 0, scenario.NumEvents)
	for i := 0; i < scenario.NumEvents; i++ {
		def := rng.Intn(scenario.NumDefs) + 1
		state := rng.Intn(scenario.NumPreds)
		if state == 0 {
			lower := int64(rng.Intn(scenario.MatchingRange))
			upper := lower + int64(float64(scenario.MatchingRows)*[]float64{0.5, 1.0, 1.5}[rng.Intn(3)])
			events = append(events, &cep.Event{
				Tuple: cep.Tuple{
					TyID: def * 1000,
					Data: []cep.Value{cep.Int(1), cep.Int(lower), cep.Int(upper)},
				},
			})
		} else {
			events = append(events, &cep.Event{
				Tuple: cep.Tuple{
					TyID: def*1000 + state,
					Data: []cep.Value{cep.Int(1)},
				},
			})
		}
	}
	return events
}
