// Command quickstream assembles and runs a filter graph from the
// command line: load filters and controllers by kind, wire them
// together, bring the stream to readiness, and optionally launch its
// worker pool.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/quickstream/quickstream/internal/app"
	"github.com/quickstream/quickstream/internal/config"
	"github.com/quickstream/quickstream/internal/controller"
	"github.com/quickstream/quickstream/internal/controller/backpressure"
	"github.com/quickstream/quickstream/internal/controller/scheduledsnapshot"
	"github.com/quickstream/quickstream/internal/dotrender"
	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/graph"
	"github.com/quickstream/quickstream/internal/qslog"
	"github.com/quickstream/quickstream/internal/registry"

	_ "github.com/quickstream/quickstream/filters/countsource"
	_ "github.com/quickstream/quickstream/filters/mqttsink"
	_ "github.com/quickstream/quickstream/filters/passthrough"
	_ "github.com/quickstream/quickstream/filters/redissource"
	_ "github.com/quickstream/quickstream/filters/sink"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	inv, _, err := config.Load(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		printUsage(os.Stderr)
		return 1
	}

	if inv.Help {
		printUsage(os.Stdout)
		return 0
	}
	if inv.Version {
		fmt.Println("quickstream", version)
		return 0
	}
	if inv.FilterHelp != "" {
		return printFilterHelp(inv.FilterHelp)
	}

	log := qslog.New(levelFor(inv.Verbose), "text")
	a := app.New(log)
	defer a.Destroy()

	filters, err := loadFilters(a, inv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return 1
	}
	if _, err := loadControllers(a, inv); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return 1
	}

	stream := a.NewStream("main")
	localIdx := make([]int, len(filters))
	for i, r := range filters {
		localIdx[i] = stream.AddFilter(r)
	}
	if err := wireConnections(stream, inv, localIdx); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return 1
	}

	needsReady := inv.Ready || inv.Run || inv.Dot || inv.Display
	if needsReady {
		if err := stream.Ready(); err != nil {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
			return 1
		}
		if err := wireAuxiliaryControllers(a, stream, log); err != nil {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
			return 1
		}
	}

	if inv.Dot || inv.Display {
		if err := emitDot(stream, inv); err != nil {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
			return 1
		}
	}

	if inv.Run {
		return runStream(stream, inv)
	}
	return 0
}

func levelFor(verbose int) string {
	switch {
	case verbose >= 2:
		return "trace"
	case verbose == 1:
		return "debug"
	case verbose == 0:
		return "info"
	case verbose == -1:
		return "warn"
	default:
		return "error"
	}
}

func loadFilters(a *app.App, inv *config.Invocation) ([]*filter.Record, error) {
	records := make([]*filter.Record, 0, len(inv.Filters))
	for _, fl := range inv.Filters {
		plugin, err := registry.NewFilter(fl.Path)
		if err != nil {
			return nil, err
		}
		r, err := a.LoadFilter(fl.Name, plugin, 1, fl.Args)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func loadControllers(a *app.App, inv *config.Invocation) ([]*controller.Record, error) {
	for _, cl := range inv.Controllers {
		plugin, err := registry.NewController(cl.Path)
		if err != nil {
			return nil, err
		}
		if _, err := a.LoadController(cl.Name, plugin, cl.Args); err != nil {
			return nil, err
		}
	}
	return a.Controllers(), nil
}

// wireConnections translates parsed --connect/--plug requests into
// Stream edges. An empty ConnectSpec chains every loaded filter in load
// order, including filters loaded after that --connect on the command
// line; a non-empty one wires each index pair with
// auto-assigned ports; a PlugSpec wires one edge with explicit ports.
func wireConnections(stream *app.Stream, inv *config.Invocation, localIdx []int) error {
	for _, c := range inv.Connects {
		if len(c.Pairs) == 0 {
			for i := 0; i+1 < len(localIdx); i++ {
				stream.Connect(localIdx[i], graph.NextPort, localIdx[i+1], graph.NextPort)
			}
			continue
		}
		for _, pair := range c.Pairs {
			stream.Connect(localIdx[pair[0]], graph.NextPort, localIdx[pair[1]], graph.NextPort)
		}
	}
	for _, p := range inv.Plugs {
		stream.Connect(localIdx[p.From], p.FromPort, localIdx[p.To], p.ToPort)
	}
	return nil
}

// wireAuxiliaryControllers runs the second, explicit wiring step each
// observer controller needs once the stream is Ready: backpressure
// binds to its named target filter, scheduledsnapshot starts its cron
// schedule against every loaded filter.
func wireAuxiliaryControllers(a *app.App, stream *app.Stream, log qslog.Logger) error {
	for _, rec := range a.Controllers() {
		switch c := rec.Plugin.(type) {
		case *backpressure.Controller:
			if c.Target() == "" {
				continue
			}
			target := a.FilterByName(c.Target())
			if target == nil {
				return fmt.Errorf("controller %q: no such target filter %q", rec.Name, c.Target())
			}
			c.SetLogger(log)
			if err := c.Watch(target, stream); err != nil {
				return err
			}
		case *scheduledsnapshot.Controller:
			c.Start(a, log)
		}
	}
	return nil
}

func emitDot(stream *app.Stream, inv *config.Invocation) error {
	streams := []dotrender.StreamGraph{{Name: stream.Name(), G: stream.Graph()}}
	detail := dotrender.Brief
	if inv.Verbose > 0 {
		detail = dotrender.Full
	}

	if inv.Dot {
		if err := dotrender.Write(os.Stdout, streams, detail); err != nil {
			return err
		}
	}
	if inv.Display {
		return pipeToDisplay(streams, detail, inv.DisplayWait)
	}
	return nil
}

func pipeToDisplay(streams []dotrender.StreamGraph, detail dotrender.Detail, wait bool) error {
	cmd := exec.Command("display")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	if err := dotrender.Write(stdin, streams, detail); err != nil {
		stdin.Close()
		return err
	}
	stdin.Close()
	if wait {
		return cmd.Wait()
	}
	return nil
}

func runStream(stream *app.Stream, inv *config.Invocation) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		stream.StopSources()
	}()

	if err := stream.Launch(inv.Threads, nil); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return 1
	}
	stream.Wait()
	return 0
}

func printFilterHelp(kind string) int {
	plugin, err := registry.NewFilter(kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return 1
	}
	if h, ok := plugin.(filter.Helper); ok {
		fmt.Println(h.Help())
		return 0
	}
	fmt.Printf("%s: no help text available\n", kind)
	return 0
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "usage: quickstream [options]")
	fmt.Fprintln(w, "  -f, --filter FILENAME { module-args }   load filter plugin")
	fmt.Fprintln(w, "  -F, --filter-help FILENAME               print a filter's help text and exit")
	fmt.Fprintln(w, "  -c, --connect \"i j [i j ...]\"           append edges (empty = chain all loaded)")
	fmt.Fprintln(w, "  -p, --plug \"from to fromPort toPort\"    append edge with explicit ports")
	fmt.Fprintln(w, "      --controller FILENAME { args }        load controller plugin")
	fmt.Fprintln(w, "  -R, --ready                               bring the stream to readiness")
	fmt.Fprintln(w, "  -r, --run                                 ready, then launch the worker pool")
	fmt.Fprintln(w, "  -t, --threads N                           worker pool bound (default 7)")
	fmt.Fprintln(w, "  -d, --display, -D, --display-wait          pipe dot graph to `display`")
	fmt.Fprintln(w, "  -g, --dot                                 emit dot graph to stdout")
	fmt.Fprintln(w, "  -v, --verbose, -n, --no-verbose           adjust log verbosity")
	fmt.Fprintln(w, "  -h, --help                                print this text and exit")
	fmt.Fprintln(w, "  -V, --version                             print version and exit")

	kinds := registry.Default().FilterKinds()
	if len(kinds) > 0 {
		fmt.Fprintln(w, "\nregistered filters:")
		for _, k := range kinds {
			fmt.Fprintf(w, "  %s\n", k)
		}
	}
	ckinds := registry.Default().ControllerKinds()
	if len(ckinds) > 0 {
		fmt.Fprintln(w, "\nregistered controllers:")
		for _, k := range ckinds {
			fmt.Fprintf(w, "  %s\n", k)
		}
	}
}
