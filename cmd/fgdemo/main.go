// Command fgdemo renders frames of the deferred demo scene through a frame
// graph and prints the state of every pass.
//
// Usage:
//
//	fgdemo [-config scene.hcl] [-backend noop] [-frames 3] [-metrics]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/config"
	"github.com/gogpu/framegraph/deferred"
	"github.com/gogpu/framegraph/gpu"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "fgdemo: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("fgdemo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "scene file (HCL); empty uses the built-in scene")
		backend    = fs.String("backend", "noop", "GPU backend: noop, vulkan, metal, dx12, gl")
		frames     = fs.Int("frames", -1, "frames to render; negative uses the scene's frame count")
		width      = fs.Uint("width", 0, "surface width exposed to the scene as surface.width")
		height     = fs.Uint("height", 0, "surface height exposed to the scene as surface.height")
		logLevel   = fs.String("log-level", "info", "log level: debug, info, warn, error")
		logFormat  = fs.String("log-format", "text", "log format: text or json")
		metrics    = fs.Bool("metrics", false, "print node metrics in Prometheus text format")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	framegraph.SetLogger(newLogger(*logLevel, *logFormat, stderr))

	surface := config.Surface{Width: uint32(*width), Height: uint32(*height)}
	var cfg *config.File
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath, surface); err != nil {
			return err
		}
	} else {
		cfg = config.Default(surface)
	}
	if *frames >= 0 {
		cfg.Frames = *frames
	}

	b, err := gpu.ParseBackend(*backend)
	if err != nil {
		return err
	}
	ctx, err := gpu.Open(b, gpu.WithSurfaceFormat(gputypes.TextureFormatBGRA8Unorm))
	if err != nil {
		return err
	}
	defer ctx.Close()

	reg := prometheus.NewRegistry()
	m, err := framegraph.NewMetrics(reg)
	if err != nil {
		return err
	}
	r, err := deferred.New(ctx, cfg, deferred.WithMetrics(m))
	if err != nil {
		return err
	}
	defer r.Close()

	for i := 0; i < cfg.Frames; i++ {
		if err := r.RenderFrame(); err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		return err
	}
	if err := printNodes(stdout, r.Graph(), families); err != nil {
		return err
	}
	if *metrics {
		return writeMetrics(stdout, families)
	}
	return nil
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: l}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// counts sums a counter family by its node label.
func counts(families []*dto.MetricFamily, name string) map[string]float64 {
	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "node" {
					out[lp.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	return out
}

func printNodes(w io.Writer, g *framegraph.Graph, families []*dto.MetricFamily) error {
	order, err := g.ExecutionOrder()
	if err != nil {
		return err
	}
	setups := counts(families, "framegraph_node_setup_total")
	executes := counts(families, "framegraph_node_execute_total")
	failures := counts(families, "framegraph_node_failures_total")

	fmt.Fprintf(w, "frames: %d\n", g.Frame())
	for _, name := range order {
		n, _ := g.Node(name)
		enabled := "enabled"
		if !n.ShouldExecute {
			enabled = "disabled"
		}
		fmt.Fprintf(w, "%-12s %-12s %-8s setup=%v execute=%v failures=%v\n",
			name, n.State(), enabled, setups[name], executes[name], failures[name])
	}
	return nil
}

func writeMetrics(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
