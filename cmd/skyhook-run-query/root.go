package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/uccross/skyhookdb-ceph/internal/engine"
	"github.com/uccross/skyhookdb-ceph/internal/metrics"
	"github.com/uccross/skyhookdb-ceph/internal/querylang"
	"github.com/uccross/skyhookdb-ceph/internal/tableschema"
	"github.com/uccross/skyhookdb-ceph/internal/telemetry"
)

// flagSet holds every flag value pflag populates; viper only overlays
// the SKYHOOK_* environment on top of whatever the user didn't pass on
// the command line, per the teacher's own cobra+viper wiring.
type flagSet struct {
	pool     string
	numObjs  int
	query    string
	useCLS   bool
	quiet    bool
	wthreads int
	qdepth   int

	buildIndex      bool
	buildIndexBatch int
	useIndex        bool
	projection      bool
	extraRowCost    uint64
	logFile         string
	dir             string

	extendedPrice   float64
	orderKey        int32
	lineNumber      int32
	shipDateLow     int32
	shipDateHigh    int32
	discountLow     float64
	discountHigh    float64
	quantity        float64
	commentRegex    string
	projectColNames string

	traceLevel      string
	traceComponents string
	metricsAddr     string
}

func newRootCommand() *cobra.Command {
	f := &flagSet{}
	v := viper.New()
	v.SetEnvPrefix("SKYHOOK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	cmd := &cobra.Command{
		Use:   "skyhook-run-query",
		Short: "Client-side driver for a computation-pushdown query over object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyEnvOverrides(v, cmd, f)
			return runMain(cmd.Context(), f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.pool, "pool", "", "storage pool name, or an http(s):// base URL for the byte-range backend (required)")
	flags.IntVar(&f.numObjs, "num-objs", 0, "number of objects to target, named obj.0 .. obj.{num_objs-1} (required)")
	flags.StringVar(&f.query, "query", "", "query tag: a,b,c,d,e,f,fastpath,flatbuf (required)")
	flags.BoolVar(&f.useCLS, "use-cls", false, "execute the query server-side via aio_exec instead of a plain aio_read")
	flags.BoolVar(&f.quiet, "quiet", false, "suppress per-row output; only print the final summary")
	flags.IntVar(&f.wthreads, "wthreads", 1, "number of worker goroutines draining the completion queue")
	flags.IntVar(&f.qdepth, "qdepth", 1, "maximum number of outstanding requests")
	flags.BoolVar(&f.buildIndex, "build-index", false, "build the row-position index over every target and exit")
	flags.IntVar(&f.buildIndexBatch, "build-index-batch-size", 1000, "rows per index-write batch for --build-index")
	flags.BoolVar(&f.useIndex, "use-index", false, "ask the server to use its index and take the returned rows as already selected (query d with --use-cls only)")
	flags.BoolVar(&f.projection, "projection", false, "request column projection")
	flags.Uint64Var(&f.extraRowCost, "extra-row-cost", 0, "synthetic per-matching-row CPU cost, in busy-loop cycles")
	flags.StringVar(&f.logFile, "log-file", "", "CSV timing log path; empty disables it")
	flags.StringVar(&f.dir, "dir", string(engine.DirForward), "traversal order: fwd, bwd, rnd (fwd reverses; historical)")

	flags.Float64Var(&f.extendedPrice, "extended-price", 0, "price threshold for queries a, b, c")
	flags.Int32Var(&f.orderKey, "order-key", 0, "order key for query d")
	flags.Int32Var(&f.lineNumber, "line-number", 0, "line number for query d")
	flags.Int32Var(&f.shipDateLow, "ship-date-low", querylang.SentinelInt, "inclusive lower ship-date bound for query e")
	flags.Int32Var(&f.shipDateHigh, "ship-date-high", querylang.SentinelInt, "exclusive upper ship-date bound for query e")
	flags.Float64Var(&f.discountLow, "discount-low", querylang.SentinelFloat, "exclusive lower discount bound for query e")
	flags.Float64Var(&f.discountHigh, "discount-high", querylang.SentinelFloat, "exclusive upper discount bound for query e")
	flags.Float64Var(&f.quantity, "quantity", 0, "exclusive upper quantity bound for query e")
	flags.StringVar(&f.commentRegex, "comment_regex", "", "comment regular expression for query f")
	flags.StringVar(&f.projectColNames, "project-col-names", querylang.DefaultProjectColNames, "comma-separated projection for query flatbuf")

	flags.StringVar(&f.traceLevel, "trace-level", "", "override SKYHOOK_TRACE_LEVEL (off,error,warn,info,debug)")
	flags.StringVar(&f.traceComponents, "trace-components", "", "override SKYHOOK_TRACE_COMPONENTS (comma-separated, or ALL)")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address; empty disables it")

	if err := v.BindPFlags(flags); err != nil {
		panic(fmt.Sprintf("cmd: bind flags: %v", err))
	}

	cmd.AddCommand(newTestParCommand())
	return cmd
}

// applyEnvOverrides lets a SKYHOOK_* environment variable stand in for
// any flag the user didn't pass explicitly, matching the teacher's own
// cobra+pflag+viper convention: the flag always wins if given, the
// environment is consulted only for flags left at their default.
func applyEnvOverrides(v *viper.Viper, cmd *cobra.Command, f *flagSet) {
	flags := cmd.Flags()
	overrides := map[string]func(){
		"pool":                   func() { f.pool = v.GetString("pool") },
		"num-objs":               func() { f.numObjs = v.GetInt("num-objs") },
		"query":                  func() { f.query = v.GetString("query") },
		"use-cls":                func() { f.useCLS = v.GetBool("use-cls") },
		"quiet":                  func() { f.quiet = v.GetBool("quiet") },
		"wthreads":               func() { f.wthreads = v.GetInt("wthreads") },
		"qdepth":                 func() { f.qdepth = v.GetInt("qdepth") },
		"build-index":            func() { f.buildIndex = v.GetBool("build-index") },
		"build-index-batch-size": func() { f.buildIndexBatch = v.GetInt("build-index-batch-size") },
		"use-index":              func() { f.useIndex = v.GetBool("use-index") },
		"projection":             func() { f.projection = v.GetBool("projection") },
		"extra-row-cost":         func() { f.extraRowCost = uint64(v.GetInt64("extra-row-cost")) },
		"log-file":               func() { f.logFile = v.GetString("log-file") },
		"dir":                    func() { f.dir = v.GetString("dir") },
		"extended-price":         func() { f.extendedPrice = v.GetFloat64("extended-price") },
		"order-key":              func() { f.orderKey = int32(v.GetInt("order-key")) },
		"line-number":            func() { f.lineNumber = int32(v.GetInt("line-number")) },
		"ship-date-low":          func() { f.shipDateLow = int32(v.GetInt("ship-date-low")) },
		"ship-date-high":         func() { f.shipDateHigh = int32(v.GetInt("ship-date-high")) },
		"discount-low":           func() { f.discountLow = v.GetFloat64("discount-low") },
		"discount-high":          func() { f.discountHigh = v.GetFloat64("discount-high") },
		"quantity":               func() { f.quantity = v.GetFloat64("quantity") },
		"comment_regex":          func() { f.commentRegex = v.GetString("comment_regex") },
		"project-col-names":      func() { f.projectColNames = v.GetString("project-col-names") },
		"trace-level":            func() { f.traceLevel = v.GetString("trace-level") },
		"trace-components":       func() { f.traceComponents = v.GetString("trace-components") },
		"metrics-addr":           func() { f.metricsAddr = v.GetString("metrics-addr") },
	}
	for name, apply := range overrides {
		if flags.Changed(name) {
			continue
		}
		apply()
	}
}

func runMain(ctx context.Context, f *flagSet) error {
	tracer := telemetry.Default()
	if f.traceLevel != "" {
		tracer.SetLevel(telemetry.ParseLevel(f.traceLevel))
	}
	if f.traceComponents != "" {
		for _, c := range strings.Split(f.traceComponents, ",") {
			tracer.EnableComponent(telemetry.Component(strings.ToUpper(strings.TrimSpace(c))))
		}
	}

	if f.pool == "" {
		return fmt.Errorf("cmd: --pool is required")
	}
	if f.numObjs <= 0 {
		return fmt.Errorf("cmd: --num-objs must be positive")
	}

	client, err := openClient(f.pool, f.numObjs, querylang.Tag(f.query))
	if err != nil {
		return err
	}

	var reg *metrics.Registry
	if f.metricsAddr != "" {
		reg = metrics.NewRegistry()
		go serveMetrics(f.metricsAddr, reg, tracer)
	}

	if f.buildIndex {
		return engine.RunBuildIndex(ctx, engine.BuildIndexConfig{
			Client:    client,
			NumObjs:   f.numObjs,
			Dir:       engine.Direction(f.dir),
			WThreads:  f.wthreads,
			Rand:      rand.New(rand.NewSource(1)),
			BatchSize: f.buildIndexBatch,
			Tracer:    tracer,
		})
	}

	q := querylang.Query{
		Tag:             querylang.Tag(f.query),
		ExtendedPrice:   f.extendedPrice,
		OrderKey:        f.orderKey,
		LineNumber:      f.lineNumber,
		ShipDateLow:     f.shipDateLow,
		ShipDateHigh:    f.shipDateHigh,
		DiscountLow:     f.discountLow,
		DiscountHigh:    f.discountHigh,
		Quantity:        f.quantity,
		CommentRegex:    f.commentRegex,
		ProjectColNames: f.projectColNames,
	}
	m := querylang.Modifiers{
		UseServerSide: f.useCLS,
		UseIndex:      f.useIndex,
		Projection:    f.projection,
		ExtraRowCost:  f.extraRowCost,
	}

	res, err := engine.Run(ctx, engine.Config{
		Client:      client,
		NumObjs:     f.numObjs,
		Dir:         engine.Direction(f.dir),
		QDepth:      f.qdepth,
		WThreads:    f.wthreads,
		Rand:        rand.New(rand.NewSource(1)),
		Query:       q,
		Modifiers:   m,
		TableSchema: tableschema.LineitemSchema,
		Quiet:       f.quiet,
		Out:         os.Stdout,
		LogPath:     f.logFile,
		Metrics:     reg,
		Tracer:      tracer,
	})
	if err != nil {
		return err
	}

	fmt.Println(res.Diagnostic)
	fmt.Println(res.Summary)
	return nil
}
