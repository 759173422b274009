// Command paritytraced is the process entrypoint for the Parity-compatible
// tracing service: it parses CLI flags (and an optional TOML config file),
// sets up logging, loads the host node's Backend implementation from a Go
// plugin, and serves the "trace" JSON-RPC namespace over HTTP.
//
// The tracing core in package tracing never touches state, the EVM or a
// JSON-RPC transport directly (spec.md §1); this command supplies all
// three: the transport here, and the state/EVM backend via whatever plugin
// the operator points --backend-plugin at. A production node builds that
// plugin around its own core/state.StateDB and core/vm.EVM.
package main

import (
	"fmt"
	"net/http"
	"os"
	"plugin"
	"reflect"

	"github.com/ethereum/go-ethereum/log"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/paritytracer/node/tracing"
)

func init() {
	// Respect container CPU quotas the same way cmd/geth's own entrypoint
	// does, before any flag parsing or goroutine pools spin up.
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn("failed to set GOMAXPROCS", "error", err)
	}
}

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to a TOML config file overriding the flag defaults below",
	}
	rpcAddrFlag = &cli.StringFlag{
		Name:  "rpc-addr",
		Usage: "address the \"trace\" JSON-RPC namespace listens on",
		Value: "127.0.0.1:8546",
	}
	maxTraceFilterBlocksFlag = &cli.Uint64Flag{
		Name:  "max-trace-filter-blocks",
		Usage: "upper bound on to-from for trace_filter (spec.md §6.3)",
		Value: tracing.DefaultConfig().MaxTraceFilterBlocks,
	}
	maxConcurrentTracingCallsFlag = &cli.Int64Flag{
		Name:  "max-concurrent-tracing-calls",
		Usage: "capacity of the permit gate (spec.md §6.3)",
		Value: tracing.DefaultConfig().MaxConcurrentTracingCalls,
	}
	backendPluginFlag = &cli.StringFlag{
		Name:     "backend-plugin",
		Usage:    "path to a Go plugin (built with `go build -buildmode=plugin`) exporting NewBackend() (tracing.Backend, error)",
		Required: true,
	}
)

// fileConfig is the TOML shape loadConfig parses, mirroring cmd/geth's own
// gethConfig: only the fields that make sense to override from a file, CLI
// flags win when both are set explicitly.
type fileConfig struct {
	RPCAddr                   string
	MaxTraceFilterBlocks      uint64
	MaxConcurrentTracingCalls int64
	RangeFilterWorkers        int
}

// tomlSettings matches cmd/geth's own toml.Config: field names are taken
// verbatim (no case folding), so fileConfig's Go field names are also its
// TOML keys.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// loadConfig reads a TOML file into cfg, annotating line-numbered parse
// errors with the file path the same way cmd/geth's own loadConfig does.
func loadConfig(path string, cfg *fileConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(f).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = fmt.Errorf("%s, %w", path, err)
	}
	return err
}

func main() {
	glogger := log.NewTerminalHandler(os.Stderr, false)
	log.SetDefault(log.NewLogger(glogger))

	app := &cli.App{
		Name:  "paritytraced",
		Usage: "Parity-compatible transaction tracing service",
		Flags: []cli.Flag{
			configFlag,
			rpcAddrFlag,
			maxTraceFilterBlocksFlag,
			maxConcurrentTracingCallsFlag,
			backendPluginFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Error("paritytraced exited with an error", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	fc := fileConfig{
		RPCAddr:                   c.String(rpcAddrFlag.Name),
		MaxTraceFilterBlocks:      c.Uint64(maxTraceFilterBlocksFlag.Name),
		MaxConcurrentTracingCalls: c.Int64(maxConcurrentTracingCallsFlag.Name),
		RangeFilterWorkers:        tracing.DefaultConfig().RangeFilterWorkers,
	}
	if path := c.String(configFlag.Name); path != "" {
		if err := loadConfig(path, &fc); err != nil {
			return fmt.Errorf("paritytraced: loading config %s: %w", path, err)
		}
		// Flags given explicitly on the command line win over the file.
		if c.IsSet(rpcAddrFlag.Name) {
			fc.RPCAddr = c.String(rpcAddrFlag.Name)
		}
		if c.IsSet(maxTraceFilterBlocksFlag.Name) {
			fc.MaxTraceFilterBlocks = c.Uint64(maxTraceFilterBlocksFlag.Name)
		}
		if c.IsSet(maxConcurrentTracingCallsFlag.Name) {
			fc.MaxConcurrentTracingCalls = c.Int64(maxConcurrentTracingCallsFlag.Name)
		}
	}

	backend, err := loadBackendPlugin(c.String(backendPluginFlag.Name))
	if err != nil {
		return fmt.Errorf("paritytraced: loading backend plugin: %w", err)
	}

	cfg := tracing.Config{
		MaxTraceFilterBlocks:      fc.MaxTraceFilterBlocks,
		MaxConcurrentTracingCalls: fc.MaxConcurrentTracingCalls,
		RangeFilterWorkers:        fc.RangeFilterWorkers,
	}
	svc := tracing.NewService(backend, cfg)
	api := tracing.NewAPI(svc)

	log.Info("starting trace RPC server", "addr", fc.RPCAddr,
		"maxTraceFilterBlocks", cfg.MaxTraceFilterBlocks,
		"maxConcurrentTracingCalls", cfg.MaxConcurrentTracingCalls)
	return serveHTTP(fc.RPCAddr, api)
}

// backendPluginSymbol is the exported symbol name every backend plugin
// must provide: a func() (tracing.Backend, error).
const backendPluginSymbol = "NewBackend"

func loadBackendPlugin(path string) (tracing.Backend, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup(backendPluginSymbol)
	if err != nil {
		return nil, err
	}
	ctor, ok := sym.(func() (tracing.Backend, error))
	if !ok {
		return nil, fmt.Errorf("plugin %s: %s has the wrong type (want func() (tracing.Backend, error))", path, backendPluginSymbol)
	}
	return ctor()
}

// serveHTTP registers api under the "trace" namespace and serves
// JSON-RPC 2.0 requests over HTTP, the same request/response framing
// go-ethereum's own rpc.Server produces for every other namespace; this
// command owns only the listener, not the RPC server implementation
// (spec.md §1 — "the JSON-RPC transport framing" is out of scope for the
// tracing core itself, but this entrypoint still needs to serve it).
func serveHTTP(addr string, api *tracing.API) error {
	server := gethrpc.NewServer()
	defer server.Stop()
	if err := server.RegisterName("trace", api); err != nil {
		return fmt.Errorf("registering trace namespace: %w", err)
	}
	return http.ListenAndServe(addr, server)
}
