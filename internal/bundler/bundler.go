// Package bundler drives esbuild from a resolved build configuration. Features
// esbuild has no counterpart for are reported back instead of being emulated.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/eugenenazirov/buildconf/internal/buildconfig"
)

// ErrBuildFailed is returned when esbuild reports errors.
var ErrBuildFailed = errors.New("bundle build failed")

// Options translates cfg into esbuild options. The second result lists the
// rules and plugins that esbuild cannot express.
func Options(cfg buildconfig.BuildConfig) (api.BuildOptions, []string) {
	var skipped []string

	entries, chunks := entryPoints(cfg.Entry)

	loaders := make(map[string]api.Loader)
	for _, rule := range cfg.Module.Rules {
		matched := false
		for _, ext := range rule.Extensions {
			if loader, ok := loaderFor(rule, ext); ok {
				loaders[ext] = loader
				matched = true
			}
		}
		if !matched {
			skipped = append(skipped, "rule "+rule.Test)
		}
	}

	for _, plugin := range cfg.Plugins {
		skipped = append(skipped, "plugin "+plugin.Name)
	}

	names := namePattern(cfg.Output.Filename)
	opts := api.BuildOptions{
		EntryPointsAdvanced: entries,
		AbsWorkingDir:       cfg.Context,
		Outdir:              cfg.Output.Path,
		EntryNames:          names,
		AssetNames:          names,
		Bundle:              true,
		Write:               true,
		Platform:            api.PlatformBrowser,
		Format:              api.FormatIIFE,
		Loader:              loaders,
		ResolveExtensions:   slices.Clone(cfg.Resolve.Extensions),
		Alias:               cfg.Resolve.Aliases,
		Define: map[string]string{
			"process.env.NODE_ENV": fmt.Sprintf("%q", string(cfg.Mode)),
		},
		LogLevel: api.LogLevelSilent,
	}

	if len(chunks) > 0 {
		opts.Plugins = append(opts.Plugins, chunkPlugin(chunks, cfg.Context))
	}

	if cfg.Optimization.SplitChunks.Chunks == "all" {
		opts.Splitting = true
		opts.Format = api.FormatESModule
	}

	if len(cfg.Optimization.Minimizers) > 0 {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	}

	if cfg.Devtool == buildconfig.SourceMapFull {
		opts.Sourcemap = api.SourceMapLinked
	} else {
		opts.Sourcemap = api.SourceMapNone
	}

	return opts, skipped
}

// Build runs a single esbuild pass for cfg.
func Build(cfg buildconfig.BuildConfig, logger *zap.Logger) error {
	opts, skipped := Options(cfg)
	logSkipped(logger, skipped)

	result := api.Build(opts)
	logMessages(logger, result.Warnings, result.Errors)
	if len(result.Errors) > 0 {
		return fmt.Errorf("%w: %d error(s)", ErrBuildFailed, len(result.Errors))
	}

	logger.Info("build finished",
		zap.String("mode", string(cfg.Mode)),
		zap.String("outdir", opts.Outdir),
		zap.Int("outputs", len(result.OutputFiles)),
	)
	return nil
}

// Serve starts the esbuild dev server on the configured port and blocks until
// ctx is cancelled. Hot reload maps to esbuild's watch mode.
func Serve(ctx context.Context, cfg buildconfig.BuildConfig, logger *zap.Logger) error {
	opts, skipped := Options(cfg)
	logSkipped(logger, skipped)

	buildCtx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		logMessages(logger, nil, ctxErr.Errors)
		return fmt.Errorf("%w: %d error(s)", ErrBuildFailed, len(ctxErr.Errors))
	}
	defer buildCtx.Dispose()

	if cfg.DevServer.Hot {
		if err := buildCtx.Watch(api.WatchOptions{}); err != nil {
			return fmt.Errorf("start watch: %w", err)
		}
	}

	serveOpts := api.ServeOptions{Servedir: cfg.Output.Path}
	setPort(&serveOpts.Port, cfg.DevServer.Port)
	if _, err := buildCtx.Serve(serveOpts); err != nil {
		return fmt.Errorf("start dev server: %w", err)
	}

	logger.Info("dev server listening",
		zap.Int("port", cfg.DevServer.Port),
		zap.Bool("hot", cfg.DevServer.Hot),
		zap.String("servedir", cfg.Output.Path),
	)

	<-ctx.Done()
	logger.Info("dev server stopping")
	return nil
}

// setPort assigns port whatever integer width the esbuild release uses.
func setPort[T ~int | ~uint16](dst *T, port int) {
	*dst = T(port)
}

// chunkNamespace holds the synthetic entry modules of multi-module chunks.
const chunkNamespace = "chunk"

// entryPoints emits one esbuild entry per chunk. A chunk with a single module
// enters through it directly. Longer chunks enter through a "chunk:<name>"
// module, returned in the second result, that imports their modules in order.
func entryPoints(entry map[string][]string) ([]api.EntryPoint, map[string][]string) {
	names := make([]string, 0, len(entry))
	for name := range entry {
		names = append(names, name)
	}
	sort.Strings(names)

	points := make([]api.EntryPoint, 0, len(names))
	chunks := make(map[string][]string)
	for _, name := range names {
		modules := entry[name]
		switch len(modules) {
		case 0:
			continue
		case 1:
			points = append(points, api.EntryPoint{InputPath: modules[0], OutputPath: name})
		default:
			chunks[name] = slices.Clone(modules)
			points = append(points, api.EntryPoint{InputPath: chunkNamespace + ":" + name, OutputPath: name})
		}
	}
	return points, chunks
}

// chunkPlugin serves the synthetic entry modules. Imports inside them resolve
// from dir, the same way the chunk's modules would as standalone entries.
func chunkPlugin(chunks map[string][]string, dir string) api.Plugin {
	return api.Plugin{
		Name: "buildconf-chunks",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + chunkNamespace + ":"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					name := strings.TrimPrefix(args.Path, chunkNamespace+":")
					if _, ok := chunks[name]; !ok {
						return api.OnResolveResult{}, fmt.Errorf("unknown chunk %q", name)
					}
					return api.OnResolveResult{Path: name, Namespace: chunkNamespace}, nil
				})
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: chunkNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := chunkSource(chunks[args.Path])
					return api.OnLoadResult{
						Contents:   &contents,
						ResolveDir: dir,
						Loader:     api.LoaderJS,
					}, nil
				})
		},
	}
}

// chunkSource imports modules for their side effects in declared order.
func chunkSource(modules []string) string {
	var b strings.Builder
	for _, m := range modules {
		b.WriteString("import ")
		b.WriteString(strconv.Quote(m))
		b.WriteString(";\n")
	}
	return b.String()
}

// loaderFor maps a rule chain onto the esbuild loader for ext.
func loaderFor(rule buildconfig.Rule, ext string) (api.Loader, bool) {
	has := func(name string) bool {
		return slices.ContainsFunc(rule.Use, func(l buildconfig.Loader) bool { return l.Name == name })
	}

	switch {
	case has("less-loader"), has("sass-loader"):
		return api.LoaderNone, false
	case has("css-loader"):
		return api.LoaderCSS, true
	case has("file-loader"):
		return api.LoaderFile, true
	case has("xml-loader"), has("csv-loader"):
		return api.LoaderText, true
	case has("babel-loader"):
		switch ext {
		case ".ts":
			return api.LoaderTS, true
		case ".tsx":
			return api.LoaderTSX, true
		case ".jsx":
			return api.LoaderJSX, true
		default:
			return api.LoaderJS, true
		}
	}
	return api.LoaderNone, false
}

// namePattern converts "[name].[hash].js" into esbuild's "[name]-[hash]".
func namePattern(filename string) string {
	if i := strings.LastIndex(filename, "."); i > 0 && !strings.HasSuffix(filename, "]") {
		filename = filename[:i]
	}
	return strings.ReplaceAll(filename, ".[hash]", "-[hash]")
}

func logSkipped(logger *zap.Logger, skipped []string) {
	for _, s := range skipped {
		logger.Debug("not supported by esbuild, skipped", zap.String("feature", s))
	}
}

func logMessages(logger *zap.Logger, warnings, errs []api.Message) {
	for _, msg := range warnings {
		logger.Warn("esbuild warning", messageFields(msg)...)
	}
	for _, msg := range errs {
		logger.Error("esbuild error", messageFields(msg)...)
	}
}

func messageFields(msg api.Message) []zap.Field {
	fields := []zap.Field{zap.String("text", msg.Text)}
	if msg.Location != nil {
		fields = append(fields,
			zap.String("file", msg.Location.File),
			zap.Int("line", msg.Location.Line),
			zap.Int("column", msg.Location.Column),
		)
	}
	return fields
}
