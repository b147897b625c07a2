package buildconfig

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testRoot = "/srv/app"

func newTestResolver(mode Mode) *Resolver {
	return New(mode, DefaultProject(testRoot))
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want Mode
	}{
		{raw: "development", want: Development},
		{raw: "production", want: Production},
		{raw: "", want: Production},
		{raw: "Development", want: Production},
		{raw: "test", want: Production},
	}

	for _, tc := range tests {
		if got := ParseMode(tc.raw); got != tc.want {
			t.Fatalf("ParseMode(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestFilenameFor(t *testing.T) {
	t.Parallel()

	if got := newTestResolver(Development).FilenameFor("js"); got != "[name].js" {
		t.Fatalf("unexpected development filename %q", got)
	}

	got := newTestResolver(Production).FilenameFor("js")
	if got != "[name].[hash].js" {
		t.Fatalf("unexpected production filename %q", got)
	}
	if !strings.Contains(got, "[hash]") {
		t.Fatalf("expected hash placeholder in %q", got)
	}
}

func TestStyleLoaders(t *testing.T) {
	t.Parallel()

	r := newTestResolver(Development)

	withExtra := r.StyleLoaders("less-loader")
	names := loaderNames(withExtra)
	if want := []string{extractLoader, cssLoader, "less-loader"}; !slices.Equal(names, want) {
		t.Fatalf("expected %v, got %v", want, names)
	}

	base := r.StyleLoaders("")
	if want := []string{extractLoader, cssLoader}; !slices.Equal(loaderNames(base), want) {
		t.Fatalf("expected %v, got %v", want, loaderNames(base))
	}

	opts, ok := base[0].Options.(ExtractLoaderOptions)
	if !ok || !opts.HMR || !opts.ReloadAll {
		t.Fatalf("unexpected extraction options in development: %+v", base[0].Options)
	}

	prodOpts := newTestResolver(Production).StyleLoaders("")[0].Options.(ExtractLoaderOptions)
	if prodOpts.HMR {
		t.Fatalf("expected hmr disabled in production")
	}
}

func TestScriptTransformOptions(t *testing.T) {
	t.Parallel()

	base := ScriptTransformOptions("")
	if want := []string{presetEnv}; !slices.Equal(base.Presets, want) {
		t.Fatalf("expected presets %v, got %v", want, base.Presets)
	}
	if want := []string{classProperties}; !slices.Equal(base.Plugins, want) {
		t.Fatalf("expected plugins %v, got %v", want, base.Plugins)
	}

	typed := ScriptTransformOptions(presetTS)
	if want := []string{presetEnv, presetTS}; !slices.Equal(typed.Presets, want) {
		t.Fatalf("expected presets %v, got %v", want, typed.Presets)
	}

	// appending to one result must not leak into the next
	again := ScriptTransformOptions("")
	if len(again.Presets) != 1 {
		t.Fatalf("expected fresh presets, got %v", again.Presets)
	}
}

func TestScriptLoaders(t *testing.T) {
	t.Parallel()

	dev := loaderNames(newTestResolver(Development).ScriptLoaders())
	if want := []string{babelLoader, eslintLoader}; !slices.Equal(dev, want) {
		t.Fatalf("expected %v, got %v", want, dev)
	}

	prod := loaderNames(newTestResolver(Production).ScriptLoaders())
	if want := []string{babelLoader}; !slices.Equal(prod, want) {
		t.Fatalf("expected %v, got %v", want, prod)
	}
}

func TestOptimization(t *testing.T) {
	t.Parallel()

	dev := newTestResolver(Development).Optimization()
	if len(dev.Minimizers) != 0 {
		t.Fatalf("expected no minimizers in development, got %v", dev.Minimizers)
	}
	if dev.SplitChunks.Chunks != "all" {
		t.Fatalf("expected chunk splitting in development")
	}

	prod := newTestResolver(Production).Optimization()
	if len(prod.Minimizers) != 2 {
		t.Fatalf("expected 2 minimizers in production, got %d", len(prod.Minimizers))
	}
	if prod.Minimizers[0].Name != MinimizerCSS || prod.Minimizers[1].Name != MinimizerJS {
		t.Fatalf("unexpected minimizers %v", prod.Minimizers)
	}
	if prod.SplitChunks.Chunks != "all" {
		t.Fatalf("expected chunk splitting in production")
	}
}

func TestPlugins(t *testing.T) {
	t.Parallel()

	dev := newTestResolver(Development).Plugins()
	prod := newTestResolver(Production).Plugins()

	if len(prod) != len(dev)+1 {
		t.Fatalf("expected production to add one plugin, got dev=%d prod=%d", len(dev), len(prod))
	}

	devNames := pluginNames(dev)
	prodNames := pluginNames(prod)
	if !slices.Equal(devNames, prodNames[:len(devNames)]) {
		t.Fatalf("base plugin order differs: dev=%v prod=%v", devNames, prodNames)
	}
	if want := []string{PluginHTML, PluginClean, PluginCopy, PluginExtract}; !slices.Equal(devNames, want) {
		t.Fatalf("expected %v, got %v", want, devNames)
	}
	if last := prodNames[len(prodNames)-1]; last != PluginAnalyzer {
		t.Fatalf("expected analyzer last, got %s", last)
	}

	html := prod[0].Options.(HTMLPluginOptions)
	if !html.Minify.CollapseWhitespace {
		t.Fatalf("expected whitespace collapsing in production")
	}

	cp := dev[2].Options.(CopyPluginOptions)
	wantCopy := CopyPattern{
		From: filepath.Join(testRoot, "src", "favicon.ico"),
		To:   filepath.Join(testRoot, "dist"),
	}
	if len(cp.Patterns) != 1 || cp.Patterns[0] != wantCopy {
		t.Fatalf("unexpected copy patterns %v", cp.Patterns)
	}

	extract := prod[3].Options.(ExtractPluginOptions)
	if extract.Filename != "[name].[hash].css" {
		t.Fatalf("unexpected css filename %q", extract.Filename)
	}
}

func TestRules(t *testing.T) {
	t.Parallel()

	rules := newTestResolver(Production).Rules()
	byTest := make(map[string]Rule, len(rules))
	for _, rule := range rules {
		byTest[rule.Test] = rule
	}

	tests := []struct {
		test    string
		loaders []string
		exclude string
	}{
		{test: `\.css$`, loaders: []string{extractLoader, cssLoader}},
		{test: `\.less$`, loaders: []string{extractLoader, cssLoader, lessLoader}},
		{test: `\.s[ac]ss$`, loaders: []string{extractLoader, cssLoader, sassLoader}},
		{test: `\.(png|jpg|svg|gif)$`, loaders: []string{fileLoader}},
		{test: `\.xml$`, loaders: []string{xmlLoader}},
		{test: `\.csv$`, loaders: []string{csvLoader}},
		{test: `\.js$`, loaders: []string{babelLoader}, exclude: nodeModules},
		{test: `\.ts$`, loaders: []string{babelLoader}, exclude: nodeModules},
	}

	for _, tc := range tests {
		rule, ok := byTest[tc.test]
		if !ok {
			t.Fatalf("missing rule %s", tc.test)
		}
		if got := loaderNames(rule.Use); !slices.Equal(got, tc.loaders) {
			t.Fatalf("rule %s: expected %v, got %v", tc.test, tc.loaders, got)
		}
		if rule.Exclude != tc.exclude {
			t.Fatalf("rule %s: expected exclude %q, got %q", tc.test, tc.exclude, rule.Exclude)
		}
	}

	jsx := byTest[`\.jsx$`].Use[0].Options.(TransformOptions)
	if want := []string{presetEnv, presetReact}; !slices.Equal(jsx.Presets, want) {
		t.Fatalf("expected jsx presets %v, got %v", want, jsx.Presets)
	}
}

func TestResolveStaticFields(t *testing.T) {
	t.Parallel()

	dev := newTestResolver(Development).Resolve()
	if dev.Mode != Development || dev.Devtool != SourceMapFull || !dev.DevServer.Hot {
		t.Fatalf("unexpected development settings: mode=%s devtool=%s hot=%v", dev.Mode, dev.Devtool, dev.DevServer.Hot)
	}
	if dev.DevServer.Port != 4200 {
		t.Fatalf("expected dev server port 4200, got %d", dev.DevServer.Port)
	}
	if dev.Context != filepath.Join(testRoot, "src") {
		t.Fatalf("unexpected context %s", dev.Context)
	}
	if dev.Output.Path != filepath.Join(testRoot, "dist") || dev.Output.Filename != "[name].js" {
		t.Fatalf("unexpected output %+v", dev.Output)
	}
	if got := dev.Entry["main"]; !slices.Equal(got, []string{"@babel/polyfill", "./index.jsx"}) {
		t.Fatalf("unexpected main entry %v", got)
	}
	if got := dev.Resolve.Aliases["@models"]; got != filepath.Join(testRoot, "src", "models") {
		t.Fatalf("unexpected @models alias %s", got)
	}

	prod := newTestResolver(Production).Resolve()
	if prod.Devtool != SourceMapNone || prod.DevServer.Hot {
		t.Fatalf("unexpected production settings: devtool=%s hot=%v", prod.Devtool, prod.DevServer.Hot)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{Development, Production} {
		r := newTestResolver(mode)
		first := r.Resolve()
		second := r.Resolve()
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("%s: resolves differ (-first +second):\n%s", mode, diff)
		}

		fresh := newTestResolver(mode).Resolve()
		if diff := cmp.Diff(first, fresh); diff != "" {
			t.Fatalf("%s: resolvers differ (-first +fresh):\n%s", mode, diff)
		}
	}
}

func TestResolveUnsetModeIsProduction(t *testing.T) {
	t.Parallel()

	if diff := cmp.Diff(Resolve(Production), Resolve(ParseMode(""))); diff != "" {
		t.Fatalf("unset mode differs from production:\n%s", diff)
	}
}

func TestResolveDoesNotAliasProject(t *testing.T) {
	t.Parallel()

	project := DefaultProject(testRoot)
	r := New(Development, project)

	project.Entry["main"][0] = "mutated"
	cfg := r.Resolve()
	cfg.Entry["analytics"] = nil

	again := r.Resolve()
	if again.Entry["main"][0] != "@babel/polyfill" {
		t.Fatalf("resolver observed caller mutation: %v", again.Entry["main"])
	}
	if len(again.Entry["analytics"]) != 1 {
		t.Fatalf("resolver state mutated through result: %v", again.Entry)
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	devA, err := newTestResolver(Development).Resolve().Fingerprint()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	devB, err := newTestResolver(Development).Resolve().Fingerprint()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prod, err := newTestResolver(Production).Resolve().Fingerprint()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if devA != devB {
		t.Fatalf("expected stable fingerprint, got %s and %s", devA, devB)
	}
	if devA == prod {
		t.Fatalf("expected modes to fingerprint differently")
	}
	if len(devA) != 16 {
		t.Fatalf("expected 16 hex digits, got %q", devA)
	}
}

func TestProjectValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultProject(testRoot).Validate(); err != nil {
		t.Fatalf("default project invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Project)
	}{
		{name: "NoEntries", mutate: func(p *Project) { p.Entry = nil }},
		{name: "EmptyChunk", mutate: func(p *Project) { p.Entry["main"] = nil }},
		{name: "BlankChunkName", mutate: func(p *Project) { p.Entry[" "] = []string{"./x.js"} }},
		{name: "ExtensionWithoutDot", mutate: func(p *Project) { p.Extensions = []string{"js"} }},
		{name: "PortTooLow", mutate: func(p *Project) { p.DevPort = 0 }},
		{name: "PortTooHigh", mutate: func(p *Project) { p.DevPort = 70000 }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := DefaultProject(testRoot)
			tc.mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrInvalidProject) {
				t.Fatalf("expected ErrInvalidProject, got %v", err)
			}
		})
	}
}

func loaderNames(loaders []Loader) []string {
	names := make([]string, 0, len(loaders))
	for _, l := range loaders {
		names = append(names, l.Name)
	}
	return names
}

func pluginNames(plugins []Plugin) []string {
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, p.Name)
	}
	return names
}
