package buildconfig

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
)

const (
	extractLoader   = "mini-css-extract-plugin/loader"
	cssLoader       = "css-loader"
	lessLoader      = "less-loader"
	sassLoader      = "sass-loader"
	fileLoader      = "file-loader"
	xmlLoader       = "xml-loader"
	csvLoader       = "csv-loader"
	babelLoader     = "babel-loader"
	eslintLoader    = "eslint-loader"
	presetEnv       = "@babel/preset-env"
	presetTS        = "@babel/preset-typescript"
	presetReact     = "@babel/preset-react"
	classProperties = "@babel/plugin-proposal-class-properties"
	nodeModules     = "node_modules"
)

// Plugin names, in the order the base list declares them.
const (
	PluginHTML     = "html-webpack-plugin"
	PluginClean    = "clean-webpack-plugin"
	PluginCopy     = "copy-webpack-plugin"
	PluginExtract  = "mini-css-extract-plugin"
	PluginAnalyzer = "webpack-bundle-analyzer"

	MinimizerCSS = "optimize-css-assets-webpack-plugin"
	MinimizerJS  = "terser-webpack-plugin"
)

// Resolver derives configuration pieces for one mode and project.
type Resolver struct {
	mode    Mode
	project Project
}

// New binds a resolver to mode and a private copy of project.
func New(mode Mode, project Project) *Resolver {
	return &Resolver{mode: mode, project: project.Clone()}
}

// Resolve returns the configuration for mode using the default project rooted
// at the current directory.
func Resolve(mode Mode) BuildConfig {
	return New(mode, DefaultProject(".")).Resolve()
}

// Mode returns the mode the resolver was built for.
func (r *Resolver) Mode() Mode {
	return r.mode
}

// FilenameFor returns the output name pattern for ext. Production names carry a
// build hash for cache busting.
func (r *Resolver) FilenameFor(ext string) string {
	if r.mode.IsDevelopment() {
		return "[name]." + ext
	}
	return "[name].[hash]." + ext
}

// StyleLoaders returns the style chain, with extra appended when non-empty.
// The engine applies the chain from the end, so extra runs first and the
// extraction loader last.
func (r *Resolver) StyleLoaders(extra string) []Loader {
	loaders := []Loader{
		{
			Name: extractLoader,
			Options: ExtractLoaderOptions{
				HMR:       r.mode.IsDevelopment(),
				ReloadAll: true,
			},
		},
		{Name: cssLoader},
	}
	if extra != "" {
		loaders = append(loaders, Loader{Name: extra})
	}
	return loaders
}

// ScriptTransformOptions returns the base presets and plugins, with preset
// appended when non-empty.
func ScriptTransformOptions(preset string) TransformOptions {
	opts := TransformOptions{
		Presets: []string{presetEnv},
		Plugins: []string{classProperties},
	}
	if preset != "" {
		opts.Presets = append(opts.Presets, preset)
	}
	return opts
}

// ScriptLoaders returns the plain script chain. Development adds linting.
func (r *Resolver) ScriptLoaders() []Loader {
	loaders := []Loader{{Name: babelLoader, Options: ScriptTransformOptions("")}}
	if r.mode.IsDevelopment() {
		loaders = append(loaders, Loader{Name: eslintLoader})
	}
	return loaders
}

// Optimization returns the optimization policy. Splitting is always on;
// minimizers only run in production.
func (r *Resolver) Optimization() OptimizationPolicy {
	policy := OptimizationPolicy{SplitChunks: SplitChunks{Chunks: "all"}}
	if !r.mode.IsDevelopment() {
		policy.Minimizers = []Plugin{{Name: MinimizerCSS}, {Name: MinimizerJS}}
	}
	return policy
}

// Plugins returns the ordered plugin list. Production appends the bundle analyzer.
func (r *Resolver) Plugins() []Plugin {
	plugins := []Plugin{
		{
			Name: PluginHTML,
			Options: HTMLPluginOptions{
				Template: r.project.Template,
				Minify:   HTMLMinify{CollapseWhitespace: !r.mode.IsDevelopment()},
			},
		},
		{Name: PluginClean},
		{
			Name: PluginCopy,
			Options: CopyPluginOptions{Patterns: []CopyPattern{{
				From: filepath.Join(r.sourcePath(), r.project.Favicon),
				To:   r.outputPath(),
			}}},
		},
		{
			Name:    PluginExtract,
			Options: ExtractPluginOptions{Filename: r.FilenameFor("css")},
		},
	}
	if !r.mode.IsDevelopment() {
		plugins = append(plugins, Plugin{Name: PluginAnalyzer})
	}
	return plugins
}

// Rules returns the module rules in declaration order.
func (r *Resolver) Rules() []Rule {
	return []Rule{
		{Test: `\.css$`, Extensions: []string{".css"}, Use: r.StyleLoaders("")},
		{Test: `\.less$`, Extensions: []string{".less"}, Use: r.StyleLoaders(lessLoader)},
		{Test: `\.s[ac]ss$`, Extensions: []string{".sass", ".scss"}, Use: r.StyleLoaders(sassLoader)},
		{
			Test:       `\.(png|jpg|svg|gif)$`,
			Extensions: []string{".png", ".jpg", ".svg", ".gif"},
			Use:        []Loader{{Name: fileLoader}},
		},
		{
			Test:       `\.(ttf|woff|woff2|eot)$`,
			Extensions: []string{".ttf", ".woff", ".woff2", ".eot"},
			Use:        []Loader{{Name: fileLoader}},
		},
		{Test: `\.xml$`, Extensions: []string{".xml"}, Use: []Loader{{Name: xmlLoader}}},
		{Test: `\.csv$`, Extensions: []string{".csv"}, Use: []Loader{{Name: csvLoader}}},
		{Test: `\.js$`, Exclude: nodeModules, Extensions: []string{".js"}, Use: r.ScriptLoaders()},
		{
			Test:       `\.ts$`,
			Exclude:    nodeModules,
			Extensions: []string{".ts"},
			Use:        []Loader{{Name: babelLoader, Options: ScriptTransformOptions(presetTS)}},
		},
		{
			Test:       `\.jsx$`,
			Exclude:    nodeModules,
			Extensions: []string{".jsx"},
			Use:        []Loader{{Name: babelLoader, Options: ScriptTransformOptions(presetReact)}},
		},
	}
}

// Resolve composes the full configuration.
func (r *Resolver) Resolve() BuildConfig {
	devtool := SourceMapNone
	if r.mode.IsDevelopment() {
		devtool = SourceMapFull
	}

	aliases := make(map[string]string, len(r.project.Aliases))
	for alias, rel := range r.project.Aliases {
		aliases[alias] = filepath.Join(r.project.Root, rel)
	}

	return BuildConfig{
		Mode:    r.mode,
		Context: r.sourcePath(),
		Entry:   cloneEntry(r.project.Entry),
		Output: Output{
			Filename: r.FilenameFor("js"),
			Path:     r.outputPath(),
		},
		Resolve: ModuleResolution{
			Extensions: slices.Clone(r.project.Extensions),
			Aliases:    aliases,
		},
		Optimization: r.Optimization(),
		DevServer: DevServer{
			Port: r.project.DevPort,
			Hot:  r.mode.IsDevelopment(),
		},
		Devtool: devtool,
		Plugins: r.Plugins(),
		Module:  Module{Rules: r.Rules()},
	}
}

// Fingerprint returns a stable digest of the configuration's JSON form.
func (c BuildConfig) Fingerprint() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

func (r *Resolver) sourcePath() string {
	return filepath.Join(r.project.Root, r.project.SourceDir)
}

func (r *Resolver) outputPath() string {
	return filepath.Join(r.project.Root, r.project.OutputDir)
}
