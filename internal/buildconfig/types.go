package buildconfig

// Mode selects the build variant. It is derived once per run and never changes.
type Mode string

const (
	Development Mode = "development"
	Production  Mode = "production"
)

// ParseMode maps a raw mode flag to a Mode. Only "development" selects the
// development variant; everything else, including an empty value, is production.
func ParseMode(raw string) Mode {
	if raw == string(Development) {
		return Development
	}
	return Production
}

// IsDevelopment reports whether m is the development variant.
func (m Mode) IsDevelopment() bool {
	return m == Development
}

// SourceMapMode is the source-map strategy handed to the engine.
type SourceMapMode string

const (
	SourceMapFull SourceMapMode = "source-map"
	SourceMapNone SourceMapMode = "none"
)

// Loader is a single transformation step applied to a file kind.
type Loader struct {
	Name    string `json:"loader" yaml:"loader"`
	Options any    `json:"options,omitempty" yaml:"options,omitempty"`
}

// ExtractLoaderOptions configures the CSS extraction loader.
type ExtractLoaderOptions struct {
	HMR       bool `json:"hmr" yaml:"hmr"`
	ReloadAll bool `json:"reloadAll" yaml:"reloadAll"`
}

// TransformOptions lists the syntax presets and plugins of the script transform.
type TransformOptions struct {
	Presets []string `json:"presets" yaml:"presets"`
	Plugins []string `json:"plugins" yaml:"plugins"`
}

// Rule binds a file matcher to a loader chain. Use is listed in the engine's
// order: the last loader runs first.
type Rule struct {
	Test       string   `json:"test" yaml:"test"`
	Exclude    string   `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	Extensions []string `json:"-" yaml:"-"`
	Use        []Loader `json:"use" yaml:"use"`
}

// Plugin references a build extension by name.
type Plugin struct {
	Name    string `json:"name" yaml:"name"`
	Options any    `json:"options,omitempty" yaml:"options,omitempty"`
}

// HTMLPluginOptions configures template injection.
type HTMLPluginOptions struct {
	Template string     `json:"template" yaml:"template"`
	Minify   HTMLMinify `json:"minify" yaml:"minify"`
}

// HTMLMinify controls template minification.
type HTMLMinify struct {
	CollapseWhitespace bool `json:"collapseWhitespace" yaml:"collapseWhitespace"`
}

// CopyPattern is one source/destination pair of the copy plugin.
type CopyPattern struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// CopyPluginOptions configures file copying.
type CopyPluginOptions struct {
	Patterns []CopyPattern `json:"patterns" yaml:"patterns"`
}

// ExtractPluginOptions configures CSS extraction output naming.
type ExtractPluginOptions struct {
	Filename string `json:"filename" yaml:"filename"`
}

// SplitChunks describes shared-module chunk splitting.
type SplitChunks struct {
	Chunks string `json:"chunks" yaml:"chunks"`
}

// OptimizationPolicy holds chunk splitting and the minimizer list.
type OptimizationPolicy struct {
	SplitChunks SplitChunks `json:"splitChunks" yaml:"splitChunks"`
	Minimizers  []Plugin    `json:"minimizer,omitempty" yaml:"minimizer,omitempty"`
}

// Output describes where and under which names chunks are written.
type Output struct {
	Filename string `json:"filename" yaml:"filename"`
	Path     string `json:"path" yaml:"path"`
}

// ModuleResolution lists resolvable extensions and path aliases.
type ModuleResolution struct {
	Extensions []string          `json:"extensions" yaml:"extensions"`
	Aliases    map[string]string `json:"alias" yaml:"alias"`
}

// DevServer holds dev-server settings.
type DevServer struct {
	Port int  `json:"port" yaml:"port"`
	Hot  bool `json:"hot" yaml:"hot"`
}

// Module wraps the rule list.
type Module struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// BuildConfig is the fully resolved configuration consumed by the bundling engine.
type BuildConfig struct {
	Mode         Mode                `json:"mode" yaml:"mode"`
	Context      string              `json:"context" yaml:"context"`
	Entry        map[string][]string `json:"entry" yaml:"entry"`
	Output       Output              `json:"output" yaml:"output"`
	Resolve      ModuleResolution    `json:"resolve" yaml:"resolve"`
	Optimization OptimizationPolicy  `json:"optimization" yaml:"optimization"`
	DevServer    DevServer           `json:"devServer" yaml:"devServer"`
	Devtool      SourceMapMode       `json:"devtool" yaml:"devtool"`
	Plugins      []Plugin            `json:"plugins" yaml:"plugins"`
	Module       Module              `json:"module" yaml:"module"`
}
