package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/errael/castro/pkg/cli"
	"github.com/xyproto/env/v2"
)

type Feature int

const (
	FeatOptimize Feature = iota
	FeatIncDec
	FeatLetters
	FeatCount
)

type Warning int

const (
	WarnReserve Warning = iota
	WarnBounds
	WarnUnused
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

// Default sizes of the AstroLog address spaces.
const (
	DefaultVarLimit    = 1000
	DefaultMacroLimit  = 1000
	DefaultSwitchLimit = 1000
	DefaultBits        = 32
)

type Config struct {
	Features    map[Feature]Info
	Warnings    map[Warning]Info
	FeatureMap  map[string]Feature
	WarningMap  map[string]Warning
	VarLimit    int
	MacroLimit  int
	SwitchLimit int
	Bits        int
	Color       bool
}

func NewConfig() *Config {
	cfg := &Config{
		FeatureMap:  make(map[string]Feature),
		WarningMap:  make(map[string]Warning),
		VarLimit:    DefaultVarLimit,
		MacroLimit:  DefaultMacroLimit,
		SwitchLimit: DefaultSwitchLimit,
		Bits:        DefaultBits,
	}

	cfg.Features = map[Feature]Info{
		FeatOptimize: {"optimize", true, "Fold and reorder '+'/'-', '&&' and '||' chains."},
		FeatIncDec:   {"incdec", true, "Use the Inc/Dec and '++'/'--' opcodes for +1/-1."},
		FeatLetters:  {"letters", true, "Render addresses 1..26 as register letters."},
	}
	cfg.Warnings = map[Warning]Info{
		WarnReserve: {"reserve", true, "Warn when a variable is placed inside a reserved range."},
		WarnBounds:  {"bounds", true, "Warn when a constant index is outside its variable."},
		WarnUnused:  {"unused", false, "Warn about variables that are never referenced."},
		WarnExtra:   {"extra", true, "Enable extra miscellaneous warnings."},
	}
	for ft, info := range cfg.Features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range cfg.Warnings {
		cfg.WarningMap[info.Name] = wt
	}
	return cfg
}

// Clone returns an independent copy; compilation units never share a Config.
func (c *Config) Clone() *Config {
	n := *c
	n.Features = make(map[Feature]Info, len(c.Features))
	for k, v := range c.Features {
		n.Features[k] = v
	}
	n.Warnings = make(map[Warning]Info, len(c.Warnings))
	for k, v := range c.Warnings {
		n.Warnings[k] = v
	}
	return &n
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyEnv reads the CASTRO_* environment overrides. Command line flags are
// applied afterwards and win.
func (c *Config) ApplyEnv() {
	c.VarLimit = env.Int("CASTRO_VAR_LIMIT", c.VarLimit)
	c.MacroLimit = env.Int("CASTRO_MACRO_LIMIT", c.MacroLimit)
	c.SwitchLimit = env.Int("CASTRO_SWITCH_LIMIT", c.SwitchLimit)
	if env.Bool("NO_COLOR") {
		c.Color = false
	}
	c.ProcessDirectiveFlags(env.Str("CASTRO_FLAGS"))
}

func (c *Config) Validate() error {
	for _, l := range []struct {
		name  string
		value int
	}{{"var", c.VarLimit}, {"macro", c.MacroLimit}, {"switch", c.SwitchLimit}} {
		if l.value < 1 {
			return fmt.Errorf("%s limit must be positive, got %d", l.name, l.value)
		}
	}
	if l := c.VarLimit; l < 26 {
		return fmt.Errorf("var limit %d leaves no room for the 26 builtin registers", l)
	}
	return nil
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool
	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
	default:
		name = trimmed
		isWarning = true
	}
	if isNo {
		name = strings.TrimPrefix(name, "no-")
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}
	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		} else if c.IsWarningEnabled(WarnExtra) {
			fmt.Fprintf(os.Stderr, "castro: warning: unknown warning '%s'\n", name)
		}
		return
	}
	if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
	} else if c.IsWarningEnabled(WarnExtra) {
		fmt.Fprintf(os.Stderr, "castro: warning: unknown feature '%s'\n", name)
	}
}

// ProcessFlags applies -Wall/-Wno-all first so specific flags can refine it.
func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
}

// ProcessDirectiveFlags applies a whitespace separated flag string such as
// "-Wno-reserve -Fno-letters".
func (c *Config) ProcessDirectiveFlags(flagStr string) {
	for _, flag := range strings.Fields(flagStr) {
		c.applyFlag(flag)
	}
}

// FlagGroups holds the -W/-F switch state registered on a FlagSet. Each entry
// pairs an enable and a disable boolean.
type FlagGroups struct {
	warnOn, warnOff []bool
	featOn, featOff []bool
	warnAll         bool
	warnNoAll       bool
}

// SetupFlagGroups registers -W<name>/-Wno-<name> and -F<name>/-Fno-<name> for
// every warning and feature.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) *FlagGroups {
	g := &FlagGroups{
		warnOn: make([]bool, WarnCount), warnOff: make([]bool, WarnCount),
		featOn: make([]bool, FeatCount), featOff: make([]bool, FeatCount),
	}
	var warnEntries []cli.FlagGroupEntry
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		warnEntries = append(warnEntries, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description,
			Enabled: &g.warnOn[i], Disabled: &g.warnOff[i],
		})
	}
	var featEntries []cli.FlagGroupEntry
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		featEntries = append(featEntries, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description,
			Enabled: &g.featOn[i], Disabled: &g.featOff[i],
		})
	}
	fs.Bool(&g.warnAll, "Wall", "", false, "Enable all warnings")
	fs.Bool(&g.warnNoAll, "Wno-all", "", false, "Disable all warnings")
	fs.AddFlagGroup("Warning Flags", "warning flag", warnEntries)
	fs.AddFlagGroup("Feature Flags", "feature flag", featEntries)
	return g
}

// Apply transfers the parsed group flags into c.
func (g *FlagGroups) Apply(c *Config) {
	c.ProcessFlags(func(fn func(string)) {
		if g.warnAll {
			fn("Wall")
		}
		if g.warnNoAll {
			fn("Wno-all")
		}
		for i := Warning(0); i < WarnCount; i++ {
			name := c.Warnings[i].Name
			if g.warnOn[i] {
				fn("W" + name)
			}
			if g.warnOff[i] {
				fn("Wno-" + name)
			}
		}
		for i := Feature(0); i < FeatCount; i++ {
			name := c.Features[i].Name
			if g.featOn[i] {
				fn("F" + name)
			}
			if g.featOff[i] {
				fn("Fno-" + name)
			}
		}
	})
}
