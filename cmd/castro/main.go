package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/errael/castro/pkg/cli"
	"github.com/errael/castro/pkg/compiler"
	"github.com/errael/castro/pkg/config"
)

func main() {
	app := cli.NewApp("castro")
	app.Synopsis = "[options] <input.castro> ..."
	app.Description = "A compiler from castro, a small C-like language, to AstroLog command switch scripts. Variables, macros and switches are allocated automatically; expressions are folded and lowered to AstroLog's prefix notation."
	app.Authors = []string{"errael"}
	app.Repository = "<https://github.com/errael/castro>"

	cfg := config.NewConfig()
	cfg.Color = cli.IsTerminal(os.Stderr)
	cfg.ApplyEnv()

	var (
		outFile     string
		mapFile     string
		repl        bool
		verbose     bool
		varLimit    int
		macroLimit  int
		switchLimit int
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "-", "Place the script into <file>; '-' writes to stdout.", "file")
	fs.String(&mapFile, "map", "m", "", "Write the allocation of every space to <file>.", "file")
	fs.Bool(&repl, "repl", "i", false, "Read declarations interactively and print the script as it grows.")
	fs.Bool(&verbose, "verbose", "v", false, "Report each compilation stage.")
	fs.Int(&varLimit, "var-limit", "", cfg.VarLimit, "Highest address of the memory space.", "n")
	fs.Int(&macroLimit, "macro-limit", "", cfg.MacroLimit, "Highest macro slot.", "n")
	fs.Int(&switchLimit, "switch-limit", "", cfg.SwitchLimit, "Highest switch slot.", "n")
	groups := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		groups.Apply(cfg)
		cfg.VarLimit, cfg.MacroLimit, cfg.SwitchLimit = varLimit, macroLimit, switchLimit
		if err := cfg.Validate(); err != nil {
			return fail(err)
		}
		if repl {
			return runRepl(cfg)
		}
		if len(inputFiles) == 0 {
			return fail(errors.New("no input files specified"))
		}

		sources, err := readSources(inputFiles)
		if err != nil {
			return fail(err)
		}
		info(verbose, "compiling %d source file(s)", len(sources))
		u, lines, err := compiler.Compile(cfg, sources...)
		u.Diag.Print(os.Stderr)
		if err != nil {
			return fail(err)
		}
		info(verbose, "stopped at stage %s: %d error(s), %d warning(s)", u.Stage(), u.Diag.ErrorCount(), u.Diag.WarningCount())

		if mapFile != "" && u.Checker != nil {
			info(verbose, "writing memory map to '%s'", mapFile)
			if err := writeMap(mapFile, u); err != nil {
				return fail(err)
			}
		}
		if u.Diag.HasErrors() {
			return fmt.Errorf("%d error(s)", u.Diag.ErrorCount())
		}

		info(verbose, "writing %d line(s) to '%s'", len(lines), outFile)
		return writeOutput(outFile, lines)
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func info(verbose bool, format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "castro: info: "+format+"\n", args...)
	}
}

func fail(err error) error {
	fmt.Fprintf(os.Stderr, "castro: error: %v\n", err)
	return err
}

func readSources(paths []string) ([]compiler.Source, error) {
	sources := make([]compiler.Source, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read file '%s': %w", path, err)
		}
		sources = append(sources, compiler.Source{Name: path, Content: string(content)})
	}
	return sources, nil
}

func writeOutput(path string, lines []string) error {
	text := strings.Join(lines, "\n")
	if len(lines) > 0 {
		text += "\n"
	}
	if path == "-" {
		_, err := os.Stdout.WriteString(text)
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fail(fmt.Errorf("failed to write output: %w", err))
	}
	return nil
}

func writeMap(path string, u *compiler.Unit) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create map file: %w", err)
	}
	defer f.Close()
	if err := u.WriteMap(f); err != nil {
		return fmt.Errorf("failed to write map file: %w", err)
	}
	return nil
}
