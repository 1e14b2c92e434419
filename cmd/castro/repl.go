package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/errael/castro/pkg/compiler"
	"github.com/errael/castro/pkg/config"
	"github.com/peterh/liner"
)

const (
	historyFile = ".castro_history"
	promptMain  = "castro> "
	promptCont  = "    ... "
)

// runRepl keeps the accepted declarations and recompiles all of them after
// every complete input. Input that produces errors is dropped. Only lines
// that changed since the last successful compile are printed.
func runRepl(cfg *config.Config) error {
	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	var accepted string
	var printed []string
	var last *compiler.Unit
	for {
		src, ok := readComplete(ln, cfg)
		if !ok {
			fmt.Println()
			return nil
		}
		switch strings.TrimSpace(src) {
		case "":
			continue
		case ":quit":
			return nil
		case ":map":
			if last != nil {
				_ = last.WriteMap(os.Stdout)
			}
			continue
		case ":reset":
			accepted, printed, last = "", nil, nil
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		candidate := accepted + src + "\n"
		u, lines, err := compiler.Compile(cfg.Clone(), compiler.Source{Name: "<repl>", Content: candidate})
		u.Diag.Print(os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "castro: %v\n", err)
			continue
		}
		if u.Diag.HasErrors() {
			continue
		}
		accepted, last = candidate, u
		for i, line := range lines {
			if i >= len(printed) || printed[i] != line {
				fmt.Println(line)
			}
		}
		printed = lines
	}
}

// readComplete reads lines until they form complete top level constructs.
func readComplete(ln *liner.State, cfg *config.Config) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// ctrl-C drops the pending input
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		if strings.HasPrefix(strings.TrimSpace(b.String()), ":") {
			return b.String(), true
		}
		probe := compiler.NewUnit(cfg)
		probe.AddSource(compiler.Source{Name: "<repl>", Content: b.String()})
		if !probe.Incomplete() {
			return b.String(), true
		}
	}
}
