// Package compiler drives one compilation unit through the pipeline:
// parse, declare, allocate, resolve and generate.
package compiler

import (
	"fmt"
	"io"

	"github.com/errael/castro/pkg/ast"
	"github.com/errael/castro/pkg/checker"
	"github.com/errael/castro/pkg/codegen"
	"github.com/errael/castro/pkg/config"
	"github.com/errael/castro/pkg/diag"
	"github.com/errael/castro/pkg/lexer"
	"github.com/errael/castro/pkg/parser"
	"github.com/errael/castro/pkg/token"
)

type Stage int

const (
	StageNew Stage = iota
	StageParsed
	StageDeclared
	StageResolved
	StageGenerated
)

func (s Stage) String() string {
	return [...]string{"new", "parsed", "declared", "resolved", "generated"}[s]
}

// Source is one input file.
type Source struct {
	Name    string
	Content string
}

// Unit owns every table of one compilation. Units share nothing, so
// independent units may run concurrently.
type Unit struct {
	cfg        *config.Config
	Diag       *diag.Collector
	Checker    *checker.Checker
	decls      []*ast.Node
	prog       *ast.Node
	stage      Stage
	incomplete bool
}

func NewUnit(cfg *config.Config) *Unit {
	return &Unit{cfg: cfg, Diag: diag.NewCollector(cfg)}
}

func (u *Unit) Stage() Stage { return u.stage }

// Incomplete reports whether a source ended in the middle of a construct.
func (u *Unit) Incomplete() bool { return u.incomplete }

func (u *Unit) advance(from, to Stage) {
	if u.stage != from {
		diag.Internal("unit is %s, expected %s before %s", u.stage, from, to)
	}
	u.stage = to
}

// AddSource lexes and parses one file into the unit.
func (u *Unit) AddSource(src Source) {
	if u.stage != StageNew {
		diag.Internal("source %s added to a %s unit", src.Name, u.stage)
	}
	content := []rune(src.Content)
	idx := u.Diag.AddFile(src.Name, content)
	toks := lexer.NewLexer(content, idx, u.Diag).Tokenize()
	p := parser.NewParser(toks, content, u.Diag)
	prog := p.Parse()
	u.incomplete = u.incomplete || p.Incomplete()
	u.decls = append(u.decls, prog.Data.(ast.ProgramNode).Decls...)
}

func (u *Unit) parsed() {
	u.advance(StageNew, StageParsed)
	u.prog = ast.NewProgram(token.Token{}, u.decls)
}

func (u *Unit) declare() {
	u.advance(StageParsed, StageDeclared)
	u.Checker = checker.New(u.cfg, u.Diag)
	u.Checker.Declare(u.prog)
	u.Checker.Finalize()
}

func (u *Unit) resolve() {
	u.advance(StageDeclared, StageResolved)
	u.Checker.Resolve(u.prog)
}

func (u *Unit) generate() []string {
	u.advance(StageResolved, StageGenerated)
	return codegen.NewContext(u.cfg, u.Checker, u.Diag).Generate(u.prog)
}

// Run compiles the added sources. User errors are left in Diag and yield no
// output; err is set only for an internal fault.
func (u *Unit) Run() (lines []string, err error) {
	defer diag.Recover(&err)
	u.parsed()
	if u.Diag.HasErrors() {
		return nil, nil
	}
	u.declare()
	u.resolve()
	if u.Diag.HasErrors() {
		return nil, nil
	}
	lines = u.generate()
	if u.Diag.HasErrors() {
		return nil, nil
	}
	return lines, nil
}

// WriteMap writes the allocation of every space.
func (u *Unit) WriteMap(w io.Writer) error {
	if u.Checker == nil {
		return fmt.Errorf("no allocation: compilation stopped at %s", u.stage)
	}
	for _, space := range u.Checker.Spaces() {
		if _, err := fmt.Fprintf(w, "# %s\n", space.Kind()); err != nil {
			return err
		}
		if err := space.WriteMap(w); err != nil {
			return err
		}
	}
	return nil
}

// Compile is the one-shot form of NewUnit, AddSource and Run.
func Compile(cfg *config.Config, sources ...Source) (*Unit, []string, error) {
	u := NewUnit(cfg)
	var lines []string
	err := func() (err error) {
		defer diag.Recover(&err)
		for _, src := range sources {
			u.AddSource(src)
		}
		return nil
	}()
	if err == nil {
		lines, err = u.Run()
	}
	return u, lines, err
}
