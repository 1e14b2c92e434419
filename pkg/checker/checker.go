// Package checker runs the declaration and resolution passes. Declare builds
// the three memory spaces and the function table; Finalize allocates every
// space; Resolve binds each variable reference to its symbol.
package checker

import (
	"github.com/errael/castro/pkg/ast"
	"github.com/errael/castro/pkg/astro"
	"github.com/errael/castro/pkg/config"
	"github.com/errael/castro/pkg/diag"
	"github.com/errael/castro/pkg/fold"
	"github.com/errael/castro/pkg/memspace"
	"github.com/errael/castro/pkg/token"
)

// Macro is a declared macro: its slot in the macro space and the memory
// slots holding its parameters.
type Macro struct {
	Name   string
	Sym    *memspace.Symbol
	Params []*memspace.Symbol
	Decl   *ast.Node
}

type constDef struct {
	decl     *ast.Node
	value    *ast.Node
	busy     bool
	reported bool
}

type Checker struct {
	cfg      *config.Config
	diag     *diag.Collector
	Funcs    *astro.Table
	Mem      *memspace.Space
	Macros   *memspace.Space
	Switches *memspace.Space
	Folder   *fold.Folder

	consts     map[string]*constDef
	constOrder []string
	macros     map[string]*Macro
	switches   map[string]*memspace.Symbol
	bindings   map[*ast.Node]*memspace.Symbol
	calls      []*ast.Node
	unknown    map[string]bool
	used       map[*memspace.Symbol]bool
	scope      map[string]*memspace.Symbol // parameters of the macro being resolved
}

func New(cfg *config.Config, d *diag.Collector) *Checker {
	c := &Checker{
		cfg:      cfg,
		diag:     d,
		Funcs:    astro.NewTable(),
		Mem:      memspace.NewMemory(cfg.VarLimit),
		Macros:   memspace.New(memspace.Macro, cfg.MacroLimit),
		Switches: memspace.New(memspace.Switch, cfg.SwitchLimit),
		consts:   make(map[string]*constDef),
		macros:   make(map[string]*Macro),
		switches: make(map[string]*memspace.Symbol),
		bindings: make(map[*ast.Node]*memspace.Symbol),
		unknown:  make(map[string]bool),
		used:     make(map[*memspace.Symbol]bool),
	}
	c.Folder = fold.New(c, cfg.Bits, d)
	return c
}

func (c *Checker) Spaces() []*memspace.Space {
	return []*memspace.Space{c.Mem, c.Macros, c.Switches}
}

func (c *Checker) space(name string) *memspace.Space {
	switch name {
	case "macro":
		return c.Macros
	case "switch":
		return c.Switches
	}
	return c.Mem
}

func (c *Checker) Macro(name string) *Macro             { return c.macros[name] }
func (c *Checker) Switch(name string) *memspace.Symbol  { return c.switches[name] }
func (c *Checker) Binding(n *ast.Node) *memspace.Symbol { return c.bindings[n] }

func (c *Checker) IsConst(name string) bool {
	_, ok := c.consts[name]
	return ok
}

// SymbolFor finds the memory symbol an identifier refers to: its resolved
// binding, or a global lookup before resolution.
func (c *Checker) SymbolFor(n *ast.Node) *memspace.Symbol {
	if sym := c.bindings[n]; sym != nil {
		return sym
	}
	if id, ok := n.Data.(ast.IdentNode); ok {
		return c.Mem.Lookup(id.Name)
	}
	return nil
}

// --- fold.Env ---

func (c *Checker) Finalized() bool { return c.Mem.Finalized() }

func (c *Checker) IdentValue(n *ast.Node) (fold.Result, bool) {
	name := n.Data.(ast.IdentNode).Name
	if c.scope[name] != nil || c.bindings[n] != nil {
		return fold.Result{}, false
	}
	def, ok := c.consts[name]
	if !ok {
		return fold.Result{}, false
	}
	if def.busy {
		if !def.reported {
			def.reported = true
			c.diag.Errorf(def.decl.Tok, "constant %s is defined in terms of itself", name)
		}
		return fold.NotConstant(n), true
	}
	def.busy = true
	r := c.Folder.Fold(def.value)
	def.busy = false
	return r, true
}

func (c *Checker) CallValue(n *ast.Node) fold.Result {
	call := n.Data.(ast.CallNode)
	f, ok := c.Funcs.Lookup(call.Name)
	if !ok || len(call.Args) != 1 || (f.Kind != astro.AddrOf && f.Kind != astro.SizeOf) {
		return fold.NotConstant(n)
	}
	arg := ast.Unparen(call.Args[0])
	id, ok := arg.Data.(ast.IdentNode)
	if !ok || c.IsConst(id.Name) {
		return fold.NotConstant(n)
	}
	sym := c.SymbolFor(arg)
	if sym == nil {
		sym = c.slotFor(id.Name)
	}
	if sym == nil || sym.Has(memspace.Faux) {
		return fold.NotConstant(n)
	}
	if f.Kind == astro.SizeOf {
		return fold.Value(int64(sym.Size))
	}
	if !c.Finalized() || !sym.Allocated() {
		return fold.NotConstant(n)
	}
	return fold.Value(int64(sym.Addr))
}

// slotFor is the macro or switch slot for name, so addr(m) gives the
// number to pass to Macro or Switch.
func (c *Checker) slotFor(name string) *memspace.Symbol {
	if m := c.macros[name]; m != nil {
		return m.Sym
	}
	return c.switches[name]
}

// --- Declare ---

// Declare records every declaration. Constants are gathered first so that
// sizes and addresses may use constants defined later in the file.
func (c *Checker) Declare(prog *ast.Node) {
	decls := prog.Data.(ast.ProgramNode).Decls
	for _, n := range decls {
		if n.Type == ast.ConstDecl {
			c.declareConst(n)
		}
	}
	for _, n := range decls {
		switch n.Type {
		case ast.Layout:
			c.declareLayout(n)
		case ast.VarDecl:
			c.declareVar(n)
		case ast.MacroDecl:
			c.declareMacro(n)
		case ast.SwitchDecl:
			c.declareSwitch(n)
		}
		ast.Walk(n, func(x *ast.Node) bool {
			if x.Type == ast.Call {
				c.calls = append(c.calls, x)
			}
			return true
		})
	}
	c.checkCalls()
	c.checkConsts()
}

func (c *Checker) declareConst(n *ast.Node) {
	d := n.Data.(ast.ConstDeclNode)
	if _, dup := c.consts[d.Name]; dup {
		c.diag.Errorf(n.Tok, "constant %s already declared", d.Name)
		return
	}
	c.consts[d.Name] = &constDef{decl: n, value: d.Value}
	c.constOrder = append(c.constOrder, d.Name)
}

func (c *Checker) checkConsts() {
	for _, name := range c.constOrder {
		def := c.consts[name]
		def.busy = true
		r := c.Folder.Fold(def.value)
		def.busy = false
		if r.Status == fold.NotConst && !def.reported {
			def.reported = true
			c.diag.Errorf(def.decl.Tok, "value of constant %s is not constant", name)
		}
	}
}

// constInt folds n where the language requires a constant.
func (c *Checker) constInt(n *ast.Node, what string) (int, bool) {
	r := c.Folder.Fold(n)
	switch r.Status {
	case fold.Const:
		return int(r.Value), true
	case fold.NotConst:
		c.diag.Errorf(n.Tok, "%s must be a constant", what)
	}
	return 0, false
}

func (c *Checker) optAddr(n *ast.Node, what string) int {
	if n == nil {
		return memspace.NoAddr
	}
	if v, ok := c.constInt(n, what); ok {
		return v
	}
	return memspace.NoAddr
}

func (c *Checker) declareLayout(n *ast.Node) {
	d := n.Data.(ast.LayoutNode)
	space := c.space(d.Space)
	if space.HasDeclarations() {
		c.diag.Errorf(n.Tok, "layout for %s space must come before its declarations", d.Space)
		return
	}
	for _, item := range d.Items {
		it := item.Data.(ast.LayoutItemNode)
		what := token.TypeStrings[it.Kind]
		lo, ok := c.constInt(it.Lo, what)
		if !ok {
			continue
		}
		var err error
		switch it.Kind {
		case token.Base:
			err = space.SetBase(lo)
		case token.Limit:
			err = space.SetLimit(lo)
		case token.Reserve:
			hi := lo
			if it.Hi != nil {
				if hi, ok = c.constInt(it.Hi, what); !ok {
					continue
				}
			}
			err = space.Reserve(lo, hi)
		}
		if err != nil {
			c.diag.Errorf(item.Tok, "%s space: %v", d.Space, err)
		}
	}
}

func (c *Checker) declareVar(n *ast.Node) {
	d := n.Data.(ast.VarDeclNode)
	count := len(d.Init)
	size := 1
	switch {
	case d.Size != nil:
		v, ok := c.constInt(d.Size, "size of "+d.Name)
		if !ok {
			break
		}
		size = v
		if count > 0 && count != size && size > 0 {
			c.diag.Errorf(n.Tok, "%s has size %d but %d initializers", d.Name, size, count)
		}
	case d.IsArray || d.IsBraceInit:
		size = count
	}
	if c.IsConst(d.Name) {
		c.diag.Errorf(n.Tok, "%s already declared as a constant", d.Name)
		return
	}
	addr := c.optAddr(d.Addr, "address of "+d.Name)
	if sym := c.Mem.Lookup(d.Name); sym != nil && sym.Has(memspace.Builtin) &&
		size == 1 && (addr == memspace.NoAddr || addr == sym.Addr) {
		// naming a builtin register declares the register itself
		return
	}
	c.report(c.Mem.Declare(d.Name, size, addr, n), c.Mem, n.Tok)
}

func (c *Checker) declareMacro(n *ast.Node) {
	d := n.Data.(ast.MacroDeclNode)
	addr := c.optAddr(d.Addr, "address of macro "+d.Name)
	sym := c.Macros.Declare(d.Name, 1, addr, n)
	c.report(sym, c.Macros, n.Tok)

	m := &Macro{Name: d.Name, Sym: sym, Decl: n}
	if f, ok := c.Funcs.Add(d.Name, astro.UserMacro, len(d.Params), m); !ok {
		if f.Kind == astro.UserMacro || f.Kind == astro.UserSwitch {
			if !sym.Has(memspace.DupErr) {
				c.diag.Errorf(n.Tok, "%s already declared", d.Name)
			}
		} else {
			c.diag.Errorf(n.Tok, "macro %s conflicts with a builtin function", d.Name)
		}
		return
	}
	seen := make(map[string]bool)
	for _, p := range d.Params {
		pname := p.Data.(ast.IdentNode).Name
		switch {
		case seen[pname]:
			c.diag.Errorf(p.Tok, "duplicate parameter %s", pname)
			continue
		case c.IsConst(pname):
			c.diag.Errorf(p.Tok, "parameter %s hides a constant", pname)
			continue
		}
		seen[pname] = true
		psym := c.Mem.Declare(d.Name+"."+pname, 1, memspace.NoAddr, p)
		c.report(psym, c.Mem, p.Tok)
		m.Params = append(m.Params, psym)
	}
	c.macros[d.Name] = m
}

func (c *Checker) declareSwitch(n *ast.Node) {
	d := n.Data.(ast.SwitchDeclNode)
	addr := c.optAddr(d.Addr, "address of switch "+d.Name)
	sym := c.Switches.Declare(d.Name, 1, addr, n)
	c.report(sym, c.Switches, n.Tok)
	if f, ok := c.Funcs.Add(d.Name, astro.UserSwitch, 0, sym); !ok {
		if f.Kind == astro.Builtin || f.Kind == astro.AddrOf || f.Kind == astro.SizeOf {
			c.diag.Errorf(n.Tok, "switch %s conflicts with a builtin function", d.Name)
		} else if !sym.Has(memspace.DupErr) {
			c.diag.Errorf(n.Tok, "%s already declared", d.Name)
		}
		return
	}
	c.switches[d.Name] = sym
}

func (c *Checker) report(sym *memspace.Symbol, space *memspace.Space, tok token.Token) {
	switch {
	case sym.Has(memspace.SizeErr):
		c.diag.Errorf(tok, "invalid size %d for %s", sym.Size, sym.Name)
	case sym.Has(memspace.DupErr) && sym.Conflict.Has(memspace.Builtin):
		c.diag.Errorf(tok, "%s is a builtin register", sym.Name)
	case sym.Has(memspace.DupErr):
		c.diag.Errorf(tok, "%s already declared in %s space", sym.Name, space.Kind())
	case sym.Has(memspace.OverlapErr) && sym.Conflict.IsSentinel():
		c.diag.Errorf(tok, "%s at %d (size %d) is outside %s space 1..%d",
			sym.Name, sym.Addr, sym.Size, space.Kind(), space.Limit())
	case sym.Has(memspace.OverlapErr):
		c.diag.Errorf(tok, "%s at %d overlaps %s at %d", sym.Name, sym.Addr, sym.Conflict.Name, sym.Conflict.Addr)
	}
}

// checkCalls runs once every macro is known, so calls may precede the
// declaration of the macro they call.
func (c *Checker) checkCalls() {
	for _, n := range c.calls {
		call := n.Data.(ast.CallNode)
		f, ok := c.Funcs.Lookup(call.Name)
		if !ok {
			c.diag.Errorf(n.Tok, "unknown function %s", call.Name)
			continue
		}
		if len(call.Args) != f.Arity {
			c.diag.Errorf(n.Tok, "%s expects %d argument(s), got %d", call.Name, f.Arity, len(call.Args))
			continue
		}
		if f.Kind == astro.AddrOf || f.Kind == astro.SizeOf {
			if ast.Unparen(call.Args[0]).Type != ast.Ident {
				c.diag.Errorf(n.Tok, "argument of %s must be a name", call.Name)
			}
		}
	}
}

// --- allocation boundary ---

// Finalize warns about explicit placements inside reserved ranges, then
// allocates every space. After Finalize all addresses are final.
func (c *Checker) Finalize() {
	for _, space := range c.Spaces() {
		for _, sym := range space.ReservedHits() {
			if decl, ok := sym.Decl.(*ast.Node); ok {
				c.diag.Warn(config.WarnReserve, decl.Tok, "%s assigned to reserve area", sym.Name)
			}
		}
	}
	for _, space := range c.Spaces() {
		for _, sym := range space.Allocate() {
			tok := token.Token{}
			if decl, ok := sym.Decl.(*ast.Node); ok {
				tok = decl.Tok
			}
			c.diag.Errorf(tok, "no room in %s space for %s (size %d)", space.Kind(), sym.Name, sym.Size)
		}
	}
}

// --- Resolve ---

func (c *Checker) Resolve(prog *ast.Node) {
	if !c.Finalized() {
		diag.Internal("resolve before allocation")
	}
	for _, n := range prog.Data.(ast.ProgramNode).Decls {
		if n.Type == ast.MacroDecl {
			d := n.Data.(ast.MacroDeclNode)
			c.scope = make(map[string]*memspace.Symbol)
			if m := c.macros[d.Name]; m != nil && m.Decl == n {
				for i, p := range m.Params {
					c.scope[d.Params[i].Data.(ast.IdentNode).Name] = p
					c.bindings[d.Params[i]] = p
				}
			}
			c.resolve(d.Addr)
			c.resolve(d.Body)
			c.scope = nil
			continue
		}
		c.resolve(n)
	}
	c.warnUnused()
}

func (c *Checker) resolve(root *ast.Node) {
	ast.Walk(root, func(n *ast.Node) bool {
		switch d := n.Data.(type) {
		case ast.IdentNode:
			if n.Parent != nil && n.Parent.Type == ast.MacroDecl {
				return false
			}
			c.resolveIdent(n)
		case ast.CallNode:
			return c.resolveCall(n, d)
		case ast.IndexNode:
			arr := ast.Unparen(d.Array)
			if id, ok := arr.Data.(ast.IdentNode); !ok || c.IsConst(id.Name) {
				c.diag.Errorf(n.Tok, "only variables can be indexed")
			}
		case ast.AssignNode:
			c.checkWritable(d.Lhs)
		case ast.PrefixNode:
			c.checkWritable(d.Expr)
		case ast.PostfixNode:
			c.checkWritable(d.Expr)
		}
		return true
	})
}

func (c *Checker) resolveIdent(n *ast.Node) {
	name := n.Data.(ast.IdentNode).Name
	if sym := c.scope[name]; sym != nil {
		c.bindings[n] = sym
		c.used[sym] = true
		return
	}
	if c.IsConst(name) {
		return
	}
	sym := c.Mem.Lookup(name)
	if sym == nil {
		if !c.unknown[name] {
			c.unknown[name] = true
			c.diag.Errorf(n.Tok, "unknown variable %s", name)
		}
		sym = c.Mem.DeclareFaux(name)
	}
	c.bindings[n] = sym
	c.used[sym] = true
}

func (c *Checker) resolveCall(n *ast.Node, call ast.CallNode) bool {
	f, ok := c.Funcs.Lookup(call.Name)
	if !ok || len(call.Args) != 1 || (f.Kind != astro.AddrOf && f.Kind != astro.SizeOf) {
		return true
	}
	arg := ast.Unparen(call.Args[0])
	id, ok := arg.Data.(ast.IdentNode)
	if !ok {
		return false
	}
	switch {
	case c.IsConst(id.Name):
		c.diag.Errorf(arg.Tok, "%s of constant %s", call.Name, id.Name)
	case c.scope[id.Name] == nil && c.Mem.Lookup(id.Name) == nil && c.slotFor(id.Name) != nil:
		// addr(m) of a macro or switch
	default:
		c.resolveIdent(arg)
	}
	return false
}

func (c *Checker) checkWritable(target *ast.Node) {
	if id, ok := ast.Unparen(target).Data.(ast.IdentNode); ok && c.scope[id.Name] == nil && c.IsConst(id.Name) {
		c.diag.Errorf(target.Tok, "cannot assign to constant %s", id.Name)
	}
}

func (c *Checker) warnUnused() {
	for _, sym := range c.Mem.Symbols() {
		decl, ok := sym.Decl.(*ast.Node)
		if !ok || decl.Type != ast.VarDecl || c.used[sym] {
			continue
		}
		c.diag.Warn(config.WarnUnused, decl.Tok, "variable %s is never used", sym.Name)
	}
}
