package astro

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestChain(t *testing.T) {
	stmts := strings.Fields("a b c d e f g")
	want := []string{
		"0",
		"a",
		"Do a b",
		"Do2 a b c",
		"Do3 a b c d",
		"Do3 a b c Do d e",
		"Do3 a b c Do2 d e f",
		"Do3 a b c Do3 d e f g",
	}
	for n := range want {
		if got := Chain(stmts[:n]); got != want[n] {
			t.Errorf("Chain of %d: got %q, want %q", n, got, want[n])
		}
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"=a 1", `"=a 1"`, true},
		{`-YYT "hi"`, `'-YYT "hi"'`, true},
		{`"it's"`, "`\"it's\"`", true},
		{"\"'`", "", false},
	}
	for _, tc := range tests {
		got, ok := Quote(tc.text)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Quote(%q) = %q, %v; want %q, %v", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTable(t *testing.T) {
	tbl := NewTable()
	f, ok := tbl.Lookup("Min")
	if !ok || f.Opcode != "Min" || f.Arity != 2 || f.Kind != Builtin {
		t.Errorf("unexpected Min entry: %+v", f)
	}
	if f, _ := tbl.Lookup("addr"); f.Kind != AddrOf || f.Opcode != "" {
		t.Errorf("addr is not a plain opcode: %+v", f)
	}

	if _, added := tbl.Add("m", UserMacro, 2, nil); !added {
		t.Fatalf("first Add of m failed")
	}
	prev, added := tbl.Add("m", UserSwitch, 0, nil)
	if added || prev.Kind != UserMacro {
		t.Errorf("duplicate Add replaced the entry: %+v", prev)
	}
	if _, added := tbl.Add("Abs", UserMacro, 0, nil); added {
		t.Errorf("a builtin name was taken by a macro")
	}

	names := tbl.Names()
	if diff := cmp.Diff(names[:3], []string{"Abs", "Acos", "Asin"}); diff != "" {
		t.Errorf("names not sorted (-got +want):\n%s", diff)
	}
}
