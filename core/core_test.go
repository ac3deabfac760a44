package core

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestObjectTable_CreateDelete(t *testing.T) {
	tbl := NewObjectTable()
	tbl.DeclareType("Enemy", "Sprite")

	a := tbl.Create("Enemy", 1, 2)
	b := tbl.Create("Enemy", 3, 4)
	p := tbl.Create("Player", 0, 0)

	if got := tbl.Count("Enemy"); got != 2 {
		t.Fatalf("Count(Enemy) = %d, want 2", got)
	}
	if obj := tbl.Get(a); obj == nil || obj.Type != "Sprite" || obj.X != 1 || obj.Y != 2 {
		t.Fatalf("Get(a) = %+v", obj)
	}
	if tbl.Get(p).Type != BaseType {
		t.Errorf("undeclared type: got %q, want %q", tbl.Get(p).Type, BaseType)
	}

	before := tbl.Instances("Enemy")
	if !tbl.Delete(a) {
		t.Fatal("Delete(a) = false")
	}
	if tbl.Delete(a) {
		t.Error("second Delete(a) = true")
	}
	if tbl.Alive(a) {
		t.Error("deleted handle still alive")
	}
	if diff := cmp.Diff([]ObjectID{b}, tbl.Instances("Enemy")); diff != "" {
		t.Errorf("Instances after delete (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]ObjectID{a, b}, before); diff != "" {
		t.Errorf("earlier Instances slice mutated (-want +got):\n%s", diff)
	}
	if tbl.Len() != 2 {
		t.Errorf("Len = %d, want 2", tbl.Len())
	}
	if tbl.Get(NoObject) != nil || tbl.Get(99) != nil {
		t.Error("invalid handles must resolve to nil")
	}
	if diff := cmp.Diff([]string{"Enemy", "Player"}, tbl.Names()); diff != "" {
		t.Errorf("Names (-want +got):\n%s", diff)
	}
}

func TestResolve_TieBreak(t *testing.T) {
	a, b, c := ObjectID(1), ObjectID(2), ObjectID(3)
	picked := []ObjectID{a, b, c}

	tests := []struct {
		name       string
		obj1, obj2 ObjectID
		want       ObjectID
	}{
		{"obj1 picked", b, NoObject, b},
		{"obj2 picked", NoObject, c, c},
		{"obj1 wins over obj2", c, b, c},
		{"obj1 not picked falls to obj2", 9, b, b},
		{"neither picked", 8, 9, a},
		{"no current objects", NoObject, NoObject, a},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(picked, tt.obj1, tt.obj2); got != tt.want {
				t.Errorf("Resolve = %d, want %d", got, tt.want)
			}
		})
	}
	if got := Resolve(nil, a, b); got != NoObject {
		t.Errorf("Resolve(empty) = %d, want NoObject", got)
	}
}

func TestVariables(t *testing.T) {
	vs := NewVariables()
	if vs.Value("missing") != 0 || vs.Text("missing") != "" {
		t.Fatal("undeclared reads must yield zero values")
	}
	if vs.Has("missing") {
		t.Fatal("reads must not create variables")
	}

	v := vs.FindOrCreate("score")
	v.Apply(OpSet, 10)
	v.Apply(OpAdd, 5)
	v.Apply(OpSub, 3)
	v.Apply(OpMul, 2)
	v.Apply(OpDiv, 4)
	if got := vs.Value("score"); got != 6 {
		t.Errorf("score = %v, want 6", got)
	}
	if vs.FindOrCreate("score") != v {
		t.Error("FindOrCreate must return the existing variable")
	}

	name := vs.FindOrCreate("name")
	name.ApplyText(OpSet, "foo")
	name.ApplyText(OpAdd, "bar")
	if ok := name.ApplyText(OpMul, "x"); ok {
		t.Error("ApplyText(OpMul) = true")
	}
	if got := vs.Text("name"); got != "foobar" {
		t.Errorf("name = %q, want foobar", got)
	}

	clone := vs.Clone()
	clone.FindOrCreate("score").SetValue(100)
	if vs.Value("score") != 6 {
		t.Error("Clone shares state with the original")
	}
	if diff := cmp.Diff([]string{"score", "name"}, vs.Names()); diff != "" {
		t.Errorf("Names (-want +got):\n%s", diff)
	}
	want := map[string]any{"score": 6.0, "name": "foobar"}
	if diff := cmp.Diff(want, vs.Snapshot()); diff != "" {
		t.Errorf("Snapshot (-want +got):\n%s", diff)
	}
}

func TestVariables_DivideByZero(t *testing.T) {
	v := NewVariables().FindOrCreate("x")
	v.Apply(OpSet, 1)
	v.Apply(OpDiv, 0)
	if !math.IsInf(v.Value(), 1) {
		t.Errorf("1/0 = %v, want +Inf", v.Value())
	}
}

func TestParseOperatorAndRelation(t *testing.T) {
	for s, want := range map[string]Operator{"=": OpSet, "+": OpAdd, " - ": OpSub, "*": OpMul, "/": OpDiv} {
		got, err := ParseOperator(s)
		if err != nil || got != want {
			t.Errorf("ParseOperator(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseOperator("%"); err == nil {
		t.Error("ParseOperator(%) expected error")
	}

	rels := []struct {
		sign string
		a, b float64
		want bool
	}{
		{"=", 1, 1, true},
		{"==", 1, 2, false},
		{"!=", 1, 2, true},
		{"<", 1, 2, true},
		{"<=", 2, 2, true},
		{">", 1, 2, false},
		{">=", 3, 2, true},
	}
	for _, tt := range rels {
		r, err := ParseRelation(tt.sign)
		if err != nil {
			t.Fatalf("ParseRelation(%q): %v", tt.sign, err)
		}
		if got := r.Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("%v %s %v = %v, want %v", tt.a, tt.sign, tt.b, got, tt.want)
		}
	}
	if !RelLt.CompareText("abc", "abd") || !RelEq.CompareText("x", "x") || RelNeq.CompareText("x", "x") {
		t.Error("CompareText mismatch")
	}
	if _, err := ParseRelation("<>"); err == nil {
		t.Error("ParseRelation(<>) expected error")
	}
}

func TestScope_PickLoadsOnce(t *testing.T) {
	tbl := NewObjectTable()
	a := tbl.Create("Enemy", 0, 0)
	b := tbl.Create("Enemy", 0, 0)

	s := NewScope(tbl)
	if s.Concerned("Enemy") {
		t.Fatal("fresh scope must not be concerned")
	}
	if diff := cmp.Diff([]ObjectID{a, b}, s.Pick("Enemy")); diff != "" {
		t.Fatalf("Pick (-want +got):\n%s", diff)
	}
	s.Narrow("Enemy", []ObjectID{b})

	// created after the name became concerned: not visible
	tbl.Create("Enemy", 0, 0)
	if diff := cmp.Diff([]ObjectID{b}, s.Pick("Enemy")); diff != "" {
		t.Errorf("Pick after narrow (-want +got):\n%s", diff)
	}
}

func TestScope_InheritIsolation(t *testing.T) {
	tbl := NewObjectTable()
	a := tbl.Create("Enemy", 0, 0)
	b := tbl.Create("Enemy", 0, 0)
	c := tbl.Create("Enemy", 0, 0)

	parent := NewScope(tbl)
	parent.Pick("Enemy")

	child := parent.Inherit()
	child.Narrow("Enemy", []ObjectID{c})
	child.Pick("Player")

	if diff := cmp.Diff([]ObjectID{a, b, c}, parent.Pick("Enemy")); diff != "" {
		t.Errorf("parent changed by child narrowing (-want +got):\n%s", diff)
	}
	if parent.Concerned("Player") {
		t.Error("child pick leaked into parent")
	}
	if diff := cmp.Diff([]string{"Enemy", "Player"}, child.Names()); diff != "" {
		t.Errorf("child Names (-want +got):\n%s", diff)
	}
}

func TestScope_PickAndRemoveAndAddObject(t *testing.T) {
	tbl := NewObjectTable()
	a := tbl.Create("Enemy", 0, 0)
	b := tbl.Create("Enemy", 0, 0)

	s := NewScope(tbl)
	removed := s.PickAndRemove("Enemy")
	if diff := cmp.Diff([]ObjectID{a, b}, removed); diff != "" {
		t.Fatalf("PickAndRemove (-want +got):\n%s", diff)
	}
	if got := s.Pick("Enemy"); len(got) != 0 {
		t.Errorf("Pick after PickAndRemove = %v, want empty", got)
	}
	if tbl.Count("Enemy") != 2 {
		t.Error("PickAndRemove must not touch the object table")
	}

	iter := s.Inherit()
	iter.AddObject(b)
	iter.AddObject(b)
	if diff := cmp.Diff([]ObjectID{b}, iter.Pick("Enemy")); diff != "" {
		t.Errorf("AddObject (-want +got):\n%s", diff)
	}

	fresh := NewScope(tbl)
	fresh.AddObject(a)
	if diff := cmp.Diff([]ObjectID{a}, fresh.Pick("Enemy")); diff != "" {
		t.Errorf("AddObject on unconcerned name (-want +got):\n%s", diff)
	}
	fresh.AddObject(NoObject)
}

func TestScope_DropsDeletedInstances(t *testing.T) {
	tbl := NewObjectTable()
	a := tbl.Create("Enemy", 0, 0)
	b := tbl.Create("Enemy", 0, 0)
	s := NewScope(tbl)
	s.Pick("Enemy")
	tbl.Delete(a)
	if diff := cmp.Diff([]ObjectID{b}, s.Pick("Enemy")); diff != "" {
		t.Errorf("Pick after delete (-want +got):\n%s", diff)
	}
}

func TestTimersAndClock(t *testing.T) {
	ts := NewTimers()
	ts.Reset("spawn")
	ts.Advance(500 * time.Millisecond)
	ts.Pause("spawn")
	ts.Advance(time.Second)
	if got := ts.Seconds("spawn"); got != 0.5 {
		t.Errorf("Seconds(spawn) = %v, want 0.5", got)
	}
	ts.Resume("spawn")
	ts.Advance(250 * time.Millisecond)
	if got := ts.Seconds("spawn"); got != 0.75 {
		t.Errorf("Seconds(spawn) = %v, want 0.75", got)
	}
	if ts.Seconds("missing") != 0 || ts.Exists("missing") {
		t.Error("missing timer must read as zero and not be created")
	}
	ts.Reset("spawn")
	if ts.Seconds("spawn") != 0 {
		t.Error("Reset did not zero the timer")
	}

	var c Clock
	c.Tick(20 * time.Millisecond)
	c.Tick(20 * time.Millisecond)
	if c.Frame() != 2 || math.Abs(c.Elapsed()-0.04) > 1e-12 || c.Delta() != 0.02 {
		t.Errorf("clock = frame %d elapsed %v delta %v", c.Frame(), c.Elapsed(), c.Delta())
	}
}

func TestDiagnosticLog(t *testing.T) {
	var nilLog *DiagnosticLog
	nilLog.Errorf(CodeMissingParen, "", "ignored")
	if nilLog.Len() != 0 || nilLog.Entries() != nil {
		t.Error("nil log must discard")
	}

	log := &DiagnosticLog{}
	log.Errorf(CodeMissingParen, "OBJ(a", "missing %s", ")")
	log.Warnf(CodeBadFormula, "1+", "bad formula")
	if log.Len() != 2 {
		t.Fatalf("Len = %d", log.Len())
	}
	since := log.Since(1)
	if len(since) != 1 || since[0].Severity != SeverityWarning {
		t.Errorf("Since(1) = %v", since)
	}
	if got := log.Entries()[0].String(); got != `error EX-001: missing ) (in "OBJ(a")` {
		t.Errorf("String = %q", got)
	}
	log.Reset()
	if log.Len() != 0 {
		t.Error("Reset did not clear")
	}
}

func TestScene_RequestChangeFirstWins(t *testing.T) {
	s := NewScene("Main", WithSeed(1))
	if s.PendingChange().Pending() {
		t.Fatal("new scene has a pending change")
	}
	s.RequestChange(Goto("Level2"))
	s.RequestChange(Quit())
	if got := s.PendingChange(); got != Goto("Level2") {
		t.Errorf("PendingChange = %v", got)
	}
	if got := s.TakeChange(); got.String() != `goto "Level2"` {
		t.Errorf("TakeChange = %v", got)
	}
	if s.PendingChange().Pending() {
		t.Error("TakeChange did not clear")
	}
}

func TestScene_SeedIsDeterministic(t *testing.T) {
	a := NewScene("A", WithSeed(42))
	b := NewScene("B", WithSeed(42))
	for i := 0; i < 5; i++ {
		if a.Rand.Float64() != b.Rand.Float64() {
			t.Fatal("same seed produced different sequences")
		}
	}
}
