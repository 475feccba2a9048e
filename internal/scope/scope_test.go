package scope

import (
	"errors"
	"sync"
	"testing"

	"github.com/funvibe/taffy/internal/node"
)

func TestSetAndGet(t *testing.T) {
	s := New()
	if err := s.Set("a", node.NumberFromInt(1), NoFlags); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("b", node.NewString("x"), Public); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("a", node.NumberFromInt(2), NoFlags); err != nil {
		t.Fatal(err)
	}
	if got := s.Get("a").String(); got != "2" {
		t.Fatalf("a = %s, want 2", got)
	}
	if s.Get("missing") != nil {
		t.Fatal("missing name resolved")
	}
	d, ok := s.Lookup("b")
	if !ok || !d.Flags.Has(Public) {
		t.Fatalf("Lookup(b) = %+v, %v", d, ok)
	}
	if got := s.String(); got != "{a: 2, b: x}" {
		t.Fatalf("String = %q", got)
	}
}

func TestConstantRebinding(t *testing.T) {
	tests := []struct {
		name   string
		rebind func(s *Scope) error
	}{
		{"set", func(s *Scope) error { return s.Set("c", node.NumberFromInt(2), NoFlags) }},
		{"set constant", func(s *Scope) error { return s.Set("c", node.NumberFromInt(2), Constant) }},
		{"update", func(s *Scope) error { _, err := s.Update("c", node.NumberFromInt(2)); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			if err := s.Set("c", node.NumberFromInt(1), Constant); err != nil {
				t.Fatalf("first set: %v", err)
			}
			err := tt.rebind(s)
			if !errors.Is(err, ErrConstantRedefinition) {
				t.Fatalf("rebind error = %v, want ErrConstantRedefinition", err)
			}
			if got := s.Get("c").String(); got != "1" {
				t.Fatalf("c = %s after rejected rebind", got)
			}
		})
	}
}

func TestMarshallRoundTrip(t *testing.T) {
	s := New()
	_ = s.Set("x", node.NumberFromInt(42), Instance|Reader)
	_ = s.Set("y", node.NewArray(node.NewString("a")), Instance)
	_ = s.Set("z", nil, Constant)

	e := node.NewEncoder()
	e.Write("S", s)
	data := e.Bytes()

	decoded := New()
	if err := node.NewDecoder(data, nil).Read("S", decoded); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := s.Compare(decoded); got != node.Equal {
		t.Fatalf("Compare = %s", got)
	}

	for n := 0; n < len(data); n++ {
		if err := node.NewDecoder(data[:n], nil).Read("S", New()); err == nil {
			t.Fatalf("truncation to %d bytes decoded", n)
		}
	}
}

func TestCopy(t *testing.T) {
	s := New()
	arr := node.NewArray(node.NumberFromInt(1))
	_ = s.Set("arr", arr, NoFlags)

	if s.Copy(node.Shallow).Get("arr") != arr {
		t.Fatal("shallow copy duplicated a value")
	}
	deep := s.Copy(node.Deep)
	if deep.Get("arr") == arr || !node.Equals(deep.Get("arr"), arr) {
		t.Fatal("deep copy did not duplicate the value")
	}
}

func TestDeleteKeepsOrder(t *testing.T) {
	s := New()
	for _, name := range []string{"a", "b", "c"} {
		_ = s.Set(name, nil, NoFlags)
	}
	if !s.Delete("b") || s.Delete("b") {
		t.Fatal("Delete reported wrong presence")
	}
	var names []string
	s.Each(func(d Data) bool { names = append(names, d.Name); return true })
	if len(names) != 2 || names[0] != "a" || names[1] != "c" {
		t.Fatalf("names = %v", names)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Set("shared", node.NumberFromInt(int64(j)), NoFlags)
				_ = s.Get("shared")
			}
		}(i)
	}
	wg.Wait()
	if s.Len() != 1 {
		t.Fatalf("Len = %d", s.Len())
	}
}

func TestFlagsString(t *testing.T) {
	if got := (Method | Synchronized).String(); got != "METHOD|SYNCHRONIZED" {
		t.Fatalf("String = %q", got)
	}
	if Local.String() != "LOCAL" {
		t.Fatal("zero flags should print LOCAL")
	}
}
