package service

import (
	"errors"
	"testing"
)

type fake struct {
	name string
	err  error
	log  *[]string
}

func (f fake) Run()           { *f.log = append(*f.log, "run "+f.name) }
func (f fake) Stop() error    { *f.log = append(*f.log, "stop "+f.name); return f.err }
func (f fake) String() string { return f.name }

func TestGroup(t *testing.T) {
	var log []string
	errB := errors.New("b failed")

	g := Group{}
	g.Add(fake{name: "a", log: &log}, fake{name: "b", err: errB, log: &log}, fake{name: "c", log: &log})
	g.Start()
	err := g.Stop()

	want := []string{"run a", "run b", "run c", "stop c", "stop b", "stop a"}
	if len(log) != len(want) {
		t.Fatalf("expected %v, got %v", want, log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("expected %v, got %v", want, log)
			break
		}
	}
	if !errors.Is(err, errB) {
		t.Errorf("expected the b error, got %v", err)
	}
}

func TestEmptyGroup(t *testing.T) {
	g := Group{}
	g.Start()
	if err := g.Stop(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
