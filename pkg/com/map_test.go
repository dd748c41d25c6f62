package com

import (
	"sync"
	"sync/atomic"
	"testing"
)

type testClient struct {
	id Uid
	c  int32
}

func (t *testClient) Id() Uid      { return t.id }
func (t *testClient) change(n int) { atomic.AddInt32(&t.c, int32(n)) }

func TestPointerValue(t *testing.T) {
	m := NewNetMap[*testClient]()
	c := testClient{id: NewUid()}
	m.Add(&c)
	c.change(100)
	fc, err := m.Find(c.Id())
	if err != nil {
		t.Fatalf("not found: %v", err)
	}
	if fc.c != c.c {
		t.Errorf("not expected change, o: %v != %v", c.c, fc.c)
	}
}

func TestRemove(t *testing.T) {
	m := NewNetMap[*testClient]()
	a, b := &testClient{id: NewUid()}, &testClient{id: NewUid()}
	m.Add(a)
	m.Add(b)
	m.Remove(a)
	if m.Has(a.Id()) || !m.Has(b.Id()) || m.Len() != 1 {
		t.Errorf("wrong map content after remove, len: %v", m.Len())
	}
	if _, ok := m.Pop(b.Id()); !ok || !m.IsEmpty() {
		t.Errorf("pop failed")
	}
}

func TestConcurrentValues(t *testing.T) {
	m := NewMap[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) { defer wg.Done(); m.Put(i, i) }(i)
		go func() { defer wg.Done(); _ = m.Values() }()
	}
	wg.Wait()
	if len(m.Values()) != 100 {
		t.Errorf("expected 100 values, got %v", len(m.Values()))
	}
}

func TestShortUid(t *testing.T) {
	id := NewUid()
	if s := id.Short(); len(s) != 7 {
		t.Errorf("wrong short id %v", s)
	}
	if !NilUid.IsEmpty() {
		t.Errorf("nil uid is not empty")
	}
}
