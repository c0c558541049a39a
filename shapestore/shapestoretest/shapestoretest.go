// Package shapestoretest holds the conformance suite every shapestore.Store
// backend runs.
package shapestoretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ggoodman/optshape/shape"
	"github.com/ggoodman/optshape/shapestore"
)

// StoreFactory creates a new, empty Store for one test.
type StoreFactory func(t *testing.T) shapestore.Store

// RunStoreTests runs the complete Store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("PutAndGet", func(t *testing.T) { testPutAndGet(t, factory) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("PutReplaces", func(t *testing.T) { testPutReplaces(t, factory) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory) })
	t.Run("List", func(t *testing.T) { testList(t, factory) })
	t.Run("RejectsInvalid", func(t *testing.T) { testRejectsInvalid(t, factory) })
	t.Run("ConcurrentPuts", func(t *testing.T) { testConcurrentPuts(t, factory) })
}

func sample() shape.Shape {
	return shape.RecordOf(
		shape.Req("a", shape.Str()),
		shape.Opt("b", shape.Num()),
		shape.Opt("items", shape.ListOf(shape.RecordOf(shape.Req("n", shape.Integer())))),
		shape.Opt("payload", shape.Poly("T")),
	)
}

func open(t *testing.T, factory StoreFactory) (shapestore.Store, context.Context) {
	t.Helper()
	s := factory(t)
	t.Cleanup(func() { _ = s.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return s, ctx
}

func testPutAndGet(t *testing.T, factory StoreFactory) {
	s, ctx := open(t, factory)

	fp, err := s.Put(ctx, "contact", sample())
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	want, _ := shape.Fingerprint(sample())
	if fp != want {
		t.Fatalf("fingerprint %s, want %s", fp, want)
	}
	got, err := s.Get(ctx, "contact")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Fatalf("stored descriptor differs (-want +got):\n%s", diff)
	}
}

func testGetMissing(t *testing.T, factory StoreFactory) {
	s, ctx := open(t, factory)
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, shapestore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testPutReplaces(t *testing.T, factory StoreFactory) {
	s, ctx := open(t, factory)
	first, err := s.Put(ctx, "x", shape.Str())
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	second, err := s.Put(ctx, "x", shape.ListOf(shape.Str()))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if first == second {
		t.Fatalf("expected a new fingerprint")
	}
	got, err := s.Get(ctx, "x")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !shape.Equal(got, shape.ListOf(shape.Str())) {
		t.Fatalf("expected replacement, got %s", got)
	}
}

func testDelete(t *testing.T, factory StoreFactory) {
	s, ctx := open(t, factory)
	if _, err := s.Put(ctx, "gone", shape.Boolean()); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := s.Delete(ctx, "gone"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "gone"); !errors.Is(err, shapestore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "gone"); !errors.Is(err, shapestore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func testList(t *testing.T, factory StoreFactory) {
	s, ctx := open(t, factory)
	for _, n := range []string{"b", "a", "c.v2"} {
		if _, err := s.Put(ctx, n, shape.Str()); err != nil {
			t.Fatalf("put %s failed: %v", n, err)
		}
	}
	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c.v2"}, names); diff != "" {
		t.Fatalf("unexpected names (-want +got):\n%s", diff)
	}
}

func testRejectsInvalid(t *testing.T, factory StoreFactory) {
	s, ctx := open(t, factory)
	for _, n := range []string{"", "has space", "a/b"} {
		if _, err := s.Put(ctx, n, shape.Str()); !errors.Is(err, shapestore.ErrInvalidName) {
			t.Fatalf("name %q: expected ErrInvalidName, got %v", n, err)
		}
	}
	if _, err := s.Put(ctx, "bad", shape.Container{}); err == nil {
		t.Fatalf("expected invalid descriptor to be rejected")
	}
	if _, err := s.Get(ctx, "bad"); !errors.Is(err, shapestore.ErrNotFound) {
		t.Fatalf("invalid descriptor was stored")
	}
}

func testConcurrentPuts(t *testing.T, factory StoreFactory) {
	s, ctx := open(t, factory)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Put(ctx, fmt.Sprintf("s%02d", i), shape.Integer()); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("put failed: %v", err)
	}
	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(names) != 16 {
		t.Fatalf("expected 16 names, got %d", len(names))
	}
}
