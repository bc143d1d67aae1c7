package gpu

import (
	"reflect"
	"testing"
)

type recordDestroy struct {
	name string
	log  *[]string
}

func (r recordDestroy) Destroy() {
	*r.log = append(*r.log, r.name)
}

func TestScopeReleasesInReverseOrder(t *testing.T) {
	var log []string
	scope := &Scope{}
	scope.Add(recordDestroy{"layout", &log})
	scope.Add(recordDestroy{"pipeline", &log})
	scope.Defer(func() { log = append(log, "staging") })

	scope.Release()
	scope.Release()

	want := []string{"staging", "pipeline", "layout"}
	if !reflect.DeepEqual(log, want) {
		t.Fatalf("release order = %v, want %v", log, want)
	}
}

func TestScopeDismissTransfersOwnership(t *testing.T) {
	var log []string
	scope := &Scope{}
	scope.Add(recordDestroy{"image", &log})

	kept := scope.Dismiss()
	scope.Release()
	if len(log) != 0 {
		t.Fatalf("dismissed scope released %v", log)
	}
	if kept.Len() != 1 {
		t.Fatalf("kept scope has %d actions, want 1", kept.Len())
	}

	kept.Release()
	if !reflect.DeepEqual(log, []string{"image"}) {
		t.Fatalf("kept scope released %v", log)
	}
}

func TestScopeAdopt(t *testing.T) {
	var log []string
	owner := &Scope{}
	owner.Add(recordDestroy{"device", &log})

	child := &Scope{}
	child.Add(recordDestroy{"buffer", &log})
	owner.Adopt(child)

	if child.Len() != 0 {
		t.Fatalf("adopted scope still holds %d actions", child.Len())
	}
	owner.Release()
	want := []string{"buffer", "device"}
	if !reflect.DeepEqual(log, want) {
		t.Fatalf("release order = %v, want %v", log, want)
	}
}

func TestScopeIgnoresNil(t *testing.T) {
	scope := &Scope{}
	scope.Add(nil)
	scope.Defer(nil)
	if scope.Len() != 0 {
		t.Fatalf("nil registrations were kept")
	}

	var nilScope *Scope
	nilScope.Release()
}

func TestExtentDegenerate(t *testing.T) {
	cases := []struct {
		extent Extent
		want   bool
	}{
		{Extent{800, 600}, false},
		{Extent{0, 600}, true},
		{Extent{800, 0}, true},
		{Extent{}, true},
	}
	for _, c := range cases {
		if got := c.extent.Degenerate(); got != c.want {
			t.Errorf("%+v.Degenerate() = %v, want %v", c.extent, got, c.want)
		}
	}
}
