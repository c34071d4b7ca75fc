package modeltags

import "testing"

func TestResolveKnownTag(t *testing.T) {
	r := NewRegistry([]Binding{{Tag: "fast", Backend: BackendSubprocess, BackendModelRef: "gpt-fast"}})
	b, err := r.Resolve("fast")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if b.Backend != BackendSubprocess || b.BackendModelRef != "gpt-fast" {
		t.Fatalf("unexpected binding: %+v", b)
	}
}

func TestResolveUnknownTagIsRejected(t *testing.T) {
	r := NewRegistry([]Binding{{Tag: "fast", Backend: BackendSubprocess}})
	if _, err := r.Resolve("slow"); err == nil {
		t.Fatal("expected error resolving an unknown tag")
	}
}

func TestResolveOnEmptyRegistryRejectsEverything(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Resolve("anything"); err == nil {
		t.Fatal("expected an empty registry to reject every tag")
	}
}

func TestResolveOnNilRegistryRejectsEverything(t *testing.T) {
	var r *Registry
	if _, err := r.Resolve("anything"); err == nil {
		t.Fatal("expected a nil registry to reject every tag")
	}
}

func TestTagsListsEveryBoundTag(t *testing.T) {
	r := NewRegistry([]Binding{{Tag: "fast"}, {Tag: "smart"}})
	tags := r.Tags()
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(tags))
	}
}
