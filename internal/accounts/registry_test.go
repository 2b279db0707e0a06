package accounts

import (
	"errors"
	"testing"
)

func TestRegistryFiltersIncomplete(t *testing.T) {
	t.Parallel()
	r := NewRegistry([]Account{
		{ID: "a", Name: "Alpha", Address: "alpha@example.com", CredentialRef: "cred-a"},
		{ID: "b", Name: "", Address: "beta@example.com", CredentialRef: "cred-b"},
		{ID: "c", Name: "Gamma", Address: "gamma@example.com", CredentialRef: ""},
	})

	got := r.List()
	if len(got) != 1 {
		t.Fatalf("List() returned %d accounts, want 1", len(got))
	}
	if got[0].ID != "a" {
		t.Fatalf("List()[0].ID = %q, want %q", got[0].ID, "a")
	}
}

func TestRegistryPreservesOrderAndDedupes(t *testing.T) {
	t.Parallel()
	r := NewRegistry([]Account{
		{ID: "b", Name: "B", Address: "b@example.com", CredentialRef: "x"},
		{ID: "a", Name: "A", Address: "a@example.com", CredentialRef: "y"},
		{ID: "b", Name: "B2", Address: "b2@example.com", CredentialRef: "z"},
	})

	got := r.List()
	if len(got) != 2 {
		t.Fatalf("List() returned %d accounts, want 2", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("unexpected order: %q, %q", got[0].ID, got[1].ID)
	}
	if got[0].Name != "B" {
		t.Fatalf("duplicate id should keep first entry, got name %q", got[0].Name)
	}
}

func TestRegistryGet(t *testing.T) {
	t.Parallel()
	r := NewRegistry([]Account{
		{ID: "a", Name: "A", Address: "a@example.com", CredentialRef: "y"},
	})

	if _, err := r.Get("a"); err != nil {
		t.Fatalf("Get(a) error: %v", err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
}
