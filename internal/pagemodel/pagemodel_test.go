package pagemodel

import "testing"

func TestUniquePageIDWithExchange(t *testing.T) {
	got := UniquePageID("NYSE", "doc1", 3)
	want := "NYSE_doc1_pg3"
	if got != want {
		t.Errorf("UniquePageID = %q, want %q", got, want)
	}
}

func TestUniquePageIDWithoutExchange(t *testing.T) {
	got := UniquePageID("", "doc1", 3)
	want := "doc1_pg3"
	if got != want {
		t.Errorf("UniquePageID = %q, want %q", got, want)
	}
}

func TestMetadataMergeOtherWinsOnCollision(t *testing.T) {
	base := Metadata{CompanyID: "base-id", CompanyName: "Base Co", Title: "Base Title"}
	other := Metadata{CompanyID: "override-id", FilingType: "10-K"}

	got := base.Merge(other)

	if got.CompanyID != "override-id" {
		t.Errorf("CompanyID = %q, want override to win", got.CompanyID)
	}
	if got.CompanyName != "Base Co" {
		t.Errorf("CompanyName = %q, want base preserved when other is empty", got.CompanyName)
	}
	if got.Title != "Base Title" {
		t.Errorf("Title = %q, want base preserved when other is empty", got.Title)
	}
	if got.FilingType != "10-K" {
		t.Errorf("FilingType = %q, want other's value", got.FilingType)
	}
}

func TestMetadataMergeEmptyOtherIsNoop(t *testing.T) {
	base := Metadata{CompanyID: "id", CompanyName: "name", FilingDate: "2024-01-01", FilingType: "10-K", Title: "title"}
	got := base.Merge(Metadata{})
	if got != base {
		t.Errorf("Merge with empty other changed values: got %+v, want %+v", got, base)
	}
}

func TestMetadataMergeDoesNotMutateReceiver(t *testing.T) {
	base := Metadata{CompanyID: "base-id"}
	_ = base.Merge(Metadata{CompanyID: "other-id"})
	if base.CompanyID != "base-id" {
		t.Errorf("Merge mutated receiver: got %q", base.CompanyID)
	}
}
