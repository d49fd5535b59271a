package model

import (
	"testing"
	"time"
)

func TestIsLocalImageRef(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"", false},
		{"file:///tmp/lamp.jpg", true},
		{"/tmp/lamp.jpg", true},
		{"photos/lamp.png", true},
		{"http://localhost:8080/storage/item-images/u/a.jpg", false},
		{"https://cdn.example.com/a.jpg", false},
	}

	for _, tt := range tests {
		if got := IsLocalImageRef(tt.ref); got != tt.want {
			t.Errorf("IsLocalImageRef(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestToRemoteDropsLocalID(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	item := Item{
		ID:        LocalIDPrefix + "abc",
		Title:     "Lamp",
		Rating:    RatingNeutral,
		ImageRef:  "https://cdn.example.com/lamp.jpg",
		OwnerID:   "user-1",
		CreatedAt: created,
	}

	r := item.ToRemote()
	if r.ID != "" {
		t.Errorf("expected local id to be dropped, got %q", r.ID)
	}
	if r.UserID != "user-1" || r.ImageURL != item.ImageRef || !r.CreatedAt.Equal(created) {
		t.Errorf("unexpected remote record: %+v", r)
	}

	item.ID = "0b5c7a9e"
	if got := item.ToRemote().ID; got != "0b5c7a9e" {
		t.Errorf("expected remote id to be kept, got %q", got)
	}
}

func TestFromRemoteIsSynced(t *testing.T) {
	r := RemoteItem{
		ID:       "srv-1",
		Title:    "Chair",
		Rating:   RatingGood,
		ImageURL: "https://cdn.example.com/chair.jpg",
		UserID:   "user-1",
	}

	item := FromRemote(r)
	if !item.Synced() {
		t.Errorf("expected synced item, got %q", item.SyncStatus)
	}
	if item.ImageRef != r.ImageURL || item.OwnerID != r.UserID {
		t.Errorf("unexpected mapping: %+v", item)
	}
}

func TestPatchApply(t *testing.T) {
	title := "New title"
	rating := RatingGood
	item := Item{ID: "x", Title: "Old", Description: "keep", Rating: RatingBad}

	patch := ItemPatch{Title: &title, Rating: &rating}
	if patch.Empty() {
		t.Fatal("expected non-empty patch")
	}

	got := patch.Apply(item)
	if got.Title != title || got.Rating != rating || got.Description != "keep" {
		t.Errorf("unexpected patched item: %+v", got)
	}
	if item.Title != "Old" {
		t.Error("Apply must not modify its argument")
	}
}

func TestValidRating(t *testing.T) {
	for r := RatingNone; r <= RatingGood; r++ {
		if !ValidRating(r) {
			t.Errorf("expected rating %d to be valid", r)
		}
	}
	if ValidRating(-1) || ValidRating(4) {
		t.Error("expected out-of-range ratings to be invalid")
	}
}
