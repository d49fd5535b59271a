package model

import (
	"strings"
	"time"
)

// LocalIDPrefix marks ids generated on the device before the server has
// assigned one.
const LocalIDPrefix = "local-"

// SyncStatus records whether an item's current values are known to the server.
type SyncStatus string

// Sync statuses.
const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
)

// Ratings. Zero means the item has not been rated yet.
const (
	RatingNone    = 0
	RatingBad     = 1
	RatingNeutral = 2
	RatingGood    = 3
)

// ValidRating reports whether r is an accepted rating value.
func ValidRating(r int) bool {
	return r >= RatingNone && r <= RatingGood
}

// Item is the device-side representation of a tracked item. It is also the
// record shape written to the local store.
type Item struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Rating      int        `json:"rating"`
	ImageRef    string     `json:"imageRef,omitempty"`
	OwnerID     string     `json:"ownerId"`
	CreatedAt   time.Time  `json:"createdAt"`
	SyncStatus  SyncStatus `json:"syncStatus"`
}

// Synced reports whether the item's values have been confirmed by the server.
func (i Item) Synced() bool {
	return i.SyncStatus == SyncSynced
}

// IsLocal reports whether the item has not graduated to a server id yet.
func (i Item) IsLocal() bool {
	return IsLocalID(i.ID)
}

// IsLocalID reports whether id belongs to the client-generated id space.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// IsLocalImageRef reports whether ref points to a file on this device rather
// than an uploaded blob.
func IsLocalImageRef(ref string) bool {
	if ref == "" {
		return false
	}
	if strings.HasPrefix(ref, "file://") {
		return true
	}
	return !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://")
}

// ItemDraft holds the user-supplied fields of a new item.
type ItemDraft struct {
	Title       string
	Description string
	Rating      int
	ImageRef    string
}

// ItemPatch holds optional field changes. Nil fields are left untouched.
type ItemPatch struct {
	Title       *string
	Description *string
	Rating      *int
	ImageRef    *string
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Rating == nil && p.ImageRef == nil
}

// Apply returns a copy of item with the patch merged in.
func (p ItemPatch) Apply(item Item) Item {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Rating != nil {
		item.Rating = *p.Rating
	}
	if p.ImageRef != nil {
		item.ImageRef = *p.ImageRef
	}
	return item
}

// RemoteItem is the record shape of the hosted items table.
type RemoteItem struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Rating      int       `json:"rating"`
	ImageURL    string    `json:"image_url,omitempty"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// RemotePatch is the body of a remote item update.
type RemotePatch struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Rating      int    `json:"rating"`
	ImageURL    string `json:"image_url"`
}

// FromRemote maps a server record into the device shape. Records coming from
// the server are synced by definition.
func FromRemote(r RemoteItem) Item {
	return Item{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Rating:      r.Rating,
		ImageRef:    r.ImageURL,
		OwnerID:     r.UserID,
		CreatedAt:   r.CreatedAt.UTC(),
		SyncStatus:  SyncSynced,
	}
}

// ToRemote maps the item into an insert record. Local ids never leave the
// device, so the id is dropped for local items.
func (i Item) ToRemote() RemoteItem {
	r := RemoteItem{
		Title:       i.Title,
		Description: i.Description,
		Rating:      i.Rating,
		ImageURL:    i.ImageRef,
		UserID:      i.OwnerID,
		CreatedAt:   i.CreatedAt,
	}
	if !i.IsLocal() {
		r.ID = i.ID
	}
	return r
}

// ToPatch maps the item's mutable fields into an update body.
func (i Item) ToPatch() RemotePatch {
	return RemotePatch{
		Title:       i.Title,
		Description: i.Description,
		Rating:      i.Rating,
		ImageURL:    i.ImageRef,
	}
}

// SameValues reports whether two items carry identical field values,
// ignoring the sync status.
func SameValues(a, b Item) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Description == b.Description &&
		a.Rating == b.Rating &&
		a.ImageRef == b.ImageRef &&
		a.OwnerID == b.OwnerID &&
		a.CreatedAt.Equal(b.CreatedAt)
}
