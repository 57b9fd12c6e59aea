package store

import (
	"context"
	"strings"
)

// ItemKind tells whether a report is about a lost or a found object.
type ItemKind string

const (
	ItemKindLost  ItemKind = "lost"
	ItemKindFound ItemKind = "found"
)

// Opposite returns the kind an item of this kind is matched against.
func (k ItemKind) Opposite() ItemKind {
	if k == ItemKindLost {
		return ItemKindFound
	}
	return ItemKindLost
}

// ItemStatus is the lifecycle state of an item.
type ItemStatus string

const (
	ItemStatusOpen    ItemStatus = "open"
	ItemStatusClaimed ItemStatus = "claimed"
)

// OrganizationType partitions items between college and society scopes.
type OrganizationType string

const (
	OrganizationCollege OrganizationType = "college"
	OrganizationSociety OrganizationType = "society"
)

// MatchCandidate is one entry of an item's match list. Entries are unique by
// CandidateUID; all mutations go through AddMatchCandidate/PullMatchReference.
type MatchCandidate struct {
	CandidateUID string  `json:"candidate_uid"`
	Score        float64 `json:"score"`
}

// Item is a lost or found report.
type Item struct {
	// ID is the system generated identifier.
	ID int32
	// UID is the public opaque identifier.
	UID string

	// Standard fields
	CreatedTs int64
	UpdatedTs int64

	// Classification
	Kind     ItemKind
	Status   ItemStatus
	Category string

	// Content
	Title       string
	Description string
	Location    string

	// Scope: exactly one of CollegeID/SocietyID is set, per OrganizationType.
	OrganizationType OrganizationType
	CollegeID        *string
	SocietyID        *string

	// Ownership
	PostedBy  string
	ClaimedBy *string

	// Found item contact
	FounderContact string

	// Image
	ImagePath     *string
	ThumbnailPath *string

	// QR claim flow
	QRToken     *string
	QRExpiresTs *int64

	// Vision state: absent until computed, computed at most once.
	Embedding []float32

	// Match state
	MatchCandidates []MatchCandidate
}

// ScopeID returns the organization identifier the item belongs to.
func (i *Item) ScopeID() string {
	if i.OrganizationType == OrganizationCollege && i.CollegeID != nil {
		return *i.CollegeID
	}
	if i.OrganizationType == OrganizationSociety && i.SocietyID != nil {
		return *i.SocietyID
	}
	return ""
}

// HasImage reports whether the item was posted with a photo.
func (i *Item) HasImage() bool {
	return i.ImagePath != nil && *i.ImagePath != ""
}

// HasEmbedding reports whether the item's embedding has been computed.
func (i *Item) HasEmbedding() bool {
	return len(i.Embedding) > 0
}

// FindItem is the find condition for items.
type FindItem struct {
	ID               *int32
	UID              *string
	Kind             *ItemKind
	Status           *ItemStatus
	OrganizationType *OrganizationType
	CollegeID        *string
	SocietyID        *string
	PostedBy         *string
	ClaimedBy        *string
	QRToken          *string

	// MissingEmbedding selects items with an image but no computed embedding.
	MissingEmbedding bool

	Limit  *int
	Offset *int
}

// UpdateItem is a point update of a single item's mutable fields.
type UpdateItem struct {
	UID string

	Status    *ItemStatus
	ClaimedBy *string

	// SetQR replaces both QR fields, including clearing them with nils.
	SetQR       bool
	QRToken     *string
	QRExpiresTs *int64
}

// DeleteItem is the delete condition for an item.
type DeleteItem struct {
	UID string
}

// FindDuplicateItem looks for an open report by the same user with the same
// normalized title and location.
type FindDuplicateItem struct {
	PostedBy string
	Title    string
	Location string
}

// Normalize trims and lowercases the free-text fields compared by the
// duplicate guard.
func (f *FindDuplicateItem) Normalize() {
	f.Title = strings.ToLower(strings.TrimSpace(f.Title))
	f.Location = strings.ToLower(strings.TrimSpace(f.Location))
}

func (s *Store) CreateItem(ctx context.Context, create *Item) (*Item, error) {
	return s.driver.CreateItem(ctx, create)
}

func (s *Store) ListItems(ctx context.Context, find *FindItem) ([]*Item, error) {
	return s.driver.ListItems(ctx, find)
}

// GetItem returns a single item or nil when not found.
func (s *Store) GetItem(ctx context.Context, find *FindItem) (*Item, error) {
	limit := 1
	find.Limit = &limit
	list, err := s.driver.ListItems(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateItem(ctx context.Context, update *UpdateItem) error {
	return s.driver.UpdateItem(ctx, update)
}

func (s *Store) DeleteItem(ctx context.Context, delete *DeleteItem) error {
	return s.driver.DeleteItem(ctx, delete)
}

// UpdateItemEmbedding persists the computed embedding vector for an item.
func (s *Store) UpdateItemEmbedding(ctx context.Context, uid string, embedding []float32) error {
	return s.driver.UpdateItemEmbedding(ctx, uid, embedding)
}

// FindOppositeOpenItems returns the open items of the opposite kind within the
// exact same organization scope as item. The item itself can never appear in
// the result since its kind differs.
func (s *Store) FindOppositeOpenItems(ctx context.Context, item *Item) ([]*Item, error) {
	opposite := item.Kind.Opposite()
	status := ItemStatusOpen
	find := &FindItem{
		Kind:             &opposite,
		Status:           &status,
		OrganizationType: &item.OrganizationType,
	}
	switch item.OrganizationType {
	case OrganizationCollege:
		find.CollegeID = item.CollegeID
	case OrganizationSociety:
		find.SocietyID = item.SocietyID
	}
	return s.driver.ListItems(ctx, find)
}

// AddMatchCandidate atomically adds candidate to the item's match list unless
// an entry with the same candidate UID already exists.
func (s *Store) AddMatchCandidate(ctx context.Context, itemUID string, candidate *MatchCandidate) error {
	return s.driver.AddMatchCandidate(ctx, itemUID, candidate)
}

// PullMatchReference removes every match entry referencing candidateUID from
// all items store-wide. Calling it again is a no-op.
func (s *Store) PullMatchReference(ctx context.Context, candidateUID string) error {
	return s.driver.PullMatchReference(ctx, candidateUID)
}

// FindDuplicate returns an open item duplicating the given post, or nil.
func (s *Store) FindDuplicate(ctx context.Context, find *FindDuplicateItem) (*Item, error) {
	find.Normalize()
	return s.driver.FindDuplicateItem(ctx, find)
}

// FindItemsMissingEmbedding returns open items that have an image but no
// embedding yet, for lazy backfill.
func (s *Store) FindItemsMissingEmbedding(ctx context.Context, limit int) ([]*Item, error) {
	status := ItemStatusOpen
	return s.driver.ListItems(ctx, &FindItem{
		Status:           &status,
		MissingEmbedding: true,
		Limit:            &limit,
	})
}
