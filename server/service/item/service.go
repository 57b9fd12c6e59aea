// Package item implements the lost and found item lifecycle: posting with
// the duplicate guard, listing, the QR claim handoff, and deletion.
package item

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/refound-dev/refound/server/auth"
	apperrors "github.com/refound-dev/refound/server/internal/errors"
	"github.com/refound-dev/refound/store"
)

// qrTTL is how long a generated claim token stays valid.
const qrTTL = 5 * time.Minute

// ItemStore is the slice of the store this service needs. *store.Store
// satisfies it.
type ItemStore interface {
	CreateItem(ctx context.Context, create *store.Item) (*store.Item, error)
	ListItems(ctx context.Context, find *store.FindItem) ([]*store.Item, error)
	GetItem(ctx context.Context, find *store.FindItem) (*store.Item, error)
	UpdateItem(ctx context.Context, update *store.UpdateItem) error
	DeleteItem(ctx context.Context, delete *store.DeleteItem) error
	FindDuplicate(ctx context.Context, find *store.FindDuplicateItem) (*store.Item, error)
}

// Matcher is the match engine surface the item lifecycle drives.
type Matcher interface {
	// EnqueueIngest schedules match computation for a new item. It must not
	// block and its outcome never affects the caller.
	EnqueueIngest(item *store.Item)
	// PurgeReferences removes all match entries pointing at the item.
	PurgeReferences(ctx context.Context, itemUID string)
}

// PhotoDeleter removes stored photo files.
type PhotoDeleter interface {
	Delete(imagePath, thumbnailPath string)
}

// Service is the item lifecycle service.
type Service struct {
	store   ItemStore
	matcher Matcher
	photos  PhotoDeleter
}

// NewService creates an item service. photos may be nil when photo files are
// managed elsewhere.
func NewService(itemStore ItemStore, matcher Matcher, photos PhotoDeleter) *Service {
	return &Service{
		store:   itemStore,
		matcher: matcher,
		photos:  photos,
	}
}

// CreateItemRequest carries the fields of a new report. Image paths are
// already stored by the photo service when this is called.
type CreateItemRequest struct {
	Kind           store.ItemKind
	Category       string
	Title          string
	Description    string
	Location       string
	FounderContact string
	ImagePath      *string
	ThumbnailPath  *string
}

// Create posts a new item. The same user posting an open item with the same
// normalized title and location is rejected as a duplicate. Match computation
// is scheduled after the item is persisted and never affects the response.
func (s *Service) Create(ctx context.Context, caller *auth.CallerIdentity, req *CreateItemRequest) (*store.Item, error) {
	if req.Kind != store.ItemKindLost && req.Kind != store.ItemKindFound {
		return nil, apperrors.InvalidArgument("kind must be lost or found")
	}
	if req.Title == "" {
		return nil, apperrors.InvalidArgument("title is required")
	}
	if req.Location == "" {
		return nil, apperrors.InvalidArgument("location is required")
	}
	if req.Kind == store.ItemKindFound && req.FounderContact == "" {
		return nil, apperrors.InvalidArgument("founder contact is required for found items")
	}

	duplicate, err := s.store.FindDuplicate(ctx, &store.FindDuplicateItem{
		PostedBy: caller.UserID,
		Title:    req.Title,
		Location: req.Location,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to check for duplicates", err)
	}
	if duplicate != nil {
		return nil, apperrors.DuplicateItem("you already have an open report for this item")
	}

	item := &store.Item{
		UID:              shortuuid.New(),
		Kind:             req.Kind,
		Status:           store.ItemStatusOpen,
		Category:         req.Category,
		Title:            req.Title,
		Description:      req.Description,
		Location:         req.Location,
		OrganizationType: caller.OrganizationType,
		CollegeID:        caller.CollegeID,
		SocietyID:        caller.SocietyID,
		PostedBy:         caller.UserID,
		FounderContact:   req.FounderContact,
		ImagePath:        req.ImagePath,
		ThumbnailPath:    req.ThumbnailPath,
	}

	created, err := s.store.CreateItem(ctx, item)
	if err != nil {
		return nil, apperrors.Internal("failed to create item", err)
	}

	s.matcher.EnqueueIngest(created)
	return created, nil
}

// ListFilter narrows a scoped item listing.
type ListFilter struct {
	Kind   *store.ItemKind
	Status *store.ItemStatus
}

// List returns the items visible to the caller: those in the caller's
// organization scope.
func (s *Service) List(ctx context.Context, caller *auth.CallerIdentity, filter *ListFilter) ([]*store.Item, error) {
	find := &store.FindItem{
		OrganizationType: &caller.OrganizationType,
		CollegeID:        caller.CollegeID,
		SocietyID:        caller.SocietyID,
	}
	if filter != nil {
		find.Kind = filter.Kind
		find.Status = filter.Status
	}
	items, err := s.store.ListItems(ctx, find)
	if err != nil {
		return nil, apperrors.Internal("failed to list items", err)
	}
	return items, nil
}

// ListPosted returns the caller's own reports regardless of status.
func (s *Service) ListPosted(ctx context.Context, caller *auth.CallerIdentity) ([]*store.Item, error) {
	items, err := s.store.ListItems(ctx, &store.FindItem{PostedBy: &caller.UserID})
	if err != nil {
		return nil, apperrors.Internal("failed to list posted items", err)
	}
	return items, nil
}

// ListClaimed returns the items the caller has claimed.
func (s *Service) ListClaimed(ctx context.Context, caller *auth.CallerIdentity) ([]*store.Item, error) {
	items, err := s.store.ListItems(ctx, &store.FindItem{ClaimedBy: &caller.UserID})
	if err != nil {
		return nil, apperrors.Internal("failed to list claimed items", err)
	}
	return items, nil
}

// Get returns a single item the caller is allowed to see.
func (s *Service) Get(ctx context.Context, caller *auth.CallerIdentity, uid string) (*store.Item, error) {
	item, err := s.store.GetItem(ctx, &store.FindItem{UID: &uid})
	if err != nil {
		return nil, apperrors.Internal("failed to get item", err)
	}
	if item == nil || !s.visibleTo(caller, item) {
		return nil, apperrors.NotFound("item not found")
	}
	return item, nil
}

// QRGrant is a freshly minted claim token.
type QRGrant struct {
	Token     string
	ExpiresTs int64
}

// GenerateQR mints a short-lived claim token for an item. Only the poster of
// an open item can generate one; a new token replaces any previous one.
func (s *Service) GenerateQR(ctx context.Context, caller *auth.CallerIdentity, uid string) (*QRGrant, error) {
	item, err := s.Get(ctx, caller, uid)
	if err != nil {
		return nil, err
	}
	if item.PostedBy != caller.UserID {
		return nil, apperrors.PermissionDenied("only the poster can generate a claim code")
	}
	if item.Status != store.ItemStatusOpen {
		return nil, apperrors.AlreadyClaimed("item is already claimed")
	}

	token := uuid.NewString()
	expiresTs := time.Now().Add(qrTTL).Unix()
	if err := s.store.UpdateItem(ctx, &store.UpdateItem{
		UID:         uid,
		SetQR:       true,
		QRToken:     &token,
		QRExpiresTs: &expiresTs,
	}); err != nil {
		return nil, apperrors.Internal("failed to store claim code", err)
	}
	return &QRGrant{Token: token, ExpiresTs: expiresTs}, nil
}

// VerifyQR resolves a claim token to its item without consuming it. Used by
// the claimer's device to preview what is being handed over.
func (s *Service) VerifyQR(ctx context.Context, caller *auth.CallerIdentity, token string) (*store.Item, error) {
	return s.resolveQR(ctx, caller, token)
}

// Claim finalizes a handoff: the caller scans the poster's claim token and
// takes ownership. The token is consumed, the item leaves the open pool, and
// every match entry pointing at it is purged.
func (s *Service) Claim(ctx context.Context, caller *auth.CallerIdentity, token string) (*store.Item, error) {
	item, err := s.resolveQR(ctx, caller, token)
	if err != nil {
		return nil, err
	}
	if item.PostedBy == caller.UserID {
		return nil, apperrors.PermissionDenied("cannot claim your own item")
	}

	status := store.ItemStatusClaimed
	if err := s.store.UpdateItem(ctx, &store.UpdateItem{
		UID:       item.UID,
		Status:    &status,
		ClaimedBy: &caller.UserID,
		SetQR:     true,
	}); err != nil {
		return nil, apperrors.Internal("failed to claim item", err)
	}

	s.matcher.PurgeReferences(ctx, item.UID)

	item.Status = status
	item.ClaimedBy = &caller.UserID
	item.QRToken = nil
	item.QRExpiresTs = nil
	return item, nil
}

// Delete removes the caller's own item, its photo files, and every match
// entry pointing at it.
func (s *Service) Delete(ctx context.Context, caller *auth.CallerIdentity, uid string) error {
	item, err := s.Get(ctx, caller, uid)
	if err != nil {
		return err
	}
	if item.PostedBy != caller.UserID {
		return apperrors.PermissionDenied("only the poster can delete an item")
	}

	if err := s.store.DeleteItem(ctx, &store.DeleteItem{UID: uid}); err != nil {
		return apperrors.Internal("failed to delete item", err)
	}

	s.matcher.PurgeReferences(ctx, uid)

	if s.photos != nil && item.HasImage() {
		thumb := ""
		if item.ThumbnailPath != nil {
			thumb = *item.ThumbnailPath
		}
		s.photos.Delete(*item.ImagePath, thumb)
	}
	return nil
}

func (s *Service) resolveQR(ctx context.Context, caller *auth.CallerIdentity, token string) (*store.Item, error) {
	if token == "" {
		return nil, apperrors.QRInvalid("missing claim token")
	}
	item, err := s.store.GetItem(ctx, &store.FindItem{QRToken: &token})
	if err != nil {
		return nil, apperrors.Internal("failed to resolve claim token", err)
	}
	if item == nil || !s.visibleTo(caller, item) {
		return nil, apperrors.QRInvalid("unknown claim token")
	}
	if item.Status != store.ItemStatusOpen {
		return nil, apperrors.AlreadyClaimed("item is already claimed")
	}
	if item.QRExpiresTs == nil || time.Now().Unix() > *item.QRExpiresTs {
		return nil, apperrors.QRExpired("claim token expired")
	}
	return item, nil
}

// visibleTo restricts items to the caller's own organization scope.
func (s *Service) visibleTo(caller *auth.CallerIdentity, item *store.Item) bool {
	return item.OrganizationType == caller.OrganizationType && item.ScopeID() == caller.ScopeID()
}
