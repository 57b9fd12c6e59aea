package item

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refound-dev/refound/server/auth"
	apperrors "github.com/refound-dev/refound/server/internal/errors"
	"github.com/refound-dev/refound/store"
)

type fakeItemStore struct {
	mu    sync.Mutex
	items map[string]*store.Item
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{items: make(map[string]*store.Item)}
}

func (s *fakeItemStore) CreateItem(_ context.Context, create *store.Item) (*store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	create.CreatedTs = time.Now().Unix()
	s.items[create.UID] = create
	return create, nil
}

func (s *fakeItemStore) ListItems(_ context.Context, find *store.FindItem) ([]*store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*store.Item, 0)
	for _, item := range s.items {
		if find.UID != nil && item.UID != *find.UID {
			continue
		}
		if find.Kind != nil && item.Kind != *find.Kind {
			continue
		}
		if find.Status != nil && item.Status != *find.Status {
			continue
		}
		if find.OrganizationType != nil && item.OrganizationType != *find.OrganizationType {
			continue
		}
		if find.CollegeID != nil && (item.CollegeID == nil || *item.CollegeID != *find.CollegeID) {
			continue
		}
		if find.SocietyID != nil && (item.SocietyID == nil || *item.SocietyID != *find.SocietyID) {
			continue
		}
		if find.PostedBy != nil && item.PostedBy != *find.PostedBy {
			continue
		}
		if find.ClaimedBy != nil && (item.ClaimedBy == nil || *item.ClaimedBy != *find.ClaimedBy) {
			continue
		}
		if find.QRToken != nil && (item.QRToken == nil || *item.QRToken != *find.QRToken) {
			continue
		}
		list = append(list, item)
	}
	if find.Limit != nil && len(list) > *find.Limit {
		list = list[:*find.Limit]
	}
	return list, nil
}

func (s *fakeItemStore) GetItem(ctx context.Context, find *store.FindItem) (*store.Item, error) {
	list, err := s.ListItems(ctx, find)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (s *fakeItemStore) UpdateItem(_ context.Context, update *store.UpdateItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.items[update.UID]
	if item == nil {
		return nil
	}
	if update.Status != nil {
		item.Status = *update.Status
	}
	if update.ClaimedBy != nil {
		item.ClaimedBy = update.ClaimedBy
	}
	if update.SetQR {
		item.QRToken = update.QRToken
		item.QRExpiresTs = update.QRExpiresTs
	}
	return nil
}

func (s *fakeItemStore) DeleteItem(_ context.Context, del *store.DeleteItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, del.UID)
	return nil
}

func (s *fakeItemStore) FindDuplicate(_ context.Context, find *store.FindDuplicateItem) (*store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	find.Normalize()
	for _, item := range s.items {
		if item.PostedBy != find.PostedBy || item.Status != store.ItemStatusOpen {
			continue
		}
		if strings.ToLower(strings.TrimSpace(item.Title)) != find.Title {
			continue
		}
		if strings.ToLower(strings.TrimSpace(item.Location)) != find.Location {
			continue
		}
		return item, nil
	}
	return nil, nil
}

type mockMatcher struct {
	mu       sync.Mutex
	ingested []string
	purged   []string
}

func (m *mockMatcher) EnqueueIngest(item *store.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested = append(m.ingested, item.UID)
}

func (m *mockMatcher) PurgeReferences(_ context.Context, itemUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = append(m.purged, itemUID)
}

func collegeCaller(userID string) *auth.CallerIdentity {
	collegeID := "college-1"
	return &auth.CallerIdentity{
		UserID:           userID,
		OrganizationType: store.OrganizationCollege,
		CollegeID:        &collegeID,
	}
}

func newTestService() (*Service, *fakeItemStore, *mockMatcher) {
	itemStore := newFakeItemStore()
	matcher := &mockMatcher{}
	return NewService(itemStore, matcher, nil), itemStore, matcher
}

func TestCreateSchedulesIngest(t *testing.T) {
	ctx := context.Background()
	svc, _, matcher := newTestService()

	created, err := svc.Create(ctx, collegeCaller("user-1"), &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Blue backpack",
		Location: "Library",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.UID)
	assert.Equal(t, store.ItemStatusOpen, created.Status)
	assert.Equal(t, "user-1", created.PostedBy)
	assert.Equal(t, []string{created.UID}, matcher.ingested)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	caller := collegeCaller("user-1")

	tests := []struct {
		name string
		req  *CreateItemRequest
	}{
		{"bad kind", &CreateItemRequest{Kind: "stolen", Title: "x", Location: "y"}},
		{"missing title", &CreateItemRequest{Kind: store.ItemKindLost, Location: "y"}},
		{"missing location", &CreateItemRequest{Kind: store.ItemKindLost, Title: "x"}},
		{"found without contact", &CreateItemRequest{Kind: store.ItemKindFound, Title: "x", Location: "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, caller, tt.req)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
		})
	}
}

func TestCreateDuplicateGuard(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	caller := collegeCaller("user-1")

	_, err := svc.Create(ctx, caller, &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Blue backpack",
		Location: "Library",
	})
	require.NoError(t, err)

	// Same title and location modulo case and whitespace.
	_, err = svc.Create(ctx, caller, &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "  blue BACKPACK ",
		Location: "LIBRARY",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDuplicateItem))

	// A different user posting the same thing is fine.
	_, err = svc.Create(ctx, collegeCaller("user-2"), &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Blue backpack",
		Location: "Library",
	})
	assert.NoError(t, err)
}

func TestCreateAfterClaimNotDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, itemStore, _ := newTestService()
	caller := collegeCaller("user-1")

	created, err := svc.Create(ctx, caller, &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Blue backpack",
		Location: "Library",
	})
	require.NoError(t, err)

	// Once the first report leaves the open pool, an identical repost is a
	// new report, not a duplicate.
	itemStore.items[created.UID].Status = store.ItemStatusClaimed

	_, err = svc.Create(ctx, caller, &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Blue backpack",
		Location: "Library",
	})
	assert.NoError(t, err)
}

func TestListScopedToOrganization(t *testing.T) {
	ctx := context.Background()
	svc, itemStore, _ := newTestService()

	_, err := svc.Create(ctx, collegeCaller("user-1"), &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Blue backpack",
		Location: "Library",
	})
	require.NoError(t, err)

	otherCollege := "college-2"
	itemStore.items["foreign"] = &store.Item{
		UID:              "foreign",
		Kind:             store.ItemKindLost,
		Status:           store.ItemStatusOpen,
		OrganizationType: store.OrganizationCollege,
		CollegeID:        &otherCollege,
		PostedBy:         "user-9",
	}

	items, err := svc.List(ctx, collegeCaller("user-1"), nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotEqual(t, "foreign", items[0].UID)
}

func TestQRClaimFlow(t *testing.T) {
	ctx := context.Background()
	svc, itemStore, matcher := newTestService()
	poster := collegeCaller("poster")
	claimer := collegeCaller("claimer")

	created, err := svc.Create(ctx, poster, &CreateItemRequest{
		Kind:           store.ItemKindFound,
		Title:          "Student ID card",
		Location:       "Cafeteria",
		FounderContact: "poster@example.edu",
	})
	require.NoError(t, err)

	grant, err := svc.GenerateQR(ctx, poster, created.UID)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)
	assert.Greater(t, grant.ExpiresTs, time.Now().Unix())

	preview, err := svc.VerifyQR(ctx, claimer, grant.Token)
	require.NoError(t, err)
	assert.Equal(t, created.UID, preview.UID)

	claimed, err := svc.Claim(ctx, claimer, grant.Token)
	require.NoError(t, err)
	assert.Equal(t, store.ItemStatusClaimed, claimed.Status)
	require.NotNil(t, claimed.ClaimedBy)
	assert.Equal(t, "claimer", *claimed.ClaimedBy)
	assert.Nil(t, claimed.QRToken)
	assert.Equal(t, []string{created.UID}, matcher.purged)

	// Token is consumed.
	_, err = svc.Claim(ctx, claimer, grant.Token)
	assert.Error(t, err)

	stored := itemStore.items[created.UID]
	assert.Equal(t, store.ItemStatusClaimed, stored.Status)

	mine, err := svc.ListClaimed(ctx, claimer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, created.UID, mine[0].UID)
}

func TestGenerateQRPermissions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	poster := collegeCaller("poster")

	created, err := svc.Create(ctx, poster, &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Umbrella",
		Location: "Gym",
	})
	require.NoError(t, err)

	_, err = svc.GenerateQR(ctx, collegeCaller("stranger"), created.UID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePermissionDenied))
}

func TestClaimRejectsSelfClaim(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	poster := collegeCaller("poster")

	created, err := svc.Create(ctx, poster, &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Umbrella",
		Location: "Gym",
	})
	require.NoError(t, err)

	grant, err := svc.GenerateQR(ctx, poster, created.UID)
	require.NoError(t, err)

	_, err = svc.Claim(ctx, poster, grant.Token)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePermissionDenied))
}

func TestClaimExpiredToken(t *testing.T) {
	ctx := context.Background()
	svc, itemStore, _ := newTestService()
	poster := collegeCaller("poster")

	created, err := svc.Create(ctx, poster, &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Umbrella",
		Location: "Gym",
	})
	require.NoError(t, err)

	grant, err := svc.GenerateQR(ctx, poster, created.UID)
	require.NoError(t, err)

	expired := time.Now().Add(-time.Minute).Unix()
	itemStore.items[created.UID].QRExpiresTs = &expired

	_, err = svc.Claim(ctx, collegeCaller("claimer"), grant.Token)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeQRExpired))
}

func TestClaimUnknownToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	_, err := svc.Claim(ctx, collegeCaller("claimer"), "no-such-token")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeQRInvalid))
}

func TestClaimCrossScopeToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	poster := collegeCaller("poster")

	created, err := svc.Create(ctx, poster, &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Umbrella",
		Location: "Gym",
	})
	require.NoError(t, err)

	grant, err := svc.GenerateQR(ctx, poster, created.UID)
	require.NoError(t, err)

	outsider := collegeCaller("outsider")
	otherCollege := "college-2"
	outsider.CollegeID = &otherCollege

	_, err = svc.Claim(ctx, outsider, grant.Token)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeQRInvalid))
}

func TestDeletePurgesReferences(t *testing.T) {
	ctx := context.Background()
	svc, itemStore, matcher := newTestService()
	poster := collegeCaller("poster")

	created, err := svc.Create(ctx, poster, &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Umbrella",
		Location: "Gym",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, poster, created.UID))
	assert.Empty(t, itemStore.items)
	assert.Equal(t, []string{created.UID}, matcher.purged)

	// Already gone.
	err = svc.Delete(ctx, poster, created.UID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestDeleteForeignItemDenied(t *testing.T) {
	ctx := context.Background()
	svc, _, matcher := newTestService()
	poster := collegeCaller("poster")

	created, err := svc.Create(ctx, poster, &CreateItemRequest{
		Kind:     store.ItemKindLost,
		Title:    "Umbrella",
		Location: "Gym",
	})
	require.NoError(t, err)

	err = svc.Delete(ctx, collegeCaller("stranger"), created.UID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePermissionDenied))
	assert.Empty(t, matcher.purged)
}
