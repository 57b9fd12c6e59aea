package store

import "context"

// User is a minimal account record. Authentication happens in the external
// login service; this table only backs poster attribution on listings.
type User struct {
	ID  int32
	UID string

	CreatedTs int64

	Name  string
	Email string

	OrganizationType OrganizationType
	CollegeID        *string
	SocietyID        *string
}

// FindUser is the find condition for users.
type FindUser struct {
	ID    *int32
	UID   *string
	Email *string
}

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	user, err := s.driver.CreateUser(ctx, create)
	if err != nil {
		return nil, err
	}
	s.userCache.Set(user.UID, user)
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*User, error) {
	return s.driver.ListUsers(ctx, find)
}

// GetUserByUID returns the user with the given UID, or nil when absent.
func (s *Store) GetUserByUID(ctx context.Context, uid string) (*User, error) {
	if cached, ok := s.userCache.Get(uid); ok {
		if user, ok := cached.(*User); ok {
			return user, nil
		}
	}

	list, err := s.driver.ListUsers(ctx, &FindUser{UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	s.userCache.Set(uid, list[0])
	return list[0], nil
}
