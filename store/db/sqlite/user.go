package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/refound-dev/refound/store"
)

func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	fields := []string{"uid", "name", "email", "organization_type", "college_id", "society_id"}
	args := []any{create.UID, create.Name, create.Email, create.OrganizationType, create.CollegeID, create.SocietyID}

	stmt := `INSERT INTO user (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id, created_ts`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&create.ID,
		&create.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create user")
	}
	return create, nil
}

func (d *DB) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "user.id = ?"), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "user.uid = ?"), append(args, *v)
	}
	if v := find.Email; v != nil {
		where, args = append(where, "user.email = ?"), append(args, *v)
	}

	query := `
		SELECT id, uid, created_ts, name, email, organization_type, college_id, society_id
		FROM user
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY user.id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query users")
	}
	defer rows.Close()

	list := make([]*store.User, 0)
	for rows.Next() {
		var user store.User
		var collegeID, societyID sql.NullString
		if err := rows.Scan(
			&user.ID,
			&user.UID,
			&user.CreatedTs,
			&user.Name,
			&user.Email,
			&user.OrganizationType,
			&collegeID,
			&societyID,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		if collegeID.Valid {
			user.CollegeID = &collegeID.String
		}
		if societyID.Valid {
			user.SocietyID = &societyID.String
		}
		list = append(list, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate users")
	}
	return list, nil
}
