package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/refound-dev/refound/store"
)

func (d *DB) CreateItem(ctx context.Context, create *store.Item) (*store.Item, error) {
	matchJSON, err := marshalMatchCandidates(create.MatchCandidates)
	if err != nil {
		return nil, err
	}

	fields := []string{
		"uid", "kind", "status", "category", "title", "description", "location",
		"organization_type", "college_id", "society_id",
		"posted_by", "founder_contact", "image_path", "thumbnail_path",
		"embedding", "match_candidates",
	}
	args := []any{
		create.UID, create.Kind, create.Status, create.Category, create.Title, create.Description, create.Location,
		create.OrganizationType, create.CollegeID, create.SocietyID,
		create.PostedBy, create.FounderContact, create.ImagePath, create.ThumbnailPath,
		embeddingValue(create.Embedding), matchJSON,
	}

	stmt := `INSERT INTO item (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id, created_ts, updated_ts`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&create.ID,
		&create.CreatedTs,
		&create.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create item")
	}
	return create, nil
}

func (d *DB) ListItems(ctx context.Context, find *store.FindItem) ([]*store.Item, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "item.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "item.uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Kind; v != nil {
		where, args = append(where, "item.kind = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Status; v != nil {
		where, args = append(where, "item.status = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.OrganizationType; v != nil {
		where, args = append(where, "item.organization_type = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.CollegeID; v != nil {
		where, args = append(where, "item.college_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.SocietyID; v != nil {
		where, args = append(where, "item.society_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.PostedBy; v != nil {
		where, args = append(where, "item.posted_by = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.ClaimedBy; v != nil {
		where, args = append(where, "item.claimed_by = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.QRToken; v != nil {
		where, args = append(where, "item.qr_token = "+placeholder(len(args)+1)), append(args, *v)
	}
	if find.MissingEmbedding {
		where = append(where, "item.image_path IS NOT NULL", "item.embedding IS NULL")
	}

	query := `
		SELECT
			id, uid, created_ts, updated_ts,
			kind, status, category, title, description, location,
			organization_type, college_id, society_id,
			posted_by, claimed_by, founder_contact,
			image_path, thumbnail_path, qr_token, qr_expires_ts,
			embedding::text, match_candidates::text
		FROM item
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY item.created_ts DESC, item.id DESC`

	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
		if find.Offset != nil {
			query += " OFFSET " + placeholder(len(args)+1)
			args = append(args, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query items")
	}
	defer rows.Close()

	list := make([]*store.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate items")
	}
	return list, nil
}

func (d *DB) UpdateItem(ctx context.Context, update *store.UpdateItem) error {
	set, args := []string{"updated_ts = EXTRACT(EPOCH FROM NOW())"}, []any{}

	if v := update.Status; v != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.ClaimedBy; v != nil {
		set, args = append(set, "claimed_by = "+placeholder(len(args)+1)), append(args, *v)
	}
	if update.SetQR {
		set, args = append(set, "qr_token = "+placeholder(len(args)+1)), append(args, update.QRToken)
		set, args = append(set, "qr_expires_ts = "+placeholder(len(args)+1)), append(args, update.QRExpiresTs)
	}

	args = append(args, update.UID)
	stmt := `UPDATE item SET ` + strings.Join(set, ", ") + ` WHERE uid = ` + placeholder(len(args))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to update item")
	}
	return nil
}

func (d *DB) DeleteItem(ctx context.Context, delete *store.DeleteItem) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM item WHERE uid = $1`, delete.UID)
	if err != nil {
		return errors.Wrap(err, "failed to delete item")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.New("item not found")
	}
	return nil
}

func (d *DB) UpdateItemEmbedding(ctx context.Context, uid string, embedding []float32) error {
	stmt := `UPDATE item SET embedding = $1, updated_ts = EXTRACT(EPOCH FROM NOW()) WHERE uid = $2`
	if _, err := d.db.ExecContext(ctx, stmt, embeddingValue(embedding), uid); err != nil {
		return errors.Wrap(err, "failed to update item embedding")
	}
	return nil
}

func (d *DB) AddMatchCandidate(ctx context.Context, itemUID string, candidate *store.MatchCandidate) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var matchJSON string
	if err := tx.QueryRowContext(ctx,
		`SELECT match_candidates::text FROM item WHERE uid = $1 FOR UPDATE`, itemUID,
	).Scan(&matchJSON); err != nil {
		if err == sql.ErrNoRows {
			return errors.Errorf("item not found: %s", itemUID)
		}
		return errors.Wrap(err, "failed to read match candidates")
	}

	candidates, err := unmarshalMatchCandidates(matchJSON)
	if err != nil {
		return err
	}
	for _, existing := range candidates {
		if existing.CandidateUID == candidate.CandidateUID {
			// Re-insertion of an existing pair is a no-op.
			return nil
		}
	}

	candidates = append(candidates, *candidate)
	updated, err := marshalMatchCandidates(candidates)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE item SET match_candidates = $1::jsonb, updated_ts = EXTRACT(EPOCH FROM NOW()) WHERE uid = $2`,
		updated, itemUID,
	); err != nil {
		return errors.Wrap(err, "failed to write match candidates")
	}
	return tx.Commit()
}

func (d *DB) PullMatchReference(ctx context.Context, candidateUID string) error {
	stmt := `
		UPDATE item
		SET match_candidates = COALESCE(
				(SELECT jsonb_agg(elem)
					FROM jsonb_array_elements(match_candidates) AS elem
					WHERE elem->>'candidate_uid' <> $1),
				'[]'::jsonb),
			updated_ts = EXTRACT(EPOCH FROM NOW())
		WHERE match_candidates @> jsonb_build_array(jsonb_build_object('candidate_uid', $1::text))`

	if _, err := d.db.ExecContext(ctx, stmt, candidateUID); err != nil {
		return errors.Wrap(err, "failed to pull match reference")
	}
	return nil
}

func (d *DB) FindDuplicateItem(ctx context.Context, find *store.FindDuplicateItem) (*store.Item, error) {
	query := `
		SELECT
			id, uid, created_ts, updated_ts,
			kind, status, category, title, description, location,
			organization_type, college_id, society_id,
			posted_by, claimed_by, founder_contact,
			image_path, thumbnail_path, qr_token, qr_expires_ts,
			embedding::text, match_candidates::text
		FROM item
		WHERE posted_by = $1
			AND status = 'open'
			AND LOWER(TRIM(title)) = $2
			AND LOWER(TRIM(location)) = $3
		LIMIT 1`

	rows, err := d.db.QueryContext(ctx, query, find.PostedBy, find.Title, find.Location)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query duplicate item")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanItem(rows)
}

func scanItem(rows *sql.Rows) (*store.Item, error) {
	var item store.Item
	var collegeID, societyID, claimedBy, imagePath, thumbnailPath, qrToken sql.NullString
	var qrExpiresTs sql.NullInt64
	// pgvector's text representation "[1,2,3]" is also valid JSON, so the
	// embedding is selected as text and decoded with the same codepath as
	// the SQLite driver.
	var embeddingText sql.NullString
	var matchJSON string

	if err := rows.Scan(
		&item.ID,
		&item.UID,
		&item.CreatedTs,
		&item.UpdatedTs,
		&item.Kind,
		&item.Status,
		&item.Category,
		&item.Title,
		&item.Description,
		&item.Location,
		&item.OrganizationType,
		&collegeID,
		&societyID,
		&item.PostedBy,
		&claimedBy,
		&item.FounderContact,
		&imagePath,
		&thumbnailPath,
		&qrToken,
		&qrExpiresTs,
		&embeddingText,
		&matchJSON,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan item")
	}

	if collegeID.Valid {
		item.CollegeID = &collegeID.String
	}
	if societyID.Valid {
		item.SocietyID = &societyID.String
	}
	if claimedBy.Valid {
		item.ClaimedBy = &claimedBy.String
	}
	if imagePath.Valid {
		item.ImagePath = &imagePath.String
	}
	if thumbnailPath.Valid {
		item.ThumbnailPath = &thumbnailPath.String
	}
	if qrToken.Valid {
		item.QRToken = &qrToken.String
	}
	if qrExpiresTs.Valid {
		item.QRExpiresTs = &qrExpiresTs.Int64
	}
	if embeddingText.Valid && embeddingText.String != "" {
		if err := json.Unmarshal([]byte(embeddingText.String), &item.Embedding); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal embedding")
		}
	}
	candidates, err := unmarshalMatchCandidates(matchJSON)
	if err != nil {
		return nil, err
	}
	item.MatchCandidates = candidates

	return &item, nil
}

// embeddingValue converts an embedding slice to a pgvector value, or NULL
// when the embedding has not been computed.
func embeddingValue(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func marshalMatchCandidates(candidates []store.MatchCandidate) (string, error) {
	if candidates == nil {
		candidates = []store.MatchCandidate{}
	}
	bytes, err := json.Marshal(candidates)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal match candidates")
	}
	return string(bytes), nil
}

func unmarshalMatchCandidates(matchJSON string) ([]store.MatchCandidate, error) {
	if matchJSON == "" {
		return []store.MatchCandidate{}, nil
	}
	var candidates []store.MatchCandidate
	if err := json.Unmarshal([]byte(matchJSON), &candidates); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal match candidates")
	}
	return candidates, nil
}
