package storage

import (
	"github.com/Masterminds/squirrel"

	"github.com/audiolibrelab/micmagic/internal/auth"
	"github.com/audiolibrelab/micmagic/internal/memo"
)

const (
	recordingsTable = "recordings"
	usersTable      = "users"
)

var (
	recordingColumns = []string{"id", "owner_id", "name", "audio_ref", "duration", "created_date", "created_time"}
	userColumns      = []string{"id", "email", "password_hash", "username", "notifications", "image_uri", "created_at", "updated_at"}
)

// scanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// queries builds the SQL shared by both drivers. Drivers differ only in
// placeholder format and in how timestamps are stored.
type queries struct {
	sb squirrel.StatementBuilderType
	ts func(t any) any
}

func newQueries(format squirrel.PlaceholderFormat, ts func(any) any) queries {
	if ts == nil {
		ts = func(v any) any { return v }
	}
	return queries{sb: squirrel.StatementBuilder.PlaceholderFormat(format), ts: ts}
}

func (q queries) insertRecording(id, ownerID string, f memo.Fields, createdAt any) squirrel.InsertBuilder {
	return q.sb.Insert(recordingsTable).
		Columns(append(recordingColumns, "created_at")...).
		Values(id, ownerID, f.Name, f.AudioRef, f.DurationLabel, f.CreatedDate, f.CreatedTime, q.ts(createdAt))
}

func (q queries) updateRecording(id string, f memo.Fields) squirrel.UpdateBuilder {
	return q.sb.Update(recordingsTable).
		SetMap(map[string]any{
			"name":         f.Name,
			"audio_ref":    f.AudioRef,
			"duration":     f.DurationLabel,
			"created_date": f.CreatedDate,
			"created_time": f.CreatedTime,
		}).
		Where(squirrel.Eq{"id": id})
}

func (q queries) deleteRecording(id string) squirrel.DeleteBuilder {
	return q.sb.Delete(recordingsTable).Where(squirrel.Eq{"id": id})
}

func (q queries) listRecordings(ownerID string) squirrel.SelectBuilder {
	return q.sb.Select(recordingColumns...).
		From(recordingsTable).
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("created_at ASC", "id ASC")
}

func scanRecord(row scanner) (memo.Record, error) {
	var r memo.Record
	err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &r.AudioRef, &r.DurationLabel, &r.CreatedDate, &r.CreatedTime)
	return r, err
}

func (q queries) insertUser(u auth.User) squirrel.InsertBuilder {
	return q.sb.Insert(usersTable).
		Columns(userColumns...).
		Values(u.ID, u.Email, u.PasswordHash, u.Username, u.Notifications, u.ImageURI, q.ts(u.CreatedAt), q.ts(u.UpdatedAt))
}

func (q queries) selectUser(where squirrel.Eq) squirrel.SelectBuilder {
	return q.sb.Select(userColumns...).From(usersTable).Where(where).Limit(1)
}

func (q queries) updateProfile(id string, p auth.Profile, updatedAt any) squirrel.UpdateBuilder {
	return q.sb.Update(usersTable).
		Set("username", p.Username).
		Set("notifications", p.Notifications).
		Set("image_uri", p.ImageURI).
		Set("updated_at", q.ts(updatedAt)).
		Where(squirrel.Eq{"id": id})
}
