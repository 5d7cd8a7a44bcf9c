package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

func (db *PgRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, email, password_hash, created_at, updated_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, email, password_hash, created_at, updated_at FROM users "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

// GetDisplayName resolves the user's profile username, falling back to the
// account email when no profile or username is set.
func (db *PgRepository) GetDisplayName(userId int) (string, error) {
	row := db.conn.QueryRow(
		"SELECT u.email, p.username FROM users u "+
			"LEFT JOIN profiles p ON p.user_id = u.id WHERE u.id = $1 LIMIT 1",
		userId,
	)

	var email string
	var username sql.NullString
	if err := row.Scan(&email, &username); err != nil {
		return "", err
	}

	if username.Valid && username.String != "" {
		return username.String, nil
	}

	return email, nil
}

func (db *PgRepository) GetGroup(id int) (Group, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, COALESCE(description, ''), privacy, COALESCE(member_limit, 0), admin_id, created_at, updated_at "+
			"FROM groups WHERE id = $1 LIMIT 1",
		id,
	)

	var g Group
	err := row.Scan(
		&g.Id,
		&g.Name,
		&g.Description,
		&g.Privacy,
		&g.MemberLimit,
		&g.AdminId,
		&g.CreatedAt,
		&g.UpdatedAt,
	)

	return g, err
}

func (db *PgRepository) GetEvent(id int) (Event, error) {
	row := db.conn.QueryRow(
		"SELECT id, group_id, name, COALESCE(description, ''), COALESCE(location, ''), start_time, end_time, capacity, organizer_id, created_at, updated_at "+
			"FROM events WHERE id = $1 LIMIT 1",
		id,
	)

	var e Event
	err := row.Scan(
		&e.Id,
		&e.GroupId,
		&e.Name,
		&e.Description,
		&e.Location,
		&e.StartTime,
		&e.EndTime,
		&e.Capacity,
		&e.OrganizerId,
		&e.CreatedAt,
		&e.UpdatedAt,
	)

	return e, err
}

func (db *PgRepository) IsGroupMember(userId, groupId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT 1 FROM group_memberships WHERE user_id = $1 AND group_id = $2 LIMIT 1",
		userId,
		groupId,
	)

	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	return err == nil, err
}

func (db *PgRepository) IsEventParticipant(userId, eventId int, status string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT 1 FROM event_participations WHERE user_id = $1 AND event_id = $2 AND status = $3 LIMIT 1",
		userId,
		eventId,
		status,
	)

	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	return err == nil, err
}

// CreateParticipation joins a user to an event. The capacity check and the
// insert run in a single transaction with the event row locked, so two
// concurrent joiners cannot both take the last slot.
func (db *PgRepository) CreateParticipation(userId, eventId int, status string) (Participation, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Participation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var capacity int
	err = tx.QueryRow("SELECT capacity FROM events WHERE id = $1 FOR UPDATE", eventId).Scan(&capacity)
	if err != nil {
		return Participation{}, err
	}

	if status == StatusAttending {
		var attending int
		err = tx.QueryRow(
			"SELECT COUNT(*) FROM event_participations WHERE event_id = $1 AND status = $2",
			eventId,
			StatusAttending,
		).Scan(&attending)
		if err != nil {
			return Participation{}, err
		}

		if attending >= capacity {
			err = ErrEventAtCapacity
			return Participation{}, err
		}
	}

	var p Participation
	err = tx.QueryRow(
		"INSERT INTO event_participations (user_id, event_id, status, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, user_id, event_id, status, created_at",
		userId,
		eventId,
		status,
		time.Now().UTC(),
	).Scan(&p.Id, &p.UserId, &p.EventId, &p.Status, &p.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			err = ErrAlreadyJoined
		}
		return Participation{}, err
	}

	if err = tx.Commit(); err != nil {
		return Participation{}, err
	}

	return p, nil
}

// DeleteParticipation removes the user's participation in an event. Absence is
// an error so callers can distinguish "nothing to remove".
func (db *PgRepository) DeleteParticipation(userId, eventId int) error {
	res, err := db.conn.Exec(
		"DELETE FROM event_participations WHERE user_id = $1 AND event_id = $2",
		userId,
		eventId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgRepository) ListParticipations(eventId int) ([]Participation, error) {
	rows, err := db.conn.Query(
		"SELECT id, user_id, event_id, status, created_at FROM event_participations "+
			"WHERE event_id = $1 ORDER BY created_at ASC",
		eventId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participations = make([]Participation, 0)
	for rows.Next() {
		var p Participation
		if err = rows.Scan(&p.Id, &p.UserId, &p.EventId, &p.Status, &p.CreatedAt); err != nil {
			break
		}

		participations = append(participations, p)
	}

	return participations, err
}

func (db *PgRepository) CountAttending(eventId int) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM event_participations WHERE event_id = $1 AND status = $2",
		eventId,
		StatusAttending,
	).Scan(&count)

	return count, err
}

func (db *PgRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRow(
		"INSERT INTO messages (group_id, event_id, user_id, content, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, group_id, event_id, user_id, content, created_at",
		params.GroupId,
		params.EventId,
		params.UserId,
		params.Content,
		time.Now().UTC(),
	)

	var m Message
	err := row.Scan(&m.Id, &m.GroupId, &m.EventId, &m.UserId, &m.Content, &m.CreatedAt)

	return m, err
}

// ListMessages returns messages for a topic in chronological order, ties
// broken by id. Usernames come from profiles with the email fallback.
func (db *PgRepository) ListMessages(groupId, eventId, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.group_id, m.event_id, m.user_id, COALESCE(NULLIF(p.username, ''), u.email), m.content, m.created_at "+
			"FROM messages m "+
			"JOIN users u ON u.id = m.user_id "+
			"LEFT JOIN profiles p ON p.user_id = m.user_id "+
			"WHERE m.group_id = $1 AND m.event_id = $2 "+
			"ORDER BY m.created_at ASC, m.id ASC LIMIT $3",
		groupId,
		eventId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err = rows.Scan(&m.Id, &m.GroupId, &m.EventId, &m.UserId, &m.Username, &m.Content, &m.CreatedAt); err != nil {
			break
		}

		messages = append(messages, m)
	}

	return messages, err
}

func (db *PgRepository) CreatePost(params CreatePostParams) (Post, error) {
	row := db.conn.QueryRow(
		"INSERT INTO posts (group_id, event_id, user_id, content, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, group_id, event_id, user_id, content, created_at, updated_at",
		params.GroupId,
		params.EventId,
		params.UserId,
		params.Content,
		time.Now().UTC(),
	)

	var p Post
	err := row.Scan(&p.Id, &p.GroupId, &p.EventId, &p.UserId, &p.Content, &p.CreatedAt, &p.UpdatedAt)

	return p, err
}

func (db *PgRepository) ListPosts(groupId, eventId int) ([]Post, error) {
	rows, err := db.conn.Query(
		"SELECT po.id, po.group_id, po.event_id, po.user_id, COALESCE(NULLIF(p.username, ''), u.email), po.content, po.created_at, po.updated_at "+
			"FROM posts po "+
			"JOIN users u ON u.id = po.user_id "+
			"LEFT JOIN profiles p ON p.user_id = po.user_id "+
			"WHERE po.group_id = $1 AND po.event_id = $2 "+
			"ORDER BY po.created_at DESC, po.id DESC",
		groupId,
		eventId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts = make([]Post, 0)
	for rows.Next() {
		var p Post
		if err = rows.Scan(&p.Id, &p.GroupId, &p.EventId, &p.UserId, &p.Username, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			break
		}

		posts = append(posts, p)
	}

	return posts, err
}
