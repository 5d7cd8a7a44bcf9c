package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username,omitempty"`
	EmailAddress string    `json:"email_address,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Group struct {
	Id          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Privacy     string `json:"privacy"`
}

type Event struct {
	Id        int       `json:"id"`
	GroupId   int       `json:"group_id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Capacity  int       `json:"capacity"`
}

type Participation struct {
	Id        int       `json:"id"`
	UserId    int       `json:"user_id"`
	EventId   int       `json:"event_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// MessagePayload is the broadcast and API shape of a chat message. Username is
// resolved from the author's profile at publish time, never stored.
type MessagePayload struct {
	Id        int       `json:"id"`
	Content   string    `json:"content"`
	UserId    int       `json:"user_id"`
	Username  string    `json:"username"`
	GroupId   int       `json:"group_id"`
	EventId   int       `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

type PostPayload struct {
	Id        int       `json:"id"`
	Content   string    `json:"content"`
	UserId    int       `json:"user_id"`
	Username  string    `json:"username"`
	GroupId   int       `json:"group_id"`
	EventId   int       `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}
