package database

import "time"

const (
	StatusAttending  = "attending"
	StatusWaitlisted = "waitlisted"
)

// ValidStatus reports whether s is an accepted participation status.
func ValidStatus(s string) bool {
	return s == StatusAttending || s == StatusWaitlisted
}

type User struct {
	Id           int
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Group struct {
	Id          int
	Name        string
	Description string
	Privacy     string
	MemberLimit int
	AdminId     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Event struct {
	Id          int
	GroupId     int
	Name        string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	Capacity    int
	OrganizerId int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Participation struct {
	Id        int
	UserId    int
	EventId   int
	Status    string
	CreatedAt time.Time
}

type Message struct {
	Id        int
	GroupId   int
	EventId   int
	UserId    int
	Username  string
	Content   string
	CreatedAt time.Time
}

type Post struct {
	Id        int
	GroupId   int
	EventId   int
	UserId    int
	Username  string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateMessageParams struct {
	GroupId int
	EventId int
	UserId  int
	Content string
}

type CreatePostParams struct {
	GroupId int
	EventId int
	UserId  int
	Content string
}
