package database

// Repository is the narrow surface the core consumes: a directory service for
// users, groups and events, read-only membership/participation facts, and the
// message/participation store.
type Repository interface {
	Ping() error
	GetAccountById(id int) (User, error)
	GetAccountByEmail(email string) (User, error)
	GetDisplayName(userId int) (string, error)
	GetGroup(id int) (Group, error)
	GetEvent(id int) (Event, error)
	IsGroupMember(userId, groupId int) (bool, error)
	IsEventParticipant(userId, eventId int, status string) (bool, error)
	CreateParticipation(userId, eventId int, status string) (Participation, error)
	DeleteParticipation(userId, eventId int) error
	ListParticipations(eventId int) ([]Participation, error)
	CountAttending(eventId int) (int, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	ListMessages(groupId, eventId, limit int) ([]Message, error)
	CreatePost(params CreatePostParams) (Post, error)
	ListPosts(groupId, eventId int) ([]Post, error)
}
