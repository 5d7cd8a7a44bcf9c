package database

import (
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) GetAccountById(id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetDisplayName(userId int) (string, error) {
	args := m.Called(userId)
	return args.String(0), args.Error(1)
}
func (m *MockRepository) GetGroup(id int) (Group, error) {
	args := m.Called(id)
	return args.Get(0).(Group), args.Error(1)
}
func (m *MockRepository) GetEvent(id int) (Event, error) {
	args := m.Called(id)
	return args.Get(0).(Event), args.Error(1)
}
func (m *MockRepository) IsGroupMember(userId, groupId int) (bool, error) {
	args := m.Called(userId, groupId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) IsEventParticipant(userId, eventId int, status string) (bool, error) {
	args := m.Called(userId, eventId, status)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) CreateParticipation(userId, eventId int, status string) (Participation, error) {
	args := m.Called(userId, eventId, status)
	return args.Get(0).(Participation), args.Error(1)
}
func (m *MockRepository) DeleteParticipation(userId, eventId int) error {
	args := m.Called(userId, eventId)
	return args.Error(0)
}
func (m *MockRepository) ListParticipations(eventId int) ([]Participation, error) {
	args := m.Called(eventId)
	return args.Get(0).([]Participation), args.Error(1)
}
func (m *MockRepository) CountAttending(eventId int) (int, error) {
	args := m.Called(eventId)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) ListMessages(groupId, eventId, limit int) ([]Message, error) {
	args := m.Called(groupId, eventId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) CreatePost(params CreatePostParams) (Post, error) {
	args := m.Called(params)
	return args.Get(0).(Post), args.Error(1)
}
func (m *MockRepository) ListPosts(groupId, eventId int) ([]Post, error) {
	args := m.Called(groupId, eventId)
	return args.Get(0).([]Post), args.Error(1)
}
