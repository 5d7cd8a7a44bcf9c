package types

import (
	"github.com/gatherly/gatherly/internal/database"
)

// Explicit builders from storage entities to wire payloads. Payload shape is
// decided here, not by introspecting the entity.

func NewMessagePayload(m database.Message, username string) *MessagePayload {
	return &MessagePayload{
		Id:        m.Id,
		Content:   m.Content,
		UserId:    m.UserId,
		Username:  username,
		GroupId:   m.GroupId,
		EventId:   m.EventId,
		CreatedAt: m.CreatedAt,
	}
}

func NewPostPayload(p database.Post, username string) *PostPayload {
	return &PostPayload{
		Id:        p.Id,
		Content:   p.Content,
		UserId:    p.UserId,
		Username:  username,
		GroupId:   p.GroupId,
		EventId:   p.EventId,
		CreatedAt: p.CreatedAt,
	}
}

func NewParticipationPayload(p database.Participation) Participation {
	return Participation{
		Id:        p.Id,
		UserId:    p.UserId,
		EventId:   p.EventId,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
}

func NewEventPayload(e database.Event) Event {
	return Event{
		Id:        e.Id,
		GroupId:   e.GroupId,
		Name:      e.Name,
		Location:  e.Location,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Capacity:  e.Capacity,
	}
}
