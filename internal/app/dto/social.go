package dto

import (
	"time"

	domainmessages "carshare/internal/domain/messages"
	domainreviews "carshare/internal/domain/reviews"
	domainuser "carshare/internal/domain/user"
)

type Review struct {
	ID        string    `json:"id"`
	BookingID string    `json:"bookingId"`
	VehicleID string    `json:"vehicleId"`
	AuthorID  string    `json:"authorId"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type ReviewCollection struct {
	Items []Review `json:"items"`
}

func MapReview(r *domainreviews.Review) Review {
	return Review{
		ID:        string(r.ID),
		BookingID: string(r.BookingID),
		VehicleID: string(r.VehicleID),
		AuthorID:  r.AuthorID,
		Rating:    r.Rating,
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
	}
}

type Message struct {
	ID          string    `json:"id"`
	BookingID   string    `json:"bookingId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sentAt"`
}

type MessageCollection struct {
	Items []Message `json:"items"`
}

func MapMessage(m *domainmessages.Message) Message {
	return Message{
		ID:          string(m.ID),
		BookingID:   string(m.BookingID),
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Body:        m.Body,
		SentAt:      m.SentAt,
	}
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

func MapUser(u *domainuser.User) User {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}
	return User{
		ID:        string(u.ID),
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Roles:     roles,
		CreatedAt: u.CreatedAt,
	}
}
