package notify

import (
	"fmt"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Notice kinds.
const (
	KindIssued  = "issued"
	KindOverdue = "overdue"
)

// Message is the rendering of a notice that leaves the process.
type Message struct {
	Kind      string     `json:"kind"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	ItemTitle string     `json:"item_title"`
	Issuer    string     `json:"issuer,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Text      string     `json:"text"`
	SentAt    time.Time  `json:"sent_at"`
}

// IssuedMessage renders an IssueNotice.
func IssuedMessage(notice circulation.IssueNotice, sentAt time.Time) Message {
	return Message{
		Kind:      KindIssued,
		Name:      notice.Recipient.Name,
		Email:     notice.Recipient.Email,
		Phone:     notice.Recipient.Phone,
		ItemTitle: notice.ItemTitle,
		Issuer:    notice.IssuerName,
		Text:      fmt.Sprintf("Dear %s, %q has been issued to you by %s.", notice.Recipient.Name, notice.ItemTitle, notice.IssuerName),
		SentAt:    sentAt,
	}
}

// OverdueMessage renders an OverdueNotice.
func OverdueMessage(notice circulation.OverdueNotice, sentAt time.Time) Message {
	dueDate := notice.DueDate

	return Message{
		Kind:      KindOverdue,
		Name:      notice.Recipient.Name,
		Email:     notice.Recipient.Email,
		Phone:     notice.Recipient.Phone,
		ItemTitle: notice.ItemTitle,
		DueDate:   &dueDate,
		Text: fmt.Sprintf("Dear %s, %q was due on %s. Please return it.",
			notice.Recipient.Name, notice.ItemTitle, dueDate.Format(time.DateOnly)),
		SentAt: sentAt,
	}
}
