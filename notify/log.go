package notify

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	logMsgIssueNotice   = "issue notice"
	logMsgOverdueNotice = "overdue notice"
	logAttrRecipient    = "recipient"
	logAttrEmail        = "email"
	logAttrItemTitle    = "item_title"
	logAttrIssuer       = "issuer"
	logAttrDueDate      = "due_date"
)

var ErrNilLogger = errors.New("logger must not be nil")

// LogNotifier writes notices to a logger at info level. It never fails.
type LogNotifier struct {
	logger circulation.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger circulation.Logger) (*LogNotifier, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &LogNotifier{logger: logger}, nil
}

// NotifyIssued implements circulation.Notifier.
func (n *LogNotifier) NotifyIssued(_ context.Context, notice circulation.IssueNotice) error {
	n.logger.Info(logMsgIssueNotice,
		logAttrRecipient, notice.Recipient.Name,
		logAttrEmail, notice.Recipient.Email,
		logAttrItemTitle, notice.ItemTitle,
		logAttrIssuer, notice.IssuerName)

	return nil
}

// NotifyOverdue implements circulation.Notifier.
func (n *LogNotifier) NotifyOverdue(_ context.Context, notice circulation.OverdueNotice) error {
	n.logger.Info(logMsgOverdueNotice,
		logAttrRecipient, notice.Recipient.Name,
		logAttrEmail, notice.Recipient.Email,
		logAttrItemTitle, notice.ItemTitle,
		logAttrDueDate, notice.DueDate.Format(time.DateOnly))

	return nil
}
