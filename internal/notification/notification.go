package notification

import (
	"context"

	"github.com/frahmantamala/client-portal/internal/core/datamodel/notification"
)

type RepositoryAPI interface {
	Create(ctx context.Context, n *notification.Notification) error
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, page, perPage int) ([]*notification.Notification, int64, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	// MarkRead flags the given notifications of userID as read; all of them when ids is empty.
	MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error)
}

// ContactLookup resolves the mailbox of a user.
type ContactLookup interface {
	Contact(ctx context.Context, userID int64) (email, name string, err error)
}

type MailSender interface {
	Send(to, subject, htmlBody string) error
}
