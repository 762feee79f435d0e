package notification

import (
	"time"

	"github.com/frahmantamala/client-portal/internal/core/datamodel/notification"
)

type View struct {
	ID        int64                 `json:"id"`
	Title     string                `json:"title"`
	Message   string                `json:"message"`
	Severity  notification.Severity `json:"severity"`
	IsRead    bool                  `json:"is_read"`
	CreatedAt time.Time             `json:"created_at"`
}

func ToView(n *notification.Notification) View {
	return View{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Severity:  n.Severity,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

type ListResult struct {
	Items   []View `json:"items"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Total   int64  `json:"total"`
}

type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}

type MarkReadRequest struct {
	IDs []int64 `json:"ids"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}
