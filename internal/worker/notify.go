package worker

import (
	"context"
	"log"

	"CloudKeep/internal/service"
	"CloudKeep/utils"
)

// MailNotifier emails users about retention-sweep cleanups. Best effort:
// a failed mail is logged, never retried, and never fails the sweep.
type MailNotifier struct {
	store service.RecordStore
}

// NewMailNotifier builds a notifier over the user table.
func NewMailNotifier(store service.RecordStore) *MailNotifier {
	return &MailNotifier{store: store}
}

// TrashPurged sends the cleanup notice.
func (n *MailNotifier) TrashPurged(ctx context.Context, userID uint64, items int) {
	user, err := n.store.FindUser(ctx, userID)
	if err != nil {
		log.Printf("notify: load user %d failed: %v", userID, err)
		return
	}
	if err := utils.SendTrashPurgedMail(user.Email, items); err != nil {
		log.Printf("notify: mail to %s failed: %v", user.Email, err)
	}
}
