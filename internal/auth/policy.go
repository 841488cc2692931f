package auth

import "errors"

var ErrForbidden = errors.New("forbidden")

// Actor is whoever triggered a privileged action.
type Actor struct {
	UserID int64
	ChatID int64
	// Channel is set for posts made on behalf of a channel, where Telegram
	// does not reveal the author. Only channel admins can post there.
	Channel bool
	// Web actors already passed the admin login.
	Web bool
}

// Policy holds the moderator allow-list and the administrative chat where
// ban commands are accepted.
type Policy struct {
	moderators  map[int64]struct{}
	adminChatID int64
}

func NewPolicy(moderatorIDs []int64, adminChatID int64) *Policy {
	p := &Policy{moderators: make(map[int64]struct{}, len(moderatorIDs)), adminChatID: adminChatID}
	for _, id := range moderatorIDs {
		p.moderators[id] = struct{}{}
	}
	return p
}

func (p *Policy) IsModerator(userID int64) bool {
	_, ok := p.moderators[userID]
	return ok
}

func (p *Policy) Moderators() []int64 {
	ids := make([]int64, 0, len(p.moderators))
	for id := range p.moderators {
		ids = append(ids, id)
	}
	return ids
}

// IsAdminChat reports whether chatID is the administrative channel.
func (p *Policy) IsAdminChat(chatID int64) bool {
	return p.adminChatID != 0 && chatID == p.adminChatID
}

// CanModerate guards order accept/reject.
func (p *Policy) CanModerate(a Actor) error {
	if a.Web || p.IsModerator(a.UserID) {
		return nil
	}
	return ErrForbidden
}

// CanManageBans guards ban/unban. Bot actors must also be in the admin chat.
func (p *Policy) CanManageBans(a Actor) error {
	if a.Web {
		return nil
	}
	if !p.IsAdminChat(a.ChatID) {
		return ErrForbidden
	}
	if a.Channel || p.IsModerator(a.UserID) {
		return nil
	}
	return ErrForbidden
}
