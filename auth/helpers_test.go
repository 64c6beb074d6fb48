package auth

import (
	"time"

	"github.com/coursework/calendar/models"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func fixedClock() time.Time { return fixedNow }

func newTestCodec(secret string) *Codec {
	return NewCodec(DeriveKey(secret), WithClock(fixedClock))
}

func newTestUser() *models.User {
	return models.NewUser("a@x.com", "alice", "hash", models.RoleUser)
}
