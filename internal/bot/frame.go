package bot

import (
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"chat-moderation-engine/internal/models"
)

// Message is the part of a MESSAGE_CREATE payload the adapter needs
type Message struct {
	ID         string
	ChannelID  string
	GuildID    string
	AuthorID   string
	AuthorName string
	Content    string
	Timestamp  time.Time
}

var messagePaths = []string{
	"id", "channel_id", "guild_id", "author.id", "author.username",
	"author.bot", "webhook_id", "content", "timestamp",
}

// ParseMessageCreate extracts a guild message from the raw "d" payload of a
// MESSAGE_CREATE dispatch. Bot, webhook and direct messages are skipped.
func ParseMessageCreate(raw []byte) (Message, bool) {
	if !gjson.ValidBytes(raw) {
		return Message{}, false
	}
	r := gjson.GetManyBytes(raw, messagePaths...)
	if r[5].Bool() || r[6].Exists() || r[2].String() == "" || r[3].String() == "" {
		return Message{}, false
	}

	m := Message{
		ID:         r[0].String(),
		ChannelID:  r[1].String(),
		GuildID:    r[2].String(),
		AuthorID:   r[3].String(),
		AuthorName: r[4].String(),
		Content:    r[7].String(),
	}
	if ts, err := time.Parse(time.RFC3339Nano, r[8].String()); err == nil {
		m.Timestamp = ts
	}
	return m, true
}

// Event converts the message into an engine event. The Discord user id is the
// device fingerprint; Discord exposes nothing closer to one.
func (m Message) Event() models.MessageEvent {
	evt := models.MessageEvent{
		Content:       m.Content,
		ActorName:     m.AuthorName,
		ActorDeviceID: "discord:" + m.AuthorID,
		Timestamp:     m.Timestamp,
	}
	if room, err := strconv.ParseInt(m.ChannelID, 10, 64); err == nil {
		evt.RoomID = &room
	}
	return evt
}
