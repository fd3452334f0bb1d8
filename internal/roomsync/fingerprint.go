package roomsync

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gokatarajesh/wager-quiz/internal/match"
)

// Fingerprint serializes every synchronized field of a room. Two rooms with the
// same fingerprint render identically, so applying the second is a no-op.
func Fingerprint(room *match.Room) string {
	if room == nil {
		return ""
	}
	settings, _ := json.Marshal(room.Settings)

	var b strings.Builder
	b.WriteString(room.RoomCode)
	b.WriteByte('|')
	b.WriteString(room.HostID)
	b.WriteByte('|')
	b.WriteString(string(room.Phase))
	b.WriteByte('|')
	b.Write(settings)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(room.QuestionIndex))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(len(room.Questions)))
	b.WriteByte('|')
	if room.FinalQuestion != nil {
		b.WriteString(room.FinalQuestion.ID)
	}
	b.WriteByte('|')
	for i, p := range room.Players {
		if i > 0 {
			b.WriteByte(',')
		}
		writePlayer(&b, p)
	}
	return b.String()
}

func writePlayer(b *strings.Builder, p match.Player) {
	b.WriteString(p.ID)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(p.Score))
	b.WriteByte(':')
	b.WriteString(strconv.FormatBool(p.IsReady))
	b.WriteByte(':')
	b.WriteString(strconv.FormatBool(p.IsHost))
	b.WriteByte(':')
	for i, v := range p.UsedBets {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteByte(':')
	b.WriteString(strconv.FormatBool(p.HasAPIKey))
	b.WriteByte(':')
	if p.CurrentBet != nil {
		b.WriteString(strconv.Itoa(*p.CurrentBet))
	}
	b.WriteByte(':')
	if p.Answer != nil {
		b.WriteString(strconv.Quote(*p.Answer))
	}
}
