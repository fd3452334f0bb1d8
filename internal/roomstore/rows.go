package roomstore

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gokatarajesh/wager-quiz/internal/match"
	"github.com/gokatarajesh/wager-quiz/internal/question"
)

type roomRow struct {
	Code          string
	HostID        string
	Phase         string
	Settings      []byte
	Questions     []byte
	QuestionIndex int32
	FinalQuestion []byte
}

func (r roomRow) toRoom(players []match.Player) (*match.Room, error) {
	room := &match.Room{
		RoomCode:      r.Code,
		HostID:        r.HostID,
		Phase:         match.RoomPhase(r.Phase),
		Players:       players,
		QuestionIndex: int(r.QuestionIndex),
	}
	if err := json.Unmarshal(r.Settings, &room.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if len(r.Questions) > 0 {
		var qs []question.Question
		if err := json.Unmarshal(r.Questions, &qs); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		if len(qs) > 0 {
			room.Questions = qs
		}
	}
	if len(r.FinalQuestion) > 0 && string(r.FinalQuestion) != "null" {
		var fq question.Question
		if err := json.Unmarshal(r.FinalQuestion, &fq); err != nil {
			return nil, fmt.Errorf("decode final question: %w", err)
		}
		room.FinalQuestion = &fq
	}
	if room.Players == nil {
		room.Players = []match.Player{}
	}
	return room, nil
}

func scanPlayerRow(row pgx.CollectableRow) (match.Player, error) {
	var (
		p          match.Player
		score      int32
		currentBet *int32
		usedBets   []int32
		answer     *string
	)
	if err := row.Scan(&p.ID, &p.Name, &score, &p.IsHost, &p.IsReady, &currentBet, &usedBets, &p.HasAPIKey, &p.Language, &answer); err != nil {
		return match.Player{}, err
	}
	p.Score = int(score)
	if currentBet != nil {
		v := int(*currentBet)
		p.CurrentBet = &v
	}
	p.UsedBets = make([]int, len(usedBets))
	for i, v := range usedBets {
		p.UsedBets[i] = int(v)
	}
	p.Answer = answer
	return p, nil
}

type setBuilder struct {
	sets []string
	args []any
}

func (b *setBuilder) add(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *setBuilder) literal(column, expr string) {
	b.sets = append(b.sets, column+" = "+expr)
}

// playerPatchSQL mirrors match.Player.Apply: an explicit value wins over its clear flag.
func playerPatchSQL(patch match.PlayerPatch) ([]string, []any) {
	var b setBuilder
	if patch.Name != nil {
		b.add("name", *patch.Name)
	}
	if patch.Score != nil {
		b.add("score", int32(*patch.Score))
	}
	if patch.IsReady != nil {
		b.add("is_ready", *patch.IsReady)
	}
	switch {
	case patch.CurrentBet != nil:
		b.add("current_bet", int32(*patch.CurrentBet))
	case patch.ClearBet:
		b.literal("current_bet", "NULL")
	}
	switch {
	case patch.UsedBets != nil:
		used := make([]int32, len(patch.UsedBets))
		for i, v := range patch.UsedBets {
			used[i] = int32(v)
		}
		b.add("used_bets", used)
	case patch.ResetBets:
		b.literal("used_bets", "'{}'")
	}
	if patch.HasAPIKey != nil {
		b.add("has_api_key", *patch.HasAPIKey)
	}
	if patch.Language != nil {
		b.add("language", *patch.Language)
	}
	switch {
	case patch.Answer != nil:
		b.add("answer", *patch.Answer)
	case patch.ClearAnswer:
		b.literal("answer", "NULL")
	}
	return b.sets, b.args
}

func roomPatchSQL(patch match.RoomPatch) ([]string, []any, error) {
	var b setBuilder
	if patch.Phase != nil {
		b.add("phase", string(*patch.Phase))
	}
	if patch.Settings != nil {
		data, err := json.Marshal(patch.Settings)
		if err != nil {
			return nil, nil, fmt.Errorf("encode settings: %w", err)
		}
		b.add("settings", data)
	}
	if patch.Questions != nil {
		data, err := json.Marshal(patch.Questions)
		if err != nil {
			return nil, nil, fmt.Errorf("encode questions: %w", err)
		}
		b.add("questions", data)
	}
	if patch.QuestionIndex != nil {
		b.add("question_index", int32(*patch.QuestionIndex))
	}
	switch {
	case patch.FinalQuestion != nil:
		data, err := json.Marshal(patch.FinalQuestion)
		if err != nil {
			return nil, nil, fmt.Errorf("encode final question: %w", err)
		}
		b.add("final_question", data)
	case patch.ClearFinalQuestion:
		b.literal("final_question", "NULL")
	}
	return b.sets, b.args, nil
}
