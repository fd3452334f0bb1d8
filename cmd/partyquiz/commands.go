package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gokatarajesh/wager-quiz/internal/client"
	"github.com/gokatarajesh/wager-quiz/internal/match"
)

var errUsage = errors.New("usage")

type command struct {
	usage string
	run   func(ctx context.Context, r *repl, args []string) error
}

// repl maps one input line to one session call.
type repl struct {
	session *client.Session
	out     io.Writer
	timeout time.Duration
}

var commands = map[string]command{
	"name": {"name <player name>", func(_ context.Context, r *repl, args []string) error {
		if len(args) == 0 {
			return errUsage
		}
		return r.session.SetPlayerName(strings.Join(args, " "))
	}},
	"key": {"key <provider api key>", func(ctx context.Context, r *repl, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		return r.session.SetAPIKey(ctx, args[0])
	}},
	"create": {"create [questions=N] [seconds=N] [type=T] [difficulty=D] [final=shared|personalized] [hints=true] [theme=...]", func(ctx context.Context, r *repl, args []string) error {
		settings, err := parseSettings(match.DefaultSettings(), args)
		if err != nil {
			return err
		}
		room, err := r.session.CreateRoom(ctx, settings)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "room %s created\n", room.RoomCode)
		return nil
	}},
	"join": {"join <room code>", func(ctx context.Context, r *repl, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		room, err := r.session.JoinRoom(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "joined room %s (%d players)\n", room.RoomCode, len(room.Players))
		return nil
	}},
	"settings": {"settings key=value ...", func(ctx context.Context, r *repl, args []string) error {
		room := r.session.Room()
		if room == nil {
			return client.ErrNotInRoom
		}
		settings, err := parseSettings(room.Settings, args)
		if err != nil {
			return err
		}
		return r.session.UpdateSettings(ctx, settings)
	}},
	"ready": {"ready", func(ctx context.Context, r *repl, _ []string) error {
		ready, err := r.session.ToggleReady(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "ready: %t\n", ready)
		return nil
	}},
	"start": {"start", func(ctx context.Context, r *repl, _ []string) error {
		return r.session.StartGame(ctx)
	}},
	"round": {"round", func(_ context.Context, r *repl, _ []string) error {
		view, err := r.session.Round()
		if err != nil {
			return err
		}
		printRound(r.out, view)
		return nil
	}},
	"bet": {"bet <points>", func(ctx context.Context, r *repl, args []string) error {
		value, err := intArg(args)
		if err != nil {
			return err
		}
		outcome, err := r.session.ConfirmBet(ctx, value)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "bet %d: %s\n", value, outcome)
		return nil
	}},
	"answer": {"answer <text>", func(ctx context.Context, r *repl, args []string) error {
		if len(args) == 0 {
			return errUsage
		}
		return r.session.SubmitAnswer(ctx, strings.Join(args, " "))
	}},
	"reveal": {"reveal", func(_ context.Context, r *repl, _ []string) error {
		return r.session.Reveal()
	}},
	"override": {"override <player id> <correct|wrong>", func(_ context.Context, r *repl, args []string) error {
		if len(args) != 2 {
			return errUsage
		}
		switch args[1] {
		case "correct":
			return r.session.Override(args[0], true)
		case "wrong":
			return r.session.Override(args[0], false)
		}
		return errUsage
	}},
	"apply": {"apply", func(ctx context.Context, r *repl, _ []string) error {
		changes, err := r.session.ApplyScores(ctx)
		if err != nil {
			return err
		}
		for _, c := range changes {
			fmt.Fprintf(r.out, "%s %+d -> %d\n", c.PlayerID, c.Delta, c.Score)
		}
		return nil
	}},
	"next": {"next", func(ctx context.Context, r *repl, _ []string) error {
		return r.session.Next(ctx)
	}},
	"final": {"final", func(_ context.Context, r *repl, _ []string) error {
		view, err := r.session.Final()
		if err != nil {
			return err
		}
		printFinal(r.out, view)
		return nil
	}},
	"wager": {"wager <0|10|20> [difficulty]", func(ctx context.Context, r *repl, args []string) error {
		if len(args) == 0 || len(args) > 2 {
			return errUsage
		}
		value, err := strconv.Atoi(args[0])
		if err != nil {
			return errUsage
		}
		difficulty := ""
		if len(args) == 2 {
			difficulty = args[1]
		}
		return r.session.SelectFinalWager(ctx, value, difficulty)
	}},
	"generate": {"generate", func(ctx context.Context, r *repl, _ []string) error {
		return r.session.GenerateFinal(ctx)
	}},
	"finish": {"finish", func(ctx context.Context, r *repl, _ []string) error {
		return r.session.Finish(ctx)
	}},
	"standings": {"standings", func(_ context.Context, r *repl, _ []string) error {
		for i, p := range r.session.Standings() {
			fmt.Fprintf(r.out, "%d. %s %d\n", i+1, p.Name, p.Score)
		}
		return nil
	}},
	"status": {"status", func(_ context.Context, r *repl, _ []string) error {
		status, err := r.session.Status()
		if err != nil {
			fmt.Fprintf(r.out, "stage %s, %s: %v\n", r.session.Stage(), status, err)
			return nil
		}
		fmt.Fprintf(r.out, "stage %s, %s\n", r.session.Stage(), status)
		return nil
	}},
	"leave": {"leave", func(ctx context.Context, r *repl, _ []string) error {
		return r.session.Leave(ctx)
	}},
}

// exec runs one input line. Empty lines are ignored.
func (r *repl) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(fields[0])
	if name == "help" {
		r.help()
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := cmd.run(ctx, r, fields[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("usage: %s", cmd.usage)
		}
		return err
	}
	return nil
}

func (r *repl) help() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(r.out, "  %s\n", commands[name].usage)
	}
}

// parseSettings applies key=value pairs on top of base.
func parseSettings(base match.GameSettings, args []string) (match.GameSettings, error) {
	s := base
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || value == "" {
			return s, fmt.Errorf("expected key=value, got %q", arg)
		}
		var err error
		switch strings.ToLower(key) {
		case "questions":
			s.NumberOfQuestions, err = strconv.Atoi(value)
		case "seconds":
			s.TimePerQuestion, err = strconv.Atoi(value)
		case "type":
			s.QuestionType = value
		case "difficulty":
			s.Difficulty = value
		case "final":
			s.FinalMode = match.FinalMode(value)
		case "hints":
			s.HintsEnabled, err = strconv.ParseBool(value)
		case "language":
			s.Language = value
		case "theme":
			s.Theme = value
		case "custom":
			s.CustomTheme = strings.ReplaceAll(value, "_", " ")
		default:
			return s, fmt.Errorf("unknown setting %q", key)
		}
		if err != nil {
			return s, fmt.Errorf("setting %s: %w", key, err)
		}
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func intArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errUsage
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, errUsage
	}
	return v, nil
}

func printRound(w io.Writer, view client.RoundView) {
	fmt.Fprintf(w, "question %d/%d [%s] %s left\n", view.Index+1, view.Total, view.Phase, view.Remaining.Round(time.Second))
	fmt.Fprintf(w, "  %s\n", view.Question.Text)
	for i, opt := range view.Question.Options {
		fmt.Fprintf(w, "  %c) %s\n", 'A'+i, opt)
	}
	fmt.Fprintf(w, "  bets left: %v\n", view.Available)
	printBoard(w, view.Board)
}

func printFinal(w io.Writer, view client.FinalView) {
	fmt.Fprintf(w, "final [%s, %s] %s left\n", view.Phase, view.Mode, view.Remaining.Round(time.Second))
	if view.Question != nil {
		fmt.Fprintf(w, "  %s\n", view.Question.Text)
		for i, opt := range view.Question.Options {
			fmt.Fprintf(w, "  %c) %s\n", 'A'+i, opt)
		}
	}
	printBoard(w, view.Board)
}

func printBoard(w io.Writer, board map[string]match.AnswerEntry) {
	ids := make([]string, 0, len(board))
	for id := range board {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		entry := board[id]
		verdict := "pending"
		if entry.IsCorrect != nil {
			verdict = "wrong"
			if *entry.IsCorrect {
				verdict = "correct"
			}
		}
		fmt.Fprintf(w, "  %s: %q %s\n", id, entry.Answer, verdict)
	}
}
