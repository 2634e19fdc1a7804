// Command focusctl joins a focus room from the terminal.
//
//	focusctl <room>
//
// Commands: start [minutes], hide, show, rejoin, chat <text>, claim, dismiss,
// reconnect, who, quit.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mcdev12/focushub/go/clients"
	"github.com/mcdev12/focushub/go/internal/config"
	"github.com/mcdev12/focushub/go/internal/focus/client"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if level, err := zerolog.ParseLevel(config.GetEnv("LOG_LEVEL", "warn")); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	roomID := config.GetEnv("FOCUSHUB_ROOM", "lobby")
	if len(os.Args) > 1 {
		roomID = os.Args[1]
	}
	serverURL := config.GetEnv("FOCUSHUB_URL", cfg.Client.ServerURL)
	username := config.GetEnv("FOCUSHUB_USER", "")
	password := config.GetEnv("FOCUSHUB_PASSWORD", "")
	if username == "" || password == "" {
		log.Fatal().Msg("FOCUSHUB_USER and FOCUSHUB_PASSWORD are required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tokens := client.NewTokenStore("")
	accounts := clients.NewAccountClient(serverURL, tokens)

	if config.GetEnv("FOCUSHUB_REGISTER", "") == "true" {
		if err := accounts.Register(ctx, username, password); err != nil {
			log.Warn().Err(err).Msg("register failed, trying to log in")
		}
	}
	login, err := accounts.Login(ctx, username, password)
	if err != nil {
		log.Fatal().Err(err).Msg("login failed")
	}
	tokens.Set(login.AccessToken)

	connCfg := client.DefaultConnectionConfig()
	connCfg.BaseURL = config.GetEnv("FOCUSHUB_WS_URL", websocketURL(serverURL))

	room := client.NewRoom(roomID, client.RoomConfig{
		Connection:   connCfg,
		RejoinPolicy: cfg.Client.RejoinPolicy,
		UserID:       login.UserID,
	}, tokens, accounts)

	go func() {
		if err := room.Run(ctx); err != nil {
			log.Error().Err(err).Msg("room loop stopped")
		}
	}()

	fmt.Printf("joined %s as %s; type help for commands\n", room.ID(), login.Username)

	lines := make(chan string)
	go readLines(lines)

	r := renderer{}
	for {
		select {
		case <-ctx.Done():
			room.Close()
			<-room.Done()
			return
		case <-room.Done():
			return
		case view := <-room.Updates():
			r.render(view)
		case line, ok := <-lines:
			if !ok {
				room.Close()
				<-room.Done()
				return
			}
			if quit := execute(ctx, room, tokens, accounts, username, password, line); quit {
				room.Close()
				<-room.Done()
				return
			}
		}
	}
}

// readLines forwards stdin lines until EOF
func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

func execute(ctx context.Context, room *client.Room, tokens *client.TokenStore, accounts *clients.AccountClient, username, password, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	var err error

	switch strings.ToLower(name) {
	case "":
		return false
	case "start":
		minutes := 0
		if arg != "" {
			if minutes, err = strconv.Atoi(strings.TrimSpace(arg)); err != nil {
				fmt.Println("usage: start [minutes]")
				return false
			}
		}
		err = room.Start(minutes)
	case "hide":
		var sent bool
		sent, err = room.SetVisible(false)
		if sent {
			fmt.Println("strict mode: you left the room and were marked as failed")
		}
	case "show":
		_, err = room.SetVisible(true)
	case "rejoin":
		err = room.Rejoin(ctx)
	case "chat":
		err = room.Chat(arg)
	case "claim":
		var flowers int
		flowers, err = room.Claim(ctx)
		var denied *models.VerificationDeniedError
		switch {
		case errors.As(err, &denied):
			b := denied.Breakdown
			fmt.Printf("claim denied: %d of %d minutes (%d%%)\n", b.Present, b.Required, b.Percentage)
			err = nil
		case err == nil:
			fmt.Printf("reward granted, you now have %d flowers\n", flowers)
		}
	case "dismiss":
		err = room.Dismiss()
	case "reconnect":
		if _, tokenErr := tokens.Token(); errors.Is(tokenErr, client.ErrNoCredential) {
			login, loginErr := accounts.Login(ctx, username, password)
			if loginErr != nil {
				err = loginErr
				break
			}
			tokens.Set(login.AccessToken)
		}
		err = room.Reconnect(ctx)
	case "who":
		view, snapErr := room.Snapshot()
		if snapErr != nil {
			err = snapErr
			break
		}
		for _, p := range view.Roster {
			fmt.Printf("  %-16s %s\n", p.Username, p.Status)
		}
	case "help":
		fmt.Println("start [minutes] | hide | show | rejoin | chat <text> | claim | dismiss | reconnect | who | quit")
	case "quit", "exit":
		return true
	default:
		fmt.Printf("unknown command %q\n", name)
	}

	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
	return false
}

type renderer struct {
	status    client.ConnectionStatus
	state     client.SessionState
	suspended bool
	lastShown int
	chatSeen  int
}

func (r *renderer) render(view client.View) {
	if view.Status != r.status {
		fmt.Printf("[%s] connection %s\n", view.RoomID, view.Status)
		r.status = view.Status
	}

	// the chat log is reset on rejoin
	if len(view.Chat) < r.chatSeen {
		r.chatSeen = 0
	}
	for _, msg := range view.Chat[r.chatSeen:] {
		fmt.Printf("%s <%s> %s\n", msg.Timestamp, msg.Username, msg.Text)
	}
	r.chatSeen = len(view.Chat)

	if view.State != r.state {
		r.state = view.State
		switch view.State {
		case client.StateCompleted:
			fmt.Println("session complete, type claim to collect your flower")
		case client.StateClaimDenied:
			if view.Denial != nil {
				fmt.Printf("not enough focus time: %d%%\n", view.Denial.Percentage)
			}
		case client.StateFailed:
			fmt.Println("you left during the session, type rejoin to come back")
		default:
			fmt.Printf("state %s\n", view.State)
		}
	}

	if view.Suspended != r.suspended {
		r.suspended = view.Suspended
		if view.Suspended {
			fmt.Printf("countdown paused at %02d:%02d, type rejoin to reconnect\n", view.TimeLeft/60, view.TimeLeft%60)
		}
	}

	if view.State == client.StateRunning && !view.Suspended && (view.TimeLeft%60 == 0 || view.TimeLeft <= 10) && view.TimeLeft != r.lastShown {
		fmt.Printf("%02d:%02d left\n", view.TimeLeft/60, view.TimeLeft%60)
		r.lastShown = view.TimeLeft
	}
}

// websocketURL turns the account service URL into the coordinator base URL
func websocketURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	}
	return serverURL
}
