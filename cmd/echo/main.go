// Command echo is a terminal client for an echo room.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/npezzotti/go-echo/internal/config"
	"github.com/npezzotti/go-echo/internal/ids"
	"github.com/npezzotti/go-echo/internal/tui"
	"github.com/npezzotti/go-echo/pkg/client"
	"github.com/npezzotti/go-echo/pkg/clips"
	"github.com/npezzotti/go-echo/pkg/poller"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// clipsPath returns ~/.echo/clips.json.
func clipsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".echo", "clips.json"), nil
}

func run() error {
	if err := config.LoadEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	defaultClips, _ := clipsPath()

	var (
		serverURL string
		roomCode  string
		username  string
		clipsFile string
		logFile   string
	)
	flag.StringVar(&serverURL, "server", config.Getenv("ECHO_SERVER_URL", "http://localhost:8000"), "echo server base URL")
	flag.StringVar(&roomCode, "room", "", "room code to join, a new room is created when empty")
	flag.StringVar(&username, "name", config.Getenv("ECHO_USERNAME", ""), "display name")
	flag.StringVar(&clipsFile, "clips", defaultClips, "file that keeps clipped messages, empty disables local clips")
	flag.StringVar(&logFile, "log", "", "write client logs to this file")
	flag.Parse()

	logger := log.New(io.Discard, "[echo] ", log.LstdFlags)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	userId, err := ids.NewMessageId()
	if err != nil {
		return err
	}
	if username == "" {
		username = "anon-" + userId[len(userId)-4:]
	}

	c := client.New(serverURL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if roomCode == "" {
		code, err := ids.NewRoomCode()
		if err != nil {
			return err
		}
		room, err := c.CreateRoom(ctx, code, userId)
		if err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		roomCode = room.Code
	}

	library, err := clips.Open(clipsFile)
	if err != nil {
		return err
	}

	session := poller.NewSession(c, logger, poller.Config{
		RoomCode: roomCode,
		UserId:   userId,
		Username: username,
		Clips:    library,
	})

	joined, err := session.Join(ctx)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go session.Run(runCtx) //nolint:errcheck

	p := tea.NewProgram(tui.New(session, joined.Room.Code, userId), tea.WithAltScreen())
	_, runErr := p.Run()

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelClose()
	if err := session.Close(closeCtx); err != nil {
		logger.Println("leave room:", err)
	}

	if runErr != nil {
		return fmt.Errorf("tui error: %w", runErr)
	}
	return nil
}
