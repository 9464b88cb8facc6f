package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/client"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/runtime/workers"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL     string        `env:"CHAT_SERVER_URL,default=http://localhost:8080"`
	Username      string        `env:"CHAT_USERNAME,required=true"`
	Password      string        `env:"CHAT_PASSWORD,required=true"`
	Channel       string        `env:"CHAT_CHANNEL,default=global"`
	PendingWindow time.Duration `env:"PENDING_WINDOW,default=10s"`
	LogLevel      string        `env:"LOG_LEVEL,required=true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles login, channel subscription under the reconnection
// supervisor, and the stdin send loop.
func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	channel, err := domain.ParseChannel(config.Channel)
	if err != nil {
		return exitConfig, err
	}

	token, err := login(ctx, config.ServerURL, config.Username, config.Password)
	if err != nil {
		return exitRuntime, fmt.Errorf("login failed: %w", err)
	}

	chatClient, err := client.NewChannelClient(log, config.ServerURL, token, channel, config.PendingWindow)
	if err != nil {
		return exitRuntime, fmt.Errorf("client setup failed: %w", err)
	}
	reconnect := client.NewReconnectionSupervisor(log, chatClient, printFrame)

	sup := workers.NewSupervisor(log, 200*time.Millisecond)
	sup.Add(reconnect)
	go sup.Run(ctx)

	fmt.Printf(">>> Subscribed to %s as %s (Ctrl+C to quit)\n", channel.Key(), config.Username)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		content := scanner.Text()
		if content == "" {
			continue
		}
		if _, err := chatClient.Send(content); err != nil {
			log.Warn("send failed, will retry after reconnect", "error", err)
		}
	}

	stop()
	sup.Stop()
	return exitOK, nil
}

func printFrame(frame event.Frame) {
	evt, err := frame.DecodeEvent()
	if err != nil {
		return
	}
	switch e := evt.(type) {
	case event.MessagePosted:
		timestamp := color.Gray.Render(e.Message.CreatedAt.Format(time.TimeOnly))
		sender := color.Cyan.Render(e.Message.SenderID)
		fmt.Printf("[%s] %s: %s\n", timestamp, sender, e.Message.Content)
	case event.MembershipDelta:
		fmt.Println(color.Yellow.Sprintf("*** %s now has %d members", e.RoomName, len(e.MemberIDs)))
	case event.Notification:
		fmt.Println(color.Green.Sprintf("*** notification: %s", e.Kind))
	}
}

func login(ctx context.Context, serverURL, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned %d", resp.StatusCode)
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.Token, nil
}
