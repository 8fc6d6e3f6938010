// Command chat is a terminal client for the class chat. It exercises the
// full client stack: local profile store, transport selection, and the
// reconciliation layer.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/classpage/backend/internal/client"
	"github.com/classpage/backend/internal/event"
)

var (
	flagServerURL string
	flagRTDBURL   string
	flagStatic    bool
	flagName      string
	flagAvatar    string
	flagDataDir   string
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Terminal client for the class chat",
	RunE:  runChat,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServerURL, "server-url", "http://localhost:8080", "relay server base URL")
	flags.StringVar(&flagRTDBURL, "rtdb-url", "", "realtime database base URL (fallback transport)")
	flags.BoolVar(&flagStatic, "static", false, "force the realtime-database fallback transport")
	flags.StringVar(&flagName, "name", "", "display name (stored locally)")
	flags.StringVar(&flagAvatar, "avatar", "", "path to an avatar image, stored as a data URI")
	flags.StringVar(&flagDataDir, "data-dir", "", "directory for local profile and message cache")
	flags.BoolVar(&flagVerbose, "verbose", false, "log transport activity")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !flagVerbose {
		logger = logger.Level(zerolog.ErrorLevel)
	}

	dir := flagDataDir
	if dir == "" {
		d, err := client.DefaultStoreDir()
		if err != nil {
			return err
		}
		dir = d
	}
	store, err := client.NewFileStore(dir)
	if err != nil {
		return err
	}

	profile, err := loadProfile(store)
	if err != nil {
		return err
	}

	cache := client.NewMessageCache(store, logger)
	timeline := client.NewTimeline(client.TimelineConfig{
		SelfName: profile.Name,
		Cache:    cache,
	}, logger)

	transport := client.Select(
		client.Environment{StaticHost: flagStatic},
		client.RelayConfig{
			URL:        wsURL(flagServerURL) + "/ws/chat",
			HistoryURL: strings.TrimSuffix(flagServerURL, "/") + "/api/chat/messages",
			Identity:   func() bool { return profile.IsSet() },
		},
		client.RTDBConfig{BaseURL: flagRTDBURL},
		logger,
	)
	defer transport.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := transport.Connect(ctx); err != nil {
		return err
	}

	var printed int
	var mu sync.Mutex
	render := func() {
		mu.Lock()
		defer mu.Unlock()
		msgs := timeline.Messages()
		for ; printed < len(msgs); printed++ {
			m := msgs[printed]
			fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("15:04"), m.Name, m.Text)
		}
		if printed > len(msgs) {
			printed = len(msgs)
		}
	}

	go func() {
		for u := range transport.Updates() {
			wasTyping := len(timeline.Typing())
			timeline.Apply(u)
			if u.Snapshot != nil {
				mu.Lock()
				printed = 0
				mu.Unlock()
			}
			render()
			if now := timeline.Typing(); len(now) > 0 && len(now) != wasTyping {
				names := make([]string, len(now))
				for i, ts := range now {
					names[i] = ts.Name
				}
				fmt.Printf("… %s typing\n", strings.Join(names, ", "))
			}
		}
	}()

	fmt.Printf("connected as %s. Type a message, /hide <id> to hide one locally, /quit to exit\n", profile.Name)

	lines := bufio.NewScanner(os.Stdin)
	for lines.Scan() {
		line := strings.TrimSpace(lines.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/hide "):
			timeline.SoftDelete(strings.TrimSpace(strings.TrimPrefix(line, "/hide ")))
			fmt.Println("hidden locally; other clients still see it")
		default:
			if transport.State() != client.Connected {
				fmt.Println("not connected; message not sent, try again:", line)
				continue
			}
			ev := event.NewMessage(profile.Name, profile.Avatar, line)
			if err := transport.Send(ev); err != nil {
				// Never auto-retried; hand the text back for a manual retry.
				fmt.Printf("send failed (%v); your message was not delivered: %s\n", err, line)
			}
		}
	}
	return lines.Err()
}

func loadProfile(store client.Store) (client.Profile, error) {
	profiles := client.NewProfileStore(store)
	profile, ok, err := profiles.Load()
	if err != nil {
		return client.Profile{}, err
	}

	if flagName != "" {
		profile.Name = flagName
	}
	if flagAvatar != "" {
		avatar, err := avatarDataURI(flagAvatar)
		if err != nil {
			return client.Profile{}, err
		}
		profile.Avatar = avatar
	}

	if !profile.IsSet() {
		return client.Profile{}, fmt.Errorf("no display name stored; pick one with --name")
	}

	if flagName != "" || flagAvatar != "" || !ok {
		if err := profiles.Save(profile); err != nil {
			return client.Profile{}, err
		}
	}
	return profile, nil
}

// avatarDataURI reads an image file into a data URI, the same shape browser
// clients store for their avatar snapshots.
func avatarDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read avatar: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), nil
}

func wsURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
