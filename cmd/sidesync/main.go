package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/config"
	"github.com/tmitchel/sidesync/engine"
	"github.com/tmitchel/sidesync/realtime"
	"github.com/tmitchel/sidesync/services"
	"github.com/tmitchel/sidesync/state"
)

// network logs when the backend stops answering.
type network struct {
	log logrus.FieldLogger
}

func (n network) SetDegraded(degraded bool) {
	if degraded {
		n.log.Warn("backend unreachable, working from local state")
	} else {
		n.log.Debug("backend reachable")
	}
}

func main() {
	file := flag.String("config", "", "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*file, nil)
	if err != nil {
		logrus.Fatal(err)
	}
	log := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	client := services.New(cfg.Server.URL, nil, cfg.Client.RequestTimeout, log.WithField("component", "services"))

	token := cfg.Client.Token
	if token == "" {
		resp, err := client.Login(ctx, cfg.Client.Email, cfg.Client.Password)
		if err != nil {
			return errors.Wrap(err, "logging in")
		}
		token = resp.Token
		log.WithField("user", resp.User.ID).Info("logged in")
	}
	creds, err := services.NewTokenCredentials(token)
	if err != nil {
		return err
	}
	client.SetCredentials(creds)

	store := state.New()
	eng := engine.New(store, engine.Services{
		Teams:         client,
		Conversations: client,
		Messages:      client,
		Threads:       client,
		Notifications: client,
		Users:         client,
	}, creds, network{log: log.WithField("component", "network")}, engine.Config{
		ReadDelay:        cfg.Client.ReadDelay,
		ReadFlushTimeout: cfg.Client.ReadFlushTimeout,
		RetryAttempts:    cfg.Client.RetryAttempts,
		RetryWait:        cfg.Client.RetryWait,
		DeviceToken:      cfg.Client.DeviceToken,
	}, log.WithField("component", "engine"))
	defer eng.Close()

	unsubscribe := store.Subscribe(func() { report(eng, log) })
	defer unsubscribe()

	// the first connect is not a recovery, so load everything up front
	if err := eng.Reconnect(ctx); err != nil {
		return errors.Wrap(err, "loading initial state")
	}

	reassembler := realtime.NewReassembler(cfg.Client.ChunkTTL, log.WithField("component", "reassembler"))
	dispatcher := realtime.NewDispatcher(eng, reassembler, log.WithField("component", "dispatcher"))
	conn := realtime.NewConn(websocketURL(cfg.Server.URL), creds, dispatcher, log.WithField("component", "realtime"))
	conn.OnStateChange(eng.OnStateChange)

	return conn.Run(ctx)
}

func websocketURL(server string) string {
	server = strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(server, "https://"):
		server = "wss://" + strings.TrimPrefix(server, "https://")
	case strings.HasPrefix(server, "http://"):
		server = "ws://" + strings.TrimPrefix(server, "http://")
	}
	return server + "/ws"
}

// report logs a one line summary of the synchronized state.
func report(eng *engine.Engine, log logrus.FieldLogger) {
	store := eng.Store()
	view := store.View()
	summary := store.Summary()
	fields := logrus.Fields{
		"revision":       store.Revision(),
		"teams":          len(store.Teams()),
		"conversations":  len(store.Conversations()),
		"unread_dmgs":    summary.UnreadDMGs,
		"mentions":       summary.MentionCount,
		"unread_threads": summary.UnreadThreads,
		"team":           view.SelectedTeam,
		"recovering":     eng.Recovering(),
	}
	if c, ok := store.Conversation(view.SelectedConversationID); ok {
		fields["conversation"] = conversationName(c)
		fields["messages"] = len(store.Messages(c.ID))
	}
	log.WithFields(fields).Debug("state updated")
}

func conversationName(c *sidesync.Conversation) string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type.String()
}
