package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/config"
	"github.com/tmitchel/sidesync/server"
	"github.com/tmitchel/sidesync/store"
)

func main() {
	file := flag.String("config", "", "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*file, nil)
	if err != nil {
		logrus.Fatal(err)
	}
	log := cfg.Logger()

	// open the database connection and defer closing it
	var db store.Database
	if cfg.Database.URL != "" {
		db, err = store.NewWithMigration(cfg.Database.URL)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		log.Warn("no database configured, keeping everything in memory")
		db = store.NewMemory()
	}
	defer db.Close()

	if err := seed(db, cfg.Seed, log); err != nil {
		log.Fatal(err)
	}

	if cfg.Server.SigningKey == "" {
		log.Fatal("server.signing_key must be set")
	}

	// build the server and inject dependencies
	srv := server.NewServer(db, server.Config{
		SigningKey: []byte(cfg.Server.SigningKey),
		TokenTTL:   cfg.Server.TokenTTL,
		MaxFrame:   cfg.Server.MaxFrame,
	}, log.WithField("component", "server"))
	defer srv.Close()

	// serve
	addr := ":" + cfg.Server.Port
	log.Infof("listening on %s", addr)
	if cfg.Server.CertFile != "" {
		err = http.ListenAndServeTLS(addr, cfg.Server.CertFile, cfg.Server.KeyFile, accessControl(srv.Serve()))
	} else {
		err = http.ListenAndServe(addr, accessControl(srv.Serve()))
	}
	log.Fatal(err)
}

// seed creates the configured user with a team and a general channel
// when the user does not exist yet.
func seed(db store.Database, s config.Seed, log logrus.FieldLogger) error {
	if s.Email == "" {
		return nil
	}
	if _, err := db.UserForAuth(s.Email); err == nil {
		return nil
	} else if !errors.Is(err, sidesync.ErrNotFound) {
		return errors.Wrap(err, "looking up seed user")
	}

	log.Info("creating initial user")
	hashed, err := bcrypt.GenerateFromPassword([]byte(s.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hashing seed password")
	}
	user, err := db.CreateUser(&sidesync.User{
		DisplayName: s.DisplayName,
		Email:       s.Email,
		Password:    hashed,
	})
	if err != nil {
		return errors.Wrap(err, "creating seed user")
	}

	now := time.Now().UTC()
	team, err := db.CreateTeam(&sidesync.Team{
		DisplayName:       s.Team,
		Members:           []int64{user.ID},
		Admins:            []int64{user.ID},
		UpdatedActionTime: now,
	})
	if err != nil {
		return errors.Wrap(err, "creating seed team")
	}

	_, err = db.CreateConversation(&sidesync.Conversation{
		Type:              sidesync.ConversationPublic,
		Name:              "general",
		Slug:              "general",
		Team:              team.ID,
		Members:           []int64{user.ID},
		Admins:            []int64{user.ID},
		UpdatedActionTime: now,
	})
	return errors.Wrap(err, "creating seed conversation")
}

// CORS access stuffs
func accessControl(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		h.ServeHTTP(w, r)
	})
}
