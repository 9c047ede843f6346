// session-agent keeps a client session silently renewed. It restores
// persisted tokens from a local database, validates them against the
// identity provider, and logs every state transition until interrupted,
// at which point the session is left intact for the next run.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hail-is/auth-gateway/pkg/session"
)

func main() {
	_ = godotenv.Load()

	dbPath := readEnvVar("SESSION_DB_PATH")
	providerURL := readEnvVar("PROVIDER_URL")
	clientID := readEnvVar("CLIENT_ID")
	audience := readEnvVar("AUTH_AUDIENCE")

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v\n", err)
	}
	defer logger.Sync()

	store, err := session.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open session store: %v\n", err)
	}
	defer store.Close()

	provider := session.NewHTTPProvider(session.ProviderConfig{
		BaseURL:  providerURL,
		ClientID: clientID,
		Audience: audience,
	})

	manager, err := session.New(session.Config{
		Store:    store,
		Provider: provider,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to build session manager: %v\n", err)
	}

	manager.Subscribe(func(s *session.State) {
		switch {
		case s.LoggedOut:
			logger.Info("session logged out")
		case s.Authenticated():
			logger.Info("session authenticated",
				zap.String("subject", s.User.Subject),
				zap.String("expires_at_millis", s.ExpiresAtMillis))
		default:
			logger.Info("session unauthenticated",
				zap.String("login_url", manager.LoginURL("")))
		}
	})

	if err := manager.Start(); err != nil {
		log.Fatalf("failed to start session manager: %v\n", err)
	}
	defer manager.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func readEnvVar(name string) string {
	var present bool
	str, present := os.LookupEnv(name)
	if !present {
		log.Fatalf("missing required env var '%s'\n", name)
	}
	return str
}
