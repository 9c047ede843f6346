package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hail-is/auth-gateway/internal/credential"
	"github.com/hail-is/auth-gateway/internal/gateway"
	"github.com/hail-is/auth-gateway/internal/keyset"
	"github.com/hail-is/auth-gateway/internal/verifier"
)

func main() {
	_ = godotenv.Load()

	domain := readEnvVar("AUTH_DOMAIN")
	audience := readEnvVar("AUTH_AUDIENCE")
	port := fmt.Sprintf(":%s", readEnvVarDefault("PORT", "8000"))

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v\n", err)
	}
	defer logger.Sync()

	issuer := fmt.Sprintf("https://%s/", domain)

	resolver, err := buildResolver(domain, logger)
	if err != nil {
		log.Fatalf("failed to init key resolver: %v\n", err)
	}

	v := verifier.New(verifier.Config{
		Issuer:   issuer,
		Audience: audience,
	}, resolver, logger)

	g := gateway.New(credential.NewExtractor(logger), v, logger)

	logger.Info("auth gateway running", zap.String("port", port))
	log.Fatal(http.ListenAndServe(port, g.BuildRouter()))
}

// buildResolver serves keys from KEYSET_FILE when set, otherwise from the
// issuer's well-known JWKS endpoint.
func buildResolver(domain string, logger *zap.Logger) (keyset.Resolver, error) {
	if path, present := os.LookupEnv("KEYSET_FILE"); present {
		return keyset.NewFileResolver(path, logger)
	}
	url := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	return keyset.NewRemoteResolver(url, keyset.WithLogger(logger)), nil
}

func readEnvVar(name string) string {
	var present bool
	str, present := os.LookupEnv(name)
	if !present {
		log.Fatalf("missing required env var '%s'\n", name)
	}
	return str
}

func readEnvVarDefault(name string, fallback string) string {
	if str, present := os.LookupEnv(name); present {
		return str
	}
	return fallback
}
