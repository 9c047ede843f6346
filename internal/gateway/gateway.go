// Package gateway exposes the network-facing verification endpoint. It
// composes the credential extractor and token verifier into a stateless
// pass/fail decision: 200 with identity metadata, or an empty 401.
package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/hail-is/auth-gateway/internal/credential"
	"github.com/hail-is/auth-gateway/internal/verifier"
)

type Gateway struct {
	extractor *credential.Extractor
	verifier  *verifier.Verifier
	logger    *zap.Logger
}

func New(extractor *credential.Extractor, v *verifier.Verifier, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		extractor: extractor,
		verifier:  v,
		logger:    logger,
	}
}

// BuildRouter wires the gateway's routes.
func (g *Gateway) BuildRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/verify", g.HandleVerify).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)

	return r
}

// HandleVerify decides whether the request carries a valid credential.
// The response body is always empty; on success the subject and scope ride
// in the User and Scope headers. No failure detail leaks to the caller.
func (g *Gateway) HandleVerify(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	logger := g.logger.With(zap.String("request_id", requestID))

	token, err := g.extractor.FromRequest(r)
	if err != nil {
		logger.Debug("no usable credential", zap.Error(err))
		unauthorized(w)
		return
	}

	claims, err := g.verifier.Verify(r.Context(), token)
	if err != nil {
		logger.Debug("credential rejected")
		unauthorized(w)
		return
	}

	w.Header().Set("User", claims.Subject)
	w.Header().Set("Scope", claims.Scope)
	w.WriteHeader(http.StatusOK)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func unauthorized(w http.ResponseWriter) {
	w.WriteHeader(http.StatusUnauthorized)
}
