package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/oauth"

	"github.com/mbolis/prom-tracker/config"
	"github.com/mbolis/prom-tracker/log"
	"github.com/mbolis/prom-tracker/store"
)

// RefreshTTL is how long a refresh token can be exchanged for a new token.
const RefreshTTL = 8760 * time.Hour

// AdminRole is the role granted to every operator account.
const AdminRole = "admin"

var errRefresh = errors.New("could not refresh")

type credentialsVerifier struct {
	users store.UserStore
}

func CredentialsVerifier(users store.UserStore) oauth.CredentialsVerifier {
	return &credentialsVerifier{users}
}

func NewBearerServer(users store.UserStore, cfg config.Config) *oauth.BearerServer {
	return oauth.NewBearerServer(cfg.TokenSecret, cfg.TokenTTL, CredentialsVerifier(users), nil)
}

func (cs *credentialsVerifier) ValidateUser(username string, password string, scope string, r *http.Request) error {
	err := cs.users.ValidateUser(r.Context(), username, password)
	if err != nil {
		log.Debugf("login.validate_user: %s: %s", username, err)
	}
	return err
}
func (cs *credentialsVerifier) ValidateClient(clientID string, clientSecret string, scope string, r *http.Request) error {
	return errors.New("client credentials are not supported")
}
func (cs *credentialsVerifier) ValidateCode(clientID string, clientSecret string, code string, redirectURI string, r *http.Request) (string, error) {
	return "", errors.New("authorization codes are not supported")
}
func (cs *credentialsVerifier) StoreTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	return cs.users.StoreToken(
		context.Background(),
		credential,
		tokenID,
		refreshTokenID,
		time.Now().Add(RefreshTTL),
	)
}
func (cs *credentialsVerifier) ValidateTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	expiration, err := cs.users.ConsumeToken(context.Background(), credential, tokenID, refreshTokenID)
	if err != nil {
		log.Debugf("refresh.consume_token: %s", err)
		return errRefresh
	}

	if expiration.Before(time.Now()) {
		return errRefresh
	}
	return nil
}
func (*credentialsVerifier) AddClaims(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{"roles": AdminRole}, nil
}
func (*credentialsVerifier) AddProperties(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{}, nil
}
