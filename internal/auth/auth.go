package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/iurnickita/loanmanager/internal/store"
)

// Auth проверяет доступ скорингового движка к данным о транзакциях.
type Auth interface {
	Middleware(h http.HandlerFunc) http.HandlerFunc
}

const realm = `Basic realm="transactions"`

var (
	ErrNoCredentials      = errors.New("authentication credentials were not provided")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type auth struct {
	store  store.Store
	zaplog *zap.Logger
}

func NewAuth(store store.Store, zaplog *zap.Logger) Auth {
	return &auth{store: store, zaplog: zaplog}
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.check(r); err != nil {
			w.Header().Set("WWW-Authenticate", realm)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// передаём управление хендлеру
		h.ServeHTTP(w, r)
	}
}

// check сверяет Basic-учетные данные с текущей регистрацией в скоринговом движке.
func (a *auth) check(r *http.Request) error {
	username, password, ok := r.BasicAuth()
	if !ok {
		return ErrNoCredentials
	}

	cfg, err := a.store.ScoringConfigGetLatest(r.Context())
	if err != nil {
		if !errors.Is(err, store.ErrNoRows) {
			a.zaplog.Error("could not read scoring engine config", zap.Error(err))
		}
		// без регистрации доступа нет ни у кого
		return ErrInvalidCredentials
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) == 1
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}
