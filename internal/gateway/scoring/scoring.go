// Package scoring - шлюз к скоринговому движку.
//
// Скоринг асинхронный: InitiateScoring выдает токен, по которому GetScore
// опрашивается до готовности результата.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/loanmanager/internal/gateway"
	"github.com/iurnickita/loanmanager/internal/gateway/scoring/config"
	"github.com/iurnickita/loanmanager/internal/model"
	"github.com/iurnickita/loanmanager/internal/store"
)

type Client interface {
	Register(ctx context.Context, registration model.ClientRegistration) (model.ScoringEngineConfig, error)
	InitiateScoring(ctx context.Context, customer string) (string, error)
	GetScore(ctx context.Context, token string) (model.ScoreResult, error)
	Mode() gateway.Mode
}

// ConfigStore - хранение регистраций в скоринговом движке
type ConfigStore interface {
	ScoringConfigPost(ctx context.Context, cfg model.ScoringEngineConfig) (model.ScoringEngineConfig, error)
	ScoringConfigGetLatest(ctx context.Context) (model.ScoringEngineConfig, error)
}

var ErrNotRegistered = errors.New("no scoring configuration found")

const headerClientToken = "client-token"

type client struct {
	sw      *gateway.Switch
	rest    *resty.Client
	configs ConfigStore

	mu         sync.RWMutex
	registered *model.ScoringEngineConfig
}

// NewClient читает актуальную регистрацию один раз.
// Регистрации, сделанные другими экземплярами позже, этот экземпляр не видит.
func NewClient(ctx context.Context, cfg config.Config, configs ConfigStore, zaplog *zap.Logger) (Client, error) {
	mode := gateway.ModeLive
	if cfg.UseLocal {
		mode = gateway.ModeLocal
	}

	c := &client{
		sw: gateway.NewSwitch("scoring", mode, zaplog),
		rest: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout),
		configs: configs,
	}

	latest, err := configs.ScoringConfigGetLatest(ctx)
	switch {
	case err == nil:
		c.registered = &latest
	case errors.Is(err, store.ErrNoRows):
		// регистрации еще нет - это нормально
	default:
		return nil, err
	}

	return c, nil
}

func (c *client) Mode() gateway.Mode {
	return c.sw.Mode()
}

func (c *client) current() (model.ScoringEngineConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.registered == nil {
		return model.ScoringEngineConfig{}, false
	}
	return *c.registered, true
}

// Register регистрирует сервис в скоринговом движке и сохраняет регистрацию как актуальную.
func (c *client) Register(ctx context.Context, registration model.ClientRegistration) (model.ScoringEngineConfig, error) {
	engineCfg, err := gateway.Call(ctx, c.sw, "Register",
		func(ctx context.Context) (model.ScoringEngineConfig, error) {
			return c.liveRegister(ctx, registration)
		},
		func(context.Context) (model.ScoringEngineConfig, error) {
			return localRegister(registration), nil
		})
	if err != nil {
		return model.ScoringEngineConfig{}, err
	}

	engineCfg, err = c.configs.ScoringConfigPost(ctx, engineCfg)
	if err != nil {
		return model.ScoringEngineConfig{}, err
	}

	c.mu.Lock()
	c.registered = &engineCfg
	c.mu.Unlock()

	return engineCfg, nil
}

func (c *client) InitiateScoring(ctx context.Context, customer string) (string, error) {
	return gateway.Call(ctx, c.sw, "InitiateScoring",
		func(ctx context.Context) (string, error) {
			return c.liveInitiateScoring(ctx, customer)
		},
		func(context.Context) (string, error) {
			return localInitiateScoring(), nil
		})
}

func (c *client) GetScore(ctx context.Context, token string) (model.ScoreResult, error) {
	return gateway.Call(ctx, c.sw, "GetScore",
		func(ctx context.Context) (model.ScoreResult, error) {
			return c.liveGetScore(ctx, token)
		},
		func(context.Context) (model.ScoreResult, error) {
			return localGetScore(token), nil
		})
}

// JSON запросы и ответы скорингового движка

type registerRequest struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerAnswer struct {
	ID       int    `json:"id"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

type tokenAnswer struct {
	Token string `json:"token"`
}

type scoreAnswer struct {
	ID              int             `json:"id"`
	CustomerNumber  string          `json:"customerNumber"`
	Status          string          `json:"status"`
	Approved        bool            `json:"approved"`
	Score           int             `json:"score"`
	LimitAmount     decimal.Decimal `json:"limitAmount"`
	Exclusion       string          `json:"exclusion"`
	ExclusionReason string          `json:"exclusionReason"`
}

func (c *client) send(req *resty.Request, method, path string) ([]byte, error) {
	req.Method = method
	req.URL = path
	resp, err := req.Send()
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return resp.Body(), nil
	default:
		return nil, fmt.Errorf("scoring request %s status: %d", path, resp.StatusCode())
	}
}

func (c *client) authorized(ctx context.Context) (*resty.Request, error) {
	engineCfg, ok := c.current()
	if !ok {
		return nil, ErrNotRegistered
	}
	return c.rest.R().
		SetContext(ctx).
		SetHeader(headerClientToken, engineCfg.Token), nil
}

func (c *client) liveRegister(ctx context.Context, registration model.ClientRegistration) (model.ScoringEngineConfig, error) {
	req := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(registerRequest{
			URL:      registration.URL,
			Name:     registration.Name,
			Username: registration.Username,
			Password: registration.Password,
		})
	body, err := c.send(req, http.MethodPost, "/api/v1/client/createClient")
	if err != nil {
		return model.ScoringEngineConfig{}, err
	}

	var answer registerAnswer
	if err = json.Unmarshal(body, &answer); err != nil {
		return model.ScoringEngineConfig{}, fmt.Errorf("%w: %v", gateway.ErrMalformedResponse, err)
	}
	if answer.Token == "" {
		return model.ScoringEngineConfig{}, fmt.Errorf("%w: empty client token", gateway.ErrMalformedResponse)
	}
	return model.ScoringEngineConfig{
		ClientID: answer.ID,
		URL:      answer.URL,
		Name:     answer.Name,
		Username: answer.Username,
		Password: answer.Password,
		Token:    answer.Token,
	}, nil
}

func (c *client) liveInitiateScoring(ctx context.Context, customer string) (string, error) {
	req, err := c.authorized(ctx)
	if err != nil {
		return "", err
	}
	req.SetPathParam("number", customer)
	body, err := c.send(req, http.MethodGet, "/api/v1/scoring/initiateQueryScore/{number}")
	if err != nil {
		return "", err
	}

	var answer tokenAnswer
	if err = json.Unmarshal(body, &answer); err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrMalformedResponse, err)
	}
	if answer.Token == "" {
		return "", fmt.Errorf("%w: empty scoring token", gateway.ErrMalformedResponse)
	}
	return answer.Token, nil
}

func (c *client) liveGetScore(ctx context.Context, token string) (model.ScoreResult, error) {
	req, err := c.authorized(ctx)
	if err != nil {
		return model.ScoreResult{}, err
	}
	req.SetPathParam("token", token)
	body, err := c.send(req, http.MethodGet, "/api/v1/scoring/queryScore/{token}")
	if err != nil {
		return model.ScoreResult{}, err
	}

	var answer scoreAnswer
	if err = json.Unmarshal(body, &answer); err != nil {
		return model.ScoreResult{}, fmt.Errorf("%w: %v", gateway.ErrMalformedResponse, err)
	}
	return model.ScoreResult{
		Status:          model.ScoreStatus(strings.ToUpper(answer.Status)),
		Approved:        answer.Approved,
		Score:           answer.Score,
		LimitAmount:     answer.LimitAmount,
		CustomerNumber:  answer.CustomerNumber,
		Exclusion:       answer.Exclusion,
		ExclusionReason: answer.ExclusionReason,
	}, nil
}
