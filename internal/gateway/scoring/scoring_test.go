package scoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/loanmanager/internal/gateway"
	"github.com/iurnickita/loanmanager/internal/gateway/scoring/config"
	"github.com/iurnickita/loanmanager/internal/model"
	"github.com/iurnickita/loanmanager/internal/store"
)

func newLocalClient(t *testing.T) Client {
	client, err := NewClient(context.Background(), config.Config{UseLocal: true}, store.NewMemStore(), zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestLocalScoreDeterministic(t *testing.T) {
	client := newLocalClient(t)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		token := uuid.NewString()
		first, err := client.GetScore(ctx, token)
		require.NoError(t, err)
		second, err := client.GetScore(ctx, token)
		require.NoError(t, err)

		require.Equal(t, first.Score, second.Score)
		require.True(t, first.LimitAmount.Equal(second.LimitAmount))
		require.Equal(t, first.Approved, second.Approved)
		require.Equal(t, model.ScoreStatusCompleted, first.Status)
		require.GreaterOrEqual(t, first.Score, localScoreMin)
		require.LessOrEqual(t, first.Score, localScoreMax)
	}
}

func TestLocalLimitTiers(t *testing.T) {
	tests := []struct {
		score int
		limit int64
	}{
		{300, 10_000},
		{579, 10_000},
		{580, 30_000},
		{699, 30_000},
		{700, 50_000},
		{850, 50_000},
	}
	for _, tt := range tests {
		require.Equal(t, tt.limit, localLimit(tt.score).IntPart(), "score %d", tt.score)
	}
}

func TestLocalRegisterPersists(t *testing.T) {
	configs := store.NewMemStore()
	client, err := NewClient(context.Background(), config.Config{UseLocal: true}, configs, zap.NewNop())
	require.NoError(t, err)

	registered, err := client.Register(context.Background(), model.ClientRegistration{
		URL: "http://127.0.0.1:8000/api/v1/transactions", Name: "Digital Lending Platform", Username: "admin", Password: "pwd123",
	})
	require.NoError(t, err)
	require.Equal(t, localClientID, registered.ClientID)
	require.NotEmpty(t, registered.Token)

	latest, err := configs.ScoringConfigGetLatest(context.Background())
	require.NoError(t, err)
	require.Equal(t, registered.Token, latest.Token)
}

// fakeEngine - скоринговый движок на httptest
type fakeEngine struct {
	srv       *httptest.Server
	initiates atomic.Int32
	scores    atomic.Int32
	gotToken  atomic.Value
}

func newFakeEngine(t *testing.T, initiate http.HandlerFunc) *fakeEngine {
	engine := &fakeEngine{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/client/createClient", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":7,"url":"http://lms","name":"lms","username":"admin","password":"pwd","token":"engine-client-token"}`))
	})
	mux.HandleFunc("GET /api/v1/scoring/initiateQueryScore/{number}", func(w http.ResponseWriter, r *http.Request) {
		engine.initiates.Add(1)
		engine.gotToken.Store(r.Header.Get(headerClientToken))
		initiate(w, r)
	})
	mux.HandleFunc("GET /api/v1/scoring/queryScore/{token}", func(w http.ResponseWriter, r *http.Request) {
		engine.scores.Add(1)
		w.Write([]byte(`{"id":9,"customerNumber":"234774784","status":"completed","approved":true,` +
			`"score":564,"limitAmount":30000,"exclusion":"No Exclusion","exclusionReason":"No Exclusion"}`))
	})
	engine.srv = httptest.NewServer(mux)
	t.Cleanup(engine.srv.Close)
	return engine
}

func TestLiveFlow(t *testing.T) {
	engine := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"live-token"}`))
	})
	ctx := context.Background()

	client, err := NewClient(ctx, config.Config{BaseURL: engine.srv.URL, Timeout: time.Second}, store.NewMemStore(), zap.NewNop())
	require.NoError(t, err)

	registered, err := client.Register(ctx, model.ClientRegistration{URL: "http://lms", Name: "lms", Username: "admin", Password: "pwd"})
	require.NoError(t, err)
	require.Equal(t, 7, registered.ClientID)

	token, err := client.InitiateScoring(ctx, "234774784")
	require.NoError(t, err)
	require.Equal(t, "live-token", token)
	require.Equal(t, "engine-client-token", engine.gotToken.Load())

	result, err := client.GetScore(ctx, token)
	require.NoError(t, err)
	require.Equal(t, model.ScoreStatusCompleted, result.Status)
	require.True(t, result.Approved)
	require.Equal(t, 564, result.Score)
	require.Equal(t, gateway.ModeLive, client.Mode())
}

func TestLiveTimeoutSwitchesToLocal(t *testing.T) {
	engine := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"token":"too-late"}`))
	})
	ctx := context.Background()

	configs := store.NewMemStore()
	_, err := configs.ScoringConfigPost(ctx, model.ScoringEngineConfig{ClientID: 7, Token: "engine-client-token"})
	require.NoError(t, err)

	client, err := NewClient(ctx, config.Config{BaseURL: engine.srv.URL, Timeout: 50 * time.Millisecond}, configs, zap.NewNop())
	require.NoError(t, err)

	// первый вызов: таймаут и локальный токен
	token, err := client.InitiateScoring(ctx, "234774784")
	require.NoError(t, err)
	require.NotEqual(t, "too-late", token)
	_, err = uuid.Parse(token)
	require.NoError(t, err)
	require.Equal(t, gateway.ModeLocal, client.Mode())

	// второй, несвязанный вызов сразу локальный
	result, err := client.GetScore(ctx, token)
	require.NoError(t, err)
	require.Equal(t, localGetScore(token), result)
	require.Equal(t, int32(1), engine.initiates.Load())
	require.Equal(t, int32(0), engine.scores.Load())
}

func TestLiveWithoutRegistrationFallsBack(t *testing.T) {
	engine := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"live-token"}`))
	})

	client, err := NewClient(context.Background(), config.Config{BaseURL: engine.srv.URL, Timeout: time.Second}, store.NewMemStore(), zap.NewNop())
	require.NoError(t, err)

	token, err := client.InitiateScoring(context.Background(), "234774784")
	require.NoError(t, err)
	require.NotEqual(t, "live-token", token)
	require.Equal(t, gateway.ModeLocal, client.Mode())
	require.Equal(t, int32(0), engine.initiates.Load())
}

func TestRegistrationReadOncePerInstance(t *testing.T) {
	engine := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"live-token"}`))
	})
	ctx := context.Background()
	configs := store.NewMemStore()
	cfg := config.Config{BaseURL: engine.srv.URL, Timeout: time.Second}

	_, err := configs.ScoringConfigPost(ctx, model.ScoringEngineConfig{Token: "old-token"})
	require.NoError(t, err)

	client, err := NewClient(ctx, cfg, configs, zap.NewNop())
	require.NoError(t, err)

	// новая регистрация через другой экземпляр
	other, err := NewClient(ctx, cfg, configs, zap.NewNop())
	require.NoError(t, err)
	_, err = other.Register(ctx, model.ClientRegistration{URL: "u", Name: "n", Username: "a", Password: "p"})
	require.NoError(t, err)

	_, err = client.InitiateScoring(ctx, "234774784")
	require.NoError(t, err)
	require.Equal(t, "old-token", engine.gotToken.Load())

	_, err = other.InitiateScoring(ctx, "234774784")
	require.NoError(t, err)
	require.Equal(t, "engine-client-token", engine.gotToken.Load())
}

func TestLiveEscapesPathValues(t *testing.T) {
	var gotNumber, gotToken, gotQueries string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/scoring/initiateQueryScore/{number}", func(w http.ResponseWriter, r *http.Request) {
		gotNumber = r.PathValue("number")
		gotQueries += r.URL.RawQuery
		w.Write([]byte(`{"token":"live-token"}`))
	})
	mux.HandleFunc("GET /api/v1/scoring/queryScore/{token}", func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.PathValue("token")
		gotQueries += r.URL.RawQuery
		w.Write([]byte(`{"status":"PENDING"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	configs := store.NewMemStore()
	_, err := configs.ScoringConfigPost(ctx, model.ScoringEngineConfig{ClientID: 7, Token: "engine-client-token"})
	require.NoError(t, err)
	client, err := NewClient(ctx, config.Config{BaseURL: srv.URL, Timeout: time.Second}, configs, zap.NewNop())
	require.NoError(t, err)

	_, err = client.InitiateScoring(ctx, "234774784?x=1")
	require.NoError(t, err)
	result, err := client.GetScore(ctx, "live token?y=2")
	require.NoError(t, err)

	require.Equal(t, "234774784?x=1", gotNumber)
	require.Equal(t, "live token?y=2", gotToken)
	require.Empty(t, gotQueries)
	require.Equal(t, model.ScoreStatusPending, result.Status)
	require.Equal(t, gateway.ModeLive, client.Mode())
}
