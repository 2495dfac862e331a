package scoring

import (
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iurnickita/loanmanager/internal/model"
)

// Локальный скоринг: балл вычисляется из токена, повторные опросы дают один и тот же результат.
const (
	localScoreMin     = 300
	localScoreMax     = 850
	localApproveScore = 500
	localClientID     = 1
	localExclusion    = "No Exclusion"
)

// Лимит по уровням балла
var localLimitTiers = []struct {
	below int
	limit decimal.Decimal
}{
	{580, decimal.NewFromInt(10_000)},
	{700, decimal.NewFromInt(30_000)},
	{localScoreMax + 1, decimal.NewFromInt(50_000)},
}

func localRegister(registration model.ClientRegistration) model.ScoringEngineConfig {
	return model.ScoringEngineConfig{
		ClientID: localClientID,
		URL:      registration.URL,
		Name:     registration.Name,
		Username: registration.Username,
		Password: registration.Password,
		Token:    uuid.NewString(),
	}
}

func localInitiateScoring() string {
	return uuid.NewString()
}

func localScore(token string) int {
	return localScoreMin + int(xxhash.Sum64String(token)%uint64(localScoreMax-localScoreMin+1))
}

func localLimit(score int) decimal.Decimal {
	for _, tier := range localLimitTiers {
		if score < tier.below {
			return tier.limit
		}
	}
	return localLimitTiers[len(localLimitTiers)-1].limit
}

func localGetScore(token string) model.ScoreResult {
	score := localScore(token)
	return model.ScoreResult{
		Status:          model.ScoreStatusCompleted,
		Approved:        score >= localApproveScore,
		Score:           score,
		LimitAmount:     localLimit(score),
		Exclusion:       localExclusion,
		ExclusionReason: localExclusion,
	}
}
