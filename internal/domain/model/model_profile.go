package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	ProfileTriage = "triage"
	ProfileBuild  = "build"
	ProfileReview = "review"
)

// ModelProfile binds a profile name (triage/build/review) to a concrete model
// and its token prices. Prices are micro-dollars per token to avoid float
// drift in storage; 1 micro = $0.000001.
type ModelProfile struct {
	ID                     string
	Profile                string
	ModelName              string
	InputTokenPriceMicros  int64
	OutputTokenPriceMicros int64
	Active                 bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func NewModelProfile(profile, modelName string, inputPriceMicros, outputPriceMicros int64, active bool) *ModelProfile {
	now := time.Now()
	return &ModelProfile{
		ID:                     uuid.NewString(),
		Profile:                profile,
		ModelName:              modelName,
		InputTokenPriceMicros:  inputPriceMicros,
		OutputTokenPriceMicros: outputPriceMicros,
		Active:                 active,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// CostUSD prices a call, rounded to 6 decimal places.
func (m *ModelProfile) CostUSD(promptTokens, completionTokens int) float64 {
	micros := int64(promptTokens)*m.InputTokenPriceMicros + int64(completionTokens)*m.OutputTokenPriceMicros
	return math.Round(float64(micros)) / 1e6
}

// DefaultModelProfiles seeds the three stock profiles with unit prices, which
// matches the fast-mode estimate of one micro-dollar per token.
func DefaultModelProfiles() []*ModelProfile {
	return []*ModelProfile{
		NewModelProfile(ProfileTriage, "gpt-4o-mini", 1, 1, true),
		NewModelProfile(ProfileBuild, "gpt-4.1", 1, 1, true),
		NewModelProfile(ProfileReview, "gpt-4.1-mini", 1, 1, true),
	}
}
