package features

import (
	"math"
	"time"

	"github.com/kalambet/sentinel/internal/activity"
)

const secondsPerDay = 86400

func extractAccount(v Vector, snap *activity.AccountSnapshot, now time.Time) {
	age := 0.0
	if !snap.CreatedAt.IsZero() {
		age = math.Max(0, now.Sub(snap.CreatedAt).Seconds()/secondsPerDay)
	}
	total := float64(snap.LinkKarma + snap.CommentKarma)

	v.set(AccountAgeDays, age)
	v.set(TotalKarma, total)
	// Negative karma makes the ratio meaningless; clamp it into [0,1].
	v.set(PostKarmaRatio, clamp01(ratio(float64(snap.LinkKarma), total)))
	v.set(KarmaPerDay, total/math.Max(age, 1))
	v.set(IsVerifiedEmail, boolFeature(snap.VerifiedEmail))
	v.set(HasPremium, boolFeature(snap.Premium))
	v.set(TrophyCount, float64(snap.TrophyCount))
}

func clamp01(f float64) float64 {
	switch {
	case f < 0 || math.IsNaN(f):
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
