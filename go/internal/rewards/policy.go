package rewards

import (
	"math"
	"time"

	"github.com/mcdev12/focushub/go/internal/models"
)

const (
	acceptedMessage = "Verified"
	deniedMessage   = "Not enough focus time"
)

// Policy decides how much of a session a participant must be present for
type Policy struct {
	// RequiredRatio is the share of the session duration that must be spent focusing
	RequiredRatio float64 `yaml:"required_ratio"`
}

func DefaultPolicy() Policy {
	return Policy{RequiredRatio: 0.9}
}

func (p Policy) ratio() float64 {
	if p.RequiredRatio <= 0 || p.RequiredRatio > 1 {
		return DefaultPolicy().RequiredRatio
	}
	return p.RequiredRatio
}

// Verify compares focused time with the session duration. Minutes are whole:
// required rounds up and present rounds to nearest.
func (p Policy) Verify(durationMinutes int, focused time.Duration) models.Verification {
	// tolerate float error so an exact product is not rounded up
	required := int(math.Ceil(float64(durationMinutes)*p.ratio() - 1e-9))
	if required < 1 {
		required = 1
	}
	present := int(math.Round(focused.Seconds() / 60))

	v := models.Verification{
		VerificationBreakdown: models.VerificationBreakdown{
			Present:    present,
			Required:   required,
			Percentage: present * 100 / required,
		},
		Accepted: present >= required,
	}
	if v.Accepted {
		v.Message = acceptedMessage
	} else {
		v.Message = deniedMessage
	}
	return v
}
