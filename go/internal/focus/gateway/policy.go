package gateway

// TimerPolicy bounds the durations a room timer may be started with, in minutes
type TimerPolicy struct {
	DefaultMinutes int `yaml:"default_minutes"`
	MinMinutes     int `yaml:"min_minutes"`
	MaxMinutes     int `yaml:"max_minutes"`
}

func DefaultTimerPolicy() TimerPolicy {
	return TimerPolicy{
		DefaultMinutes: 25,
		MinMinutes:     1,
		MaxMinutes:     180,
	}
}

func (p TimerPolicy) normalized() TimerPolicy {
	def := DefaultTimerPolicy()
	if p.MinMinutes <= 0 {
		p.MinMinutes = def.MinMinutes
	}
	if p.MaxMinutes < p.MinMinutes {
		p.MaxMinutes = def.MaxMinutes
	}
	if p.DefaultMinutes <= 0 {
		p.DefaultMinutes = def.DefaultMinutes
	}
	return p
}

// Clamp maps a requested duration into the allowed range; zero means default
func (p TimerPolicy) Clamp(minutes int) int {
	p = p.normalized()
	if minutes <= 0 {
		minutes = p.DefaultMinutes
	}
	if minutes < p.MinMinutes {
		return p.MinMinutes
	}
	if minutes > p.MaxMinutes {
		return p.MaxMinutes
	}
	return minutes
}
