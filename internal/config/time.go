package config

import "time"

func CalculateMillisecondsOfCheckingPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

// TimerDuration converts a timer to a duration. A zero timer is a zero
// duration, unlike scheduling intervals which need a floor.
func TimerDuration(timer Timer) time.Duration {
	return time.Duration(CalculateMillisecondsOfCheckingPeriod(timer)) * time.Millisecond
}

func MillisecondsDuration(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// FreshProbeDelay is the pause between probes of a newly scraped candidate.
func FreshProbeDelay(cfg Config) time.Duration {
	return TimerDuration(cfg.Checker.FreshDelay)
}

// RevalidationProbeDelay is the pause between probes when a stored proxy is
// checked again.
func RevalidationProbeDelay(cfg Config) time.Duration {
	return TimerDuration(cfg.Checker.RevalidationDelay)
}

func ProbeTimeout(cfg Config) time.Duration {
	if cfg.Checker.Timeout == 0 {
		return 10 * time.Second
	}
	return MillisecondsDuration(cfg.Checker.Timeout)
}

func SourceTimeout(cfg Config) time.Duration {
	if cfg.Sources.Timeout == 0 {
		return 30 * time.Second
	}
	return MillisecondsDuration(cfg.Sources.Timeout)
}
