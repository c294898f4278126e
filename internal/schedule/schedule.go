// Package schedule parses the cadence envelope used by the engine's
// recurring loops (trail decay, spawn-queue processing). A cadence is
// JSON with a kind, or a bare cron expression which is normalized
// into the cron kind.
package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

type Cadence struct {
	Kind       string `json:"kind"`        // "cron", "interval", "once"
	CronExpr   string `json:"cron_expr"`   // Cron expression (if kind=cron)
	IntervalMs int64  `json:"interval_ms"` // Interval in ms (if kind=interval)
	AtMs       int64  `json:"at_ms"`       // Unix ms timestamp (if kind=once)
}

func Parse(raw string) (*Cadence, error) {
	var c Cadence
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// NextRun computes the next firing time for a cadence, or nil when it
// will never fire again (exhausted one-shots, malformed input).
func NextRun(raw string) *time.Time {
	c, err := Parse(raw)
	if err != nil {
		return nil
	}

	var next time.Time
	now := time.Now()

	switch c.Kind {
	case "cron":
		nextTime, err := gronx.NextTick(c.CronExpr, false)
		if err != nil {
			return nil
		}
		next = nextTime
	case "interval":
		next = now.Add(time.Duration(c.IntervalMs) * time.Millisecond)
	case "once":
		t := time.UnixMilli(c.AtMs)
		if t.After(now) {
			next = t
		} else {
			return nil
		}
	default:
		return nil
	}

	return &next
}

// Normalize accepts either the JSON envelope or a bare cron
// expression and returns a validated JSON cadence.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	// Try parsing as JSON first
	var c Cadence
	if err := json.Unmarshal([]byte(raw), &c); err == nil && c.Kind != "" {
		switch c.Kind {
		case "cron":
			if !gronx.New().IsValid(c.CronExpr) {
				return "", fmt.Errorf("invalid cron expression: %s", c.CronExpr)
			}
		case "interval":
			if c.IntervalMs <= 0 {
				return "", fmt.Errorf("interval_ms must be positive")
			}
		case "once":
			if c.AtMs <= 0 {
				return "", fmt.Errorf("at_ms must be positive")
			}
		default:
			return "", fmt.Errorf("unknown cadence kind: %s", c.Kind)
		}
		return raw, nil
	}

	// Not JSON, try as a plain cron expression
	if !gronx.New().IsValid(raw) {
		return "", fmt.Errorf("invalid cadence: not valid JSON or cron expression: %s", raw)
	}

	wrapped := Cadence{Kind: "cron", CronExpr: raw}
	data, err := json.Marshal(wrapped)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
