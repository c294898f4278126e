package schedule

import (
	"strconv"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	c, err := Parse(`{"kind":"cron","cron_expr":"*/5 * * * *"}`)
	if err != nil {
		t.Fatalf("parse cron cadence: %v", err)
	}
	if c.Kind != "cron" || c.CronExpr != "*/5 * * * *" {
		t.Errorf("unexpected cadence: %+v", c)
	}

	c, err = Parse(`{"kind":"interval","interval_ms":60000}`)
	if err != nil {
		t.Fatalf("parse interval cadence: %v", err)
	}
	if c.Kind != "interval" || c.IntervalMs != 60000 {
		t.Errorf("unexpected cadence: %+v", c)
	}

	if _, err := Parse(`not json`); err == nil {
		t.Error("expected error for malformed cadence")
	}
}

func TestNextRunInterval(t *testing.T) {
	next := NextRun(`{"kind":"interval","interval_ms":60000}`)
	if next == nil {
		t.Fatal("expected a next run time")
	}
	until := time.Until(*next)
	if until < 59*time.Second || until > 61*time.Second {
		t.Errorf("expected next run ~60s out, got %v", until)
	}
}

func TestNextRunCron(t *testing.T) {
	next := NextRun(`{"kind":"cron","cron_expr":"* * * * *"}`)
	if next == nil {
		t.Fatal("expected a next run time")
	}
	if !next.After(time.Now()) {
		t.Errorf("expected next run in the future, got %v", next)
	}
}

func TestNextRunOnce(t *testing.T) {
	future := time.Now().Add(time.Hour).UnixMilli()
	next := NextRun(`{"kind":"once","at_ms":` + strconv.FormatInt(future, 10) + `}`)
	if next == nil {
		t.Fatal("expected a next run time for a future one-shot")
	}
	if next.UnixMilli() != future {
		t.Errorf("expected %d, got %d", future, next.UnixMilli())
	}

	past := time.Now().Add(-time.Hour).UnixMilli()
	if next := NextRun(`{"kind":"once","at_ms":` + strconv.FormatInt(past, 10) + `}`); next != nil {
		t.Errorf("exhausted one-shot must not fire again, got %v", next)
	}
}

func TestNextRunInvalid(t *testing.T) {
	for _, raw := range []string{
		`garbage`,
		`{"kind":"lunar"}`,
		`{"kind":"cron","cron_expr":"not a cron"}`,
	} {
		if next := NextRun(raw); next != nil {
			t.Errorf("expected nil for %q, got %v", raw, next)
		}
	}
}

func TestNormalizeJSON(t *testing.T) {
	raw := `{"kind":"interval","interval_ms":5000}`
	got, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != raw {
		t.Errorf("valid JSON cadence should pass through, got %s", got)
	}

	if _, err := Normalize(`{"kind":"interval","interval_ms":0}`); err == nil {
		t.Error("expected error for non-positive interval")
	}
	if _, err := Normalize(`{"kind":"once","at_ms":-5}`); err == nil {
		t.Error("expected error for non-positive at_ms")
	}
	if _, err := Normalize(`{"kind":"cron","cron_expr":"bad"}`); err == nil {
		t.Error("expected error for invalid cron expression")
	}
	if _, err := Normalize(`{"kind":"lunar"}`); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestNormalizeBareCron(t *testing.T) {
	got, err := Normalize("*/10 * * * *")
	if err != nil {
		t.Fatalf("normalize bare cron: %v", err)
	}
	c, err := Parse(got)
	if err != nil {
		t.Fatalf("parse normalized cadence: %v", err)
	}
	if c.Kind != "cron" || c.CronExpr != "*/10 * * * *" {
		t.Errorf("unexpected wrapped cadence: %+v", c)
	}

	if _, err := Normalize("definitely not a cadence"); err == nil {
		t.Error("expected error for unparseable input")
	}
}
