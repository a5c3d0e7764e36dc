package server

import (
	"testing"
	"time"

	"github.com/hubscout/hubscout/config"
)

func TestIsDueNeverRan(t *testing.T) {
	for _, spec := range []string{"@daily", "@hourly", "*/5 * * * *", "not a cron"} {
		if !isDue(spec, nil) {
			t.Fatalf("target with no prior run must be due (%q)", spec)
		}
	}
}

func TestIsDueDaily(t *testing.T) {
	recent := time.Now().Add(-time.Hour)
	if isDue("@daily", &recent) {
		t.Fatalf("daily target ran an hour ago, not due yet")
	}
	old := time.Now().Add(-25 * time.Hour)
	if !isDue("@daily", &old) {
		t.Fatalf("daily target ran 25h ago, must be due")
	}
}

func TestIsDueHourly(t *testing.T) {
	recent := time.Now().Add(-10 * time.Minute)
	if isDue("@hourly", &recent) {
		t.Fatalf("hourly target ran 10m ago, not due yet")
	}
	old := time.Now().Add(-2 * time.Hour)
	if !isDue("@hourly", &old) {
		t.Fatalf("hourly target ran 2h ago, must be due")
	}
}

func TestIsDueCronExpression(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	if !isDue("*/5 * * * *", &old) {
		t.Fatalf("every-5-minutes target ran an hour ago, must be due")
	}
	now := time.Now()
	if isDue("0 0 1 1 *", &now) {
		t.Fatalf("yearly target that just ran must not be due")
	}
}

func TestIsDueInvalidSpecFallsBackToDaily(t *testing.T) {
	recent := time.Now().Add(-time.Hour)
	if isDue("not a cron", &recent) {
		t.Fatalf("invalid spec degrades to daily cadence")
	}
}

func TestRedisClientDisabledWithoutAddr(t *testing.T) {
	if RedisClient(config.RedisConfig{}) != nil {
		t.Fatalf("no addr means no scheduler lock client")
	}
	if RedisClient(config.RedisConfig{Addr: "localhost:6379"}) == nil {
		t.Fatalf("configured addr must yield a client")
	}
}
