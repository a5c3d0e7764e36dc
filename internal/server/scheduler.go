package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/hubscout/hubscout/config"
	"github.com/hubscout/hubscout/internal/store"
)

// Scheduler replans configured targets on their cron cadence. A redis
// SetNX lock keeps replicas from planning the same target twice.
type Scheduler struct {
	Cfg     *config.Config
	Service *PlannerService
	Store   *store.Store
	Rdb     *redis.Client
	Logger  *log.Logger
	Stop    chan struct{}
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	for _, target := range s.Cfg.Schedule.Targets {
		var last *time.Time
		if s.Store != nil {
			last, _ = s.Store.LatestRunTime(ctx, target.SiteURL)
		}
		if !isDue(target.Cron, last) {
			continue
		}
		if s.Rdb != nil {
			lockKey := "sched:lock:" + target.SiteURL
			ok, err := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if err != nil {
				s.Logger.Printf("warn: scheduler lock for %s failed: %v", target.SiteURL, err)
				continue
			}
			if !ok {
				continue
			}
		}
		go func(siteURL string) {
			if _, err := s.Service.PlanSite(ctx, siteURL, 0); err != nil {
				s.Logger.Printf("scheduled planning for %s failed: %v", siteURL, err)
				return
			}
			s.Logger.Printf("scheduled planning for %s completed", siteURL)
		}(target.SiteURL)
	}
}

// isDue determines whether a target with cronSpec should run now given
// its last run time. Supports "@daily", "@hourly" and standard 5-field
// cron expressions; an invalid expression degrades to @daily.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily", "":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		return !expr.Next(*last).After(now)
	}
}

// RedisClient builds the scheduler lock client, or nil when redis is
// not configured.
func RedisClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
