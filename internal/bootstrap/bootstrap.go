// Package bootstrap assembles the attendance service from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"smartscan/internal/apperr"
	"smartscan/internal/attendance"
	"smartscan/internal/config"
	"smartscan/internal/lock"
	"smartscan/internal/metrics"
	"smartscan/internal/roster"
	"smartscan/internal/schedule"
	"smartscan/internal/store"
)

const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// Components are the long-lived pieces shared by the API server and the CLI.
type Components struct {
	Config    config.App
	Location  *time.Location
	Timetable *schedule.Timetable
	Roster    *roster.Roster
	DB        *store.DB
	Redis     *store.Redis
	Metrics   *metrics.Metrics
	Service   *attendance.Service
}

// Build loads the timetable and roster, opens and migrates the database and wires the service.
// Every failure is a StartupError.
func Build(ctx context.Context, cfg config.App, log *zap.Logger) (*Components, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Components{Config: cfg, Metrics: metrics.New()}

	loc, err := cfg.Location()
	if err != nil {
		return nil, startup(err, "load timezone %q", cfg.Timezone)
	}
	c.Location = loc

	if c.Timetable, err = schedule.Load(cfg.TimetableFile); err != nil {
		return nil, startup(err, "load timetable")
	}

	if c.Roster, err = roster.Load(cfg.RosterFile); err != nil {
		return nil, startup(err, "load roster %s", cfg.RosterFile)
	}
	log.Info("roster loaded", zap.String("file", cfg.RosterFile), zap.Int("students", c.Roster.Len()))

	locker, err := c.openLocker(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if c.DB, err = store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL); err != nil {
		c.Close()
		return nil, startup(err, "open database")
	}
	if err := c.DB.Migrate(ctx); err != nil {
		c.Close()
		return nil, startup(err, "migrate database")
	}
	log.Info("database ready", zap.String("driver", c.DB.Driver))

	c.Service = attendance.NewService(
		attendance.NewRepository(c.DB.Client),
		schedule.NewResolver(c.Timetable, loc),
		c.Roster,
		attendance.WithDuplicateWindow(cfg.DuplicateWindow),
		attendance.WithLocker(locker),
		attendance.WithLogger(log.Named("attendance")),
		attendance.WithMetrics(c.Metrics),
	)
	return c, nil
}

func (c *Components) openLocker(ctx context.Context, cfg config.App, log *zap.Logger) (lock.Locker, error) {
	switch strings.ToLower(cfg.LockBackend) {
	case "", LockMemory:
		return lock.NewInMemory(), nil
	case LockRedis:
		r, err := store.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, startup(err, "connect redis")
		}
		c.Redis = r
		log.Info("redis submission lock enabled", zap.String("addr", cfg.RedisAddr))
		return lock.NewRedis(r.Client, "smartscan:lock:", 10*time.Second), nil
	default:
		return nil, startup(errors.New(cfg.LockBackend), "unsupported lock backend")
	}
}

// Close releases the database and redis handles.
func (c *Components) Close() {
	if c == nil {
		return
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
	_ = c.Redis.Close()
}

func startup(err error, format string, args ...any) error {
	return apperr.Wrap(err, apperr.ErrStartup, fmt.Sprintf(format, args...))
}
