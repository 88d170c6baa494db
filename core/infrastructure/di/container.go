package di

import (
	"context"
	"fmt"

	"github.com/hyperterse/fanout/core/application/dispatcher"
	"github.com/hyperterse/fanout/core/application/registry"
	"github.com/hyperterse/fanout/core/application/schema"
	"github.com/hyperterse/fanout/core/application/services"
	"github.com/hyperterse/fanout/core/config"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/infrastructure/drivers"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
	"github.com/hyperterse/fanout/core/infrastructure/store"
	"github.com/hyperterse/fanout/core/shared/errors"
)

// Container holds all dependencies
type Container struct {
	Config     *config.Config
	Drivers    drivers.Set
	Store      interfaces.ProfileStore
	Registry   *registry.Registry
	Dispatcher *dispatcher.Dispatcher
	Comparator *schema.Comparator
	Engine     *services.Engine

	// Redis is set when profiles live in Redis; the HTTP rate limiter
	// shares it.
	Redis *store.RedisStore
}

// NewContainer wires the engine from cfg and restores persisted profiles.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := logging.New("di")
	c := &Container{Config: cfg, Drivers: drivers.NewSet()}

	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		c.Redis = rs
		c.Store = rs
		log.Debugf("Persisting connection profiles in redis")
	} else {
		path := cfg.ProfilesPath
		if path == "" {
			path = store.DefaultPath()
		}
		c.Store = store.NewFileStore(path)
		log.Debugf("Persisting connection profiles in %s", path)
	}

	c.Registry = registry.New(c.Drivers, registry.Options{PoolSize: cfg.PoolSize, Store: c.Store})
	if err := c.Registry.Restore(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.Dispatcher = dispatcher.New(c.Registry, dispatcher.Options{
		MaxConcurrency: cfg.MaxConcurrency,
		QueryTimeout:   cfg.QueryTimeout,
		MaxRows:        cfg.MaxRows,
	})

	cmp, err := schema.New(c.Registry, schema.Options{
		MaxConcurrency:  cfg.MaxConcurrency,
		DescribeTimeout: cfg.QueryTimeout,
		CacheTTL:        cfg.SchemaCacheTTL,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create schema comparator: %w", err)
	}
	c.Comparator = cmp

	c.Engine = services.NewEngine(c.Registry, c.Dispatcher, c.Comparator, services.EngineOptions{
		DispatchTimeout: cfg.DispatchTimeout,
	})
	return c, nil
}

// Close closes all resources
func (c *Container) Close() error {
	var errs []error
	switch {
	case c.Engine != nil:
		errs = append(errs, c.Engine.Close())
	case c.Registry != nil:
		errs = append(errs, c.Registry.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	return errors.Join(errs...)
}
