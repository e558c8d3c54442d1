package main

import (
	"context"
	"errors"
	"sync"

	"github.com/ASHISH26940/manim-studio/pkg/config"
	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/ASHISH26940/manim-studio/pkg/db/queries"
	"github.com/ASHISH26940/manim-studio/pkg/pipeline"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// cliStore is the part of the record store the commands touch.
type cliStore interface {
	pipeline.Store
	FindUserByEmail(ctx context.Context, email string) (*db.User, error)
	SetUserGenerations(ctx context.Context, id uuid.UUID, remaining int) error
	FindAnimationsByUserID(ctx context.Context, userID uuid.UUID) ([]db.Animation, error)
}

type commandContext struct {
	storeOnce sync.Once
	store     cliStore
	storeErr  error

	// openStore and migrate are replaced in tests.
	openStore func() (cliStore, error)
	migrate   func(ctx context.Context) error
}

func newCommandContext() *commandContext {
	c := &commandContext{}
	c.openStore = c.openPostgres
	c.migrate = c.migratePostgres
	return c
}

func (c *commandContext) ensureStore() (cliStore, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.openStore()
	})
	return c.store, c.storeErr
}

func (c *commandContext) openPostgres() (cliStore, error) {
	if err := c.connect(); err != nil {
		return nil, err
	}
	return queries.New(db.DB), nil
}

func (c *commandContext) migratePostgres(ctx context.Context) error {
	if err := c.connect(); err != nil {
		return err
	}
	return db.Migrate(ctx, db.DB)
}

func (c *commandContext) connect() error {
	if db.DB != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}
	cfg := config.FromEnv()
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if cfg.DatabaseURL == "memory" {
		return errors.New("manimctl needs a PostgreSQL DATABASE_URL")
	}
	return db.InitDB(cfg.DatabaseURL)
}
