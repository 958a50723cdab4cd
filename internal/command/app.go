package command

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Skotchmaster/academy/internal/config"
	"github.com/Skotchmaster/academy/internal/db"
	"github.com/Skotchmaster/academy/internal/events"
	"github.com/Skotchmaster/academy/internal/hash"
	"github.com/Skotchmaster/academy/internal/logging"
	"github.com/Skotchmaster/academy/internal/principal"
	"github.com/Skotchmaster/academy/internal/repo"
	"github.com/Skotchmaster/academy/internal/service"
	"github.com/Skotchmaster/academy/internal/tokens"
)

// app holds the wired components shared by the sub-commands.
type app struct {
	cfg    config.Config
	db     *gorm.DB
	codec  *tokens.Codec
	events events.Publisher
	svc    *service.AuthService
}

// newApp opens and migrates the database, then wires the service. The caller
// owns the result and must Close it.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := config.NonEmpty(cfg.DatabaseURL, "DATABASE_URL"); err != nil {
		return nil, err
	}

	gdb, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, gdb); err != nil {
		_ = db.Close(gdb)
		return nil, err
	}

	store := repo.NewGormRepo(gdb)
	hasher := hash.Bcrypt{}
	codec := tokens.NewCodec(cfg.JWTSecret, cfg.AccessTokenTTL)
	pub := events.New(cfg.KafkaBrokers, cfg.KafkaTopic)

	svc := service.New(service.Deps{
		Resolver: principal.NewResolver(store, store, store, hasher),
		Codec:    codec,
		Refresh:  repo.NewRefreshStore(gdb, cfg.RefreshTokenTTL),
		Repo:     store,
		Hasher:   hasher,
		Events:   pub,
	})

	if err := svc.Bootstrap(ctx, service.BootstrapAdmin{
		Username: cfg.BootstrapAdminUsername,
		Email:    cfg.BootstrapAdminEmail,
		Password: cfg.BootstrapAdminPassword,
	}); err != nil {
		_ = pub.Close()
		_ = db.Close(gdb)
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	logging.FromContext(ctx).Debug("app_wired", "kafka_enabled", len(cfg.KafkaBrokers) > 0)
	return &app{cfg: cfg, db: gdb, codec: codec, events: pub, svc: svc}, nil
}

func (a *app) Close() error {
	return errors.Join(a.events.Close(), db.Close(a.db))
}
