// Package app wires the configured backends into the services both binaries
// run.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"absen/internal/account"
	"absen/internal/captcha"
	"absen/internal/captcha/tesseract"
	"absen/internal/config"
	"absen/internal/credential"
	"absen/internal/notify"
	"absen/internal/portal"
	"absen/internal/queue"
	"absen/internal/scheduler"
	"absen/internal/snapshot"
	"absen/internal/store"
)

// Deps are the long-lived components built from configuration.
type Deps struct {
	Config    config.App
	Log       *zap.Logger
	DB        *store.DB
	Redis     *store.Redis
	Accounts  *credential.Store
	Snapshots snapshot.Store
	Queue     queue.Queue
	Sink      notify.Sink
	Portal    *portal.Client

	relay bool
}

// Build opens the stores, derives the credential key and assembles the portal
// client. Callers must Close the result.
func Build(ctx context.Context, cfg config.App, log *zap.Logger) (*Deps, error) {
	if err := cfg.RequireSecret(); err != nil {
		return nil, err
	}
	d := &Deps{Config: cfg, Log: log}

	sealer, err := credential.NewSealer(cfg.MasterSecret, []byte(cfg.KDFSalt))
	if err != nil {
		return nil, fmt.Errorf("credential key: %w", err)
	}

	// Redis carries snapshots in postgres mode and the redis queue.
	if cfg.StoreBackend == "postgres" || cfg.QueueBackend == "redis" {
		d.Redis = store.NewRedis(cfg.RedisAddr)
		if !d.Redis.Healthy(ctx) {
			log.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr))
		}
	}

	switch cfg.StoreBackend {
	case "memory":
		d.Accounts = credential.NewStore(credential.NewMemoryRepository(), sealer, log)
		d.Snapshots = snapshot.NewMemory()
		log.Warn("using in-memory account and snapshot storage; state is lost on exit")
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.DB = db
		if err := db.Migrate(ctx); err != nil {
			_ = d.Close()
			return nil, err
		}
		d.Accounts = credential.NewStore(credential.NewPostgresRepository(db.Client), sealer, log)
		d.Snapshots = snapshot.NewRedisStore(d.Redis.Client, "")
	}

	logSink := notify.NewLogSink(log)
	switch cfg.QueueBackend {
	case "memory":
		d.Queue = queue.NewInMemory(256)
		d.Sink = notify.NewQueueSink(d.Queue)
		d.relay = true
	default:
		d.Queue = queue.NewRedisQueue(d.Redis.Client, queue.DefaultKey)
		d.Sink = notify.Multi{logSink, notify.NewQueueSink(d.Queue)}
	}

	ocr, err := d.ocr(ctx)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Portal = portal.New(cfg.Portal(), captcha.NewSolver(ocr, log), log)
	return d, nil
}

func (d *Deps) ocr(ctx context.Context) (captcha.OCR, error) {
	switch d.Config.OCRBackend {
	case "remote":
		remote := captcha.NewRemoteOCR(d.Config.OCRServiceURL)
		if err := remote.Health(ctx); err != nil {
			d.Log.Warn("ocr service not available, logins will fail until it is", zap.Error(err))
		} else {
			d.Log.Info("ocr service connected", zap.String("url", d.Config.OCRServiceURL))
		}
		return remote, nil
	case "tesseract":
		return tesseract.New(), nil
	default:
		return nil, fmt.Errorf("unknown OCR backend %q", d.Config.OCRBackend)
	}
}

// Scheduler builds the sync scheduler.
func (d *Deps) Scheduler() *scheduler.Scheduler {
	return scheduler.New(d.Config.Scheduler(), d.Portal, d.Accounts, d.Snapshots, d.Sink, d.Log)
}

// AccountService builds the account management service.
func (d *Deps) AccountService() *account.Service {
	return account.NewService(d.Accounts, d.Portal, d.Snapshots, d.Sink, d.Log)
}

// RunRelay delivers queued notifications to the log when the queue lives in
// process. With a Redis queue another consumer owns delivery and RunRelay
// returns at once.
func (d *Deps) RunRelay(ctx context.Context) error {
	if !d.relay {
		return nil
	}
	return notify.Relay(ctx, d.Queue, notify.NewLogSink(d.Log), d.Log)
}

// Health reports backend reachability.
func (d *Deps) Health(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	if d.DB != nil {
		out["db"] = d.DB.Healthy(ctx)
	}
	if d.Redis != nil {
		out["redis"] = d.Redis.Healthy(ctx)
	}
	return out
}

// Close releases connections.
func (d *Deps) Close() error {
	var errs []error
	if d.DB != nil {
		errs = append(errs, d.DB.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	return errors.Join(errs...)
}
