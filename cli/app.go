package cli

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/stevemurr/site-content-server/auth"
	"github.com/stevemurr/site-content-server/config"
	"github.com/stevemurr/site-content-server/content"
	"github.com/stevemurr/site-content-server/images"
	"github.com/stevemurr/site-content-server/notify"
	"github.com/stevemurr/site-content-server/payment"
	"github.com/stevemurr/site-content-server/store"
)

// app is every collaborator built from one configuration.
type app struct {
	kv       store.Store
	content  *content.Store
	auth     *auth.Service
	images   *images.Ingester
	notify   *notify.Service
	payments payment.Gateway
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	kv, err := store.New(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		DataDir:     cfg.DataDir,
		DatabaseURL: cfg.DatabaseURL,
		QuotaBytes:  cfg.StorageQuota,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s store", cfg.StoreBackend)
	}
	return kv, nil
}

func openContent(ctx context.Context, cfg config.Config, log *slog.Logger) (*content.Store, store.Store, error) {
	kv, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return content.New(kv, content.WithLogger(log)), kv, nil
}

func openApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	cs, kv, err := openContent(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{kv: kv, content: cs}

	a.auth, err = auth.New(kv, auth.Config{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
		TokenSecret:  cfg.Admin.TokenSecret,
		TokenTTL:     cfg.Admin.TokenTTL,
	})
	if err != nil {
		kv.Close()
		return nil, err
	}
	if cfg.Admin.PasswordHash == "" {
		log.Warn("ADMIN_PASSWORD_HASH not set, using the development login", "username", cfg.Admin.Username)
	}

	a.images, err = newIngester(ctx, cfg, kv, cs, log)
	if err != nil {
		kv.Close()
		return nil, err
	}

	var chat notify.Notifier
	if cfg.Telegram.Token != "" {
		tg, err := notify.DialTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			log.Warn("Telegram notifications disabled", "err", err)
		} else {
			chat = tg
		}
	}
	mailer := notify.NewRelayMailer(notify.RelayConfig{
		URL:       cfg.Email.RelayURL,
		ServiceID: cfg.Email.ServiceID,
		UserID:    cfg.Email.UserID,
	})
	if !mailer.Configured() {
		log.Info("Email relay not configured, forms return mailto links")
	}
	a.notify = notify.NewService(mailer, notify.Templates{
		Order:   cfg.Email.OrderTemplate,
		Booking: cfg.Email.BookingTemplate,
		To:      cfg.Email.RestaurantEmail,
	}, chat, log)

	if cfg.Payment.APIBaseURL != "" {
		a.payments = payment.NewHTTPGateway(cfg.Payment.APIBaseURL, cfg.Payment.PublicKey)
	} else {
		log.Info("Payment provider not configured, using the simulator")
		a.payments = payment.NewSimulator()
	}
	return a, nil
}

func newIngester(ctx context.Context, cfg config.Config, kv store.Store, cs *content.Store, log *slog.Logger) (*images.Ingester, error) {
	opts := []images.Option{images.WithInUse(cs.ImagesInUse), images.WithLogger(log)}
	switch cfg.Images.Storage {
	case "memory":
		opts = append(opts, images.WithBlobStore(images.NewMemoryBlobStore()))
	case "s3":
		s3cfg := cfg.Images.S3
		blobs, err := images.NewS3BlobStore(ctx, images.S3Config{
			Region:          s3cfg.Region,
			Bucket:          s3cfg.Bucket,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			Endpoint:        s3cfg.Endpoint,
			UsePathStyle:    s3cfg.UsePathStyle,
			PublicBaseURL:   s3cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, errors.Wrap(err, "could not configure s3 image storage")
		}
		opts = append(opts, images.WithBlobStore(blobs))
	}
	return images.NewIngester(kv, opts...), nil
}

func (a *app) Close() error { return a.kv.Close() }
