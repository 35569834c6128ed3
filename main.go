package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"basebuzz/auth"
	"basebuzz/cache"
	"basebuzz/crud"
	"basebuzz/http"
	"basebuzz/logger"
	"basebuzz/storage"
)

// main is the app's entry point.
func main() {
	// Check if the flag "-prod" has been provided. It means that we're running in production.
	prod := flag.Bool("prod", false, "Provide this flag in production to ensure that a .config.json file is provided before the application starts.")
	configDir := flag.String("config", ".", "Directory holding the .config.json file.")
	flag.Parse()

	// Load configuration from .config.json and the environment. In production
	// the .config.json file is required and the app won't start without it.
	config, err := LoadConfig(*configDir, *prod)
	if err != nil {
		lg := logger.L()
		lg.Fatal().Err(err).Msg("err loading config")
	}
	logger.Init(config.Log)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

// run wires the app together and serves until ctx ends.
func run(ctx context.Context, config Config) error {
	log := logger.L()

	// Open a database connection.
	db, err := OpenDB(config.Database, config.IsProd())
	if err != nil {
		return err
	}
	defer CloseDB(db)

	// Connect to Redis if configured, otherwise keep nonces in memory and skip the count cache.
	var (
		counts cache.FollowerCounts = cache.NoopFollowerCounts{}
		nonces auth.NonceStore      = auth.NewMemoryNonceStore()
	)
	if config.Redis.Enabled() {
		client, err := cache.NewClient(ctx, config.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		counts = cache.NewRedisFollowerCounts(client)
		nonces = auth.NewRedisNonceStore(client)
		log.Info().Str("address", config.Redis.Address).Msg("redis connected")
	} else {
		log.Warn().Msg("redis not configured, nonces are kept in memory")
	}

	// Open the image storage.
	store, err := storage.New(ctx, config.Storage)
	if err != nil {
		return err
	}

	// Start the crud services and execute migrations.
	services, err := crud.NewServices(
		db,
		crud.WithUser(),
		crud.WithNotification(),
		crud.WithPost(),
		crud.WithFollow(counts),
		crud.WithLike(),
		crud.WithListing(),
		crud.WithImage(store),
	)
	if err != nil {
		return err
	}
	if err := services.AutoMigrate(); err != nil {
		return err
	}

	// Set up credential resolution and wallet connect.
	keys, err := auth.DeriveKeys(config.Secret)
	if err != nil {
		return err
	}
	walletCfg := config.Wallet.WithDefaults()
	tokens := auth.NewWalletTokens(keys.WalletToken, walletCfg.TokenTTL)
	sessions := auth.NewWalletSessions(keys.WalletSession, walletCfg.SessionTTL)
	providers := auth.NewProviderSessions(config.Provider)
	if !providers.Enabled() {
		log.Info().Msg("provider sessions disabled, no jwt secret configured")
	}
	resolver := auth.NewResolver(services.User, providers, tokens, sessions)
	connector := auth.NewConnector(walletCfg, services.User, nonces, tokens, sessions)

	// Set up a webserver.
	proxies, err := http.ParseTrustedProxies(config.HTTP.TrustedProxies)
	if err != nil {
		return err
	}
	server := http.NewServer(http.Config{
		IsProd:      config.IsProd(),
		ClientURL:   config.ClientURL,
		CSRFEnabled: config.CSRF.Enabled,
		CSRFKey:     keys.CSRF,
		RateLimit:   config.RateLimit,
		Proxies:     proxies,
	}, services, store, resolver, connector)

	// Serve the app.
	return server.Run(ctx, config.Port)
}
