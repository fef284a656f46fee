package cli

import (
	"fmt"
	"path/filepath"

	"github.com/dl-alexandre/mirrorsync/internal/auth"
	"github.com/dl-alexandre/mirrorsync/internal/config"
	"github.com/dl-alexandre/mirrorsync/internal/engine"
	"github.com/dl-alexandre/mirrorsync/internal/engine/transfer"
	"github.com/dl-alexandre/mirrorsync/internal/exclude"
	"github.com/dl-alexandre/mirrorsync/internal/localfs"
	"github.com/dl-alexandre/mirrorsync/internal/remote"
	"github.com/dl-alexandre/mirrorsync/internal/store"
)

// openStore opens the per-account state database under the data directory.
func openStore() (*store.DB, error) {
	dataDir, err := config.GetDataDir()
	if err != nil {
		return nil, err
	}
	return store.Open(filepath.Join(dataDir, globalFlags.Account+".db"))
}

func buildMatcher() *exclude.Matcher {
	return exclude.New(cfg.ExcludePatterns)
}

func buildTokenProvider() *auth.OAuthProvider {
	storage := auth.NewTokenStorage()
	return auth.NewOAuthProvider(globalFlags.Account, oauthConfig(), storage)
}

func buildClient() (remote.Client, error) {
	if cfg.RemoteBaseURL == "" {
		return nil, fmt.Errorf("no remote base URL configured; set remoteBaseURL in %s or %sREMOTE_BASE_URL",
			config.ConfigFileName, config.EnvPrefix)
	}
	return remote.NewHTTPClient(remote.HTTPClientConfig{
		BaseURL:    cfg.RemoteBaseURL,
		Tokens:     buildTokenProvider(),
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.GetRetryBaseDelay(),
		Timeout:    cfg.GetRequestTimeout(),
		Logger:     logger,
	}), nil
}

// buildEngine wires a full engine for the selected account. The caller owns
// closing the returned store.
func buildEngine() (*engine.Engine, *store.DB, error) {
	if cfg.MirrorRoot == "" {
		return nil, nil, fmt.Errorf("no mirror root configured; set mirrorRoot in %s or %sMIRROR_ROOT",
			config.ConfigFileName, config.EnvPrefix)
	}

	client, err := buildClient()
	if err != nil {
		return nil, nil, err
	}
	fs, err := localfs.NewOSAdapter(cfg.MirrorRoot)
	if err != nil {
		return nil, nil, err
	}
	db, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	eng := engine.New(client, fs, db, nil, logger, engine.Options{
		AccountID: globalFlags.Account,
		Matcher:   buildMatcher(),
		Transfer: transfer.Options{
			Concurrency:    cfg.Concurrency,
			BatchSize:      cfg.BatchSize,
			ChunkThreshold: cfg.ChunkThreshold,
			ChunkSize:      cfg.ChunkSize,
		},
	})
	return eng, db, nil
}
