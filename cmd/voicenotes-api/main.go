package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/ai"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/capture"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/config"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/database"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/pipeline"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/server"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "voicenotes-api",
		Short: "Voice notes capture and study assistant backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("store-driver", defaults.GetString("store.driver"), "Note store (sqlite, firestore)")
	cmd.PersistentFlags().String("ai-provider", defaults.GetString("ai.provider"), "AI provider (gemini, openai)")
	cmd.PersistentFlags().String("ai-model", defaults.GetString("ai.model"), "AI model name (provider default when empty)")
	cmd.PersistentFlags().String("audio-storage", defaults.GetString("audio.storage"), "Audio artifact storage (local, cloudinary)")
	cmd.PersistentFlags().String("audio-dir", defaults.GetString("audio.dir"), "Directory for locally stored audio")
	cmd.PersistentFlags().String("signing-secret", "", "TAuth session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "store.driver", "store-driver")
	bindFlag(cmd, "ai.provider", "ai-provider")
	bindFlag(cmd, "ai.model", "ai-model")
	bindFlag(cmd, "audio.storage", "audio-storage")
	bindFlag(cmd, "audio.dir", "audio-dir")
	bindFlag(cmd, "tauth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	relationalNotes := appConfig.StoreDriver == config.StoreSQLite
	db, err := database.OpenSQLite(appConfig.DatabasePath, relationalNotes, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var store notes.Store
	if relationalNotes {
		store, err = notes.NewService(notes.ServiceConfig{
			Database: db,
			Clock:    time.Now,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
	} else {
		var clientOptions []option.ClientOption
		if strings.TrimSpace(appConfig.FirestoreCredentialsFile) != "" {
			clientOptions = append(clientOptions, option.WithCredentialsFile(appConfig.FirestoreCredentialsFile))
		}
		client, err := firestore.NewClient(ctx, appConfig.FirestoreProjectID, clientOptions...)
		if err != nil {
			return err
		}
		defer client.Close()
		store, err = notes.NewFirestoreStore(notes.FirestoreStoreConfig{Client: client, Logger: logger})
		if err != nil {
			return err
		}
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
		Leeway:        30 * time.Second,
	})
	if err != nil {
		return err
	}

	owners, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	model, err := newModel(appConfig, logger)
	if err != nil {
		return err
	}
	gateway, err := ai.NewGateway(ai.GatewayConfig{
		Model:       model,
		CallTimeout: appConfig.AICallTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	processor, err := pipeline.New(pipeline.Config{Gateway: gateway, Logger: logger})
	if err != nil {
		return err
	}

	artifacts, localAudio, err := newArtifactStore(appConfig, logger)
	if err != nil {
		return err
	}
	captures, err := capture.NewManager(capture.ManagerConfig{
		Artifacts: artifacts,
		MaxBytes:  appConfig.AudioMaxBytes,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	dispatcher := server.NewRealtimeDispatcher()
	writer, err := notes.NewWriter(notes.WriterConfig{
		Store:      store,
		IDProvider: notes.NewUUIDProvider(),
		Artifacts:  artifacts,
		Notifier:   dispatcher,
		Logger:     logger,
		QueueSize:  appConfig.WriterQueueSize,
	})
	if err != nil {
		return err
	}
	writer.Start()
	defer writer.Close()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator:  sessionValidator,
		Owners:            owners,
		Processor:         processor,
		Writer:            writer,
		Reader:            store,
		Captures:          captures,
		Artifacts:         artifacts,
		Realtime:          dispatcher,
		LocalAudio:        localAudio,
		AllowedOrigins:    appConfig.CORSAllowedOrigins,
		HeartbeatInterval: appConfig.HeartbeatInterval,
		MaxAudioBytes:     appConfig.AudioMaxBytes,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("store", appConfig.StoreDriver),
			zap.String("ai_provider", appConfig.AIProvider),
			zap.String("audio_storage", appConfig.AudioStorage))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newModel(appConfig config.AppConfig, logger *zap.Logger) (ai.Model, error) {
	if appConfig.AIProvider == config.ProviderOpenAI {
		return ai.NewOpenAIModel(ai.OpenAIConfig{
			APIKey:  appConfig.AIAPIKey,
			Model:   appConfig.AIModel,
			BaseURL: appConfig.AIBaseURL,
			Logger:  logger,
		})
	}
	return ai.NewGeminiModel(ai.GeminiConfig{
		APIKey:  appConfig.AIAPIKey,
		Model:   appConfig.AIModel,
		BaseURL: appConfig.AIBaseURL,
		Logger:  logger,
	})
}

func newArtifactStore(appConfig config.AppConfig, logger *zap.Logger) (audio.ArtifactStore, server.LocalAudio, error) {
	if appConfig.AudioStorage == config.AudioStorageCloudinary {
		uploader, err := audio.NewCloudinaryUploader(appConfig.CloudinaryURL)
		if err != nil {
			return nil, server.LocalAudio{}, err
		}
		store, err := audio.NewCloudinaryStore(audio.CloudinaryStoreConfig{
			Uploader: uploader,
			Folder:   appConfig.CloudinaryFolder,
			Logger:   logger,
		})
		if err != nil {
			return nil, server.LocalAudio{}, err
		}
		return store, server.LocalAudio{}, nil
	}
	store, err := audio.NewLocalStore(audio.LocalStoreConfig{
		Dir:           appConfig.AudioDir,
		PublicBaseURL: appConfig.AudioPublicBaseURL,
		Logger:        logger,
	})
	if err != nil {
		return nil, server.LocalAudio{}, err
	}
	return store, server.LocalAudio{Dir: store.Dir(), BaseURL: store.BaseURL()}, nil
}
