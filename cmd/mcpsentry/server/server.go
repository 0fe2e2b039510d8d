package server

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mcpsentry/api/routes"
	"mcpsentry/internal/config"
	"mcpsentry/internal/dao"
	"mcpsentry/internal/database"
	"mcpsentry/internal/events"
	"mcpsentry/internal/notification"
	"mcpsentry/internal/services"
	"mcpsentry/pkg/detectors"
	"mcpsentry/pkg/llm"
	"mcpsentry/pkg/logger"
	"mcpsentry/pkg/registry"
)

type ServerOpts struct {
	Port int
	Ip   string
}

func NewServerCommand() *cobra.Command {
	ServerConfig := &ServerOpts{}

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the mcpsentry server",
		Long:  `Start the mcpsentry server to launch and inspect penetration-test runs via the HTTP API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			log := logger.NewLogger(logrus.InfoLevel)
			cfg := config.LoadConfig()
			database.InitDB(cfg)

			reg := registry.New()
			presets := registry.NewPresetCatalog()
			if cfg.PresetFile != "" {
				if err := presets.LoadPresetFile(cfg.PresetFile); err != nil {
					return fmt.Errorf("load preset file: %w", err)
				}
			}

			scanner := detectors.NewScanner()
			if cfg.PatternFile != "" {
				if err := scanner.WatchCustomFile(cmd.Context(), cfg.PatternFile); err != nil {
					log.WithError(err).Warn("Failed to watch sensitive pattern file")
				} else {
					log.Info("Custom sensitive patterns loaded", logger.Fields{"file": cfg.PatternFile})
				}
			}

			var llmClient llm.Client
			var llmModel string
			if cfg.LLM.Enabled() {
				client, err := llm.NewGenkitClient(context.Background(), llm.GenkitConfig{
					APIKey:     cfg.LLM.APIKey,
					FastModel:  cfg.LLM.FastModel,
					SmartModel: cfg.LLM.SmartModel,
				})
				if err != nil {
					return fmt.Errorf("initialize LLM client: %w", err)
				}
				llmClient = client
				_, llmModel = client.Models()
				log.Info("LLM-assisted planning enabled", logger.Fields{"model": llmModel})
			} else {
				log.Info("LLM_API_KEY not set - runs will use template mode only")
			}

			var notifier *notification.NotificationClient
			if cfg.Discord.Enabled() {
				var err error
				notifier, err = notification.NewNotificationClient(cfg.Discord)
				if err != nil {
					log.WithError(err).Warn("Failed to initialize Discord client")
				} else {
					defer notifier.Close()
					log.Info("Discord notifications enabled")
				}
			} else {
				log.Info("Discord credentials not set - notifications disabled")
			}

			hub := events.NewHub()
			go hub.Run()

			runService := services.NewRunService(services.Deps{
				Runs:              dao.NewRunDAO(database.DB),
				Results:           dao.NewResultDAO(database.DB),
				Stories:           dao.NewStoryDAO(database.DB),
				Briefings:         dao.NewBriefingDAO(database.DB),
				Registry:          reg,
				Presets:           presets,
				Scanner:           scanner,
				LLM:               llmClient,
				LLMProvider:       cfg.LLM.Provider,
				LLMModel:          llmModel,
				Events:            hub,
				Notifier:          notifier,
				MaxConcurrentRuns: cfg.MaxConcurrentRuns,
				AgentTokenBudget:  cfg.AgentTokenBudget,
			})

			router := routes.InitRouter(runService, reg, presets, hub)
			return router.Run(fmt.Sprintf("%s:%d", ServerConfig.Ip, ServerConfig.Port))
		},
	}

	serverCmd.Flags().IntVarP(&ServerConfig.Port, "port", "p", 8080, "Port to run the server on")
	serverCmd.Flags().StringVarP(&ServerConfig.Ip, "ip", "i", "0.0.0.0", "IP address to bind the server to")

	return serverCmd
}
