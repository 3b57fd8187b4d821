// Command vikarctl runs operator tasks against the marketplace database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/vikar-api/internal/repository"
	"github.com/noah-isme/vikar-api/internal/service"
	"github.com/noah-isme/vikar-api/pkg/config"
	"github.com/noah-isme/vikar-api/pkg/database"
	"github.com/noah-isme/vikar-api/pkg/logger"
)

// App holds the dependencies shared by every command.
type App struct {
	cfg    *config.Config
	db     *sqlx.DB
	logger *zap.Logger
}

func main() {
	app := &App{}
	rootCmd := &cobra.Command{
		Use:           "vikarctl",
		Short:         "Vikar marketplace operator CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	rootCmd.AddCommand(completeShiftsCmd(func() shiftCompleter {
		return service.NewShiftService(service.ShiftServiceDeps{
			Shifts: repository.NewShiftRepository(app.db),
			Logger: app.logger,
		})
	}))
	rootCmd.AddCommand(createUserCmd(func() userCreator {
		return repository.NewUserRepository(app.db)
	}))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *App) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	if a.logger, err = logger.New(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if a.db, err = database.NewPostgres(cfg.Database); err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	return nil
}

func (a *App) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
