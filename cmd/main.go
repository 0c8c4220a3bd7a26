package main

import (
	"fmt"
	"log"
	"os"

	"github.com/procurahub/procurement-service/internal/clock"
	"github.com/procurahub/procurement-service/internal/config"
	"github.com/procurahub/procurement-service/internal/db"
	"github.com/procurahub/procurement-service/internal/notification"
	"github.com/procurahub/procurement-service/internal/repository"
	"github.com/procurahub/procurement-service/internal/services"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "procurement-service",
		Short: "Procurement workflow engine: purchase requests, RFQs and quotations",
	}
	root.AddCommand(newMigrateCommand(), newSweepCommand(), newSuppliersCommand())
	return root
}

// newMigrateCommand применяет миграции базы данных.
func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(".")
			if err != nil {
				return fmt.Errorf("cannot load config: %w", err)
			}
			return runDBMigration(cfg.MigrationURL, cfg.PostgresConn)
		},
	}
}

// newSweepCommand однократно закрывает открытые RFQ с истекшим дедлайном.
func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close open RFQs whose deadline has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			defer env.close()

			closed, err := env.rfqs.CloseExpiredRFQs(cmd.Context())
			if err != nil {
				return err
			}
			env.logger.Printf("sweep finished, %d rfq(s) closed", closed)
			return nil
		},
	}
}

// newSuppliersCommand показывает справедливый порядок приглашения по категории.
func newSuppliersCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "suppliers <category>",
		Short: "Preview the fair invitation order for a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			defer env.close()

			suppliers, err := env.invitations.SelectSuppliers(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, supplier := range suppliers {
				last := "never"
				if supplier.LastInvitedAt != nil {
					last = supplier.LastInvitedAt.Format("2006-01-02 15:04")
				}
				fmt.Printf("%s\t%s\tinvited %d time(s), last %s\n",
					supplier.SupplierNumber, supplier.CompanyName, supplier.InvitationsSent, last)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum suppliers to select (0 uses the configured batch size)")
	return cmd
}

type environment struct {
	logger      *log.Logger
	close       func()
	rfqs        *services.RFQService
	requests    *services.RequestService
	quotations  *services.QuotationService
	invitations *services.InvitationService
}

// newEnvironment собирает сервисы поверх пула соединений и конфигурации.
func newEnvironment() (*environment, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}

	systemClock, err := clock.NewSystemClock(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	dbPool, err := db.InitDb(cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	logger := log.New(os.Stdout, "INFO: ", log.LstdFlags)
	notifier := notification.NewLogNotifier(logger)
	store := repository.NewPostgresStore(dbPool)

	invitations := services.NewInvitationService(store, systemClock, notifier, logger, cfg.InvitationBatchSize)
	requests := services.NewRequestService(store, systemClock, notifier, logger, invitations, cfg.DefaultCurrency)
	rfqs := services.NewRFQService(store, systemClock, notifier, logger, invitations, cfg.DefaultCurrency)
	quotations := services.NewQuotationService(store, systemClock, notifier, logger, requests)

	return &environment{
		logger:      logger,
		close:       dbPool.Close,
		rfqs:        rfqs,
		requests:    requests,
		quotations:  quotations,
		invitations: invitations,
	}, nil
}

func runDBMigration(migrationURL string, dbSource string) error {
	migration, err := migrate.New(migrationURL, dbSource)
	if err != nil {
		return fmt.Errorf("cannot create a new migrate instance: %w", err)
	}

	if err = migration.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrate up: %w", err)
	}
	log.Println("db migrated successfully")
	return nil
}
