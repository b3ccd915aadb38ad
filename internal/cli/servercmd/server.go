package servercmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/openroster/roster/internal/auth/rbac"
	"github.com/openroster/roster/internal/auth/token"
	"github.com/openroster/roster/internal/cli/common"
	"github.com/openroster/roster/internal/db"
	messaginggorm "github.com/openroster/roster/internal/infra/persistence/gorm/messaging"
	schedulesgorm "github.com/openroster/roster/internal/infra/persistence/gorm/schedules"
	tasksgorm "github.com/openroster/roster/internal/infra/persistence/gorm/tasks"
	usersgorm "github.com/openroster/roster/internal/infra/persistence/gorm/users"
	"github.com/openroster/roster/internal/objstore"
	httpserver "github.com/openroster/roster/internal/server/http"
)

// New returns the `roster server` command.
func New() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the roster API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := common.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			_ = v.BindPFlags(cmd.Flags())

			common.SetupLoggerWithFile(
				v.GetString("log.level"), v.GetString("log.format"), v.GetString("log.file"),
				v.GetInt("log.max_size"), v.GetInt("log.max_backups"), v.GetInt("log.max_age"),
				v.GetBool("log.compress"))

			if err := common.ValidateServerConfig(v); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}

			gdb, err := db.Open(v.GetString("db.dsn"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			if err := migrate(gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			ctx := context.Background()
			files, err := objstore.New(ctx, objstore.Config{
				Driver:         v.GetString("files.driver"),
				BaseDir:        v.GetString("files.base_dir"),
				Bucket:         v.GetString("files.bucket"),
				Region:         v.GetString("files.region"),
				Endpoint:       v.GetString("files.endpoint"),
				ForcePathStyle: v.GetBool("files.force_path_style"),
			})
			if err != nil {
				return fmt.Errorf("open file store: %w", err)
			}

			jwtMgr := token.NewManager(v.GetString("jwt.secret"), v.GetDuration("jwt.ttl"))

			policy, err := loadPolicy(v)
			if err != nil {
				return fmt.Errorf("load rbac policy: %w", err)
			}

			srv := httpserver.NewServer(httpserver.Config{Addr: v.GetString("addr")}, gdb, files, jwtMgr, policy)

			errc := make(chan error, 1)
			go func() { errc <- srv.Run() }()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errc:
				return err
			case sig := <-stop:
				slog.Info("shutting down", "signal", sig.String())
				sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(sctx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
				return <-errc
			}
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	cmd.Flags().String("addr", ":8080", "http listen address")
	cmd.Flags().String("db.dsn", "", "database dsn (postgres:// or sqlite path; empty for the default sqlite file)")
	cmd.Flags().String("jwt.secret", "", "jwt hs256 secret")
	cmd.Flags().String("log.level", "info", "log level: debug|info|warn|error")
	cmd.Flags().String("log.format", "console", "log format: console|json")
	return cmd
}

func migrate(gdb *gorm.DB) error {
	if err := usersgorm.AutoMigrate(gdb); err != nil {
		return err
	}
	if err := tasksgorm.AutoMigrate(gdb); err != nil {
		return err
	}
	if err := schedulesgorm.AutoMigrate(gdb); err != nil {
		return err
	}
	return messaginggorm.AutoMigrate(gdb)
}

func loadPolicy(v *viper.Viper) (rbac.Policy, error) {
	model, policy := v.GetString("rbac.model"), v.GetString("rbac.policy")
	if model != "" && policy != "" {
		return rbac.NewFromFiles(model, policy)
	}
	return rbac.NewDefault()
}
