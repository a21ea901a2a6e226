package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-ipn/core"
	ipnmigrations "github.com/goliatone/go-ipn/migrations"
	sqlstore "github.com/goliatone/go-ipn/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

type globalOptions struct {
	driver     string
	dsn        string
	configPath string
	jsonOut    bool
}

// NewRootCommand builds the ipn command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "ipn",
		Short:         "Operate the invoice notification delivery pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.driver, "driver", sqlstore.DriverSQLite, "database driver (sqlite3 or postgres)")
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "file:ipn.db", "database connection string")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON output")

	root.AddCommand(
		newMigrateCommand(opts),
		newEventsCommand(opts),
		newAttemptsCommand(opts),
		newWorkerCommand(opts),
	)
	return root
}

func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

type cliPersistenceConfig struct {
	driver string
	server string
}

func (c cliPersistenceConfig) GetDebug() bool                { return false }
func (c cliPersistenceConfig) GetDriver() string             { return c.driver }
func (c cliPersistenceConfig) GetServer() string             { return c.server }
func (c cliPersistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c cliPersistenceConfig) GetOtelIdentifier() string     { return "go-ipn-cli" }

func (o *globalOptions) normalizedDriver() (string, error) {
	switch strings.ToLower(strings.TrimSpace(o.driver)) {
	case sqlstore.DriverSQLite, ipnmigrations.DialectSQLite:
		return sqlstore.DriverSQLite, nil
	case sqlstore.DriverPostgres, "pg":
		return sqlstore.DriverPostgres, nil
	default:
		return "", fmt.Errorf("ipn: unsupported driver %q", o.driver)
	}
}

func (o *globalOptions) migrationDialect() (string, error) {
	driver, err := o.normalizedDriver()
	if err != nil {
		return "", err
	}
	return ipnmigrations.NormalizeDialect(driver)
}

func (o *globalOptions) openClient() (*persistence.Client, error) {
	driver, err := o.normalizedDriver()
	if err != nil {
		return nil, err
	}
	var db *bun.DB
	if driver == sqlstore.DriverPostgres {
		db, err = sqlstore.OpenPostgres(o.dsn)
	} else {
		db, err = sqlstore.OpenSQLite(o.dsn)
	}
	if err != nil {
		return nil, err
	}
	client, err := persistence.New(cliPersistenceConfig{driver: driver, server: o.dsn}, db.DB, db.Dialect())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ipn: persistence client: %w", err)
	}
	return client, nil
}

func (o *globalOptions) configProvider() (core.ConfigProvider, error) {
	raw, err := loadRawConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	return core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: raw}), nil
}

// loadRawConfig reads a YAML file into the raw map consumed by cfgx. An empty
// path yields an empty map.
func loadRawConfig(path string) (map[string]any, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ipn: read config: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ipn: parse config: %w", err)
	}
	return raw, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
