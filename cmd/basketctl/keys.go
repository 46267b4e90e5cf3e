package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/smartgrocer/basket-analytics-platform/internal/auth/apikey"
	"github.com/smartgrocer/basket-analytics-platform/pkg/config"
	"github.com/smartgrocer/basket-analytics-platform/pkg/logger"
	"github.com/smartgrocer/basket-analytics-platform/pkg/postgres"
	"github.com/spf13/cobra"
)

var (
	keysConfig   string
	keyName      string
	keyRateLimit int
	keyExpiresIn time.Duration

	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Manage gateway API keys in PostgreSQL",
	}
	keysCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print the raw key once",
		RunE:  runKeysCreate,
	}
	keysRevokeCmd = &cobra.Command{
		Use:   "revoke",
		Short: "Deactivate an API key by name",
		RunE:  runKeysRevoke,
	}
	keysListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all API keys",
		RunE:  runKeysList,
	}
)

func init() {
	keysCmd.PersistentFlags().StringVar(&keysConfig, "config", "configs/development.yaml", "path to config file")
	keysCreateCmd.Flags().StringVar(&keyName, "name", "", "unique key name (required)")
	keysCreateCmd.Flags().IntVar(&keyRateLimit, "rate-limit", 100, "requests per minute")
	keysCreateCmd.Flags().DurationVar(&keyExpiresIn, "expires-in", 0, "key lifetime, e.g. 720h; 0 means no expiry")
	keysCreateCmd.MarkFlagRequired("name")
	keysRevokeCmd.Flags().StringVar(&keyName, "name", "", "key name (required)")
	keysRevokeCmd.MarkFlagRequired("name")
	keysCmd.AddCommand(keysCreateCmd, keysRevokeCmd, keysListCmd)
	rootCmd.AddCommand(keysCmd)
}

// openValidator connects to the PostgreSQL instance from the config file and
// returns the key validator plus a close func for the connection pool.
func openValidator() (*apikey.Validator, func(), error) {
	logger.Setup("warn", "text")

	cfg, err := config.Load(keysConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return apikey.NewValidator(db), func() { db.Close() }, nil
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	validator, closeDB, err := openValidator()
	if err != nil {
		return err
	}
	defer closeDB()

	var expiresAt *time.Time
	if keyExpiresIn > 0 {
		t := time.Now().UTC().Add(keyExpiresIn)
		expiresAt = &t
	}
	rawKey, err := validator.CreateKey(cmd.Context(), keyName, keyRateLimit, expiresAt)
	if err != nil {
		return err
	}

	fmt.Printf("created key %q\n%s\n", keyName, rawKey)
	fmt.Fprintln(os.Stderr, "store this key now; only its hash is kept")
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	validator, closeDB, err := openValidator()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := validator.RevokeKey(cmd.Context(), keyName); err != nil {
		return err
	}
	fmt.Printf("revoked key %q\n", keyName)
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	validator, closeDB, err := openValidator()
	if err != nil {
		return err
	}
	defer closeDB()

	keys, err := validator.ListKeys(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRATE/MIN\tACTIVE\tCREATED\tEXPIRES")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%d\t%t\t%s\t%s\n",
			k.Name, k.RateLimit, k.IsActive, k.CreatedAt.Format(time.RFC3339), expires)
	}
	return w.Flush()
}
