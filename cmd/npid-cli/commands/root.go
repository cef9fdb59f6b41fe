package commands

import (
	"context"
	"fmt"
	"os"

	"npid-bridge/lib/configutil"
	"npid-bridge/lib/cookiestore"
	"npid-bridge/lib/restyutil"
	"npid-bridge/lib/scrapers/npid"
	"npid-bridge/lib/serviceutil"
	"npid-bridge/lib/sqliteutil"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "npid-cli",
	Short: "npid-cli drives the recruiting dashboard from the terminal.",
}

var verbose *bool

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable raw HTTP transcript output.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type Config struct {
	BaseUrl string `json:"base_url"`
	// local file path or libsql:// url
	Database      string `json:"database"`
	DatabaseToken string `json:"database_token"`
}

// createClient builds an initialized session client. credentials come
// from the environment (NPID_EMAIL, NPID_PASSWORD, NPID_API_KEY), with
// the nearest .env file loaded first, the way the rest of the team
// tooling expects.
func createClient(ctx context.Context) (*npid.Client, cookiestore.Store) {
	configutil.LoadDotEnv()

	cfg, err := configutil.ReadRecursively[Config]("npid.json5")
	if err != nil {
		serviceutil.Fatal("failed to read npid.json5", err)
	}
	if *verbose {
		npid.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/npid-cli"))
	}

	db, err := sqliteutil.OpenDB(cookiestore.Schema, cfg.Database, cfg.DatabaseToken)
	if err != nil {
		serviceutil.Fatal("failed to open cookie database", err)
	}
	store := cookiestore.New(db)

	apiKey := os.Getenv("NPID_API_KEY")
	if apiKey == "" {
		apiKey, err = store.APIKey(ctx)
		if err != nil {
			serviceutil.Fatal("failed to read stored api key", err)
		}
	} else {
		err = store.SetAPIKey(ctx, apiKey)
		if err != nil {
			serviceutil.Fatal("failed to persist api key", err)
		}
	}

	client, err := npid.NewClient(ctx, npid.ClientOptions{
		BaseUrl:  cfg.BaseUrl,
		Email:    os.Getenv("NPID_EMAIL"),
		Password: os.Getenv("NPID_PASSWORD"),
		APIKey:   apiKey,
		Store:    store,
	})
	if err != nil {
		serviceutil.Fatal("failed to create client", err)
	}

	err = client.Initialize(ctx)
	if err != nil {
		serviceutil.Fatal("failed to establish dashboard session", err)
	}
	return client, store
}
