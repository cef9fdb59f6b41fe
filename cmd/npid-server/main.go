package main

import (
	"flag"
	"log/slog"
	"os"

	"npid-bridge/lib/configutil"
	"npid-bridge/lib/cookiestore"
	"npid-bridge/lib/restyutil"
	"npid-bridge/lib/scrapers/npid"
	"npid-bridge/lib/serviceutil"
	"npid-bridge/lib/sqliteutil"
	"npid-bridge/lib/telemetry"
	"npid-bridge/services/videoapi"

	"github.com/mazen160/go-random"
)

type DashboardConfig struct {
	BaseUrl       string `json:"base_url"`
	Database      string `json:"database"`
	DatabaseToken string `json:"database_token"`
}

type Config struct {
	Port      int                  `json:"port"`
	Dashboard DashboardConfig      `json:"dashboard"`
	ApiToken  string               `json:"api_token"`
	Smtp      *videoapi.SmtpConfig `json:"smtp"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	err := telemetry.SetupFromEnv(ctx, "npid-server")
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without exporters", "err", err)
	}
	telemetry.InitSlog(*verbose)
	telemetry.InstrumentPerfStats(ctx)

	configutil.LoadDotEnv()
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8400
	}
	if *verbose {
		npid.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/npid-server"))
	}

	db, err := sqliteutil.OpenDB(cookiestore.Schema, cfg.Dashboard.Database, cfg.Dashboard.DatabaseToken)
	if err != nil {
		serviceutil.Fatal("open cookie database", err)
	}
	defer db.Close()
	store := cookiestore.New(db)

	apiKey := os.Getenv("NPID_API_KEY")
	if apiKey == "" {
		apiKey, err = store.APIKey(ctx)
		if err != nil {
			serviceutil.Fatal("read stored api key", err)
		}
	}

	client, err := npid.NewClient(ctx, npid.ClientOptions{
		BaseUrl:  cfg.Dashboard.BaseUrl,
		Email:    os.Getenv("NPID_EMAIL"),
		Password: os.Getenv("NPID_PASSWORD"),
		APIKey:   apiKey,
		Store:    store,
	})
	if err != nil {
		serviceutil.Fatal("create dashboard client", err)
	}
	err = client.Initialize(ctx)
	if err != nil {
		serviceutil.Fatal("establish dashboard session", err)
	}
	defer client.Close(ctx)

	accessToken := cfg.ApiToken
	if accessToken == "" {
		accessToken, err = random.String(32)
		if err != nil {
			serviceutil.Fatal("generate access token", err)
		}
		slog.Info("no api_token configured, generated one for this run", "token", accessToken)
	}

	var alerter *videoapi.Alerter
	if cfg.Smtp != nil {
		alerter = videoapi.NewAlerter(*cfg.Smtp)
	}

	service := videoapi.NewService(client, videoapi.Options{
		AccessToken: accessToken,
		Alerter:     alerter,
	})

	go serviceutil.StartHttpServer(cfg.Port, service.Router())
	<-ctx.Done()
}
