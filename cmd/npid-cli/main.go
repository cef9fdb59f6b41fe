package main

import (
	"context"
	"npid-bridge/cmd/npid-cli/commands"
	"npid-bridge/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "npid-cli")
	telemetry.InitSlog(false)
	commands.ExecuteContext(context.Background())
}
