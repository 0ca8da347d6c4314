// Command ledgerctl runs operator tasks against a ledger deployment.
package main

import (
	"github.com/alecthomas/kong"
)

var version = "dev"

type Globals struct {
	LogFormat string `help:"Log output format (pretty or json)." env:"LOG_FORMAT" default:"pretty"`
	RedisAddr string `help:"Redis address of the job queue." env:"REDIS_ADDR" default:"127.0.0.1:6379"`
}

type CLI struct {
	Globals

	SeedAccounts   SeedAccountsCmd   `cmd:"" name:"seed-accounts" help:"Apply a chart-of-accounts template to a tenant."`
	Token          TokenCmd          `cmd:"" help:"Issue a bearer token for a tenant user."`
	CheckIntegrity CheckIntegrityCmd `cmd:"" name:"check-integrity" help:"Compare running balances with ledger totals."`
	Jobs           JobsCmd           `cmd:"" help:"Enqueue background jobs."`
	Version        kong.VersionFlag  `help:"Print version."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ledgerctl"),
		kong.Description("Odyssey ledger operator tool."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
