package main

import (
	"log"

	"github.com/alecthomas/kong"
)

// Globals — общие для всех команд флаги; перекрывают config.json, .env и окружение.
type Globals struct {
	Config string `help:"Path to config JSON" default:"config.json" type:"path"`
	DB     string `help:"Postgres URL (overrides dbUrl)" name:"db"`
	Schema string `help:"Postgres schema (overrides dbSchema)"`
}

var cli struct {
	Globals

	Serve ServeCmd `cmd:"" help:"Run the HTTP API"`
	Plan  PlanCmd  `cmd:"" help:"Show what a CSV file would change in a table"`
	Apply ApplyCmd `cmd:"" help:"Synchronise a table with a CSV file"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("tablesync"),
		kong.Description("Synchronise database tables with tabular files described by a mapping header."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		log.Fatalf("tablesync: %v", err)
	}
}
