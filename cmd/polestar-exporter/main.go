package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
	"k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/polestar-exporter/cmd/polestar-exporter/app"
)

func main() {
	ctx := server.SetupSignalContext()
	if err := app.NewExporterCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
