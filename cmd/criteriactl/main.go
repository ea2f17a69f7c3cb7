// Command criteriactl compiles criteria files to MongoDB filters and runs them.
package main

import (
	"github.com/nimburion/mongocriteria/pkg/cli"
	"github.com/nimburion/mongocriteria/pkg/config"
)

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{
		Name:        "criteriactl",
		Description: "Compile and run criteria queries against MongoDB",
		EnvPrefix:   config.DefaultEnvPrefix,
	}))
}
