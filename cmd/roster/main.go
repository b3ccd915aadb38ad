package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openroster/roster/internal/cli/common"
	"github.com/openroster/roster/internal/cli/seedcmd"
	"github.com/openroster/roster/internal/cli/servercmd"
)

func main() {
	root := &cobra.Command{Use: "roster", Short: "Roster unified CLI"}

	root.AddCommand(servercmd.New())
	root.AddCommand(seedcmd.New())

	// config test: validate and print the effective config
	cfgTest := &cobra.Command{Use: "config-test", Short: "Validate a server config file"}
	var cfgFile string
	cfgTest.Flags().StringVar(&cfgFile, "config", "", "config file path")
	cfgTest.RunE = func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			return fmt.Errorf("--config required")
		}
		v, err := common.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := common.ValidateServerConfig(v); err != nil {
			return err
		}
		out, err := yaml.Marshal(v.AllSettings())
		if err != nil {
			return err
		}
		fmt.Println("config OK")
		os.Stdout.Write(out)
		return nil
	}
	root.AddCommand(cfgTest)

	// completion
	comp := &cobra.Command{Use: "completion [bash|zsh|fish|powershell]", Short: "Generate shell completion"}
	comp.Run = func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			log.Fatalf("specify a shell: bash|zsh|fish|powershell")
		}
		switch args[0] {
		case "bash":
			root.GenBashCompletion(os.Stdout)
		case "zsh":
			root.GenZshCompletion(os.Stdout)
		case "fish":
			root.GenFishCompletion(os.Stdout, true)
		case "powershell":
			root.GenPowerShellCompletionWithDesc(os.Stdout)
		default:
			log.Fatalf("unknown shell: %s", args[0])
		}
	}
	root.AddCommand(comp)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
