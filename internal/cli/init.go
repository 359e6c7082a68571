package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okral/overseer/internal/config"
	"github.com/okral/overseer/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize overseer in the current directory",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(overseerPath("logs"), 0o755); err != nil {
		return fmt.Errorf("create overseer dir: %w", err)
	}

	cfgPath := overseerPath("config.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.Save(cfgPath, config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("Created %s\n", cfgPath)
	} else {
		fmt.Printf("%s already exists, keeping it\n", cfgPath)
	}

	s, err := store.New(overseerPath("overseer.db"))
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("%soverseer initialized.%s Add a task: %soverseer task add <id> --repo <repo> --branch <branch>%s\n",
		colorGreen, colorReset, colorCyan, colorReset)
	return nil
}
