package main

import (
	"os"

	"github.com/PapiCZ/meowfs/config"
	"github.com/PapiCZ/meowfs/shell"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func main() {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:          "meowfs <volume>",
		Short:        "Interactive shell over a meowfs volume file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			host := afero.NewOsFs()

			cfg, err := config.Load(host, configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)

			st := shell.NewState(host, args[0], cfg)
			err = st.Open()
			if err != nil {
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					log.WithError(err).Error("closing volume")
				}
			}()

			if !st.Session.IsOpen() {
				log.Infof("%s does not exist yet, use format to create it", args[0])
			}

			shell.New(st).Run()

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	if err := cmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
