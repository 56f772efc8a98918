package main

import (
	"Go_Sentinel/config"
	"Go_Sentinel/internal/app"
	"Go_Sentinel/utils"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newApp() (*app.App, error) {
	config.InitConfig()
	return app.New(config.AppConfig)
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "enqueue",
		Short:         "Queue Sentinel datasets for download",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Queue every catalog dataset that has not been downloaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.Service.EnqueueCatalog(cmd.Context())
			if err != nil {
				return err
			}
			log.Infof("queued %d datasets", n)
			return nil
		},
	}

	var guid, title string
	datasetCmd := &cobra.Command{
		Use:   "dataset",
		Short: "Queue one dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			queued, err := a.Service.EnqueueDataset(cmd.Context(), guid, title)
			if err != nil {
				return err
			}
			if !queued {
				log.WithField("dataset_guid", guid).Info("already downloaded, nothing queued")
				return nil
			}
			log.WithField("dataset_guid", guid).Info("queued")
			return nil
		},
	}
	datasetCmd.Flags().StringVar(&guid, "guid", "", "dataset GUID")
	datasetCmd.Flags().StringVar(&title, "title", "", "dataset title")
	_ = datasetCmd.MarkFlagRequired("guid")
	_ = datasetCmd.MarkFlagRequired("title")

	hashCmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := utils.GetPwd(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	rootCmd.AddCommand(catalogCmd, datasetCmd, hashCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
