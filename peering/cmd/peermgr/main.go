// Copyright 2025 The peermgr authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command peermgr runs the BGP peering manager service and its operator
// tooling.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/peermgr/peermgr/peering/config"
	"github.com/peermgr/peermgr/peering/configgen"
	"github.com/peermgr/peermgr/peering/device"
	"github.com/peermgr/peermgr/peering/mgmtapi"
	"github.com/peermgr/peermgr/peering/reconciler"
	"github.com/peermgr/peermgr/peeringdb"
	"github.com/peermgr/peermgr/pkg/log"
	"github.com/peermgr/peermgr/private/periodic"
	"github.com/peermgr/peermgr/private/storage/sqlite"
)

func main() {
	root := &cobra.Command{
		Use:           "peermgr",
		Short:         "BGP peering manager",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(
		newRunCmd(),
		newSampleCmd(),
		newPeersCmd(),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the peering manager service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "peermgr.toml",
		"Path of the configuration file")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := log.Setup(cfg.Logging); err != nil {
		return err
	}
	defer log.Flush()
	logger := log.Root()

	db, err := sqlite.New(cfg.DB.Connection)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := peeringdb.NewClient(peeringdb.Config{
		BaseURL:  cfg.PeeringDB.BaseURL,
		APIKey:   cfg.PeeringDB.APIKey,
		CacheTTL: cfg.PeeringDB.CacheTTL.Duration(),
	})
	gateway := device.NewGateway(cfg.Peering.DeviceTimeout.Duration(),
		device.Auth{
			Username:       cfg.Peering.SSH.Username,
			Password:       cfg.Peering.SSH.Password,
			PrivateKeyFile: cfg.Peering.SSH.PrivateKeyFile,
		})
	rec := reconciler.New(db, registry, gateway, cfg.Peering.ASN)
	gen := configgen.NewGenerator(db, gateway, cfg.Peering.ASN)
	api := mgmtapi.New(db, rec, gen, cfg.API.Token, cfg.API.AllowedOrigins)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if interval := cfg.Peering.PollInterval.Duration(); interval > 0 {
		runner := periodic.Start(
			&reconciler.PollTask{Reconciler: rec},
			periodic.NewTicker(interval), interval)
		defer runner.Kill()
	}
	if interval := cfg.Peering.SyncInterval.Duration(); interval > 0 {
		runner := periodic.Start(
			&reconciler.SyncTask{Reconciler: rec},
			periodic.NewTicker(interval), 10*time.Minute)
		defer runner.Kill()
	}

	server := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: api.Handler(),
	}
	g, errCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer log.HandlePanic()
		logger.Info("Management API listening", "addr", cfg.API.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer log.HandlePanic()
		<-errCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newSampleCmd() *cobra.Command {
	sample := &cobra.Command{
		Use:   "sample",
		Short: "Display sample files",
	}
	sample.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Display a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.WriteSample(cmd.OutOrStdout())
		},
	})
	return sample
}

func newPeersCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "peers <exchange-id>",
		Short: "List the registry peers available at an exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exchangeID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}
			return listPeers(cmd, configPath, exchangeID)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "peermgr.toml",
		"Path of the configuration file")
	return cmd
}

func listPeers(cmd *cobra.Command, configPath string, exchangeID int64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := sqlite.New(cfg.DB.Connection)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := peeringdb.NewClient(peeringdb.Config{
		BaseURL:  cfg.PeeringDB.BaseURL,
		APIKey:   cfg.PeeringDB.APIKey,
		CacheTTL: cfg.PeeringDB.CacheTTL.Duration(),
	})
	rec := reconciler.New(db, registry, nil, cfg.Peering.ASN)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	records, err := rec.AvailablePeers(ctx, exchangeID)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ASN", "Name", "IPv4", "IPv6", "Route Server"})
	for _, record := range records {
		table.Append([]string{
			record.NetworkIXLAN.ASN.String(),
			record.Network.Name,
			record.NetworkIXLAN.IPAddr4,
			record.NetworkIXLAN.IPAddr6,
			strconv.FormatBool(record.NetworkIXLAN.IsRSPeer),
		})
	}
	table.Render()
	return nil
}
