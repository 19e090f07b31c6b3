// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/airseekers-community/device-connector-bridge/account"
	"github.com/airseekers-community/device-connector-bridge/auth"
	"github.com/airseekers-community/device-connector-bridge/discovery"
	"github.com/airseekers-community/device-connector-bridge/exchange"
	"github.com/airseekers-community/device-connector-bridge/middleware"
	"github.com/airseekers-community/device-connector-bridge/middleware/blocklist"
	"github.com/airseekers-community/device-connector-bridge/middleware/debug"
	"github.com/airseekers-community/device-connector-bridge/middleware/deduplicate"
	"github.com/airseekers-community/device-connector-bridge/status/statusserver"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"github.com/go-ble/ble/linux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	redis "gopkg.in/redis.v5"
)

// ConnectorCmd is the main command that is executed when running device-connector-bridge
var ConnectorCmd = &cobra.Command{
	Use:   "device-connector-bridge",
	Short: "The Airseekers device connector bridge",
	Long:  `device-connector-bridge bridges between the Airseekers cloud and local integrations`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var logHandlers []log.Handler

		logHandlers = append(logHandlers, cli.New(os.Stdout))

		if logFileLocation := config.GetString("log-file"); logFileLocation != "" {
			absLogFileLocation, err := filepath.Abs(logFileLocation)
			if err != nil {
				panic(err)
			}
			logFile, err = os.OpenFile(absLogFileLocation, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
			if err != nil {
				panic(err)
			}
			if err == nil {
				logHandlers = append(logHandlers, json.New(logFile))
			}
		}

		ctx = &log.Logger{
			Level:   logLevel(),
			Handler: multi.New(logHandlers...),
		}
	},
	Run: runConnector,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			time.Sleep(100 * time.Millisecond)
			logFile.Close()
		}
	},
}

func runConnector(cmd *cobra.Command, args []string) {
	email := config.GetString("email")
	password := config.GetString("password")
	if email == "" || password == "" {
		ctx.Fatal("No account email and password configured")
	}

	client := account.New(email, password, ctx)
	if server := config.GetString("account-server"); server != "" {
		client.SetServer(server)
	}

	bridge := exchange.New(client, ctx)

	// Set up Redis
	var watchedDeviceIDs []string
	var authBackend auth.Interface
	if config.GetBool("redis") {
		redis := redis.NewClient(&redis.Options{
			Addr:     config.GetString("redis-address"),
			Password: config.GetString("redis-password"),
			DB:       config.GetInt("redis-db"),
		})
		ctx.Info("Initializing Redis state backend")
		watchedDeviceIDs = bridge.InitRedisState(redis, "")
		ctx.Info("Initializing Redis auth backend")
		authBackend = auth.NewRedis(redis, "")
	} else {
		ctx.Info("Initializing Memory auth backend")
		authBackend = auth.NewMemory()
	}
	authBackend.SetExchanger(client)

	// Restore a persisted token pair and keep the store up to date
	if access, refresh, expires, err := authBackend.Tokens(email); err == nil {
		ctx.Info("Restoring persisted tokens")
		client.RestoreTokens(access, refresh, expires)
	}
	client.OnTokens(func(access, refresh string, expires time.Time) {
		if err := authBackend.SetTokens(email, access, refresh, expires); err != nil {
			ctx.WithError(err).Warn("Could not persist tokens")
		}
	})

	// Set up the middleware chain
	chain := middleware.Chain{debug.New(ctx), deduplicate.NewDeduplicate()}
	if lists := config.GetStringSlice("blocklist"); len(lists) > 0 {
		ctx.WithField("Lists", lists).Info("Initializing blocklist")
		blocklist, err := blocklist.NewBlocklist(lists...)
		if err != nil {
			ctx.WithError(err).Fatal("Could not initialize blocklist")
		}
		defer blocklist.Close()
		chain = append(chain, blocklist)
	}
	bridge.SetMiddleware(chain)

	// Set up BLE scanning
	if config.GetBool("ble") {
		dev, err := linux.NewDevice()
		if err != nil {
			ctx.WithError(err).Warn("Could not initialize BLE adapter; discovery is cloud-only")
		} else {
			bridge.SetScanner(discovery.NewScanner(dev, ctx))
		}
	}

	if err := bridge.Init(); err != nil {
		ctx.WithError(err).Fatal("Could not log in to the account server")
	}
	if err := bridge.SetupMQTT(); err != nil {
		ctx.WithError(err).Fatal("Could not connect to the MQTT broker")
	}
	defer func() {
		bridge.Teardown()
		time.Sleep(100 * time.Millisecond)
	}()

	watchedDeviceIDs = append(watchedDeviceIDs, config.GetStringSlice("watch")...)
	for _, deviceID := range watchedDeviceIDs {
		if err := bridge.WatchDevice(deviceID); err != nil {
			ctx.WithField("DeviceID", deviceID).WithError(err).Warn("Could not watch device")
		}
	}

	if address := config.GetString("status-address"); address != "" && address != "disable" {
		statusServer := statusserver.New(bridge, ctx)
		go func() {
			if err := statusServer.ListenAndServe(address); err != nil {
				ctx.WithError(err).Error("Could not serve status")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			statusServer.Shutdown(shutdownCtx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	ctx.WithField("signal", <-sigChan).Info("signal received")
}

func init() {
	ConnectorCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Location of the config file")

	ConnectorCmd.Flags().String("log-file", "", "Location of the log file")
	ConnectorCmd.Flags().Bool("debug", false, "Print debug logs")

	ConnectorCmd.Flags().String("email", "", "Airseekers account email")
	ConnectorCmd.Flags().String("password", "", "Airseekers account password")
	ConnectorCmd.Flags().String("account-server", "", "Airseekers account server (default region is chosen when empty)")

	ConnectorCmd.Flags().Bool("redis", false, "Use Redis for tokens and watch state")
	ConnectorCmd.Flags().String("redis-address", "localhost:6379", "Redis host and port")
	ConnectorCmd.Flags().String("redis-password", "", "Redis password")
	ConnectorCmd.Flags().Int("redis-db", 0, "Redis database")

	ConnectorCmd.Flags().Bool("ble", false, "Scan for nearby devices over Bluetooth LE")

	ConnectorCmd.Flags().StringSlice("watch", nil, "Device IDs to watch at startup")
	ConnectorCmd.Flags().StringSlice("blocklist", nil, "Blocklists (file path or http URL)")

	ConnectorCmd.Flags().String("status-address", "localhost:8088", "Address of the status server (disable with \"disable\")")

	viper.BindPFlags(ConnectorCmd.Flags())
}
