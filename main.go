package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/autoflow/autoflow/agent"
	"github.com/autoflow/autoflow/config"
	"github.com/autoflow/autoflow/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}

type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "memory", "implementation of underline storage")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "autoflow", "namespace used in storage")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().Int("worker-pool-size", 10, "number of concurrent workflow executions")
	cmd.Flags().Int("step-concurrency", 4, "max concurrent independent steps per execution")
	cmd.Flags().Int("queue-capacity", 1000, "submission queue capacity")
	cmd.Flags().Int("step-timeout", 60, "default step timeout in seconds")
	cmd.Flags().Int("intervention-timeout", 300, "seconds to wait for a human intervention response")
	cmd.Flags().Int("monitor-interval", 30, "health monitor interval in seconds")
	cmd.Flags().Int("stuck-threshold", 7200, "seconds after which a running execution is reported stuck")
	cmd.Flags().String("audit-log", "", "path of the decision audit log file")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.LogLevel = viper.GetString("log-level")
	c.cfg.WorkerPoolSize = viper.GetInt("worker-pool-size")
	c.cfg.StepConcurrency = viper.GetInt("step-concurrency")
	c.cfg.QueueCapacity = viper.GetInt("queue-capacity")
	c.cfg.DefaultStepTimeoutSeconds = viper.GetInt("step-timeout")
	c.cfg.InterventionTimeoutSeconds = viper.GetInt("intervention-timeout")
	c.cfg.MonitorIntervalSeconds = viper.GetInt("monitor-interval")
	c.cfg.StuckThresholdSeconds = viper.GetInt("stuck-threshold")
	c.cfg.AuditLogFile = viper.GetString("audit-log")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	logger.InitLogger(c.cfg.LogLevel)
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	err = agent.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "autoflow",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
