package serve

import (
	"context"
	"errors"
	"fmt"
	cmdUtil "github.com/ValentinKolb/kvgate/cmd/util"
	"github.com/ValentinKolb/kvgate/lib/admission"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// shutdownTimeout bounds how long running requests may take after a signal
const shutdownTimeout = 15 * time.Second

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the kvgate server",
		Long:    `Start the kvgate server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is KVGATE_<flag> (e.g. KVGATE_DB_URL=postgres://user:pw@localhost/kv)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/kvgate.sock, ...)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout of a single request in seconds, including the wait for admission (0 disables the timeout)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 128, cmdUtil.WrapString("Maximum number of requests handled concurrently per connection (tcp and unix)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	// store
	key = "store"
	ServeCmd.PersistentFlags().String(key, common.StoreTypeSQLite, cmdUtil.WrapString("The backing store (sqlite, postgres, mysql, redis, memory)"))

	key = "db-url"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Location of the backing store, e.g. file:kv.db, postgres://user:pw@host/db, user:pw@tcp(host:3306)/db or redis://host:6379/0. Defaults to file:kv.db for sqlite and localhost:6379 for redis. Also read from DB_URL"))

	key = "db-max-open-conns"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Size of the connection pool of sql stores (0 selects the default of 25)"))

	// admission
	defaults := admission.DefaultConfig()

	key = "admission"
	ServeCmd.PersistentFlags().String(key, defaults.Policy, cmdUtil.WrapString("The admission policy (concurrency, token-bucket)"))

	key = "admission-max"
	ServeCmd.PersistentFlags().Int64(key, defaults.Max, cmdUtil.WrapString("Maximum number of requests in flight (concurrency policy)"))

	key = "admission-capacity"
	ServeCmd.PersistentFlags().Int(key, defaults.Capacity, cmdUtil.WrapString("Size of the token bucket (token-bucket policy)"))

	key = "admission-refill-rate"
	ServeCmd.PersistentFlags().Float64(key, defaults.RefillRate, cmdUtil.WrapString("Tokens added to the bucket per second (token-bucket policy)"))

	// service
	key = "work-delay"
	ServeCmd.PersistentFlags().Int(key, 200, cmdUtil.WrapString("Pause in milliseconds between admission and the store call (0 disables it)"))

	key = "coarse-errors"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Report every failed store as already_exists and every failed retrieve as not_found, instead of distinguishing unavailable and canceled requests"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of a separate http listener for /metrics and /healthz (tcp and unix transports, the http transport serves both itself)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.BindEnv("db-url", "KVGATE_DB_URL", "DB_URL"); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.WorkersPerConn = viper.GetInt("workers-per-conn")
	serveCmdConfig.Socket = common.DefaultSocketConf()
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	serveCmdConfig.Store = common.StoreConfig{
		Type:         viper.GetString("store"),
		URL:          viper.GetString("db-url"),
		MaxOpenConns: viper.GetInt("db-max-open-conns"),
	}
	switch serveCmdConfig.Store.Type {
	case common.StoreTypeSQLite, common.StoreTypePostgres, common.StoreTypeMySQL, common.StoreTypeRedis, common.StoreTypeMemory:
	default:
		return fmt.Errorf("invalid store %s (expected one of: sqlite, postgres, mysql, redis, memory)", serveCmdConfig.Store.Type)
	}

	serveCmdConfig.Admission = admission.Config{
		Policy:     viper.GetString("admission"),
		Max:        viper.GetInt64("admission-max"),
		Capacity:   viper.GetInt("admission-capacity"),
		RefillRate: viper.GetFloat64("admission-refill-rate"),
	}
	if err := serveCmdConfig.Admission.Validate(); err != nil {
		return err
	}

	workDelay := viper.GetInt("work-delay")
	if workDelay < 0 {
		return fmt.Errorf("work-delay must not be negative, got %d", workDelay)
	}
	serveCmdConfig.WorkDelay = time.Duration(workDelay) * time.Millisecond
	serveCmdConfig.CoarseErrors = viper.GetBool("coarse-errors")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")

	if _, err := common.ParseLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	return nil
}

// run starts the kvgate server and shuts it down on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- serv.Serve()
	}()

	select {
	case err := <-errCh:
		// startup failed or the listener died, release what was opened
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = serv.Shutdown(shutdownCtx)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := serv.Shutdown(shutdownCtx)
	if err := <-errCh; err != nil {
		return err
	}
	if shutdownErr != nil && !errors.Is(shutdownErr, context.DeadlineExceeded) {
		return shutdownErr
	}
	return nil
}
