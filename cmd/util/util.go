package util

import (
	"fmt"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/serializer"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	"github.com/ValentinKolb/kvgate/rpc/transport/http"
	"github.com/ValentinKolb/kvgate/rpc/transport/tcp"
	"github.com/ValentinKolb/kvgate/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by kvgate
	EnvPrefix = "kvgate"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read KVGATE_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of a single request"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the kvgate server. Multiple endpoints can be specified as a comma-separated list, requests are spread round robin"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint (tcp and unix)"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to try a request that could not be delivered"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB, tcp only)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB, tcp only)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 30, WrapString("The keepalive interval (in seconds, tcp only, 0 disables keepalive)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, tcp only, 0 keeps the system default)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	endpoints := make([]string, 0)
	for _, endpoint := range strings.Split(viper.GetString("transport-endpoints"), ",") {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			endpoints = append(endpoints, endpoint)
		}
	}

	return &common.ClientConfig{
		Endpoints:              endpoints,
		TimeoutSecond:          viper.GetInt("timeout"),
		RetryCount:             viper.GetInt("transport-retries"),
		ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
		Socket: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.ByName(viper.GetString("serializer"))
}

// GetClientTransport creates the client transport based on configuration
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected http, tcp or unix)", viper.GetString("transport"))
	}
}

// GetServerTransport creates the server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixDefaultServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected http, tcp or unix)", viper.GetString("transport"))
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
