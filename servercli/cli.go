package servercli

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hdt3213/redict/config"
	"github.com/hdt3213/redict/database"
	"github.com/hdt3213/redict/lib/logger"
	RedisServer "github.com/hdt3213/redict/redis/server"
	GnetServer "github.com/hdt3213/redict/redis/server/gnet"
)

var banner = `
                   ___      __
   ________  ____/ (_)____/ /_
  / ___/ _ \/ __  / / ___/ __/
 / /  /  __/ /_/ / / /__/ /_
/_/   \___/\__,_/_/\___/\__/
`

// overrides are applied on top of the config file
type overrides struct {
	cfPath    string
	port      int
	bind      string
	transport string
}

var opts overrides

func newFlagSet(o *overrides) *pflag.FlagSet {
	flags := pflag.NewFlagSet("redict", pflag.ContinueOnError)
	flags.StringVarP(&o.cfPath, "config", "c", "", "config file, redis.conf in the working directory is used if present")
	flags.IntVarP(&o.port, "port", "p", 0, "listening port")
	flags.StringVar(&o.bind, "bind", "", "listening address")
	flags.StringVar(&o.transport, "transport", "", "network front end: ae or gnet")
	return flags
}

var flagSet = newFlagSet(&opts)

var rootCmd = &cobra.Command{
	Use:   "redict",
	Short: "redict is a single-threaded, event-driven redis server written in golang",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		props, err := loadProperties(opts, flagSet)
		if err != nil {
			return err
		}
		return StartServer(props)
	},
	SilenceUsage: true,
}

// AddCommand add command into Cli
func AddCommand(cmdline *cobra.Command) {
	rootCmd.AddCommand(cmdline)
}

// loadProperties reads the config file named by CONFIG, --config or redis.conf, then
// applies the flags set on the command line
func loadProperties(o overrides, flags *pflag.FlagSet) (*config.ServerProperties, error) {
	cfPath := os.Getenv("CONFIG")
	if cfPath == "" {
		cfPath = o.cfPath
	}
	var props *config.ServerProperties
	if cfPath == "" {
		if !fileExists(config.DefaultConfPath) {
			props = config.Default()
		} else {
			cfPath = config.DefaultConfPath
		}
	}
	if props == nil {
		var err error
		props, err = config.Load(cfPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if flags.Changed("port") {
		if _, err := IsNum(strconv.Itoa(o.port)); err != nil {
			return nil, err
		}
		props.Port = o.port
	}
	if flags.Changed("bind") {
		props.Bind = o.bind
	}
	if flags.Changed("transport") {
		props.Transport = o.transport
	}
	switch props.Transport {
	case config.TransportAe, config.TransportGnet:
	default:
		return nil, fmt.Errorf("unknown transport %q", props.Transport)
	}
	return props, nil
}

// StartServer sets up logging and serves until shutdown
func StartServer(props *config.ServerProperties) error {
	config.Properties = props
	print(banner)
	logger.Setup(&logger.Settings{
		Path:  props.LogDir,
		Name:  "redict",
		Ext:   "log",
		Level: props.Level(),
	})
	if props.CfPath != "" {
		logger.Infof("configuration loaded from %s", props.CfPath)
	}
	db := database.NewServer(props)
	var err error
	switch props.Transport {
	case config.TransportGnet:
		addr := net.JoinHostPort(props.Bind, strconv.Itoa(props.Port))
		err = GnetServer.ListenAndServeWithSignal(db, props, addr)
	default:
		err = RedisServer.ListenAndServeWithSignal(db, props)
	}
	if err != nil {
		logger.Errorf("start server failed: %v", err)
	}
	return err
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().AddFlagSet(flagSet)
}
