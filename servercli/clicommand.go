package servercli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hdt3213/redict/config"
)

var redictCreate = &cobra.Command{
	Use:   "create [redis config filepath]",
	Short: "Start redict from the configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		props, err := config.Load(args[0])
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return StartServer(props)
	},
}

var commandWithPort = &cobra.Command{
	Use:   "port [redis port]",
	Short: "Start redict with the given port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := IsNum(args[0])
		if err != nil {
			return err
		}
		props, err := loadProperties(opts, flagSet)
		if err != nil {
			return err
		}
		props.Port = int(n)
		return StartServer(props)
	},
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

// IsNum parses a listening port
func IsNum(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	if n < 1024 || n > 65535 {
		return 0, fmt.Errorf("listening port is greater than 65535 or less than 1024")
	}
	return n, nil
}

func init() {
	AddCommand(redictCreate)
	AddCommand(commandWithPort)
}
