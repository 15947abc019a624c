package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version 由 -ldflags "-X main.version=..." 注入
var version = "dev"

// mazearena 入口：serve 启动游戏服务，register 离线创建账号
func main() {
	root := &cobra.Command{
		Use:           "mazearena",
		Short:         "Multiplayer maze game server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-file", "", "dotenv file to load (default .env)")
	root.AddCommand(serveCmd(), registerCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mazearena %s\n", version)
		},
	}
}
