package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "hubscout"}

	root.AddCommand(serveCMD(), planCMD(), migrateCMD())
	_ = root.Execute()
}
