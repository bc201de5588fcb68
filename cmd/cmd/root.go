package cmd

import (
	"github.com/spf13/cobra"
)

const AppName = "volrecover"

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: AppName + " - NTFS/exFAT/FAT32 deleted-file scanner and recovery tool",
	}

	rootCmd.AddCommand(DefineScanCommand())
	rootCmd.AddCommand(DefineRecoverCommand())

	return rootCmd.Execute()
}
