// Command roomtype classifies listing photos by filename and optional
// description, the same way the upload API does.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/smiley-maker/rooms-that-sell/internal/logging"
)

var (
	description string
	tags        []string
	jsonOutput  bool
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "roomtype",
	Short: "Detect the room type of listing photos",
	Long: `roomtype guesses which room a listing photo shows from its filename and,
when given, a short description or tags.

Examples:
  roomtype classify IMG_kitchen_01.jpg master-bed.jpg
  roomtype classify photo.jpg --description "island with bar stools"
  roomtype pick
  roomtype mcp`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
		if verbose {
			logging.SetLevel("debug")
		}
	},
	Version: commitHash + " (" + buildTime + ")",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(classifyCmd, pickCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
