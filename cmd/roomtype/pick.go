package main

import (
	"errors"
	"fmt"

	"github.com/ncruces/zenity"
	"github.com/spf13/cobra"
)

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Choose photos in a native file dialog and classify them",
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := zenity.SelectFileMultiple(
			zenity.Title("Select listing photos"),
			zenity.FileFilters{
				{
					Name:     "Photos",
					Patterns: []string{"*.jpg", "*.jpeg", "*.png", "*.webp"},
				},
			},
		)
		if errors.Is(err, zenity.ErrCanceled) {
			fmt.Fprintln(cmd.ErrOrStderr(), "No files selected")
			return nil
		}
		if err != nil {
			return fmt.Errorf("file picker: %w", err)
		}
		return classify(cmd.OutOrStdout(), files, metadataFromFlags(), jsonOutput)
	},
}

func init() {
	pickCmd.Flags().StringVarP(&description, "description", "d", "", "Free-text description applied to every photo")
	pickCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON lines")
}
