package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <filename>...",
	Short: "Classify one or more filenames",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return classify(cmd.OutOrStdout(), args, metadataFromFlags(), jsonOutput)
	},
}

func init() {
	classifyCmd.Flags().StringVarP(&description, "description", "d", "", "Free-text description of the photo")
	classifyCmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tag describing the photo (repeatable)")
	classifyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON lines")
}

func metadataFromFlags() *roomtype.Metadata {
	if description == "" && len(tags) == 0 {
		return nil
	}
	return &roomtype.Metadata{Description: description, Tags: tags}
}

// fileResult pairs a classified file with its result.
type fileResult struct {
	File string `json:"file"`
	roomtype.Result
}

func classify(w io.Writer, files []string, meta *roomtype.Metadata, asJSON bool) error {
	enc := json.NewEncoder(w)
	for _, f := range files {
		name := filepath.Base(f)
		res := roomtype.Detect(name, meta).WithFallback(name)
		if asJSON {
			if err := enc.Encode(fileResult{File: f, Result: res}); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f", f, res.RoomType.DisplayName(), res.Confidence)
		if len(res.DetectedFeatures) > 0 {
			fmt.Fprintf(w, "\t[%s]", strings.Join(res.DetectedFeatures, ", "))
		}
		if len(res.Fallback) > 0 {
			names := make([]string, len(res.Fallback))
			for i, s := range res.Fallback {
				names[i] = string(s.RoomType)
			}
			fmt.Fprintf(w, "\ttry: %s", strings.Join(names, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}
