package main

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the classifier as an MCP tool over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info().Msg("Serving detect_room_type over stdio")
		return newMCPServer().Run(cmd.Context(), &mcp.StdioTransport{})
	},
}

type detectInput struct {
	Filename    string   `json:"filename" jsonschema:"photo filename, e.g. IMG_kitchen_01.jpg"`
	Description string   `json:"description,omitempty" jsonschema:"optional free-text description of the photo"`
	Tags        []string `json:"tags,omitempty" jsonschema:"optional tags such as furniture or fixtures"`
}

func newMCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "roomtype", Version: commitHash}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "detect_room_type",
		Description: "Guess which room a real-estate photo shows from its filename and optional description.",
	}, detectRoomType)
	return server
}

func detectRoomType(ctx context.Context, req *mcp.CallToolRequest, in detectInput) (*mcp.CallToolResult, roomtype.Result, error) {
	if strings.TrimSpace(in.Filename) == "" {
		return nil, roomtype.Result{}, errors.New("filename is required")
	}
	var meta *roomtype.Metadata
	if in.Description != "" || len(in.Tags) > 0 {
		meta = &roomtype.Metadata{Description: in.Description, Tags: in.Tags}
	}
	return nil, roomtype.Detect(in.Filename, meta).WithFallback(in.Filename), nil
}
