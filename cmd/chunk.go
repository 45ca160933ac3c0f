package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var quiet bool

var putCmd = &cobra.Command{
	Use:   "put [file-path]",
	Short: "Erasure-code a file and spread its fragments over the servers",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		filePath := args[0]

		file, err := os.Open(filePath)
		if err != nil {
			fmt.Printf("Error opening file: %v\n", err)
			return
		}
		defer file.Close()

		a, err := newApp(cmd.Context())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		chunkID, _ := cmd.Flags().GetString("id")
		dataShards, _ := cmd.Flags().GetInt("data-shards")
		parityShards, _ := cmd.Flags().GetInt("parity-shards")
		if !cmd.Flags().Changed("data-shards") {
			dataShards = cfg.DataShards
		}
		if !cmd.Flags().Changed("parity-shards") {
			parityShards = cfg.ParityShards
		}

		meta, err := a.chunks.PutChunk(cmd.Context(), chunkID, file, dataShards, parityShards, quiet)
		if err != nil {
			fmt.Printf("Error storing chunk: %v\n", err)
			return
		}
		fmt.Printf("Chunk stored: %s -> %s (%d bytes, k=%d, m=%d)\n",
			filePath, meta.ChunkID, meta.OriginalSize, meta.DataShards, meta.ParityShards)
	},
}

var getCmd = &cobra.Command{
	Use:   "get [chunk-id] [output-path]",
	Short: "Retrieve a chunk from the best servers (- writes to stdout)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		chunkID, outputPath := args[0], args[1]
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		retrieval, err := a.newRetrieval(ctx)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		data, fetchErr := retrieval.FetchChunk(ctx, chunkID)
		// Outcomes were learned even if the chunk could not be decoded.
		if err := retrieval.SaveQuality(ctx, &a.quality, cfg.QualityArea); err != nil {
			log.WithError(err).Warn("Failed to save server quality")
		}
		if fetchErr != nil {
			fmt.Printf("Error retrieving chunk: %v\n", fetchErr)
			return
		}

		var out io.Writer = os.Stdout
		if outputPath != "-" {
			file, err := os.Create(outputPath)
			if err != nil {
				fmt.Printf("Error creating output file: %v\n", err)
				return
			}
			defer file.Close()
			out = file
		}

		if _, err := out.Write(data); err != nil {
			fmt.Printf("Error writing chunk: %v\n", err)
			return
		}
		if outputPath != "-" {
			fmt.Printf("Chunk retrieved: %s -> %s (%d bytes)\n", chunkID, outputPath, len(data))
		}
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [chunk-id]",
	Short: "Delete a chunk's fragments and metadata",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(cmd.Context())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		if err := a.chunks.DeleteChunk(cmd.Context(), args[0]); err != nil {
			fmt.Printf("Error deleting chunk: %v\n", err)
			return
		}
		fmt.Printf("Chunk deleted: %s\n", args[0])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored chunks",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(cmd.Context())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		chunks, err := a.chunks.ListChunks(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing chunks: %v\n", err)
			return
		}
		for _, meta := range chunks {
			fmt.Printf("%s\t%d bytes\tk=%d m=%d\n", meta.ChunkID, meta.OriginalSize, meta.DataShards, meta.ParityShards)
		}
	},
}

func init() {
	putCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bars")
	putCmd.Flags().String("id", "", "Chunk id (generated when empty)")
	putCmd.Flags().Int("data-shards", 4, "Number of data fragments (k)")
	putCmd.Flags().Int("parity-shards", 2, "Number of parity fragments (m)")

	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
}
