package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zzenonn/zstream/internal/domain"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List registered servers with their learned quality",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(cmd.Context())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		snapshot, found, err := a.quality.LoadSnapshot(cmd.Context(), cfg.QualityArea)
		if err != nil {
			fmt.Printf("Error loading server quality: %v\n", err)
			return
		}

		stats := make(map[string]domain.ServerStats, len(snapshot.Servers))
		for _, st := range snapshot.Servers {
			stats[st.Server] = st
		}

		if found {
			fmt.Printf("area %s, policy %s, round %d, backlog %.2f\n",
				snapshot.Area, snapshot.Policy, snapshot.Round, snapshot.Backlog)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SERVER\tTYPE\tLOCATION\tQUALITY\tSELECTIONS")
		for _, id := range a.placer.ListServers() {
			repo, err := a.placer.GetRepositoryForServer(id)
			if err != nil {
				continue
			}
			quality, selections := "-", "-"
			if st, ok := stats[id]; ok {
				quality = fmt.Sprintf("%.3f", st.Quality)
				selections = fmt.Sprintf("%d", st.Selections)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, repo.GetStorageType(), repo.GetBucketName(), quality, selections)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(serversCmd)
}
