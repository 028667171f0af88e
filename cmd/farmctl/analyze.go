package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rkm/farm-health/internal/analysis"
	"github.com/rkm/farm-health/internal/geometry"
	"github.com/rkm/farm-health/internal/report"
	"github.com/rkm/farm-health/internal/session"
)

var (
	analyzePoints     string
	analyzeCrop       string
	analyzeServiceURL string
	analyzeItem       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the health of a farm boundary",
	Long: `Reads a JSON array of {"lat":..,"lng":..} points, submits the boundary
to the analysis service and prints the indices, the verdict and the overlay
color. With --item the result is printed as a STAC Item instead.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		points, err := readPoints(analyzePoints)
		if err != nil {
			return err
		}

		crop := cfg.Session.Crop()
		if analyzeCrop != "" {
			if crop, err = analysis.ParseCropType(analyzeCrop); err != nil {
				return err
			}
		}

		serviceURL := cfg.Analysis.BaseURL
		if analyzeServiceURL != "" {
			serviceURL = analyzeServiceURL
		}

		client := analysis.NewClient(serviceURL, cfg.Analysis.Timeout).WithLogger(logger)
		orchestrator := analysis.NewOrchestrator(client, cfg.Analysis.Timeout).WithLogger(logger)
		sess := session.New(orchestrator, crop).WithLogger(logger)

		if err := sess.SetBoundary(points); err != nil {
			return err
		}

		sub, err := sess.Submit(ctx)
		if err != nil {
			return err
		}
		logger.Info("analysis submitted",
			"analysis_id", sub.Ticket.Request.ID,
			"crop_type", string(crop),
			"points", len(points),
		)

		outcome, err := sub.Future.Wait(ctx)
		if err != nil {
			return fmt.Errorf("waiting for analysis: %w", err)
		}
		sess.OnRequestResolved(sub.Ticket, outcome)

		st := sess.State()
		if st.Kind == session.Failed {
			_, msg := session.Describe(st.Err)
			return fmt.Errorf("analysis failed: %s", msg)
		}

		if analyzeItem {
			item, err := report.BuildItem(st, cfg.Server.BaseURL, cfg.Session.STACVersion)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(item)
		}

		printResult(cmd.OutOrStdout(), st)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzePoints, "points", "", "path to a JSON file of boundary points, - for stdin")
	analyzeCmd.Flags().StringVar(&analyzeCrop, "crop", "", "crop type (wheat, maize, cotton, rice, sugarcane)")
	analyzeCmd.Flags().StringVar(&analyzeServiceURL, "service-url", "", "analysis service base URL (overrides ANALYSIS_BASE_URL)")
	analyzeCmd.Flags().BoolVar(&analyzeItem, "item", false, "print the result as a STAC Item")
	_ = analyzeCmd.MarkFlagRequired("points")
}

func readPoints(path string) ([]geometry.LatLng, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open points file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var points []geometry.LatLng
	if err := json.NewDecoder(r).Decode(&points); err != nil {
		return nil, fmt.Errorf("decode points: %w", err)
	}
	return points, nil
}

func printResult(w io.Writer, st session.State) {
	res := st.Result

	fmt.Fprintf(w, "Crop:           %s\n", st.Crop.Label())
	fmt.Fprintf(w, "Health status:  %s\n", res.HealthStatus)
	if res.HealthyRange != "" {
		fmt.Fprintf(w, "Healthy range:  %s\n", res.HealthyRange)
	}
	if res.ZoneType != "" {
		fmt.Fprintf(w, "Zone type:      %s\n", res.ZoneType)
	}
	if style, ok := st.Overlay(); ok {
		fmt.Fprintf(w, "Overlay:        %s\n", style.Color)
	}

	names := make([]string, 0, len(res.Indices))
	for name := range res.Indices {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Indices:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, res.Indices[name])
	}
}
