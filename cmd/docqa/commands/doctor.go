package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/health"
	"github.com/54b3r/docqa-go/internal/rag"
)

// newDoctorCmd constructs the `docqa doctor` command, which probes every
// dependency the current configuration relies on.
func newDoctorCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the library database, embedding provider and Qdrant mirror",
		Long: `Probe each dependency with a short timeout and report whether it is
reachable. The embedding provider is required in vector mode and optional
otherwise; the Qdrant mirror is always optional. The command exits non-zero
when a required dependency fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			probes := []health.Probe{health.Required(a.store)}

			if a.embCfg.Backend != embedder.BackendNone {
				if p, err := a.embeddingProvider(a.settings.Mode); err != nil {
					probes = append(probes, embedderProbe(a.settings.Mode, health.Func{
						Label: "embedder:" + a.embCfg.Backend,
						Fn:    func(_ context.Context) error { return err },
					}))
				} else {
					probes = append(probes, embedderProbe(a.settings.Mode, p))
				}
			}

			if a.settings.MirrorEnabled() {
				if m := a.vectorMirror(ctx); m != nil {
					probes = append(probes, health.Optional(m))
				} else {
					probes = append(probes, health.Optional(health.Func{
						Label: "qdrant",
						Fn: func(_ context.Context) error {
							return fmt.Errorf("could not connect to %s:%d", a.settings.Qdrant.Host, a.settings.Qdrant.Port)
						},
					}))
				}
			}

			report := health.Run(ctx, probes...)

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				for _, c := range report.Checks {
					status := "ok"
					switch {
					case !c.OK && c.Optional:
						status = "warn"
					case !c.OK:
						status = "FAIL"
					}
					fmt.Fprintf(out, "%-4s  %-18s %s", status, c.Name, c.Latency.Round(time.Millisecond))
					if c.Error != "" {
						fmt.Fprintf(out, "  %s", c.Error)
					}
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "documents: %d, searchable fragments: %d, mode: %s\n",
					a.lib.Len(), len(a.lib.Pool()), a.settings.Mode)
			}

			if !report.Healthy {
				return fmt.Errorf("doctor: a required dependency is unhealthy")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

// embedderProbe makes the embedding provider required only in vector mode.
func embedderProbe(mode rag.Mode, p health.Pinger) health.Probe {
	if mode == rag.ModeVector {
		return health.Required(p)
	}
	return health.Optional(p)
}
