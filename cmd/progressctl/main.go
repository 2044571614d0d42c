// Command progressctl watches and queries jobs on a sitegen progress server.
//
//	progressctl watch <jobID>     stream progress until the job finishes
//	progressctl status <jobID>    print the current snapshot
//	progressctl metrics <jobID>   print derived metrics
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/sitegen/pkg/models"
	"github.com/spf13/cobra"
)

var (
	errJobNotFound = errors.New("job not found")
	errJobFailed   = errors.New("job failed")
)

type globalOptions struct {
	server  string
	timeout time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:          "progressctl",
		Short:        "Watch and query sitegen job progress",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.server, "server", "s", "ws://localhost:8080"+defaultWSPath,
		"progress server address (ws, wss, http or https)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second,
		"how long to wait for the server to reply")

	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newQueryCmd(opts, "status", "Print the current progress snapshot of a job",
		models.MessageGetStatus, models.MessageStatus))
	root.AddCommand(newQueryCmd(opts, "metrics", "Print derived metrics for a job",
		models.MessageGetMetrics, models.MessageMetrics))

	return root
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "watch <jobID>",
		Short: "Stream progress updates until the job completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd.Context(), opts, args[0], raw, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&raw, "json", false, "print each progress frame as JSON")

	return cmd
}

func newQueryCmd(opts *globalOptions, use, short, request, reply string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <jobID>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(cmd.Context(), opts, args[0], request, reply, cmd.OutOrStdout())
		},
	}
}

func query(ctx context.Context, opts *globalOptions, jobID, request, reply string, out io.Writer) error {
	c, err := dial(ctx, opts.server, opts.timeout)
	if err != nil {
		return err
	}
	defer c.close()

	f, err := c.request(request, jobID, reply)
	if err != nil {
		return err
	}
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return fmt.Errorf("%w: %s", errJobNotFound, jobID)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, f.Data, "", "  "); err != nil {
		return fmt.Errorf("format reply: %w", err)
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(out)
	return err
}

func watch(ctx context.Context, opts *globalOptions, jobID string, raw bool, out io.Writer) error {
	c, err := dial(ctx, opts.server, opts.timeout)
	if err != nil {
		return err
	}
	defer c.close()

	// Unblock the read loop when the command is interrupted.
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	if err := c.send(models.MessageSubscribe, jobID); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	for {
		f, err := c.next(0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		switch f.Type {
		case models.MessageSubscription:
			if f.Success == nil || !*f.Success {
				return fmt.Errorf("%w: %s", errJobNotFound, jobID)
			}
		case models.MessageProgress:
			var snap models.ProgressSnapshot
			if err := json.Unmarshal(f.Data, &snap); err != nil {
				return fmt.Errorf("decode progress frame: %w", err)
			}
			if raw {
				fmt.Fprintln(out, string(f.Data))
			} else {
				printSnapshot(out, snap)
			}
			if snap.Stage == models.StageError {
				return fmt.Errorf("%w: %s", errJobFailed, jobID)
			}
			if snap.Stage.Terminal() {
				return nil
			}
		}
	}
}

func printSnapshot(out io.Writer, snap models.ProgressSnapshot) {
	eta := "-"
	if !snap.Stage.Terminal() {
		eta = time.Until(snap.EstimatedCompletion).Round(time.Second).String()
	}
	fmt.Fprintf(out, "%s  %3d%%  %-18s  eta %-6s  %s\n",
		snap.CurrentTime.Local().Format(time.TimeOnly), snap.Progress, snap.Stage, eta, snap.Message)
}
