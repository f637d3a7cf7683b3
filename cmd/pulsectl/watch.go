package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/h1v3-io/pulse/internal/projector"
	"github.com/h1v3-io/pulse/internal/watch"
)

func watchCmd() *cobra.Command {
	var retry time.Duration
	var clear bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to the hub and render live views",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			c, err := watch.New(watch.Config{URL: hubURL(), RetryInterval: retry}, logger)
			if err != nil {
				return err
			}
			c.OnState(func(s watch.State, err error) {
				if err != nil {
					fmt.Fprintf(os.Stderr, "[%s] %s: %v\n", time.Now().Format("15:04:05"), s, err)
				}
			})
			c.OnUpdate(func(v projector.Views) {
				if viper.GetBool("json") {
					printJSON(v)
					return
				}
				if clear {
					fmt.Print("\033[H\033[2J")
				}
				renderViews(v)
			})

			if err := c.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&retry, "retry", watch.DefaultRetryInterval, "reconnect interval")
	cmd.Flags().BoolVar(&clear, "clear", true, "clear the screen between updates")
	return cmd
}

func renderViews(v projector.Views) {
	fmt.Printf("pulse  %s\n\n", time.Now().Format("15:04:05"))

	fmt.Println("Liveness")
	renderProducers(v.Liveness)

	fmt.Println("\nApproval queue")
	tw := newTable("Ticket", "Flags", "Clarity", "Producer", "Time", "Note")
	for _, it := range v.ApprovalQueue {
		flags, note := "", it.Summary
		switch {
		case it.Rejected:
			flags, note = "rejected", it.RejectionReason
		case it.NeedsClarification:
			flags, note = "clarify", it.ClarificationReason
			if it.MaxIterations > 0 {
				flags = fmt.Sprintf("clarify %d/%d", it.Iteration, it.MaxIterations)
			}
		}
		tw.AppendRow(table.Row{it.TicketKey, flags, it.Clarity, it.ProducerID, formatTime(it.Timestamp), truncate(note, 50)})
	}
	tw.Render()

	fmt.Println("\nApproved tickets")
	tw = newTable("Ticket", "Points", "Producer", "Time", "Description")
	total := 0
	for _, it := range v.ApprovedTickets {
		total += it.StoryPoints
		tw.AppendRow(table.Row{it.TicketKey, it.StoryPoints, it.ProducerID, formatTime(it.Timestamp), truncate(it.Description, 50)})
	}
	tw.AppendFooter(table.Row{"", total})
	tw.Render()

	fmt.Println("\nSub-tasks")
	tw = newTable("Ticket", "Parent", "Agent", "Status", "Created")
	for _, it := range v.SubTasks {
		tw.AppendRow(table.Row{it.TicketKey, it.ParentKey, it.AgentType, it.Status, formatTime(it.Created)})
	}
	tw.Render()
}
