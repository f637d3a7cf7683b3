package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/h1v3-io/pulse/internal/archive"
	"github.com/h1v3-io/pulse/internal/config"
	"github.com/h1v3-io/pulse/internal/hub"
	"github.com/h1v3-io/pulse/internal/logbuf"
	"github.com/h1v3-io/pulse/pkg/emitter"
	"github.com/h1v3-io/pulse/pkg/protocol"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show hub health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var h hub.Health
			if err := getJSON(cmd.Context(), "/health", nil, &h); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(h)
			}
			fmt.Printf("status: %s  subscribers: %d  history: %d  uptime: %s\n",
				h.Status, h.ConnectedSubscribers, h.HistoryLength,
				(time.Duration(h.Uptime) * time.Second).String())
			tw := newTable("Class", "Total", "Active", "Idle", "Online", "Offline")
			for _, class := range []string{"agents", "services"} {
				c := h.ProducerCounts[class]
				tw.AppendRow(table.Row{class, c.Total, c.Active, c.Idle, c.Online, c.Offline})
			}
			tw.Render()
			return nil
		},
	}
}

func producersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "producers",
		Short: "List agents and services known to the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Agents   []protocol.Producer `json:"agents"`
				Services []protocol.Producer `json:"services"`
			}
			if err := getJSON(cmd.Context(), "/producers", nil, &resp); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(resp)
			}
			renderProducers(append(resp.Agents, resp.Services...))
			return nil
		},
	}
}

func renderProducers(ps []protocol.Producer) {
	tw := newTable("", "ID", "Name", "Source", "Status", "Last Seen", "Activity")
	for _, p := range ps {
		activity := ""
		if p.CurrentActivity != nil {
			activity = *p.CurrentActivity
		}
		tw.AppendRow(table.Row{p.Icon, p.ID, p.Name, p.Source, p.Status, formatTime(p.LastSeenAt), truncate(activity, 40)})
	}
	tw.Render()
}

func eventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent events from the hub's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			var events []protocol.Event
			if err := getJSON(cmd.Context(), "/events", q, &events); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(events)
			}
			renderEvents(events)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of events (hub default when 0)")
	return cmd
}

func renderEvents(events []protocol.Event) {
	tw := newTable("Time", "Producer", "Type", "Status", "Message")
	for _, ev := range events {
		tw.AppendRow(table.Row{formatTime(ev.Timestamp), ev.ProducerID, ev.Type, ev.Status, truncate(ev.Message, 60)})
	}
	tw.Render()
}

func logsCmd() *cobra.Command {
	var level string
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the hub's recent log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if level != "" {
				q.Set("level", level)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			var entries []logbuf.Entry
			if err := getJSON(cmd.Context(), "/logs", q, &entries); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(entries)
			}
			tw := newTable("Time", "Level", "Message", "Attrs")
			for _, e := range entries {
				attrs, _ := json.Marshal(e.Attrs)
				tw.AppendRow(table.Row{formatTime(e.Time), e.Level, e.Message, truncate(string(attrs), 80)})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "minimum level (debug, info, warn, error)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum entries")
	return cmd
}

type producerFlags struct {
	id, name, icon, source string
}

func (f *producerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", "", "producer id (required)")
	cmd.Flags().StringVar(&f.name, "name", "", "producer display name")
	cmd.Flags().StringVar(&f.icon, "icon", "", "producer icon")
	cmd.Flags().StringVar(&f.source, "source", string(protocol.SourceAgent), "producer class: agent or service")
	_ = cmd.MarkFlagRequired("id")
}

func (f *producerFlags) emitter() (*emitter.Emitter, error) {
	src := protocol.Source(f.source)
	if src != protocol.SourceAgent && src != protocol.SourceService {
		return nil, fmt.Errorf("--source must be agent or service, got %q", f.source)
	}
	return emitter.New(hubURL(), src, f.id,
		emitter.WithName(f.name),
		emitter.WithIcon(f.icon),
	), nil
}

func emitCmd() *cobra.Command {
	var pf producerFlags
	var ev emitter.Event
	var status, details string
	cmd := &cobra.Command{
		Use:   "emit <type>",
		Short: "Send one event to the hub as a producer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			em, err := pf.emitter()
			if err != nil {
				return err
			}
			ev.Type = args[0]
			ev.Status = protocol.Status(status)
			if details != "" {
				var structured any
				if json.Unmarshal([]byte(details), &structured) == nil {
					ev.Details = structured
				} else {
					ev.Details = details
				}
			}
			if err := em.Send(cmd.Context(), ev); err != nil {
				return err
			}
			fmt.Printf("sent %s for %s\n", ev.Type, pf.id)
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVarP(&ev.Message, "message", "m", "", "human-readable message")
	cmd.Flags().StringVar(&ev.Activity, "activity", "", "current activity")
	cmd.Flags().StringVar(&status, "status", "", "reported status (idle for agents)")
	cmd.Flags().StringVar(&details, "details", "", "details payload (JSON or text)")
	return cmd
}

func shutdownCmd() *cobra.Command {
	var pf producerFlags
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Announce that a producer is going away",
		RunE: func(cmd *cobra.Command, args []string) error {
			em, err := pf.emitter()
			if err != nil {
				return err
			}
			if err := em.Shutdown(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("%s marked offline\n", pf.id)
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}

func archiveCmd() *cobra.Command {
	arc := &cobra.Command{Use: "archive", Short: "Read the SQLite event archive"}
	arc.AddCommand(archiveTailCmd())
	return arc
}

func archiveTailCmd() *cobra.Command {
	var path string
	var f archive.Filter
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent archived events",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := archive.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			if since > 0 {
				f.Since = time.Now().Add(-since)
			}
			events, err := store.Tail(cmd.Context(), f)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(events)
			}
			renderEvents(events)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "db", "pulse-archive.db", "archive database path")
	cmd.Flags().StringVar(&f.ProducerID, "producer", "", "producer id filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 50, "maximum events")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect pulsed configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a pulsed config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			fmt.Printf("config OK: listen %s:%d, heartbeat %s, stale after %s, sweep every %s\n",
				c.API.Host, c.API.Port, c.Hub.HeartbeatInterval, c.Hub.StaleThreshold, c.Hub.SweepInterval)
			return nil
		},
	})
	return cfg
}
