// Command modcheck evaluates chat lines from stdin against an in-memory engine.
//
//	echo "FUCK YOU ALL" | modcheck -actor bob
//
// Each line is one message from the same actor and device, so behavioral
// flags and warning escalation build up across lines.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"chat-moderation-engine/internal/config"
	"chat-moderation-engine/internal/engine"
	"chat-moderation-engine/internal/models"
	"chat-moderation-engine/internal/store"
)

type options struct {
	actor    string
	device   string
	asJSON   bool
	interval time.Duration
}

func main() {
	var (
		cfgPath = flag.String("config", "", "optional config.yaml or config.json for thresholds")
		opts    options
	)
	flag.StringVar(&opts.actor, "actor", "cli-user", "actor name")
	flag.StringVar(&opts.device, "device", "cli-device", "actor device id")
	flag.BoolVar(&opts.asJSON, "json", false, "print one JSON outcome per line")
	flag.DurationVar(&opts.interval, "interval", 0, "simulated time between lines (0 uses the wall clock)")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
	}

	eng, err := engine.New(engine.Options{
		Thresholds:  cfg.Thresholds,
		Enforcement: cfg.Enforcement,
		Store:       store.NewMemory(),
		Logger:      zap.NewNop(),
	})
	if err != nil {
		log.Fatalf("Error building engine: %v", err)
	}

	if err := run(context.Background(), eng, os.Stdin, os.Stdout, opts); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer, opts options) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	enc := json.NewEncoder(out)

	var ts time.Time
	if opts.interval > 0 {
		ts = time.Now()
	}
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		evt := models.MessageEvent{
			Content:       line,
			ActorName:     opts.actor,
			ActorDeviceID: opts.device,
			Timestamp:     ts,
		}
		if opts.interval > 0 {
			ts = ts.Add(opts.interval)
		}

		o, err := eng.Evaluate(ctx, evt)
		if err != nil {
			return err
		}
		if opts.asJSON {
			if err := enc.Encode(o); err != nil {
				return err
			}
			continue
		}
		printOutcome(out, line, o)
	}
	return scanner.Err()
}

func printOutcome(w io.Writer, line string, o engine.Outcome) {
	d := o.Decision
	fmt.Fprintf(w, "%-16s score=%-6.1f severity=%-8s confidence=%3d%%", d.SuggestedAction.DisplayName(), d.ThreatScore, d.Severity, d.Confidence)
	if d.SuggestedAction.IsBan() {
		fmt.Fprintf(w, " duration=%s", models.FormatDuration(d.BanDurationSeconds))
	}
	fmt.Fprintf(w, "  %q\n", line)
	if d.Reason != "" {
		fmt.Fprintf(w, "                 reason: %s\n", d.Reason)
	}
	if len(d.DetectedPatterns) > 0 {
		fmt.Fprintf(w, "                 patterns: %s\n", strings.Join(d.DetectedPatterns, ", "))
	}
}
