package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/solvent/service/nats"
	"github.com/brojonat/solvent/service/rent"
)

func alertsCommand() *cli.Command {
	return &cli.Command{
		Name:      "alerts",
		Usage:     "Stream closeable-account alerts from the solvent server",
		ArgsUsage: "[ADDRESS]",
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			endpoint := strings.TrimRight(c.String("server-url"), "/") + "/api/v1/stream/alerts"
			if address != "" {
				if _, err := rent.ParseAddress(address); err != nil {
					return err
				}
				endpoint += "/" + url.PathEscape(address)
			}
			jsonOutput := c.Bool("json")

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to alert stream: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "Streaming alerts... (Ctrl+C to stop)\n\n")
			}

			err = readEvents(resp.Body, func(event, data string) error {
				return handleAlertEvent(c, event, data, jsonOutput)
			})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("error reading alert stream: %w", err)
			}
			return nil
		},
	}
}

// readEvents parses a server-sent event stream and calls fn once per event.
// Comment lines are ignored.
func readEvents(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" && data != "" {
				if err := fn(event, data); err != nil {
					return err
				}
			}
			event, data = "", ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	return scanner.Err()
}

func handleAlertEvent(c *cli.Context, event, data string, jsonOutput bool) error {
	switch event {
	case "connected":
		if !jsonOutput {
			var info map[string]string
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			fmt.Fprintf(c.App.ErrWriter, "✓ Subscribed to %s\n\n", info["address"])
		}
		return nil

	case "alert":
		alert, err := natspkg.DecodeAlert([]byte(data))
		if err != nil {
			return err
		}
		if jsonOutput {
			fmt.Fprintln(c.App.Writer, data)
			return nil
		}
		fmt.Fprintf(c.App.Writer, "🚨 [%s] %s\n\n", alert.DetectedAt.Local().Format("15:04:05"), alert.Message)
		return nil

	case "error":
		var info map[string]interface{}
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			return err
		}
		return fmt.Errorf("server error: %v", info["error"])

	default:
		return nil
	}
}
