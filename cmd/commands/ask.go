package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	wsclient "github.com/dohr-michael/paula/clients/ws"
	"github.com/dohr-michael/paula/internal/events"
	wsprotocol "github.com/dohr-michael/paula/internal/gateway/ws"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send a message to the agent and print the response",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway WebSocket URL",
				Value: "ws://127.0.0.1:18520/api/ws",
			},
			&cli.StringFlag{
				Name:    "thread",
				Aliases: []string{"t"},
				Usage:   "Thread ID to continue (empty = new thread)",
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "User ID for memory scoping",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Response timeout in seconds",
				Value: 120,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Print plan, checklist and tool activity",
			},
		},
		Action: runAsk,
	}
}

func runAsk(_ context.Context, cmd *cli.Command) error {
	message := cmd.Args().First()
	if message == "" {
		return fmt.Errorf("usage: paula ask <message>")
	}

	timeoutSecs := cmd.Int("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	client, err := wsclient.Dial(ctx, cmd.String("gateway"))
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	defer client.Close()

	if err := client.SendMessage(cmd.String("thread"), cmd.String("user"), message); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	verbose := cmd.Bool("verbose")
	var threadID string

	for {
		frame, err := client.ReadFrame()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		switch frame.Type {
		case wsprotocol.FrameTypeResponse:
			if frame.OK == nil || !*frame.OK {
				return fmt.Errorf("gateway rejected message: %s", frame.Error)
			}
			var ack struct {
				ThreadID string `json:"thread_id"`
			}
			if err := json.Unmarshal(frame.Payload, &ack); err == nil {
				threadID = ack.ThreadID
				if cmd.String("thread") == "" {
					fmt.Fprintf(os.Stderr, "thread: %s\n", threadID)
				}
			}

		case wsprotocol.FrameTypeEvent:
			if threadID != "" && frame.ThreadID != threadID {
				continue
			}
			var e events.Event
			if err := json.Unmarshal(frame.Payload, &e); err != nil {
				continue
			}
			done, err := printEvent(e, verbose)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// printEvent renders one turn event. It returns true on the terminal
// marker.
func printEvent(e events.Event, verbose bool) (bool, error) {
	switch e.Type {
	case events.EventStatus:
		if verbose {
			if p, ok := events.ExtractPayload[events.StatusPayload](e); ok {
				fmt.Fprintf(os.Stderr, "... %s\n", p.Content)
			}
		}
	case events.EventPlan:
		if verbose {
			if p, ok := events.GetPlanPayload(e); ok {
				for i, step := range p.Plan {
					fmt.Fprintf(os.Stderr, "plan %d. %s\n", i+1, step)
				}
			}
		}
	case events.EventTodos:
		if verbose {
			if p, ok := events.GetTodosPayload(e); ok {
				for _, item := range p.Todos {
					fmt.Fprintf(os.Stderr, "  [%s] %s\n", item.Status, item.Title)
				}
			}
		}
	case events.EventToolStart:
		if verbose {
			if p, ok := events.GetToolStartPayload(e); ok {
				fmt.Fprintf(os.Stderr, "tool: %s\n", p.Tool)
			}
		}
	case events.EventError:
		if p, ok := events.GetErrorPayload(e); ok && p.Severity == events.SeverityError {
			fmt.Fprintf(os.Stderr, "error: %s\n", p.Content)
		}
	case events.EventTurnCompleted:
		p, ok := events.GetTurnCompletedPayload(e)
		if !ok {
			return true, nil
		}
		if p.Failed {
			return true, fmt.Errorf("turn failed")
		}
		fmt.Println(p.Reply)
		return true, nil
	}
	return false, nil
}
