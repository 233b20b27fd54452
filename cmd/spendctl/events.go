package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"monthly-spend/internal/amqp"
	"monthly-spend/internal/cli"
	"monthly-spend/internal/core"
	"monthly-spend/internal/log"
	"monthly-spend/internal/services"
	"monthly-spend/internal/worker"
)

// readEvents decodes a file holding either one change envelope or a JSON
// array of them. "-" reads stdin.
func readEvents(path string, stdin io.Reader) ([]core.ChangeEvent, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	var list []core.ChangeEvent
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single core.ChangeEvent
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", core.ErrInvalidEvent, path, err)
	}
	return []core.ChangeEvent{single}, nil
}

func newPublishCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <file|->",
		Short: "Publish change events to the AMQP exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !e.cfg.ConsumerEnabled() {
				return errors.New("AMQP_URL is not set")
			}
			events, err := readEvents(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			client, err := amqp.NewClient(e.cfg.AMQPURL, e.cfg.AMQPExchange, e.cfg.AMQPQueue)
			if err != nil {
				return err
			}
			defer client.Close()

			for _, ev := range events {
				id, err := client.PublishChange(cmd.Context(), ev)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %s %s event %s\n", ev.Kind, ev.Op, id)
			}
			return nil
		},
	}
}

func newApplyCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file|->",
		Short: "Apply change events directly to the store, bypassing the broker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readEvents(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return e.withStores(cmd.Context(), func(s *cli.Stores) error {
				d := services.NewDispatcher(
					services.NewExpenseProcessor(s, s.Cards, e.logger.WithComponent(log.ComponentExpense)),
					services.NewSubscriptionProcessor(s, e.logger.WithComponent(log.ComponentSubscription)),
					e.logger.WithComponent(log.ComponentDispatcher),
				)
				w := worker.NewEventWorker(d, nil, e.logger.WithComponent(log.ComponentWorker))

				for i, ev := range events {
					out, err := w.HandleChange(cmd.Context(), ev)
					if err != nil {
						return fmt.Errorf("event %d: %w", i, err)
					}
					if err := printJSON(cmd, out); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
