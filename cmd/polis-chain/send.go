package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/polisai/polis-chain/pkg/cloudevent"
	"github.com/polisai/polis-chain/pkg/domain"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Post a chain entry event to a router",
		Long: `Builds an event with source "cli" and posts it to a router. The type
attribute names where the router sends the fan-out copies. The router's reply
is printed as a structured CloudEvent.

Example:
  polis-chain send --to http://127.0.0.1:8080 --type http://dest-x --data '{"n":1}'`,
		Args: cobra.NoArgs,
		RunE: runSend,
	}

	cmd.Flags().String("to", "http://127.0.0.1:8080", "Router URL")
	cmd.Flags().String("type", "", "Destination written into the type attribute")
	cmd.Flags().String("id", "", "Event id (default: random UUID)")
	cmd.Flags().String("data", "", "JSON payload")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runSend(cmd *cobra.Command, _ []string) error {
	_, logger, _, err := setup(cmd)
	if err != nil {
		return err
	}

	to, _ := cmd.Flags().GetString("to")
	typ, _ := cmd.Flags().GetString("type")
	id, _ := cmd.Flags().GetString("id")
	data, _ := cmd.Flags().GetString("data")

	event := newEntryEvent(id, typ, data)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sender := cloudevent.NewHTTPSender(cloudevent.HTTPSenderConfig{Logger: logger})
	logger.Info("posting event", "destination", to, "event", event.String())

	reply, ok, err := sender.Request(ctx, to, event)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("router accepted event without a reply")
		return nil
	}

	out, err := cloudevent.Encode(reply)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

// newEntryEvent builds the event that starts a chain.
func newEntryEvent(id, typ, data string) domain.Event {
	if id == "" {
		id = uuid.New().String()
	}
	event := domain.Event{
		ID:          id,
		Source:      domain.StepEntry.String(),
		Type:        typ,
		SpecVersion: domain.DefaultSpecVersion,
	}
	if data != "" {
		event.DataContentType = "application/json"
		event.Data = []byte(data)
	}
	return event
}
