package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:     "push <event-type> <data>",
	Short:   "Queue a live event, dispatched only if a connection is online",
	GroupID: "gateway",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		channelID, _ := cmd.Flags().GetString("channel")
		businessID, _ := cmd.Flags().GetString("business-id")

		client, err := newGatewayClient()
		if err != nil {
			return err
		}

		resp, status, err := client.do(http.MethodPost, "/push", map[string]string{
			"channel_id":  channelID,
			"event_type":  args[0],
			"data":        args[1],
			"business_id": businessID,
		})
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("push failed (%d): %v", status, resp["error"])
		}
		fmt.Printf("queued: online=%v", resp["online"])
		if id, ok := resp["stream_id"]; ok {
			fmt.Printf(" stream_id=%v", id)
		}
		fmt.Println()
		return nil
	},
}

var storeCmd = &cobra.Command{
	Use:     "store <channel-id> <event-type> <data>",
	Short:   "Persist an event to channel history without requiring a live connection",
	GroupID: "gateway",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		businessID, _ := cmd.Flags().GetString("business-id")

		client, err := newGatewayClient()
		if err != nil {
			return err
		}

		resp, status, err := client.do(http.MethodPost, "/store", map[string]string{
			"channel_id":  args[0],
			"event_type":  args[1],
			"data":        args[2],
			"business_id": businessID,
		})
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("store failed (%d): %v", status, resp["error"])
		}
		fmt.Printf("stored: stream_id=%v\n", resp["stream_id"])
		return nil
	},
}

func init() {
	pushCmd.Flags().String("channel", "", "target channel (omit to broadcast)")
	pushCmd.Flags().String("business-id", "", "caller-supplied correlation id")
	storeCmd.Flags().String("business-id", "", "caller-supplied correlation id")
}
