package main

import (
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var channelCmd = &cobra.Command{
	Use:     "channel <channel-id>",
	Short:   "Show the cluster-wide online state and owning instance for a channel",
	GroupID: "gateway",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGatewayClient()
		if err != nil {
			return err
		}
		resp, status, err := client.do(http.MethodGet, "/channel/"+args[0], nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("channel lookup failed (%d): %v", status, resp["error"])
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "channel_id:\t%v\n", resp["channel_id"])
		fmt.Fprintf(w, "online:\t%v\n", resp["online"])
		if v, ok := resp["instance_id"]; ok {
			fmt.Fprintf(w, "instance_id:\t%v\n", v)
		}
		if v, ok := resp["instance_address"]; ok {
			fmt.Fprintf(w, "instance_address:\t%v\n", v)
		}
		return w.Flush()
	},
}

var instancesCmd = &cobra.Command{
	Use:     "instances",
	Short:   "List every known gateway instance",
	GroupID: "gateway",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGatewayClient()
		if err != nil {
			return err
		}
		records, status, err := client.doList(http.MethodGet, "/instances")
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("listing instances failed (%d)", status)
		}
		if len(records) == 0 {
			fmt.Println("no instances registered")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INSTANCE_ID\tADDR")
		for _, r := range records {
			fmt.Fprintf(w, "%v\t%v\n", r["InstanceID"], r["Addr"])
		}
		return w.Flush()
	},
}

var channelsCmd = &cobra.Command{
	Use:     "channels",
	Short:   "List every channel currently mapped to an owning instance",
	GroupID: "gateway",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGatewayClient()
		if err != nil {
			return err
		}
		mappings, status, err := client.doList(http.MethodGet, "/channels")
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("listing channels failed (%d)", status)
		}
		if len(mappings) == 0 {
			fmt.Println("no channels mapped")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHANNEL_ID\tINSTANCE_ID")
		for _, m := range mappings {
			fmt.Fprintf(w, "%v\t%v\n", m["ChannelID"], m["InstanceID"])
		}
		return w.Flush()
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the target instance's /health and /ready endpoints",
	GroupID: "gateway",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGatewayClient()
		if err != nil {
			return err
		}
		baseURL := strings.TrimRight(activeRemoteHealthURL(), "/")
		if baseURL == "" {
			return fmt.Errorf("no gateway URL configured; set SGCTL_HEALTH_URL or run 'sgctl remote add'")
		}

		for _, path := range []string{"/health", "/ready"} {
			req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
			if err != nil {
				return err
			}
			if client.token != "" {
				req.Header.Set("Authorization", "Bearer "+client.token)
			}
			resp, err := client.http.Do(req)
			if err != nil {
				fmt.Printf("%s: error: %v\n", path, err)
				continue
			}
			resp.Body.Close()
			fmt.Printf("%s: %d\n", path, resp.StatusCode)
		}
		return nil
	},
}
