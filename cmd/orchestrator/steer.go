package main

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
)

func newSteerCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:       "steer [init|start|pause|resume|end|reset]",
		Short:     "Send a steering operation to a running orchestrator",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"init", "start", "pause", "resume", "end", "reset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := fiber.Post(url + "/api/v1/steer")
			agent.JSON(map[string]string{"operation": args[0]})

			code, body, errs := agent.Bytes()
			if len(errs) > 0 {
				return fmt.Errorf("sending steer request: %v", errs[0])
			}
			if code != fiber.StatusAccepted {
				return fmt.Errorf("steer %s rejected (%d): %s", args[0], code, body)
			}
			fmt.Printf("steer %s accepted\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:8080", "orchestrator base URL")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the workflow-wide state and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := fiber.Get(url + "/api/v1/status")

			var resp struct {
				GlobalState  string `json:"global_state"`
				GlobalStatus string `json:"global_status"`
				Components   int    `json:"components"`
			}
			code, _, errs := agent.Struct(&resp)
			if len(errs) > 0 {
				return fmt.Errorf("fetching status: %v", errs[0])
			}
			if code != fiber.StatusOK {
				return fmt.Errorf("unexpected status %d", code)
			}

			fmt.Printf("state:      %s\n", resp.GlobalState)
			fmt.Printf("status:     %s\n", resp.GlobalStatus)
			fmt.Printf("components: %d\n", resp.Components)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:8080", "orchestrator base URL")
	return cmd
}
