package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openebs/moac/internal/api"
)

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Manage volumes through the CSI-adjacent API",
}

var volumeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a volume",
	RunE:  runVolumeCreate,
}

var volumePublishCmd = &cobra.Command{
	Use:   "publish UUID",
	Short: "Publish a volume's nexus",
	Args:  cobra.ExactArgs(1),
	RunE:  runVolumePublish,
}

var volumeUnpublishCmd = &cobra.Command{
	Use:   "unpublish UUID",
	Short: "Unpublish a volume's nexus",
	Args:  cobra.ExactArgs(1),
	RunE:  runVolumeUnpublish,
}

var volumeDestroyCmd = &cobra.Command{
	Use:   "destroy UUID",
	Short: "Destroy a volume and its replicas",
	Args:  cobra.ExactArgs(1),
	RunE:  runVolumeDestroy,
}

var volumeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List volumes",
	RunE:  runVolumeList,
}

func init() {
	volumeCmd.AddCommand(volumeCreateCmd, volumePublishCmd, volumeUnpublishCmd, volumeDestroyCmd, volumeListCmd)

	for _, c := range []*cobra.Command{volumeCreateCmd, volumePublishCmd, volumeUnpublishCmd, volumeDestroyCmd, volumeListCmd} {
		c.Flags().String("api-addr", "127.0.0.1:10000", "Manager CSI API address")
	}

	volumeCreateCmd.Flags().Int("replicas", 1, "Replica count")
	volumeCreateCmd.Flags().Uint64("required-bytes", 0, "Minimum required size in bytes (required)")
	volumeCreateCmd.Flags().Uint64("limit-bytes", 0, "Maximum size in bytes")
	volumeCreateCmd.Flags().StringSlice("preferred-node", nil, "Preferred node, repeatable")
	volumeCreateCmd.Flags().StringSlice("required-node", nil, "Required node, repeatable")
	volumeCreateCmd.Flags().String("protocol", "nvmf", "Share protocol")
	volumeCreateCmd.MarkFlagRequired("required-bytes")

	volumePublishCmd.Flags().String("protocol", "nvmf", "Share protocol")
}

func runVolumeCreate(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("api-addr")
	replicas, _ := cmd.Flags().GetInt("replicas")
	requiredBytes, _ := cmd.Flags().GetUint64("required-bytes")
	limitBytes, _ := cmd.Flags().GetUint64("limit-bytes")
	preferred, _ := cmd.Flags().GetStringSlice("preferred-node")
	required, _ := cmd.Flags().GetStringSlice("required-node")
	protocol, _ := cmd.Flags().GetString("protocol")

	c, err := dialCSI(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.CreateVolume(&api.CreateVolumeRequest{
		ReplicaCount:   replicas,
		RequiredBytes:  requiredBytes,
		LimitBytes:     limitBytes,
		PreferredNodes: preferred,
		RequiredNodes:  required,
		Protocol:       protocol,
	})
	if err != nil {
		return fmt.Errorf("create volume: %w", err)
	}

	fmt.Printf("volume created: %s\n", resp.Volume.UUID)
	fmt.Printf("  state: %s\n", resp.Volume.State)
	fmt.Printf("  replicas: %s\n", strings.Join(resp.Volume.Replicas, ", "))
	return nil
}

func runVolumePublish(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("api-addr")
	protocol, _ := cmd.Flags().GetString("protocol")

	c, err := dialCSI(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.Publish(&api.PublishRequest{UUID: args[0], Protocol: protocol})
	if err != nil {
		return fmt.Errorf("publish volume: %w", err)
	}
	fmt.Printf("published: %s\n", resp.URI)
	return nil
}

func runVolumeUnpublish(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("api-addr")
	c, err := dialCSI(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.Unpublish(&api.UnpublishRequest{UUID: args[0]}); err != nil {
		return fmt.Errorf("unpublish volume: %w", err)
	}
	fmt.Println("unpublished")
	return nil
}

func runVolumeDestroy(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("api-addr")
	c, err := dialCSI(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.DestroyVolume(&api.DestroyVolumeRequest{UUID: args[0]}); err != nil {
		return fmt.Errorf("destroy volume: %w", err)
	}
	fmt.Println("destroyed")
	return nil
}

func runVolumeList(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("api-addr")
	c, err := dialCSI(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.ListVolumes(&api.ListVolumesRequest{})
	if err != nil {
		return fmt.Errorf("list volumes: %w", err)
	}
	if len(resp.Volumes) == 0 {
		fmt.Println("no volumes found")
		return nil
	}
	fmt.Printf("%-36s %-10s %-12s %s\n", "UUID", "STATE", "SIZE", "PUBLISHED ON")
	for _, v := range resp.Volumes {
		publishedOn := v.PublishedOn
		if publishedOn == "" {
			publishedOn = "<none>"
		}
		fmt.Printf("%-36s %-10s %-12d %s\n", v.UUID, v.State, v.Size, publishedOn)
	}
	return nil
}
