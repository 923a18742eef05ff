package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage declarative pool resources",
}

var poolApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update a pool resource",
	Long: `Write a pool resource YAML file into the resource directory a
running manager watches (internal/csource). The Pool Operator picks up
the change on its next poll and reconciles the target node's agent.`,
	RunE: runPoolApply,
}

var poolDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a pool resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoolDelete,
}

func init() {
	poolCmd.AddCommand(poolApplyCmd)
	poolCmd.AddCommand(poolDeleteCmd)

	poolApplyCmd.Flags().String("resource-dir", "./moac-data/pools", "Directory the manager watches for pool resources")
	poolApplyCmd.Flags().String("name", "", "Pool name (required)")
	poolApplyCmd.Flags().String("node", "", "Node to create the pool on (required)")
	poolApplyCmd.Flags().StringSlice("disk", nil, "Disk device path, repeatable (required)")
	poolApplyCmd.MarkFlagRequired("name")
	poolApplyCmd.MarkFlagRequired("node")
	poolApplyCmd.MarkFlagRequired("disk")

	poolDeleteCmd.Flags().String("resource-dir", "./moac-data/pools", "Directory the manager watches for pool resources")
}

type poolResourceFile struct {
	Name  string   `yaml:"name"`
	Node  string   `yaml:"node"`
	Disks []string `yaml:"disks"`
}

func runPoolApply(cmd *cobra.Command, args []string) error {
	resourceDir, _ := cmd.Flags().GetString("resource-dir")
	name, _ := cmd.Flags().GetString("name")
	node, _ := cmd.Flags().GetString("node")
	disks, _ := cmd.Flags().GetStringSlice("disk")

	if err := os.MkdirAll(resourceDir, 0o755); err != nil {
		return fmt.Errorf("create resource dir: %w", err)
	}

	data, err := yaml.Marshal(poolResourceFile{Name: name, Node: node, Disks: disks})
	if err != nil {
		return fmt.Errorf("marshal pool resource: %w", err)
	}
	path := filepath.Join(resourceDir, name+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Printf("pool resource written: %s\n", path)
	return nil
}

func runPoolDelete(cmd *cobra.Command, args []string) error {
	resourceDir, _ := cmd.Flags().GetString("resource-dir")
	name := args[0]
	path := filepath.Join(resourceDir, name+".yaml")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	fmt.Printf("pool resource deleted: %s\n", name)
	return nil
}
