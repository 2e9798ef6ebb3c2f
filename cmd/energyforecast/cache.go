package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the readings cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached windows",
	Long:  `Lists every cached window with its age, reading count and size on disk.`,
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached windows",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	readingsCache := openCache(newLogger())

	entries := readingsCache.Status()
	if len(entries) == 0 {
		fmt.Println("Cache is empty")
		return nil
	}

	fmt.Printf("Cache file: %s\n\n", getCachePath())
	fmt.Printf("%-70s  %8s  %8s  %8s\n", "Key", "Age", "Readings", "Size")
	for _, e := range entries {
		fmt.Printf("%-70s  %8s  %8d  %8s\n",
			e.Key, e.Age.Truncate(time.Second), e.Readings, humanize.Bytes(uint64(e.SizeBytes)))
	}
	fmt.Printf("\n%d entries\n", len(entries))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	readingsCache := openCache(newLogger())
	if err := readingsCache.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	fmt.Println("✓ Cache cleared")
	return nil
}
