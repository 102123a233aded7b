package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rahmetlabs/social-analyzer/internal/genai"
	"github.com/rahmetlabs/social-analyzer/internal/storage"
)

const checkSample = "Kubernetes 1.31 ships sidecar containers as stable. Worth upgrading clusters this week."

// newCheckCommand verifies connectivity to the store, scraper credentials and
// optionally the rewrite backend and notification channels.
func newCheckCommand(a *app) *cobra.Command {
	var withRewrite, withNotify bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Test connectivity to the store and configured integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			fmt.Printf("🔍 Social Analyzer - Connectivity Check (%s)\n", a.cfg.Platform)
			fmt.Println(strings.Repeat("=", 42))

			failed := false

			fmt.Println("\n🗄️  Testing store partitions...")
			fmt.Println(strings.Repeat("-", 40))
			store, err := a.openStore(ctx)
			if err != nil {
				fmt.Printf("❌ ERROR: %v\n", err)
				return err
			}
			for _, partition := range a.cfg.Profile.SourcePartitions {
				failed = checkPartition(ctx, store, partition) || failed
			}
			failed = checkPartition(ctx, store, a.cfg.Profile.TargetPartition) || failed

			fmt.Println("\n📡 Testing scraper...")
			fmt.Println(strings.Repeat("-", 40))
			if source, err := newSource(a.cfg); err != nil {
				fmt.Printf("⚠️  %v\n", err)
			} else if source.IsEnabled() {
				fmt.Printf("✅ %s scraper configured\n", source.GetName())
			} else {
				fmt.Printf("⚠️  %s scraper DISABLED (missing credentials)\n", source.GetName())
			}

			if withRewrite {
				fmt.Println("\n🤖 Testing rewrite backend...")
				fmt.Println(strings.Repeat("-", 40))
				failed = checkRewrite(ctx, a) || failed
			}

			if withNotify {
				fmt.Println("\n📣 Sending test notification...")
				fmt.Println(strings.Repeat("-", 40))
				msg := fmt.Sprintf("🧪 Connectivity check from analyzer (%s)", a.cfg.Platform)
				if err := a.notifier.Notify(ctx, msg); err != nil {
					fmt.Printf("❌ ERROR: %v\n", err)
					failed = true
				} else {
					fmt.Println("✅ Notification sent")
				}
			}

			if failed {
				fmt.Println("\n❌ Connectivity check found problems")
				return errors.New("connectivity check failed")
			}
			fmt.Println("\n✅ Connectivity check completed!")
			return nil
		},
	}

	cmd.Flags().BoolVar(&withRewrite, "rewrite", false, "also send one sample post to the rewrite backend")
	cmd.Flags().BoolVar(&withNotify, "notify", false, "also send a test notification")
	return cmd
}

// checkPartition reports whether reading the partition failed
func checkPartition(ctx context.Context, store storage.Store, partition string) bool {
	fmt.Printf("🔸 Reading %s... ", partition)

	table, err := store.ReadAll(ctx, partition)
	switch {
	case errors.Is(err, storage.ErrPartitionNotFound):
		fmt.Printf("⚠️  MISSING\n")
		return false
	case err != nil:
		fmt.Printf("❌ ERROR: %v\n", err)
		return true
	}

	rows := 0
	if len(table) > 1 {
		rows = len(table) - 1
	}
	fmt.Printf("✅ SUCCESS (%d rows)\n", rows)
	return false
}

func checkRewrite(ctx context.Context, a *app) bool {
	rewriter, err := genai.New(a.cfg)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return true
	}

	fmt.Printf("🔸 Rewriting with %s... ", rewriter.Name())
	out, err := rewriter.Rewrite(ctx, checkSample, genai.English)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return true
	}

	fmt.Printf("✅ SUCCESS\n")
	fmt.Printf("   📝 Sample: \"%s\"\n", truncateLine(out, 120))
	return false
}

func truncateLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
