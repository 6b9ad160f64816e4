package main

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wsu2059q/qvqchat/plugin/ai/gate"
	"github.com/wsu2059q/qvqchat/plugin/ai/ratelimit"
)

// simulateCmd dry-runs the gate and token budget against synthetic
// traffic so stalker parameters can be tuned without touching a model
// endpoint or a live chat.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay synthetic traffic against the reply gate and token budget",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile(cmd)
		if err != nil {
			return err
		}

		messages, _ := cmd.Flags().GetInt("messages")
		scopes, _ := cmd.Flags().GetInt("scopes")

		g := gate.New(gate.ConfigFromProfile(p))
		limiter := ratelimit.NewLimiter(p.RateLimitTokens, p.RateLimitWindow)

		var replies, budgetDenied atomic.Int64

		eg := errgroup.Group{}
		for s := 0; s < scopes; s++ {
			scopeID := fmt.Sprintf("sim-%d", s)
			eg.Go(func() error {
				rng := rand.New(rand.NewSource(int64(len(scopeID))))
				for i := 0; i < messages; i++ {
					trigger := gate.TriggerAmbient
					if rng.Float64() < 0.05 {
						trigger = gate.TriggerMention
					}
					if !g.ShouldReply(scopeID, trigger) {
						continue
					}
					if !limiter.Reserve(scopeID, 200+rng.Intn(800)) {
						budgetDenied.Add(1)
						continue
					}
					g.CommitReply(scopeID)
					replies.Add(1)
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}

		total := int64(messages * scopes)
		fmt.Printf("messages: %d\nreplies: %d (%.2f%%)\nbudget denied: %d\n",
			total, replies.Load(), float64(replies.Load())*100/float64(total), budgetDenied.Load())
		return nil
	},
}

func init() {
	simulateCmd.Flags().Int("messages", 10000, "messages per scope")
	simulateCmd.Flags().Int("scopes", 4, "number of concurrent scopes")
}
