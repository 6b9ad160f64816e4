package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/wsu2059q/qvqchat/internal/profile"
	"github.com/wsu2059q/qvqchat/plugin/ai"
	"github.com/wsu2059q/qvqchat/plugin/ai/agent"
	"github.com/wsu2059q/qvqchat/plugin/ai/gate"
	"github.com/wsu2059q/qvqchat/plugin/ai/intent"
	"github.com/wsu2059q/qvqchat/plugin/ai/memory"
	"github.com/wsu2059q/qvqchat/plugin/ai/ratelimit"
	"github.com/wsu2059q/qvqchat/plugin/ai/segment"
	"github.com/wsu2059q/qvqchat/plugin/ai/session"
	"github.com/wsu2059q/qvqchat/store"
	"github.com/wsu2059q/qvqchat/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "qvqchat",
	Short: "Autonomous group chat companion",
}

func init() {
	rootCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	}
	rootCmd.PersistentFlags().String("config", "", "config file path")
	rootCmd.PersistentFlags().String("mode", "dev", "mode of server: prod, dev or demo")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver: sqlite or postgres")
	rootCmd.PersistentFlags().String("dsn", "", "database connection string")
	rootCmd.PersistentFlags().String("data", ".", "data directory")

	for _, flag := range []string{"mode", "driver", "dsn", "data"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(simulateCmd)
}

// loadProfile layers defaults, an optional config file, flags and the
// environment, in that order.
func loadProfile(cmd *cobra.Command) (*profile.Profile, error) {
	p := profile.Default()

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := viper.Unmarshal(p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// runtime holds everything a running instance needs.
type runtime struct {
	profile *profile.Profile
	store   *store.Store
	orch    *agent.Orchestrator
	window  *session.Window
	voice   *ai.Provider // nil unless voice output is enabled
}

func buildRuntime(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	p, err := loadProfile(cmd)
	if err != nil {
		return nil, err
	}

	driver, err := db.NewDriver(p)
	if err != nil {
		return nil, err
	}
	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		return nil, err
	}

	caps, err := ai.ResolveAll(p)
	if err != nil {
		return nil, err
	}

	dialogue := ai.NewProvider(caps.Dialogue)
	intentModel := ai.NewProvider(caps.Intent, ai.WithTimeout(10*time.Second))
	memoryModel := ai.NewProvider(caps.Memory, ai.WithTimeout(10*time.Second))

	var vision *ai.Provider
	if caps.Vision.APIKey != "" {
		vision = ai.NewProvider(caps.Vision)
	}
	var voice *ai.Provider
	if p.VoiceEnabled {
		voice = ai.NewProvider(caps.Voice)
	}

	matcher := memory.NewLLMMatcher(memoryModel, ratelimit.NewPacer(3*time.Second, 2))
	memSvc := memory.NewService(st, matcher)

	window := session.NewWindow(10)
	tracker := session.NewTracker(st)

	deps := agent.Deps{
		Dialogue:   dialogue,
		Classifier: intent.NewClassifier(intentModel),
		Gate:       gate.New(gate.ConfigFromProfile(p)),
		Limiter:    ratelimit.NewLimiter(p.RateLimitTokens, p.RateLimitWindow),
		Memory:     memSvc,
		Window:     window,
		Tracker:    tracker,
	}
	if vision != nil {
		deps.Vision = vision
	}

	return &runtime{
		profile: p,
		store:   st,
		orch:    agent.New(p, caps.Dialogue.MaxTokens, deps),
		window:  window,
		voice:   voice,
	}, nil
}

func (r *runtime) close() {
	r.window.Close()
	if err := r.store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
}

// inboundEvent is the adapter wire format, one JSON object per line.
type inboundEvent struct {
	ScopeID    string   `json:"scope_id"`
	SenderID   string   `json:"sender_id"`
	SenderName string   `json:"sender_name"`
	Text       string   `json:"text"`
	ImageURLs  []string `json:"image_urls,omitempty"`
	IsMention  bool     `json:"is_mention"`
}

type outboundSegment struct {
	Content   string `json:"content"`
	DelayMs   int64  `json:"delay_ms,omitempty"`
	VoicePath string `json:"voice_path,omitempty"`
}

type outboundReply struct {
	ScopeID  string            `json:"scope_id"`
	Outcome  string            `json:"outcome"`
	Segments []outboundSegment `json:"segments,omitempty"`
}

// replyWriter serializes reply encoding onto one stream. json.Encoder
// is not safe for concurrent use, and handlers finish in any order.
type replyWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newReplyWriter(w io.Writer) *replyWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &replyWriter{enc: enc}
}

func (w *replyWriter) write(reply outboundReply) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(reply)
}

// serve reads events from stdin and writes reply decisions to stdout.
// Platform adapters pipe into it; everything transport-specific stays
// on their side.
func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, rootCmd)
	if err != nil {
		return err
	}
	defer rt.close()

	slog.Info("qvqchat started",
		"mode", rt.profile.Mode,
		"driver", rt.profile.Driver,
		"stalker_enabled", rt.profile.StalkerEnabled)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(32)

	writer := newReplyWriter(os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return g.Wait()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var in inboundEvent
		if err := json.Unmarshal(line, &in); err != nil {
			slog.Warn("malformed event line", "error", err)
			continue
		}

		g.Go(func() error {
			reply := rt.handle(ctx, in)
			if err := writer.write(reply); err != nil {
				slog.Error("failed to write reply", "error", err)
			}
			return nil
		})
	}
	if err := scanner.Err(); err != nil {
		slog.Error("stdin read failed", "error", err)
	}
	return g.Wait()
}

func (r *runtime) handle(ctx context.Context, in inboundEvent) outboundReply {
	out, err := r.orch.HandleMessage(ctx, agent.Event{
		ScopeID:    in.ScopeID,
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		Text:       in.Text,
		ImageURLs:  in.ImageURLs,
		IsMention:  in.IsMention,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return outboundReply{ScopeID: in.ScopeID, Outcome: string(agent.OutcomeError)}
	}

	reply := outboundReply{ScopeID: in.ScopeID, Outcome: string(out.Kind)}
	for _, seg := range out.Segments {
		obs := outboundSegment{Content: seg.Content, DelayMs: seg.Delay.Milliseconds()}
		if voice := segment.ParseVoice(seg.Content); voice.HasVoice {
			obs.Content = voice.Text
			path, err := r.synthesize(ctx, voice)
			switch {
			case err != nil:
				slog.Warn("voice synthesis failed", "error", err)
			case path != "":
				obs.VoicePath = path
			}
			if obs.VoicePath == "" && obs.Content == "" {
				// No synthesis available: say it as plain text rather
				// than sending an empty message.
				obs.Content = voice.Content
			}
		}
		reply.Segments = append(reply.Segments, obs)
	}
	return reply
}

// synthesize renders a voice block to an mp3 file in the data
// directory and returns its path. Disabled voice output drops the
// block's speech, keeping only its text.
func (r *runtime) synthesize(ctx context.Context, voice segment.Voice) (string, error) {
	if r.voice == nil || voice.Content == "" {
		return "", nil
	}
	audio, err := r.voice.Speech(ctx, voice.Style, voice.Content, r.profile.VoiceID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(r.profile.Data, fmt.Sprintf("voice_%s.mp3", uuid.NewString()))
	if err := os.WriteFile(path, audio, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
