package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"slide-master/internal/artifact"
	"slide-master/internal/deck"
	"slide-master/internal/render/pptx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Handle webhooks as an AWS Lambda function",
	Args:  cobra.NoArgs,
	RunE:  runLambda,
}

var renderCmd = &cobra.Command{
	Use:   "render <response.json>",
	Short: "Render a saved model response into a .pptx file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove artifacts older than the configured max age",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

var grantCmd = &cobra.Command{
	Use:   "grant <requester-id>",
	Short: "Credit an account or toggle unlimited generation",
	Args:  cobra.ExactArgs(1),
	RunE:  runGrant,
}

var (
	renderTopic  string
	renderSlides int
	renderOut    string
	renderBrand  string

	grantCredit    int
	grantUnlimited string
)

func init() {
	renderCmd.Flags().StringVar(&renderTopic, "topic", "", "Deck topic used as fallback title")
	renderCmd.Flags().IntVar(&renderSlides, "slides", 10, "Number of slides to keep")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "deck.pptx", "Output file")
	renderCmd.Flags().StringVar(&renderBrand, "brand", deck.DefaultBrand, "Footer brand text")

	grantCmd.Flags().IntVar(&grantCredit, "credit", 0, "Generations to add")
	grantCmd.Flags().StringVar(&grantUnlimited, "unlimited", "", "Set unlimited generation (true or false)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	go sweepLoop(ctx, a)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func runLambda(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cmd.Context(), cfg, log, false)
	if err != nil {
		return err
	}
	lambda.Start(a.handler.Handle)
	return nil
}

func runRender(_ *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tree, err := deck.Sanitize(string(raw))
	if err != nil {
		return err
	}
	topic := renderTopic
	if topic == "" {
		topic = filepath.Base(args[0])
	}
	d, err := deck.Decode(tree, topic, renderSlides)
	if err != nil {
		return err
	}

	asm := deck.NewAssembler(renderBrand)
	plans := asm.Plan(d)
	data, err := pptx.Encode(asm.AssemblePlanned(d, plans))
	if err != nil {
		return err
	}
	if err := os.WriteFile(renderOut, data, 0o644); err != nil {
		return fmt.Errorf("write deck: %w", err)
	}
	for i, p := range plans {
		fmt.Printf("slide %d: %s, %d points, %d dropped\n", i+1, p.Tier, len(p.Items), p.Dropped)
	}
	fmt.Printf("wrote %s (%d bytes)\n", renderOut, len(data))
	return nil
}

func runSweep(_ *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := artifact.NewManager(cfg.Artifacts.Dir)
	if err != nil {
		return err
	}
	n, err := m.Sweep(cfg.Artifacts.MaxAge)
	log.Info("sweep finished", "dir", cfg.Artifacts.Dir, "removed", n, "err", err)
	return err
}

func runGrant(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if grantCredit <= 0 && grantUnlimited == "" {
		return errors.New("nothing to grant: pass --credit or --unlimited")
	}
	ctx := cmd.Context()
	a := &app{cfg: cfg, log: log}
	defer a.close(context.Background())

	store, err := a.accounts(ctx)
	if err != nil {
		return err
	}
	id := args[0]
	if grantCredit > 0 {
		balance, err := store.Credit(ctx, id, grantCredit)
		if err != nil {
			return err
		}
		log.Info("credited", "requester_id", id, "amount", grantCredit, "balance", balance)
	}
	if grantUnlimited != "" {
		unlimited := grantUnlimited == "true"
		if !unlimited && grantUnlimited != "false" {
			return fmt.Errorf("invalid --unlimited value %q", grantUnlimited)
		}
		if err := store.SetUnlimited(ctx, id, unlimited); err != nil {
			return err
		}
		log.Info("unlimited updated", "requester_id", id, "unlimited", unlimited)
	}
	return nil
}

// sweepLoop removes artifacts left behind by crashed jobs, once at startup
// and then every max age.
func sweepLoop(ctx context.Context, a *app) {
	m, err := artifact.NewManager(a.cfg.Artifacts.Dir)
	if err != nil {
		a.log.Warn("artifact sweep disabled", "err", err)
		return
	}
	sweep := func() {
		if n, err := m.Sweep(a.cfg.Artifacts.MaxAge); err != nil || n > 0 {
			a.log.Info("artifact sweep", "removed", n, "err", err)
		}
	}
	sweep()
	t := time.NewTicker(a.cfg.Artifacts.MaxAge)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sweep()
		}
	}
}
