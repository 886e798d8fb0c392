package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/marqueetv/marquee"
	"github.com/marqueetv/marquee/internal/config"
	"github.com/marqueetv/marquee/internal/domain"
	"github.com/marqueetv/marquee/internal/logging"
	"github.com/marqueetv/marquee/internal/source"
)

// Version is set at build time via -ldflags
var Version = "dev"

const usageText = `Usage: marquee [flags] [action]

Actions:
  home                 show the storefront rails (default)
  browse <path>        list the items behind a rail or title path
  search <query>       search the catalog
  play <item-id>       resolve a stream descriptor for an item
  login                sign in and store the credentials
  logout               sign out and clear local state
  watchlist <item-id>  add an item to the watchlist
  watched <item-id>    mark an item watched (-undo clears it)
  diagnostics          probe catalog latency cold and warm

Flags:
  -page <cursor>       continue a listing from this cursor
  -undo                clear the watched flag instead of setting it
  -v, -version         print version
`

func main() {
	var showVersion bool
	var page string
	var undo bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&page, "page", "", "continue a listing from this cursor")
	flag.BoolVar(&undo, "undo", false, "clear the watched flag instead of setting it")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()

	if showVersion {
		fmt.Printf("marquee %s\n", Version)
		return
	}

	if err := run(flag.Args(), page, undo); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, page string, undo bool) error {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := logging.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = logging.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting marquee", "version", Version)

	// The provider pins stream grants to the device id, so it has to
	// exist before the first authorized request
	if err := config.EnsureDeviceID(cfg); err != nil {
		logger.Warn("could not persist device identity", "error", err)
	}

	if err := marquee.Init(cfg,
		marquee.WithLogger(logger),
		marquee.WithChallengeSolver(promptSolver{}),
	); err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer func() {
		if err := marquee.Shutdown(); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	client := marquee.Default()
	ctx := context.Background()

	action := "home"
	if len(args) > 0 {
		action = args[0]
	}

	switch action {
	case "home":
		return showHome(ctx, client)
	case "browse":
		if len(args) < 2 {
			return fmt.Errorf("usage: marquee [-page cursor] browse <path>")
		}
		return showListing(ctx, client, args[1], page)
	case "search":
		if len(args) < 2 {
			return fmt.Errorf("usage: marquee [-page cursor] search <query>")
		}
		return showSearch(ctx, client, strings.Join(args[1:], " "), page)
	case "play":
		if len(args) < 2 {
			return fmt.Errorf("usage: marquee play <item-id>")
		}
		return showPlayable(ctx, client, args[1])
	case "login":
		return runLogin(ctx, client, cfg)
	case "logout":
		if err := client.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	case "watchlist":
		if len(args) < 2 {
			return fmt.Errorf("usage: marquee watchlist <item-id>")
		}
		if err := ensureSession(ctx, client); err != nil {
			return err
		}
		if err := client.AddToWatchlist(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("Added %s to your watchlist.\n", args[1])
		return nil
	case "watched":
		if len(args) < 2 {
			return fmt.Errorf("usage: marquee [-undo] watched <item-id>")
		}
		if err := ensureSession(ctx, client); err != nil {
			return err
		}
		if err := client.MarkAsWatched(ctx, args[1], !undo); err != nil {
			return err
		}
		if undo {
			fmt.Printf("Cleared the watched flag on %s.\n", args[1])
		} else {
			fmt.Printf("Marked %s as watched.\n", args[1])
		}
		return nil
	case "diagnostics":
		return showDiagnostics(ctx, client)
	default:
		return fmt.Errorf("unknown action %q, run marquee -h for usage", action)
	}
}

// ensureSession brings the session up before an account-facing action
func ensureSession(ctx context.Context, client *marquee.Client) error {
	state, err := client.EnsureSession(ctx)
	if err != nil {
		return err
	}
	if state.Phase == domain.SessionAwaitingChallenge {
		return fmt.Errorf("a sign-in challenge is pending; run marquee login to finish")
	}
	return nil
}

func showHome(ctx context.Context, client *marquee.Client) error {
	if err := ensureSession(ctx, client); err != nil {
		return err
	}

	rails, err := client.GetHome(ctx)
	if err != nil {
		return err
	}
	if len(rails) == 0 {
		fmt.Println("The storefront is empty.")
		return nil
	}

	for _, rail := range rails {
		count := ""
		if n := len(rail.ItemIDs); n > 0 {
			count = fmt.Sprintf("  (%d items)", n)
		}
		fmt.Printf("%-24s [%s]  %s%s\n", rail.ID, rail.Class, rail.Title, count)
	}
	fmt.Println("\nList a rail with: marquee browse <rail-id>")
	return nil
}

func showListing(ctx context.Context, client *marquee.Client, path, cursor string) error {
	if err := ensureSession(ctx, client); err != nil {
		return err
	}

	items, next, err := client.Browse(ctx, path, cursor)
	if err != nil {
		return err
	}

	printItems(items)
	if next != "" {
		fmt.Printf("\nMore available: marquee -page %s browse %s\n", next, path)
	}
	return nil
}

func showSearch(ctx context.Context, client *marquee.Client, query, cursor string) error {
	if err := ensureSession(ctx, client); err != nil {
		return err
	}

	items, next, err := client.Search(ctx, query, cursor)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Printf("No matches for %q.\n", query)
		return nil
	}

	printItems(items)
	if next != "" {
		fmt.Printf("\nMore available: marquee -page %s search %s\n", next, query)
	}
	return nil
}

func printItems(items []domain.Item) {
	for _, item := range items {
		line := fmt.Sprintf("%-16s [%s]  %s", item.ID, item.Kind, item.Label())
		if d := item.FormattedDuration(); d != "" {
			line += "  " + d
		}
		fmt.Println(line)
	}
}

func showPlayable(ctx context.Context, client *marquee.Client, itemID string) error {
	if err := client.EnsureReady(ctx); err != nil {
		return err
	}

	d, err := client.GetPlayable(ctx, itemID)
	if err != nil {
		return err
	}

	fmt.Printf("Manifest (%s): %s\n", d.ManifestType, d.ManifestURL)
	if d.DRMProtected() {
		fmt.Printf("License:        %s\n", d.LicenseURL)
	}

	keys := make([]string, 0, len(d.Headers))
	for k := range d.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("Header:         %s: %s\n", k, d.Headers[k])
	}

	for _, track := range d.AudioTracks {
		marker := ""
		if track.Original {
			marker = " *"
		}
		fmt.Printf("Audio:          %s [%s]%s\n", track.DisplayName, track.Language, marker)
	}
	for _, track := range d.SubtitleTracks {
		fmt.Printf("Subtitles:      %s [%s]\n", track.DisplayName, track.Language)
	}
	return nil
}

// runLogin prompts for credentials, signs in and stores them on success
func runLogin(ctx context.Context, client *marquee.Client, cfg *config.Config) error {
	fmt.Println()
	fmt.Println("Sign in to Strand")
	fmt.Println()

	// Confirm a Strand backend answers before asking for credentials
	detectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := source.Detect(detectCtx, cfg.Provider.BaseURL); err != nil {
		fmt.Printf("✗ %s is not answering: %v\n", cfg.Provider.BaseURL, err)
		fmt.Println("Check provider.base_url in your config and try again.")
		return fmt.Errorf("provider unreachable")
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	fmt.Print("Password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	cfg.Account.Email = strings.TrimSpace(email)
	cfg.Account.Password = strings.TrimSpace(password)
	if cfg.Account.Email == "" || cfg.Account.Password == "" {
		return fmt.Errorf("email and password are required")
	}

	state, err := client.EnsureSession(ctx)
	if err != nil {
		return err
	}

	switch state.Phase {
	case domain.SessionAuthenticated:
		if err := config.SaveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Println()
		fmt.Println("✓ Signed in and credentials saved!")
		return nil
	case domain.SessionAwaitingChallenge:
		return fmt.Errorf("the sign-in challenge was not completed; run marquee login again")
	default:
		return fmt.Errorf("sign-in failed: %s", state.Reason)
	}
}

func showDiagnostics(ctx context.Context, client *marquee.Client) error {
	// A session improves the probe but the storefront answers without one
	if err := ensureSession(ctx, client); err != nil {
		fmt.Printf("Note: probing without a session (%v)\n\n", err)
	}

	report, err := client.Diagnostics(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Strategy: %s\n", report.Strategy)
	fmt.Printf("Session:  %s\n", report.Session)

	for i, run := range report.Runs {
		label := "warm"
		if run.Cold {
			label = "cold"
		} else if !run.Warm {
			label = "mixed"
		}
		slow := ""
		if run.Slow {
			slow = "  SLOW"
		}
		fmt.Printf("\nRun %d (%s): %s%s\n", i+1, label, run.Elapsed.Round(time.Millisecond), slow)

		for _, rail := range run.Rails {
			origin := "provider"
			if rail.FromCache {
				origin = "cache"
			}
			line := fmt.Sprintf("  %-28s %10s  %s", rail.Title, rail.Elapsed.Round(time.Millisecond), origin)
			if rail.Slow {
				line += "  SLOW"
			}
			fmt.Println(line)
		}
	}
	return nil
}

// promptSolver answers interactive sign-in challenges on stdin
type promptSolver struct{}

func (promptSolver) Solve(_ context.Context, ch domain.Challenge) (string, error) {
	fmt.Println()
	switch ch.Kind {
	case domain.ChallengeCaptcha:
		fmt.Println("The provider wants a CAPTCHA solved.")
		if ch.Hint != "" {
			fmt.Printf("Image: %s\n", ch.Hint)
		}
	default:
		fmt.Println("The provider wants a verification code.")
		if ch.Hint != "" {
			fmt.Println(ch.Hint)
		}
	}

	fmt.Print("Answer: ")
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}
