package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"wedding-site/internal/config"
	"wedding-site/internal/database"
	"wedding-site/internal/feed"
	"wedding-site/internal/models"
	"wedding-site/internal/storage"
	"wedding-site/internal/stories"
	"wedding-site/internal/upload"
)

// FeedOptions holds flags shared by the feed commands.
type FeedOptions struct {
	*RootOptions
	Name      string
	Email     string
	Avatar    string
	BrokerURL string
}

// NewFeedCommand creates the feed command group.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Browse and post to the guest feed",
		Long: `Browse and post to the guest feed.

The first command signs in with --name and --email; the guest is then
remembered in DATA_DIR and later commands need no flags.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Name, "name", "", "display name for sign-in")
	cmd.PersistentFlags().StringVar(&opts.Email, "email", "", "email for sign-in")
	cmd.PersistentFlags().StringVar(&opts.Avatar, "avatar", "", "avatar image to upload at sign-in")
	cmd.PersistentFlags().StringVar(&opts.BrokerURL, "broker-url", "http://localhost:8080/upload-media", "upload broker URL")

	cmd.AddCommand(
		newFeedPostsCommand(opts),
		newFeedWatchCommand(opts),
		newFeedStoriesCommand(opts),
		newFeedPublishCommand(opts),
		newFeedReactCommand(opts),
		newFeedCommentCommand(opts),
		newFeedSignOutCommand(opts),
	)
	return cmd
}

// feedSession is a signed-in engine and the resources behind it.
type feedSession struct {
	engine *feed.Engine
	guest  *models.Guest
	close  func()
}

func openFeed(ctx context.Context, opts *FeedOptions) (*feedSession, error) {
	cfg := opts.Config
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	store, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	kv, err := storage.NewStorage(filepath.Join(cfg.DataDir, "feed.db"))
	if err != nil {
		store.Close()
		return nil, err
	}
	closeAll := func() {
		kv.Close()
		store.Close()
	}

	var engine *feed.Engine
	uploader := upload.NewClient(opts.BrokerURL, cfg.PublicMediaBase(), func() string {
		return guestToken(cfg, engine.Guest())
	}, nil)
	engine = feed.NewEngine(store,
		feed.WithUploader(uploader),
		feed.WithKV(kv),
		feed.WithStoryTTL(cfg.StoryTTL),
		feed.WithLogger(opts.Log),
	)

	guest, err := signIn(ctx, engine, opts)
	if err != nil {
		closeAll()
		return nil, err
	}
	return &feedSession{engine: engine, guest: guest, close: closeAll}, nil
}

func signIn(ctx context.Context, engine *feed.Engine, opts *FeedOptions) (*models.Guest, error) {
	if opts.Email == "" && opts.Name == "" {
		guest, err := engine.Restore()
		if err != nil {
			return nil, err
		}
		if guest == nil {
			return nil, errors.New("not signed in, pass --name and --email")
		}
		return guest, nil
	}

	var avatar *upload.Media
	if opts.Avatar != "" {
		m, err := readMedia(opts.Avatar)
		if err != nil {
			return nil, err
		}
		avatar = &m
	}
	return engine.SignIn(ctx, opts.Name, opts.Email, avatar)
}

// guestToken mints a short-lived upload token for g when this process
// holds the signing secret.
func guestToken(cfg *config.Config, g *models.Guest) string {
	if g == nil || cfg.AuthJWTSecret == "" {
		return ""
	}
	token, err := upload.IssueToken(cfg.AuthJWTSecret, upload.Claims{
		Email: g.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   g.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if err != nil {
		return ""
	}
	return token
}

func readMedia(path string) (upload.Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return upload.Media{}, fmt.Errorf("failed to read media: %w", err)
	}
	return upload.Media{
		FileName:    filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newFeedPostsCommand(opts *FeedOptions) *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Show the newest posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			s, err := openFeed(ctx, opts)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.engine.FetchPosts(ctx, true); err != nil {
				return err
			}
			for i := 1; i < pages && s.engine.HasMore(); i++ {
				if err := s.engine.FetchPosts(ctx, false); err != nil {
					return err
				}
			}
			if opts.Format == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"posts": s.engine.Posts(), "hasMore": s.engine.HasMore()})
			}
			return printPosts(cmd.OutOrStdout(), s.engine.Posts(), s.engine.HasMore())
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	return cmd
}

func newFeedWatchCommand(opts *FeedOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow live feed changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(commandContext(cmd))
			defer stop()

			s, err := openFeed(ctx, opts)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.engine.FetchPosts(ctx, true); err != nil {
				return err
			}
			if err := s.engine.FetchStories(ctx); err != nil {
				return err
			}
			opts.Log.Info().
				Int("posts", len(s.engine.Posts())).
				Int("stories", len(s.engine.Stories())).
				Msg("Watching feed")

			events := make(chan feed.ChangeEvent, 64)
			go feed.NewListener(opts.Config.DatabaseURL, opts.Log).Run(ctx, events)

			if err := s.engine.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newFeedStoriesCommand(opts *FeedOptions) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "stories",
		Short: "Play the active stories, marking each as viewed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(commandContext(cmd))
			defer stop()

			s, err := openFeed(ctx, opts)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.engine.FetchStories(ctx); err != nil {
				return err
			}
			groups := stories.GroupByGuest(s.engine.Stories())
			out := cmd.OutOrStdout()
			if len(groups) == 0 {
				fmt.Fprintln(out, "No stories right now.")
				return nil
			}
			return playStories(ctx, s.engine, groups, duration, func(st models.Story, seen bool) {
				marker := " "
				if seen {
					marker = "✓"
				}
				fmt.Fprintf(out, "%s %s  %s  %s %s\n", marker, st.ID, authorName(st.Guest), st.MediaType, st.MediaURL)
			}, opts)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", stories.DefaultDuration, "time each story stays on screen")
	return cmd
}

// playStories runs a viewer over groups until it closes or ctx ends.
// show is called for every story that comes on screen with whether it had
// been seen before.
func playStories(ctx context.Context, engine *feed.Engine, groups []stories.Group, d time.Duration, show func(models.Story, bool), opts *FeedOptions) error {
	done := make(chan struct{})
	viewer := stories.NewViewer(groups,
		stories.WithDuration(d),
		stories.WithLogger(opts.Log),
		stories.WithViewCallback(func(st models.Story) {
			show(st, engine.HasViewed(st.ID))
			if err := engine.MarkViewed(ctx, st.ID); err != nil {
				opts.Log.Warn().Err(err).Str("story", st.ID).Msg("Unable to mark story viewed")
			}
		}),
		stories.WithChangeCallback(func(s stories.State) {
			if !s.Open {
				close(done)
			}
		}),
	)

	if err := viewer.Open(0, 0); err != nil {
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
		viewer.Close()
	}
	return nil
}

func newFeedPublishCommand(opts *FeedOptions) *cobra.Command {
	var file, caption, location string
	var story bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Share a photo or video as a post or story",
		Example: `  wedding feed publish --file dance.mp4 --caption "First dance"
  wedding feed publish --file cake.jpg --story`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			s, err := openFeed(ctx, opts)
			if err != nil {
				return err
			}
			defer s.close()

			kind := feed.ComposePost
			if story {
				kind = feed.ComposeStory
			}
			c := s.engine.NewComposer()
			c.Open(kind)
			if file != "" {
				m, err := readMedia(file)
				if err != nil {
					return err
				}
				c.SetMedia(m)
			}
			c.SetCaption(caption)
			c.SetLocation(location)

			if err := c.Submit(ctx); err != nil {
				if msg := c.View().Error; msg != "" {
					return fmt.Errorf("%s: %w", msg, err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shared your %s.\n", kind)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "photo or video to share")
	cmd.Flags().StringVar(&caption, "caption", "", "post caption")
	cmd.Flags().StringVar(&location, "location", "", "post location")
	cmd.Flags().BoolVar(&story, "story", false, "share as a story that expires after STORY_TTL")
	return cmd
}

func newFeedReactCommand(opts *FeedOptions) *cobra.Command {
	var story bool
	cmd := &cobra.Command{
		Use:   "react <id> <love|celebrate|laugh|wow|pray>",
		Short: "Toggle your reaction on a post or story",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			s, err := openFeed(ctx, opts)
			if err != nil {
				return err
			}
			defer s.close()

			t := models.ReactionType(args[1])
			if story {
				if err := s.engine.FetchStories(ctx); err != nil {
					return err
				}
				return s.engine.ReactToStory(ctx, args[0], t)
			}
			if err := s.engine.FetchPosts(ctx, true); err != nil {
				return err
			}
			return s.engine.React(ctx, args[0], t)
		},
	}
	cmd.Flags().BoolVar(&story, "story", false, "react to a story instead of a post")
	return cmd
}

func newFeedCommentCommand(opts *FeedOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <post-id> <text>",
		Short: "Comment on a post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			s, err := openFeed(ctx, opts)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.engine.FetchPosts(ctx, true); err != nil {
				return err
			}
			c, err := s.engine.Comment(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return printJSON(cmd.OutOrStdout(), c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Commented on %s.\n", args[0])
			return nil
		},
	}
}

func newFeedSignOutCommand(opts *FeedOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the remembered guest",
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storage.NewStorage(filepath.Join(opts.Config.DataDir, "feed.db"))
			if err != nil {
				return err
			}
			defer kv.Close()
			feed.NewEngine(nil, feed.WithKV(kv)).SignOut()
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}
