package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/barotovamirbek/elowy-chat/internal/chat"
	"github.com/barotovamirbek/elowy-chat/internal/config"
	"github.com/barotovamirbek/elowy-chat/internal/logging"
	"github.com/barotovamirbek/elowy-chat/internal/models"
	"github.com/barotovamirbek/elowy-chat/internal/realtime"
	"github.com/barotovamirbek/elowy-chat/internal/session"
)

type options struct {
	configFile string
	serverURL  string
	username   string
	password   string
	peer       int
	group      int
	ai         bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "elowy",
		Short:        "Terminal client for the Elowy chat",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "path to config.yaml")
	flags.StringVar(&opts.serverURL, "server", "", "server base URL")
	flags.StringVarP(&opts.username, "username", "u", "", "account username")
	flags.StringVarP(&opts.password, "password", "p", "", "account password")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg, opts, log, os.Stdin, cmd.OutOrStdout())
		},
	}
	chatCmd.Flags().IntVar(&opts.peer, "peer", 0, "open the direct conversation with this user id")
	chatCmd.Flags().IntVar(&opts.group, "group", 0, "open this group")
	chatCmd.Flags().BoolVar(&opts.ai, "ai", false, "open the AI conversation")

	var name, email string
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			sess := session.New(cfg.ServerURL, cfg.Timeout, log)
			user, err := sess.Register(cmd.Context(), models.RegisterRequest{
				Name:     name,
				Username: cfg.Username,
				Email:    email,
				Password: cfg.Password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
	registerCmd.Flags().StringVar(&name, "name", "", "display name")
	registerCmd.Flags().StringVar(&email, "email", "", "email address")

	root.AddCommand(chatCmd, registerCmd)
	return root
}

func setup(opts *options) (*config.ClientConfig, *logrus.Logger, error) {
	cfg, err := config.LoadClient(opts.configFile)
	if err != nil {
		return nil, nil, err
	}
	if opts.serverURL != "" {
		cfg.ServerURL = opts.serverURL
	}
	if opts.username != "" {
		cfg.Username = opts.username
	}
	if opts.password != "" {
		cfg.Password = opts.password
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, nil, errors.New("username and password are required")
	}
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func runChat(ctx context.Context, cfg *config.ClientConfig, opts *options, log logrus.FieldLogger, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := session.New(cfg.ServerURL, cfg.Timeout, log)
	user, err := sess.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return err
	}
	defer sess.Logout()

	wsURL, err := realtime.URL(sess.BaseURL())
	if err != nil {
		return err
	}

	r := &renderer{out: out, self: user.ID, aiID: cfg.AIResponderID}
	view := chat.NewView(user.ID, cfg.AIResponderID, sess, log, chat.WithOnChange(r.render), chat.WithSession(sess))

	groups, err := sess.Groups(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to load groups")
	} else {
		view.SetGroups(groups)
	}

	fmt.Fprintf(out, "logged in as %s (id %d). Type /help for commands.\n", user.Username, user.ID)

	dial := func(ctx context.Context, handler func(models.Event)) (chat.Connection, error) {
		ch, err := realtime.Dial(ctx, wsURL, sess.Token(), handler, log)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return view.Run(gctx, dial)
	})
	g.Go(func() error {
		defer cancel()
		switch {
		case opts.group > 0:
			view.Select(gctx, models.GroupTarget(opts.group))
		case opts.ai:
			view.Select(gctx, models.DirectTarget(cfg.AIResponderID))
		case opts.peer > 0:
			view.Select(gctx, models.DirectTarget(opts.peer))
		}
		return inputLoop(gctx, view, cfg.AIResponderID, in, out)
	})
	return g.Wait()
}

// inputLoop reads commands and messages until /quit, EOF or ctx is done.
func inputLoop(ctx context.Context, view *chat.View, aiID int, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := view.Send(ctx, line); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit":
			return nil
		case "/help":
			fmt.Fprintln(out, "/peer ID  /group ID  /ai  /groups  /close  /quit")
		case "/ai":
			view.Select(ctx, models.DirectTarget(aiID))
		case "/close":
			view.Deselect()
		case "/groups":
			for _, g := range view.Snapshot().Groups {
				fmt.Fprintf(out, "  %d  %s\n", g.ID, g.Name)
			}
		case "/peer", "/group":
			if len(fields) != 2 {
				fmt.Fprintf(out, "! usage: %s ID\n", fields[0])
				continue
			}
			id, err := strconv.Atoi(fields[1])
			if err != nil || id <= 0 {
				fmt.Fprintf(out, "! invalid id %q\n", fields[1])
				continue
			}
			if fields[0] == "/group" {
				view.Select(ctx, models.GroupTarget(id))
			} else {
				view.Select(ctx, models.DirectTarget(id))
			}
		default:
			fmt.Fprintf(out, "! unknown command %s\n", fields[0])
		}
	}
}

// renderer prints the conversation incrementally: a new selection or a
// replaced history redraws everything, an append prints one line.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	self    int
	aiID    int
	target  *models.Target
	printed int
}

func (r *renderer) render(s chat.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !sameTarget(r.target, s.Selected) || len(s.Messages) < r.printed {
		r.target = s.Selected
		r.printed = 0
		if s.Selected == nil {
			fmt.Fprintln(r.out, "-- no conversation selected --")
			return
		}
		fmt.Fprintf(r.out, "-- %s --\n", r.title(*s.Selected))
	}
	for _, msg := range s.Messages[r.printed:] {
		fmt.Fprintf(r.out, "[%s] %s: %s\n", msg.Timestamp.Format("15:04"), r.author(msg), msg.Content)
	}
	r.printed = len(s.Messages)
}

func (r *renderer) title(t models.Target) string {
	switch {
	case t.IsGroup() && t.Name != "":
		return fmt.Sprintf("group %s (%d)", t.Name, t.ID)
	case t.IsGroup():
		return fmt.Sprintf("group %d", t.ID)
	case t.ID == r.aiID:
		return "AI assistant"
	default:
		return fmt.Sprintf("chat with user %d", t.ID)
	}
}

func (r *renderer) author(msg models.Message) string {
	switch {
	case msg.IsAIResponse:
		return "AI"
	case msg.SenderID == r.self:
		return "me"
	default:
		return strconv.Itoa(msg.SenderID)
	}
}

func sameTarget(a, b *models.Target) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Type == b.Type
}
