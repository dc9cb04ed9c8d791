package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"svyaz/internal/call"
	"svyaz/internal/messaging"
	"svyaz/internal/models"
	"svyaz/internal/session"
)

// ErrLogout is returned by Console.Run after /logout.
var ErrLogout = errors.New("logged out")

const consoleHelp = `commands:
  /msg <user> <text>        send a message
  /open <user>              open a chat, plain lines go to it
  /retry <message id>       resend a failed message
  /call <user>              start a call
  /accept | /reject         answer a ringing call
  /hangup                   end the call
  /online                   list online users
  /notify <user> <kind> <title>
  /post <text>              create a post
  /like <post id> | /unlike <post id>
  /share <post id> | /unshare <post id>
  /comment <post id> <text>
  /read-all                 mark notifications as read
  /logout | /quit`

// Console is a line based UI over one session. Every event the session
// emits is printed to out.
type Console struct {
	s   *session.Session
	out io.Writer

	mu     sync.Mutex // guards out
	thread *messaging.Thread
	lost   chan string
	unsubs []func()
}

func NewConsole(s *session.Session, out io.Writer) *Console {
	c := &Console{s: s, out: out, lost: make(chan string, 1)}
	c.watch()
	return c
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) watch() {
	s := c.s
	c.unsubs = append(c.unsubs,
		s.Presence.Subscribe(func(online []string) {
			c.printf("[online] %s", strings.Join(online, ", "))
		}),
		s.Messages.OnReceive(func(m models.ChatMessage) {
			c.printf("[msg] %s: %s", m.SenderID, m.Text)
		}),
		s.Messages.OnStatus(func(m models.ChatMessage) {
			if m.Status == models.StatusFailed {
				c.printf("[failed] %s to %s: %s (/retry %s)", m.ID, m.PeerID, m.Error, m.ID)
				return
			}
			c.printf("[%s] %s to %s", m.Status, m.ID, m.PeerID)
		}),
		s.Calls.OnIncoming(func(in call.Incoming) {
			c.printf("[call] %s is calling, /accept or /reject", in.Caller.Username)
		}),
		s.Calls.OnState(func(u call.Update) {
			if u.Reason != "" {
				c.printf("[call] %s with %s: %s", u.State, u.PeerID, u.Reason)
				return
			}
			c.printf("[call] %s with %s", u.State, u.PeerID)
		}),
		s.Calls.OnRemoteTrack(func(t call.RemoteTrack) {
			c.printf("[call] receiving %s", t.Kind)
		}),
		s.Calls.OnError(func(err error) {
			c.printf("[call] error: %v", err)
		}),
		s.Notifications.OnReceive(func(n models.Notification) {
			c.printf("[notify] %s: %s", n.Kind, n.Title)
		}),
		s.Badge.OnChange(func(count int) {
			c.printf("[badge] %d unread", count)
		}),
		s.Transport.On(models.EventDisconnect, func(data json.RawMessage) {
			var p models.DisconnectPayload
			_ = json.Unmarshal(data, &p)
			select {
			case c.lost <- p.Reason:
			default:
			}
		}),
	)
}

func (c *Console) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	if c.thread != nil {
		c.thread.Close()
		c.thread = nil
	}
}

// Run executes commands read from in until EOF, /quit, /logout, a lost
// connection or ctx cancellation.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
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

	c.printf("signed in as %s, /help lists commands", c.s.Profile.Username)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-c.lost:
			return fmt.Errorf("connection lost: %s", reason)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.exec(ctx, strings.TrimSpace(line)); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, ErrLogout) {
					return err
				}
				c.printf("error: %v", err)
			}
		}
	}
}

func (c *Console) exec(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		if c.thread == nil {
			return errors.New("no open chat, use /open <user> or /msg <user> <text>")
		}
		_, err := c.thread.Send(line)
		return err
	}

	cmd, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)
	s := c.s

	switch cmd {
	case "/help":
		c.printf("%s", consoleHelp)
	case "/quit":
		return io.EOF
	case "/logout":
		return ErrLogout
	case "/msg":
		peer, text, ok := strings.Cut(strings.TrimSpace(rest), " ")
		if !ok || peer == "" {
			return errors.New("usage: /msg <user> <text>")
		}
		_, err := s.Messages.Send(peer, text)
		return err
	case "/open":
		if len(args) != 1 {
			return errors.New("usage: /open <user>")
		}
		return c.open(ctx, args[0])
	case "/retry":
		if len(args) != 1 {
			return errors.New("usage: /retry <message id>")
		}
		return s.Messages.Retry(args[0])
	case "/call":
		if len(args) != 1 {
			return errors.New("usage: /call <user>")
		}
		_, err := s.Calls.StartCall(ctx, args[0])
		return err
	case "/accept":
		return s.Calls.AcceptCall(ctx)
	case "/reject":
		return s.Calls.RejectCall()
	case "/hangup":
		s.Calls.EndCall()
	case "/online":
		for _, p := range s.Presence.Peers(ctx) {
			c.printf("  %s (%s)", p.Username, p.ID)
		}
	case "/notify":
		if len(args) < 3 {
			return errors.New("usage: /notify <user> <kind> <title>")
		}
		return s.Notifications.Send(models.Notification{
			Actor:        s.UserID,
			TargetUserID: args[0],
			Kind:         models.NotificationKind(args[1]),
			Title:        strings.Join(args[2:], " "),
		})
	case "/post":
		p, err := s.REST.CreatePost(ctx, strings.TrimSpace(rest))
		if err != nil {
			return err
		}
		c.printf("[post] %s", p.ID)
	case "/like", "/unlike", "/share", "/unshare":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <post id>", cmd)
		}
		return c.interact(ctx, cmd, args[0])
	case "/comment":
		postID, text, ok := strings.Cut(strings.TrimSpace(rest), " ")
		if !ok {
			return errors.New("usage: /comment <post id> <text>")
		}
		_, err := s.Interactions.Comment(ctx, postID, text)
		return err
	case "/read-all":
		return s.Badge.MarkAllRead(ctx)
	default:
		return fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return nil
}

func (c *Console) open(ctx context.Context, peerID string) error {
	t, err := c.s.Messages.Open(ctx, peerID)
	if err != nil {
		return err
	}
	if c.thread != nil {
		c.thread.Close()
	}
	c.thread = t

	c.printf("--- chat with %s ---", peerID)
	for _, m := range t.Messages() {
		who := m.SenderID
		if m.Sender == models.SenderMe {
			who = "me"
		}
		c.printf("%s %s: %s", m.Timestamp.Format("15:04"), who, m.Text)
	}
	return nil
}

func (c *Console) interact(ctx context.Context, cmd, postID string) error {
	var (
		p   models.Post
		err error
	)
	switch cmd {
	case "/like":
		p, err = c.s.Interactions.Like(ctx, postID)
	case "/unlike":
		p, err = c.s.Interactions.Unlike(ctx, postID)
	case "/share":
		p, err = c.s.Interactions.Share(ctx, postID)
	case "/unshare":
		p, err = c.s.Interactions.Unshare(ctx, postID)
	}
	if err != nil {
		return err
	}
	c.printf("[post] %s: %d likes, %d shares, %d comments", p.ID, p.Likes, p.Shares, p.Comments)
	return nil
}
