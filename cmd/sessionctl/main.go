package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/modelgate/modelgate-go/client"
	"github.com/modelgate/modelgate-go/internal/config"
	"github.com/modelgate/modelgate-go/pkg/logger"
	"github.com/modelgate/modelgate-go/session"
)

const usage = `sessionctl: inspect and drive a local API session

Usage:
  sessionctl login -email <email> [-password <pw>]
  sessionctl register -email <email> -name <name> [-password <pw>]
  sessionctl me
  sessionctl status
  sessionctl logout

The session backend and API address come from the environment
(MODELGATE_API_URL, SESSION_BACKEND, ...), see internal/config.
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]

	store, closeStore, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "session store: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	c := client.New(cfg.API.BaseURL, store,
		client.WithNavigator(client.NavigatorFunc(func() {
			fmt.Fprintln(os.Stderr, "Session expired. Please log in again.")
		})))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer cancel()

	switch cmd {
	case "login":
		err = runLogin(ctx, c, os.Args[2:])
	case "register":
		err = runRegister(ctx, c, os.Args[2:])
	case "me":
		err = runMe(ctx, c)
	case "status":
		err = runStatus(c, store)
	case "logout":
		c.Logout(ctx)
		fmt.Println("Logged out.")
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func runLogin(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when omitted)")
	_ = fs.Parse(args)
	if *email == "" {
		return fmt.Errorf("login: -email is required")
	}
	pw := *password
	if pw == "" {
		var err error
		if pw, err = promptPassword("Password: "); err != nil {
			return err
		}
	}
	if _, err := c.Login(ctx, *email, pw); err != nil {
		return err
	}
	fmt.Println("Logged in.")
	return nil
}

func runRegister(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	password := fs.String("password", "", "account password (prompted when omitted)")
	_ = fs.Parse(args)
	if *email == "" {
		return fmt.Errorf("register: -email is required")
	}
	pw := *password
	if pw == "" {
		var err error
		if pw, err = promptPassword("Password: "); err != nil {
			return err
		}
	}
	u, err := c.Register(ctx, *email, pw, *name)
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s (%s). Check your email for a verification link.\n", u.Email, u.ID)
	return nil
}

func runMe(ctx context.Context, c *client.Client) error {
	u := c.Me(ctx)
	if u == nil {
		return fmt.Errorf("Not logged in.")
	}
	fmt.Printf("%s <%s>\n", u.Name, u.Email)
	if !u.EmailVerified {
		fmt.Println("Email not verified yet.")
	}
	return nil
}

func runStatus(c *client.Client, store session.Store) error {
	if store.AccessToken() == "" {
		fmt.Println("No active session.")
		return nil
	}
	if exp, ok := c.AccessTokenExpiry(); ok {
		if time.Now().After(exp) {
			fmt.Printf("Session present, access token expired at %s.\n", exp.Format(time.RFC3339))
		} else {
			fmt.Printf("Session active, access token valid until %s.\n", exp.Format(time.RFC3339))
		}
		return nil
	}
	fmt.Println("Session present.")
	return nil
}

// openStore builds the configured session store. The returned func releases
// whatever the store holds open.
func openStore(cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Session.Backend {
	case "memory":
		return session.NewMemoryStore(), func() {}, nil
	case "bolt":
		s, err := session.NewBoltStore(cfg.Session.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "redis":
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		return session.NewRedisStore(rc, cfg.Session.Redis.Prefix), func() { _ = rc.Close() }, nil
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mc, err := mongo.Connect(ctx, mongoopts.Client().ApplyURI(cfg.Session.Mongo.URI))
		if err != nil {
			return nil, nil, err
		}
		col := mc.Database(cfg.Session.Mongo.Database).Collection(cfg.Session.Mongo.Collection)
		return session.NewMongoStore(col, ""), func() { _ = mc.Disconnect(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// promptPassword reads a password from stdin. Echo suppression is left to
// the terminal; piped input works for scripting.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	rd := bufio.NewReader(os.Stdin)
	line, err := rd.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
