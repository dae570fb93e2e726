package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"

	v1 "github.com/and161185/nextbest/api/nextbest/v1"
)

var errUsage = errors.New("usage")

// app runs one subcommand against the server.
type app struct {
	out       io.Writer
	tokenPath string
	dial      func(bearer string) (*grpc.ClientConn, error)
}

func (a *app) client(authed bool) (*grpc.ClientConn, *v1.Client, error) {
	bearer := ""
	if authed {
		tok, err := loadToken(a.tokenPath)
		if err != nil {
			return nil, nil, err
		}
		bearer = tok
	}
	cc, err := a.dial(bearer)
	if err != nil {
		return nil, nil, err
	}
	return cc, v1.NewClient(cc), nil
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %v: %w", fs.Name(), err, errUsage)
	}
	return nil
}

func need(cond bool, msg string) error {
	if !cond {
		return fmt.Errorf("%s: %w", msg, errUsage)
	}
	return nil
}

// optID parses an optional numeric id flag.
func optID(name, v string) (*int64, error) {
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("-%s %q: not a number: %w", name, v, errUsage)
	}
	return &id, nil
}

func optRating(v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	r, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("-rating %q: not a number: %w", v, errUsage)
	}
	return &r, nil
}

// password returns p or prompts for it.
func password(p, prompt string) (string, error) {
	if p != "" {
		return p, nil
	}
	return readPassword(prompt)
}

// tokenExpiry prefers the server's answer and falls back to the exp claim.
func tokenExpiry(resp *v1.LoginResponse) time.Time {
	if !resp.ExpiresAt.IsZero() {
		return resp.ExpiresAt
	}
	var claims jwt.RegisteredClaims
	_, _, _ = jwt.NewParser().ParseUnverified(resp.AccessToken, &claims)
	if claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(15 * time.Minute)
}

func filterFlags(fs *flag.FlagSet) func() (*v1.SuggestionFilter, error) {
	friend := fs.String("friend", "", "friend id")
	typ := fs.String("type", "", "media type id")
	q := fs.String("q", "", "keyword in title or creator")
	unrated := fs.Bool("unrated", false, "only unrated")
	return func() (*v1.SuggestionFilter, error) {
		f := &v1.SuggestionFilter{Keyword: *q, UnratedOnly: *unrated}
		var err error
		if f.FriendID, err = optID("friend", *friend); err != nil {
			return nil, err
		}
		if f.MediaTypeID, err = optID("type", *typ); err != nil {
			return nil, err
		}
		return f, nil
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {

	case "version":
		fmt.Fprintf(a.out, "nextbest-cli %s (%s)\n", version, buildDate)
		return nil

	case "status":
		cc, cli, err := a.client(false)
		if err != nil {
			return err
		}
		defer cc.Close()
		resp, err := cli.BootstrapStatus(ctx)
		if err != nil {
			return err
		}
		if resp.NeedsBootstrap {
			fmt.Fprintln(a.out, "no accounts yet: the first registration becomes the administrator")
		} else {
			fmt.Fprintln(a.out, "ready")
		}
		return nil

	case "register", "login":
		fs := newFlags(cmd)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := need(*u != "", "need -u"); err != nil {
			return err
		}
		pw, err := password(*p, "Password: ")
		if err != nil {
			return err
		}

		cc, cli, err := a.client(false)
		if err != nil {
			return err
		}
		defer cc.Close()

		if cmd == "register" {
			resp, err := cli.Register(ctx, &v1.RegisterRequest{Username: *u, Password: pw})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s (%s)\n", resp.Account.ID, resp.Account.Role)
			return nil
		}

		resp, err := cli.Login(ctx, &v1.LoginRequest{Username: *u, Password: pw})
		if err != nil {
			return err
		}
		tf := tokenFile{AccessToken: resp.AccessToken, ExpiresAt: tokenExpiry(resp), Username: resp.Account.Username}
		if err := saveToken(a.tokenPath, tf); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")
		return nil

	case "logout":
		if err := os.Remove(a.tokenPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		fmt.Fprintln(a.out, "ok")
		return nil

	case "passwd":
		fs := newFlags(cmd)
		p := fs.String("p", "", "new password")
		if err := parse(fs, args); err != nil {
			return err
		}
		pw, err := password(*p, "New password: ")
		if err != nil {
			return err
		}
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		if err := cli.ChangePassword(ctx, &v1.ChangePasswordRequest{NewPassword: pw}); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")
		return nil

	case "accounts":
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		resp, err := cli.ListAccounts(ctx)
		if err != nil {
			return err
		}
		printJSON(a.out, resp.Accounts)
		return nil

	case "account-rm":
		fs := newFlags(cmd)
		id := fs.String("id", "", "account id (uuid)")
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := need(*id != "", "need -id"); err != nil {
			return err
		}
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		if err := cli.DeleteAccount(ctx, &v1.DeleteAccountRequest{ID: *id}); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")
		return nil

	case "friends":
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		resp, err := cli.ListFriends(ctx)
		if err != nil {
			return err
		}
		printJSON(a.out, resp.Friends)
		return nil

	case "friend-add":
		fs := newFlags(cmd)
		name := fs.String("name", "", "friend name")
		if err := parse(fs, args); err != nil {
			return err
		}
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		f, err := cli.AddFriend(ctx, &v1.AddFriendRequest{Name: *name})
		if err != nil {
			return err
		}
		printJSON(a.out, f)
		return nil

	case "friend-mv":
		fs := newFlags(cmd)
		id := fs.Int64("id", 0, "friend id")
		name := fs.String("name", "", "new name")
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := need(*id > 0, "need -id"); err != nil {
			return err
		}
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		if err := cli.RenameFriend(ctx, &v1.RenameFriendRequest{ID: *id, Name: *name}); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")
		return nil

	case "friend-rm":
		fs := newFlags(cmd)
		id := fs.Int64("id", 0, "friend id")
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := need(*id > 0, "need -id"); err != nil {
			return err
		}
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		if err := cli.DeleteFriend(ctx, &v1.DeleteFriendRequest{ID: *id}); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")
		return nil

	case "types":
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		resp, err := cli.ListMediaTypes(ctx)
		if err != nil {
			return err
		}
		printJSON(a.out, resp.MediaTypes)
		return nil

	case "list":
		fs := newFlags(cmd)
		filter := filterFlags(fs)
		if err := parse(fs, args); err != nil {
			return err
		}
		f, err := filter()
		if err != nil {
			return err
		}
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		resp, err := cli.ListSuggestions(ctx, f)
		if err != nil {
			return err
		}
		printJSON(a.out, resp.Suggestions)
		return nil

	case "add":
		fs := newFlags(cmd)
		title := fs.String("title", "", "title")
		typ := fs.Int64("type", 0, "media type id")
		friend := fs.Int64("friend", 0, "friend id")
		creator := fs.String("creator", "", "creator")
		link := fs.String("link", "", "link")
		notes := fs.String("notes", "", "notes")
		priority := fs.String("priority", "", "High, Medium or Low")
		rating := fs.String("rating", "", "1..10")
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := need(*title != "" && *typ > 0 && *friend > 0, "need -title -type -friend"); err != nil {
			return err
		}
		r, err := optRating(*rating)
		if err != nil {
			return err
		}
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		s, err := cli.AddSuggestion(ctx, &v1.AddSuggestionRequest{
			Title: *title, MediaTypeID: *typ, FriendID: *friend,
			Creator: *creator, Link: *link, Notes: *notes, Priority: *priority, Rating: r,
		})
		if err != nil {
			return err
		}
		printJSON(a.out, s)
		return nil

	case "update":
		fs := newFlags(cmd)
		id := fs.Int64("id", 0, "suggestion id")
		title := fs.String("title", "", "title")
		typ := fs.Int64("type", 0, "media type id")
		friend := fs.Int64("friend", 0, "friend id")
		creator := fs.String("creator", "", "creator")
		link := fs.String("link", "", "link")
		notes := fs.String("notes", "", "notes")
		priority := fs.String("priority", "", "High, Medium or Low")
		rating := fs.Int("rating", 0, "1..10")
		clearRating := fs.Bool("clear-rating", false, "mark unrated")
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := need(*id > 0, "need -id"); err != nil {
			return err
		}
		req := &v1.UpdateSuggestionRequest{ID: *id, ClearRating: *clearRating}
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "title":
				req.Title = title
			case "type":
				req.MediaTypeID = typ
			case "friend":
				req.FriendID = friend
			case "creator":
				req.Creator = creator
			case "link":
				req.Link = link
			case "notes":
				req.Notes = notes
			case "priority":
				req.Priority = priority
			case "rating":
				req.Rating = rating
			}
		})
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		s, err := cli.UpdateSuggestion(ctx, req)
		if err != nil {
			return err
		}
		printJSON(a.out, s)
		return nil

	case "rate":
		fs := newFlags(cmd)
		id := fs.Int64("id", 0, "suggestion id")
		r := fs.Int("r", 0, "rating 1..10")
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := need(*id > 0, "need -id"); err != nil {
			return err
		}
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		s, err := cli.UpdateSuggestion(ctx, &v1.UpdateSuggestionRequest{ID: *id, Rating: r})
		if err != nil {
			return err
		}
		printJSON(a.out, s)
		return nil

	case "rm":
		fs := newFlags(cmd)
		id := fs.Int64("id", 0, "suggestion id")
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := need(*id > 0, "need -id"); err != nil {
			return err
		}
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		if err := cli.DeleteSuggestion(ctx, &v1.DeleteSuggestionRequest{ID: *id}); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")
		return nil

	case "import":
		fs := newFlags(cmd)
		file := fs.String("file", "", "CSV file ('-'=stdin)")
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := need(*file != "", "need -file"); err != nil {
			return err
		}
		data, err := readAll(*file)
		if err != nil {
			return err
		}
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		resp, err := cli.ImportSuggestions(ctx, &v1.ImportSuggestionsRequest{CSV: data})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "inserted %d\n", resp.Inserted)
		return nil

	case "export":
		fs := newFlags(cmd)
		outPath := fs.String("o", "", "output file (default stdout)")
		filter := filterFlags(fs)
		if err := parse(fs, args); err != nil {
			return err
		}
		f, err := filter()
		if err != nil {
			return err
		}
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		resp, err := cli.ExportSuggestions(ctx, f)
		if err != nil {
			return err
		}
		if *outPath == "" {
			_, err = a.out.Write(resp.CSV)
			return err
		}
		return os.WriteFile(*outPath, resp.CSV, 0o600)

	case "leaderboard":
		cc, cli, err := a.client(true)
		if err != nil {
			return err
		}
		defer cc.Close()
		resp, err := cli.Leaderboard(ctx)
		if err != nil {
			return err
		}
		printJSON(a.out, resp)
		return nil
	}
	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}
