package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/nextbest/internal/authz"
	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/model"
	"github.com/and161185/nextbest/internal/session"
	"github.com/and161185/nextbest/internal/transfer"
)

var (
	addKeys    = []string{"creator", "link", "notes", "priority", "rating"}
	updateKeys = []string{"title", "type", "friend", "creator", "link", "notes", "priority", "rating"}
	filterKeys = []string{"friend", "type", "q"}
)

func (s *Shell) commandTable() map[string]command {
	return map[string]command{
		"help": {
			usage: "help [command]",
			help:  "Lists commands or explains one.",
			run: func(_ context.Context, args []string) error {
				if len(args) == 0 {
					return s.printHelp("")
				}
				return s.printHelp(args[0])
			},
		},
		"bootstrap": {
			usage: "bootstrap <username> [password]",
			help:  "Creates the first account, which becomes the administrator. Only accepted while no account exists.",
			run:   s.cmdBootstrap,
		},
		"login": {
			usage: "login <username> [password]",
			help:  "Logs in. The password is prompted for when omitted.",
			run:   s.cmdLogin,
		},
		"register": {
			usage: "register <username> [password]",
			help:  "Creates a standard account and logs into it.",
			run:   s.cmdRegister,
		},
		"logout": {
			usage: "logout",
			help:  "Ends the session.",
			run: func(context.Context, []string) error {
				s.gate.Logout()
				fmt.Fprintln(s.out, "logged out")
				return nil
			},
		},
		"whoami": {
			usage: "whoami",
			help:  "Shows the logged-in account.",
			run: func(context.Context, []string) error {
				ident, ok := s.gate.Identity()
				if !ok {
					fmt.Fprintf(s.out, "not logged in (%s)\n", s.gate.State())
					return nil
				}
				fmt.Fprintf(s.out, "%s (%s)\n", ident.Username, ident.Role)
				return nil
			},
		},
		"passwd": {
			usage: "passwd [new-password]",
			help:  "Changes the password of the logged-in account.",
			run:   s.cmdPasswd,
		},
		"friends": {
			usage: "friends [list | add <name> | rename <name> <new-name> | delete <name>]",
			help:  "Manages the people who suggest things to you. A friend with suggestions cannot be deleted.",
			run:   s.cmdFriends,
		},
		"types": {
			usage: "types",
			help:  "Lists the media types.",
			run:   s.cmdTypes,
		},
		"suggest": {
			usage: "suggest <add|list|show|update|rate|delete> ...",
			help: `suggest add <title> <type> <friend> [creator=..] [link=..] [notes=..] [priority=High|Medium|Low] [rating=1..10]
suggest list [friend=..] [type=..] [q=keyword] [unrated]
suggest show <id>
suggest update <id> [title=..] [type=..] [friend=..] [creator=..] [link=..] [notes=..] [priority=..] [rating=..|rating=-]
suggest rate <id> <1..10>
suggest delete <id>
Friends and types are given by name. rating=- clears a rating.`,
			run: s.cmdSuggest,
		},
		"import": {
			usage: "import <file.csv>",
			help:  "Adds suggestions from a CSV file. Rows already present are skipped.",
			run:   s.cmdImport,
		},
		"export": {
			usage: "export <file.csv|-> [friend=..] [type=..] [q=..] [unrated]",
			help:  "Writes your suggestions as CSV; '-' prints them.",
			run:   s.cmdExport,
		},
		"leaderboard": {
			usage: "leaderboard",
			help:  "Shows best rated friends, most active friends and the most neglected friend.",
			run:   s.cmdLeaderboard,
		},
		"accounts": {
			usage: "accounts [list | delete <username>]",
			help:  "Administrator only. Lists or removes accounts; your own account cannot be removed.",
			run:   s.cmdAccounts,
		},
	}
}

func (s *Shell) credentials(args []string, confirm bool) (string, string, error) {
	if len(args) == 0 || len(args) > 2 {
		return "", "", fmt.Errorf("expected <username> [password]: %w", errs.ErrInvalidArgument)
	}
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	pw, err := s.newPassword("Password: ", confirm)
	return args[0], pw, err
}

func (s *Shell) newPassword(prompt string, confirm bool) (string, error) {
	pw, err := s.readPw(prompt)
	if err != nil {
		return "", err
	}
	if !confirm {
		return pw, nil
	}
	again, err := s.readPw("Repeat password: ")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", fmt.Errorf("passwords do not match: %w", errs.ErrInvalidArgument)
	}
	return pw, nil
}

func (s *Shell) cmdBootstrap(ctx context.Context, args []string) error {
	user, pw, err := s.credentials(args, true)
	if err != nil {
		return err
	}
	if err := s.gate.Bootstrap(ctx, user, pw); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "administrator %q created, log in to continue\n", user)
	return nil
}

func (s *Shell) cmdLogin(ctx context.Context, args []string) error {
	user, pw, err := s.credentials(args, false)
	if err != nil {
		return err
	}
	if err := s.gate.Login(ctx, user, pw); err != nil {
		return err
	}
	ident, _ := s.gate.Identity()
	fmt.Fprintf(s.out, "logged in as %s (%s)\n", ident.Username, ident.Role)
	return nil
}

func (s *Shell) cmdRegister(ctx context.Context, args []string) error {
	if s.gate.State() == session.StateLoggedIn {
		return fmt.Errorf("log out before registering: %w", errs.ErrForbidden)
	}
	user, pw, err := s.credentials(args, true)
	if err != nil {
		return err
	}
	if err := s.gate.Register(ctx, user, pw); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "registered and logged in as %s\n", user)
	return nil
}

func (s *Shell) cmdPasswd(ctx context.Context, args []string) error {
	if _, err := s.gate.Require(authz.ObjSelf, authz.ActWrite); err != nil {
		return err
	}
	var pw string
	switch len(args) {
	case 0:
		var err error
		if pw, err = s.newPassword("New password: ", true); err != nil {
			return err
		}
	case 1:
		pw = args[0]
	default:
		return fmt.Errorf("expected [new-password]: %w", errs.ErrInvalidArgument)
	}
	if err := s.gate.ChangeOwnPassword(ctx, pw); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "password changed")
	return nil
}

// owner returns the account id when the session may act on its library.
func (s *Shell) owner(act string) (uuid.UUID, error) {
	ident, err := s.gate.Require(authz.ObjLibrary, act)
	if err != nil {
		return uuid.Nil, err
	}
	return ident.AccountID, nil
}

func (s *Shell) cmdFriends(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = strings.ToLower(args[0]), args[1:]
	}
	act := authz.ActWrite
	if sub == "list" {
		act = authz.ActRead
	}
	owner, err := s.owner(act)
	if err != nil {
		return err
	}

	switch sub {
	case "list":
		list, err := s.lib.ListFriends(ctx, owner)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(s.out, "no friends yet")
			return nil
		}
		tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tADDED")
		for _, f := range list {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", f.ID, f.Name, f.CreatedAt.Local().Format(time.DateOnly))
		}
		return tw.Flush()

	case "add":
		if len(args) != 1 {
			return fmt.Errorf("expected friends add <name>: %w", errs.ErrInvalidArgument)
		}
		f, err := s.lib.AddFriend(ctx, owner, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "added friend %s (#%d)\n", f.Name, f.ID)
		return nil

	case "rename":
		if len(args) != 2 {
			return fmt.Errorf("expected friends rename <name> <new-name>: %w", errs.ErrInvalidArgument)
		}
		f, err := s.lib.ResolveFriend(ctx, owner, args[0])
		if err != nil {
			return err
		}
		if err := s.lib.RenameFriend(ctx, owner, f.ID, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "renamed %s to %s\n", f.Name, strings.TrimSpace(args[1]))
		return nil

	case "delete", "rm":
		if len(args) != 1 {
			return fmt.Errorf("expected friends delete <name>: %w", errs.ErrInvalidArgument)
		}
		f, err := s.lib.ResolveFriend(ctx, owner, args[0])
		if err != nil {
			return err
		}
		if err := s.lib.DeleteFriend(ctx, owner, f.ID); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "deleted friend %s\n", f.Name)
		return nil
	}
	return fmt.Errorf("unknown friends command %q: %w", sub, errs.ErrInvalidArgument)
}

func (s *Shell) cmdTypes(ctx context.Context, _ []string) error {
	if _, err := s.owner(authz.ActRead); err != nil {
		return err
	}
	list, err := s.lib.ListMediaTypes(ctx)
	if err != nil {
		return err
	}
	for _, m := range list {
		fmt.Fprintf(s.out, "%d\t%s\n", m.ID, m.Name)
	}
	return nil
}

func (s *Shell) cmdSuggest(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return s.printHelp("suggest")
	}
	sub, args := strings.ToLower(args[0]), args[1:]
	act := authz.ActWrite
	if sub == "list" || sub == "show" {
		act = authz.ActRead
	}
	owner, err := s.owner(act)
	if err != nil {
		return err
	}

	switch sub {
	case "add":
		return s.suggestAdd(ctx, owner, args)
	case "list", "ls":
		f, err := s.filter(ctx, owner, args)
		if err != nil {
			return err
		}
		list, err := s.lib.ListSuggestions(ctx, owner, f)
		if err != nil {
			return err
		}
		s.printSuggestions(list)
		return nil
	case "show":
		id, err := oneID(args)
		if err != nil {
			return err
		}
		sg, err := s.lib.GetSuggestion(ctx, owner, id)
		if err != nil {
			return err
		}
		s.printSuggestion(sg)
		return nil
	case "update":
		return s.suggestUpdate(ctx, owner, args)
	case "rate":
		if len(args) != 2 {
			return fmt.Errorf("expected suggest rate <id> <1..10>: %w", errs.ErrInvalidArgument)
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		r, err := transfer.ParseRating(args[1])
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("rating required: %w", errs.ErrInvalidArgument)
		}
		if err := s.lib.RateSuggestion(ctx, owner, id, *r); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "rated #%d: %d/10\n", id, *r)
		return nil
	case "delete", "rm":
		id, err := oneID(args)
		if err != nil {
			return err
		}
		if err := s.lib.DeleteSuggestion(ctx, owner, id); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "deleted #%d\n", id)
		return nil
	}
	return fmt.Errorf("unknown suggest command %q: %w", sub, errs.ErrInvalidArgument)
}

func (s *Shell) suggestAdd(ctx context.Context, owner uuid.UUID, args []string) error {
	pos, opts, err := options(args, addKeys...)
	if err != nil {
		return err
	}
	if len(pos) != 3 {
		return fmt.Errorf("expected suggest add <title> <type> <friend> [key=value...]: %w", errs.ErrInvalidArgument)
	}
	mt, err := s.lib.ResolveMediaType(ctx, pos[1])
	if err != nil {
		return err
	}
	fr, err := s.lib.ResolveFriend(ctx, owner, pos[2])
	if err != nil {
		return err
	}
	in := model.NewSuggestion{
		Title:       pos[0],
		MediaTypeID: mt.ID,
		FriendID:    fr.ID,
		Creator:     opts["creator"],
		Link:        opts["link"],
		Notes:       opts["notes"],
	}
	if in.Priority, err = transfer.ParsePriority(opts["priority"]); err != nil {
		return err
	}
	if in.Rating, err = transfer.ParseRating(opts["rating"]); err != nil {
		return err
	}
	sg, err := s.lib.AddSuggestion(ctx, owner, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "added #%d %s (%s) from %s\n", sg.ID, sg.Title, sg.MediaTypeName, sg.FriendName)
	return nil
}

func (s *Shell) suggestUpdate(ctx context.Context, owner uuid.UUID, args []string) error {
	pos, opts, err := options(args, updateKeys...)
	if err != nil {
		return err
	}
	id, err := oneID(pos)
	if err != nil {
		return err
	}
	var p model.SuggestionPatch
	for k, v := range opts {
		switch k {
		case "title":
			p.Title = &v
		case "creator":
			p.Creator = &v
		case "link":
			p.Link = &v
		case "notes":
			p.Notes = &v
		case "type":
			mt, err := s.lib.ResolveMediaType(ctx, v)
			if err != nil {
				return err
			}
			p.MediaTypeID = &mt.ID
		case "friend":
			fr, err := s.lib.ResolveFriend(ctx, owner, v)
			if err != nil {
				return err
			}
			p.FriendID = &fr.ID
		case "priority":
			pr, err := transfer.ParsePriority(v)
			if err != nil {
				return err
			}
			p.Priority = &pr
		case "rating":
			if v == "-" || v == "" {
				p.ClearRating = true
				continue
			}
			r, err := transfer.ParseRating(v)
			if err != nil {
				return err
			}
			p.Rating = r
		}
	}
	if p.Empty() {
		return fmt.Errorf("nothing to update: %w", errs.ErrInvalidArgument)
	}
	sg, err := s.lib.UpdateSuggestion(ctx, owner, id, p)
	if err != nil {
		return err
	}
	s.printSuggestion(sg)
	return nil
}

// filter builds a listing filter; names are resolved within the owner's data.
func (s *Shell) filter(ctx context.Context, owner uuid.UUID, args []string) (model.SuggestionFilter, error) {
	var f model.SuggestionFilter
	pos, opts, err := options(args, filterKeys...)
	if err != nil {
		return f, err
	}
	for _, p := range pos {
		if !strings.EqualFold(p, "unrated") {
			return f, fmt.Errorf("unexpected argument %q: %w", p, errs.ErrInvalidArgument)
		}
		f.UnratedOnly = true
	}
	if v, ok := opts["friend"]; ok {
		fr, err := s.lib.ResolveFriend(ctx, owner, v)
		if err != nil {
			return f, err
		}
		f.FriendID = &fr.ID
	}
	if v, ok := opts["type"]; ok {
		mt, err := s.lib.ResolveMediaType(ctx, v)
		if err != nil {
			return f, err
		}
		f.MediaTypeID = &mt.ID
	}
	f.Keyword = opts["q"]
	return f, nil
}

func (s *Shell) cmdImport(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected import <file.csv>: %w", errs.ErrInvalidArgument)
	}
	owner, err := s.owner(authz.ActWrite)
	if err != nil {
		return err
	}
	fh, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], errs.ErrInvalidArgument)
	}
	defer fh.Close()

	n, err := s.lib.Import(ctx, owner, fh)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "imported %d new suggestion(s)\n", n)
	return nil
}

func (s *Shell) cmdExport(ctx context.Context, args []string) (err error) {
	if len(args) == 0 {
		return fmt.Errorf("expected export <file.csv|->: %w", errs.ErrInvalidArgument)
	}
	owner, err := s.owner(authz.ActRead)
	if err != nil {
		return err
	}
	f, err := s.filter(ctx, owner, args[1:])
	if err != nil {
		return err
	}

	var w io.Writer = s.out
	if args[0] != "-" {
		fh, cerr := os.Create(args[0])
		if cerr != nil {
			return fmt.Errorf("create %s: %w", args[0], errs.ErrInvalidArgument)
		}
		defer func() {
			if cerr := fh.Close(); err == nil {
				err = cerr
			}
		}()
		w = fh
	}
	if err := s.lib.Export(ctx, owner, w, f); err != nil {
		return err
	}
	if args[0] != "-" {
		fmt.Fprintf(s.out, "exported to %s\n", args[0])
	}
	return nil
}

func (s *Shell) cmdLeaderboard(ctx context.Context, _ []string) error {
	owner, err := s.owner(authz.ActRead)
	if err != nil {
		return err
	}
	lb, err := s.lib.Leaderboard(ctx, owner)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Best rated:")
	if len(lb.TopRated) == 0 {
		fmt.Fprintln(tw, "  nothing rated yet")
	}
	for i, m := range lb.TopRated {
		fmt.Fprintf(tw, "  %d.\t%s\t%.2f\n", i+1, m.FriendName, m.Value)
	}
	fmt.Fprintln(tw, "Most suggestions:")
	if len(lb.MostSuggestions) == 0 {
		fmt.Fprintln(tw, "  no suggestions yet")
	}
	for i, m := range lb.MostSuggestions {
		fmt.Fprintf(tw, "  %d.\t%s\t%.0f\n", i+1, m.FriendName, m.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if n := lb.Neglected; n != nil {
		fmt.Fprintf(s.out, "Most neglected: %s, waiting since %s for %s (%s)\n",
			n.FriendName, n.SuggestedAt.Local().Format(time.DateOnly), n.Title, n.MediaTypeName)
	} else {
		fmt.Fprintln(s.out, "Most neglected: nobody, everything is rated")
	}
	return nil
}

func (s *Shell) cmdAccounts(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = strings.ToLower(args[0]), args[1:]
	}
	switch sub {
	case "list":
		list, err := s.gate.ListAccounts(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "USERNAME\tROLE\tCREATED\tID")
		for _, a := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Username, a.Role, a.CreatedAt.Local().Format(time.DateOnly), a.ID)
		}
		return tw.Flush()

	case "delete", "rm":
		if len(args) != 1 {
			return fmt.Errorf("expected accounts delete <username>: %w", errs.ErrInvalidArgument)
		}
		list, err := s.gate.ListAccounts(ctx)
		if err != nil {
			return err
		}
		for _, a := range list {
			if a.Username == args[0] {
				if err := s.gate.DeleteAccount(ctx, a.ID); err != nil {
					return err
				}
				fmt.Fprintf(s.out, "deleted account %s\n", a.Username)
				return nil
			}
		}
		return fmt.Errorf("account %q: %w", args[0], errs.ErrNotFound)
	}
	return fmt.Errorf("unknown accounts command %q: %w", sub, errs.ErrInvalidArgument)
}

func (s *Shell) printSuggestions(list []model.Suggestion) {
	if len(list) == 0 {
		fmt.Fprintln(s.out, "no suggestions")
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tFRIEND\tPRIORITY\tRATING\tCREATOR")
	for _, sg := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sg.ID, sg.Title, sg.MediaTypeName, sg.FriendName, sg.Priority, ratingText(sg.Rating), sg.Creator)
	}
	_ = tw.Flush()
}

func (s *Shell) printSuggestion(sg *model.Suggestion) {
	fmt.Fprintf(s.out, "#%d %s\n", sg.ID, sg.Title)
	fmt.Fprintf(s.out, "  type:      %s\n", sg.MediaTypeName)
	fmt.Fprintf(s.out, "  from:      %s\n", sg.FriendName)
	fmt.Fprintf(s.out, "  priority:  %s\n", sg.Priority)
	fmt.Fprintf(s.out, "  rating:    %s\n", ratingText(sg.Rating))
	if sg.Creator != "" {
		fmt.Fprintf(s.out, "  creator:   %s\n", sg.Creator)
	}
	if sg.Link != "" {
		fmt.Fprintf(s.out, "  link:      %s\n", sg.Link)
	}
	if sg.Notes != "" {
		fmt.Fprintf(s.out, "  notes:     %s\n", sg.Notes)
	}
	fmt.Fprintf(s.out, "  suggested: %s\n", sg.CreatedAt.Local().Format(time.DateOnly))
}

func ratingText(r *int) string {
	if r == nil {
		return "-"
	}
	return strconv.Itoa(*r) + "/10"
}

func parseID(v string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(v, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id %q: %w", v, errs.ErrInvalidArgument)
	}
	return id, nil
}

func oneID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one id: %w", errs.ErrInvalidArgument)
	}
	return parseID(args[0])
}
