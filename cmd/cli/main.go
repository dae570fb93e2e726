// Command nextbest-cli is a CLI client for the NextBest service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/term"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/nextbest/internal/config"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username,omitempty"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "nextbest")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "nextbest")
}

func tokenPath(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(cfgDir(), "token.json")
}

func saveToken(path string, tf tokenFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

var errLoginRequired = errors.New("no valid token (login required)")

func loadToken(path string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", errLoginRequired
	}
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errLoginRequired
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

// loadTLS returns plaintext credentials when plaintext is set; the server must run
// with server.insecure as well.
func loadTLS(caPath string, plaintext bool) (credentials.TransportCredentials, error) {
	if plaintext {
		return insecure.NewCredentials(), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}), nil
}

func dial(c config.ClientConfig, bearer string) (*grpc.ClientConn, error) {
	creds, err := loadTLS(c.CAFile, c.Insecure)
	if err != nil {
		return nil, err
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !c.Insecure}))
	}
	return grpc.NewClient(c.Addr, opts...)
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// readPassword is a test seam for term.ReadPassword.
var readPassword = func(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return string(b), err
}

func usage() {
	fmt.Fprintf(os.Stderr, `nextbest CLI
Usage:
  nextbest-cli [-config file] [-addr HOST:PORT] [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  status                                        (does the server need its first account?)
  register   -u <username> [-p <password>]
  login      -u <username> [-p <password>]      (saves token)
  logout
  passwd     [-p <new password>]
  accounts                                      (admin)
  account-rm -id <uuid>                         (admin)
  friends
  friend-add -name <name>
  friend-mv  -id <id> -name <new name>
  friend-rm  -id <id>
  types
  list       [-friend id] [-type id] [-q keyword] [-unrated]
  add        -title <t> -type <id> -friend <id> [-creator c] [-link l] [-notes n] [-priority p] [-rating r]
  update     -id <id> [-title ..] [-type ..] [-friend ..] [-creator ..] [-link ..] [-notes ..] [-priority ..] [-rating r | -clear-rating]
  rate       -id <id> -r <1..10>
  rm         -id <id>
  import     -file <csv>                        ('-'=stdin)
  export     [-o file] [-friend id] [-type id] [-q keyword] [-unrated]
  leaderboard
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	// global flags
	cfgPath := flag.String("config", "", "config file (YAML)")
	addr := flag.String("addr", "", "server addr (overrides client.addr)")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	plain := flag.Bool("insecure", false, "plaintext connection (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(err)
	}
	c := cfg.Client
	if *addr != "" {
		c.Addr = *addr
	}
	if *caPath != "" {
		c.CAFile = *caPath
	}
	if *plain {
		c.Insecure = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	a := &app{
		out:       os.Stdout,
		tokenPath: tokenPath(c.TokenFile),
		dial:      func(bearer string) (*grpc.ClientConn, error) { return dial(c, bearer) },
	}
	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		}
		fail(err)
	}
}

// ---- helpers ----

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
