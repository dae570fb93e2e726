package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	v1 "github.com/and161185/nextbest/api/nextbest/v1"
	"github.com/and161185/nextbest/internal/authz"
	"github.com/and161185/nextbest/internal/limiter"
	"github.com/and161185/nextbest/internal/metrics"
	"github.com/and161185/nextbest/internal/repository/sqlite"
	grpcserver "github.com/and161185/nextbest/internal/server/grpc"
	"github.com/and161185/nextbest/internal/service"
	"github.com/and161185/nextbest/internal/storage"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "nextbest")
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	if got := cfgDir(); got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if p := tokenPath(""); !strings.HasPrefix(p, base) || !strings.HasSuffix(p, "token.json") {
		t.Fatalf("tokenPath unexpected: %s", p)
	}
	if p := tokenPath("/tmp/x.json"); p != "/tmp/x.json" {
		t.Fatalf("override ignored: %s", p)
	}
}

func Test_token_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)
	path := tokenPath("")

	if _, err := loadToken(path); !errors.Is(err, errLoginRequired) {
		t.Fatalf("expected errLoginRequired when token file missing, got %v", err)
	}
	if err := saveToken(path, tokenFile{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	tok, err := loadToken(path)
	if err != nil || tok != "tok" {
		t.Fatalf("loadToken: tok=%q err=%v", tok, err)
	}
	fi, err := os.Stat(path)
	if err != nil || fi.Mode().Perm() != 0o600 {
		t.Fatalf("token file mode: %v %v", fi, err)
	}
	if err := saveToken(path, tokenFile{AccessToken: "tok2", ExpiresAt: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("saveToken expired: %v", err)
	}
	if _, err := loadToken(path); !errors.Is(err, errLoginRequired) {
		t.Fatalf("want errLoginRequired for expired token, got %v", err)
	}
}

func Test_readAll_File_And_Stdin(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "f.txt")
	_ = os.WriteFile(tmp, []byte("hello"), 0o600)
	b, err := readAll(tmp)
	if err != nil || string(b) != "hello" {
		t.Fatalf("readAll(file): %q %v", b, err)
	}

	r, w, _ := os.Pipe()
	old := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = old }()
	go func() { _, _ = io.WriteString(w, "from-stdin"); _ = w.Close() }()
	b, err = readAll("-")
	if err != nil || string(b) != "from-stdin" {
		t.Fatalf("readAll(stdin): %q %v", b, err)
	}
}

func Test_printJSON_WritesPretty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	printJSON(&buf, map[string]any{"a": 1})

	var m map[string]any
	if json.Unmarshal(buf.Bytes(), &m) != nil || m["a"] != float64(1) {
		t.Fatalf("printJSON produced invalid json: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Fatalf("printJSON should indent")
	}
}

func Test_bearerCreds_Metadata(t *testing.T) {
	t.Parallel()
	b := bearerCreds{token: "T", secure: true}
	md, err := b.GetRequestMetadata(context.Background())
	if err != nil {
		t.Fatalf("GetRequestMetadata: %v", err)
	}
	if md["authorization"] != "Bearer T" {
		t.Fatalf("auth header mismatch: %v", md)
	}
	if !b.RequireTransportSecurity() {
		t.Fatalf("bearerCreds over TLS must require transport security")
	}
	if (bearerCreds{token: "T"}).RequireTransportSecurity() {
		t.Fatalf("plaintext bearerCreds must not require transport security")
	}
}

func Test_loadTLS_Variants(t *testing.T) {
	t.Parallel()

	creds, err := loadTLS("", true)
	if err != nil || creds == nil || creds.Info().SecurityProtocol != "insecure" {
		t.Fatalf("plaintext: %v %v", creds, err)
	}

	creds, err = loadTLS("", false)
	if err != nil || creds == nil || creds.Info().SecurityProtocol != "tls" {
		t.Fatalf("default tls: %v %v", creds, err)
	}

	tmp := filepath.Join(t.TempDir(), "bad.pem")
	_ = os.WriteFile(tmp, []byte("not pem"), 0o600)
	creds, err = loadTLS(tmp, false)
	if err == nil || creds != nil {
		t.Fatalf("bad CA should error, got creds=%v err=%v", creds, err)
	}

	if _, err := loadTLS(filepath.Join(t.TempDir(), "missing.pem"), false); err == nil {
		t.Fatalf("missing CA should error")
	}
}

func Test_tokenExpiry(t *testing.T) {
	t.Parallel()
	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := tokenExpiry(&v1.LoginResponse{ExpiresAt: at}); !got.Equal(at) {
		t.Fatalf("server expiry ignored: %v", got)
	}
	if got := tokenExpiry(&v1.LoginResponse{AccessToken: "garbage"}); got.Before(time.Now()) {
		t.Fatalf("fallback expiry should be in the future: %v", got)
	}
}

// startServer runs the full interceptor chain over an in-memory store and returns an
// app wired to it.
func startServer(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	key := []byte("cli-test-key")

	st, err := storage.OpenSQLite(ctx, sqlite.MemoryDSN, limiter.Settings{Window: time.Minute, MaxFails: 5, BlockFor: time.Minute})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	auth := service.NewAuthService(st.Accounts, service.AuthConfig{SignKey: key, AccessTTL: time.Minute, Iterations: 1000}, st.Limiter, nil)
	lib := service.NewLibraryService(st.Library, nil)
	z, err := authz.New()
	if err != nil {
		t.Fatalf("authz: %v", err)
	}
	m := metrics.New()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcserver.RecoverUnary(zap.NewNop()),
		grpcserver.MetricsUnary(m),
		grpcserver.LoggingUnary(zap.NewNop()),
		grpcserver.AuthUnary(auth, z, key),
	))
	v1.RegisterNextBestServer(gs, grpcserver.New(auth, lib, key, zap.NewNop(), m))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(func() { gs.Stop(); _ = lis.Close(); _ = st.Close() })

	out := &bytes.Buffer{}
	a := &app{
		out:       out,
		tokenPath: filepath.Join(t.TempDir(), "token.json"),
		dial: func(bearer string) (*grpc.ClientConn, error) {
			opts := []grpc.DialOption{
				grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
				grpc.WithTransportCredentials(insecure.NewCredentials()),
			}
			if bearer != "" {
				opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer}))
			}
			return grpc.NewClient("passthrough:///bufnet", opts...)
		},
	}
	return a, out
}

func runOK(t *testing.T, a *app, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	if err := a.run(context.Background(), args[0], args[1:]); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func Test_app_EndToEnd(t *testing.T) {
	a, out := startServer(t)

	oldPw := readPassword
	readPassword = func(string) (string, error) { return "pw", nil }
	t.Cleanup(func() { readPassword = oldPw })

	if s := runOK(t, a, out, "status"); !strings.Contains(s, "no accounts yet") {
		t.Fatalf("status: %s", s)
	}
	if s := runOK(t, a, out, "register", "-u", "root", "-p", "pw"); !strings.Contains(s, "(admin)") {
		t.Fatalf("first register should be admin: %s", s)
	}
	if s := runOK(t, a, out, "status"); !strings.Contains(s, "ready") {
		t.Fatalf("status after register: %s", s)
	}

	if err := a.run(context.Background(), "friends", nil); !errors.Is(err, errLoginRequired) {
		t.Fatalf("friends before login: %v", err)
	}

	// password comes from the prompt
	runOK(t, a, out, "login", "-u", "root")

	var f v1.Friend
	if err := json.Unmarshal([]byte(runOK(t, a, out, "friend-add", "-name", "Bob")), &f); err != nil || f.Name != "Bob" {
		t.Fatalf("friend-add: %+v %v", f, err)
	}

	var sg v1.Suggestion
	s := runOK(t, a, out, "add", "-title", "Dune", "-type", "1", "-friend", "1", "-creator", "Herbert")
	if err := json.Unmarshal([]byte(s), &sg); err != nil || sg.Priority != "Medium" || sg.Rating != nil {
		t.Fatalf("add: %+v %v", sg, err)
	}

	runOK(t, a, out, "rate", "-id", "1", "-r", "8")
	s = runOK(t, a, out, "list", "-q", "dune")
	if !strings.Contains(s, `"rating": 8`) {
		t.Fatalf("list after rate: %s", s)
	}
	s = runOK(t, a, out, "update", "-id", "1", "-clear-rating", "-priority", "High")
	if strings.Contains(s, `"rating"`) || !strings.Contains(s, `"High"`) {
		t.Fatalf("update: %s", s)
	}
	if s = runOK(t, a, out, "list", "-unrated", "-type", "8"); strings.TrimSpace(s) != "[]" && strings.TrimSpace(s) != "null" {
		t.Fatalf("filtered list should be empty: %s", s)
	}

	if s = runOK(t, a, out, "export"); !strings.Contains(s, "title,media_type_id") || !strings.Contains(s, "Dune") {
		t.Fatalf("export: %s", s)
	}
	csvPath := filepath.Join(t.TempDir(), "in.csv")
	runOK(t, a, out, "export", "-o", csvPath)
	if s = runOK(t, a, out, "import", "-file", csvPath); !strings.Contains(s, "inserted 0") {
		t.Fatalf("re-import should insert nothing: %s", s)
	}

	if s = runOK(t, a, out, "leaderboard"); !strings.Contains(s, "Bob") {
		t.Fatalf("leaderboard: %s", s)
	}
	if s = runOK(t, a, out, "accounts"); !strings.Contains(s, "root") {
		t.Fatalf("accounts: %s", s)
	}

	err := a.run(context.Background(), "friend-rm", []string{"-id", "1"})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("friend-rm while referenced: %v", err)
	}
	runOK(t, a, out, "rm", "-id", "1")
	runOK(t, a, out, "friend-mv", "-id", "1", "-name", "Robert")
	runOK(t, a, out, "friend-rm", "-id", "1")

	runOK(t, a, out, "logout")
	if err := a.run(context.Background(), "types", nil); !errors.Is(err, errLoginRequired) {
		t.Fatalf("types after logout: %v", err)
	}
}

func Test_app_Usage(t *testing.T) {
	t.Parallel()
	a := &app{out: io.Discard, tokenPath: filepath.Join(t.TempDir(), "t.json")}
	ctx := context.Background()

	for _, args := range [][]string{
		{"nope"},
		{"add", "-title", "x"},
		{"rm"},
		{"login"},
		{"list", "-friend", "abc"},
		{"update", "-bogus"},
	} {
		if err := a.run(ctx, args[0], args[1:]); !errors.Is(err, errUsage) {
			t.Fatalf("%v: want usage error, got %v", args, err)
		}
	}

	var buf bytes.Buffer
	a.out = &buf
	if err := a.run(ctx, "version", nil); err != nil || !strings.Contains(buf.String(), "nextbest-cli") {
		t.Fatalf("version: %q %v", buf.String(), err)
	}
}
