// Command pollctl is a CLI client for the poll board service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"

	"github.com/and161185/pollboard/internal/crypto"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "pollboard")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pollboard")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

// loadToken returns the saved token unless it is missing or expired.
func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

func dropToken() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func saveUserID(uid string) error {
	return os.WriteFile(filepath.Join(cfgDir(), "user_id"), []byte(strings.TrimSpace(uid)), 0o600)
}

func loadUserID() (string, error) {
	b, err := os.ReadFile(filepath.Join(cfgDir(), "user_id"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// stringList collects a repeatable flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// gatherOptions merges -o values with an optional newline-delimited file.
func gatherOptions(opts []string, file string) ([]string, error) {
	out := append([]string(nil), opts...)
	if file != "" {
		b, err := readAll(file)
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}

// machineFingerprint identifies this client for anonymous votes.
func machineFingerprint() (string, error) {
	host, _ := os.Hostname()
	var name string
	if cu, err := user.Current(); err == nil {
		name = cu.Username
	}
	return crypto.Fingerprint(host, name, runtime.GOOS+"/"+runtime.GOARCH)
}

// resolveOption accepts an option id or a 1-based index into the poll options.
func resolveOption(d pollDetail, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if _, err := u.FromString(ref); err == nil {
		return ref, nil
	}
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(d.Options) {
		return "", fmt.Errorf("option %q: want an option id or a number 1..%d", ref, len(d.Options))
	}
	return d.Options[n-1].ID, nil
}

func pollPath(id string) (string, error) {
	pid, err := u.FromString(strings.TrimSpace(id))
	if err != nil {
		return "", fmt.Errorf("bad poll id %q", id)
	}
	return "/polls/" + pid.String(), nil
}

func printDetail(w io.Writer, d pollDetail) {
	fmt.Fprintf(w, "%s\n", d.Title)
	if d.Description != nil {
		fmt.Fprintf(w, "%s\n", *d.Description)
	}
	for i, o := range d.Options {
		pct := 0.0
		if d.TotalVotes > 0 {
			pct = float64(o.Votes) * 100 / float64(d.TotalVotes)
		}
		fmt.Fprintf(w, "  %d. %-30s %4d  (%.0f%%)\n", i+1, o.Text, o.Votes, pct)
	}
	fmt.Fprintf(w, "total=%d public=%v", d.TotalVotes, d.IsPublic)
	if d.ExpiresAt != nil {
		fmt.Fprintf(w, " expires=%s", d.ExpiresAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "\nshare: %s\n", d.ShareURL)
}

func usage() {
	fmt.Fprintf(os.Stderr, `pollctl CLI
Usage:
  pollctl -server URL [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  register   -u <username> -p <password>
  login      -u <username> -p <password>           (saves token)
  logout
  whoami                                       (saved user id)
  list
  show       -id <uuid>
  create     -title <t> [-desc <d>] -o <option>... [-file <blob>] [-private] [-ttl <dur>]
  edit       -id <uuid> -title <t> [-desc <d>] -o <option>... [-file <blob>]
  rm         -id <uuid>
  vote       -id <uuid> -option <uuid|number>      (anonymous without login)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the HTTP API.
func main() {
	// global flags
	server := flag.String("server", "http://localhost:8080", "server base URL")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// commands run with the saved session when there is one
	token, _ := loadToken()
	c, err := newClient(*server, *caPath, *insecure, token)
	if err != nil {
		fail(err)
	}

	switch cmd {

	case "version":
		fmt.Printf("pollctl %s (%s)\n", version, buildDate)

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		name := fs.String("u", "", "username")
		pass := fs.String("p", "", "password")
		_ = fs.Parse(args)
		if *name == "" || *pass == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		var out struct {
			UserID string `json:"userId"`
		}
		if err := c.do(ctx, http.MethodPost, "/auth/register", map[string]string{"username": *name, "password": *pass}, &out); err != nil {
			fail(err)
		}
		fmt.Println(out.UserID)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		name := fs.String("u", "", "username")
		pass := fs.String("p", "", "password")
		_ = fs.Parse(args)
		if *name == "" || *pass == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		c.token = ""
		var out loginResp
		if err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"username": *name, "password": *pass}, &out); err != nil {
			fail(err)
		}
		if err := saveToken(out.AccessToken, out.ExpiresAt); err != nil {
			fail(err)
		}
		_ = saveUserID(out.UserID)
		fmt.Println("ok")

	case "logout":
		_ = c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
		if err := dropToken(); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "whoami":
		uid, err := loadUserID()
		if err != nil {
			fail(errors.New("not logged in"))
		}
		fmt.Println(uid)

	case "list":
		var out struct {
			Polls []pollSummary `json:"polls"`
		}
		if err := c.do(ctx, http.MethodGet, "/polls", nil, &out); err != nil {
			fail(err)
		}
		printJSON(out.Polls)

	case "show":
		fs := flag.NewFlagSet("show", flag.ExitOnError)
		id := fs.String("id", "", "poll id (uuid)")
		asJSON := fs.Bool("json", false, "print raw JSON")
		_ = fs.Parse(args)
		path, err := pollPath(*id)
		if err != nil {
			fail(err)
		}
		var d pollDetail
		if err := c.do(ctx, http.MethodGet, path, nil, &d); err != nil {
			fail(err)
		}
		if *asJSON {
			printJSON(d)
			break
		}
		printDetail(os.Stdout, d)

	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		title := fs.String("title", "", "poll title")
		desc := fs.String("desc", "", "description")
		var opts stringList
		fs.Var(&opts, "o", "option (repeatable)")
		file := fs.String("file", "", "newline-delimited options ('-'=stdin)")
		private := fs.Bool("private", false, "visible to the owner only")
		ttl := fs.Duration("ttl", 0, "close voting after this duration")
		_ = fs.Parse(args)

		options, err := gatherOptions(opts, *file)
		if err != nil {
			fail(err)
		}
		body := map[string]any{
			"title":       *title,
			"description": *desc,
			"options":     options,
			"isPublic":    !*private,
		}
		if *ttl > 0 {
			body["expiresAt"] = time.Now().Add(*ttl).UTC()
		}
		var out successResp
		if err := c.do(ctx, http.MethodPost, "/polls", body, &out); err != nil {
			fail(err)
		}
		fmt.Println(out.PollID)

	case "edit":
		fs := flag.NewFlagSet("edit", flag.ExitOnError)
		id := fs.String("id", "", "poll id (uuid)")
		title := fs.String("title", "", "poll title")
		desc := fs.String("desc", "", "description")
		var opts stringList
		fs.Var(&opts, "o", "option (repeatable)")
		file := fs.String("file", "", "newline-delimited options ('-'=stdin)")
		_ = fs.Parse(args)

		path, err := pollPath(*id)
		if err != nil {
			fail(err)
		}
		options, err := gatherOptions(opts, *file)
		if err != nil {
			fail(err)
		}
		var out successResp
		body := map[string]any{"title": *title, "description": *desc, "options": options}
		if err := c.do(ctx, http.MethodPut, path, body, &out); err != nil {
			fail(err)
		}
		fmt.Println(out.Success)

	case "rm":
		fs := flag.NewFlagSet("rm", flag.ExitOnError)
		id := fs.String("id", "", "poll id (uuid)")
		_ = fs.Parse(args)
		path, err := pollPath(*id)
		if err != nil {
			fail(err)
		}
		if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "vote":
		fs := flag.NewFlagSet("vote", flag.ExitOnError)
		id := fs.String("id", "", "poll id (uuid)")
		option := fs.String("option", "", "option id or 1-based number")
		_ = fs.Parse(args)
		path, err := pollPath(*id)
		if err != nil {
			fail(err)
		}

		optionID := *option
		if _, err := u.FromString(optionID); err != nil && optionID != "" {
			var d pollDetail
			if err := c.do(ctx, http.MethodGet, path, nil, &d); err != nil {
				fail(err)
			}
			if optionID, err = resolveOption(d, optionID); err != nil {
				fail(err)
			}
		}

		body := map[string]any{"optionId": optionID}
		if c.token == "" {
			fp, err := machineFingerprint()
			if err != nil {
				fail(err)
			}
			body["fingerprint"] = fp
		}
		var out successResp
		if err := c.do(ctx, http.MethodPost, path+"/vote", body, &out); err != nil {
			fail(err)
		}
		fmt.Println(out.Success)

	default:
		usage()
	}
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "error: %s (http %d)\n", ae.Msg, ae.Status)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
