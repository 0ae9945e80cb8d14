// Command pf is a CLI client for the Plateful platform API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/plateful/plateful-client/internal/apiclient"
	"github.com/plateful/plateful-client/internal/assist"
	"github.com/plateful/plateful-client/internal/config"
	"github.com/plateful/plateful-client/internal/model"
	"github.com/plateful/plateful-client/internal/session"
	"github.com/plateful/plateful-client/internal/tokenstore"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// app bundles the wired components for one invocation.
type app struct {
	store   *tokenstore.FileStore
	api     *apiclient.Client
	session *session.Manager
	assist  *assist.Service
}

func newApp(baseURL, tokenPath string, verbose bool) (*app, error) {
	if err := config.ValidateBaseURL(baseURL); err != nil {
		return nil, err
	}
	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}
	store := tokenstore.NewFileStore(tokenPath, logger)
	api, err := apiclient.New(baseURL, store, logger)
	if err != nil {
		return nil, err
	}
	return &app{
		store:   store,
		api:     api,
		session: session.NewManager(api, store, logger),
		assist:  assist.New(api),
	}, nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func failResult(res apiclient.Result) {
	fmt.Fprintf(os.Stderr, "request failed: status=%d err=%s\n", res.Status, res.Err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `pf CLI
Usage:
  pf -base-url URL [-token-file path] [-v] <cmd> [args]

Commands:
  version
  login             -email <e> -password <p> [-company]
  register          -name <n> -email <e> -password <p> [-phone]
  company-register  -name <n> -email <e> -password <p> [-phone] [-address]
  logout
  me
  status
  chat              -q <query>
  suggest
  recommend         -q <query> [-limit n]
  restaurant        -id <id>
  event             -id <id>
  get               <endpoint>
  post              <endpoint> -d <json>
`)
	os.Exit(2)
}

// main dispatches subcommands against the configured API base URL.
func main() {
	config.LoadDotenv()

	// global flags (flag > env > default, like the rest of the tooling)
	baseURLFlag := flag.String("base-url", "", "API base URL (or PLATEFUL_API_URL env)")
	tokenFileFlag := flag.String("token-file", "", "session file (or PLATEFUL_TOKEN_FILE env)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	baseURL := config.Resolve(*baseURLFlag, "PLATEFUL_API_URL", "http://localhost:8080")
	tokenPath := config.Resolve(*tokenFileFlag, "PLATEFUL_TOKEN_FILE", tokenstore.DefaultPath())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := newApp(baseURL, tokenPath, *verbose)
	if err != nil {
		fail(err)
	}

	switch cmd {

	case "version":
		fmt.Printf("pf %s (%s)\n", version, buildDate)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		company := fs.Bool("company", false, "log in as a business account")
		_ = fs.Parse(flag.Args()[1:])
		if *email == "" || *password == "" {
			fmt.Fprintln(os.Stderr, "need -email and -password")
			os.Exit(1)
		}
		creds := model.Credentials{Email: *email, Password: *password}
		var profile model.Profile
		if *company {
			profile, err = a.session.CompanyLogin(ctx, creds)
		} else {
			profile, err = a.session.Login(ctx, creds)
		}
		if err != nil {
			fail(err)
		}
		printJSON(profile)

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		name := fs.String("name", "", "display name")
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		phone := fs.String("phone", "", "phone number")
		_ = fs.Parse(flag.Args()[1:])
		if *name == "" || *email == "" || *password == "" {
			fmt.Fprintln(os.Stderr, "need -name, -email and -password")
			os.Exit(1)
		}
		profile, err := a.session.Register(ctx, model.UserRegistration{
			Name: *name, Email: *email, Password: *password, Phone: *phone,
		})
		if err != nil {
			fail(err)
		}
		printJSON(profile)

	case "company-register":
		fs := flag.NewFlagSet("company-register", flag.ExitOnError)
		name := fs.String("name", "", "business name")
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		phone := fs.String("phone", "", "phone number")
		address := fs.String("address", "", "business address")
		_ = fs.Parse(flag.Args()[1:])
		if *name == "" || *email == "" || *password == "" {
			fmt.Fprintln(os.Stderr, "need -name, -email and -password")
			os.Exit(1)
		}
		profile, err := a.session.CompanyRegister(ctx, model.CompanyRegistration{
			Name: *name, Email: *email, Password: *password, Phone: *phone, Address: *address,
		})
		if err != nil {
			fail(err)
		}
		printJSON(profile)

	case "logout":
		a.session.Logout(ctx)
		fmt.Println("ok")

	case "me":
		profile, err := a.session.Me(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(profile)

	case "status":
		printJSON(sessionStatus(ctx, a))

	case "chat":
		fs := flag.NewFlagSet("chat", flag.ExitOnError)
		q := fs.String("q", "", "chat query")
		_ = fs.Parse(flag.Args()[1:])
		if *q == "" {
			fmt.Fprintln(os.Stderr, "need -q")
			os.Exit(1)
		}
		reply, err := a.assist.Chat(ctx, *q, a.store.DeviceID())
		if err != nil {
			fail(err)
		}
		printJSON(reply)

	case "suggest":
		suggestions, err := a.assist.Suggestions(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(suggestions)

	case "recommend":
		fs := flag.NewFlagSet("recommend", flag.ExitOnError)
		q := fs.String("q", "", "recommendation query")
		limit := fs.Int("limit", 0, "max results")
		_ = fs.Parse(flag.Args()[1:])
		if *q == "" {
			fmt.Fprintln(os.Stderr, "need -q")
			os.Exit(1)
		}
		reply, err := a.assist.Recommend(ctx, *q, *limit)
		if err != nil {
			fail(err)
		}
		printJSON(reply)

	case "restaurant":
		fs := flag.NewFlagSet("restaurant", flag.ExitOnError)
		id := fs.Int64("id", 0, "restaurant id")
		_ = fs.Parse(flag.Args()[1:])
		if *id == 0 {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		r, err := a.assist.RestaurantDetails(ctx, *id)
		if err != nil {
			fail(err)
		}
		printJSON(r)

	case "event":
		fs := flag.NewFlagSet("event", flag.ExitOnError)
		id := fs.Int64("id", 0, "event id")
		_ = fs.Parse(flag.Args()[1:])
		if *id == 0 {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		e, err := a.assist.EventDetails(ctx, *id)
		if err != nil {
			fail(err)
		}
		printJSON(e)

	case "get":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "need an endpoint, e.g. pf get /restaurants/details/5")
			os.Exit(1)
		}
		res := a.api.Get(ctx, flag.Arg(1))
		if !res.Success {
			failResult(res)
		}
		printRaw(res.Data)

	case "post":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "need an endpoint")
			os.Exit(1)
		}
		endpoint := flag.Arg(1)
		fs := flag.NewFlagSet("post", flag.ExitOnError)
		data := fs.String("d", "", "JSON request body")
		_ = fs.Parse(flag.Args()[2:])
		var payload any
		if *data != "" {
			if err := json.Unmarshal([]byte(*data), &payload); err != nil {
				fail(fmt.Errorf("invalid -d payload: %w", err))
			}
		}
		res := a.api.Post(ctx, endpoint, payload)
		if !res.Success {
			failResult(res)
		}
		printRaw(res.Data)

	default:
		usage()
	}
}

func printRaw(data json.RawMessage) {
	if len(data) == 0 {
		fmt.Println("ok")
		return
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		fmt.Println(string(data))
		return
	}
	printJSON(v)
}

// statusReport is the "status" command output.
type statusReport struct {
	LoggedIn      bool   `json:"loggedIn"`
	ProfileType   string `json:"profileType,omitempty"`
	ProfileName   string `json:"profileName,omitempty"`
	Stale         bool   `json:"stale"`
	TokenExpires  string `json:"tokenExpires,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// sessionStatus inspects local session state. The access token's exp claim is
// decoded without verification purely for display; the client relies on the
// stored-at heuristic, not on JWT contents.
func sessionStatus(ctx context.Context, a *app) statusReport {
	report := statusReport{
		LoggedIn: a.store.LoggedIn(),
		Stale:    a.store.Expired(),
	}
	if p, ok := a.store.Profile(); ok {
		report.ProfileType = p.Type
		report.ProfileName = p.Name
	}
	if access := a.store.AccessToken(); access != "" {
		var claims jwt.RegisteredClaims
		_, _ = jwt.ParseWithClaims(access, &claims,
			func(*jwt.Token) (any, error) { return nil, nil },
			jwt.WithoutClaimsValidation(),
		)
		if claims.ExpiresAt != nil {
			report.TokenExpires = claims.ExpiresAt.Time.UTC().Format(time.RFC3339)
		}
	}
	report.Authenticated = a.session.IsAuthenticated(ctx)
	return report
}
